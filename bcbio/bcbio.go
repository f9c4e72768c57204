// Package bcbio runs the external bcbio-nextgen programs.
package bcbio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun/shared"
)

const (
	Exe          = "bcbio_nextgen.py"
	GATKRegister = "gatk-register"
	// CmdFile receives the exact pipeline command line next to the project file.
	CmdFile = "bcbio-cmd.sh"
)

// Command is a single external program invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// CommandRunner abstracts command execution for testing.
// A non-zero exit is reported through the exit code, not err.
type CommandRunner interface {
	Run(ctx context.Context, c Command) (exitCode int, err error)
}

// ExecRunner runs commands with os/exec, streaming their output to Stdout and Stderr.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = shared.Slogger
	}

	switch e := cmd.Run().(type) {
	case nil:
		return 0, nil
	case *exec.ExitError:
		return e.ExitCode(), nil
	default:
		return -1, e
	}
}

// ExitError is a child that ran and exited with a non-zero status.
type ExitError struct {
	Cmd  string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Cmd, e.Code)
}

// Pipeline invokes the programs shipped in the bcbio container.
type Pipeline struct {
	Runner CommandRunner
	// Exe and GATKRegister are the program names looked up on $PATH.
	Exe          string
	GATKRegister string
}

// New returns a Pipeline that runs the real programs.
func New(stdout, stderr io.Writer) *Pipeline {
	return &Pipeline{
		Runner:       &ExecRunner{Stdout: stdout, Stderr: stderr},
		Exe:          Exe,
		GATKRegister: GATKRegister,
	}
}

func (p *Pipeline) run(ctx context.Context, c Command) (int, error) {
	shared.Slogger.Printf("running: %s", c)
	code, err := p.Runner.Run(ctx, c)
	if err != nil {
		return code, errors.Wrapf(err, "error running %s", c.Name)
	}
	if code != 0 {
		return code, &ExitError{Cmd: c.String(), Code: code}
	}
	return 0, nil
}

// RegisterGATK registers a licensed GATK archive with the container. Nothing
// is run when sentinel already holds an installation.
func (p *Pipeline) RegisterGATK(ctx context.Context, archive, sentinel string) error {
	if shared.IsNonEmptyDir(sentinel) {
		shared.Slogger.Warnf("the GATK directory %s is not empty, skipping GATK install!", sentinel)
		return nil
	}
	if _, err := p.run(ctx, Command{Name: p.GATKRegister, Args: []string{archive}}); err != nil {
		return err
	}
	shared.Slogger.Printf("GATK file %s registered", archive)
	return nil
}

// Upgrade downloads genome data and aligner indexes into the reference mount.
func (p *Pipeline) Upgrade(ctx context.Context, genome, aligner string) error {
	_, err := p.run(ctx, Command{Name: p.Exe, Args: []string{"upgrade", "--data", "--genomes", genome, "--aligners", aligner}})
	return err
}

// Run starts the pipeline on project from dir and waits for it. The command
// line is also written to CmdFile beside project. The returned code is the
// child's exit status.
func (p *Pipeline) Run(ctx context.Context, project, dir string, cores int) (int, error) {
	c := Command{Name: p.Exe, Args: []string{project, "-n", strconv.Itoa(cores)}, Dir: dir}
	script := filepath.Join(filepath.Dir(project), CmdFile)
	line := fmt.Sprintf("set -euo pipefail; cd %s && %s\n", dir, c)
	if err := shared.WriteFile(script, []byte(line)); err != nil {
		return 1, err
	}
	shared.Slogger.Printf("wrote bcbio command to %s", script)
	return p.run(ctx, c)
}
