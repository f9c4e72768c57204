// Package launch runs one bcbio invocation from validated options to the
// pipeline's exit status.
package launch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun/bcbio"
	"github.com/ucsc-cgl/bcbiorun/options"
	"github.com/ucsc-cgl/bcbiorun/preflight"
	"github.com/ucsc-cgl/bcbiorun/reference"
	"github.com/ucsc-cgl/bcbiorun/shared"
	"github.com/ucsc-cgl/bcbiorun/workflow"
)

// Config is the host side of a run.
type Config struct {
	// Cwd is where work/, data/ and relative output paths live.
	Cwd      string
	Now      func() time.Time
	Pipeline *bcbio.Pipeline
}

func (cfg Config) withDefaults() (Config, error) {
	if cfg.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, errors.Wrap(err, "error getting current directory")
		}
		cfg.Cwd = wd
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = bcbio.New(os.Stdout, shared.Slogger)
	}
	return cfg, nil
}

// ExitCode maps an error from Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := errors.Cause(err).(*bcbio.ExitError); ok && e.Code > 0 {
		return e.Code
	}
	return 1
}

// Run stages everything bcbio needs for o and runs the pipeline. Steps run in
// order and the first failure stops the run; nothing is written before the
// inputs are checked, both documents are rendered and the reference mount
// point is found.
func Run(ctx context.Context, cfg Config, o *options.RunOptions) (int, error) {
	t0 := time.Now()
	cfg, err := cfg.withDefaults()
	if err != nil {
		return 1, err
	}
	code, err := run(ctx, cfg, o)
	if err != nil {
		code = ExitCode(err)
	}
	shared.Slogger.Printf("finished with exit status %d in %.1f minutes", code, time.Since(t0).Minutes())
	return code, err
}

func run(ctx context.Context, cfg Config, o *options.RunOptions) (int, error) {
	if err := preflight.Check(o); err != nil {
		return 1, err
	}

	wctx := workflow.NewContext(o, cfg.Cwd, cfg.Now())
	project, err := workflow.Render(o.Mode, wctx)
	if err != nil {
		return 1, err
	}
	system, err := workflow.RenderSystem(workflow.DetectCores(), o.Mount)
	if err != nil {
		return 1, err
	}
	shared.Slogger.Printf("workflow: %s", joinWorkflows(o.Workflows()))
	shared.Slogger.Printf("input files: %s", workflow.FileList(inputFiles(o)))

	prov := &reference.Provisioner{
		Layout:     reference.Layout{Mount: o.Mount},
		Downloader: cfg.Pipeline,
		Genome:     o.Genome,
		Aligner:    o.Aligner,
	}
	if err := prov.CheckMount(); err != nil {
		return 1, err
	}

	for _, d := range []string{wctx.WorkingDir, hostPath(cfg.Cwd, wctx.OutputDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return 1, &reference.EnvironmentError{Path: d, Err: err}
		}
	}

	dataDir := reference.DataDir(cfg.Cwd, o.DataDir)
	if err := prov.Prepare(dataDir, o.DataFile); err != nil {
		return 1, err
	}

	if o.GATKFile != "" {
		if err := cfg.Pipeline.RegisterGATK(ctx, o.GATKFile, o.GATKDir); err != nil {
			return 1, err
		}
	}

	if err := prov.Provision(ctx, dataDir, system); err != nil {
		return 1, err
	}

	projectPath := filepath.Join(wctx.WorkingDir, workflow.ProjectFile)
	if err := shared.WriteFile(projectPath, project); err != nil {
		return 1, err
	}
	shared.Slogger.Printf("wrote bcbio project to %s", projectPath)

	return cfg.Pipeline.Run(ctx, projectPath, cfg.Cwd, o.Cores)
}

func hostPath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cwd, p)
}

func inputFiles(o *options.RunOptions) []string {
	if o.Mode == options.ModeCancer {
		return append(append([]string(nil), o.NormalFiles...), o.TumorFiles...)
	}
	return o.SampleFiles
}

func joinWorkflows(ws []options.Workflow) string {
	s := make([]string, len(ws))
	for i, w := range ws {
		s[i] = string(w)
	}
	return strings.Join(s, ",")
}
