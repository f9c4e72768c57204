// Package options parses and validates the bcbiorun command line.
package options

import (
	"fmt"
	"io"
	"os"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun"
)

// Workflow is a value accepted by --workflow.
type Workflow string

const (
	Germline   Workflow = "germline-variant-calling"
	Cancer     Workflow = "cancer-variant-calling"
	Structural Workflow = "structural-variant-calling"
)

var workflows = []Workflow{Cancer, Germline, Structural}

// Mode is the base pipeline a run is built on. Structural-variant calling
// only ever augments one of these.
type Mode int

const (
	ModeGermline Mode = iota
	ModeCancer
)

func (m Mode) String() string {
	switch m {
	case ModeGermline:
		return string(Germline)
	case ModeCancer:
		return string(Cancer)
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

const (
	DefaultCores     = 16
	DefaultRunName   = "Current_run"
	DefaultOutputDir = "./final"
	DefaultGenome    = "GRCh37"
	DefaultAligner   = "bwa"
	DefaultMount     = "/mnt/biodata"
	DefaultGATKDir   = "/tmp/gatk"
)

// Args mirrors the command line.
type Args struct {
	SampleFiles []string `arg:"-s,--sample_files,separate" help:"input file for germline calling; repeat for each file (e.g. both mates of a pair)."`
	TumorFiles  []string `arg:"-t,--tumor_sample_files,separate" help:"tumor input file for cancer calling; repeat for each file."`
	NormalFiles []string `arg:"-n,--normal_sample_files,separate" help:"normal input file for cancer calling; repeat for each file."`
	Cores       int      `arg:"-c,--num_cores" help:"number of cores to use for processing."`
	GATKFile    string   `arg:"-g,--GATK_file" help:"path to GATK archive to register, e.g. /path/to/GenomeAnalysisTK.tar.bz2."`
	Workflows   []string `arg:"-W,--workflow,separate,required" help:"workflow to run: cancer-variant-calling, germline-variant-calling or structural-variant-calling; repeat to combine."`
	BedFile     string   `arg:"-b,--bed_file" help:"BED file of regions to call in. whole genome if not given."`
	IncludeSV   bool     `arg:"--include_sv" help:"also run structural variant callers."`
	RunName     string   `arg:"-r,--run_name" help:"batch label used to group samples and name outputs."`
	DataDir     string   `arg:"-d,--data_dir" help:"directory where reference genome files are or should be downloaded."`
	DataFile    string   `arg:"-f,--data_file" help:"path to reference genomes tar file."`
	OutputDir   string   `arg:"-o,--output_dir" help:"directory where output files should be written."`
	Genome      string   `arg:"--genome" help:"genome build to download when the data directory is empty."`
	Aligner     string   `arg:"--aligner" help:"aligner index to download when the data directory is empty."`
	Mount       string   `arg:"--mount,env:BCBIORUN_MOUNT" help:"reference data mount point inside the container."`
	GATKDir     string   `arg:"--gatk_dir,env:BCBIORUN_GATK_DIR" help:"GATK install directory; registration is skipped when it is non-empty."`
}

// NewArgs returns Args holding the defaults.
func NewArgs() Args {
	return Args{
		Cores:     DefaultCores,
		RunName:   DefaultRunName,
		OutputDir: DefaultOutputDir,
		Genome:    DefaultGenome,
		Aligner:   DefaultAligner,
		Mount:     DefaultMount,
		GATKDir:   DefaultGATKDir,
	}
}

func (Args) Description() string {
	return "configure and run a bcbio-nextgen variant calling workflow"
}

func (Args) Version() string {
	return "bcbiorun " + bcbiorun.Version
}

// RunOptions is the validated record of a single invocation.
type RunOptions struct {
	Mode Mode
	SV   bool

	// file groups keep command-line order; paired-end mates depend on it.
	SampleFiles []string
	TumorFiles  []string
	NormalFiles []string

	BedFile   string
	DataDir   string
	DataFile  string
	OutputDir string
	RunName   string
	Cores     int
	GATKFile  string

	Genome  string
	Aligner string
	Mount   string
	GATKDir string
}

// Workflows lists the --workflow values equivalent to o.
func (o *RunOptions) Workflows() []Workflow {
	w := []Workflow{Germline}
	if o.Mode == ModeCancer {
		w[0] = Cancer
	}
	if o.SV {
		w = append(w, Structural)
	}
	return w
}

// UsageError is a command-line problem found before any side effect.
type UsageError struct {
	Flags []string
	Msg   string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func usagef(flags []string, format string, v ...interface{}) error {
	return &UsageError{Flags: flags, Msg: fmt.Sprintf(format, v...)}
}

// Validate enforces the cross-flag rules and returns the resolved options.
// It never touches the filesystem.
func Validate(a Args) (*RunOptions, error) {
	requested := make(map[Workflow]bool, 3)
	for _, w := range a.Workflows {
		wf := Workflow(strings.TrimSpace(w))
		if !knownWorkflow(wf) {
			return nil, usagef([]string{"--workflow"}, "unknown workflow %q; choose from %s", w, joinWorkflows())
		}
		requested[wf] = true
	}
	if len(requested) == 0 {
		return nil, usagef([]string{"--workflow"}, "--workflow is required")
	}
	sv := requested[Structural] || a.IncludeSV

	if !requested[Germline] && !requested[Cancer] {
		if sv {
			return nil, usagef([]string{"--workflow", "--include_sv"}, "structural variant calling must be run with germline or cancer variant calling")
		}
	}
	if requested[Germline] && requested[Cancer] {
		return nil, usagef([]string{"--workflow"}, "cancer variant calling cannot be run with germline variant calling")
	}
	if requested[Germline] && len(a.SampleFiles) == 0 {
		return nil, usagef([]string{"--sample_files"}, "sample files switch must be used for germline-variant-calling")
	}
	if requested[Cancer] && (len(a.NormalFiles) == 0 || len(a.TumorFiles) == 0) {
		return nil, usagef([]string{"--normal_sample_files", "--tumor_sample_files"}, "normal and tumor input file switches must be used for cancer-variant-calling")
	}
	if len(a.SampleFiles) > 0 && (len(a.NormalFiles) > 0 || len(a.TumorFiles) > 0) {
		return nil, usagef([]string{"--sample_files", "--normal_sample_files", "--tumor_sample_files"}, "normal and tumor input file switches cannot be used with sample input switch")
	}
	if a.DataDir != "" && a.DataFile != "" {
		return nil, usagef([]string{"--data_dir", "--data_file"}, "--data_dir and --data_file cannot be used together")
	}
	if a.Cores < 1 {
		return nil, usagef([]string{"--num_cores"}, "--num_cores must be positive, got %d", a.Cores)
	}
	for _, g := range []struct {
		flag  string
		paths []string
	}{
		{"--sample_files", a.SampleFiles},
		{"--tumor_sample_files", a.TumorFiles},
		{"--normal_sample_files", a.NormalFiles},
	} {
		for _, p := range g.paths {
			if strings.TrimSpace(p) == "" {
				return nil, usagef([]string{g.flag}, "%s was given an empty path", g.flag)
			}
		}
	}

	o := &RunOptions{
		Mode:        ModeGermline,
		SV:          sv,
		SampleFiles: copyStrings(a.SampleFiles),
		TumorFiles:  copyStrings(a.TumorFiles),
		NormalFiles: copyStrings(a.NormalFiles),
		BedFile:     a.BedFile,
		DataDir:     a.DataDir,
		DataFile:    a.DataFile,
		OutputDir:   a.OutputDir,
		RunName:     a.RunName,
		Cores:       a.Cores,
		GATKFile:    a.GATKFile,
		Genome:      a.Genome,
		Aligner:     a.Aligner,
		Mount:       a.Mount,
		GATKDir:     a.GATKDir,
	}
	if requested[Cancer] {
		o.Mode = ModeCancer
	}
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.RunName == "" {
		o.RunName = DefaultRunName
	}
	if o.Genome == "" {
		o.Genome = DefaultGenome
	}
	if o.Aligner == "" {
		o.Aligner = DefaultAligner
	}
	if o.Mount == "" {
		o.Mount = DefaultMount
	}
	if o.GATKDir == "" {
		o.GATKDir = DefaultGATKDir
	}
	return o, nil
}

// Parse parses argv (without the program name) and validates the result.
func Parse(argv []string) (*RunOptions, error) {
	a := NewArgs()
	p, err := arg.NewParser(arg.Config{Program: "bcbiorun"}, &a)
	if err != nil {
		return nil, errors.Wrap(err, "error building argument parser")
	}
	if err := p.Parse(argv); err != nil {
		return nil, err
	}
	return Validate(a)
}

// MustParse is Parse for main: help and version go to stdout and exit 0,
// any error prints usage and exits through the parser.
func MustParse(program string, argv []string) *RunOptions {
	a := NewArgs()
	p, err := arg.NewParser(arg.Config{Program: program}, &a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	switch err := p.Parse(argv); {
	case err == arg.ErrHelp:
		p.WriteHelp(os.Stdout)
		os.Exit(0)
	case err == arg.ErrVersion:
		fmt.Fprintln(os.Stdout, a.Version())
		os.Exit(0)
	case err != nil:
		p.Fail(err.Error())
	}
	o, err := Validate(a)
	if err != nil {
		p.Fail(err.Error())
	}
	return o
}

// WriteUsage writes the flag summary, used by the sub-command dispatcher.
func WriteUsage(w io.Writer, program string) {
	a := NewArgs()
	p, err := arg.NewParser(arg.Config{Program: program}, &a)
	if err != nil {
		return
	}
	p.WriteUsage(w)
}

func knownWorkflow(w Workflow) bool {
	for _, k := range workflows {
		if k == w {
			return true
		}
	}
	return false
}

func joinWorkflows() string {
	s := make([]string, len(workflows))
	for i, w := range workflows {
		s[i] = string(w)
	}
	return strings.Join(s, ", ")
}

func copyStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}
