package launch

import (
	"context"
	"os"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/ucsc-cgl/bcbiorun"
	"github.com/ucsc-cgl/bcbiorun/options"
	"github.com/ucsc-cgl/bcbiorun/preflight"
	"github.com/ucsc-cgl/bcbiorun/shared"
	"github.com/ucsc-cgl/bcbiorun/workflow"
)

// Main is the run sub-command: the whole flow, exiting with the pipeline's status.
func Main() {
	o := options.MustParse("bcbiorun run", os.Args[1:])
	code, err := Run(context.Background(), Config{}, o)
	if err != nil {
		shared.Slogger.Printf("ERROR: %s", err)
	}
	os.Exit(code)
}

// RenderMain prints the project document that run would write, without
// touching the filesystem.
func RenderMain() {
	o := options.MustParse("bcbiorun render", os.Args[1:])
	if err := preflight.Check(o); err != nil {
		shared.Slogger.Fatalf("ERROR: %s", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		shared.Slogger.Fatal(err)
	}
	b, err := workflow.Render(o.Mode, workflow.NewContext(o, cwd, time.Now()))
	if err != nil {
		shared.Slogger.Fatalf("ERROR: %s", err)
	}
	os.Stdout.Write(b)
}

type systemArgs struct {
	Cores int    `arg:"-c,--num_cores" help:"cores available to bcbio (default: all processors)."`
	Mount string `arg:"--mount,env:BCBIORUN_MOUNT" help:"reference data mount point inside the container."`
}

func (systemArgs) Description() string {
	return "print the bcbio system-resources document for this host"
}

func (systemArgs) Version() string {
	return "bcbiorun " + bcbiorun.Version
}

// SystemMain prints the system-resources document.
func SystemMain() {
	cli := systemArgs{Cores: workflow.DetectCores(), Mount: options.DefaultMount}
	p := arg.MustParse(&cli)
	if cli.Cores < 1 {
		p.Fail("--num_cores must be positive")
	}
	b, err := workflow.RenderSystem(cli.Cores, cli.Mount)
	if err != nil {
		shared.Slogger.Fatal(err)
	}
	os.Stdout.Write(b)
}
