package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ucsc-cgl/bcbiorun"
	"github.com/ucsc-cgl/bcbiorun/launch"
	"github.com/ucsc-cgl/bcbiorun/options"
	"github.com/ucsc-cgl/bcbiorun/shared"
	"github.com/valyala/fasttemplate"
)

type progPair struct {
	name string
	help string
	main func()
}

var progs = []progPair{
	progPair{"run", "write the bcbio project, stage reference data and run bcbio (default)", launch.Main},
	progPair{"render", "check inputs and print the bcbio project that run would write", launch.RenderMain},
	progPair{"system", "print the bcbio system-resources document for this host", launch.SystemMain},
}

func Description() string {
	tmpl := `bcbiorun version: {{version}}

bcbiorun configures and runs bcbio-nextgen. Programs with 'Y' are found on your $PATH. Only those with '*' are required.

 *[{{bcbio}}] bcbio_nextgen.py [runs the workflow and downloads reference data]
  [{{gatk}}] gatk-register [only needed with --GATK_file]

Available sub-commands are below. Each can be run with -h for additional help.
Flags without a sub-command are passed to run.

`
	t := fasttemplate.New(tmpl, "{{", "}}")

	vars := map[string]interface{}{
		"version": bcbiorun.Version,
		"bcbio":   shared.HasProg("bcbio_nextgen.py"),
		"gatk":    shared.HasProg("gatk-register"),
	}
	return t.ExecuteString(vars)
}

func printProgs() {

	var wtr io.Writer = os.Stdout

	fmt.Fprint(wtr, Description())
	l := 5
	for _, p := range progs {
		if len(p.name) > l {
			l = len(p.name)
		}
	}
	fmtr := "%-" + strconv.Itoa(l) + "s : %s\n"

	for _, p := range progs {
		fmt.Fprintf(wtr, fmtr, p.name, p.help)
	}
	fmt.Fprintln(wtr)
	options.WriteUsage(wtr, "bcbiorun run")
	os.Exit(1)

}

func get(name string) (*progPair, bool) {
	for _, p := range progs {
		if p.name == name {
			return &p, true
		}
	}
	return nil, false
}

func main() {

	if len(os.Args) < 2 {
		printProgs()
	}
	var p *progPair
	var ok bool
	if strings.HasPrefix(os.Args[1], "-") {
		// bare flags, as the container entrypoint passes them.
		p, _ = get("run")
	} else if p, ok = get(os.Args[1]); !ok {
		printProgs()
	} else {
		// remove the prog name from the call
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}
	shared.Slogger.Printf("starting with version %s", bcbiorun.Version)
	(*p).main()
}
