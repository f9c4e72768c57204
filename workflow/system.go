package workflow

import (
	"path/filepath"
	"runtime"

	"github.com/ucsc-cgl/bcbiorun"
	"github.com/ucsc-cgl/bcbiorun/options"
	"github.com/ucsc-cgl/bcbiorun/shared"
)

// System is the bcbio system-resources document.
type System struct {
	Resources    map[string]ToolResources `yaml:"resources"`
	GalaxyConfig string                   `yaml:"galaxy_config"`
}

// ToolResources are the limits for one named tool stage.
type ToolResources struct {
	Cores   int      `yaml:"cores,omitempty"`
	JVMOpts []string `yaml:"jvm_opts,omitempty"`
	Memory  string   `yaml:"memory,omitempty"`
}

// NewSystem returns the default resources for a host with cores processors.
// The document is meant to be edited later to match the machine.
func NewSystem(cores int, mount string) *System {
	return &System{
		Resources: map[string]ToolResources{
			"default":    {Cores: cores, JVMOpts: []string{"-Xms750m", "-Xmx3500m"}, Memory: "3G"},
			"dexseq":     {Memory: "10g"},
			"express":    {Memory: "8g"},
			"gatk":       {JVMOpts: []string{"-Xms500m", "-Xmx3500m"}},
			"macs2":      {Memory: "8g"},
			"qualimap":   {Memory: "4g"},
			"seqcluster": {Memory: "8g"},
			"snpeff":     {JVMOpts: []string{"-Xms750m", "-Xmx4g"}},
		},
		GalaxyConfig: filepath.Join(mount, "galaxy") + "/",
	}
}

// RenderSystem returns the system-resources document as YAML.
func RenderSystem(cores int, mount string) ([]byte, error) {
	return encode(NewSystem(cores, mount), "bcbio-nextgen system resources written by bcbiorun "+bcbiorun.Version)
}

var numCPU = runtime.NumCPU

// DetectCores returns the processor count, or options.DefaultCores with a
// warning when it can't be determined.
func DetectCores() int {
	n := numCPU()
	if n < 1 {
		shared.Slogger.Warnf("could not get actual core count; using default: %d", options.DefaultCores)
		return options.DefaultCores
	}
	return n
}
