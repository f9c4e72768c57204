package workflow

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ucsc-cgl/bcbiorun/options"
)

const (
	// WorkDirName is the directory under the current directory that bcbio works in.
	WorkDirName = "work"
	// ProjectFile is the name of the project document inside the work directory.
	ProjectFile = "bcbio_project.yaml"
	// SystemFile is the name of the system-resources document in the galaxy directory.
	SystemFile = "bcbio_system.yaml"

	TimestampLayout = "2006-01-02_15-04-05"
)

// SVCallers are added to every sample when structural variant calling is requested.
var SVCallers = []string{"cnvkit", "lumpy", "delly"}

// Context holds every value that is placed into a project document.
// Empty strings and nil lists mean the feature was not requested.
type Context struct {
	WorkingDir string
	OutputDir  string
	BedFile    string
	RunName    string
	Timestamp  string

	SampleFiles []string
	NormalFiles []string
	TumorFiles  []string

	SVCallers []string
}

// NewContext derives the Context for o. now is captured once by the caller
// so that repeated renders are identical.
func NewContext(o *options.RunOptions, cwd string, now time.Time) Context {
	ctx := Context{
		WorkingDir:  WorkDir(cwd),
		OutputDir:   o.OutputDir,
		BedFile:     o.BedFile,
		RunName:     o.RunName,
		Timestamp:   now.Format(TimestampLayout),
		SampleFiles: o.SampleFiles,
		NormalFiles: o.NormalFiles,
		TumorFiles:  o.TumorFiles,
	}
	if ctx.OutputDir == "" {
		ctx.OutputDir = options.DefaultOutputDir
	}
	if ctx.RunName == "" {
		ctx.RunName = options.DefaultRunName
	}
	if o.SV {
		ctx.SVCallers = append([]string(nil), SVCallers...)
	}
	return ctx
}

// WorkDir is always cwd/work.
func WorkDir(cwd string) string {
	return filepath.Join(cwd, WorkDirName)
}

// FileList joins a file group into the inline list form, keeping order.
func FileList(files []string) string {
	return strings.Join(files, ",")
}

// MissingKeyError is returned when a file group the mode needs is empty.
type MissingKeyError struct {
	Key  string
	Mode options.Mode
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing value for %s required by %s", e.Key, e.Mode)
}
