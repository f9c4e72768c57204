// Package workflow builds the bcbio-nextgen project and system documents.
//
// Documents are assembled as typed records and serialized with yaml.v3, so
// optional settings are dropped by omitempty instead of being substituted
// as empty text into a template.
package workflow

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun"
	"github.com/ucsc-cgl/bcbiorun/options"
	"gopkg.in/yaml.v3"
)

const (
	GenomeBuild = "GRCh37"
	Analysis    = "variant2"
)

// Project is a bcbio project (sample) document.
type Project struct {
	Details   []Sample  `yaml:"details"`
	FcDate    string    `yaml:"fc_date"`
	FcName    string    `yaml:"fc_name"`
	Upload    Upload    `yaml:"upload"`
	Resources Resources `yaml:"resources"`
}

type Sample struct {
	Algorithm   Algorithm `yaml:"algorithm"`
	Analysis    string    `yaml:"analysis"`
	Description string    `yaml:"description"`
	Files       []string  `yaml:"files,flow"`
	GenomeBuild string    `yaml:"genome_build"`
	Metadata    Metadata  `yaml:"metadata"`
}

type Algorithm struct {
	Aligner           string    `yaml:"aligner"`
	AlignSplitSize    int       `yaml:"align_split_size"`
	NomapSplitTargets int       `yaml:"nomap_split_targets,omitempty"`
	MarkDuplicates    bool      `yaml:"mark_duplicates"`
	Recalibrate       bool      `yaml:"recalibrate"`
	Realign           bool      `yaml:"realign"`
	RemoveLCR         bool      `yaml:"remove_lcr"`
	Platform          string    `yaml:"platform,omitempty"`
	QualityFormat     string    `yaml:"quality_format,omitempty"`
	VariantCaller     []string  `yaml:"variantcaller,flow"`
	IndelCaller       *bool     `yaml:"indelcaller,omitempty"`
	Ensemble          *Ensemble `yaml:"ensemble,omitempty"`
	VariantRegions    string    `yaml:"variant_regions,omitempty"`
	SVCaller          []string  `yaml:"svcaller,flow,omitempty"`
}

type Ensemble struct {
	NumPass int `yaml:"numpass"`
}

type Metadata struct {
	Batch     string `yaml:"batch"`
	Phenotype string `yaml:"phenotype,omitempty"`
}

type Upload struct {
	Dir string `yaml:"dir"`
}

type Resources struct {
	Tmp Tmp `yaml:"tmp"`
}

type Tmp struct {
	Dir string `yaml:"dir"`
}

// germline calling keeps alignment post-processing light.
func germlineAlgorithm() Algorithm {
	return Algorithm{
		Aligner:        "bwa",
		AlignSplitSize: 5000000,
		MarkDuplicates: true,
		Recalibrate:    false,
		Realign:        false,
		RemoveLCR:      true,
		VariantCaller:  []string{"freebayes", "gatk-haplotype", "platypus", "samtools"},
	}
}

// tumor/normal calling with recalibration, realignment and an ensemble of callers.
func cancerAlgorithm() Algorithm {
	f := false
	return Algorithm{
		Aligner:           "bwa",
		AlignSplitSize:    5000000,
		NomapSplitTargets: 100,
		MarkDuplicates:    true,
		Recalibrate:       true,
		Realign:           true,
		RemoveLCR:         true,
		Platform:          "illumina",
		QualityFormat:     "standard",
		VariantCaller:     []string{"mutect2", "freebayes", "vardict", "varscan"},
		IndelCaller:       &f,
		Ensemble:          &Ensemble{NumPass: 2},
	}
}

func (ctx Context) algorithm(base func() Algorithm) Algorithm {
	a := base()
	a.VariantRegions = ctx.BedFile
	if len(ctx.SVCallers) > 0 {
		a.SVCaller = append([]string(nil), ctx.SVCallers...)
	}
	return a
}

func (ctx Context) sample(base func() Algorithm, description, phenotype string, files []string) Sample {
	return Sample{
		Algorithm:   ctx.algorithm(base),
		Analysis:    Analysis,
		Description: description,
		Files:       append([]string(nil), files...),
		GenomeBuild: GenomeBuild,
		Metadata:    Metadata{Batch: ctx.RunName, Phenotype: phenotype},
	}
}

func (ctx Context) project(details ...Sample) *Project {
	return &Project{
		Details:   details,
		FcDate:    ctx.Timestamp,
		FcName:    ctx.RunName,
		Upload:    Upload{Dir: ctx.OutputDir},
		Resources: Resources{Tmp: Tmp{Dir: ctx.WorkingDir}},
	}
}

func germline(ctx Context) (*Project, error) {
	if len(ctx.SampleFiles) == 0 {
		return nil, &MissingKeyError{Key: "sample_files", Mode: options.ModeGermline}
	}
	return ctx.project(ctx.sample(germlineAlgorithm, ctx.RunName, "", ctx.SampleFiles)), nil
}

func cancer(ctx Context) (*Project, error) {
	if len(ctx.NormalFiles) == 0 {
		return nil, &MissingKeyError{Key: "normal_sample_files", Mode: options.ModeCancer}
	}
	if len(ctx.TumorFiles) == 0 {
		return nil, &MissingKeyError{Key: "tumor_sample_files", Mode: options.ModeCancer}
	}
	return ctx.project(
		ctx.sample(cancerAlgorithm, ctx.RunName+"-normal", "normal", ctx.NormalFiles),
		ctx.sample(cancerAlgorithm, ctx.RunName+"-tumor", "tumor", ctx.TumorFiles),
	), nil
}

var builders = map[options.Mode]func(Context) (*Project, error){
	options.ModeGermline: germline,
	options.ModeCancer:   cancer,
}

// Build selects the template for mode and fills it from ctx.
func Build(mode options.Mode, ctx Context) (*Project, error) {
	b, ok := builders[mode]
	if !ok {
		return nil, errors.Errorf("no project template for %s", mode)
	}
	return b(ctx)
}

// Render returns the project document for mode as YAML.
func Render(mode options.Mode, ctx Context) ([]byte, error) {
	p, err := Build(mode, ctx)
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("bcbio-nextgen %s project written by bcbiorun %s", mode, bcbiorun.Version)
	return encode(p, header)
}

func encode(v interface{}, header string) ([]byte, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, errors.Wrap(err, "error building yaml document")
	}
	n.HeadComment = header
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&n); err != nil {
		return nil, errors.Wrap(err, "error encoding yaml document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "error encoding yaml document")
	}
	return buf.Bytes(), nil
}
