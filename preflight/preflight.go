// Package preflight checks run inputs before anything is written, so a bad
// path fails in seconds rather than hours into a pipeline run.
package preflight

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/biogo/store/interval"
	"github.com/brentp/go-athenaeum/unsplit"
	"github.com/brentp/xopen"
	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun/options"
	"github.com/ucsc-cgl/bcbiorun/shared"
)

// Kind is the sequence file format guessed from the file name.
type Kind int

const (
	Unknown Kind = iota
	FASTQ
	BAM
)

func (k Kind) String() string {
	switch k {
	case FASTQ:
		return "fastq"
	case BAM:
		return "bam"
	}
	return "unknown"
}

// KindOf guesses the format from the extension.
func KindOf(path string) Kind {
	p := strings.ToLower(path)
	p = strings.TrimSuffix(p, ".gz")
	switch {
	case strings.HasSuffix(p, ".bam"):
		return BAM
	case strings.HasSuffix(p, ".fq"), strings.HasSuffix(p, ".fastq"):
		return FASTQ
	}
	return Unknown
}

// Input is one checked sequence file.
type Input struct {
	Group   string
	Path    string
	Kind    Kind
	Samples []string // read group SM values, BAM only.
	// Remote inputs (s3://, https://, ...) are handed to bcbio unchecked.
	Remote bool
}

// IsRemote reports whether path is an object store or web URI.
func IsRemote(path string) bool {
	return strings.Contains(path, "://")
}

// Error reports an unusable input.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

// Regions summarizes a BED file.
type Regions struct {
	Path   string
	Count  int
	Span   int
	Chroms int
	// Overlapping counts regions that overlap an earlier region on the same chromosome.
	Overlapping int
}

// half-open BED interval.
type region struct {
	start, end int
	uid        uintptr
}

func (r region) Overlap(b interval.IntRange) bool {
	return r.end > b.Start && r.start < b.End
}
func (r region) ID() uintptr              { return r.uid }
func (r region) Range() interval.IntRange { return interval.IntRange{Start: r.start, End: r.end} }

// Inputs checks every file group in o.
func Inputs(o *options.RunOptions) ([]Input, error) {
	var inputs []Input
	for _, g := range []struct {
		name  string
		paths []string
	}{
		{"sample_files", o.SampleFiles},
		{"normal_sample_files", o.NormalFiles},
		{"tumor_sample_files", o.TumorFiles},
	} {
		for _, p := range g.paths {
			in, err := checkInput(g.name, p)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
	}
	return inputs, nil
}

func checkInput(group, path string) (Input, error) {
	in := Input{Group: group, Path: path, Kind: KindOf(path)}
	if IsRemote(path) {
		in.Remote = true
		shared.Slogger.Printf("%s is a remote file; passing it to bcbio unchecked", path)
		return in, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return in, &Error{Path: path, Err: err}
	}
	if fi.IsDir() {
		return in, &Error{Path: path, Err: errors.New("is a directory")}
	}
	if fi.Size() == 0 {
		return in, &Error{Path: path, Err: errors.New("empty file")}
	}
	switch in.Kind {
	case BAM:
		in.Samples, err = bamSamples(path)
	case FASTQ:
		err = fastqHead(path)
	default:
		shared.Slogger.Warnf("can't tell the format of %s from its name; passing it to bcbio unchecked", path)
	}
	if err != nil {
		return in, &Error{Path: path, Err: err}
	}
	return in, nil
}

func bamSamples(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, errors.Wrap(err, "unreadable bam header")
	}
	defer br.Close()
	sm := sam.NewTag("SM")
	var samples []string
	for _, rg := range br.Header().RGs() {
		if s := rg.Get(sm); s != "" {
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func fastqHead(path string) error {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return err
	}
	defer rdr.Close()
	b, err := rdr.ReadByte()
	if err != nil {
		return errors.Wrap(err, "error reading fastq")
	}
	if b != '@' {
		return errors.Errorf("expected fastq record to start with '@', found %q", b)
	}
	return nil
}

// BED checks that every data line of path is a valid interval.
func BED(path string) (*Regions, error) {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer rdr.Close()
	r := &Regions{Path: path}
	trees := make(map[string]*interval.IntTree, 24)
	for lineno := 1; ; lineno++ {
		line, err := rdr.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) != 0 && !skipBEDLine(line) {
				chrom, start, end, perr := parseInterval(line)
				if perr != nil {
					return nil, &Error{Path: path, Err: errors.Wrapf(perr, "line %d", lineno)}
				}
				r.Count++
				r.Span += end - start

				t, ok := trees[chrom]
				if !ok {
					t = &interval.IntTree{}
					trees[chrom] = t
				}
				iv := region{start: start, end: end, uid: uintptr(r.Count)}
				if len(t.Get(iv)) > 0 {
					r.Overlapping++
				}
				if ierr := t.Insert(iv, false); ierr != nil {
					return nil, &Error{Path: path, Err: errors.Wrapf(ierr, "line %d", lineno)}
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	}
	if r.Count == 0 {
		return nil, &Error{Path: path, Err: errors.New("no regions in bed file")}
	}
	r.Chroms = len(trees)
	return r, nil
}

func skipBEDLine(line []byte) bool {
	return line[0] == '#' || bytes.HasPrefix(line, []byte("track")) || bytes.HasPrefix(line, []byte("browser"))
}

func parseInterval(line []byte) (string, int, int, error) {
	toks := unsplit.New(line, []byte{'\t'})
	chrom := toks.Next()
	if len(chrom) == 0 {
		return "", 0, 0, errors.New("missing chromosome")
	}
	s, e := toks.Next(), toks.Next()
	if s == nil || e == nil {
		return "", 0, 0, errors.New("expected at least 3 tab-delimited columns")
	}
	start, err := strconv.Atoi(string(s))
	if err != nil {
		return "", 0, 0, errors.Wrap(err, "bad start")
	}
	end, err := strconv.Atoi(string(e))
	if err != nil {
		return "", 0, 0, errors.Wrap(err, "bad end")
	}
	if start < 0 || end <= start {
		return "", 0, 0, errors.Errorf("bad interval %d-%d", start, end)
	}
	return string(chrom), start, end, nil
}

// Check runs all input checks for o and logs what it found.
func Check(o *options.RunOptions) error {
	inputs, err := Inputs(o)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		if len(in.Samples) > 0 {
			shared.Slogger.Printf("%s: %s (%s) read groups for %s", in.Group, in.Path, in.Kind, strings.Join(in.Samples, ","))
		} else {
			shared.Slogger.Printf("%s: %s (%s)", in.Group, in.Path, in.Kind)
		}
	}
	if o.BedFile == "" {
		shared.Slogger.Printf("no bed file given; calling across the whole genome")
		return nil
	}
	r, err := BED(o.BedFile)
	if err != nil {
		return err
	}
	shared.Slogger.Printf("bed file %s: %d regions on %d chromosomes covering %d bases", r.Path, r.Count, r.Chroms, r.Span)
	if r.Overlapping > 0 {
		shared.Slogger.Warnf("%d regions in %s overlap an earlier region", r.Overlapping, r.Path)
	}
	return nil
}
