package preflight

import (
	"compress/gzip"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun/options"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type PreflightTest struct {
	dir string
}

var _ = Suite(&PreflightTest{})

func (s *PreflightTest) SetUpTest(c *C) {
	s.dir = c.MkDir()
}

func (s *PreflightTest) write(c *C, name, content string) string {
	p := filepath.Join(s.dir, name)
	c.Assert(ioutil.WriteFile(p, []byte(content), 0644), IsNil)
	return p
}

func (s *PreflightTest) writeGz(c *C, name, content string) string {
	p := filepath.Join(s.dir, name)
	f, err := os.Create(p)
	c.Assert(err, IsNil)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	c.Assert(err, IsNil)
	c.Assert(gz.Close(), IsNil)
	c.Assert(f.Close(), IsNil)
	return p
}

func (s *PreflightTest) TestKindOf(c *C) {
	c.Assert(KindOf("a_1.fq"), Equals, FASTQ)
	c.Assert(KindOf("a_1.FASTQ.gz"), Equals, FASTQ)
	c.Assert(KindOf("/x/tumor.bam"), Equals, BAM)
	c.Assert(KindOf("reads.cram"), Equals, Unknown)
	c.Assert(BAM.String(), Equals, "bam")
}

func (s *PreflightTest) TestInputsInOrder(c *C) {
	r1 := s.write(c, "a_1.fq", "@r1\nACGT\n+\nIIII\n")
	r2 := s.writeGz(c, "a_2.fq.gz", "@r1\nACGT\n+\nIIII\n")
	o := &options.RunOptions{SampleFiles: []string{r1, r2}}
	inputs, err := Inputs(o)
	c.Assert(err, IsNil)
	c.Assert(inputs, HasLen, 2)
	c.Assert(inputs[0].Path, Equals, r1)
	c.Assert(inputs[1].Path, Equals, r2)
	c.Assert(inputs[1].Kind, Equals, FASTQ)
	c.Assert(inputs[0].Group, Equals, "sample_files")
}

func (s *PreflightTest) TestMissingInput(c *C) {
	o := &options.RunOptions{TumorFiles: []string{filepath.Join(s.dir, "nope.fq")}}
	_, err := Inputs(o)
	c.Assert(err, NotNil)
	perr, ok := errors.Cause(err).(*Error)
	c.Assert(ok, Equals, true)
	c.Assert(perr.Path, Equals, filepath.Join(s.dir, "nope.fq"))
}

func (s *PreflightTest) TestBadFastq(c *C) {
	p := s.write(c, "bad.fq", ">not-a-fastq\nACGT\n")
	_, err := Inputs(&options.RunOptions{SampleFiles: []string{p}})
	c.Assert(err, ErrorMatches, ".*expected fastq record to start with '@'.*")

	p = s.write(c, "empty.fastq", "")
	_, err = Inputs(&options.RunOptions{SampleFiles: []string{p}})
	c.Assert(err, ErrorMatches, ".*empty file")
}

func (s *PreflightTest) TestBadBam(c *C) {
	p := s.write(c, "tumor.bam", "this is not bgzf")
	_, err := Inputs(&options.RunOptions{TumorFiles: []string{p}})
	c.Assert(err, ErrorMatches, ".*unreadable bam header.*")
}

func (s *PreflightTest) TestUnknownKindPasses(c *C) {
	p := s.write(c, "reads.cram", "CRAM")
	inputs, err := Inputs(&options.RunOptions{NormalFiles: []string{p}})
	c.Assert(err, IsNil)
	c.Assert(inputs[0].Kind, Equals, Unknown)
}

func (s *PreflightTest) TestRemoteInputsUnchecked(c *C) {
	r1 := s.write(c, "n_1.fq", "@r1\nACGT\n+\nIIII\n")
	o := &options.RunOptions{
		NormalFiles: []string{r1},
		TumorFiles:  []string{"s3://bucket/tumor_1.fq.gz", "https://example.org/tumor.bam"},
	}
	inputs, err := Inputs(o)
	c.Assert(err, IsNil)
	c.Assert(inputs, HasLen, 3)
	c.Assert(inputs[0].Remote, Equals, false)
	c.Assert(inputs[1].Remote, Equals, true)
	c.Assert(inputs[1].Kind, Equals, FASTQ)
	c.Assert(inputs[2].Remote, Equals, true)
	c.Assert(inputs[2].Samples, HasLen, 0)
	c.Assert(Check(o), IsNil)
	c.Assert(IsRemote("/data/a_1.fq"), Equals, false)
}

func (s *PreflightTest) TestBED(c *C) {
	p := s.write(c, "regions.bed", "track name=x\n# comment\nchr1\t100\t200\tgene\n\nchr2\t0\t50\n")
	r, err := BED(p)
	c.Assert(err, IsNil)
	c.Assert(r.Count, Equals, 2)
	c.Assert(r.Span, Equals, 150)
	c.Assert(r.Chroms, Equals, 2)
	c.Assert(r.Overlapping, Equals, 0)

	p = s.writeGz(c, "regions.bed.gz", "chr1\t10\t20")
	r, err = BED(p)
	c.Assert(err, IsNil)
	c.Assert(r.Count, Equals, 1)
	c.Assert(r.Span, Equals, 10)
}

func (s *PreflightTest) TestBEDOverlaps(c *C) {
	// intervals are half-open, so chr1:200-300 only touches chr1:100-200.
	p := s.write(c, "overlap.bed", "chr1\t100\t200\nchr1\t200\t300\nchr1\t150\t250\nchr2\t150\t250\nchr1\t120\t130\n")
	r, err := BED(p)
	c.Assert(err, IsNil)
	c.Assert(r.Count, Equals, 5)
	c.Assert(r.Chroms, Equals, 2)
	c.Assert(r.Overlapping, Equals, 2)
}

func (s *PreflightTest) TestBadBED(c *C) {
	for name, content := range map[string]string{
		"short.bed":    "chr1\t100\n",
		"reversed.bed": "chr1\t200\t100\n",
		"text.bed":     "chr1\tstart\tend\n",
		"empty.bed":    "# only a header\n",
	} {
		_, err := BED(s.write(c, name, content))
		c.Assert(err, NotNil, Commentf(name))
	}
	_, err := BED(filepath.Join(s.dir, "missing.bed"))
	c.Assert(err, NotNil)
}

func (s *PreflightTest) TestCheck(c *C) {
	r1 := s.write(c, "a_1.fq", "@r\nA\n+\nI\n")
	bed := s.write(c, "r.bed", "chr1\t1\t2\n")
	c.Assert(Check(&options.RunOptions{SampleFiles: []string{r1}}), IsNil)
	c.Assert(Check(&options.RunOptions{SampleFiles: []string{r1}, BedFile: bed}), IsNil)
	c.Assert(Check(&options.RunOptions{SampleFiles: []string{r1}, BedFile: bed + ".missing"}), NotNil)
}
