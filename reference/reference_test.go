package reference

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type fakeDownloader struct {
	calls [][2]string
	err   error
	touch string
}

func (f *fakeDownloader) Upgrade(ctx context.Context, genome, aligner string) error {
	f.calls = append(f.calls, [2]string{genome, aligner})
	if f.touch != "" {
		ioutil.WriteFile(f.touch, []byte("ACGT"), 0644)
	}
	return f.err
}

type ReferenceTest struct {
	mount string
	data  string
	dl    *fakeDownloader
	p     *Provisioner
}

var _ = Suite(&ReferenceTest{})

func (s *ReferenceTest) SetUpTest(c *C) {
	root := c.MkDir()
	s.mount = filepath.Join(root, "mnt", "biodata")
	s.data = filepath.Join(root, "data")
	c.Assert(os.MkdirAll(s.mount, 0755), IsNil)
	s.dl = &fakeDownloader{}
	s.p = &Provisioner{Layout: Layout{Mount: s.mount}, Downloader: s.dl, Genome: "GRCh37", Aligner: "bwa"}
}

type entry struct {
	name, body, link string
	dir              bool
}

func writeTar(c *C, path string, gz bool, entries []entry) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		h := &tar.Header{Name: e.name, Mode: 0644}
		switch {
		case e.dir:
			h.Typeflag, h.Mode = tar.TypeDir, 0755
		case e.link != "":
			h.Typeflag, h.Linkname = tar.TypeSymlink, e.link
		default:
			h.Typeflag, h.Size = tar.TypeReg, int64(len(e.body))
		}
		c.Assert(tw.WriteHeader(h), IsNil)
		if h.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			c.Assert(err, IsNil)
		}
	}
	c.Assert(tw.Close(), IsNil)
	b := buf.Bytes()
	if gz {
		var zb bytes.Buffer
		zw := gzip.NewWriter(&zb)
		_, err := zw.Write(b)
		c.Assert(err, IsNil)
		c.Assert(zw.Close(), IsNil)
		b = zb.Bytes()
	}
	c.Assert(ioutil.WriteFile(path, b, 0644), IsNil)
}

var referenceEntries = []entry{
	{name: "galaxy/", dir: true},
	{name: "galaxy/tool-data/sam_fa_indices.loc", body: "index\tGRCh37\n"},
	{name: "genomes/Hsapiens/GRCh37/seq/GRCh37.fa", body: ">1\nACGT\n"},
	{name: "genomes/current", link: "Hsapiens/GRCh37"},
}

func (s *ReferenceTest) TestExtract(c *C) {
	for _, gz := range []bool{true, false} {
		dest := filepath.Join(c.MkDir(), "data")
		archive := filepath.Join(c.MkDir(), "biodata.tar.gz")
		writeTar(c, archive, gz, referenceEntries)
		c.Assert(Extract(archive, dest), IsNil)
		b, err := ioutil.ReadFile(filepath.Join(dest, "genomes/Hsapiens/GRCh37/seq/GRCh37.fa"))
		c.Assert(err, IsNil)
		c.Assert(string(b), Equals, ">1\nACGT\n")
		link, err := os.Readlink(filepath.Join(dest, "genomes/current"))
		c.Assert(err, IsNil)
		c.Assert(link, Equals, "Hsapiens/GRCh37")
	}
}

func (s *ReferenceTest) TestExtractRejectsEscapes(c *C) {
	archive := filepath.Join(c.MkDir(), "evil.tar")
	writeTar(c, archive, false, []entry{{name: "../evil", body: "x"}})
	c.Assert(Extract(archive, s.data), ErrorMatches, `archive entry "../evil" escapes .*`)

	archive = filepath.Join(c.MkDir(), "evil-link.tar")
	writeTar(c, archive, false, []entry{{name: "passwd", link: "/etc/passwd"}})
	c.Assert(Extract(archive, s.data), ErrorMatches, `.*points outside.*`)
}

func (s *ReferenceTest) TestExtractErrors(c *C) {
	c.Assert(Extract(filepath.Join(c.MkDir(), "missing.tar.gz"), s.data), NotNil)

	archive := filepath.Join(c.MkDir(), "empty.tar")
	writeTar(c, archive, false, nil)
	c.Assert(Extract(archive, s.data), ErrorMatches, "reference archive .* is empty")
}

func (s *ReferenceTest) TestDataDir(c *C) {
	c.Assert(DataDir("/work/run", ""), Equals, "/work/run/data")
	c.Assert(DataDir("/work/run", "/ref"), Equals, "/ref")
}

func (s *ReferenceTest) TestMissingMount(c *C) {
	s.p.Layout.Mount = filepath.Join(c.MkDir(), "not-mounted")
	c.Assert(os.MkdirAll(s.data, 0755), IsNil)
	err := s.p.Provision(context.Background(), s.data, []byte("sys"))
	env, ok := errors.Cause(err).(*EnvironmentError)
	c.Assert(ok, Equals, true)
	c.Assert(env.Hint, Matches, "did you mount a volume to .*not-mounted\\?")
	c.Assert(s.dl.calls, HasLen, 0)
}

func (s *ReferenceTest) TestCheckMount(c *C) {
	c.Assert(s.p.CheckMount(), IsNil)
	s.p.Layout.Mount = filepath.Join(c.MkDir(), "not-mounted")
	c.Assert(errors.Cause(s.p.CheckMount()), FitsTypeOf, &EnvironmentError{})
	c.Assert(s.p.CheckMount(), ErrorMatches, ".*did you mount a volume to .*not-mounted\\?.*")
}

func (s *ReferenceTest) TestPartialDataDirLinksOnlyWhatExists(c *C) {
	c.Assert(os.MkdirAll(filepath.Join(s.data, "genomes", "Hsapiens"), 0755), IsNil)
	c.Assert(s.p.Provision(context.Background(), s.data, []byte("sys\n")), IsNil)

	link, err := os.Readlink(filepath.Join(s.mount, "genomes"))
	c.Assert(err, IsNil)
	c.Assert(link, Equals, filepath.Join(s.data, "genomes"))
	_, err = os.Lstat(filepath.Join(s.mount, "galaxy"))
	c.Assert(os.IsNotExist(err), Equals, true)
	_, err = os.Stat(filepath.Join(s.data, "galaxy", "bcbio_system.yaml"))
	c.Assert(os.IsNotExist(err), Equals, true)
	c.Assert(s.dl.calls, HasLen, 0)
}

func (s *ReferenceTest) TestMissingDataDir(c *C) {
	err := s.p.Provision(context.Background(), s.data, []byte("sys"))
	_, ok := errors.Cause(err).(*EnvironmentError)
	c.Assert(ok, Equals, true)
}

func (s *ReferenceTest) TestEmptyDataDirDownloads(c *C) {
	c.Assert(s.p.Prepare(s.data, ""), IsNil)
	s.dl.touch = filepath.Join(s.mount, "genomes", "downloaded.fa")
	c.Assert(s.p.Provision(context.Background(), s.data, []byte("resources: {}\n")), IsNil)

	c.Assert(s.dl.calls, DeepEquals, [][2]string{{"GRCh37", "bwa"}})
	for _, d := range []string{GalaxyDir, GenomesDir} {
		link, err := os.Readlink(filepath.Join(s.mount, d))
		c.Assert(err, IsNil)
		c.Assert(link, Equals, filepath.Join(s.data, d))
	}
	b, err := ioutil.ReadFile(filepath.Join(s.data, "galaxy", "bcbio_system.yaml"))
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "resources: {}\n")
	// the download went through the link into the data dir.
	_, err = os.Stat(filepath.Join(s.data, "genomes", "downloaded.fa"))
	c.Assert(err, IsNil)
}

func (s *ReferenceTest) TestDownloadFailureIsFatal(c *C) {
	c.Assert(s.p.Prepare(s.data, ""), IsNil)
	s.dl.err = errors.New("exit status 1")
	err := s.p.Provision(context.Background(), s.data, []byte("sys"))
	c.Assert(err, ErrorMatches, "error downloading reference data: exit status 1")
}

func (s *ReferenceTest) TestArchiveSkipsDownload(c *C) {
	archive := filepath.Join(c.MkDir(), "biodata.tar.gz")
	writeTar(c, archive, true, referenceEntries)
	c.Assert(s.p.Prepare(s.data, archive), IsNil)
	c.Assert(s.p.Provision(context.Background(), s.data, []byte("sys\n")), IsNil)
	c.Assert(s.dl.calls, HasLen, 0)

	b, err := ioutil.ReadFile(filepath.Join(s.mount, "galaxy", "tool-data", "sam_fa_indices.loc"))
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "index\tGRCh37\n")
	b, err = ioutil.ReadFile(filepath.Join(s.mount, "galaxy", "bcbio_system.yaml"))
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "sys\n")
}

func (s *ReferenceTest) TestExistingSystemConfigKept(c *C) {
	c.Assert(os.MkdirAll(filepath.Join(s.data, "galaxy"), 0755), IsNil)
	c.Assert(os.MkdirAll(filepath.Join(s.data, "genomes"), 0755), IsNil)
	sys := filepath.Join(s.data, "galaxy", "bcbio_system.yaml")
	c.Assert(ioutil.WriteFile(sys, []byte("tuned\n"), 0644), IsNil)

	c.Assert(s.p.Provision(context.Background(), s.data, []byte("default\n")), IsNil)
	// running again with links already in place is fine.
	c.Assert(s.p.Provision(context.Background(), s.data, []byte("default\n")), IsNil)
	b, err := ioutil.ReadFile(sys)
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "tuned\n")
	c.Assert(s.dl.calls, HasLen, 0)
}

func (s *ReferenceTest) TestDataDirIsMount(c *C) {
	s.p.Layout.Mount = s.data
	c.Assert(s.p.Prepare(s.data, ""), IsNil)
	c.Assert(s.p.Provision(context.Background(), s.data, []byte("sys\n")), IsNil)
	fi, err := os.Lstat(filepath.Join(s.data, "galaxy"))
	c.Assert(err, IsNil)
	c.Assert(fi.IsDir(), Equals, true)
	c.Assert(s.dl.calls, HasLen, 1)
}

func (s *ReferenceTest) TestMountDirInTheWay(c *C) {
	c.Assert(os.MkdirAll(filepath.Join(s.mount, "galaxy"), 0755), IsNil)
	c.Assert(s.p.Prepare(s.data, ""), IsNil)
	err := s.p.Provision(context.Background(), s.data, []byte("sys"))
	c.Assert(err, ErrorMatches, ".*exists and is not a link.*")
}
