package reference

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun/shared"
)

// Extract unpacks the tar archive at path (plain or gzip compressed) into dest.
// Entries that would land outside dest are rejected.
func Extract(path, dest string) error {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return errors.Wrapf(err, "error opening reference archive %s", path)
	}
	defer rdr.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return errors.Wrapf(err, "error creating %s", dest)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	shared.Slogger.Printf("untarring bcbio data file %s in %s", path, dest)
	tr := tar.NewReader(rdr)
	n := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "error reading reference archive %s", path)
		}
		target, err := within(root, hdr.Name)
		if err != nil {
			return err
		}
		if err := extractEntry(tr, hdr, target, root); err != nil {
			return errors.Wrapf(err, "error extracting %s", hdr.Name)
		}
		n++
	}
	if n == 0 {
		return errors.Errorf("reference archive %s is empty", path)
	}
	shared.Slogger.Printf("bcbio data file %s untarred in %s (%d entries)", path, dest, n)
	return nil
}

func inside(root, p string) bool {
	p = filepath.Clean(p)
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

func within(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if !inside(root, target) {
		return "", errors.Errorf("archive entry %q escapes %s", name, root)
	}
	return target, nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, target, root string) error {
	mode := os.FileMode(hdr.Mode).Perm()
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case tar.TypeSymlink:
		// relative links are resolved against the link's directory.
		dst := hdr.Linkname
		if !filepath.IsAbs(dst) {
			dst = filepath.Join(filepath.Dir(target), dst)
		}
		if !inside(root, dst) {
			return errors.Errorf("link %q points outside %s", hdr.Linkname, root)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		src, err := within(root, hdr.Linkname)
		if err != nil {
			return err
		}
		os.Remove(target)
		return os.Link(src, target)
	}
	shared.Slogger.Warnf("skipping unsupported archive entry %s (type %c)", hdr.Name, hdr.Typeflag)
	return nil
}
