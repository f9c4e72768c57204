// Package reference stages the genome reference data bcbio reads from its
// fixed mount point.
package reference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
	"github.com/ucsc-cgl/bcbiorun/shared"
	"github.com/ucsc-cgl/bcbiorun/workflow"
)

const (
	GalaxyDir  = "galaxy"
	GenomesDir = "genomes"
	// DataDirName is used under the current directory when no --data_dir is given.
	DataDirName = "data"
)

// Layout is the reference data mount point seen by bcbio.
type Layout struct {
	Mount string
}

func (l Layout) Galaxy() string  { return filepath.Join(l.Mount, GalaxyDir) }
func (l Layout) Genomes() string { return filepath.Join(l.Mount, GenomesDir) }

// SystemConfig is where bcbio looks for its system-resources document.
func (l Layout) SystemConfig() string {
	return filepath.Join(l.Galaxy(), workflow.SystemFile)
}

// EnvironmentError is a missing or unusable host directory.
type EnvironmentError struct {
	Path string
	Hint string
	Err  error
}

func (e *EnvironmentError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Path, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Downloader fetches genome data into the mount point.
type Downloader interface {
	Upgrade(ctx context.Context, genome, aligner string) error
}

// Provisioner makes reference data available under Layout.
type Provisioner struct {
	Layout     Layout
	Downloader Downloader
	Genome     string
	Aligner    string
}

// DataDir resolves the host data directory: dataDir if set, else cwd/data.
func DataDir(cwd, dataDir string) string {
	if dataDir != "" {
		return dataDir
	}
	return filepath.Join(cwd, DataDirName)
}

// Prepare creates dataDir and, when archive is set, unpacks it there.
func (p *Provisioner) Prepare(dataDir, archive string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return &EnvironmentError{Path: dataDir, Err: err, Hint: "check that the data directory is writable"}
	}
	if archive == "" {
		return nil
	}
	return Extract(archive, dataDir)
}

// CheckMount fails when the reference mount point is missing, which usually
// means the container was started without a volume for it.
func (p *Provisioner) CheckMount() error {
	if !isDir(p.Layout.Mount) {
		return &EnvironmentError{Path: p.Layout.Mount, Err: errors.New("reference mount point is not a directory"),
			Hint: fmt.Sprintf("did you mount a volume to %s?", p.Layout.Mount)}
	}
	return nil
}

// Provision links dataDir into the mount point and downloads genome data
// when dataDir is empty. Existing data is trusted as is.
func (p *Provisioner) Provision(ctx context.Context, dataDir string, system []byte) error {
	if err := p.CheckMount(); err != nil {
		return err
	}
	if !isDir(dataDir) {
		return &EnvironmentError{Path: dataDir, Err: errors.New("data directory is not a directory"),
			Hint: "did you mount a volume to the data directory?"}
	}
	shared.Slogger.Printf("bcbio reference data dir: %s", dataDir)

	empty, err := shared.IsEmptyDir(dataDir)
	if err != nil {
		return &EnvironmentError{Path: dataDir, Err: err}
	}
	if !empty {
		shared.Slogger.Warnf("the data directory %s is not empty, skipping data download!", dataDir)
		if err := p.link(dataDir); err != nil {
			return err
		}
		if !isDir(p.Layout.Galaxy()) {
			shared.Slogger.Warnf("not writing %s without a %s directory", workflow.SystemFile, GalaxyDir)
			return nil
		}
		return p.writeSystem(system)
	}

	for _, d := range []string{GalaxyDir, GenomesDir} {
		if err := os.MkdirAll(filepath.Join(dataDir, d), 0755); err != nil {
			return &EnvironmentError{Path: dataDir, Err: err}
		}
	}
	if err := p.link(dataDir); err != nil {
		return err
	}
	if err := p.writeSystem(system); err != nil {
		return err
	}
	shared.Slogger.Printf("downloading %s reference data with %s indexes to %s", p.Genome, p.Aligner, dataDir)
	return errors.Wrap(p.Downloader.Upgrade(ctx, p.Genome, p.Aligner), "error downloading reference data")
}

// link points mount/galaxy and mount/genomes at the matching dataDir
// directories. A directory missing from dataDir is not linked.
func (p *Provisioner) link(dataDir string) error {
	for _, d := range []string{GalaxyDir, GenomesDir} {
		src := filepath.Join(dataDir, d)
		if !isDir(src) {
			shared.Slogger.Warnf("%s has no %s directory; not linking %s", dataDir, d, filepath.Join(p.Layout.Mount, d))
			continue
		}
		if err := symlink(src, filepath.Join(p.Layout.Mount, d)); err != nil {
			return err
		}
	}
	return nil
}

func symlink(src, dst string) error {
	asrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	adst, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if asrc == adst {
		return nil
	}
	fi, err := os.Lstat(adst)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return &EnvironmentError{Path: adst, Err: err}
	case fi.Mode()&os.ModeSymlink != 0:
		if cur, _ := os.Readlink(adst); cur == asrc {
			return nil
		}
		if err := os.Remove(adst); err != nil {
			return &EnvironmentError{Path: adst, Err: err}
		}
	default:
		if sfi, serr := os.Stat(asrc); serr == nil && os.SameFile(fi, sfi) {
			return nil
		}
		return &EnvironmentError{Path: adst, Err: errors.New("exists and is not a link"),
			Hint: "remove it or pass its parent as --data_dir"}
	}
	shared.Slogger.Printf("setting symlink %s to point to: %s", adst, asrc)
	if err := os.Symlink(asrc, adst); err != nil {
		return &EnvironmentError{Path: adst, Err: err}
	}
	return nil
}

// writeSystem writes the system document once; an existing one may have been
// tuned by hand and is kept.
func (p *Provisioner) writeSystem(system []byte) error {
	path := p.Layout.SystemConfig()
	if xopen.Exists(path) {
		shared.Slogger.Printf("keeping existing %s", path)
		return nil
	}
	if err := shared.WriteFile(path, system); err != nil {
		return err
	}
	shared.Slogger.Printf("wrote bcbio system config to %s", path)
	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
