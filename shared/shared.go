package shared

import (
	"io"
	"log"
	"os"
	"os/exec"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
)

const Prefix = "[bcbiorun]"

type Logger struct {
	*log.Logger
}

// Write lets a Logger stand in as the Stdout/Stderr of a child process.
func (l *Logger) Write(b []byte) (int, error) {
	l.Logger.Printf("%s", b)
	return len(b), nil
}

// Warnf logs a non-fatal problem.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.Logger.Printf("WARNING: "+format, v...)
}

var Slogger *Logger

func init() {
	l := log.New(os.Stderr, Prefix+" ", log.Ldate|log.Ltime)
	Slogger = &Logger{Logger: l}
}

// HasProg returns "Y" if p is found on the $PATH.
func HasProg(p string) string {
	if _, err := exec.LookPath(p); err == nil {
		return "Y"
	}
	return " "
}

// IsEmptyDir reports whether path is a directory with no entries.
// A missing path is reported as an error.
func IsEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}

// IsNonEmptyDir is true only for an existing directory holding at least one entry.
func IsNonEmptyDir(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return false
	}
	empty, err := IsEmptyDir(path)
	return err == nil && !empty
}

// WriteFile writes data next to path and renames it into place, so readers
// never see a partial document.
func WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	w, err := xopen.Wopen(tmp)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", tmp)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "error writing %s", tmp)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "error writing %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "error moving %s into place", path)
}
