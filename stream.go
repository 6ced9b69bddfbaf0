package gitfilter

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ResultsDirName is the directory under the target git dir that owns every
// audit artifact of a run.
const ResultsDirName = "filter-repo"

// Artifact filenames inside the results directory.
const (
	OriginalStreamFile = "fast-export.original"
	FilteredStreamFile = "fast-export.filtered"
	TargetMarksFile    = "target-marks"
	CommitMapFile      = "commit-map"
	RefMapFile         = "ref-map"
	ReportFile         = "report.txt"
	ReportYAMLFile     = "report.yaml"
)

// debugFile is a capture of one side of the stream. Writes go straight to
// the OS so a crash mid-run still leaves usable evidence.
type debugFile struct {
	f *os.File
}

func newDebugFile(dir, name string) (*debugFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &debugFile{f: f}, nil
}

func (d *debugFile) Write(p []byte) (int, error) {
	if d == nil || d.f == nil {
		return len(p), nil
	}
	return d.f.Write(p)
}

func (d *debugFile) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	if err := d.f.Sync(); err != nil {
		return err
	}
	return d.f.Close()
}

// streamWriter fans the filtered stream out to the debug capture and, when
// not in dry-run, the importer's stdin. A broken importer pipe is remembered
// instead of propagated so the run can drain and report the importer's real
// exit status.
type streamWriter struct {
	debug    io.Writer
	importer io.WriteCloser
	broken   bool
}

func newStreamWriter(debug io.Writer, importer io.WriteCloser) *streamWriter {
	return &streamWriter{debug: debug, importer: importer}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if w.debug != nil {
		if _, err := w.debug.Write(p); err != nil {
			return 0, err
		}
	}
	if w.importer != nil && !w.broken {
		if _, err := w.importer.Write(p); err != nil {
			if isBrokenPipe(err) {
				w.broken = true
			} else {
				return 0, err
			}
		}
	}
	return len(p), nil
}

// Broken reports whether the importer closed its end early.
func (w *streamWriter) Broken() bool {
	return w.broken
}

// CloseImporter signals clean end-of-input to the importer.
func (w *streamWriter) CloseImporter() error {
	if w.importer == nil {
		return nil
	}
	err := w.importer.Close()
	w.importer = nil
	return err
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe)
}

// ensureResultsDir resolves and creates <git-dir>/filter-repo for the target
// repository.
func ensureResultsDir(target string) (string, error) {
	gd, err := gitDir(target)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(gd, ResultsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
