package gitfilter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// engine is the single-owner state of one run, threaded through the commit
// and tag pipelines instead of living in package globals.
type engine struct {
	opts       *Options
	resultsDir string

	marks  *MarkTable
	oids   *OIDMapper
	report *Report

	// blob oids known oversize from the batch pre-scan
	oversizeOIDs map[string]empty
	// marks of blobs dropped because of the id list (vs. size)
	idDroppedMarks map[Mark]empty
	// hex-referenced blob oids already counted in the report
	countedOIDs map[string]empty

	// original ref -> post-rename ref, plus observation order
	seenRefs map[string]string
	refOrder []string
	// post-rename ref -> last mark that positioned it
	refTips map[string]Mark
	// post-rename branch refs touched by the stream
	updatedBranches map[string]empty
	// ref oids of the source before the run, for the ref-map
	sourceRefs map[string]string

	// tag pipeline buffers
	annotated      map[string]*TagRecord
	annotatedOrder []string
	lightweight    map[string]*ResetRecord
	lwOrder        []string
}

func newEngine(opts *Options, resultsDir string) *engine {
	return &engine{
		opts:            opts,
		resultsDir:      resultsDir,
		marks:           NewMarkTable(),
		oids:            NewOIDMapper(),
		report:          &Report{},
		oversizeOIDs:    make(map[string]empty),
		idDroppedMarks:  make(map[Mark]empty),
		countedOIDs:     make(map[string]empty),
		seenRefs:        make(map[string]string),
		refTips:         make(map[string]Mark),
		updatedBranches: make(map[string]empty),
		annotated:       make(map[string]*TagRecord),
		lightweight:     make(map[string]*ResetRecord),
	}
}

// Run executes one full rewrite: subprocess setup, the streaming filter, and
// finalization. Before the export, the sensitive-mode fetch and the
// origin-to-heads migration may change the source's refs in the modes that
// enable them. The importer writes the rewritten objects and positions the
// refs it imports; the finalizer's batched update then pins the tips and
// deletes renamed-away refs and stale replace refs.
func Run(opts *Options) error {
	if _, err := gitDir(opts.Source); err != nil {
		return fmt.Errorf("source %s: %w", opts.Source, err)
	}
	if _, err := gitDir(opts.Target); err != nil {
		return fmt.Errorf("target %s: %w", opts.Target, err)
	}
	resultsDir, err := ensureResultsDir(opts.Target)
	if err != nil {
		return err
	}

	if opts.Backup {
		bundle, err := CreateBackup(opts)
		if err != nil {
			return err
		}
		if bundle != "" {
			logger.Info("backup bundle written", "path", bundle)
		}
	}

	fetchAllRefsIfNeeded(opts)
	if err := migrateOriginToHeads(opts); err != nil {
		return err
	}

	e := newEngine(opts, resultsDir)
	e.loadPreviousCommitMap()

	if opts.MaxBlobSize > 0 && opts.FEStreamOverride == "" {
		oversize, err := oversizeBlobs(opts.Source, opts.MaxBlobSize)
		if err != nil {
			logger.Warn("batch blob size pre-computation failed, sizes come from the stream only", "err", err)
		} else {
			e.oversizeOIDs = oversize
		}
	}

	if refs, err := allRefs(opts.Source); err == nil {
		e.sourceRefs = refs
	} else {
		e.sourceRefs = make(map[string]string)
	}

	return e.run()
}

func (e *engine) run() error {
	opts := e.opts

	origFile, err := newDebugFile(e.resultsDir, OriginalStreamFile)
	if err != nil {
		return err
	}
	defer origFile.Close()
	filtFile, err := newDebugFile(e.resultsDir, FilteredStreamFile)
	if err != nil {
		return err
	}
	defer filtFile.Close()

	exporter := exporterCmd(opts)
	feOut, err := exporter.StdoutPipe()
	if err != nil {
		return err
	}
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("failed to start fast-export: %v: %w", err, ErrSubprocess)
	}

	var importer *importerProc
	if !opts.DryRun {
		importer, err = startImporter(opts, e.resultsDir)
		if err != nil {
			_ = exporter.Process.Kill()
			_ = exporter.Wait()
			return err
		}
	}

	var importerIn io.WriteCloser
	if importer != nil {
		importerIn = importer.stdin
	}
	out := newStreamWriter(filtFile, importerIn)
	parser := NewParser(io.TeeReader(feOut, origFile))

	streamErr := e.filterStream(parser, out)
	if streamErr == nil {
		// drain anything after done so the exporter can exit; the tee keeps
		// the original capture complete
		_, _ = io.Copy(io.Discard, feOut)
	} else {
		// a blocked exporter would never exit on its own
		_ = exporter.Process.Kill()
	}

	// Signal clean end-of-input even on error so the importer cannot be left
	// mid-record.
	_ = out.CloseImporter()

	g := new(errgroup.Group)
	g.Go(func() error {
		if err := exporter.Wait(); err != nil {
			return fmt.Errorf("fast-export: %v: %w", err, ErrSubprocess)
		}
		return nil
	})
	if importer != nil {
		g.Go(func() error {
			if err := importer.cmd.Wait(); err != nil {
				return fmt.Errorf("fast-import: %v: %w", err, ErrSubprocess)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	if streamErr != nil {
		return streamErr
	}
	if waitErr != nil {
		return waitErr
	}
	if out.Broken() {
		return fmt.Errorf("fast-import closed its input early: %w", ErrSubprocess)
	}

	return e.finalize()
}

type importerProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func startImporter(opts *Options, resultsDir string) (*importerProc, error) {
	cmd := importerCmd(opts, resultsDir)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fast-import: %v: %w", err, ErrSubprocess)
	}
	return &importerProc{cmd: cmd, stdin: stdin}, nil
}

// filterStream is the main loop: records in stream order, with buffered tags
// flushed just before done and pruned commits replaced by aliases in place.
func (e *engine) filterStream(p *Parser, out *streamWriter) error {
	sawDone := false
	for {
		rec, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch r := rec.(type) {
		case *BlobRecord:
			if err := e.handleBlob(r, out); err != nil {
				return err
			}
		case *CommitRecord:
			filtered, err := e.filterCommit(r)
			if err != nil {
				return err
			}
			if filtered != nil {
				if err := filtered.Emit(out); err != nil {
					return err
				}
			}
		case *TagRecord:
			e.bufferTag(r)
		case *ResetRecord:
			if emit := e.handleReset(r); emit != nil {
				if err := emit.Emit(out); err != nil {
					return err
				}
			}
		case *DoneRecord:
			if err := e.flushTags(out); err != nil {
				return err
			}
			if err := r.Emit(out); err != nil {
				return err
			}
			sawDone = true
		case *LineRecord:
			if err := r.Emit(out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown record %T", ErrUnexpectedRecord, rec)
		}

		if sawDone {
			break
		}
	}

	if !sawDone {
		// exporter ended without the done record; flush tags anyway so
		// nothing buffered is lost
		if err := e.flushTags(out); err != nil {
			return err
		}
	}
	return nil
}

// handleBlob applies the blob pipeline: record identity, drop by size or id
// list, or redact content and forward.
func (e *engine) handleBlob(b *BlobRecord, out io.Writer) error {
	if b.Mark != 0 && b.OriginalOID != nil {
		e.marks.RecordOriginal(b.Mark, b.OriginalOID)
	}

	if e.opts.MaxBlobSize > 0 && int64(len(b.Data)) > e.opts.MaxBlobSize {
		if b.Mark != 0 {
			e.marks.DropBlob(b.Mark)
		}
		e.report.BlobsStrippedBySize++
		return nil
	}
	if b.OriginalOID != nil {
		if _, in := e.opts.StripBlobIDs[string(b.OriginalOID)]; in {
			if b.Mark != 0 {
				e.marks.DropBlob(b.Mark)
				e.idDroppedMarks[b.Mark] = empty{}
			}
			e.report.BlobsStrippedByID++
			return nil
		}
	}

	if !e.opts.ReplaceText.Empty() {
		var changed bool
		b.Data, changed = e.opts.ReplaceText.Apply(b.Data)
		if changed {
			e.report.BlobsModified++
		}
	}
	if err := b.Emit(out); err != nil {
		return err
	}
	if b.Mark != 0 {
		e.marks.MarkEmitted(b.Mark)
	}
	return nil
}

// loadPreviousCommitMap seeds the short-hash mapper from the commit-map of
// an earlier run, when one exists in the results directory.
func (e *engine) loadPreviousCommitMap() {
	f, err := os.Open(filepath.Join(e.resultsDir, CommitMapFile))
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		old, newOID, found := strings.Cut(sc.Text(), " ")
		if !found || newOID == ZeroOID || len(old) != oidHexLen {
			continue
		}
		oldB := bytes.ToLower([]byte(old))
		e.oids.AddOriginal(oldB)
		e.oids.SetNew(oldB, bytes.ToLower([]byte(newOID)))
	}
}
