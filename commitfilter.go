package gitfilter

import (
	"bytes"
	"fmt"
)

const (
	tagRefPrefix    = "refs/tags/"
	branchRefPrefix = "refs/heads/"
)

// renameRef applies the branch- or tag-rename table to a fully qualified
// ref. Refs outside refs/heads/ and refs/tags/ pass through unchanged.
func (e *engine) renameRef(ref []byte) []byte {
	if name, ok := bytes.CutPrefix(ref, []byte(tagRefPrefix)); ok {
		if renamed, matched := e.opts.TagRename.Apply(name); matched {
			return append([]byte(tagRefPrefix), renamed...)
		}
		return ref
	}
	if name, ok := bytes.CutPrefix(ref, []byte(branchRefPrefix)); ok {
		if renamed, matched := e.opts.BranchRename.Apply(name); matched {
			return append([]byte(branchRefPrefix), renamed...)
		}
		return ref
	}
	return ref
}

// observeRef records an original ref and its post-rename name for the
// ref-map and the finalizer.
func (e *engine) observeRef(oldRef, newRef []byte) {
	old := string(oldRef)
	if _, seen := e.seenRefs[old]; !seen {
		e.seenRefs[old] = string(newRef)
		e.refOrder = append(e.refOrder, old)
	} else {
		e.seenRefs[old] = string(newRef)
	}
	if bytes.HasPrefix(newRef, []byte(branchRefPrefix)) {
		e.updatedBranches[string(newRef)] = empty{}
	}
}

// rewriteMessage applies the replacement table and the short-hash mapping to
// a commit or tag message.
func (e *engine) rewriteMessage(msg []byte) []byte {
	if !e.opts.ReplaceMessage.Empty() {
		msg, _ = e.opts.ReplaceMessage.Apply(msg)
	}
	return e.oids.Rewrite(msg)
}

// blobRefDropped reports whether a modify's blob reference points at a blob
// the run stripped: a dropped mark, a listed id, or a known-oversize id.
// Counting happens per distinct blob, sampling per distinct path.
func (e *engine) blobRefDropped(fc *FileChange) bool {
	if m := fc.RefMark(); m != 0 {
		if !e.marks.BlobDropped(m) {
			return false
		}
		if _, byID := e.idDroppedMarks[m]; byID {
			e.report.samplePath(&e.report.SamplePathsID, fc.Path)
		} else {
			e.report.samplePath(&e.report.SamplePathsSize, fc.Path)
		}
		return true
	}
	if len(fc.Ref) == oidHexLen && isHex(fc.Ref) {
		id := string(bytes.ToLower(fc.Ref))
		if _, in := e.opts.StripBlobIDs[id]; in {
			if _, counted := e.countedOIDs[id]; !counted {
				e.countedOIDs[id] = empty{}
				e.report.BlobsStrippedByID++
			}
			e.report.samplePath(&e.report.SamplePathsID, fc.Path)
			return true
		}
		if _, in := e.oversizeOIDs[id]; in {
			if _, counted := e.countedOIDs[id]; !counted {
				e.countedOIDs[id] = empty{}
				e.report.BlobsStrippedBySize++
			}
			e.report.samplePath(&e.report.SamplePathsSize, fc.Path)
			return true
		}
	}
	return false
}

// filterChanges runs the per-commit file-change pipeline: drop excluded
// paths, turn modifies of stripped blobs into deletions, rename, sanitize,
// and resolve collisions deterministically.
func (e *engine) filterChanges(changes []FileChange) ([]FileChange, error) {
	type slot struct {
		change   FileChange
		origPath []byte
	}
	out := make([]FileChange, 0, len(changes))
	byPath := make(map[string]*slot)

	add := func(fc FileChange, origPath []byte) error {
		if fc.Op == FileDeleteAll {
			out = append(out, fc)
			return nil
		}
		key := string(fc.Path)
		prev, in := byPath[key]
		if !in {
			out = append(out, fc)
			byPath[key] = &slot{change: fc, origPath: origPath}
			return nil
		}
		switch {
		case prev.change.Op == FileDelete && fc.Op != FileDelete:
			// a delete loses to a modify of the same final path
			for i := range out {
				if bytes.Equal(out[i].Path, fc.Path) && out[i].Op == FileDelete {
					out[i] = fc
					break
				}
			}
			prev.change = fc
			prev.origPath = origPath
		case fc.Op == FileDelete:
			// modify (or an earlier delete) already present wins
		case changeEqual(&prev.change, &fc):
			// identical modifies collapse to one
		default:
			return fmt.Errorf("%w: %q and %q both map to %q",
				ErrRuleCollision, prev.origPath, origPath, fc.Path)
		}
		return nil
	}

	for i := range changes {
		fc := changes[i]
		switch fc.Op {
		case FileDeleteAll:
			if err := add(fc, nil); err != nil {
				return nil, err
			}
			continue
		case FileCopy, FileRename:
			if !e.opts.Filter.KeepAny(fc.Src, fc.Path) {
				continue
			}
			orig := fc.Path
			fc.Src, _ = e.opts.Filter.Rename(fc.Src)
			fc.Path, _ = e.opts.Filter.Rename(fc.Path)
			if len(fc.Path) == 0 || len(fc.Src) == 0 {
				continue
			}
			if err := add(fc, orig); err != nil {
				return nil, err
			}
			continue
		}

		if !e.opts.Filter.Keep(fc.Path) {
			continue
		}
		if fc.Op == FileModify {
			if fc.IsInline() {
				if e.opts.MaxBlobSize > 0 && int64(len(fc.Inline)) > e.opts.MaxBlobSize {
					e.report.BlobsStrippedBySize++
					e.report.samplePath(&e.report.SamplePathsSize, fc.Path)
					fc = FileChange{Op: FileDelete, Path: fc.Path}
				} else if !e.opts.ReplaceText.Empty() {
					var changed bool
					fc.Inline, changed = e.opts.ReplaceText.Apply(fc.Inline)
					if changed {
						e.report.BlobsModified++
						e.report.samplePath(&e.report.SamplePathsModified, fc.Path)
					}
				}
			} else if e.blobRefDropped(&fc) {
				fc = FileChange{Op: FileDelete, Path: fc.Path}
			}
		}
		orig := fc.Path
		fc.Path, _ = e.opts.Filter.Rename(fc.Path)
		if len(fc.Path) == 0 {
			continue
		}
		if err := add(fc, orig); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fixParents resolves every parent through the prune set and deduplicates,
// preserving first-parent order. A merge that collapses to one distinct
// parent becomes a regular commit.
func (e *engine) fixParents(c *CommitRecord) {
	type parent struct {
		mark Mark
		ref  []byte
	}
	var resolved []parent
	seen := make(map[string]empty)

	push := func(m Mark, ref []byte) {
		var key string
		if m != 0 {
			m = e.marks.Resolve(m)
			if m == 0 {
				return
			}
			key = fmt.Sprintf(":%d", m)
		} else if len(ref) > 0 {
			key = string(ref)
		} else {
			return
		}
		if _, in := seen[key]; in {
			return
		}
		seen[key] = empty{}
		resolved = append(resolved, parent{mark: m, ref: ref})
	}

	push(c.From, c.FromRef)
	for _, m := range c.Merges {
		push(m.Mark, m.Ref)
	}

	c.From, c.FromRef, c.Merges = 0, nil, nil
	if len(resolved) == 0 {
		return
	}
	c.From, c.FromRef = resolved[0].mark, resolved[0].ref
	for _, p := range resolved[1:] {
		c.Merges = append(c.Merges, ParentRef{Mark: p.mark, Ref: p.ref})
	}
}

// filterCommit runs the whole commit pipeline. The returned record is the
// rewritten commit, an alias standing in for a pruned commit, or nil when
// the commit vanishes entirely (pruned root).
func (e *engine) filterCommit(c *CommitRecord) (Record, error) {
	oldRef := c.Ref
	c.Ref = e.renameRef(c.Ref)
	e.observeRef(oldRef, c.Ref)
	if c.Mark != 0 {
		e.refTips[string(c.Ref)] = c.Mark
	}

	if c.OriginalOID != nil {
		e.oids.AddOriginal(c.OriginalOID)
		if c.Mark != 0 {
			e.marks.RecordOriginal(c.Mark, c.OriginalOID)
			e.marks.RecordCommit(c.Mark)
		}
	}

	c.Message = e.rewriteMessage(c.Message)

	changes, err := e.filterChanges(c.Changes)
	if err != nil {
		return nil, err
	}
	c.Changes = changes

	// merge-ness is judged on the parents named in the stream, before dedup:
	// a merge stays a commit even when every change and every distinct parent
	// filters away
	wasMerge := c.IsMerge()
	e.fixParents(c)

	if len(c.Changes) == 0 && !wasMerge && c.Mark != 0 {
		if !c.HasFrom() {
			// pruned root: no alias target exists
			e.marks.Prune(c.Mark, 0)
			e.report.CommitsPruned++
			logger.Debug("pruned root commit", "mark", uint32(c.Mark))
			return nil, nil
		}
		if c.From != 0 {
			e.marks.Prune(c.Mark, c.From)
			e.report.CommitsPruned++
			if e.marks.Emitted(c.From) {
				return &AliasRecord{Mark: c.Mark, To: c.From}, nil
			}
			logger.Debug("pruned commit with unemitted parent", "mark", uint32(c.Mark), "parent", uint32(c.From))
			return nil, nil
		}
		// first parent is an out-of-stream oid: nothing to alias, keep the
		// commit so descendants stay connected
	}

	if c.Mark != 0 {
		e.marks.MarkEmitted(c.Mark)
	}
	return c, nil
}

func changeEqual(a, b *FileChange) bool {
	return a.Op == b.Op &&
		bytes.Equal(a.Mode, b.Mode) &&
		bytes.Equal(a.Ref, b.Ref) &&
		bytes.Equal(a.Path, b.Path) &&
		bytes.Equal(a.Src, b.Src) &&
		bytes.Equal(a.Inline, b.Inline)
}
