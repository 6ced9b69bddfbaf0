package gitfilter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// finalize runs after both subprocesses exited successfully: it joins the
// importer's mark-export file onto the mark table, issues one batched ref
// transaction, repositions HEAD, writes the audit maps, and performs the
// post-run cleanup the mode allows.
func (e *engine) finalize() error {
	opts := e.opts

	if !opts.DryRun {
		if err := e.marks.LoadNewOIDs(filepath.Join(e.resultsDir, TargetMarksFile)); err != nil {
			return err
		}
		for _, entry := range e.marks.CommitMap() {
			if !bytes.Equal(entry.NewOID, []byte(ZeroOID)) {
				e.oids.SetNew(entry.OldOID, entry.NewOID)
			}
		}

		if err := e.applyRefUpdates(); err != nil {
			return err
		}
		e.finalizeHEAD()
	}

	if err := e.writeMaps(); err != nil {
		return err
	}

	if opts.WriteReport {
		if err := e.report.Write(e.resultsDir); err != nil {
			return err
		}
	}

	if !opts.DryRun {
		if opts.Reset {
			if err := gitStatus(opts.Target, "reset", "--hard", "--quiet"); err != nil {
				logger.Warn("git reset --hard failed", "err", err)
			}
		}
		runCleanup(opts)
		removeOriginIfApplicable(opts)
	}

	if !opts.Quiet {
		logger.Info("history rewritten", "results", e.resultsDir)
	}
	return nil
}

// applyRefUpdates issues a single batched update-ref transaction: every
// surviving ref is pinned to its new tip, renamed-away old names are deleted
// only after the new name is confirmed to exist, and replace refs of
// rewritten objects are deleted in the same batch.
func (e *engine) applyRefUpdates() error {
	opts := e.opts
	var payload bytes.Buffer

	targetRefs, err := allRefs(opts.Target)
	if err != nil {
		targetRefs = make(map[string]string)
	}

	// Pin surviving refs to their resolved tips. The importer has already
	// positioned them, so this is a no-op unless the ref's last commit was
	// pruned to an alias.
	updated := make(map[string]empty)
	newNames := make([]string, 0, len(e.refTips))
	for ref := range e.refTips {
		newNames = append(newNames, ref)
	}
	sort.Strings(newNames)
	for _, ref := range newNames {
		oid := e.marks.NewOID(e.refTips[ref])
		if oid == nil {
			logger.Warn("no imported object for ref, leaving it alone", "ref", ref)
			continue
		}
		fmt.Fprintf(&payload, "update %s %s\n", ref, oid)
		updated[ref] = empty{}
	}

	// Delete old names that were renamed away, but never a name something
	// still resolves to. Partial runs keep the old names.
	var olds []string
	if !opts.Partial {
		for old := range e.seenRefs {
			olds = append(olds, old)
		}
	}
	sort.Strings(olds)
	for _, old := range olds {
		newRef := e.seenRefs[old]
		if old == newRef {
			continue
		}
		e.report.RefsRenamed++
		if _, stillTarget := updated[old]; stillTarget {
			// another ref was renamed onto this name
			continue
		}
		_, nowUpdated := updated[newRef]
		if !nowUpdated && !refExists(opts.Target, newRef) {
			logger.Warn("not deleting renamed ref: new name does not exist", "old", old, "new", newRef)
			continue
		}
		if _, exists := targetRefs[old]; !exists {
			logger.Warn("not deleting renamed ref: old name already gone", "old", old)
			continue
		}
		fmt.Fprintf(&payload, "delete %s\n", old)
		e.report.RefsDeleted++
	}

	// Replace refs pointing at rewritten originals go away with the rewrite.
	if opts.Partial {
		return updateRefBatch(opts.Target, payload.Bytes())
	}
	for _, entry := range e.marks.CommitMap() {
		replaceRef := "refs/replace/" + string(entry.OldOID)
		if _, exists := targetRefs[replaceRef]; exists {
			fmt.Fprintf(&payload, "delete %s\n", replaceRef)
			e.report.RefsDeleted++
		}
	}

	return updateRefBatch(opts.Target, payload.Bytes())
}

// finalizeHEAD keeps HEAD if its target still exists, retargets it through
// the branch-rename table, and otherwise points it at the first updated
// branch in lexicographic order.
func (e *engine) finalizeHEAD() {
	opts := e.opts
	head := symbolicHEAD(opts.Target)
	if head != "" && refExists(opts.Target, head) {
		return
	}

	if head != "" && opts.BranchRename != nil {
		if name, ok := strings.CutPrefix(head, branchRefPrefix); ok {
			if renamed, matched := opts.BranchRename.Apply([]byte(name)); matched {
				candidate := branchRefPrefix + string(renamed)
				if refExists(opts.Target, candidate) {
					if err := setHEAD(opts.Target, candidate); err != nil {
						logger.Warn("failed to retarget HEAD", "ref", candidate, "err", err)
					}
					return
				}
			}
		}
	}

	branches := make([]string, 0, len(e.updatedBranches))
	for b := range e.updatedBranches {
		branches = append(branches, b)
	}
	sort.Strings(branches)
	for _, b := range branches {
		if !refExists(opts.Target, b) {
			continue
		}
		if err := setHEAD(opts.Target, b); err != nil {
			logger.Warn("failed to reposition HEAD", "ref", b, "err", err)
		}
		return
	}

	if out, err := gitOutput(opts.Target, "for-each-ref", "--count=1",
		"--format=%(refname)", branchRefPrefix); err == nil && out != "" {
		if err := setHEAD(opts.Target, out); err != nil {
			logger.Warn("failed to reposition HEAD", "ref", out, "err", err)
		}
	}
}

// writeMaps emits commit-map and ref-map under the results directory, one
// record per line, zero sentinel for prunes and deletions.
func (e *engine) writeMaps() error {
	var cm bytes.Buffer
	for _, entry := range e.marks.CommitMap() {
		fmt.Fprintf(&cm, "%s %s\n", entry.OldOID, entry.NewOID)
	}
	if err := os.WriteFile(filepath.Join(e.resultsDir, CommitMapFile), cm.Bytes(), 0o644); err != nil {
		return err
	}

	targetRefs := make(map[string]string)
	if !e.opts.DryRun {
		if refs, err := allRefs(e.opts.Target); err == nil {
			targetRefs = refs
		}
	}

	var rm bytes.Buffer
	for _, old := range e.refOrder {
		newRef := e.seenRefs[old]
		oldOID := e.sourceRefs[old]
		if oldOID == "" {
			oldOID = ZeroOID
		}
		newOID := targetRefs[newRef]
		if newOID == "" {
			newOID = ZeroOID
		}
		fmt.Fprintf(&rm, "%s %s %s %s\n", oldOID, newOID, old, newRef)
	}
	return os.WriteFile(filepath.Join(e.resultsDir, RefMapFile), rm.Bytes(), 0o644)
}

// runCleanup expires reflogs and repacks after a successful import.
func runCleanup(opts *Options) {
	if opts.Cleanup == CleanupNone {
		return
	}
	reflogArgs := []string{"reflog", "expire", "--expire=now"}
	if opts.Cleanup == CleanupAggressive {
		reflogArgs = append(reflogArgs, "--expire-unreachable=now")
	}
	reflogArgs = append(reflogArgs, "--all")
	if err := gitStatus(opts.Target, reflogArgs...); err != nil {
		logger.Warn("git reflog expire failed", "err", err)
	}

	gcArgs := []string{"gc", "--prune=now", "--quiet"}
	if opts.Cleanup == CleanupAggressive {
		gcArgs = append(gcArgs, "--aggressive")
	}
	if err := gitStatus(opts.Target, gcArgs...); err != nil {
		logger.Warn("git gc failed", "err", err)
	}
}
