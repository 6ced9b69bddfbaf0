package gitfilter

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
)

// Mark is the integer identifier the exporter assigns to each object.
// Marks are unique within one stream; the engine never invents new ones.
type Mark uint32

// ZeroOID is the sentinel written to the audit maps for pruned commits and
// deleted refs.
const ZeroOID = "0000000000000000000000000000000000000000"

// markEntry carries the identities attached to one mark over the run.
type markEntry struct {
	originalOID []byte // lowercased 40-hex, nil when the sidecar was absent
	newOID      []byte // filled from the importer's mark-export file
}

// MarkTable tracks every mark seen in the stream together with its original
// and (after import) new object id, the prune aliases, and the dropped-blob
// set. It is single-owner state threaded through the commit and tag
// pipelines.
type MarkTable struct {
	entries map[Mark]*markEntry
	// order of original-oid observation, for commit-map emission
	commits []Mark
	// pruned commits whose original-oid must map to the zero sentinel
	prunedOIDs [][]byte
	// mark of a pruned commit -> mark of its surviving alias target
	pruned map[Mark]Mark
	// blobs dropped by size or id list; M lines referencing them become D
	droppedBlobs map[Mark]empty
	// marks actually written to the filtered stream
	emitted map[Mark]empty
}

func NewMarkTable() *MarkTable {
	return &MarkTable{
		entries:      make(map[Mark]*markEntry),
		pruned:       make(map[Mark]Mark),
		droppedBlobs: make(map[Mark]empty),
		emitted:      make(map[Mark]empty),
	}
}

func (t *MarkTable) entry(m Mark) *markEntry {
	e, ok := t.entries[m]
	if !ok {
		e = &markEntry{}
		t.entries[m] = e
	}
	return e
}

// RecordOriginal remembers the original-oid sidecar of a mark.
func (t *MarkTable) RecordOriginal(m Mark, oid []byte) {
	t.entry(m).originalOID = bytes.ToLower(oid)
}

// RecordCommit remembers that m was a commit with an original-oid, in stream
// order, so the commit-map can be emitted totally.
func (t *MarkTable) RecordCommit(m Mark) {
	t.commits = append(t.commits, m)
}

// OriginalOID returns the recorded original oid of m, or nil.
func (t *MarkTable) OriginalOID(m Mark) []byte {
	if e, ok := t.entries[m]; ok {
		return e.originalOID
	}
	return nil
}

// MarkEmitted records that the object behind m was written to the filtered
// stream.
func (t *MarkTable) MarkEmitted(m Mark) {
	t.emitted[m] = empty{}
}

// Emitted reports whether m was written to the filtered stream.
func (t *MarkTable) Emitted(m Mark) bool {
	_, in := t.emitted[m]
	return in
}

// DropBlob records that the blob behind m was stripped.
func (t *MarkTable) DropBlob(m Mark) {
	t.droppedBlobs[m] = empty{}
}

// BlobDropped reports whether m refers to a stripped blob.
func (t *MarkTable) BlobDropped(m Mark) bool {
	_, in := t.droppedBlobs[m]
	return in
}

// Prune records that the commit behind m was elided, aliased to target.
// A pruned root passes target 0: descendants referencing m lose that parent
// and become roots themselves.
func (t *MarkTable) Prune(m Mark, target Mark) {
	if m == 0 {
		return
	}
	t.pruned[m] = target
	if oid := t.OriginalOID(m); oid != nil {
		t.prunedOIDs = append(t.prunedOIDs, oid)
	}
}

// Pruned reports whether m was pruned.
func (t *MarkTable) Pruned(m Mark) bool {
	_, in := t.pruned[m]
	return in
}

// Resolve follows prune aliases until it reaches a surviving mark, or 0 when
// the chain ends at a pruned root.
func (t *MarkTable) Resolve(m Mark) Mark {
	for m != 0 {
		target, in := t.pruned[m]
		if !in {
			return m
		}
		m = target
	}
	return 0
}

// LoadNewOIDs parses the importer's mark-export file (lines ":<mark> <oid>")
// and fills in the new object ids.
func (t *MarkTable) LoadNewOIDs(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open mark-export file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for sc.Scan() {
		fields := bytes.Fields(sc.Bytes())
		if len(fields) < 2 || len(fields[0]) < 2 || fields[0][0] != ':' {
			continue
		}
		n, err := strconv.ParseUint(string(fields[0][1:]), 10, 32)
		if err != nil {
			continue
		}
		oid := make([]byte, len(fields[1]))
		copy(oid, fields[1])
		t.entry(Mark(n)).newOID = bytes.ToLower(oid)
	}
	return sc.Err()
}

// NewOID returns the post-import oid of m, following prune aliases, or nil
// when the importer never exported it.
func (t *MarkTable) NewOID(m Mark) []byte {
	if e, ok := t.entries[t.Resolve(m)]; ok {
		return e.newOID
	}
	return nil
}

// CommitMapEntry is one line of the commit-map audit artifact.
type CommitMapEntry struct {
	OldOID []byte
	NewOID []byte
}

// CommitMap joins the mark table into old→new commit oid pairs: surviving
// commits in stream order, followed by the pruned commits (in prune order)
// mapped to [ZeroOID].
func (t *MarkTable) CommitMap() []CommitMapEntry {
	out := make([]CommitMapEntry, 0, len(t.commits)+len(t.prunedOIDs))
	for _, m := range t.commits {
		if t.Pruned(m) {
			// emitted below from prunedOIDs with the zero sentinel
			continue
		}
		e := t.entries[m]
		if e == nil || e.originalOID == nil {
			continue
		}
		newOID := t.NewOID(m)
		if newOID == nil {
			// dry runs never learn new ids; keep the map total
			newOID = []byte(ZeroOID)
		}
		out = append(out, CommitMapEntry{OldOID: e.originalOID, NewOID: newOID})
	}
	for _, oid := range t.prunedOIDs {
		out = append(out, CommitMapEntry{OldOID: oid, NewOID: []byte(ZeroOID)})
	}
	return out
}

// parseMark parses the digits after ':' in a mark reference like ":42".
// Returns 0 when b is not a mark reference.
func parseMark(b []byte) Mark {
	if len(b) < 2 || b[0] != ':' {
		return 0
	}
	var n uint32
	for _, c := range b[1:] {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + uint32(c-'0')
	}
	return Mark(n)
}
