package gitfilter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMarkTablePruneResolve(t *testing.T) {
	m := NewMarkTable()
	// 3 -> 2 -> 1, and 1 survives
	m.Prune(3, 2)
	m.Prune(2, 1)
	if got := m.Resolve(3); got != 1 {
		t.Errorf("Resolve(3) = %d, want 1", got)
	}
	if got := m.Resolve(1); got != 1 {
		t.Errorf("Resolve(1) = %d, want 1", got)
	}
	// a pruned root resolves to nothing
	m.Prune(5, 0)
	if got := m.Resolve(5); got != 0 {
		t.Errorf("Resolve(5) = %d, want 0", got)
	}
}

func TestMarkTableDroppedBlobs(t *testing.T) {
	m := NewMarkTable()
	m.DropBlob(7)
	if !m.BlobDropped(7) || m.BlobDropped(8) {
		t.Error("dropped-blob set wrong")
	}
}

func TestMarkTableLoadNewOIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target-marks")
	content := ":1 " + newA + "\n:2 " + newB + "\nnot a mark line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMarkTable()
	if err := m.LoadNewOIDs(path); err != nil {
		t.Fatal(err)
	}
	if got := string(m.NewOID(1)); got != newA {
		t.Errorf("NewOID(1) = %q", got)
	}
	if got := string(m.NewOID(2)); got != newB {
		t.Errorf("NewOID(2) = %q", got)
	}
	if m.NewOID(3) != nil {
		t.Error("NewOID(3) should be unknown")
	}
}

func TestCommitMapTotality(t *testing.T) {
	m := NewMarkTable()
	m.RecordOriginal(1, []byte(oidA))
	m.RecordCommit(1)
	m.RecordOriginal(2, []byte(oidB))
	m.RecordCommit(2)
	// commit 2 pruned onto 1
	m.Prune(2, 1)
	m.entry(1).newOID = []byte(newA)

	got := m.CommitMap()
	want := []CommitMapEntry{
		{OldOID: []byte(oidA), NewOID: []byte(newA)},
		{OldOID: []byte(oidB), NewOID: []byte(ZeroOID)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CommitMap mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitMapDryRunUsesSentinel(t *testing.T) {
	m := NewMarkTable()
	m.RecordOriginal(1, []byte(oidA))
	m.RecordCommit(1)
	got := m.CommitMap()
	if len(got) != 1 || string(got[0].NewOID) != ZeroOID {
		t.Errorf("dry-run map = %+v", got)
	}
}

func TestParseMark(t *testing.T) {
	if got := parseMark([]byte(":42")); got != 42 {
		t.Errorf("parseMark(:42) = %d", got)
	}
	if got := parseMark([]byte("42")); got != 0 {
		t.Errorf("parseMark(42) = %d, want 0", got)
	}
	if got := parseMark([]byte(":")); got != 0 {
		t.Errorf("parseMark(:) = %d, want 0", got)
	}
}
