package gitfilter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testEngine(t *testing.T, opts *Options) *engine {
	t.Helper()
	if opts == nil {
		opts = NewOptions()
	}
	return newEngine(opts, t.TempDir())
}

func modify(path string) FileChange {
	return FileChange{Op: FileModify, Mode: []byte("100644"), Ref: []byte(":1"), Path: []byte(path)}
}

func TestFilterChangesDropsExcludedPaths(t *testing.T) {
	opts := NewOptions()
	opts.AddPath("sub/")
	e := testEngine(t, opts)

	got, err := e.filterChanges([]FileChange{modify("a.txt"), modify("sub/b.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0].Path) != "sub/b.txt" {
		t.Errorf("changes = %+v", got)
	}
}

func TestFilterChangesRenamesPaths(t *testing.T) {
	opts := NewOptions()
	opts.SetSubdirectoryFilter("sub")
	e := testEngine(t, opts)

	got, err := e.filterChanges([]FileChange{modify("sub/b.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0].Path) != "b.txt" {
		t.Errorf("changes = %+v", got)
	}
}

func TestFilterChangesDroppedBlobBecomesDeletion(t *testing.T) {
	e := testEngine(t, nil)
	e.marks.DropBlob(1)

	got, err := e.filterChanges([]FileChange{modify("big.bin")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Op != FileDelete || string(got[0].Path) != "big.bin" {
		t.Errorf("changes = %+v", got)
	}
}

func TestFilterChangesIdenticalModifiesCollapse(t *testing.T) {
	opts := NewOptions()
	if err := opts.AddPathRename("dir1/:out/"); err != nil {
		t.Fatal(err)
	}
	if err := opts.AddPathRename("dir2/:out/"); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, opts)

	got, err := e.filterChanges([]FileChange{modify("dir1/f.txt"), modify("dir2/f.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("identical modifies should collapse, got %+v", got)
	}
}

func TestFilterChangesDeleteLosesToModify(t *testing.T) {
	opts := NewOptions()
	if err := opts.AddPathRename("dir1/:out/"); err != nil {
		t.Fatal(err)
	}
	if err := opts.AddPathRename("dir2/:out/"); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, opts)

	del := FileChange{Op: FileDelete, Path: []byte("dir1/f.txt")}
	got, err := e.filterChanges([]FileChange{del, modify("dir2/f.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Op != FileModify {
		t.Errorf("delete should lose to modify, got %+v", got)
	}
}

func TestFilterChangesDistinctModifiesCollide(t *testing.T) {
	opts := NewOptions()
	if err := opts.AddPathRename("dir1/:out/"); err != nil {
		t.Fatal(err)
	}
	if err := opts.AddPathRename("dir2/:out/"); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, opts)

	a := modify("dir1/f.txt")
	b := modify("dir2/f.txt")
	b.Ref = []byte(":2")
	_, err := e.filterChanges([]FileChange{a, b})
	if !errors.Is(err, ErrRuleCollision) {
		t.Errorf("err = %v, want ErrRuleCollision", err)
	}
}

func TestFilterCommitPrunesEmptyNonMerge(t *testing.T) {
	opts := NewOptions()
	opts.AddPath("src/")
	e := testEngine(t, opts)
	e.marks.MarkEmitted(1)

	c := &CommitRecord{
		Ref:       []byte("refs/heads/main"),
		Mark:      2,
		Committer: []byte("C <c@example.com> 1700000000 +0000"),
		Message:   []byte("docs only\n"),
		From:      1,
		Changes:   []FileChange{modify("doc/readme.md")},
	}
	rec, err := e.filterCommit(c)
	if err != nil {
		t.Fatal(err)
	}
	alias, ok := rec.(*AliasRecord)
	if !ok {
		t.Fatalf("got %T, want AliasRecord", rec)
	}
	if alias.Mark != 2 || alias.To != 1 {
		t.Errorf("alias = %+v", alias)
	}
	if got := e.marks.Resolve(2); got != 1 {
		t.Errorf("Resolve(2) = %d, want 1", got)
	}
	if e.report.CommitsPruned != 1 {
		t.Errorf("CommitsPruned = %d", e.report.CommitsPruned)
	}
}

func TestFilterCommitKeepsEmptyMerge(t *testing.T) {
	opts := NewOptions()
	opts.AddPath("src/")
	e := testEngine(t, opts)
	e.marks.MarkEmitted(1)
	e.marks.MarkEmitted(2)

	c := &CommitRecord{
		Ref:       []byte("refs/heads/main"),
		Mark:      3,
		Committer: []byte("C <c@example.com> 1700000000 +0000"),
		Message:   []byte("merge doc branch\n"),
		From:      1,
		Merges:    []ParentRef{{Mark: 2}},
		Changes:   []FileChange{modify("doc/readme.md")},
	}
	rec, err := e.filterCommit(c)
	if err != nil {
		t.Fatal(err)
	}
	merge, ok := rec.(*CommitRecord)
	if !ok {
		t.Fatalf("got %T, want CommitRecord", rec)
	}
	if len(merge.Changes) != 0 {
		t.Errorf("merge should have no changes, got %+v", merge.Changes)
	}
	if !merge.IsMerge() {
		t.Error("merge lost a parent")
	}
	if e.marks.Pruned(3) {
		t.Error("merge must not be pruned")
	}
}

func TestFilterCommitOmitsPrunedRoot(t *testing.T) {
	opts := NewOptions()
	opts.AddPath("src/")
	e := testEngine(t, opts)

	c := &CommitRecord{
		Ref:         []byte("refs/heads/main"),
		Mark:        1,
		OriginalOID: []byte(oidA),
		Committer:   []byte("C <c@example.com> 1700000000 +0000"),
		Message:     []byte("root\n"),
		Changes:     []FileChange{modify("doc/readme.md")},
	}
	rec, err := e.filterCommit(c)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("pruned root should vanish, got %T", rec)
	}
	entries := e.marks.CommitMap()
	if len(entries) != 1 || string(entries[0].NewOID) != ZeroOID {
		t.Errorf("commit map = %+v", entries)
	}
}

func TestFilterCommitParentDedup(t *testing.T) {
	e := testEngine(t, nil)
	e.marks.MarkEmitted(1)
	// both parents collapse onto mark 1
	e.marks.Prune(2, 1)

	c := &CommitRecord{
		Ref:       []byte("refs/heads/main"),
		Mark:      3,
		Committer: []byte("C <c@example.com> 1700000000 +0000"),
		Message:   []byte("was a merge\n"),
		From:      1,
		Merges:    []ParentRef{{Mark: 2}},
		Changes:   []FileChange{modify("f.txt")},
	}
	rec, err := e.filterCommit(c)
	if err != nil {
		t.Fatal(err)
	}
	got := rec.(*CommitRecord)
	if got.From != 1 || len(got.Merges) != 0 {
		t.Errorf("parents = from %d merges %+v", got.From, got.Merges)
	}
	if got.IsMerge() {
		t.Error("collapsed merge should be a regular commit")
	}
}

func TestFilterCommitRenamesBranchRef(t *testing.T) {
	opts := NewOptions()
	if err := opts.SetBranchRename("old-:new-"); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, opts)

	c := &CommitRecord{
		Ref:       []byte("refs/heads/old-main"),
		Mark:      1,
		Committer: []byte("C <c@example.com> 1700000000 +0000"),
		Message:   []byte("m\n"),
		Changes:   []FileChange{modify("f.txt")},
	}
	rec, err := e.filterCommit(c)
	if err != nil {
		t.Fatal(err)
	}
	got := rec.(*CommitRecord)
	if diff := cmp.Diff("refs/heads/new-main", string(got.Ref)); diff != "" {
		t.Errorf("ref mismatch (-want +got):\n%s", diff)
	}
	if e.seenRefs["refs/heads/old-main"] != "refs/heads/new-main" {
		t.Errorf("seenRefs = %+v", e.seenRefs)
	}
}

func TestFilterCommitRewritesMessageRules(t *testing.T) {
	opts := NewOptions()
	r, err := NewReplacer([]byte("secret==>REDACTED\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts.ReplaceMessage = r
	e := testEngine(t, opts)

	c := &CommitRecord{
		Ref:       []byte("refs/heads/main"),
		Mark:      1,
		Committer: []byte("C <c@example.com> 1700000000 +0000"),
		Message:   []byte("remove secret value\n"),
		Changes:   []FileChange{modify("f.txt")},
	}
	rec, err := e.filterCommit(c)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(rec.(*CommitRecord).Message); got != "remove REDACTED value\n" {
		t.Errorf("message = %q", got)
	}
}
