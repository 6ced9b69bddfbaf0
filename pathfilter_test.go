package gitfilter

import (
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPathFilterEmptyIncludesAll(t *testing.T) {
	f := &PathFilter{}
	if !f.Keep([]byte("anything/at/all")) {
		t.Error("empty include set must include everything")
	}
}

func TestPathFilterPrefix(t *testing.T) {
	f := &PathFilter{Prefixes: [][]byte{[]byte("sub/")}}
	if !f.Keep([]byte("sub/b.txt")) {
		t.Error("sub/b.txt should be kept")
	}
	if f.Keep([]byte("a.txt")) {
		t.Error("a.txt should be dropped")
	}
}

func TestPathFilterInvert(t *testing.T) {
	f := &PathFilter{Prefixes: [][]byte{[]byte("secrets/")}, Invert: true}
	if f.Keep([]byte("secrets/key.pem")) {
		t.Error("inverted selection must drop matches")
	}
	if !f.Keep([]byte("src/main.go")) {
		t.Error("inverted selection must keep non-matches")
	}
}

func TestPathFilterGlobAndRegex(t *testing.T) {
	f := &PathFilter{
		Globs:   [][]byte{[]byte("**/*.md")},
		Regexes: []*regexp.Regexp{regexp.MustCompile(`^vendor/`)},
	}
	if !f.Keep([]byte("docs/readme.md")) {
		t.Error("glob include failed")
	}
	if !f.Keep([]byte("vendor/lib/x.go")) {
		t.Error("regex include failed")
	}
	if f.Keep([]byte("src/main.go")) {
		t.Error("unmatched path kept")
	}
}

func TestPathFilterKeepAny(t *testing.T) {
	f := &PathFilter{Prefixes: [][]byte{[]byte("keep/")}}
	if !f.KeepAny([]byte("drop/a"), []byte("keep/b")) {
		t.Error("either side matching should keep the change")
	}
	if f.KeepAny([]byte("drop/a"), []byte("drop/b")) {
		t.Error("no side matching should drop the change")
	}
}

func TestPathRenameFirstMatchWins(t *testing.T) {
	f := &PathFilter{Renames: []PathRename{
		{Old: []byte("lib/"), New: []byte("src/lib/")},
		{Old: []byte("lib/deep/"), New: []byte("never/")},
	}}
	got, changed := f.Rename([]byte("lib/deep/x.go"))
	if !changed {
		t.Error("expected a rename")
	}
	if diff := cmp.Diff("src/lib/deep/x.go", string(got)); diff != "" {
		t.Errorf("rename mismatch (-want +got):\n%s", diff)
	}
}

func TestPathRenameStripAndPrepend(t *testing.T) {
	strip := &PathFilter{Renames: []PathRename{{Old: []byte("sub/")}}}
	got, _ := strip.Rename([]byte("sub/b.txt"))
	if string(got) != "b.txt" {
		t.Errorf("strip got %q", got)
	}

	prepend := &PathFilter{Renames: []PathRename{{New: []byte("sub/")}}}
	got, _ = prepend.Rename([]byte("b.txt"))
	if string(got) != "sub/b.txt" {
		t.Errorf("prepend got %q", got)
	}
}

func TestSubdirectoryFilterOptions(t *testing.T) {
	opts := NewOptions()
	opts.SetSubdirectoryFilter("sub")
	if !opts.Filter.Keep([]byte("sub/c.txt")) || opts.Filter.Keep([]byte("a.txt")) {
		t.Error("subdirectory filter selection wrong")
	}
	got, _ := opts.Filter.Rename([]byte("sub/c.txt"))
	if string(got) != "c.txt" {
		t.Errorf("subdirectory filter rename got %q", got)
	}
}

func TestRefRename(t *testing.T) {
	r := &RefRename{Old: []byte("v1."), New: []byte("release/v1.")}
	got, matched := r.Apply([]byte("v1.0"))
	if !matched || string(got) != "release/v1.0" {
		t.Errorf("got %q matched=%v", got, matched)
	}
	got, matched = r.Apply([]byte("v2.0"))
	if matched || string(got) != "v2.0" {
		t.Errorf("non-matching name changed: %q", got)
	}
}
