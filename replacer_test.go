package gitfilter

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReplacerLiteral(t *testing.T) {
	r, err := NewReplacer([]byte("API_KEY=abc123==>REDACTED\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, changed := r.Apply([]byte("x=1\nAPI_KEY=abc123\ny=2\nAPI_KEY=abc123\n"))
	if !changed {
		t.Error("expected a change")
	}
	want := "x=1\nREDACTED\ny=2\nREDACTED\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
}

func TestReplacerDefaultReplacement(t *testing.T) {
	r, err := NewReplacer([]byte("hunter2\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := r.Apply([]byte("password is hunter2!"))
	if string(got) != "password is ***REMOVED***!" {
		t.Errorf("got %q", got)
	}
}

func TestReplacerRegex(t *testing.T) {
	r, err := NewReplacer([]byte("regex:token-[0-9]+==>token-X\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, changed := r.Apply([]byte("token-123 token-9"))
	if !changed || string(got) != "token-X token-X" {
		t.Errorf("got %q changed=%v", got, changed)
	}
}

func TestReplacerRegexGroups(t *testing.T) {
	r, err := NewReplacer([]byte("regex:(user)=[a-z]+==>$1=hidden\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := r.Apply([]byte("user=alice"))
	if string(got) != "user=hidden" {
		t.Errorf("got %q", got)
	}
}

func TestReplacerCommentsAndBlanks(t *testing.T) {
	r, err := NewReplacer([]byte("# comment\n\nsecret==>x\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(r.rules))
	}
}

func TestReplacerFileOrder(t *testing.T) {
	// rules apply in file order over the output of earlier rules
	r, err := NewReplacer([]byte("aa==>bb\nbb==>cc\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := r.Apply([]byte("aa"))
	if string(got) != "cc" {
		t.Errorf("got %q, want cc", got)
	}
}

func TestReplacerInvalidRegexReportsLine(t *testing.T) {
	_, err := NewReplacer([]byte("good==>fine\nregex:([==>broken\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("error %v should wrap ErrInvalidRule", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q should name line 2", err)
	}
}

func TestReplacerNoChange(t *testing.T) {
	r, err := NewReplacer([]byte("needle==>x\n"))
	if err != nil {
		t.Fatal(err)
	}
	in := []byte("haystack without the word")
	got, changed := r.Apply(in)
	if changed {
		t.Error("unexpected change")
	}
	if diff := cmp.Diff(string(in), string(got)); diff != "" {
		t.Errorf("data mutated (-want +got):\n%s", diff)
	}
}
