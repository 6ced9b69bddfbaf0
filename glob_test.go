package gitfilter

import "testing"

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pat  string
		text string
		want bool
	}{
		{"*.txt", "a.txt", true},
		{"*.txt", "dir/a.txt", false},
		{"**/*.txt", "dir/a.txt", true},
		{"**/*.txt", "a/b/c.txt", true},
		{"**.txt", "a/b/c.txt", true},
		{"src/**", "src/a/b/c", true},
		{"src/**", "other/a", false},
		{"a?c", "abc", true},
		{"a?c", "a/c", false},
		{"a?c", "ac", false},
		{"doc/*", "doc/readme", true},
		{"doc/*", "doc/sub/readme", false},
		{"", "", true},
		{"*", "", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
	}
	for _, tc := range cases {
		if got := GlobMatch([]byte(tc.pat), []byte(tc.text)); got != tc.want {
			t.Errorf("GlobMatch(%q, %q) = %v, want %v", tc.pat, tc.text, got, tc.want)
		}
	}
}
