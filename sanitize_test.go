package gitfilter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizePath(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{"clean", "src/main.go", "src/main.go", false},
		{"reserved chars", `a<b>c:d"e|f?g*h`, "a_b_c_d_e_f_g_h", true},
		{"control bytes", "a\x00b\x1fc", "a_b_c", true},
		{"trailing dot", "dir./file.", "dir/file", true},
		{"trailing space", "dir /file ", "dir/file", true},
		{"reserved name", "CON/aux.txt/x", "_CON/_aux.txt/x", true},
		{"com ports", "com1.log", "_com1.log", true},
		{"not reserved", "console/auxiliary", "console/auxiliary", false},
		{"lpt", "sub/LPT9", "sub/_LPT9", true},
		{"com0 not reserved", "com0", "com0", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := SanitizePath([]byte(tc.in))
			if diff := cmp.Diff(tc.want, string(got)); diff != "" {
				t.Errorf("SanitizePath(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
			if changed != tc.changed {
				t.Errorf("SanitizePath(%q) changed = %v, want %v", tc.in, changed, tc.changed)
			}
		})
	}
}
