package gitfilter

import (
	"bytes"
	"regexp"
)

// PathRename is one ordered prefix rename rule. An empty Old prepends New to
// every path; an empty New strips the matched prefix.
type PathRename struct {
	Old []byte
	New []byte
}

// RefRename is a prefix rename on the short ref name (the part after
// refs/tags/ or refs/heads/).
type RefRename struct {
	Old []byte
	New []byte
}

// Apply rewrites name when it starts with the old prefix. The second return
// reports whether the rule matched.
func (r *RefRename) Apply(name []byte) ([]byte, bool) {
	if r == nil || !bytes.HasPrefix(name, r.Old) {
		return name, false
	}
	out := make([]byte, 0, len(r.New)+len(name)-len(r.Old))
	out = append(out, r.New...)
	out = append(out, name[len(r.Old):]...)
	return out, true
}

// PathFilter holds the path selection and rename tables for a run.
//
// A path is selected iff it matches any include rule (prefix, glob, or
// regex); an empty rule set selects everything. Invert complements the
// selection. Renames are ordered; the first prefix matching at position 0
// wins.
type PathFilter struct {
	Prefixes [][]byte
	Globs    [][]byte
	Regexes  []*regexp.Regexp
	Invert   bool
	Renames  []PathRename
}

// Empty reports whether the filter has no include rules at all.
func (f *PathFilter) Empty() bool {
	return len(f.Prefixes) == 0 && len(f.Globs) == 0 && len(f.Regexes) == 0
}

func (f *PathFilter) matches(path []byte) bool {
	for _, p := range f.Prefixes {
		if bytes.HasPrefix(path, p) {
			return true
		}
	}
	for _, g := range f.Globs {
		if GlobMatch(g, path) {
			return true
		}
	}
	for _, re := range f.Regexes {
		if re.Match(path) {
			return true
		}
	}
	return false
}

// Keep reports whether a path passes the selection rules.
func (f *PathFilter) Keep(path []byte) bool {
	if f.Empty() {
		return true
	}
	m := f.matches(path)
	if f.Invert {
		return !m
	}
	return m
}

// KeepAny reports whether any of the paths passes the selection rules.
// Copy/rename filechanges carry two paths and survive if either side does.
func (f *PathFilter) KeepAny(paths ...[]byte) bool {
	if f.Empty() {
		return true
	}
	for _, p := range paths {
		if f.Keep(p) {
			return true
		}
	}
	return false
}

// Rename applies the first matching prefix rename and then sanitizes the
// result for reserved-character filesystems. The second return reports
// whether the path changed in any way.
func (f *PathFilter) Rename(path []byte) ([]byte, bool) {
	out := path
	renamed := false
	for _, r := range f.Renames {
		if bytes.HasPrefix(out, r.Old) {
			next := make([]byte, 0, len(r.New)+len(out)-len(r.Old))
			next = append(next, r.New...)
			next = append(next, out[len(r.Old):]...)
			out = next
			renamed = true
			break
		}
	}
	sanitized, changed := SanitizePath(out)
	if changed {
		warnOnce("sanitize-path", "rewrote path for filesystem compatibility", "path", string(path))
	}
	return sanitized, renamed || changed
}
