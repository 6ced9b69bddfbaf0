package gitfilter

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
)

// defaultReplacement is substituted when a rule line has no ==> arrow.
var defaultReplacement = []byte("***REMOVED***")

type replaceRule struct {
	// literal form
	from []byte
	to   []byte
	// regex form; from/to are unused when re is set
	re  *regexp.Regexp
	rep []byte
}

// Replacer applies an ordered list of literal and regex replacement rules to
// opaque byte payloads (blob contents, commit and tag messages).
//
// The rules file has one rule per line. Blank lines and lines starting with
// '#' are ignored. A line is either "from==>to" or just "from", the latter
// replacing with ***REMOVED***. Lines starting with "regex:" treat the part
// before ==> as a pattern for [regexp] with $1-style group expansion in the
// replacement.
type Replacer struct {
	rules []replaceRule
}

// NewReplacerFromFile loads a replacement-rules file. The returned error
// names the first invalid line.
func NewReplacerFromFile(path string) (*Replacer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReplacer(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// NewReplacer parses replacement rules from the raw file content.
func NewReplacer(content []byte) (*Replacer, error) {
	r := &Replacer{}
	for i, raw := range bytes.Split(content, []byte{'\n'}) {
		line := bytes.TrimSuffix(raw, []byte{'\r'})
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if rest, isRegex := bytes.CutPrefix(line, []byte("regex:")); isRegex {
			pat, rep, found := bytes.Cut(rest, []byte("==>"))
			if !found {
				rep = defaultReplacement
			}
			if len(pat) == 0 {
				return nil, fmt.Errorf("line %d: empty pattern: %w", i+1, ErrInvalidRule)
			}
			re, err := regexp.Compile(string(pat))
			if err != nil {
				return nil, fmt.Errorf("line %d: %v: %w", i+1, err, ErrInvalidRule)
			}
			r.rules = append(r.rules, replaceRule{re: re, rep: rep})
			continue
		}
		from, to, found := bytes.Cut(line, []byte("==>"))
		if !found {
			to = defaultReplacement
		}
		if len(from) == 0 {
			return nil, fmt.Errorf("line %d: empty match text: %w", i+1, ErrInvalidRule)
		}
		r.rules = append(r.rules, replaceRule{from: from, to: to})
	}
	return r, nil
}

// Empty reports whether the replacer holds no rules.
func (r *Replacer) Empty() bool {
	return r == nil || len(r.rules) == 0
}

// Apply runs every rule over data in file order. Literal rules replace all
// non-overlapping occurrences left to right; regex rules use
// [regexp.Regexp.ReplaceAll] semantics. The second return reports whether
// anything changed.
func (r *Replacer) Apply(data []byte) ([]byte, bool) {
	if r.Empty() {
		return data, false
	}
	changed := false
	for _, rule := range r.rules {
		var next []byte
		if rule.re != nil {
			next = rule.re.ReplaceAll(data, rule.rep)
		} else {
			next = bytes.ReplaceAll(data, rule.from, rule.to)
		}
		if !changed && !bytes.Equal(next, data) {
			changed = true
		}
		data = next
	}
	return data, changed
}
