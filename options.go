package gitfilter

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// CleanupMode selects the post-import repository cleanup.
type CleanupMode int

const (
	CleanupNone CleanupMode = iota
	CleanupStandard
	CleanupAggressive
)

// Options is everything one run of the engine can be asked to do. Zero
// values are not meaningful for all fields; construct with [NewOptions].
type Options struct {
	Source string
	Target string
	// Refs is passed through to fast-export; defaults to --all.
	Refs []string

	Filter         *PathFilter
	TagRename      *RefRename
	BranchRename   *RefRename
	ReplaceMessage *Replacer
	ReplaceText    *Replacer

	// MaxBlobSize drops blobs strictly larger than this many bytes; 0 is off.
	MaxBlobSize int64
	// StripBlobIDs is the set of 40-hex blob oids to drop.
	StripBlobIDs map[string]empty

	WriteReport bool
	Backup      bool
	BackupPath  string

	DryRun        bool
	Quiet         bool
	Partial       bool
	Sensitive     bool
	NoFetch       bool
	Force         bool
	EnforceSanity bool
	Cleanup       CleanupMode
	// Reset runs git reset --hard on the non-bare target after a successful
	// import so the worktree matches the rewritten history.
	Reset bool

	// Debug-overlay toggles.
	DebugMode        bool
	DateOrder        bool
	NoData           bool
	Reencode         bool
	QuotePath        bool
	MarkTags         bool
	FEStreamOverride string
}

// NewOptions returns options with the engine defaults.
func NewOptions() *Options {
	return &Options{
		Source:    ".",
		Target:    ".",
		Refs:      []string{"--all"},
		Filter:    &PathFilter{},
		Reset:     true,
		Reencode:  true,
		QuotePath: true,
		MarkTags:  true,
	}
}

// AddPath adds a prefix include rule.
func (o *Options) AddPath(p string) {
	o.Filter.Prefixes = append(o.Filter.Prefixes, []byte(p))
}

// AddPathGlob adds a glob include rule.
func (o *Options) AddPathGlob(g string) {
	o.Filter.Globs = append(o.Filter.Globs, []byte(g))
}

// AddPathRegex compiles and adds a regex include rule.
func (o *Options) AddPathRegex(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid path regex %q: %v: %w", expr, err, ErrUsage)
	}
	o.Filter.Regexes = append(o.Filter.Regexes, re)
	return nil
}

// AddPathRename parses an OLD:NEW prefix rename.
func (o *Options) AddPathRename(spec string) error {
	old, newPrefix, found := strings.Cut(spec, ":")
	if !found {
		return fmt.Errorf("%q: %w", spec, ErrInvalidRename)
	}
	o.Filter.Renames = append(o.Filter.Renames, PathRename{Old: []byte(old), New: []byte(newPrefix)})
	return nil
}

// SetSubdirectoryFilter keeps only dir and makes it the new root:
// equivalent to --path dir/ --path-rename dir/: .
func (o *Options) SetSubdirectoryFilter(dir string) {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	o.AddPath(dir)
	o.Filter.Renames = append(o.Filter.Renames, PathRename{Old: []byte(dir)})
}

// SetToSubdirectoryFilter moves the whole tree under dir:
// equivalent to --path-rename :dir/ .
func (o *Options) SetToSubdirectoryFilter(dir string) {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	o.Filter.Renames = append(o.Filter.Renames, PathRename{New: []byte(dir)})
}

func parseRefRename(spec string) (*RefRename, error) {
	old, newPrefix, found := strings.Cut(spec, ":")
	if !found {
		return nil, fmt.Errorf("%q: %w", spec, ErrInvalidRename)
	}
	return &RefRename{Old: []byte(old), New: []byte(newPrefix)}, nil
}

// SetTagRename parses an OLD:NEW tag prefix rename (either side may be
// empty).
func (o *Options) SetTagRename(spec string) error {
	r, err := parseRefRename(spec)
	if err != nil {
		return err
	}
	o.TagRename = r
	return nil
}

// SetBranchRename parses an OLD:NEW branch prefix rename.
func (o *Options) SetBranchRename(spec string) error {
	r, err := parseRefRename(spec)
	if err != nil {
		return err
	}
	o.BranchRename = r
	return nil
}

// LoadStripBlobIDs reads a file of 40-hex blob ids, one per line, blanks and
// '#' comments ignored.
func (o *Options) LoadStripBlobIDs(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrUsage)
	}
	defer f.Close()

	ids := make(map[string]empty)
	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if len(line) != oidHexLen || !isHex(line) {
			return fmt.Errorf("%s:%d: not a 40-hex object id: %w", path, lineno, ErrUsage)
		}
		ids[string(bytes.ToLower(line))] = empty{}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	o.StripBlobIDs = ids
	return nil
}

func isHex(b []byte) bool {
	for _, c := range b {
		if _, ok := hexVal(c); !ok {
			return false
		}
	}
	return true
}
