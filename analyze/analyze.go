// Package analyze implements the read-only repository metrics pass.
// It never mutates the repository: everything comes from object inventory
// queries, ref enumeration, and a data-less fast-export sweep of history.
package analyze

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fardream/gitfilter"
)

type empty = struct{}

// ObjectStat is one object with its size and, when known, an example path.
type ObjectStat struct {
	OID  string `json:"oid"`
	Size uint64 `json:"size"`
	Path string `json:"path,omitempty"`
}

// DuplicateBlobStat is a blob appearing at many filechange sites.
type DuplicateBlobStat struct {
	OID         string `json:"oid"`
	Paths       uint64 `json:"paths"`
	ExamplePath string `json:"example_path,omitempty"`
}

// PathStat is a path with its byte length.
type PathStat struct {
	Path   string `json:"path"`
	Length int    `json:"length"`
}

// CommitMessageStat is a commit with an unusually large message.
type CommitMessageStat struct {
	OID    string `json:"oid"`
	Length int    `json:"length"`
}

// Metrics is everything the analysis measures.
type Metrics struct {
	LooseObjects     uint64              `json:"loose_objects"`
	LooseSizeBytes   uint64              `json:"loose_size_bytes"`
	PackedObjects    uint64              `json:"packed_objects"`
	PackedSizeBytes  uint64              `json:"packed_size_bytes"`
	TotalObjects     uint64              `json:"total_objects"`
	TotalSizeBytes   uint64              `json:"total_size_bytes"`
	ObjectTypes      map[string]uint64   `json:"object_types"`
	RefsTotal        int                 `json:"refs_total"`
	RefsHeads        int                 `json:"refs_heads"`
	RefsTags         int                 `json:"refs_tags"`
	RefsRemotes      int                 `json:"refs_remotes"`
	RefsOther        int                 `json:"refs_other"`
	LargestBlobs     []ObjectStat        `json:"largest_blobs"`
	LargestTrees     []ObjectStat        `json:"largest_trees"`
	BlobsOverWarn    []ObjectStat        `json:"blobs_over_threshold"`
	DuplicateBlobs   []DuplicateBlobStat `json:"duplicate_blobs"`
	LongestPaths     []PathStat          `json:"longest_paths"`
	LargestMessages  []CommitMessageStat `json:"largest_commit_messages"`
	MaxTreeEntries   int                 `json:"max_tree_entries"`
	MaxTreeEntriesAt string              `json:"max_tree_entries_at,omitempty"`
	MaxParents       int                 `json:"max_parents"`
	CommitCount      uint64              `json:"commit_count"`
}

// WarningLevel grades a finding.
type WarningLevel string

const (
	LevelInfo     WarningLevel = "info"
	LevelWarning  WarningLevel = "warning"
	LevelCritical WarningLevel = "critical"
)

// Warning is one threshold finding with an optional recommendation.
type Warning struct {
	Level          WarningLevel `json:"level"`
	Message        string       `json:"message"`
	Recommendation string       `json:"recommendation,omitempty"`
}

// Report is the full analysis output.
type Report struct {
	Metrics  Metrics   `json:"metrics"`
	Warnings []Warning `json:"warnings"`
}

// Run generates a report for repo and renders it to w, honoring cfg.JSON.
func Run(repo string, cfg *Config, w io.Writer) error {
	report, err := GenerateReport(repo, cfg)
	if err != nil {
		return err
	}
	if cfg.JSON {
		return printJSON(report, w)
	}
	printHuman(report, cfg, w)
	return nil
}

// GenerateReport collects the metrics and evaluates the thresholds.
func GenerateReport(repo string, cfg *Config) (*Report, error) {
	m := Metrics{ObjectTypes: make(map[string]uint64)}

	if err := gatherFootprint(repo, &m); err != nil {
		return nil, err
	}
	if err := gatherObjects(repo, cfg, &m); err != nil {
		return nil, err
	}
	if err := gatherRefs(repo, &m); err != nil {
		return nil, err
	}
	if err := gatherHead(repo, cfg, &m); err != nil {
		return nil, err
	}
	if err := gatherHistory(repo, cfg, &m); err != nil {
		return nil, err
	}

	return &Report{Metrics: m, Warnings: evaluate(&m, &cfg.Thresholds)}, nil
}

func runGit(repo string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", repo}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// gatherFootprint reads git count-objects -v.
func gatherFootprint(repo string, m *Metrics) error {
	out, err := runGit(repo, "count-objects", "-v")
	if err != nil {
		return err
	}
	for _, line := range strings.Split(out, "\n") {
		key, val, found := strings.Cut(strings.TrimSpace(line), ": ")
		if !found {
			continue
		}
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "count":
			m.LooseObjects = n
		case "size":
			m.LooseSizeBytes = n * 1024
		case "in-pack":
			m.PackedObjects = n
		case "size-pack":
			m.PackedSizeBytes = n * 1024
		}
	}
	m.TotalObjects = m.LooseObjects + m.PackedObjects
	m.TotalSizeBytes = m.LooseSizeBytes + m.PackedSizeBytes
	return nil
}

// topList keeps the n largest object stats seen.
type topList struct {
	limit int
	items []ObjectStat
}

func (t *topList) push(s ObjectStat) {
	if t.limit <= 0 {
		return
	}
	t.items = append(t.items, s)
	sort.Slice(t.items, func(i, j int) bool { return t.items[i].Size > t.items[j].Size })
	if len(t.items) > t.limit {
		t.items = t.items[:t.limit]
	}
}

// gatherObjects sweeps the object inventory for type counts and the largest
// blobs and trees.
func gatherObjects(repo string, cfg *Config, m *Metrics) error {
	cmd := exec.Command("git", "-C", repo, "cat-file", "--batch-all-objects",
		"--batch-check=%(objectname) %(objecttype) %(objectsize)")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	blobs := topList{limit: cfg.Top}
	trees := topList{limit: cfg.Top}
	var overWarn []ObjectStat
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			continue
		}
		size, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}
		m.ObjectTypes[fields[1]]++
		switch fields[1] {
		case "blob":
			blobs.push(ObjectStat{OID: fields[0], Size: size})
			if size > cfg.Thresholds.WarnBlobBytes && len(overWarn) < cfg.Top {
				overWarn = append(overWarn, ObjectStat{OID: fields[0], Size: size})
			}
		case "tree":
			trees.push(ObjectStat{OID: fields[0], Size: size})
		case "commit":
			m.CommitCount++
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git cat-file --batch-all-objects: %w", err)
	}
	m.LargestBlobs = blobs.items
	m.LargestTrees = trees.items
	m.BlobsOverWarn = overWarn
	return nil
}

// gatherRefs counts refs by namespace via go-git.
func gatherRefs(repo string, m *Metrics) error {
	r, err := git.PlainOpenWithOptions(repo, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return err
	}
	iter, err := r.References()
	if err != nil {
		return err
	}
	defer iter.Close()
	return iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if !strings.HasPrefix(name, "refs/") {
			return nil
		}
		m.RefsTotal++
		switch {
		case strings.HasPrefix(name, "refs/heads/"):
			m.RefsHeads++
		case strings.HasPrefix(name, "refs/tags/"):
			m.RefsTags++
		case strings.HasPrefix(name, "refs/remotes/"):
			m.RefsRemotes++
		default:
			m.RefsOther++
		}
		return nil
	})
}

// gatherHead walks the HEAD tree for directory fan-out and path lengths.
func gatherHead(repo string, cfg *Config, m *Metrics) error {
	r, err := git.PlainOpenWithOptions(repo, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return err
	}
	head, err := r.Head()
	if err != nil {
		// empty repository: nothing to walk
		return nil
	}
	commit, err := r.CommitObject(head.Hash())
	if err != nil {
		return nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	children := make(map[string]map[string]empty)
	var longest []PathStat
	files := tree.Files()
	defer files.Close()
	err = files.ForEach(func(f *object.File) error {
		longest = append(longest, PathStat{Path: f.Name, Length: len(f.Name)})
		sort.Slice(longest, func(i, j int) bool { return longest[i].Length > longest[j].Length })
		if len(longest) > cfg.Top {
			longest = longest[:cfg.Top]
		}
		// every prefix directory gains one immediate child per distinct name
		rest := f.Name
		dir := ""
		for {
			name, tail, found := strings.Cut(rest, "/")
			set, in := children[dir]
			if !in {
				set = make(map[string]empty)
				children[dir] = set
			}
			set[name] = empty{}
			if !found {
				break
			}
			if dir == "" {
				dir = name
			} else {
				dir = dir + "/" + name
			}
			rest = tail
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.LongestPaths = longest
	for dir, set := range children {
		if len(set) > m.MaxTreeEntries {
			m.MaxTreeEntries = len(set)
			m.MaxTreeEntriesAt = dir
		}
	}
	return nil
}

// gatherHistory sweeps a data-less fast-export of all refs: blob→path
// attribution through the bolt index, commit message sizes, and parent
// fan-in.
func gatherHistory(repo string, cfg *Config, m *Metrics) error {
	index, err := newBlobPathIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	cmd := exec.Command("git", "-C", repo, "-c", "core.quotepath=false",
		"fast-export", "--all", "--no-data", "--show-original-ids",
		"--signed-tags=strip", "--tag-of-filtered-object=rewrite",
		"--fake-missing-tagger", "--use-done-feature")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var messages []CommitMessageStat
	parser := gitfilter.NewParser(stdout)
	batch := make(map[string][]byte)
sweep:
	for {
		rec, err := parser.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return err
		}
		switch r := rec.(type) {
		case *gitfilter.CommitRecord:
			if n := r.ParentCount(); n > m.MaxParents {
				m.MaxParents = n
			}
			messages = append(messages, CommitMessageStat{OID: string(r.OriginalOID), Length: len(r.Message)})
			sort.Slice(messages, func(i, j int) bool { return messages[i].Length > messages[j].Length })
			if len(messages) > cfg.Top {
				messages = messages[:cfg.Top]
			}
			for i := range r.Changes {
				fc := &r.Changes[i]
				if fc.Op != gitfilter.FileModify || len(fc.Ref) != 40 {
					continue
				}
				key := strings.ToLower(string(fc.Ref))
				if _, dup := batch[key]; dup {
					// a batch holds one sighting per oid: flush so this one counts too
					if err := index.Observe(batch); err != nil {
						return err
					}
					batch = make(map[string][]byte)
				}
				batch[key] = fc.Path
				if len(batch) >= 4096 {
					if err := index.Observe(batch); err != nil {
						return err
					}
					batch = make(map[string][]byte)
				}
			}
		case *gitfilter.DoneRecord:
			break sweep
		}
	}
	if len(batch) > 0 {
		if err := index.Observe(batch); err != nil {
			return err
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git fast-export --no-data: %w", err)
	}
	m.LargestMessages = messages

	var dups []DuplicateBlobStat
	err = index.ForEach(func(oid string, count uint64, example string) error {
		if count > 1 {
			dups = append(dups, DuplicateBlobStat{OID: oid, Paths: count, ExamplePath: example})
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Paths > dups[j].Paths })
	if len(dups) > cfg.Top {
		dups = dups[:cfg.Top]
	}
	m.DuplicateBlobs = dups

	for i := range m.LargestBlobs {
		m.LargestBlobs[i].Path = index.Example(m.LargestBlobs[i].OID)
	}
	for i := range m.BlobsOverWarn {
		m.BlobsOverWarn[i].Path = index.Example(m.BlobsOverWarn[i].OID)
	}
	return nil
}

// evaluate grades the metrics against the thresholds.
func evaluate(m *Metrics, t *Thresholds) []Warning {
	var warnings []Warning
	add := func(level WarningLevel, msg, rec string) {
		warnings = append(warnings, Warning{Level: level, Message: msg, Recommendation: rec})
	}

	switch {
	case m.TotalSizeBytes > t.CritTotalBytes:
		add(LevelCritical,
			fmt.Sprintf("repository size %.2f GiB exceeds the critical threshold", gib(m.TotalSizeBytes)),
			"rewrite history to remove large blobs, then repack")
	case m.TotalSizeBytes > t.WarnTotalBytes:
		add(LevelWarning,
			fmt.Sprintf("repository size %.2f GiB exceeds the warning threshold", gib(m.TotalSizeBytes)),
			"consider stripping oversized blobs with --max-blob-size")
	}
	if m.TotalObjects > t.WarnObjectCount {
		add(LevelWarning,
			fmt.Sprintf("%d objects exceed the object-count threshold", m.TotalObjects),
			"run git gc, or prune unneeded history")
	}
	if m.RefsTotal > t.WarnRefCount {
		add(LevelWarning,
			fmt.Sprintf("%d refs exceed the ref-count threshold", m.RefsTotal),
			"delete stale tags and branches before rewriting")
	}
	for _, b := range m.BlobsOverWarn {
		add(LevelWarning,
			fmt.Sprintf("blob %s is %.1f MiB%s", shortOID(b.OID), mib(b.Size), pathSuffix(b.Path)),
			"strip it with --max-blob-size or --strip-blobs-with-ids")
	}
	if m.MaxTreeEntries > t.WarnTreeEntries {
		add(LevelWarning,
			fmt.Sprintf("directory %q has %d entries", m.MaxTreeEntriesAt, m.MaxTreeEntries),
			"split wide directories; checkouts and status scans slow down")
	}
	for _, p := range m.LongestPaths {
		if p.Length > t.WarnPathLength {
			add(LevelWarning,
				fmt.Sprintf("path of %d bytes: %q", p.Length, p.Path),
				"long paths break checkouts on some platforms")
		}
	}
	for _, d := range m.DuplicateBlobs {
		if int(d.Paths) > t.WarnDuplicatePaths {
			add(LevelInfo,
				fmt.Sprintf("blob %s appears at %d filechange sites%s", shortOID(d.OID), d.Paths, pathSuffix(d.ExamplePath)),
				"")
		}
	}
	for _, c := range m.LargestMessages {
		if c.Length > t.WarnCommitMsgBytes {
			add(LevelInfo,
				fmt.Sprintf("commit %s has a %d byte message", shortOID(c.OID), c.Length),
				"")
		}
	}
	if m.MaxParents > t.WarnMaxParents {
		add(LevelInfo,
			fmt.Sprintf("a commit has %d parents", m.MaxParents),
			"octopus merges complicate history rewrites")
	}
	return warnings
}

func shortOID(oid string) string {
	if len(oid) > 12 {
		return oid[:12]
	}
	return oid
}

func pathSuffix(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf(" (e.g. %q)", path)
}

func mib(b uint64) float64 { return float64(b) / (1 << 20) }
func gib(b uint64) float64 { return float64(b) / (1 << 30) }
