package gitfilter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

const reportSampleLimit = 20

// Report accumulates the action counters of one run. It is written as a
// human-readable report.txt and a machine-readable report.yaml when
// requested.
type Report struct {
	BlobsStrippedBySize int      `yaml:"blobs_stripped_by_size"`
	BlobsStrippedByID   int      `yaml:"blobs_stripped_by_id"`
	BlobsModified       int      `yaml:"blobs_modified"`
	CommitsPruned       int      `yaml:"commits_pruned"`
	TagsDeduped         int      `yaml:"tags_deduped"`
	RefsRenamed         int      `yaml:"refs_renamed"`
	RefsDeleted         int      `yaml:"refs_deleted"`
	SamplePathsSize     []string `yaml:"sample_paths_size,omitempty"`
	SamplePathsID       []string `yaml:"sample_paths_id,omitempty"`
	SamplePathsModified []string `yaml:"sample_paths_modified,omitempty"`
}

// samplePath records up to reportSampleLimit distinct example paths.
func (r *Report) samplePath(dst *[]string, path []byte) {
	if len(*dst) >= reportSampleLimit {
		return
	}
	s := string(path)
	for _, have := range *dst {
		if have == s {
			return
		}
	}
	*dst = append(*dst, s)
}

// Write renders the report into the results directory.
func (r *Report) Write(resultsDir string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Blobs stripped by size: %d\n", r.BlobsStrippedBySize)
	fmt.Fprintf(&b, "Blobs stripped by id: %d\n", r.BlobsStrippedByID)
	fmt.Fprintf(&b, "Blobs modified by replace-text: %d\n", r.BlobsModified)
	fmt.Fprintf(&b, "Commits pruned: %d\n", r.CommitsPruned)
	fmt.Fprintf(&b, "Tags deduplicated: %d\n", r.TagsDeduped)
	fmt.Fprintf(&b, "Refs renamed: %d\n", r.RefsRenamed)
	fmt.Fprintf(&b, "Refs deleted: %d\n", r.RefsDeleted)
	writeSamples := func(title string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(&b, "\nSample paths (%s):\n", title)
		for _, p := range paths {
			fmt.Fprintf(&b, "%s\n", p)
		}
	}
	writeSamples("size", r.SamplePathsSize)
	writeSamples("id", r.SamplePathsID)
	writeSamples("modified", r.SamplePathsModified)

	if err := os.WriteFile(filepath.Join(resultsDir, ReportFile), []byte(b.String()), 0o644); err != nil {
		return err
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(resultsDir, ReportYAMLFile), data, 0o644)
}
