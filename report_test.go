package gitfilter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReportSampleCap(t *testing.T) {
	r := &Report{}
	for i := 0; i < reportSampleLimit*2; i++ {
		r.samplePath(&r.SamplePathsSize, []byte(fmt.Sprintf("p%d", i)))
	}
	if len(r.SamplePathsSize) != reportSampleLimit {
		t.Errorf("samples = %d, want %d", len(r.SamplePathsSize), reportSampleLimit)
	}
	// duplicates are not re-added
	r2 := &Report{}
	r2.samplePath(&r2.SamplePathsModified, []byte("same"))
	r2.samplePath(&r2.SamplePathsModified, []byte("same"))
	if len(r2.SamplePathsModified) != 1 {
		t.Errorf("duplicate sample recorded: %v", r2.SamplePathsModified)
	}
}

func TestReportWrite(t *testing.T) {
	dir := t.TempDir()
	r := &Report{
		BlobsStrippedBySize: 1,
		CommitsPruned:       2,
		SamplePathsSize:     []string{"big.bin"},
	}
	if err := r.Write(dir); err != nil {
		t.Fatal(err)
	}

	text, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Blobs stripped by size: 1",
		"Commits pruned: 2",
		"big.bin",
	} {
		if !strings.Contains(string(text), want) {
			t.Errorf("report.txt missing %q:\n%s", want, text)
		}
	}

	y, err := os.ReadFile(filepath.Join(dir, ReportYAMLFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(y), "blobs_stripped_by_size: 1") {
		t.Errorf("report.yaml missing counter:\n%s", y)
	}
}
