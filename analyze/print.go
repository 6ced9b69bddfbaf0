package analyze

import (
	"encoding/json"
	"fmt"
	"io"
)

func printJSON(report *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printHuman(report *Report, cfg *Config, w io.Writer) {
	m := &report.Metrics

	section(w, "Repository footprint")
	fmt.Fprintf(w, "  objects: %d total (%d loose, %d packed)\n", m.TotalObjects, m.LooseObjects, m.PackedObjects)
	fmt.Fprintf(w, "  size: %.2f GiB (%.2f GiB packed)\n", gib(m.TotalSizeBytes), gib(m.PackedSizeBytes))
	if len(m.ObjectTypes) > 0 {
		fmt.Fprintf(w, "  by type:")
		for _, kind := range []string{"commit", "tree", "blob", "tag"} {
			if n, in := m.ObjectTypes[kind]; in {
				fmt.Fprintf(w, " %s=%d", kind, n)
			}
		}
		fmt.Fprintln(w)
	}

	section(w, "References")
	fmt.Fprintf(w, "  total: %d (heads=%d tags=%d remotes=%d other=%d)\n",
		m.RefsTotal, m.RefsHeads, m.RefsTags, m.RefsRemotes, m.RefsOther)

	if len(m.LargestBlobs) > 0 {
		section(w, fmt.Sprintf("Largest blobs (top %d)", cfg.Top))
		for _, b := range m.LargestBlobs {
			fmt.Fprintf(w, "  %s  %10.2f MiB%s\n", shortOID(b.OID), mib(b.Size), pathSuffix(b.Path))
		}
	}
	if len(m.LargestTrees) > 0 {
		section(w, fmt.Sprintf("Largest trees (top %d)", cfg.Top))
		for _, t := range m.LargestTrees {
			fmt.Fprintf(w, "  %s  %10.2f KiB\n", shortOID(t.OID), float64(t.Size)/1024)
		}
	}
	if len(m.DuplicateBlobs) > 0 {
		section(w, "Most duplicated blobs")
		for _, d := range m.DuplicateBlobs {
			fmt.Fprintf(w, "  %s  %d sites%s\n", shortOID(d.OID), d.Paths, pathSuffix(d.ExamplePath))
		}
	}
	if len(m.LongestPaths) > 0 {
		section(w, "Longest paths")
		for _, p := range m.LongestPaths {
			fmt.Fprintf(w, "  %4d  %s\n", p.Length, p.Path)
		}
	}
	if m.MaxTreeEntries > 0 {
		fmt.Fprintf(w, "\nWidest directory: %q with %d entries\n", m.MaxTreeEntriesAt, m.MaxTreeEntries)
	}
	if m.MaxParents > 0 {
		fmt.Fprintf(w, "Max parents on a commit: %d\n", m.MaxParents)
	}

	section(w, "Findings")
	if len(report.Warnings) == 0 {
		fmt.Fprintln(w, "  nothing above the configured thresholds")
		return
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  [%s] %s\n", warning.Level, warning.Message)
		if warning.Recommendation != "" {
			fmt.Fprintf(w, "      -> %s\n", warning.Recommendation)
		}
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n== %s ==\n", title)
}
