package gitfilter

import (
	"os"
	"os/exec"
	"path/filepath"
)

// exporterCmd builds the git fast-export invocation for the source
// repository. The flag set is part of the engine contract: original ids are
// always shown, signatures on tags are stripped, tags of filtered objects
// are rewritten, missing taggers are faked, excluded parents are referenced
// by oid, and the stream ends with an explicit done record.
func exporterCmd(opts *Options) *exec.Cmd {
	if opts.FEStreamOverride != "" {
		// test override: replay a prebuilt stream
		return exec.Command("cat", opts.FEStreamOverride)
	}
	args := []string{"-C", opts.Source}
	if opts.QuotePath {
		// engine-side quoting only; keep git from double-quoting paths
		args = append(args, "-c", "core.quotepath=false")
	}
	args = append(args, "fast-export")
	args = append(args, opts.Refs...)
	args = append(args,
		"--show-original-ids",
		"--signed-tags=strip",
		"--tag-of-filtered-object=rewrite",
		"--fake-missing-tagger",
		"--reference-excluded-parents",
		"--use-done-feature",
	)
	if opts.MarkTags {
		args = append(args, "--mark-tags")
	}
	if opts.DateOrder {
		args = append(args, "--date-order")
	}
	if opts.NoData {
		args = append(args, "--no-data")
	}
	if opts.Reencode {
		args = append(args, "--reencode=yes")
	}
	cmd := exec.Command("git", args...)
	if !opts.Quiet {
		cmd.Stderr = os.Stderr
	}
	return cmd
}

// importerCmd builds the git fast-import invocation for the target
// repository: forced, quiet, permissive date parsing, case-sensitive tree
// handling, and a mark-export file under the results directory so the new
// object ids can be joined back onto the mark table.
func importerCmd(opts *Options, resultsDir string) *exec.Cmd {
	cmd := exec.Command("git",
		"-C", opts.Target,
		"-c", "core.ignorecase=false",
		"fast-import",
		"--force",
		"--quiet",
		"--date-format=raw-permissive",
		"--export-marks="+filepath.Join(resultsDir, TargetMarksFile),
	)
	cmd.Stderr = os.Stderr
	return cmd
}
