package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fardream/gitfilter"
	"github.com/fardream/gitfilter/sanity"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(gitfilter.ExitCode(err))
	}
}

type rootCmd struct {
	*cobra.Command

	source string
	target string
	refs   []string

	paths          []string
	pathGlobs      []string
	pathRegexes    []string
	invertPaths    bool
	pathRenames    []string
	subdirFilter   string
	toSubdirFilter string

	replaceMessage string
	replaceText    string
	maxBlobSize    int64
	stripBlobIDs   string

	tagRename    string
	branchRename string

	dryRun        bool
	quiet         bool
	writeReport   bool
	backup        bool
	backupPath    string
	partial       bool
	sensitive     bool
	noFetch       bool
	force         bool
	enforceSanity bool
	cleanup       bool

	// debug overlay
	debugMode         bool
	dateOrder         bool
	noData            bool
	noReencode        bool
	noQuotePath       bool
	noMarkTags        bool
	noReset           bool
	cleanupAggressive bool
	feStreamOverride  string
}

func newRootCmd() *rootCmd {
	c := &rootCmd{
		Command: &cobra.Command{
			Use:           "gitfilter",
			Short:         "rewrite git history with path, content and ref rules",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		source: ".",
		target: ".",
	}

	f := c.Flags()
	f.StringVar(&c.source, "source", c.source, "source git working directory")
	f.StringVar(&c.target, "target", c.target, "target git working directory")
	f.StringArrayVar(&c.refs, "refs", nil, "ref to export (repeatable; defaults to --all)")

	f.StringArrayVar(&c.paths, "path", nil, "include only files under this prefix (repeatable)")
	f.StringArrayVar(&c.pathGlobs, "path-glob", nil, "include by glob (repeatable)")
	f.StringArrayVar(&c.pathRegexes, "path-regex", nil, "include by regex (repeatable)")
	f.BoolVar(&c.invertPaths, "invert-paths", false, "invert the path selection (drop matches)")
	f.StringArrayVar(&c.pathRenames, "path-rename", nil, "rename path prefix, OLD:NEW (repeatable)")
	f.StringVar(&c.subdirFilter, "subdirectory-filter", "", "keep only DIR and make it the new root")
	f.StringVar(&c.toSubdirFilter, "to-subdirectory-filter", "", "move the whole tree under DIR")

	f.StringVar(&c.replaceMessage, "replace-message", "", "replacement rules file for commit/tag messages")
	f.StringVar(&c.replaceText, "replace-text", "", "replacement rules file for blob contents")
	f.Int64Var(&c.maxBlobSize, "max-blob-size", 0, "drop blobs larger than BYTES")
	f.StringVar(&c.stripBlobIDs, "strip-blobs-with-ids", "", "drop blobs listed by 40-hex id in FILE")

	f.StringVar(&c.tagRename, "tag-rename", "", "rename tags with prefix OLD:NEW")
	f.StringVar(&c.branchRename, "branch-rename", "", "rename branches with prefix OLD:NEW")

	f.BoolVar(&c.dryRun, "dry-run", false, "filter and write audit maps without touching refs")
	f.BoolVar(&c.quiet, "quiet", false, "reduce output noise")
	f.BoolVar(&c.writeReport, "write-report", false, "write report.txt and report.yaml")
	f.BoolVar(&c.backup, "backup", false, "create a bundle of the selected refs before rewriting")
	f.StringVar(&c.backupPath, "backup-path", "", "destination directory or file for the bundle")
	f.BoolVar(&c.partial, "partial", false, "only rewrite this repo; skip origin migration and cleanup")
	f.BoolVar(&c.sensitive, "sensitive", false, "sensitive-history mode: fetch all refs, keep origin")
	f.BoolVar(&c.noFetch, "no-fetch", false, "in sensitive mode, skip fetching from origin")
	f.BoolVarP(&c.force, "force", "f", false, "bypass preflight failures")
	f.BoolVar(&c.enforceSanity, "enforce-sanity", false, "run strict preflight checks before rewriting")
	f.BoolVar(&c.cleanup, "cleanup", false, "run reflog expire and gc after the rewrite")

	f.BoolVar(&c.debugMode, "debug-mode", false, "enable debug-only flags (same as GITFILTER_DEBUG=1)")
	f.BoolVar(&c.dateOrder, "date-order", false, "debug: request date-order traversal from fast-export")
	f.BoolVar(&c.noData, "no-data", false, "debug: do not include blob data in fast-export")
	f.BoolVar(&c.noReencode, "no-reencode", false, "debug: disable re-encoding of messages to UTF-8")
	f.BoolVar(&c.noQuotePath, "no-quotepath", false, "debug: keep git's own path quoting")
	f.BoolVar(&c.noMarkTags, "no-mark-tags", false, "debug: do not mark annotated tags")
	f.BoolVar(&c.noReset, "no-reset", false, "debug: skip the final git reset --hard")
	f.BoolVar(&c.cleanupAggressive, "cleanup-aggressive", false, "debug: aggressive reflog expire and gc")
	f.StringVar(&c.feStreamOverride, "fe-stream-override", "", "debug: read the fast-export stream from FILE")
	for _, name := range []string{"date-order", "no-data", "no-reencode", "no-quotepath",
		"no-mark-tags", "no-reset", "cleanup-aggressive", "fe-stream-override"} {
		_ = f.MarkHidden(name)
	}

	c.RunE = func(*cobra.Command, []string) error {
		return c.run()
	}
	c.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%v: %w", err, gitfilter.ErrUsage)
	})

	c.AddCommand(newAnalyzeCmd().Command)

	return c
}

func debugEnabled(flagSet bool) bool {
	if flagSet {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(os.Getenv("GITFILTER_DEBUG")))
	switch v {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

// buildOptions validates the flag set into engine options.
func (c *rootCmd) buildOptions() (*gitfilter.Options, error) {
	opts := gitfilter.NewOptions()
	opts.Source = c.source
	opts.Target = c.target
	if len(c.refs) > 0 {
		opts.Refs = c.refs
	}

	for _, p := range c.paths {
		opts.AddPath(p)
	}
	for _, g := range c.pathGlobs {
		opts.AddPathGlob(g)
	}
	for _, expr := range c.pathRegexes {
		if err := opts.AddPathRegex(expr); err != nil {
			return nil, err
		}
	}
	opts.Filter.Invert = c.invertPaths
	for _, spec := range c.pathRenames {
		if err := opts.AddPathRename(spec); err != nil {
			return nil, err
		}
	}
	if c.subdirFilter != "" {
		opts.SetSubdirectoryFilter(c.subdirFilter)
	}
	if c.toSubdirFilter != "" {
		opts.SetToSubdirectoryFilter(c.toSubdirFilter)
	}

	if c.replaceMessage != "" {
		r, err := gitfilter.NewReplacerFromFile(c.replaceMessage)
		if err != nil {
			return nil, fmt.Errorf("--replace-message: %w", err)
		}
		opts.ReplaceMessage = r
	}
	if c.replaceText != "" {
		r, err := gitfilter.NewReplacerFromFile(c.replaceText)
		if err != nil {
			return nil, fmt.Errorf("--replace-text: %w", err)
		}
		opts.ReplaceText = r
	}
	opts.MaxBlobSize = c.maxBlobSize
	if c.stripBlobIDs != "" {
		if err := opts.LoadStripBlobIDs(c.stripBlobIDs); err != nil {
			return nil, err
		}
	}

	if c.tagRename != "" {
		if err := opts.SetTagRename(c.tagRename); err != nil {
			return nil, err
		}
	}
	if c.branchRename != "" {
		if err := opts.SetBranchRename(c.branchRename); err != nil {
			return nil, err
		}
	}

	opts.DryRun = c.dryRun
	opts.Quiet = c.quiet
	opts.WriteReport = c.writeReport
	opts.Backup = c.backup
	opts.BackupPath = c.backupPath
	opts.Partial = c.partial
	opts.Sensitive = c.sensitive
	opts.NoFetch = c.noFetch
	opts.Force = c.force
	opts.EnforceSanity = c.enforceSanity
	if c.cleanup {
		opts.Cleanup = gitfilter.CleanupStandard
	}

	opts.DebugMode = debugEnabled(c.debugMode)
	debugFlags := []struct {
		set  bool
		name string
	}{
		{c.dateOrder, "--date-order"},
		{c.noReencode, "--no-reencode"},
		{c.noQuotePath, "--no-quotepath"},
		{c.noMarkTags, "--no-mark-tags"},
		{c.noReset, "--no-reset"},
		{c.cleanupAggressive, "--cleanup-aggressive"},
		{c.feStreamOverride != "", "--fe-stream-override"},
	}
	for _, df := range debugFlags {
		if df.set && !opts.DebugMode {
			return nil, fmt.Errorf("%s needs --debug-mode or GITFILTER_DEBUG=1: %w",
				df.name, gitfilter.ErrUsage)
		}
	}
	opts.DateOrder = c.dateOrder
	opts.NoData = c.noData
	opts.Reencode = !c.noReencode
	opts.QuotePath = !c.noQuotePath
	opts.MarkTags = !c.noMarkTags
	opts.Reset = !c.noReset
	if c.cleanupAggressive {
		opts.Cleanup = gitfilter.CleanupAggressive
	}
	opts.FEStreamOverride = c.feStreamOverride

	return opts, nil
}

func (c *rootCmd) run() error {
	opts, err := c.buildOptions()
	if err != nil {
		if !errors.Is(err, gitfilter.ErrUsage) && !errors.Is(err, gitfilter.ErrInvalidRule) &&
			!errors.Is(err, gitfilter.ErrInvalidRename) {
			err = fmt.Errorf("%v: %w", err, gitfilter.ErrUsage)
		}
		return err
	}

	if opts.EnforceSanity {
		if err := sanity.Preflight(opts); err != nil {
			return err
		}
	}

	if err := gitfilter.Run(opts); err != nil {
		return err
	}
	if !opts.DryRun {
		if err := sanity.MarkRan(opts.Target); err != nil {
			fmt.Fprintln(os.Stderr, "warning: failed to record run marker:", err)
		}
	}
	return nil
}
