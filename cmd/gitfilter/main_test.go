package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fardream/gitfilter"
)

func TestBuildOptionsDefaults(t *testing.T) {
	c := newRootCmd()
	opts, err := c.buildOptions()
	require.NoError(t, err)

	assert.Equal(t, ".", opts.Source)
	assert.Equal(t, []string{"--all"}, opts.Refs)
	assert.True(t, opts.Reset)
	assert.True(t, opts.Reencode)
	assert.True(t, opts.MarkTags)
	assert.Equal(t, gitfilter.CleanupNone, opts.Cleanup)
}

func TestBuildOptionsPathRules(t *testing.T) {
	c := newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{
		"--path", "sub/",
		"--path-glob", "**/*.md",
		"--invert-paths",
		"--path-rename", "old/:new/",
		"--subdirectory-filter", "svc",
	}))
	opts, err := c.buildOptions()
	require.NoError(t, err)

	assert.True(t, opts.Filter.Invert)
	assert.Len(t, opts.Filter.Prefixes, 2) // --path plus the subdirectory filter
	assert.Len(t, opts.Filter.Globs, 1)
	assert.Len(t, opts.Filter.Renames, 2)
}

func TestBuildOptionsBadRegex(t *testing.T) {
	c := newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--path-regex", "(["}))
	_, err := c.buildOptions()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gitfilter.ErrUsage))
}

func TestBuildOptionsBadRename(t *testing.T) {
	c := newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--tag-rename", "missing-colon"}))
	_, err := c.buildOptions()
	assert.True(t, errors.Is(err, gitfilter.ErrInvalidRename))
}

func TestBuildOptionsDebugGate(t *testing.T) {
	t.Setenv("GITFILTER_DEBUG", "")

	c := newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--date-order"}))
	_, err := c.buildOptions()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gitfilter.ErrUsage))

	c = newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--date-order", "--debug-mode"}))
	opts, err := c.buildOptions()
	require.NoError(t, err)
	assert.True(t, opts.DateOrder)

	t.Setenv("GITFILTER_DEBUG", "1")
	c = newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--no-reencode"}))
	opts, err = c.buildOptions()
	require.NoError(t, err)
	assert.False(t, opts.Reencode)
}

func TestBuildOptionsCleanupModes(t *testing.T) {
	c := newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--cleanup"}))
	opts, err := c.buildOptions()
	require.NoError(t, err)
	assert.Equal(t, gitfilter.CleanupStandard, opts.Cleanup)

	c = newRootCmd()
	require.NoError(t, c.Flags().Parse([]string{"--cleanup-aggressive", "--debug-mode"}))
	opts, err = c.buildOptions()
	require.NoError(t, err)
	assert.Equal(t, gitfilter.CleanupAggressive, opts.Cleanup)
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, gitfilter.ExitOK, gitfilter.ExitCode(nil))
	assert.Equal(t, gitfilter.ExitUsage, gitfilter.ExitCode(gitfilter.ErrUsage))
	assert.Equal(t, gitfilter.ExitPreflight, gitfilter.ExitCode(gitfilter.ErrPreflight))
	assert.Equal(t, gitfilter.ExitSubprocess, gitfilter.ExitCode(gitfilter.ErrSubprocess))
	assert.Equal(t, gitfilter.ExitInternal, gitfilter.ExitCode(errors.New("anything else")))
}
