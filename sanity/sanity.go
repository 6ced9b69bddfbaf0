// Package sanity implements the preflight checks run before a history
// rewrite. The checks are conservative: they exist to stop a rewrite of a
// repository that is not a fresh clone, has local state that would be lost,
// or already went through a rewrite. --force bypasses every failure.
package sanity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/fardream/gitfilter"
)

var (
	ErrGitMissing       = errors.New("git executable not found in PATH")
	ErrDirtyWorktree    = errors.New("worktree has uncommitted changes")
	ErrStashedState     = errors.New("repository has stashed state")
	ErrUnexpectedRemote = errors.New("repository has remotes besides origin")
	ErrReplaceRefs      = errors.New("repository already has replace refs")
	ErrAlreadyRan       = errors.New("a previous rewrite already ran here")
	ErrModeConflict     = errors.New("conflicting sensitive-mode options")
)

// AlreadyRanMarker is the file the engine leaves under the results directory
// after a successful run.
const AlreadyRanMarker = "already_ran"

// Preflight runs every check against the source and target of opts. The
// returned error wraps [gitfilter.ErrPreflight] so the caller maps it to the
// preflight exit code. With opts.Force the failures are logged and
// swallowed.
func Preflight(opts *gitfilter.Options) error {
	err := preflight(opts)
	if err == nil {
		return nil
	}
	if opts.Force {
		slog.Warn("preflight failed, continuing because of --force", "err", err)
		return nil
	}
	return fmt.Errorf("%w: %w", gitfilter.ErrPreflight, err)
}

func preflight(opts *gitfilter.Options) error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitMissing
	}

	if err := validateModes(opts); err != nil {
		return err
	}

	repos := []string{opts.Source}
	if opts.Target != opts.Source {
		repos = append(repos, opts.Target)
	}
	for _, dir := range repos {
		if err := checkRepo(dir); err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
	}

	return checkAlreadyRan(opts.Target)
}

func validateModes(opts *gitfilter.Options) error {
	if opts.Sensitive && opts.Partial {
		return fmt.Errorf("%w: --sensitive needs full ref coverage, --partial excludes it", ErrModeConflict)
	}
	if opts.NoFetch && !opts.Sensitive {
		return fmt.Errorf("%w: --no-fetch only applies to --sensitive runs", ErrModeConflict)
	}
	return nil
}

func checkRepo(dir string) error {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("%v: %w", err, gitfilter.ErrNotARepo)
	}

	if err := checkGitDirStructure(dir); err != nil {
		return err
	}
	if err := checkWorktreeClean(repo); err != nil {
		return err
	}
	if err := checkNoStash(repo); err != nil {
		return err
	}
	if err := checkRemotes(repo); err != nil {
		return err
	}
	return checkNoReplaceRefs(repo)
}

// checkGitDirStructure verifies the git dir matches the repository shape:
// bare repositories are their own git dir, non-bare ones use .git.
func checkGitDirStructure(dir string) error {
	bareOut, err := exec.Command("git", "-C", dir, "rev-parse", "--is-bare-repository").Output()
	if err != nil {
		return fmt.Errorf("%s: %w", dir, gitfilter.ErrNotARepo)
	}
	gdOut, err := exec.Command("git", "-C", dir, "rev-parse", "--git-dir").Output()
	if err != nil {
		return fmt.Errorf("%s: %w", dir, gitfilter.ErrNotARepo)
	}
	bare := strings.TrimSpace(string(bareOut)) == "true"
	gd := strings.TrimSpace(string(gdOut))
	if bare {
		if filepath.Base(gd) == ".git" {
			return fmt.Errorf("bare repository with a .git directory: %s", gd)
		}
		return nil
	}
	if filepath.Base(gd) != ".git" {
		return fmt.Errorf("non-bare repository with git dir %s", gd)
	}
	return nil
}

func checkWorktreeClean(repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil
		}
		return err
	}
	status, err := wt.Status()
	if err != nil {
		return err
	}
	if !status.IsClean() {
		dirty := make([]string, 0, 4)
		for path := range status {
			dirty = append(dirty, path)
			if len(dirty) == 4 {
				break
			}
		}
		return fmt.Errorf("%w: %s", ErrDirtyWorktree, strings.Join(dirty, ", "))
	}
	return nil
}

func checkNoStash(repo *git.Repository) error {
	_, err := repo.Reference(plumbing.ReferenceName("refs/stash"), true)
	if err == nil {
		return ErrStashedState
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	return err
}

func checkRemotes(repo *git.Repository) error {
	remotes, err := repo.Remotes()
	if err != nil {
		return err
	}
	for _, r := range remotes {
		if r.Config().Name != "origin" {
			return fmt.Errorf("%w: %s", ErrUnexpectedRemote, r.Config().Name)
		}
	}
	return nil
}

func checkNoReplaceRefs(repo *git.Repository) error {
	iter, err := repo.References()
	if err != nil {
		return err
	}
	defer iter.Close()
	return iter.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), "refs/replace/") {
			return fmt.Errorf("%w: %s", ErrReplaceRefs, ref.Name())
		}
		return nil
	})
}

func checkAlreadyRan(target string) error {
	out, err := exec.Command("git", "-C", target, "rev-parse", "--git-dir").Output()
	if err != nil {
		return fmt.Errorf("%s: %w", target, gitfilter.ErrNotARepo)
	}
	gd := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gd) {
		gd = filepath.Join(target, gd)
	}
	marker := filepath.Join(gd, gitfilter.ResultsDirName, AlreadyRanMarker)
	if _, err := os.Stat(marker); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRan, marker)
	}
	return nil
}

// MarkRan records a successful run for the next preflight.
func MarkRan(target string) error {
	out, err := exec.Command("git", "-C", target, "rev-parse", "--git-dir").Output()
	if err != nil {
		return fmt.Errorf("%s: %w", target, gitfilter.ErrNotARepo)
	}
	gd := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gd) {
		gd = filepath.Join(target, gd)
	}
	dir := filepath.Join(gd, gitfilter.ResultsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, AlreadyRanMarker), []byte("1\n"), 0o644)
}
