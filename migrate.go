package gitfilter

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fetchAllRefsIfNeeded runs the sensitive-mode pre-fetch: every namespace is
// pulled from origin so no sensitive history survives in an unexported ref.
// The fetch crosses the network, so transient failures are retried.
func fetchAllRefsIfNeeded(opts *Options) {
	if !opts.Sensitive || opts.NoFetch || opts.DryRun {
		return
	}
	if !hasRemote(opts.Source, "origin") {
		return
	}
	logger.Info("fetching all refs from origin for sensitive-history coverage")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	policy := backoff.WithMaxRetries(bo, 4)
	err := backoff.Retry(func() error {
		return gitStatus(opts.Source, "fetch", "-q", "--prune", "--update-head-ok",
			"--refmap", "", "origin", "+refs/*:refs/*")
	}, policy)
	if err != nil {
		logger.Warn("fetch from origin failed, continuing with local refs", "err", err)
	}
}

// migrateOriginToHeads turns refs/remotes/origin/* into refs/heads/* before
// the export so a fresh clone's history is fully covered. Skipped for
// partial and dry runs.
func migrateOriginToHeads(opts *Options) error {
	if opts.Partial || opts.DryRun {
		return nil
	}
	refs, err := allRefs(opts.Source)
	if err != nil {
		return nil
	}

	var payload strings.Builder
	for refname, oid := range refs {
		if !strings.HasPrefix(refname, "refs/remotes/origin/") {
			continue
		}
		if refname == "refs/remotes/origin/HEAD" {
			fmt.Fprintf(&payload, "delete %s\n", refname)
			continue
		}
		newRef := "refs/heads/" + strings.TrimPrefix(refname, "refs/remotes/origin/")
		if _, exists := refs[newRef]; !exists {
			fmt.Fprintf(&payload, "create %s %s\n", newRef, oid)
		}
		fmt.Fprintf(&payload, "delete %s\n", refname)
	}
	if payload.Len() == 0 {
		return nil
	}
	return updateRefBatch(opts.Source, []byte(payload.String()))
}

// removeOriginIfApplicable drops the origin remote after a full rewrite so
// nothing gets pushed back to the pre-rewrite remote by habit. Sensitive and
// partial runs keep it.
func removeOriginIfApplicable(opts *Options) {
	if opts.Sensitive || opts.Partial || opts.DryRun {
		return
	}
	if !hasRemote(opts.Target, "origin") {
		return
	}
	if url := remoteURL(opts.Target, "origin"); url != "" {
		logger.Info("removing origin remote", "url", url)
	} else {
		logger.Info("removing origin remote")
	}
	if err := gitStatus(opts.Target, "remote", "rm", "origin"); err != nil {
		logger.Warn("failed to remove origin remote", "err", err)
	}
}
