package gitfilter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CreateBackup writes a pre-rewrite bundle of the selected refs. The default
// destination is <git-dir>/filter-repo/backup-<UTC-timestamp>.bundle; a
// directory backup path gets the generated name inside it, a path with an
// extension is used verbatim. Dry runs skip the backup.
func CreateBackup(opts *Options) (string, error) {
	if opts.DryRun {
		return "", nil
	}
	gd, err := gitDir(opts.Source)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("backup-%s.bundle", time.Now().UTC().Format("20060102T150405Z"))
	var bundlePath string
	switch {
	case opts.BackupPath == "":
		dir := filepath.Join(gd, ResultsDirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		bundlePath = filepath.Join(dir, name)
	case filepath.Ext(opts.BackupPath) != "":
		bundlePath = opts.BackupPath
		if !filepath.IsAbs(bundlePath) {
			bundlePath = filepath.Join(opts.Source, bundlePath)
		}
		if parent := filepath.Dir(bundlePath); parent != "" {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return "", err
			}
		}
	default:
		dir := opts.BackupPath
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(opts.Source, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		bundlePath = filepath.Join(dir, name)
	}

	if len(opts.Refs) == 0 {
		return "", fmt.Errorf("no refs selected for backup: %w", ErrUsage)
	}
	args := append([]string{"bundle", "create", bundlePath}, opts.Refs...)
	if err := gitStatus(opts.Source, args...); err != nil {
		return "", err
	}
	return bundlePath, nil
}
