package analyze

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the repo-local config file consulted for analysis
// defaults. LegacyConfigFileName is honored as a fallback for setups that
// predate the rename.
const (
	ConfigFileName       = ".gitfilter.toml"
	LegacyConfigFileName = ".filter-repo-rs.toml"
)

// Thresholds are the warning boundaries of the analysis report.
type Thresholds struct {
	WarnTotalBytes     uint64 `toml:"warn_total_bytes" json:"warn_total_bytes"`
	CritTotalBytes     uint64 `toml:"crit_total_bytes" json:"crit_total_bytes"`
	WarnBlobBytes      uint64 `toml:"warn_blob_bytes" json:"warn_blob_bytes"`
	WarnRefCount       int    `toml:"warn_ref_count" json:"warn_ref_count"`
	WarnObjectCount    uint64 `toml:"warn_object_count" json:"warn_object_count"`
	WarnTreeEntries    int    `toml:"warn_tree_entries" json:"warn_tree_entries"`
	WarnPathLength     int    `toml:"warn_path_length" json:"warn_path_length"`
	WarnDuplicatePaths int    `toml:"warn_duplicate_paths" json:"warn_duplicate_paths"`
	WarnCommitMsgBytes int    `toml:"warn_commit_msg_bytes" json:"warn_commit_msg_bytes"`
	WarnMaxParents     int    `toml:"warn_max_parents" json:"warn_max_parents"`
}

// DefaultThresholds returns the built-in warning boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnTotalBytes:     1 << 30,
		CritTotalBytes:     5 << 30,
		WarnBlobBytes:      10 << 20,
		WarnRefCount:       20_000,
		WarnObjectCount:    10_000_000,
		WarnTreeEntries:    2_000,
		WarnPathLength:     200,
		WarnDuplicatePaths: 1_000,
		WarnCommitMsgBytes: 10_000,
		WarnMaxParents:     8,
	}
}

// Config selects what the analysis reports and how.
type Config struct {
	JSON       bool       `toml:"json"`
	Top        int        `toml:"top"`
	Thresholds Thresholds `toml:"thresholds"`
}

// DefaultConfig returns the analysis defaults.
func DefaultConfig() *Config {
	return &Config{Top: 10, Thresholds: DefaultThresholds()}
}

type fileConfig struct {
	Analyze *Config `toml:"analyze"`
}

// ApplyFile merges the analyze section of a TOML config file into c.
// A missing file is not an error unless required is set.
func (c *Config) ApplyFile(path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if fc.Analyze == nil {
		return nil
	}
	if fc.Analyze.Top > 0 {
		c.Top = fc.Analyze.Top
	}
	if fc.Analyze.JSON {
		c.JSON = true
	}
	mergeThresholds(&c.Thresholds, &fc.Analyze.Thresholds)
	return nil
}

func mergeThresholds(dst, src *Thresholds) {
	if src.WarnTotalBytes > 0 {
		dst.WarnTotalBytes = src.WarnTotalBytes
	}
	if src.CritTotalBytes > 0 {
		dst.CritTotalBytes = src.CritTotalBytes
	}
	if src.WarnBlobBytes > 0 {
		dst.WarnBlobBytes = src.WarnBlobBytes
	}
	if src.WarnRefCount > 0 {
		dst.WarnRefCount = src.WarnRefCount
	}
	if src.WarnObjectCount > 0 {
		dst.WarnObjectCount = src.WarnObjectCount
	}
	if src.WarnTreeEntries > 0 {
		dst.WarnTreeEntries = src.WarnTreeEntries
	}
	if src.WarnPathLength > 0 {
		dst.WarnPathLength = src.WarnPathLength
	}
	if src.WarnDuplicatePaths > 0 {
		dst.WarnDuplicatePaths = src.WarnDuplicatePaths
	}
	if src.WarnCommitMsgBytes > 0 {
		dst.WarnCommitMsgBytes = src.WarnCommitMsgBytes
	}
	if src.WarnMaxParents > 0 {
		dst.WarnMaxParents = src.WarnMaxParents
	}
}

// LoadRepoConfig loads the repo-local config, trying the current name first
// and the legacy name second. explicit overrides both when non-empty.
func LoadRepoConfig(repo string, explicit string) (*Config, error) {
	cfg := DefaultConfig()
	if explicit != "" {
		return cfg, cfg.ApplyFile(explicit, true)
	}
	for _, name := range []string{ConfigFileName, LegacyConfigFileName} {
		path := repo + "/" + name
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return cfg, cfg.ApplyFile(path, true)
	}
	return cfg, nil
}
