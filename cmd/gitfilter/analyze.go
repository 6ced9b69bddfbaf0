package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fardream/gitfilter/analyze"
)

type analyzeCmd struct {
	*cobra.Command

	repo       string
	configPath string
	top        int
	jsonOut    bool
}

func newAnalyzeCmd() *analyzeCmd {
	c := &analyzeCmd{
		Command: &cobra.Command{
			Use:           "analyze",
			Short:         "collect repository metrics instead of rewriting",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		repo: ".",
	}

	f := c.Flags()
	f.StringVar(&c.repo, "source", c.repo, "git working directory to analyze")
	f.StringVar(&c.configPath, "config", "", "config file (default <source>/"+analyze.ConfigFileName+")")
	f.IntVar(&c.top, "top", 0, "number of largest blobs/trees to show (default 10)")
	f.BoolVar(&c.jsonOut, "json", false, "emit a JSON report")

	c.RunE = func(*cobra.Command, []string) error {
		cfg, err := analyze.LoadRepoConfig(c.repo, c.configPath)
		if err != nil {
			return err
		}
		// CLI flags win over the config file
		if c.top > 0 {
			cfg.Top = c.top
		}
		if c.jsonOut {
			cfg.JSON = true
		}
		return analyze.Run(c.repo, cfg, os.Stdout)
	}

	return c
}
