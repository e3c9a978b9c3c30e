package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/devtrawl/internal/adapters/driven/config/file"
	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/logger"
)

var (
	version = "dev"

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "devtrawl",
	Short: "Harvest public contact signals from GitHub",
	Long: `devtrawl crawls GitHub user search by region, account creation date and
follower range, expands each user's repositories and commits, and stores the
author addresses it finds.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.devtrawl/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// loadConfig reads and validates the configuration at the --config path.
func loadConfig() (domain.CrawlConfig, error) {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return domain.CrawlConfig{}, err
	}
	return store.Load()
}
