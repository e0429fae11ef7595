package cli

import (
	"github.com/spf13/cobra"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

// NewRootCmd returns the root command
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "gophercrawl",
		Short:         "A gopher server crawler",
		Long:          `gophercrawl walks every directory of one gopher server, downloads its text and binary files and reports what it found`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before reading GOPHER_* variables (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text|json")

	rootCmd.AddCommand(newCrawlCmd(opts))
	rootCmd.AddCommand(newStatsCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))

	return rootCmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
