package cmd

import (
	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/logger"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

// NewRootCmd builds the command tree. The configuration is loaded once, before any sub command runs.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cfg := config.GetDefault()

	rootCmd := &cobra.Command{
		Use:           "standards-report",
		Short:         "Report the coding standards of an organization and the quality of their repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(opts.envFile); err != nil {
				return err
			}

			loaded, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}

			*cfg = *loaded

			if opts.logLevel != "" {
				cfg.Logs.Level = opts.logLevel
			}

			logger.Setup(*cfg)
			return nil
		},
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is config/config.toml when present)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading the configuration")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "error | warn | info | debug")

	rootCmd.AddCommand(newReportCmd(cfg))
	rootCmd.AddCommand(newServeCmd(cfg))

	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		log.WithError(err).Error("run aborted")
		return 1
	}

	return 0
}
