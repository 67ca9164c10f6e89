package cmd

import (
	"coremeter/cmd/analyze"
	initCmd "coremeter/cmd/init"
	"coremeter/cmd/list"
	"coremeter/cmd/version"
	"coremeter/internal/config"
	"coremeter/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// persistentBindings maps config keys to the root persistent flags
var persistentBindings = map[string]string{
	"aws.profile":     "profile",
	"aws.role":        "role",
	"app.max_workers": "max-workers",
	"app.log_format":  "log-format",
	"app.log_level":   "log-level",
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "coremeter",
		Short: "coremeter - hourly billable core report for VM hosts",
		Long: `coremeter reads a log of VM activity intervals and reports, for every hour
of the billing period, which hosts were active and how many billable cores
they consumed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config handling for commands that don't need it
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			if configFile != "" {
				if err := config.SetConfigFile(configFile); err != nil {
					return err
				}
			}

			for key, flag := range persistentBindings {
				if err := viper.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
					return err
				}
			}

			cfg := config.Load()
			logging.Configure(logging.LogConfig{
				Level:  logging.ParseLevel(cfg.LogLevel),
				Format: logging.ParseFormat(cfg.LogFormat),
			})
			config.LogConfigurationSources(logging.ParseLevel(cfg.LogLevel) == logging.DEBUG, cmd)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringP("profile", "p", "default", "AWS profile used for S3 input and output")
	rootCmd.PersistentFlags().String("role", "", "Role name or ARN to assume for S3 access")
	rootCmd.PersistentFlags().Int("max-workers", 1, "Number of workers aggregating hour buckets")
	rootCmd.PersistentFlags().String("log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().String("log-level", "INFO", "Set logging level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(analyze.NewAnalyzeCmd())
	rootCmd.AddCommand(list.NewListCmd())
	rootCmd.AddCommand(initCmd.NewInitCmd())
	rootCmd.AddCommand(version.NewVersionCmd())

	return rootCmd
}

// Execute initializes configuration and runs the root command
func Execute() error {
	if err := config.InitConfig(false); err != nil {
		return err
	}

	if err := config.CreateDefaultConfig(); err != nil {
		return err
	}

	return NewRootCmd().Execute()
}
