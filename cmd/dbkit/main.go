package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/dbkit/internal/config"
	"github.com/oriys/dbkit/internal/logging"
)

var (
	configPath  string
	envFile     string
	backendName string
	logLevel    string
	logFormat   string
	outputFmt   string

	appConfig *config.Config
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dbkit",
		Short:         "dbkit - pooled statement and transaction runner",
		Long:          "Runs statements and transactions against PostgreSQL, MySQL or Cassandra through a shared connection pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			appConfig = cfg
			logging.InitStructured(cfg.Log.Format, cfg.Log.Level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before DBKIT_* overrides")
	cmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "Backend: postgres, mysql, cassandra")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text, json")
	cmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	cmd.AddCommand(
		execCmd(),
		txCmd(),
		insertCmd(),
		keyspaceCmd(),
		backendsCmd(),
		metricsCmd(),
	)
	return cmd
}

// loadConfig applies, in order: defaults, the config file, the dotenv file,
// DBKIT_* variables and finally explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backendName
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
