package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rating_calculator/pkg/core/app"
	"rating_calculator/pkg/core/config"
	"rating_calculator/pkg/core/logging"
)

var (
	configFile string
	envFile    string
	logLevel   string
	overrides  map[string]string
)

var rootCmd = &cobra.Command{
	Use:   "ratingctl",
	Short: "Credit rating extraction toolkit",
	Long: `ratingctl embeds company reports into vector indexes, extracts rating
fields with retrieval-augmented prompts and renders the prompt templates.

Settings come from config/app.yaml, RATING_* environment variables and --set.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default config/app.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides log.level")
	rootCmd.PersistentFlags().StringToStringVar(&overrides, "set", nil, "config overrides, e.g. --set index.backend=memory")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	opts := config.LoadOptions{File: configFile, EnvFile: envFile, Overrides: map[string]interface{}{}}
	for k, v := range overrides {
		opts.Overrides[k] = v
	}
	if logLevel != "" {
		opts.Overrides["log.level"] = logLevel
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp loads the configuration, wires the services and releases them once
// fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logging.Named("app"))
	if err != nil {
		return err
	}
	defer a.Close()
	for _, w := range a.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("warning: ")+w)
	}
	return fn(ctx, a)
}
