package kcal

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/kcal-core/internal/app"
	"github.com/saadjs/kcal-core/internal/config"
	"github.com/saadjs/kcal-core/internal/logger"
)

var (
	dbPath     string
	configPath string
	logLevel   string

	// appOptions are passed to every app.Open; tests use it to stub providers.
	appOptions []app.Option
)

var rootCmd = &cobra.Command{
	Use:           "kcal",
	Short:         "kcal tracks calories and macros from your terminal",
	Long:          "kcal is a local-first calorie and macro tracker: meals, custom foods, goals, food lookup and data portability.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default $"+config.EnvPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// withApp opens the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, run func(*app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	a, err := app.Open(cmd.Context(), cfg, log, appOptions...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.Error("close app", zap.Error(cerr))
		}
	}()
	return run(a)
}
