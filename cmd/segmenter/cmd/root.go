package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/wonderpush/segmenter/internal/core/config"
	"github.com/wonderpush/segmenter/internal/core/db"
	"github.com/wonderpush/segmenter/internal/core/logging"
)

// Version is the CLI and service version.
const Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:           "segmenter",
	Short:         "WonderPush segmentation engine",
	Long:          `Segmenter parses WonderPush segment definitions and matches them against installation snapshots.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// environment is the configuration and logger shared by subcommands.
type environment struct {
	cfg    *config.Config
	logger hclog.Logger
}

// loadEnvironment resolves configuration for cmd and builds the root logger.
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

// openDatabase connects to the configured catalogue.
func (e *environment) openDatabase(ctx context.Context) (*sqlx.DB, error) {
	if e.cfg.Database.URL == "" {
		return nil, fmt.Errorf("--db-url or %s_DATABASE_URL required", config.EnvPrefix)
	}
	database, err := db.Open(ctx, e.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return database, nil
}

// openCatalogue connects to a migrated catalogue and loads its queries.
func (e *environment) openCatalogue(ctx context.Context) (*sqlx.DB, *db.Queries, error) {
	database, err := e.openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RequireMigrated(ctx, database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}
