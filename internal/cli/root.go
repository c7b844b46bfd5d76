// Package cli implements the helpinghand command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/config"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/logging"
)

type app struct {
	version    string
	configPath string
	stderr     io.Writer
}

// NewRootCommand builds the command tree. Each call returns fresh
// commands, so tests can run them in isolation.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version, stderr: os.Stderr}
	root := &cobra.Command{
		Use:           "helpinghand",
		Short:         "Community help request service",
		Long:          "helpinghand connects people who need a hand with volunteers who can give one.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ./helpinghand.yaml if present)")

	root.AddCommand(
		a.serveCommand(),
		a.migrateCommand(),
		a.tokenCommand(),
		a.mcpCommand(),
		a.usersCommand(),
		requestsCommand(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	root := NewRootCommand(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	// Logs go to stderr so stdout stays usable for command output and MCP.
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format, a.stderr), nil
}

func openDB(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	return db.Open(ctx, db.Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		ConnectRetries: cfg.Database.ConnectRetries,
		Logger:         log,
	})
}
