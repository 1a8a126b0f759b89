package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/config"
	"github.com/roach88/procprobe/internal/logging"
)

const pingTimeout = 10 * time.Second

// errNoDSN is returned when a command needs a database but none is configured.
var errNoDSN = errors.New("database.dsn is not set (use the config file or " + config.EnvPrefix + "DATABASE_DSN)")

// openDB opens and pings the database. Tests replace it.
var openDB = func(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errNoDSN
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// loadConfig loads configuration and builds the logger. Logs go to the
// command's stderr.
func loadConfig(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to create logger", err)
	}
	return cfg, log, nil
}

// connect opens the configured database, reporting failures as command errors.
func connect(ctx context.Context, cfg *config.Config, f *OutputFormatter) (*sql.DB, error) {
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "database unavailable", err)
	}
	return db, nil
}

func syncLog(log *zap.Logger) {
	_ = logging.Sync(log)
}
