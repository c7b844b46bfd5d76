package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	Driver         string
	DSN            string
	ConnectRetries int
	Logger         *slog.Logger
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to the configured database, retrying with exponential
// backoff while the server is unreachable, and migrates the schema.
func Open(ctx context.Context, opts Options) (*gorm.DB, error) {
	dial, err := dialector(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var database *gorm.DB
	connect := func() error {
		d, err := gorm.Open(dial, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return err
		}
		sqlDB, err := d.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		database = d
		return nil
	}

	retries := opts.ConnectRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithMaxInterval(5*time.Second)), uint64(retries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Warn("database not ready, retrying", "driver", opts.Driver, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Driver == "" || opts.Driver == "sqlite" {
		// SQLite allows a single writer; serialize through one connection so
		// concurrent writers queue instead of failing with SQLITE_BUSY.
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := Migrate(database); err != nil {
		return nil, err
	}
	return database, nil
}

func Migrate(d *gorm.DB) error {
	if err := d.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(d *gorm.DB) error {
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
