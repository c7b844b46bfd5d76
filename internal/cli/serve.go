package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/config"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/moderation"
	"github.com/helpinghand/helpinghand/internal/profile"
	"github.com/helpinghand/helpinghand/internal/ratelimit"
	"github.com/helpinghand/helpinghand/internal/telemetry"
	"github.com/helpinghand/helpinghand/internal/webserver"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

// newAPI wires the services behind the HTTP API. The returned cleanup
// releases the rate limiter's redis client, if any.
func newAPI(cfg *config.Config, d *gorm.DB, log *slog.Logger) (*webserver.Server, func()) {
	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	deps := webserver.Deps{
		DB:           d,
		Manager:      manager.New(d, manager.WithLogger(log)),
		Accounts:     auth.NewService(d, issuer),
		Issuer:       issuer,
		Moderation:   moderation.New(d, log),
		Profiles:     profile.New(d),
		Logger:       log,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if cfg.Telemetry.Enabled {
		deps.ServiceName = cfg.Telemetry.ServiceName
	}

	cleanup := func() {}
	if cfg.RateLimit.Enabled {
		deps.PerMinute = cfg.RateLimit.PerMinute
		if cfg.RateLimit.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
			rl := ratelimit.NewRedis(client, time.Minute)
			rl.Log = log
			deps.Limiter = rl
			cleanup = func() { _ = client.Close() }
		} else {
			deps.Limiter = ratelimit.NewInMemory(time.Minute)
		}
	}
	return webserver.New(deps), cleanup
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	database, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	api, cleanup := newAPI(cfg, database, log)
	defer cleanup()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when the server stops.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}
	g.Go(func() error {
		log.Info("helpinghand listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			database, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(database) }()
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
