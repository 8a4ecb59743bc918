package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"prayer-push-go/internal/auth"
	"prayer-push-go/internal/config"
	"prayer-push-go/internal/handlers"
	"prayer-push-go/internal/logger"
	"prayer-push-go/internal/metrics"
	"prayer-push-go/internal/push"
	"prayer-push-go/internal/reminder"
	"prayer-push-go/internal/store"
	"prayer-push-go/internal/vapid"
)

func serveCmd() *cobra.Command {
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the push HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), inMemory)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Keep all data in process instead of PostgreSQL and Redis")
	return cmd
}

func serve(ctx context.Context, inMemory bool) error {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := cfg.Validate(inMemory); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st   store.Store
		feed store.Feed
	)
	if inMemory {
		mem := store.NewMemoryStore()
		st, feed = mem, mem
		log.Warn("Running with in-memory storage; data is lost on exit")
	} else {
		pg, err := store.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.RunMigrations(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("Database migrations completed")
		st = pg

		if cfg.Redis.Addr != "" {
			rs := store.NewRedisStore(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rs.Close()
			if err := rs.Ping(ctx); err != nil {
				log.Warn("Redis unreachable, realtime feed disabled", slog.Any("error", err))
			} else {
				feed = rs
			}
		}
	}

	inbox := store.NotificationStore(st)
	if feed != nil {
		inbox = store.WithPublisher(st, feed, log)
	}

	metrics.Init(prometheus.DefaultRegisterer)

	servers := vapid.NewProvider(cfg.Push.Subject,
		vapid.StaticKeys(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey), log)
	if servers.Get() == nil {
		log.Warn("Push notifications disabled; in-app notifications only")
	}

	dispatcher := push.NewDispatcher(st, inbox, servers,
		push.NewWebPushSender(&http.Client{Timeout: 30 * time.Second}), log,
		push.WithMaxConcurrency(cfg.Push.MaxConcurrency))

	loc := reminder.LoadLocation(cfg.Reminder.Timezone, log)
	scheduler := reminder.NewScheduler(st, inbox, dispatcher, loc, log)

	var users auth.TokenVerifier
	if cfg.Backend.JWTSecret != "" {
		users = auth.NewJWTVerifier(cfg.Backend.JWTSecret)
	} else {
		users = auth.NewIdentityVerifier(cfg.Backend.URL, cfg.Backend.AnonKey, nil)
	}

	h := handlers.NewHandler(handlers.Deps{
		Dispatcher:      dispatcher,
		Sweeper:         scheduler,
		Subscriptions:   st,
		Servers:         servers,
		Feed:            feed,
		Auth:            auth.NewAuthenticator(cfg.Backend.ServiceRoleKey, users),
		RestrictTargets: cfg.Push.RestrictTargets,
		Log:             log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", slog.String("addr", srv.Addr), slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
