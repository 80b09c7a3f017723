package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"campusconnect/internal/announcements"
	"campusconnect/internal/attendance"
	"campusconnect/internal/audit"
	"campusconnect/internal/auth"
	"campusconnect/internal/config"
	"campusconnect/internal/handler"
	"campusconnect/internal/httpmiddleware"
	"campusconnect/internal/identity"
	"campusconnect/internal/logging"
	"campusconnect/internal/notify"
	"campusconnect/internal/pubsub"
	"campusconnect/internal/roles"
	"campusconnect/internal/scoring"
	"campusconnect/internal/store"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Env)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, db, err := store.OpenDocuments(ctx, cfg)
	if err != nil {
		return err
	}
	defer docs.Close()
	slog.Info("document store ready", "backend", cfg.StoreBackend)

	health := map[string]handler.HealthCheck{}
	if db != nil {
		health["db"] = func(ctx context.Context) bool { return dbHealthy(ctx, db) }
	}

	var broker pubsub.Broker
	switch cfg.BrokerBackend {
	case "redis":
		client := store.NewRedis(cfg.RedisAddr)
		defer client.Close()
		broker = pubsub.NewRedis(client, "")
		health["redis"] = func(ctx context.Context) bool { return store.RedisHealthy(ctx, client) }
		if !store.RedisHealthy(ctx, client) {
			slog.Warn("redis not reachable at startup", "addr", cfg.RedisAddr)
		}
	default:
		broker = pubsub.NewInMemory(64)
	}

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	auditLog := audit.New(docs)
	ids := identity.NewService(docs, signer, auditLog, cfg.VerifiedDomains)
	hub := notify.NewHub(docs, broker)

	h := handler.New(handler.Deps{
		Signer:         signer,
		Identity:       ids,
		Attendance:     attendance.NewService(docs, ids, hub, auditLog),
		Notifications:  hub,
		Scores:         scoring.New(docs),
		Roles:          roles.NewService(docs, ids, hub, auditLog),
		Announcements:  announcements.NewService(docs, ids, hub, auditLog),
		Audit:          auditLog,
		Health:         health,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders(cfg.Production()))
	h.Routes(r)

	// WriteTimeout stays zero so the notification stream is not cut off;
	// ordinary requests are bounded by the request timeout middleware.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.HTTPPort, "env", cfg.Env)
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
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server exited")
	return nil
}

func dbHealthy(ctx context.Context, db *sql.DB) bool {
	return db.PingContext(ctx) == nil
}
