// Command createadmin provisions an admin account, since admins cannot
// self-register through the API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"campusconnect/internal/audit"
	"campusconnect/internal/auth"
	"campusconnect/internal/config"
	"campusconnect/internal/identity"
	"campusconnect/internal/logging"
	"campusconnect/internal/store"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Env)

	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin e-mail address")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (min 6 characters)")
	name := flag.String("name", envOr("ADMIN_NAME", "Administrator"), "display name")
	flag.Parse()

	if *email == "" || *password == "" {
		slog.Error("email and password are required (flags or ADMIN_EMAIL / ADMIN_PASSWORD)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs, _, err := store.OpenDocuments(ctx, cfg)
	if err != nil {
		slog.Error("open document store", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	ids := identity.NewService(docs, signer, audit.New(docs), cfg.VerifiedDomains)
	u, err := ids.CreateAdmin(ctx, *email, *password, *name)
	if err != nil {
		slog.Error("create admin failed", "error", err)
		os.Exit(1)
	}
	slog.Info("admin user created", "id", u.ID, "email", u.Email)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
