package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("STORE_BACKEND", "")
	cfg := Load()
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("TokenTTL = %s, want 168h", cfg.TokenTTL)
	}
	if cfg.StoreBackend != "file" {
		t.Fatalf("StoreBackend = %q", cfg.StoreBackend)
	}
	if len(cfg.VerifiedDomains) != 3 {
		t.Fatalf("VerifiedDomains = %v", cfg.VerifiedDomains)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("RATE_LIMIT_PER_MIN", "notanumber")
	t.Setenv("VERIFIED_EMAIL_DOMAINS", " uni.edu , ,campus.ac.in")
	cfg := Load()
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %s", cfg.TokenTTL)
	}
	if cfg.RateLimitPerMin != 120 {
		t.Fatalf("RateLimitPerMin = %d, want fallback", cfg.RateLimitPerMin)
	}
	if len(cfg.VerifiedDomains) != 2 || cfg.VerifiedDomains[0] != "uni.edu" || cfg.VerifiedDomains[1] != "campus.ac.in" {
		t.Fatalf("VerifiedDomains = %v", cfg.VerifiedDomains)
	}
}

func TestValidate(t *testing.T) {
	dev := App{Env: "dev", JWTSigningKey: defaultSigningKey, TokenTTL: time.Hour}
	if err := dev.Validate(); err != nil {
		t.Fatalf("dev defaults rejected: %v", err)
	}
	prod := dev
	prod.Env = "production"
	if err := prod.Validate(); err == nil {
		t.Fatal("production with default signing key accepted")
	}
	prod.JWTSigningKey = "real-secret"
	if err := prod.Validate(); err != nil {
		t.Fatal(err)
	}
	prod.TokenTTL = 0
	if err := prod.Validate(); err == nil {
		t.Fatal("zero TTL accepted")
	}
}
