// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// EncryptionKey protects stored credential bundles. It is required in any
	// environment where connections must survive a restart; Validate rejects
	// an empty key rather than degrading to a per-process random key.
	EncryptionKey string

	// Probe/execute budgets for outbound vendor calls.
	ProbeTimeout   time.Duration
	ExecuteTimeout time.Duration
	Retries        int
	RetryDelay     time.Duration

	// Connection store backends, first configured wins:
	// DATABASE_URL -> postgres, REDIS_URL -> redis, DataDir -> file, else memory.
	DatabaseURL string
	RedisURL    string
	DataDir     string

	// CatalogDir holds optional descriptor manifests loaded at startup.
	CatalogDir string

	// PolicyFile is an optional Rego module gating execute calls.
	PolicyFile string

	// OIDC / JWT for caller identity (dev fallback: X-User-ID header).
	Issuer   string
	Audience string
	JWKSURL  string
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:            env("HUB_ENV", "dev"),
		HTTPAddr:       env("HUB_HTTP_ADDR", ":8080"),
		EncryptionKey:  env("ENCRYPTION_KEY", ""),
		ProbeTimeout:   envDur("PROBE_TIMEOUT_MS", 10000) * time.Millisecond,
		ExecuteTimeout: envDur("EXECUTE_TIMEOUT_MS", 30000) * time.Millisecond,
		Retries:        envInt("EXECUTE_RETRIES", 2),
		RetryDelay:     envDur("RETRY_DELAY_MS", 250) * time.Millisecond,
		DatabaseURL:    env("DATABASE_URL", ""),
		RedisURL:       env("REDIS_URL", ""),
		DataDir:        env("HUB_DATA_DIR", ""),
		CatalogDir:     env("CATALOG_DIR", ""),
		PolicyFile:     env("EXECUTE_POLICY_FILE", ""),
		Issuer:         env("OIDC_ISSUER", ""),
		Audience:       env("OIDC_AUDIENCE", "hublink"),
		JWKSURL:        env("JWKS_URL", ""),
	}
}

// Validate enforces invariants the runtime cannot recover from at request
// time. Persisted credentials are useless without a stable key, so a missing
// ENCRYPTION_KEY is fatal whenever a durable store backend is configured.
func (c Config) Validate() error {
	if c.EncryptionKey == "" && (c.DatabaseURL != "" || c.RedisURL != "" || c.DataDir != "") {
		return errors.New("ENCRYPTION_KEY must be set when a durable connection store is configured")
	}
	if c.Retries < 0 {
		return errors.New("EXECUTE_RETRIES must be >= 0")
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}
