// Package config assembles gateway settings from development defaults and
// OSTIARY_-prefixed environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"ostiary.org/internal/creds"
)

// Object store backends.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Config holds runtime settings for the gateway.
//
// Fields:
//   - ListenAddr: bind address for the HTTP server.
//   - UpstreamURL: storage cluster root that authorized requests are proxied to.
//   - StorageURL: external endpoint advertised in issued service catalogs.
//   - AuthPrefix: path prefix for the auth endpoints, normalized to "/.../".
//   - ResellerPrefix: prefix stamped on account ids and tokens, normalized to end with "_".
//   - SuperAdminKey: key of the built-in super admin. Required, no default.
//   - AuthScheme: hash scheme for newly stored keys.
//   - HashPathPrefix / HashPathSuffix: deployment-private salts concealing stored token names.
//   - TokenLife / MaxTokenLife: default and maximum token lifetimes.
//   - CacheSize / CacheTTL: validation cache bounds.
//   - StoreTimeout: per-operation deadline on the backing store.
//   - Backend: object store implementation, memory or s3.
//   - S3Bucket / S3Region / S3Endpoint: settings for the s3 backend.
//   - S3AccessKey / S3SecretKey: static credentials for the s3 backend.
//   - S3PathStyle: path-style bucket addressing, needed for MinIO.
//   - RatePerSec / RateBurst: per-client request rate limit.
//   - BodyMaxBytes: request body cap on the auth endpoints.
type Config struct {
	ListenAddr     string
	UpstreamURL    string
	StorageURL     string
	AuthPrefix     string
	ResellerPrefix string
	SuperAdminKey  string
	AuthScheme     string
	HashPathPrefix string
	HashPathSuffix string
	TokenLife      time.Duration
	MaxTokenLife   time.Duration
	CacheSize      int
	CacheTTL       time.Duration
	StoreTimeout   time.Duration
	Backend        string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PathStyle    bool
	RatePerSec     float64
	RateBurst      int
	BodyMaxBytes   int64
}

// LoadDefaults populates Config with development defaults. The super admin
// key deliberately has no default and must come from the environment.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.UpstreamURL = "http://127.0.0.1:8888"
	c.StorageURL = "http://127.0.0.1:8080/v1"
	c.AuthPrefix = "/auth/"
	c.ResellerPrefix = "AUTH_"
	c.AuthScheme = creds.SchemeSHA512
	c.TokenLife = 24 * time.Hour
	c.MaxTokenLife = 24 * time.Hour
	c.CacheSize = 1024
	c.CacheTTL = time.Minute
	c.StoreTimeout = 5 * time.Second
	c.Backend = BackendMemory
	c.S3Region = "us-east-1"
	c.RatePerSec = 50
	c.RateBurst = 100
	c.BodyMaxBytes = 1 << 20
}

// Load builds the configuration by applying defaults, overlaying OSTIARY_*
// environment variables and validating the result.
func Load() (*Config, error) {
	c := &Config{}
	c.LoadDefaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("OSTIARY_LISTEN_ADDR", c.ListenAddr)
	c.UpstreamURL = getEnv("OSTIARY_UPSTREAM_URL", c.UpstreamURL)
	c.StorageURL = getEnv("OSTIARY_STORAGE_URL", c.StorageURL)
	c.AuthPrefix = getEnv("OSTIARY_AUTH_PREFIX", c.AuthPrefix)
	c.ResellerPrefix = getEnv("OSTIARY_RESELLER_PREFIX", c.ResellerPrefix)
	c.SuperAdminKey = getEnv("OSTIARY_SUPER_ADMIN_KEY", c.SuperAdminKey)
	c.AuthScheme = getEnv("OSTIARY_AUTH_SCHEME", c.AuthScheme)
	c.HashPathPrefix = getEnv("OSTIARY_HASH_PATH_PREFIX", c.HashPathPrefix)
	c.HashPathSuffix = getEnv("OSTIARY_HASH_PATH_SUFFIX", c.HashPathSuffix)
	c.TokenLife = getEnvDuration("OSTIARY_TOKEN_LIFE", c.TokenLife)
	c.MaxTokenLife = getEnvDuration("OSTIARY_MAX_TOKEN_LIFE", c.MaxTokenLife)
	c.CacheSize = getEnvInt("OSTIARY_CACHE_SIZE", c.CacheSize)
	c.CacheTTL = getEnvDuration("OSTIARY_CACHE_TTL", c.CacheTTL)
	c.StoreTimeout = getEnvDuration("OSTIARY_STORE_TIMEOUT", c.StoreTimeout)
	c.Backend = getEnv("OSTIARY_BACKEND", c.Backend)
	c.S3Bucket = getEnv("OSTIARY_S3_BUCKET", c.S3Bucket)
	c.S3Region = getEnv("OSTIARY_S3_REGION", c.S3Region)
	c.S3Endpoint = getEnv("OSTIARY_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = getEnv("OSTIARY_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("OSTIARY_S3_SECRET_KEY", c.S3SecretKey)
	c.S3PathStyle = getEnvBool("OSTIARY_S3_PATH_STYLE", c.S3PathStyle)
	c.RatePerSec = getEnvFloat("OSTIARY_RATE_PER_SEC", c.RatePerSec)
	c.RateBurst = getEnvInt("OSTIARY_RATE_BURST", c.RateBurst)
	c.BodyMaxBytes = getEnvInt64("OSTIARY_BODY_MAX_BYTES", c.BodyMaxBytes)
}

// Validate normalizes the prefixes and rejects settings the gateway cannot
// run with.
func (c *Config) Validate() error {
	c.ResellerPrefix = strings.TrimSpace(c.ResellerPrefix)
	if c.ResellerPrefix == "" {
		return fmt.Errorf("OSTIARY_RESELLER_PREFIX must not be empty")
	}
	if !strings.HasSuffix(c.ResellerPrefix, "_") {
		c.ResellerPrefix += "_"
	}

	c.AuthPrefix = strings.TrimSpace(c.AuthPrefix)
	if c.AuthPrefix == "" {
		c.AuthPrefix = "/auth/"
	}
	if !strings.HasPrefix(c.AuthPrefix, "/") {
		c.AuthPrefix = "/" + c.AuthPrefix
	}
	if !strings.HasSuffix(c.AuthPrefix, "/") {
		c.AuthPrefix += "/"
	}

	if c.SuperAdminKey == "" {
		return fmt.Errorf("OSTIARY_SUPER_ADMIN_KEY is required")
	}
	if _, err := creds.ForScheme(c.AuthScheme); err != nil {
		return fmt.Errorf("OSTIARY_AUTH_SCHEME: %w", err)
	}
	if err := checkURL(c.UpstreamURL); err != nil {
		return fmt.Errorf("OSTIARY_UPSTREAM_URL: %w", err)
	}
	if err := checkURL(c.StorageURL); err != nil {
		return fmt.Errorf("OSTIARY_STORAGE_URL: %w", err)
	}
	if c.TokenLife <= 0 || c.MaxTokenLife <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("OSTIARY_STORE_TIMEOUT must be positive")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("OSTIARY_S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.RatePerSec <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	if c.BodyMaxBytes <= 0 {
		return fmt.Errorf("OSTIARY_BODY_MAX_BYTES must be positive")
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("absolute URL required, got %q", raw)
	}
	return nil
}

// getEnv retrieves an environment variable or returns the default.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("30m") as well as bare second
// counts ("1800").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
