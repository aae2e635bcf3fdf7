// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database selection, authentication, object storage, the realtime
// fan-out, rate limiting and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Protocol    string  // OTEL_EXPORTER_OTLP_PROTOCOL: grpc|http
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-social-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and configures the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite file)
	URL    string // DATABASE_URL (postgres DSN)
}

// AuthConfig holds token signing and password hashing settings.
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
}

// LimitsConfig bounds user-supplied content.
type LimitsConfig struct {
	MaxPostRunes    int
	MaxCommentRunes int
	MaxMessageRunes int
	MaxImageBytes   int64
}

// StorageConfig selects the object store for uploaded images.
type StorageConfig struct {
	Driver        string // STORAGE_DRIVER: local|s3
	LocalDir      string // STORAGE_LOCAL_DIR
	PublicBaseURL string // STORAGE_PUBLIC_BASE_URL
	Bucket        string // S3_BUCKET
	Region        string // S3_REGION
	Endpoint      string // S3_ENDPOINT (optional, S3-compatible stores)
}

// RealtimeConfig configures the change feed and its optional Redis bridge.
type RealtimeConfig struct {
	Buffer        int     // per-subscriber event buffer
	ClientRPS     float64 // inbound frames per second per socket
	RedisAddr     string  // REDIS_ADDR; empty disables the bridge
	RedisPassword string
	RedisDB       int
	RedisChannel  string
}

// RetryConfig is the shared backoff policy for transient failures.
type RetryConfig struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // JSON request bodies
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DBConfig
	Auth     AuthConfig
	Limits   LimitsConfig
	Storage  StorageConfig
	Realtime RealtimeConfig
	Retry    RetryConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "social.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:       getenv("JWT_SECRET", ""),
			Issuer:          getenv("JWT_ISSUER", "go-social-backend"),
			AccessTokenTTL:  getdur("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getdur("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			BcryptCost:      getint("BCRYPT_COST", 10),
		},
		Limits: LimitsConfig{
			MaxPostRunes:    getint("MAX_POST_RUNES", 2000),
			MaxCommentRunes: getint("MAX_COMMENT_RUNES", 1000),
			MaxMessageRunes: getint("MAX_MESSAGE_RUNES", 2000),
			MaxImageBytes:   int64(getint("MAX_IMAGE_BYTES", 5<<20)),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(getenv("STORAGE_DRIVER", "local")),
			LocalDir:      getenv("STORAGE_LOCAL_DIR", "media"),
			PublicBaseURL: strings.TrimRight(getenv("STORAGE_PUBLIC_BASE_URL", "/media"), "/"),
			Bucket:        getenv("S3_BUCKET", ""),
			Region:        getenv("S3_REGION", "us-east-1"),
			Endpoint:      getenv("S3_ENDPOINT", ""),
		},
		Realtime: RealtimeConfig{
			Buffer:        getint("REALTIME_BUFFER", 64),
			ClientRPS:     getfloat("REALTIME_CLIENT_RPS", 20),
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			RedisChannel:  getenv("REDIS_CHANNEL", "social:changes"),
		},
		Retry: RetryConfig{
			Attempts:     getint("RETRY_ATTEMPTS", 3),
			InitialDelay: getdur("RETRY_INITIAL_DELAY", time.Second),
			Multiplier:   getfloat("RETRY_MULTIPLIER", 1.5),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Protocol:    strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-social-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		if cfg.GinMode == "release" {
			return cfg, errors.New("JWT_SECRET must be set in release mode")
		}
		cfg.Auth.JWTSecret = "dev-insecure-secret"
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return cfg, errors.New("token TTLs must be positive durations")
	}
	if cfg.Auth.RefreshTokenTTL < cfg.Auth.AccessTokenTTL {
		return cfg, errors.New("REFRESH_TOKEN_TTL must be >= ACCESS_TOKEN_TTL")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return cfg, errors.New("BCRYPT_COST must be in [4,31]")
	}

	if cfg.Limits.MaxPostRunes <= 0 || cfg.Limits.MaxCommentRunes <= 0 || cfg.Limits.MaxMessageRunes <= 0 {
		return cfg, errors.New("content limits must be > 0")
	}
	if cfg.Limits.MaxImageBytes <= 0 {
		return cfg, errors.New("MAX_IMAGE_BYTES must be > 0")
	}

	switch cfg.Storage.Driver {
	case "local":
		if strings.TrimSpace(cfg.Storage.LocalDir) == "" {
			return cfg, errors.New("STORAGE_LOCAL_DIR must not be empty")
		}
	case "s3":
		if strings.TrimSpace(cfg.Storage.Bucket) == "" {
			return cfg, errors.New("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return cfg, errors.New("STORAGE_DRIVER must be one of: local, s3")
	}

	if cfg.Realtime.Buffer < 1 {
		return cfg, errors.New("REALTIME_BUFFER must be >= 1")
	}
	if cfg.Realtime.ClientRPS <= 0 {
		return cfg, errors.New("REALTIME_CLIENT_RPS must be > 0")
	}
	if cfg.Retry.Attempts < 0 {
		return cfg, errors.New("RETRY_ATTEMPTS must be >= 0")
	}
	if cfg.Retry.InitialDelay <= 0 {
		return cfg, errors.New("RETRY_INITIAL_DELAY must be > 0")
	}
	if cfg.Retry.Multiplier < 1 {
		return cfg, errors.New("RETRY_MULTIPLIER must be >= 1")
	}

	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	switch cfg.OTEL.Protocol {
	case "grpc", "http":
	default:
		return cfg, errors.New("OTEL_EXPORTER_OTLP_PROTOCOL must be one of: grpc, http")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
