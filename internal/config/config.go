// Package config loads the service configuration from environment variables,
// applies defaults and validates the result. main loads a .env file with
// godotenv before calling Load, so both sources end up here.
package config

import (
	"errors"
	"fmt"
	"net/url"
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

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and configures the order store backend.
type StoreConfig struct {
	Backend       string // STORE_BACKEND: sqlite|memory|redis
	DBPath        string // DB_PATH
	RedisAddr     string // REDIS_ADDR
	RedisPassword string // REDIS_PASSWORD
	RedisDB       int    // REDIS_DB
	RedisPrefix   string // REDIS_PREFIX
}

// ArtifactConfig selects where generated artifacts live and how they are
// rendered.
type ArtifactConfig struct {
	Backend          string        // ARTIFACT_BACKEND: local|s3
	Dir              string        // ARTIFACT_DIR
	PublicPath       string        // ARTIFACT_PUBLIC_PATH
	TemplatePath     string        // TEMPLATE_PATH; empty uses the built-in template
	GeneratorTimeout time.Duration // GENERATOR_TIMEOUT

	S3Bucket     string        // S3_BUCKET
	S3Region     string        // S3_REGION
	S3Endpoint   string        // S3_ENDPOINT
	S3Prefix     string        // S3_PREFIX
	S3PresignTTL time.Duration // S3_PRESIGN_TTL
}

// SMTPConfig configures the email notifier. An empty Host selects the log
// notifier.
type SMTPConfig struct {
	Host     string // SMTP_HOST
	Port     int    // SMTP_PORT
	Username string // SMTP_USER
	Password string // SMTP_PASS
	From     string // SMTP_FROM
	Subject  string        // EMAIL_SUBJECT
	Timeout  time.Duration // SMTP_TIMEOUT, bounds dial and send
}

// FulfillmentConfig tunes the pipeline.
type FulfillmentConfig struct {
	PublicBaseURL        string        // PUBLIC_BASE_URL, used in download links
	RetryOnce            bool          // GENERATE_RETRY_ONCE
	DefaultCustomerName  string        // DEFAULT_CUSTOMER_NAME
	StaleGeneratingAfter time.Duration // STALE_GENERATING_AFTER; 0 disables the reaper
	ReaperInterval       time.Duration // REAPER_INTERVAL
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	Store       StoreConfig
	Artifacts   ArtifactConfig
	SMTP        SMTPConfig
	Fulfillment FulfillmentConfig

	// Rate limiting (download and status routes)
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	port := getenv("PORT", "3000")
	cfg := Config{
		Port:              port,
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Store: StoreConfig{
			Backend:       strings.ToLower(getenv("STORE_BACKEND", "sqlite")),
			DBPath:        getenv("DB_PATH", "fulfillment.db"),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			RedisPrefix:   getenv("REDIS_PREFIX", "fulfillment:"),
		},
		Artifacts: ArtifactConfig{
			Backend:          strings.ToLower(getenv("ARTIFACT_BACKEND", "local")),
			Dir:              getenv("ARTIFACT_DIR", "digital-products"),
			PublicPath:       normalizeBasePath(getenv("ARTIFACT_PUBLIC_PATH", "/digital-products")),
			TemplatePath:     getenv("TEMPLATE_PATH", ""),
			GeneratorTimeout: getdur("GENERATOR_TIMEOUT", 30*time.Second),
			S3Bucket:         getenv("S3_BUCKET", ""),
			S3Region:         getenv("S3_REGION", "us-east-1"),
			S3Endpoint:       getenv("S3_ENDPOINT", ""),
			S3Prefix:         getenv("S3_PREFIX", ""),
			S3PresignTTL:     getdur("S3_PRESIGN_TTL", 15*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getint("SMTP_PORT", 587),
			Username: getenv("SMTP_USER", ""),
			Password: getenv("SMTP_PASS", ""),
			From:     getenv("SMTP_FROM", ""),
			Subject:  getenv("EMAIL_SUBJECT", "Your digital product is ready to download"),
			Timeout:  getdur("SMTP_TIMEOUT", 10*time.Second),
		},
		Fulfillment: FulfillmentConfig{
			PublicBaseURL:        strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
			RetryOnce:            getbool("GENERATE_RETRY_ONCE", false),
			DefaultCustomerName:  getenv("DEFAULT_CUSTOMER_NAME", "Customer"),
			StaleGeneratingAfter: getdur("STALE_GENERATING_AFTER", 15*time.Minute),
			ReaperInterval:       getdur("REAPER_INTERVAL", time.Minute),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-fulfillment-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.Store.Backend {
	case "sqlite":
		if strings.TrimSpace(cfg.Store.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "redis":
		if strings.TrimSpace(cfg.Store.RedisAddr) == "" {
			return errors.New("REDIS_ADDR must not be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: sqlite, memory, redis (got %q)", cfg.Store.Backend)
	}

	switch cfg.Artifacts.Backend {
	case "local":
		if strings.TrimSpace(cfg.Artifacts.Dir) == "" {
			return errors.New("ARTIFACT_DIR must not be empty")
		}
		if cfg.Artifacts.PublicPath == "/" || cfg.Artifacts.PublicPath == cfg.APIBasePath {
			return errors.New("ARTIFACT_PUBLIC_PATH must be a dedicated path")
		}
	case "s3":
		if strings.TrimSpace(cfg.Artifacts.S3Bucket) == "" {
			return errors.New("S3_BUCKET must not be empty when ARTIFACT_BACKEND=s3")
		}
		if cfg.Artifacts.S3PresignTTL <= 0 {
			return errors.New("S3_PRESIGN_TTL must be > 0")
		}
	default:
		return fmt.Errorf("ARTIFACT_BACKEND must be one of: local, s3 (got %q)", cfg.Artifacts.Backend)
	}
	if cfg.Artifacts.GeneratorTimeout < 0 {
		return errors.New("GENERATOR_TIMEOUT must be >= 0")
	}

	if cfg.SMTP.Host != "" && (cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535) {
		return errors.New("SMTP_PORT must be a valid port")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.Timeout <= 0 {
		return errors.New("SMTP_TIMEOUT must be > 0")
	}

	u, err := url.Parse(cfg.Fulfillment.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("PUBLIC_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.Fulfillment.StaleGeneratingAfter < 0 {
		return errors.New("STALE_GENERATING_AFTER must be >= 0")
	}
	if cfg.Fulfillment.StaleGeneratingAfter > 0 && cfg.Fulfillment.ReaperInterval <= 0 {
		return errors.New("REAPER_INTERVAL must be > 0 when the reaper is enabled")
	}
	if f := cfg.Fulfillment; f.StaleGeneratingAfter > 0 {
		// A live run must never look stale: bound it by every attempt it may make.
		if cfg.Artifacts.GeneratorTimeout == 0 {
			return errors.New("GENERATOR_TIMEOUT must be > 0 when the reaper is enabled")
		}
		attempts := 1
		if f.RetryOnce {
			attempts = 2
		}
		if f.StaleGeneratingAfter <= cfg.Artifacts.GeneratorTimeout*time.Duration(attempts) {
			return fmt.Errorf("STALE_GENERATING_AFTER must exceed GENERATOR_TIMEOUT x %d attempt(s)", attempts)
		}
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

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
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
