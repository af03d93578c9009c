package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "3000" || cfg.APIBasePath != "/api/v1" || cfg.GinMode != "release" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.DBPath != "fulfillment.db" || cfg.Store.RedisPrefix != "fulfillment:" {
		t.Fatalf("store defaults unexpected: %+v", cfg.Store)
	}
	if cfg.Artifacts.Backend != "local" || cfg.Artifacts.PublicPath != "/digital-products" || cfg.Artifacts.TemplatePath != "" {
		t.Fatalf("artifact defaults unexpected: %+v", cfg.Artifacts)
	}
	f := cfg.Fulfillment
	if f.PublicBaseURL != "http://localhost:3000" || f.RetryOnce || f.DefaultCustomerName != "Customer" ||
		f.StaleGeneratingAfter != 15*time.Minute || f.ReaperInterval != time.Minute {
		t.Fatalf("fulfillment defaults unexpected: %+v", f)
	}
	if cfg.SMTP.Host != "" || cfg.SMTP.Port != 587 || cfg.SMTP.Timeout != 10*time.Second {
		t.Fatalf("smtp defaults unexpected: %+v", cfg.SMTP)
	}
	if cfg.OTEL.ServiceName != "go-fulfillment-backend" {
		t.Fatalf("otel service name = %q", cfg.OTEL.ServiceName)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // normalizes to release

	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")

	t.Setenv("STORE_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_PREFIX", "shop:")

	t.Setenv("ARTIFACT_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "products")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_PREFIX", "orders/")
	t.Setenv("S3_PRESIGN_TTL", "5m")
	t.Setenv("TEMPLATE_PATH", "templates/cert.xlsx")
	t.Setenv("GENERATOR_TIMEOUT", "10s")

	t.Setenv("SMTP_HOST", "smtp.example")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USER", "u")
	t.Setenv("SMTP_PASS", "p")
	t.Setenv("SMTP_FROM", "shop@example.com")
	t.Setenv("EMAIL_SUBJECT", "Here it is")
	t.Setenv("SMTP_TIMEOUT", "3s")

	t.Setenv("PUBLIC_BASE_URL", "https://shop.example/")
	t.Setenv("GENERATE_RETRY_ONCE", "true")
	t.Setenv("DEFAULT_CUSTOMER_NAME", "Friend")
	t.Setenv("STALE_GENERATING_AFTER", "30m")
	t.Setenv("REAPER_INTERVAL", "2m")

	t.Setenv("RATE_RPS", "x")      // parse failure falls back to 5
	t.Setenv("RATE_BURST", "nope") // parse failure falls back to 10
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	wantStore := StoreConfig{Backend: "redis", DBPath: "fulfillment.db", RedisAddr: "redis:6379", RedisPassword: "pw", RedisDB: 3, RedisPrefix: "shop:"}
	if cfg.Store != wantStore {
		t.Fatalf("store = %+v, want %+v", cfg.Store, wantStore)
	}
	a := cfg.Artifacts
	if a.Backend != "s3" || a.S3Bucket != "products" || a.S3Region != "eu-west-1" || a.S3Endpoint != "http://minio:9000" ||
		a.S3Prefix != "orders/" || a.S3PresignTTL != 5*time.Minute || a.TemplatePath != "templates/cert.xlsx" ||
		a.GeneratorTimeout != 10*time.Second {
		t.Fatalf("artifacts unexpected: %+v", a)
	}
	wantSMTP := SMTPConfig{Host: "smtp.example", Port: 2525, Username: "u", Password: "p", From: "shop@example.com", Subject: "Here it is", Timeout: 3 * time.Second}
	if cfg.SMTP != wantSMTP {
		t.Fatalf("smtp = %+v", cfg.SMTP)
	}
	wantF := FulfillmentConfig{PublicBaseURL: "https://shop.example", RetryOnce: true, DefaultCustomerName: "Friend",
		StaleGeneratingAfter: 30 * time.Minute, ReaperInterval: 2 * time.Minute}
	if cfg.Fulfillment != wantF {
		t.Fatalf("fulfillment = %+v", cfg.Fulfillment)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"empty REDIS_ADDR", map[string]string{"STORE_BACKEND": "redis", "REDIS_ADDR": " "}, "REDIS_ADDR"},
		{"unknown artifact backend", map[string]string{"ARTIFACT_BACKEND": "ftp"}, "ARTIFACT_BACKEND"},
		{"empty ARTIFACT_DIR", map[string]string{"ARTIFACT_DIR": "  "}, "ARTIFACT_DIR"},
		{"public path clashes with api", map[string]string{"ARTIFACT_PUBLIC_PATH": "/api/v1"}, "ARTIFACT_PUBLIC_PATH"},
		{"s3 without bucket", map[string]string{"ARTIFACT_BACKEND": "s3"}, "S3_BUCKET"},
		{"negative generator timeout", map[string]string{"GENERATOR_TIMEOUT": "-1s"}, "GENERATOR_TIMEOUT"},
		{"bad smtp port", map[string]string{"SMTP_HOST": "smtp.example", "SMTP_PORT": "70000"}, "SMTP_PORT"},
		{"relative public url", map[string]string{"PUBLIC_BASE_URL": "shop.example"}, "PUBLIC_BASE_URL"},
		{"negative stale window", map[string]string{"STALE_GENERATING_AFTER": "-1m"}, "STALE_GENERATING_AFTER"},
		{"reaper interval", map[string]string{"REAPER_INTERVAL": "0s"}, "REAPER_INTERVAL"},
		{"stale window below generator timeout", map[string]string{"STALE_GENERATING_AFTER": "10s", "GENERATOR_TIMEOUT": "30s"}, "must exceed GENERATOR_TIMEOUT"},
		{"stale window below both attempts", map[string]string{"STALE_GENERATING_AFTER": "45s", "GENERATOR_TIMEOUT": "30s", "GENERATE_RETRY_ONCE": "true"}, "x 2 attempt(s)"},
		{"unbounded generation with reaper", map[string]string{"STALE_GENERATING_AFTER": "15m", "GENERATOR_TIMEOUT": "0s"}, "GENERATOR_TIMEOUT must be > 0"},
		{"smtp timeout", map[string]string{"SMTP_HOST": "smtp.example", "SMTP_TIMEOUT": "0s"}, "SMTP_TIMEOUT"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"otel sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_StaleWindowCoversEveryAttempt(t *testing.T) {
	t.Setenv("GENERATOR_TIMEOUT", "30s")
	t.Setenv("STALE_GENERATING_AFTER", "45s")
	if _, err := Load(); err != nil {
		t.Fatalf("single attempt fits in 45s: %v", err)
	}
	t.Setenv("GENERATE_RETRY_ONCE", "true")
	if _, err := Load(); err == nil {
		t.Fatalf("two 30s attempts must not fit in a 45s stale window")
	}
	t.Setenv("STALE_GENERATING_AFTER", "61s")
	if _, err := Load(); err != nil {
		t.Fatalf("61s covers two attempts: %v", err)
	}
}

func TestLoad_ReaperDisabledAllowsUnboundedGeneration(t *testing.T) {
	t.Setenv("STALE_GENERATING_AFTER", "0s")
	t.Setenv("GENERATOR_TIMEOUT", "0s")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestLoad_ReaperDisabledNeedsNoInterval(t *testing.T) {
	t.Setenv("STALE_GENERATING_AFTER", "0s")
	t.Setenv("REAPER_INTERVAL", "0s")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("B_T", v)
		if !getbool("B_T", false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "off"} {
		t.Setenv("B_F", v)
		if getbool("B_F", true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_JUNK", "maybe")
	if !getbool("B_JUNK", true) {
		t.Fatalf("getbool should keep the default on unknown values")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "//": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Unsetenv("PUBLIC_BASE_URL")
	os.Exit(m.Run())
}
