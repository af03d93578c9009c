// Command server runs the digital fulfillment API: the order-paid webhook,
// artifact generation, customer notification and gated downloads.
//
//	@title			Digital Fulfillment API
//	@version		1.0
//	@description	Order-paid webhook, personalized artifact generation and gated downloads.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fulfillment-backend/docs"
	"github.com/tbourn/go-fulfillment-backend/internal/artifacts"
	"github.com/tbourn/go-fulfillment-backend/internal/config"
	httpapi "github.com/tbourn/go-fulfillment-backend/internal/http"
	"github.com/tbourn/go-fulfillment-backend/internal/notify"
	"github.com/tbourn/go-fulfillment-backend/internal/observability"
	"github.com/tbourn/go-fulfillment-backend/internal/repo"
	"github.com/tbourn/go-fulfillment-backend/internal/services"
	"github.com/tbourn/go-fulfillment-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogPretty)
	zerolog.DefaultContextLogger = &log.Logger

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	store, closeStore, err := openOrderStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("order store: %w", err)
	}
	defer func() { _ = closeStore() }()

	files, err := openArtifactStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}
	kind, tpl, ext, err := artifacts.LoadTemplate(cfg.Artifacts.TemplatePath)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	gen := artifacts.NewTemplateGenerator(kind, tpl, ext, files, cfg.Artifacts.GeneratorTimeout)

	notifier, err := newNotifier(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	svc := services.NewFulfillmentService(store, gen, notifier,
		services.DownloadLinkBuilder(cfg.Fulfillment.PublicBaseURL, cfg.APIBasePath))
	svc.RetryOnce = cfg.Fulfillment.RetryOnce
	svc.DefaultCustomerName = cfg.Fulfillment.DefaultCustomerName

	if cfg.Fulfillment.StaleGeneratingAfter > 0 {
		go svc.RunReaper(ctx, cfg.Fulfillment.ReaperInterval, cfg.Fulfillment.StaleGeneratingAfter)
	}

	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Fulfillment: svc,
		Gate:        services.NewDownloadGate(store),
		Artifacts:   files,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Store.Backend).
			Str("artifacts", cfg.Artifacts.Backend).
			Str("template", string(kind)).
			Msg("listening")
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

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// openOrderStore builds the configured services.OrderStore and the func
// releasing its connections.
func openOrderStore(ctx context.Context, cfg config.StoreConfig) (services.OrderStore, func() error, error) {
	switch cfg.Backend {
	case "memory":
		log.Warn().Msg("memory order store: orders are lost on restart")
		return repo.NewMemoryOrderStore(), func() error { return nil }, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return repo.NewRedisOrderStore(rdb, cfg.RedisPrefix), rdb.Close, nil

	default:
		db, err := repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		if err := repo.EnableTracing(db); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return repo.NewGormOrderStore(db), sqlDB.Close, nil
	}
}

// openArtifactStore returns the store shared by the generator and the
// download handler.
func openArtifactStore(ctx context.Context, cfg config.Config) (artifacts.Store, error) {
	a := cfg.Artifacts
	if a.Backend == "s3" {
		s3s, err := artifacts.NewS3Store(ctx, artifacts.S3StoreConfig{
			Bucket:     a.S3Bucket,
			Region:     a.S3Region,
			Endpoint:   a.S3Endpoint,
			Prefix:     a.S3Prefix,
			PresignTTL: a.S3PresignTTL,
		})
		if err != nil {
			return nil, err
		}
		return s3s, nil
	}
	local, err := artifacts.NewLocalStore(a.Dir, cfg.Fulfillment.PublicBaseURL, a.PublicPath)
	if err != nil {
		return nil, err
	}
	return local, nil
}

// newNotifier selects SMTP when a host is configured and the log notifier
// otherwise.
func newNotifier(cfg config.SMTPConfig) (services.Notifier, error) {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP_HOST not set: download links are logged instead of emailed")
		return notify.LogNotifier{Logger: log.Logger}, nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Subject:  cfg.Subject,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}
