// Package httpapi wires the HTTP transport (Gin) to the fulfillment services,
// middleware, and route handlers. Cross-cutting concerns live here: tracing,
// correlation IDs, logging/redaction, panic recovery, compression, metrics,
// CORS, security headers and the rate limit on customer-facing routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/go-fulfillment-backend/docs"
	"github.com/tbourn/go-fulfillment-backend/internal/config"
	"github.com/tbourn/go-fulfillment-backend/internal/http/handlers"
	"github.com/tbourn/go-fulfillment-backend/internal/http/middleware"
)

// LegacyWebhookPath is the order-paid path configured in existing stores.
const LegacyWebhookPath = "/webhook/order-paid"

// artifactCSP keeps generated HTML artifacts from running scripts or
// loading anything but inline styles and embedded images.
const artifactCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src data:; sandbox"

// Deps are the services the routes call.
type Deps struct {
	Fulfillment handlers.OrderPaidProcessor
	Gate        handlers.DownloadAuthorizer
	Artifacts   handlers.ArtifactLocator
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. ScopedLogger: request logger on gin and request contexts
//  4. RedactingLogger: access log with PII scrubbing (emails ride in download links)
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. gzip
//  8. Metrics
//  9. CORS and security headers
//
// The rate limiter and no-store headers are attached to the download and
// status routes only; the webhook is called by the commerce platform and is
// not throttled.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.ScopedLogger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-Shopify-Hmac-Sha256", "X-Api-Key"},
		MaskQueryParams: []string{"email"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithExcludedExtensions([]string{".pdf", ".xlsx", ".zip", ".png", ".jpg"}),
	))

	r.Use(middleware.Metrics("/metrics", "/health"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Local artifacts are plain files; S3 artifacts are fetched from the bucket.
	if cfg.Artifacts.Backend == "local" && cfg.Artifacts.Dir != "" {
		files := r.Group(cfg.Artifacts.PublicPath,
			middleware.SecurityHeaders(middleware.SecurityOptions{ContentSecurityPolicy: artifactCSP}))
		files.Static("/", cfg.Artifacts.Dir)
	}

	h := handlers.New(deps.Fulfillment, deps.Gate, deps.Artifacts)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())

	r.POST(LegacyWebhookPath, h.OrderPaid)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/webhooks/orders/paid", h.OrderPaid)

		customer := api.Group("", rl.Handler(), middleware.NoStore())
		customer.GET("/download", h.Download)
		customer.GET("/orders/:id/status", h.OrderStatus)
	}
}

// corsMiddleware returns the CORS chain. With no configured origins every
// origin is allowed without credentials; otherwise only listed origins are
// echoed back.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * also for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
