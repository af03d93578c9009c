// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, the request-scoped logger and
// panic recovery. Recommended order:
//
//  1. RequestID()
//  2. ScopedLogger()
//  3. RedactingLogger(...) for the access log
//  4. Recovery()
//
// ScopedLogger never logs query strings: download links carry customer
// emails, and the redacting access logger is the only place they are
// printed (scrubbed).
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key of the request-scoped logger.
	loggerKey = "logger"

	maxRequestIDLength = 128
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused when it is short enough to log safely;
// otherwise a new UUIDv4 is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// ScopedLogger builds a logger carrying request_id, method, route and client
// IP, and makes it available twice: under the Gin key read by LoggerFrom, and
// on the request context so services can use zerolog.Ctx(ctx).
func ScopedLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid, _ := c.Get(requestIDKey)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("remote_ip", c.ClientIP()).
			Logger()

		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500
// error envelope when nothing has been written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// ScopedLogger did not run. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
