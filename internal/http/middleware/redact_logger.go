// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, masks sensitive headers and query parameters outright, and scrubs
// emails, phone numbers and UUIDs from everything else it prints. Download
// URLs carry the customer email as a query parameter, so the query is
// decoded before scrubbing; a percent-encoded "@" would otherwise slip past
// the email pattern.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures what RedactingLogger masks in addition to the
// built-in sensitive headers (Authorization, Cookie, Set-Cookie).
type RedactOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" (case-insensitive).
	MaskHeaders []string
	// MaskQueryParams have their values replaced with "[REDACTED]".
	MaskQueryParams []string
}

var (
	// UUIDs are redacted before phone numbers so the phone pattern cannot
	// eat the digit groups of an id.
	redactUUIDRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	redactEmailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	redactPhoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact scrubs UUIDs, emails and phone numbers from s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = redactUUIDRE.ReplaceAllString(s, "[REDACTED:id]")
	s = redactEmailRE.ReplaceAllString(s, "[REDACTED:email]")
	return redactPhoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger returns a Gin middleware that writes one access log line
// per request at info, warn (4xx) or error (5xx) level.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet("authorization", "cookie", "set-cookie")
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	maskParams := lowerSet(opts.MaskQueryParams...)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redactQuery(c.Request.URL.RawQuery, maskParams)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// redactQuery decodes raw, masks the listed parameters and scrubs the rest.
// Undecodable queries are scrubbed after best-effort unescaping.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		if u, uerr := url.QueryUnescape(raw); uerr == nil {
			raw = u
		}
		return Redact(raw)
	}
	for k, vv := range vals {
		if _, ok := mask[strings.ToLower(k)]; ok {
			vals[k] = []string{"[REDACTED]"}
			continue
		}
		for i, v := range vv {
			vv[i] = Redact(v)
		}
	}
	out, err := url.QueryUnescape(vals.Encode())
	if err != nil {
		return vals.Encode()
	}
	return out
}

func lowerSet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}
