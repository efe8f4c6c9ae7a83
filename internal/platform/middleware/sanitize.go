package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8 << 10

var (
	// Logged only; repositories always bind parameters.
	sqlPattern    = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, NUL bytes, CR/LF in
// header values, oversized headers or script payloads in the query string
// with a 400. SQL-looking query values are only logged.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if reason := checkPath(req.URL); reason != "" {
				return rejected(reason)
			}
			if reason := checkHeaders(req.Header); reason != "" {
				return rejected(reason)
			}
			for key, values := range req.URL.Query() {
				for _, v := range values {
					if hasNUL(key) || hasNUL(v) {
						return rejected("null byte in query parameter " + key)
					}
					if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
						return rejected("script content in query parameter " + key)
					}
					if sqlPattern.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("sql-like query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

func checkPath(u *url.URL) string {
	for _, p := range []string{u.Path, u.RawPath} {
		lower := strings.ToLower(p)
		switch {
		case strings.Contains(p, ".."), strings.Contains(lower, "%2e%2e"), strings.Contains(lower, "%252e"):
			return "path traversal"
		case hasNUL(p):
			return "null byte in path"
		}
	}
	return ""
}

func checkHeaders(h http.Header) string {
	for name, values := range h {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "header " + name + " too large"
			}
			if strings.ContainsAny(v, "\r\n") {
				return "line break in header " + name
			}
		}
	}
	return ""
}

func hasNUL(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}

func rejected(reason string) error {
	return echo.NewHTTPError(http.StatusBadRequest, reason)
}
