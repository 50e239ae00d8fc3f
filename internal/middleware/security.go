package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"project-tracker/internal/platform/logger"
)

type SecurityOptions struct {
	// RequestsPerMinute por usuario (o IP sin identidad). 0 desactiva el límite.
	RequestsPerMinute int
	// SSLRedirect solo en producción, detrás de un proxy que setea X-Forwarded-Proto.
	SSLRedirect bool
	// AllowDocs relaja la CSP para /swagger.
	AllowDocs bool
}

// Security devuelve headers de seguridad + rate limit.
func Security(opts SecurityOptions, log logger.Logger) []func(http.Handler) http.Handler {
	csp := "default-src 'none'; frame-ancestors 'none'"
	if opts.AllowDocs {
		csp = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:"
	}
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: csp,
		SSLRedirect:           opts.SSLRedirect,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	headers := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				log.Warn("secure headers blocked request", map[string]any{"error": err.Error(), "path": r.URL.Path})
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	out := []func(http.Handler) http.Handler{headers}
	if opts.RequestsPerMinute > 0 {
		out = append(out, httprate.Limit(opts.RequestsPerMinute, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			}),
		))
	}
	return out
}

// rateLimitKey agrupa por usuario autenticado; sin identidad, por IP.
func rateLimitKey(r *http.Request) (string, error) {
	if uid, ok := UserID(r.Context()); ok {
		return "user:" + strings.TrimSpace(uid), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
