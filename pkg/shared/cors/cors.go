// Package cors wraps go-chi/cors with environment-driven configuration,
// so the API surface (C8) can enable cross-origin access without hand
// rolling header logic.
package cors

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/cors"
)

// Options configures the CORS middleware. Zero value plus
// FromEnvironment defaults are safe for local development only.
type Options struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

var developmentDefaults = Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
	AllowCredentials: false,
	MaxAge:           300,
}

// FromEnvironment builds Options from CORS_* environment variables,
// falling back to permissive development defaults when unset.
func FromEnvironment() *Options {
	opts := developmentDefaults

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		opts.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_METHODS"); v != "" {
		opts.AllowedMethods = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_HEADERS"); v != "" {
		opts.AllowedHeaders = splitCSV(v)
	}
	if v := os.Getenv("CORS_EXPOSED_HEADERS"); v != "" {
		opts.ExposedHeaders = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOW_CREDENTIALS"); v != "" {
		opts.AllowCredentials, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("CORS_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxAge = n
		}
	}
	return &opts
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsProduction reports whether opts is a safe, explicit-origin
// configuration: non-empty and free of the wildcard origin, including
// when the wildcard is mixed in alongside explicit origins.
func (o *Options) IsProduction() bool {
	if len(o.AllowedOrigins) == 0 {
		return false
	}
	for _, origin := range o.AllowedOrigins {
		if origin == "*" {
			return false
		}
	}
	return true
}

// Handler returns chi-compatible CORS middleware built from opts.
func Handler(opts *Options) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   opts.ExposedHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	})
}
