// Package adminhttp serves the process's admin surface: a health
// probe, a connection/loop stats endpoint, and a Prometheus scrape
// endpoint. It never touches the WebSocket wire protocol itself.
package adminhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// StatsProvider is whatever can report the live state of the
// WebSocket server; *wsserver.Server satisfies it without adminhttp
// needing to import that package.
type StatsProvider interface {
	ClientCount() int
}

// RouterConfig collects the dependencies the admin router wires
// together.
type RouterConfig struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	Stats          StatsProvider
	AllowedOrigins []string

	// RateLimit, if non-nil, throttles every request on the admin
	// surface, mirroring the teacher's in-memory token bucket.
	RateLimit *rate.Limiter
}

// NewRouter builds the chi.Mux serving /healthz, /stats, and
// /metrics.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(structuredLogger(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(5 * time.Second))

	if cfg.RateLimit != nil {
		r.Use(rateLimitMiddleware(cfg.RateLimit))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealthz)

	r.Get("/stats", handleStats(cfg.Stats))

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleStats(stats StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		count := 0
		if stats != nil {
			count = stats.ClientCount()
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"connected_clients": count})
	}
}
