package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/freeeve/stackrabbit/api/internal/engine"
	"github.com/freeeve/stackrabbit/api/internal/metrics"
	"github.com/freeeve/stackrabbit/api/internal/pool"
)

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Logger  zerolog.Logger
	Pool    *pool.Pool
	Engine  engine.Engine
	Metrics *metrics.Metrics // Optional: enables /metrics and request metrics

	CORSOrigin string  // Empty disables CORS headers
	RateLimit  float64 // Engine requests per second per client (0 = disabled)
	RateBurst  int
}

// Handler serves the engine routes on top of a shared worker pool.
type Handler struct {
	pool    *pool.Pool
	engine  engine.Engine
	metrics *metrics.Metrics
	log     zerolog.Logger
	started time.Time
}

// NewRouter creates the HTTP handler for the API.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &Handler{
		pool:    cfg.Pool,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		started: time.Now(),
	}

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit > 0 {
		rl := NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 10*time.Minute)
		limit = rl.Middleware
		cfg.Logger.Info().
			Float64("rps", cfg.RateLimit).
			Int("burst", cfg.RateBurst).
			Msg("per-client rate limit enabled on engine routes")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", h.ping)
	mux.HandleFunc("GET /status", h.status)
	mux.Handle("GET /top-moves-hybrid", limit(h.evaluate(engine.KindTopMovesHybrid, false)))
	mux.Handle("GET /rate-move", limit(h.evaluate(engine.KindRateMove, true)))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{DisableCompression: true}))
	}

	handler := CORS(cfg.CORSOrigin, RequestID(gzhttp.GzipHandler(AccessLog(cfg.Logger, cfg.Metrics, mux))))
	return handler
}

// ping is the liveness check; it never touches the pool.
func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "pong")
}

// statusResponse is the /status body: the pool snapshot plus uptime.
type statusResponse struct {
	pool.Status
	UptimeSec int64 `json:"uptime_sec"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Status:    h.pool.GetStatus(),
		UptimeSec: int64(time.Since(h.started).Seconds()),
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeText writes body verbatim as text/plain.
func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
