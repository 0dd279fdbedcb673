package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/config"
	"github.com/hallwayhq/hallway/internal/relay"
)

const version = "0.1.0"

// NewRouter builds the HTTP surface: the WebSocket upgrade endpoint, the
// health probe, and Prometheus metrics.
func NewRouter(logger zerolog.Logger, hub *Hub, rel *relay.Relay, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(rel))
	r.Get("/ws", wsHandler(logger, hub, cfg))

	return r
}

// healthResponse is the health probe body. Sessions is the count of live
// authenticated sessions.
type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Sessions  int    `json:"sessions"`
	Timestamp string `json:"timestamp"`
}

func healthHandler(rel *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:    "ok",
			Version:   version,
			Sessions:  rel.SessionCount(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// wsHandler upgrades the request and hands the connection to the hub. The
// connection receives nothing until it authenticates.
func wsHandler(logger zerolog.Logger, hub *Hub, cfg *config.Config) http.HandlerFunc {
	origins := newOriginChecker(cfg.AllowedOrigins, logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		limiter := newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill)
		client := newClient(conn, hub, r.RemoteAddr, cfg.MaxMessageSize, limiter, logger)
		if !hub.register(client) {
			// Shutting down; refuse the connection politely.
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// requestLogger logs each completed HTTP request with zerolog.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// NewHTTPServer wraps a handler with production timeout defaults. The
// timeouts apply up to the WebSocket hijack; established connections are
// governed by the pump deadlines.
func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
