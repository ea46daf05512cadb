// Package server is the HTTP transport of the arbiter: the command endpoint,
// event log subscriptions and read-only state queries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"fleetarbiter/internal/app"
	"fleetarbiter/internal/config"
	"fleetarbiter/internal/types"
)

const (
	maxCommandBytes = 1 << 20
	keepAlive       = 15 * time.Second
	writeTimeout    = 5 * time.Second
)

type Server struct {
	arb    *app.Arbiter
	logger cmtlog.Logger
	cfg    config.Config
}

func New(arb *app.Arbiter, logger cmtlog.Logger, cfg config.Config) *Server {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Server{arb: arb, logger: logger.With("module", "http"), cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/", s.index)
	r.Post("/chain", s.command)
	r.Get("/logs", s.logsSSE)
	r.Get("/logs/ws", s.logsWS)
	r.Get("/gamestate/{session}/{player}", s.gameState)
	r.Get("/sessions", s.sessions)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.arb.Metrics().Registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "dur", time.Since(start))
	})
}

// command runs one JSON envelope. The reply is always plain text with status
// 200; rejections are replies, not transport errors. When blocks drive the
// arbiter, commands must arrive as transactions and the endpoint is closed.
func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	if s.arb.BlockDriven() {
		http.Error(w, "commands are accepted as ABCI transactions only", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	reply := s.arb.ExecuteRaw(r.Context(), body)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, reply)
}

func (s *Server) logsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub := s.arb.Events().Subscribe()
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, ev.Message); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) logsWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.WSOrigins})
	if err != nil {
		s.logger.Debug("websocket accept failed", "err", err)
		return
	}
	defer c.CloseNow()

	sub := s.arb.Events().Subscribe()
	defer sub.Close()

	// Subscribers only listen; CloseRead drains control frames and cancels
	// ctx when the peer goes away.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) gameState(w http.ResponseWriter, r *http.Request) {
	gs, err := s.arb.GameState(chi.URLParam(r, "session"), chi.URLParam(r, "player"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, types.ErrSessionNotFound) || errors.Is(err, types.ErrPlayerNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, gs)
}

func (s *Server) sessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.arb.Sessions())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
