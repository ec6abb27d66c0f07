package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"openoutcry/internal/config"
	"openoutcry/internal/game"
)

const shutdownTimeout = 10 * time.Second

// Server owns the HTTP listener, the websocket hub and the command
// dispatcher.
type Server struct {
	cfg        *config.Config
	hub        *Hub
	dispatcher *Dispatcher
	started    time.Time
}

func New(cfg *config.Config) *Server {
	hub := NewHub()
	dispatcher := NewDispatcher(cfg, game.NewRegistry(), hub)
	hub.SetHandlers(dispatcher.Handle, dispatcher.Disconnect)

	return &Server{
		cfg:        cfg,
		hub:        hub,
		dispatcher: dispatcher,
	}
}

// Run serves until ctx is canceled, then drains connections and shuts the
// listener down.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	t, ctx := tomb.WithContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/health", s.handleAPIHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.withCORS(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	t.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	})

	t.Go(func() error {
		<-t.Dying()
		log.Info().Msg("server shutting down")
		s.hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info().Int("port", s.cfg.Port).Msg("server running")
	return t.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return s.cfg.CORSOrigin == "*" || origin == "" || origin == s.cfg.CORSOrigin
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Add(conn)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":     true,
		"ts":     time.Now().UnixMilli(),
		"uptime": time.Since(s.started).Seconds(),
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
