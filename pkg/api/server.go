// Package api is the admin and debug HTTP surface of the cover service:
// a resolve endpoint, the websocket event feed, and file serving for the
// placeholder and the local cover cache. The catalog's public API lives
// elsewhere; this server is meant to be bound locally.
package api

import (
	"context"
	"net/http"

	"github.com/pagebound/jacket/asset"
	"github.com/pagebound/jacket/pkg/cover"
	"github.com/pagebound/jacket/pkg/events"
)

// Server represents the local REST/WebSocket server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	addr       string

	svc    *cover.Service
	hub    *events.Hub
	assets *asset.Manager
}

// NewServer creates a new API server around the cover service. hub may be
// nil when the websocket feed is not wanted.
func NewServer(addr string, svc *cover.Service, hub *events.Hub, assets *asset.Manager) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		addr:   addr,
		svc:    svc,
		hub:    hub,
		assets: assets,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("/covers/resolve", s.enableCORS(s.handleResolve))
	s.mux.HandleFunc(cover.PlaceholderPath, s.handlePlaceholder)
	s.mux.HandleFunc(s.svc.CacheRoutePrefix(), s.handleCachedCover)
	if s.hub != nil {
		s.mux.HandleFunc("/ws/covers", s.hub.HandleWS)
	}
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Allow the catalog UI to call us cross-origin during development
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}
	// This is blocking
	return s.httpServer.ListenAndServe()
}

// Stop stops the server, letting in-flight requests finish until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
