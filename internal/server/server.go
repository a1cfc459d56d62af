package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/CrisRain/Lumina/internal/auth"
	"github.com/CrisRain/Lumina/internal/config"
	"github.com/CrisRain/Lumina/internal/metrics"
	"github.com/CrisRain/Lumina/internal/node"
	"github.com/CrisRain/Lumina/internal/warp"
)

// Server wires the panel API routes to the injected collaborators. It never
// reaches for globals: everything it needs comes in through NewServer.
type Server struct {
	Config *config.Store
	Auth   *auth.Gateway
	Warp   *warp.Manager
	Nodes  *node.Manager

	httpServer *http.Server
}

func NewServer(cfg *config.Store, gateway *auth.Gateway, warpMgr *warp.Manager, nodes *node.Manager) *Server {
	return &Server{
		Config: cfg,
		Auth:   gateway,
		Warp:   warpMgr,
		Nodes:  nodes,
	}
}

// Handler builds the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/setup/status", s.handleSetupStatus)
	mux.HandleFunc("POST /api/setup/initialize", s.handleSetupInitialize)
	mux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /metrics", metrics.Handler())

	// Protected endpoints.
	mux.HandleFunc("GET /api/auth/check", s.protected(s.handleAuthCheck))
	mux.HandleFunc("POST /api/auth/logout", s.protected(s.handleLogout))
	mux.HandleFunc("POST /api/auth/password", s.handlePasswordChange)

	mux.HandleFunc("GET /api/version", s.protected(s.handleVersion))
	mux.HandleFunc("GET /api/status", s.protected(s.handleStatus))
	mux.HandleFunc("POST /api/connect", s.protected(s.handleConnect))
	mux.HandleFunc("POST /api/disconnect", s.protected(s.handleDisconnect))
	mux.HandleFunc("POST /api/backend/switch", s.protected(s.handleBackendSwitch))
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)

	mux.HandleFunc("GET /api/config/ports", s.protected(s.handleGetPorts))
	mux.HandleFunc("POST /api/config/ports", s.protected(s.handleSetPorts))

	mux.HandleFunc("GET /api/nodes", s.protected(s.handleListNodes))
	mux.HandleFunc("POST /api/nodes", s.protected(s.handleCreateNode))
	mux.HandleFunc("GET /api/nodes/overview", s.protected(s.handleNodesOverview))
	mux.HandleFunc("PUT /api/nodes/{id}", s.protected(s.handleUpdateNode))
	mux.HandleFunc("DELETE /api/nodes/{id}", s.protected(s.handleDeleteNode))
	mux.HandleFunc("POST /api/nodes/{id}/connect", s.protected(s.handleNodeConnect))
	mux.HandleFunc("POST /api/nodes/{id}/disconnect", s.protected(s.handleNodeDisconnect))
	mux.HandleFunc("POST /api/nodes/{id}/backend", s.protected(s.handleNodeBackendSwitch))

	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = CorsMiddleware(handler)
	handler = SecurityHeaders(handler)
	return handler
}

// ListenAndServe serves the panel API. With TLS material supplied the
// listener terminates TLS (typically on a loopback port behind the
// multiplexer); without it the listener speaks h2c for direct deployments.
func (s *Server) ListenAndServe(addr, certFile, keyFile string) error {
	useTLS := certFile != "" && keyFile != ""

	handler := s.Handler()
	if !useTLS {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if useTLS {
		log.Printf("🔒 Panel HTTPS listener on %s (HTTP/2)", addr)
		if err := s.httpServer.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("panel HTTPS server error: %w", err)
		}
		return nil
	}

	log.Printf("🌐 Panel HTTP listener on %s (h2c)", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("panel HTTP server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
