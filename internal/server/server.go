// Package server hosts the chat relay's HTTP surface: the key-mint endpoint,
// the websocket handshake, and the admin/metrics listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/clicktochat/chatd/internal/auth"
	"github.com/clicktochat/chatd/internal/chat"
	"github.com/clicktochat/chatd/internal/config"
	"github.com/clicktochat/chatd/internal/session"
	"github.com/clicktochat/chatd/internal/socketkey"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps carries the server's collaborators.
type Deps struct {
	Issuer   *socketkey.Issuer
	Sessions *session.Registry
	Service  *chat.Service
	Verifier auth.Verifier
	Metrics  *chat.Metrics
	PromReg  *prometheus.Registry
}

// Server wires dependencies and hosts the HTTP listeners.
type Server struct {
	cfg  config.Config
	log  *zap.Logger
	deps Deps

	httpServer *http.Server
	adminHTTP  *http.Server
	baseCtx    context.Context
	ready      atomic.Bool
}

// New constructs a server with its dependencies.
func New(cfg config.Config, logger *zap.Logger, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		log:     logger,
		deps:    deps,
		baseCtx: context.Background(),
	}
}

// Handler builds the public API router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/messages")
	api.GET("/authenticate", auth.RequireAuth(s.deps.Verifier), s.handleAuthenticate)
	api.GET("/chat-socket", s.handleChatSocket)
	return router
}

// Start boots the listeners and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddress,
		Handler: s.Handler(),
	}
	s.startAdminServer()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
		defer cancel()
		s.Shutdown(stopCtx)
	}()

	s.log.Info("chat server listening", zap.String("address", s.cfg.ListenAddress))
	s.ready.Store(true)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// handleAuthenticate mints a one-time socket key for the authenticated user
// and returns the endpoint to connect with.
func (s *Server) handleAuthenticate(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no authenticated user"})
		return
	}

	key := s.deps.Issuer.Issue(userID)
	s.deps.Metrics.RecordKeyIssued()

	endpoint := fmt.Sprintf("/api/messages/chat-socket?u=%s&k=%s",
		url.QueryEscape(userID), url.QueryEscape(key))
	c.JSON(http.StatusOK, gin.H{
		"key":             key,
		"connectEndpoint": endpoint,
	})
}

func (s *Server) startAdminServer() {
	if s.cfg.Admin.Address == "" {
		return
	}

	mux := http.NewServeMux()
	if s.deps.PromReg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.PromReg, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	s.adminHTTP = &http.Server{
		Addr:              s.cfg.Admin.Address,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.Admin.ReadHeaderTimeout,
	}

	go func() {
		if err := s.adminHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	s.log.Info("admin server listening", zap.String("address", s.cfg.Admin.Address))
}

// Shutdown attempts a graceful stop before forcing termination.
func (s *Server) Shutdown(ctx context.Context) {
	s.ready.Store(false)

	// Tear down live sessions first so their read loops unwind.
	s.deps.Sessions.CloseAll()

	if s.adminHTTP != nil {
		if err := s.adminHTTP.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server shutdown", zap.Error(err))
		}
	}
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("graceful shutdown timed out; forcing stop", zap.Error(err))
		_ = s.httpServer.Close()
		return
	}
	s.log.Info("chat server stopped")
}
