// Package server exposes the HTTP surface: webhook intake, manual sends,
// session control, subscriber administration, and operational probes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"wanotify/internal/config"
	"wanotify/internal/directory"
	"wanotify/internal/ledger"
	"wanotify/internal/observability"
	"wanotify/internal/session"
	"wanotify/internal/webhook"
)

const version = "0.1.0"

// Deps are the collaborators the server routes calls into.
type Deps struct {
	Session   *session.Manager
	Notifier  webhook.Notifier
	Processor *webhook.Processor
	Ledger    ledger.Ledger
	Directory directory.Directory
}

type Server struct {
	cfg     config.Config
	deps    Deps
	router  *gin.Engine
	httpSrv *http.Server
	started time.Time
}

func New(cfg config.Config, deps Deps) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.App.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "x-lynk-signature", "x-signature", "signature"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Router exposes the engine for in-process testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Serve() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.App.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", s.cfg.App.Addr).Msg("http_listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
