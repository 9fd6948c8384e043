// Package server exposes receipt generation, bulk export and the Telegram
// access gate over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"receiptgen/internal/access"
	"receiptgen/internal/bulk"
	"receiptgen/internal/config"
	"receiptgen/internal/content"
	"receiptgen/internal/generator"
	"receiptgen/internal/receipt"
	"receiptgen/internal/render"
	"receiptgen/internal/settings"
	"receiptgen/internal/logging"
	"receiptgen/internal/telegram"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server is wired with.
type Deps struct {
	Gate      *access.Gate
	Telegram  *telegram.Client
	Content   content.Provider
	Raster    render.Rasterizer
	Templates *render.Templates
	Pipeline  *bulk.Pipeline
	Generator *generator.Generator
	Saver     *settings.Saver
	Settings  settings.Settings
	Store     Pinger
}

// Server is the receiptgen HTTP API.
type Server struct {
	cfg      *config.Config
	router   *mux.Router
	gate     *access.Gate
	tg       *telegram.Client
	content  content.Provider
	raster   render.Rasterizer
	tmpl     *render.Templates
	pipeline *bulk.Pipeline
	gen      *generator.Generator
	saver    *settings.Saver
	store    Pinger

	settingsMu sync.RWMutex
	settings   settings.Settings
}

// New wires a server and its routes.
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		gate:     d.Gate,
		tg:       d.Telegram,
		content:  d.Content,
		raster:   d.Raster,
		tmpl:     d.Templates,
		pipeline: d.Pipeline,
		gen:      d.Generator,
		saver:    d.Saver,
		store:    d.Store,
		settings: d.Settings,
	}
	if s.content == nil {
		s.content = content.Disabled{}
	}
	if s.gen == nil {
		s.gen = generator.New()
	}
	if s.tg == nil {
		s.tg = telegram.NewClient("", "", "", 0)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID, logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/telegram", s.handleLoginTelegram).Methods(http.MethodPost)
	auth.HandleFunc("/username", s.handleLoginUsername).Methods(http.MethodPost)
	auth.HandleFunc("/emergency", s.handleLoginEmergency).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	auth.Handle("/me", s.requireSession(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	tg := r.PathPrefix("/api/telegram").Subrouter()
	tg.HandleFunc("/config", s.handleTelegramConfig).Methods(http.MethodGet)
	tg.HandleFunc("/verify-member", s.handleVerifyMember).Methods(http.MethodPost)
	tg.HandleFunc("/username-login", s.handleUsernameLookup).Methods(http.MethodPost)
	tg.Handle("/group-members", s.requireSession(http.HandlerFunc(s.handleGroupMembers))).Methods(http.MethodGet)
	tg.Handle("/validate-config", s.requireSession(http.HandlerFunc(s.handleValidateConfig))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireSession)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings", s.handleResetSettings).Methods(http.MethodDelete)
	api.HandleFunc("/receipt/student", s.handleStudent).Methods(http.MethodPost)
	api.HandleFunc("/receipt/payment", s.handlePayment).Methods(http.MethodPost)
	api.HandleFunc("/receipt/signature", s.handleSignature).Methods(http.MethodPost)
	api.HandleFunc("/receipt/generate-all", s.handleGenerateAll).Methods(http.MethodPost)
	api.HandleFunc("/receipt/preview", s.handlePreview).Methods(http.MethodPost)
	api.HandleFunc("/receipt/export", s.handleExport).Methods(http.MethodPost)
	api.HandleFunc("/names", s.handleNames).Methods(http.MethodPost)
	api.HandleFunc("/bulk", s.handleBulk).Methods(http.MethodPost)
	api.HandleFunc("/bulk/progress", s.handleBulkProgress).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Settings returns the current settings.
func (s *Server) Settings() settings.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// baseRecord is the default receipt with the current settings applied.
func (s *Server) baseRecord() receipt.Record {
	rec := receipt.Default()
	s.Settings().Apply(&rec)
	return rec
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          zap.NewStdLog(logging.Zap().Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()
	logging.API("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"bulkRunning": s.pipeline != nil && s.pipeline.Running(),
		"accessMode":  s.gate.Mode().String(),
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			status["store"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "store unavailable", "status": status})
			return
		}
	}
	status["store"] = "ok"
	writeJSON(w, http.StatusOK, ok(status))
}
