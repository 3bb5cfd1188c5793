// Package httpapi exposes the public HTTP boundary: payment webhook and
// return pages, health probe and the site request form.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel/chat"
	"github.com/m3rciful/funnelbot/funnel/confirm"
)

// WebhookHandler processes a parsed gateway notification.
type WebhookHandler interface {
	Handle(ctx context.Context, n confirm.Notification) (confirm.Verdict, error)
}

// ReturnHandler checks an order when the buyer comes back from the gateway.
type ReturnHandler interface {
	Handle(ctx context.Context, orderID string) (confirm.Verdict, error)
}

// SiteRequestOptions configures POST /api/site-request.
type SiteRequestOptions struct {
	APIKey         string
	AllowedOrigins []string
	Recipients     []int64
	Title          string
	PerMinute      int
}

// Options wires the handlers. Webhook and Return are required.
type Options struct {
	// Gateway is the only accepted {gateway} path segment.
	Gateway     string
	Webhook     WebhookHandler
	Return      ReturnHandler
	Messenger   chat.Messenger
	SiteRequest SiteRequestOptions
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Webhook == nil || opts.Return == nil {
		return nil, errors.New("httpapi: webhook and return handlers are required")
	}
	if opts.Gateway == "" {
		opts.Gateway = "yookassa"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	p := &payments{gateway: opts.Gateway, webhook: opts.Webhook, ret: opts.Return}
	r.Post("/webhook/{gateway}", p.handleWebhook)
	r.Get("/payment/return", p.handleReturn)
	r.Get("/payment/success", p.handleSuccess)
	r.Get("/health", handleHealth)

	s := newSiteRequests(opts.Messenger, opts.SiteRequest)
	r.Options("/api/site-request", s.handlePreflight)
	r.Post("/api/site-request", s.handleSubmit)
	return r, nil
}

// Server runs the router on a listener.
type Server struct {
	srv *http.Server
}

// NewServer prepares an http.Server on addr.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Start binds the address and serves in the background. Bind errors are returned.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.CompHTTP, "http.listen", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, logger.CompHTTP, "http.serve", slog.String("status", "fail"), logger.Err(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "bot": "running"})
}
