// Package server exposes a dispatcher over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	aegis "github.com/aegis-ai/aegis-go"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP gateway in front of an aegis dispatcher.
type Server struct {
	client   *aegis.Aegis
	engine   *gin.Engine
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds a Server that dispatches through client and registers its routes.
func New(client *aegis.Aegis, opts ...Option) *Server {
	s := &Server{
		client: client,
		engine: gin.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/v1")
	api.POST("/chat", s.chat)
	api.GET("/providers", s.providers)
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatRequest struct {
	Provider aegis.Provider  `json:"provider"`
	Messages []aegis.Message `json:"messages"`
	Stream   bool            `json:"stream"`
}

type errorBody struct {
	Kind    aegis.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
			Kind:    aegis.KindInvalidRequest,
			Message: "invalid request body",
		}})
		return
	}

	if req.Stream {
		s.streamChat(c, req)
		return
	}

	msg, err := s.client.SendMessage(c.Request.Context(), req.Provider, req.Messages)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) streamChat(c *gin.Context, req chatRequest) {
	stream, err := s.client.StreamMessage(c.Request.Context(), req.Provider, req.Messages)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for chunk, err := range stream.All() {
		switch {
		case err != nil:
			c.SSEvent("error", toErrorBody(err))
		case chunk.Final:
			c.SSEvent("done", chunk)
		default:
			c.SSEvent("chunk", chunk)
		}
		c.Writer.Flush()
		if err != nil || c.Request.Context().Err() != nil {
			return
		}
	}
}

type providerInfo struct {
	Name         string             `json:"name"`
	Configured   bool               `json:"configured"`
	Capabilities aegis.Capabilities `json:"capabilities"`
}

func (s *Server) providers(c *gin.Context) {
	configured := make(map[aegis.Provider]bool)
	for _, p := range s.client.Providers() {
		configured[p] = true
	}

	var out []providerInfo
	for _, p := range aegis.Providers() {
		caps, err := s.client.Capabilities(p)
		if err != nil {
			s.writeError(c, err)
			return
		}
		out = append(out, providerInfo{
			Name:         p.String(),
			Configured:   configured[p],
			Capabilities: caps,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) writeError(c *gin.Context, err error) {
	body := toErrorBody(err)
	if e, ok := aegis.AsError(err); ok && e.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	c.JSON(statusFor(body.Kind), gin.H{"error": body})
}

func toErrorBody(err error) errorBody {
	return errorBody{Kind: aegis.KindOf(err), Message: aegis.Describe(err)}
}

// statusFor maps an error kind onto the gateway's response status.
func statusFor(kind aegis.ErrorKind) int {
	switch kind {
	case aegis.KindInvalidRequest:
		return http.StatusBadRequest
	case aegis.KindRateLimited:
		return http.StatusTooManyRequests
	case aegis.KindMissingCredentials, aegis.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		// Unauthorized upstream means the gateway's own key is bad.
		return http.StatusBadGateway
	}
}
