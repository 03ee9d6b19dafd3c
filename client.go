package aegis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aegis-ai/aegis-go"

// Aegis dispatches chat requests to providers. It holds no per-call state and is
// safe for concurrent use once constructed.
type Aegis struct {
	config   *Config
	creds    CredentialSource
	executor Executor
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option customizes a dispatcher at construction.
type Option func(*Aegis)

// WithExecutor replaces the default net/http executor.
func WithExecutor(e Executor) Option {
	return func(a *Aegis) { a.executor = e }
}

// WithCredentialSource replaces the keys set on the Config as the source of credentials.
func WithCredentialSource(src CredentialSource) Option {
	return func(a *Aegis) { a.creds = src }
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aegis) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(a *Aegis) { a.metrics = m }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. By default the global
// provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Aegis) {
		if tp != nil {
			a.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a dispatcher. The config is validated and copied; later changes to
// cfg have no effect on the returned dispatcher.
func New(cfg *Config, opts ...Option) (*Aegis, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	a := &Aegis{
		config: cfg,
		creds:  newConfigSource(cfg),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.executor == nil {
		a.executor = NewHTTPExecutor(&http.Client{Timeout: cfg.Timeout}, a.logger)
	}
	return a, nil
}

// SendMessage sends the conversation to p and returns the assistant's reply.
// Exactly one request is issued; failures are returned as *Error and are never
// retried here.
func (a *Aegis) SendMessage(ctx context.Context, p Provider, conv []Message) (msg Message, err error) {
	ctx, span := a.tracer.Start(ctx, "aegis.SendMessage", trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		a.finish(span, p, modeSend, start, err)
	}()

	adapter, req, err := a.prepare(span, p, conv, false)
	if err != nil {
		return Message{}, err
	}

	resp, err := a.executor.Execute(ctx, req)
	if err != nil {
		return Message{}, NewNetworkError(p, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	msg, err = adapter.ParseResponse(resp)
	if err != nil {
		return Message{}, ensureError(p, err)
	}
	return msg, nil
}

// StreamMessage sends the conversation to p and returns the reply as a stream of
// chunks. The caller must Close the stream or consume it to the end.
func (a *Aegis) StreamMessage(ctx context.Context, p Provider, conv []Message) (*ChunkStream, error) {
	ctx, span := a.tracer.Start(ctx, "aegis.StreamMessage", trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()

	adapter, req, err := a.prepare(span, p, conv, true)
	if err != nil {
		a.finish(span, p, modeStream, start, err)
		return nil, err
	}

	events, err := a.executor.ExecuteStream(ctx, req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			span.SetAttributes(attribute.Int("http.response.status_code", se.Response.StatusCode))
			_, err = adapter.ParseResponse(se.Response)
			if err == nil {
				err = NewProtocolError(p, "unexpected status "+http.StatusText(se.Response.StatusCode), nil)
			}
			err = ensureError(p, err)
		} else {
			err = NewNetworkError(p, err)
		}
		a.finish(span, p, modeStream, start, err)
		return nil, err
	}

	return newChunkStream(p, adapter, events, func(chunks int, err error) {
		span.SetAttributes(attribute.Int("aegis.chunks", chunks))
		a.metrics.observeChunks(p, chunks)
		a.finish(span, p, modeStream, start, err)
	}), nil
}

// prepare validates the call and builds the wire request. No network I/O happens here.
func (a *Aegis) prepare(span trace.Span, p Provider, conv []Message, stream bool) (Adapter, *WireRequest, error) {
	adapter, err := adapterFor(p)
	if err != nil {
		return nil, nil, err
	}
	if err := validateConversation(p, conv); err != nil {
		return nil, nil, err
	}

	creds, ok := a.creds.Resolve(p)
	if !ok || creds == "" {
		return nil, nil, NewMissingCredentialsError(p)
	}

	settings := a.config.Settings(p)
	span.SetAttributes(
		attribute.String("aegis.provider", p.String()),
		attribute.String("aegis.model", settings.Model),
		attribute.Int("aegis.messages", len(conv)),
	)

	req, err := adapter.BuildRequest(conv, settings, creds, stream)
	if err != nil {
		return nil, nil, ensureError(p, err)
	}
	return adapter, req, nil
}

// finish records the outcome of a call in logs, metrics and the span.
func (a *Aegis) finish(span trace.Span, p Provider, mode string, start time.Time, err error) {
	elapsed := time.Since(start)
	a.metrics.observe(p, mode, elapsed, err)

	switch {
	case err == nil:
		a.logger.Debug("provider call succeeded", "provider", p, "mode", mode, "duration", elapsed)
	case err == errStreamAbandoned:
		a.logger.Debug("stream abandoned by consumer", "provider", p, "duration", elapsed)
	default:
		kind := KindOf(err)
		span.SetAttributes(attribute.String("aegis.error_kind", string(kind)))
		span.SetStatus(codes.Error, string(kind))
		a.logger.Warn("provider call failed",
			"provider", p,
			"mode", mode,
			"kind", kind,
			"retryable", kind.Retryable(),
			"duration", elapsed,
		)
	}
	span.End()
}

// Capabilities describes provider p as configured on this dispatcher.
func (a *Aegis) Capabilities(p Provider) (Capabilities, error) {
	adapter, err := adapterFor(p)
	if err != nil {
		return Capabilities{}, err
	}
	return adapter.Capabilities(a.config.Settings(p)), nil
}

// Providers returns the providers whose credentials can be resolved.
func (a *Aegis) Providers() []Provider {
	var available []Provider
	for _, p := range Providers() {
		if creds, ok := a.creds.Resolve(p); ok && creds != "" {
			available = append(available, p)
		}
	}
	return available
}

// Settings returns the effective settings for p, with the API key removed.
func (a *Aegis) Settings(p Provider) ProviderSettings {
	s := a.config.Settings(p)
	s.APIKey = ""
	return s
}
