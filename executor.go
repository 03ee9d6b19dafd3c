package aegis

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// WireRequest is a provider-specific HTTP request produced by an Adapter.
type WireRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// WireResponse is a fully read HTTP response handed back to an Adapter.
type WireResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Event is one server-sent event frame. Name is empty when the frame had no
// "event:" field; Data joins all "data:" lines with a newline.
type Event struct {
	Name string
	Data []byte
}

// EventStream yields framing events until io.EOF.
// Close releases the underlying connection and may be called more than once.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// Executor performs HTTP exchanges on behalf of the dispatcher. Connection pooling,
// TLS and timeouts are its concern.
//
// Execute returns the response for any status code. ExecuteStream returns a
// *StatusError when the provider answers with a non-2xx status, so the adapter
// can classify the body.
type Executor interface {
	Execute(ctx context.Context, req *WireRequest) (*WireResponse, error)
	ExecuteStream(ctx context.Context, req *WireRequest) (EventStream, error)
}

// StatusError carries a non-2xx response from a streaming request.
type StatusError struct {
	Response *WireResponse
}

func (e *StatusError) Error() string {
	return "unexpected status: " + http.StatusText(e.Response.StatusCode)
}

// HTTPExecutor is the default Executor backed by net/http.
type HTTPExecutor struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

// NewHTTPExecutor creates an executor. A nil client gets one with DefaultTimeout;
// a nil logger discards output.
func NewHTTPExecutor(client *http.Client, logger *slog.Logger) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPExecutor{
		client:    client,
		logger:    logger,
		userAgent: "aegis-go/" + Version,
	}
}

func (e *HTTPExecutor) newRequest(ctx context.Context, req *WireRequest) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
	}
	return httpReq, nil
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, req *WireRequest) (*WireResponse, error) {
	httpReq, err := e.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Debug("http request failed", "method", httpReq.Method, "host", httpReq.URL.Host, "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("http request done",
		"method", httpReq.Method,
		"host", httpReq.URL.Host,
		"path", httpReq.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &WireResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// ExecuteStream implements Executor.
func (e *HTTPExecutor) ExecuteStream(ctx context.Context, req *WireRequest) (EventStream, error) {
	httpReq, err := e.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Debug("http stream failed", "method", httpReq.Method, "host", httpReq.URL.Host, "err", err)
		return nil, err
	}
	e.logger.Debug("http stream opened", "host", httpReq.URL.Host, "path", httpReq.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			e.logger.Debug("http stream error body truncated", "host", httpReq.URL.Host, "status", resp.StatusCode, "err", err)
			return nil, err
		}
		return nil, &StatusError{Response: &WireResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}}
	}

	return newSSEStream(resp.Body), nil
}

// sseStream decodes server-sent events from a response body.
type sseStream struct {
	body io.ReadCloser
	r    *bufio.Reader
	once sync.Once
	err  error
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, r: bufio.NewReaderSize(body, 64*1024)}
}

// Next returns the next event. Multiple data lines are joined with "\n".
// Comment lines and fields other than event and data are ignored.
func (s *sseStream) Next() (Event, error) {
	var (
		ev   Event
		data [][]byte
	)
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				return Event{}, err
			}
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				data = parseSSEField(&ev, data, line)
			}
			if len(data) > 0 || ev.Name != "" {
				ev.Data = bytes.Join(data, []byte("\n"))
				return ev, nil
			}
			return Event{}, io.EOF
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) == 0 && ev.Name == "" {
				continue
			}
			ev.Data = bytes.Join(data, []byte("\n"))
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}
		data = parseSSEField(&ev, data, line)
	}
}

func parseSSEField(ev *Event, data [][]byte, line []byte) [][]byte {
	name, value, _ := bytes.Cut(line, []byte(":"))
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	switch string(name) {
	case "event":
		ev.Name = string(value)
	case "data":
		data = append(data, append([]byte(nil), value...))
	}
	return data
}

// Close closes the response body.
func (s *sseStream) Close() error {
	s.once.Do(func() {
		s.err = s.body.Close()
	})
	return s.err
}
