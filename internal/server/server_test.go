package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aegis "github.com/aegis-ai/aegis-go"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeExecutor struct {
	response *aegis.WireResponse
	events   []aegis.Event
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, _ *aegis.WireRequest) (*aegis.WireResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeExecutor) ExecuteStream(_ context.Context, _ *aegis.WireRequest) (aegis.EventStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil && (f.response.StatusCode < 200 || f.response.StatusCode > 299) {
		return nil, &aegis.StatusError{Response: f.response}
	}
	return &fakeEvents{events: f.events}, nil
}

type fakeEvents struct {
	events []aegis.Event
	closed bool
}

func (f *fakeEvents) Next() (aegis.Event, error) {
	if len(f.events) == 0 {
		return aegis.Event{}, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeEvents) Close() error {
	f.closed = true
	return nil
}

func newTestServer(t *testing.T, exec *fakeExecutor, opts ...Option) *Server {
	t.Helper()
	cfg := aegis.NewConfig().WithAnthropic("sk-test")
	client, err := aegis.New(cfg, aegis.WithExecutor(exec))
	require.NoError(t, err)
	return New(client, opts...)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})
	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChat(t *testing.T) {
	exec := &fakeExecutor{response: &aegis.WireResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"content":[{"type":"text","text":"Hanoi"}]}`),
	}}
	s := newTestServer(t, exec)

	rec := do(s, http.MethodPost, "/v1/chat",
		`{"provider":"anthropic","messages":[{"role":"user","content":"What is the capital of Vietnam?"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":{"role":"assistant","content":"Hanoi"}}`, rec.Body.String())
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		exec       *fakeExecutor
		body       string
		wantStatus int
		wantKind   aegis.ErrorKind
	}{
		{
			name:       "malformed body",
			exec:       &fakeExecutor{},
			body:       `{"provider":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   aegis.KindInvalidRequest,
		},
		{
			name:       "unknown provider",
			exec:       &fakeExecutor{},
			body:       `{"provider":"mistral","messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   aegis.KindInvalidRequest,
		},
		{
			name:       "empty conversation",
			exec:       &fakeExecutor{},
			body:       `{"provider":"anthropic","messages":[]}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   aegis.KindInvalidRequest,
		},
		{
			name:       "missing credentials",
			exec:       &fakeExecutor{},
			body:       `{"provider":"openai","messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   aegis.KindMissingCredentials,
		},
		{
			name: "rate limited",
			exec: &fakeExecutor{response: &aegis.WireResponse{
				StatusCode: http.StatusTooManyRequests,
				Header:     http.Header{"Retry-After": []string{"7"}},
				Body:       []byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`),
			}},
			body:       `{"provider":"anthropic","messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusTooManyRequests,
			wantKind:   aegis.KindRateLimited,
		},
		{
			name: "upstream unauthorized",
			exec: &fakeExecutor{response: &aegis.WireResponse{
				StatusCode: http.StatusUnauthorized,
				Body:       []byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`),
			}},
			body:       `{"provider":"anthropic","messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   aegis.KindUnauthorized,
		},
		{
			name:       "network",
			exec:       &fakeExecutor{err: context.DeadlineExceeded},
			body:       `{"provider":"anthropic","messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   aegis.KindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.exec)
			rec := do(s, http.MethodPost, "/v1/chat", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp struct {
				Error errorBody `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Error.Kind)
			assert.NotEmpty(t, resp.Error.Message)
			assert.NotContains(t, rec.Body.String(), "sk-test")
		})
	}
}

func TestChatRetryAfterHeader(t *testing.T) {
	exec := &fakeExecutor{response: &aegis.WireResponse{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"7"}},
	}}
	s := newTestServer(t, exec)

	rec := do(s, http.MethodPost, "/v1/chat", `{"provider":"anthropic","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
}

func TestChatStream(t *testing.T) {
	exec := &fakeExecutor{events: []aegis.Event{
		{Name: "message_start", Data: []byte(`{"type":"message_start"}`)},
		{Name: "content_block_delta", Data: []byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Ha"}}`)},
		{Name: "content_block_delta", Data: []byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"noi"}}`)},
		{Name: "message_delta", Data: []byte(`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)},
		{Name: "message_stop", Data: []byte(`{"type":"message_stop"}`)},
	}}
	s := newTestServer(t, exec)

	rec := do(s, http.MethodPost, "/v1/chat",
		`{"provider":"anthropic","stream":true,"messages":[{"role":"user","content":"What is the capital of Vietnam?"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"content":"Ha"`)
	assert.Contains(t, body, `"content":"noi"`)
	assert.Contains(t, body, "done")
	assert.Contains(t, body, `"stop_reason":"end_turn"`)
	assert.Less(t, strings.Index(body, `"content":"Ha"`), strings.Index(body, `"content":"noi"`))
}

func TestChatStreamError(t *testing.T) {
	exec := &fakeExecutor{events: []aegis.Event{
		{Data: []byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Ha"}}`)},
		{Data: []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)},
	}}
	s := newTestServer(t, exec)

	rec := do(s, http.MethodPost, "/v1/chat",
		`{"provider":"anthropic","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
	assert.Contains(t, rec.Body.String(), string(aegis.KindProviderUnavailable))
}

func TestProviders(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})
	rec := do(s, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Providers []providerInfo `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, len(aegis.Providers()))

	assert.Equal(t, "anthropic", resp.Providers[0].Name)
	assert.True(t, resp.Providers[0].Configured)
	assert.Equal(t, aegis.DefaultAnthropicModel, resp.Providers[0].Capabilities.DefaultModel)
	assert.Equal(t, "openai", resp.Providers[1].Name)
	assert.False(t, resp.Providers[1].Configured)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := aegis.NewMetrics(reg)
	require.NoError(t, err)

	exec := &fakeExecutor{response: &aegis.WireResponse{StatusCode: http.StatusOK, Body: []byte(`{"content":"Hanoi"}`)}}
	client, err := aegis.New(aegis.NewConfig().WithAnthropic("sk-test"), aegis.WithExecutor(exec), aegis.WithMetrics(metrics))
	require.NoError(t, err)
	s := New(client, WithGatherer(reg))

	rec := do(s, http.MethodPost, "/v1/chat", `{"provider":"anthropic","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aegis_requests_total{mode="send",outcome="success",provider="anthropic"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})
	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(aegis.KindInvalidRequest))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(aegis.KindRateLimited))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(aegis.KindProviderUnavailable))
	assert.Equal(t, http.StatusBadGateway, statusFor(aegis.KindProtocol))
}
