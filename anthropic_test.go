package aegis

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicBuildRequest(t *testing.T) {
	a := anthropicAdapter{}
	settings := NewConfig().WithTemperature(Anthropic, 0.3).Settings(Anthropic)
	conv := []Message{
		SystemMessage("Be brief."),
		UserMessage("What is the capital of Vietnam?"),
		AssistantMessage("Hanoi."),
		SystemMessage("Answer in English."),
		UserMessage("And its population?"),
	}

	req, err := a.BuildRequest(conv, settings, "sk-ant", false)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL)
	assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))
	assert.Equal(t, DefaultAnthropicVersion, req.Header.Get("anthropic-version"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, DefaultAnthropicModel, body["model"])
	assert.Equal(t, "Be brief.\n\nAnswer in English.", body["system"])
	assert.EqualValues(t, DefaultAnthropicMaxTokens, body["max_tokens"])
	assert.Equal(t, 0.3, body["temperature"])
	assert.NotContains(t, body, "stream")

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, map[string]any{"role": "user", "content": "What is the capital of Vietnam?"}, messages[0])
	assert.Equal(t, map[string]any{"role": "assistant", "content": "Hanoi."}, messages[1])
	assert.Equal(t, map[string]any{"role": "user", "content": "And its population?"}, messages[2])
}

func TestAnthropicBuildRequestStream(t *testing.T) {
	settings := NewConfig().WithBaseURL(Anthropic, "http://localhost:9000/").Settings(Anthropic)
	req, err := anthropicAdapter{}.BuildRequest([]Message{UserMessage("hi")}, settings, "k", true)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/v1/messages", req.URL)
	assert.Contains(t, string(req.Body), `"stream":true`)
	assert.NotContains(t, string(req.Body), `"system"`)
}

func TestAnthropicParseResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "text blocks are joined",
			body: `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"Ha"},{"type":"tool_use","id":"x"},{"type":"text","text":"noi"}],"stop_reason":"end_turn"}`,
			want: "Hanoi",
		},
		{
			name: "plain string content",
			body: `{"content":"Hanoi"}`,
			want: "Hanoi",
		},
		{
			name: "no content",
			body: `{"id":"msg_1","type":"message","content":[]}`,
			want: "",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := anthropicAdapter{}.ParseResponse(&WireResponse{StatusCode: http.StatusOK, Body: []byte(tt.body)})
			require.NoError(t, err)
			assert.Equal(t, AssistantMessage(tt.want), msg)
		})
	}
}

func TestAnthropicParseResponseErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    ErrorKind
		wantMessage string
	}{
		{
			name:        "bad request",
			status:      http.StatusBadRequest,
			body:        `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: field required"}}`,
			wantKind:    KindInvalidRequest,
			wantMessage: "max_tokens: field required",
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantKind:    KindUnauthorized,
			wantMessage: "invalid x-api-key",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`,
			wantKind:    KindRateLimited,
			wantMessage: "Number of requests has exceeded your rate limit",
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        `{"type":"error","error":{"type":"api_error","message":"Internal server error"}}`,
			wantKind:    KindProviderUnavailable,
			wantMessage: "Internal server error",
		},
		{
			name:        "overloaded",
			status:      529,
			body:        `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			wantKind:    KindProviderUnavailable,
			wantMessage: "Overloaded",
		},
		{
			name:        "non-json error body",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantKind:    KindProviderUnavailable,
			wantMessage: "Bad Gateway",
		},
		{
			name:     "malformed success body",
			status:   http.StatusOK,
			body:     `{"content":[`,
			wantKind: KindProtocol,
		},
		{
			name:     "wrong content type",
			status:   http.StatusOK,
			body:     `{"content":42}`,
			wantKind: KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := anthropicAdapter{}.ParseResponse(&WireResponse{StatusCode: tt.status, Body: []byte(tt.body)})
			require.Error(t, err)

			e, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, Anthropic, e.Provider)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, e.Message)
			}
			if tt.status != http.StatusOK {
				assert.Equal(t, tt.status, e.StatusCode)
				assert.Equal(t, []byte(tt.body), e.Raw)
			}
		})
	}
}

func TestAnthropicParseStreamEvent(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		want     *ResponseChunk
		wantKind ErrorKind
	}{
		{
			name:  "ping",
			event: Event{Name: "ping", Data: []byte(`{"type":"ping"}`)},
		},
		{
			name:  "message start",
			event: Event{Name: "message_start", Data: []byte(`{"type":"message_start","message":{"id":"msg_1"}}`)},
		},
		{
			name:  "text delta",
			event: Event{Name: "content_block_delta", Data: []byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Ha"}}`)},
			want:  &ResponseChunk{Content: "Ha"},
		},
		{
			name:  "type from event name",
			event: Event{Name: "message_stop", Data: []byte(`{}`)},
			want:  &ResponseChunk{Final: true},
		},
		{
			name:  "input json delta is skipped",
			event: Event{Data: []byte(`{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{"}}`)},
		},
		{
			name:  "stop reason",
			event: Event{Data: []byte(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`)},
			want:  &ResponseChunk{StopReason: "end_turn"},
		},
		{
			name:  "message stop",
			event: Event{Data: []byte(`{"type":"message_stop"}`)},
			want:  &ResponseChunk{Final: true},
		},
		{
			name:  "unknown event",
			event: Event{Data: []byte(`{"type":"citation_delta"}`)},
		},
		{
			name:     "overloaded",
			event:    Event{Data: []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)},
			wantKind: KindProviderUnavailable,
		},
		{
			name:     "rate limit",
			event:    Event{Data: []byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`)},
			wantKind: KindRateLimited,
		},
		{
			name:     "unmapped error type",
			event:    Event{Data: []byte(`{"type":"error","error":{"type":"brand_new_error","message":"?"}}`)},
			wantKind: KindProtocol,
		},
		{
			name:     "malformed frame",
			event:    Event{Data: []byte(`{"type":"content_block_delta",`)},
			wantKind: KindProtocol,
		},
		{
			name:     "delta without body",
			event:    Event{Data: []byte(`{"type":"content_block_delta"}`)},
			wantKind: KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, err := anthropicAdapter{}.ParseStreamEvent(tt.event)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, chunk)
		})
	}
}

func TestAnthropicErrorKind(t *testing.T) {
	assert.Equal(t, KindInvalidRequest, anthropicErrorKind("not_found_error"))
	assert.Equal(t, KindUnauthorized, anthropicErrorKind("permission_error"))
	assert.Equal(t, KindProviderUnavailable, anthropicErrorKind("api_error"))
	assert.Equal(t, KindProtocol, anthropicErrorKind(""))
}
