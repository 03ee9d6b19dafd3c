package aegis

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// anthropicAdapter speaks the Anthropic Messages API.
type anthropicAdapter struct{}

// Anthropic API request/response structures
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicContentList accepts both the block array returned by the API and a
// plain string, which some proxies and the request schema use.
type anthropicContentList []anthropicContent

func (l *anthropicContentList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*l = anthropicContentList{{Type: "text", Text: text}}
		return nil
	}
	var blocks []anthropicContent
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*l = blocks
	return nil
}

type anthropicResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Role       string               `json:"role,omitempty"`
	Content    anthropicContentList `json:"content,omitempty"`
	Model      string               `json:"model,omitempty"`
	StopReason *string              `json:"stop_reason,omitempty"`
}

type anthropicErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicErrorResponse struct {
	Type  string                `json:"type"`
	Error *anthropicErrorDetail `json:"error"`
}

type anthropicDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string                `json:"type"`
	Delta *anthropicDelta       `json:"delta,omitempty"`
	Error *anthropicErrorDetail `json:"error,omitempty"`
}

var anthropicModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

func (anthropicAdapter) Provider() Provider { return Anthropic }

func (anthropicAdapter) Capabilities(settings ProviderSettings) Capabilities {
	return Capabilities{
		Provider:     Anthropic,
		Streaming:    true,
		MaxTokens:    settings.MaxTokens,
		ContentTypes: []string{"text"},
		Models:       anthropicModels,
		DefaultModel: settings.Model,
	}
}

func (anthropicAdapter) BuildRequest(conv []Message, settings ProviderSettings, creds Credentials, stream bool) (*WireRequest, error) {
	system, turns := splitSystem(conv)
	messages := make([]anthropicMessage, len(turns))
	for i, msg := range turns {
		messages[i] = anthropicMessage{Role: string(msg.Role), Content: msg.Content}
	}

	request := anthropicRequest{
		Model:       settings.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		Stream:      stream,
	}

	header := make(http.Header)
	header.Set("x-api-key", creds.Secret())
	header.Set("anthropic-version", settings.APIVersion)
	return jsonRequest(Anthropic, joinURL(settings.BaseURL, "/v1/messages"), request, header)
}

func (a anthropicAdapter) ParseResponse(resp *WireResponse) (Message, error) {
	if !isSuccess(resp.StatusCode) {
		return Message{}, a.parseAPIError(resp)
	}
	if isBlank(resp.Body) {
		return AssistantMessage(""), nil
	}

	var response anthropicResponse
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return Message{}, NewProtocolError(Anthropic, "failed to parse response", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}
	return AssistantMessage(text.String()), nil
}

func (a anthropicAdapter) ParseStreamEvent(ev Event) (*ResponseChunk, error) {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if string(data) == "[DONE]" {
		return &ResponseChunk{Final: true}, nil
	}

	var event anthropicStreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, NewProtocolError(Anthropic, "failed to parse stream event", err)
	}

	eventType := event.Type
	if eventType == "" {
		eventType = ev.Name
	}

	switch eventType {
	case "content_block_delta":
		if event.Delta == nil {
			return nil, NewProtocolError(Anthropic, "content_block_delta without delta", nil)
		}
		if event.Delta.Type != "text_delta" {
			return nil, nil
		}
		return &ResponseChunk{Content: event.Delta.Text}, nil
	case "message_delta":
		if event.Delta == nil || event.Delta.StopReason == "" {
			return nil, nil
		}
		return &ResponseChunk{StopReason: event.Delta.StopReason}, nil
	case "message_stop":
		return &ResponseChunk{Final: true}, nil
	case "error":
		if event.Error == nil {
			return nil, NewProtocolError(Anthropic, "error event without details", nil)
		}
		return nil, &Error{
			Kind:     anthropicErrorKind(event.Error.Type),
			Provider: Anthropic,
			Message:  event.Error.Message,
			Raw:      append([]byte(nil), data...),
		}
	default:
		// message_start, content_block_start, content_block_stop, ping and
		// event types added after this adapter was written
		return nil, nil
	}
}

// parseAPIError parses Anthropic API errors
func (anthropicAdapter) parseAPIError(resp *WireResponse) *Error {
	var message string
	var errorResp anthropicErrorResponse
	if err := json.Unmarshal(resp.Body, &errorResp); err == nil && errorResp.Error != nil {
		message = errorResp.Error.Message
	}
	return statusError(Anthropic, resp, classifyStatus(resp.StatusCode), message)
}

// anthropicErrorKind maps the error.type of an in-stream error event.
func anthropicErrorKind(errorType string) ErrorKind {
	switch errorType {
	case "invalid_request_error", "not_found_error", "request_too_large":
		return KindInvalidRequest
	case "authentication_error", "permission_error":
		return KindUnauthorized
	case "rate_limit_error":
		return KindRateLimited
	case "api_error", "overloaded_error":
		return KindProviderUnavailable
	default:
		return KindProtocol
	}
}
