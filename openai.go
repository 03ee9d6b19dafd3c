package aegis

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// openAIAdapter speaks the OpenAI Chat Completions API.
type openAIAdapter struct{}

// OpenAI API request/response structures
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	Delta struct {
		Role    string `json:"role,omitempty"`
		Content string `json:"content,omitempty"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type openAIResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChoice     `json:"choices"`
	Error   *openAIErrorDetail `json:"error,omitempty"`
}

type openAIErrorDetail struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code,omitempty"`
}

type openAIErrorResponse struct {
	Error *openAIErrorDetail `json:"error"`
}

var openAIModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4-turbo-preview",
	"gpt-3.5-turbo",
}

func (openAIAdapter) Provider() Provider { return OpenAI }

func (openAIAdapter) Capabilities(settings ProviderSettings) Capabilities {
	return Capabilities{
		Provider:     OpenAI,
		Streaming:    true,
		MaxTokens:    settings.MaxTokens,
		ContentTypes: []string{"text"},
		Models:       openAIModels,
		DefaultModel: settings.Model,
	}
}

func (openAIAdapter) BuildRequest(conv []Message, settings ProviderSettings, creds Credentials, stream bool) (*WireRequest, error) {
	messages := make([]openAIMessage, len(conv))
	for i, msg := range conv {
		messages[i] = openAIMessage{Role: string(msg.Role), Content: msg.Content}
	}

	request := openAIRequest{
		Model:       settings.Model,
		Messages:    messages,
		Stream:      stream,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+creds.Secret())
	return jsonRequest(OpenAI, joinURL(settings.BaseURL, "/v1/chat/completions"), request, header)
}

func (a openAIAdapter) ParseResponse(resp *WireResponse) (Message, error) {
	if !isSuccess(resp.StatusCode) {
		return Message{}, a.parseAPIError(resp)
	}
	if isBlank(resp.Body) {
		return AssistantMessage(""), nil
	}

	var response openAIResponse
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return Message{}, NewProtocolError(OpenAI, "failed to parse response", err)
	}
	if response.Error != nil {
		return Message{}, openAIStreamError(response.Error, resp.Body)
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == nil {
		return AssistantMessage(""), nil
	}
	return AssistantMessage(*response.Choices[0].Message.Content), nil
}

func (openAIAdapter) ParseStreamEvent(ev Event) (*ResponseChunk, error) {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if string(data) == "[DONE]" {
		return &ResponseChunk{Final: true}, nil
	}

	var response openAIResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, NewProtocolError(OpenAI, "failed to parse stream event", err)
	}
	if response.Error != nil {
		return nil, openAIStreamError(response.Error, data)
	}
	if len(response.Choices) == 0 {
		// usage-only frames
		return nil, nil
	}

	choice := response.Choices[0]
	chunk := &ResponseChunk{Content: choice.Delta.Content}
	if choice.FinishReason != nil {
		chunk.StopReason = *choice.FinishReason
	}
	if chunk.Content == "" && chunk.StopReason == "" {
		return nil, nil
	}
	return chunk, nil
}

// parseAPIError parses OpenAI API errors
func (openAIAdapter) parseAPIError(resp *WireResponse) *Error {
	var message string
	var errorResp openAIErrorResponse
	if err := json.Unmarshal(resp.Body, &errorResp); err == nil && errorResp.Error != nil {
		message = errorResp.Error.Message
	}
	return statusError(OpenAI, resp, classifyStatus(resp.StatusCode), message)
}

// openAIStreamError classifies an error object delivered with a 200 status.
func openAIStreamError(detail *openAIErrorDetail, raw []byte) *Error {
	code := string(bytes.Trim(detail.Code, `"`))
	var kind ErrorKind
	switch {
	case code == "invalid_api_key", detail.Type == "authentication_error":
		kind = KindUnauthorized
	case code == "rate_limit_exceeded", detail.Type == "rate_limit_error":
		kind = KindRateLimited
	case code == "server_error", detail.Type == "server_error":
		kind = KindProviderUnavailable
	case detail.Type == "invalid_request_error":
		kind = KindInvalidRequest
	default:
		kind = KindProtocol
	}
	return &Error{
		Kind:     kind,
		Provider: OpenAI,
		Message:  detail.Message,
		Raw:      append([]byte(nil), raw...),
	}
}
