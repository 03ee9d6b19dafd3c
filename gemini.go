package aegis

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// geminiAdapter speaks the Google Gemini generateContent API.
type geminiAdapter struct{}

// Gemini API request/response structures
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiGenerationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxOutputTokens,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	GenerationConfig  *geminiGenerationConfig  `json:"generationConfig,omitempty"`
	SystemInstruction *geminiSystemInstruction `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate  `json:"candidates"`
	Error      *geminiErrorDetail `json:"error,omitempty"`
}

type geminiErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiErrorResponse struct {
	Error *geminiErrorDetail `json:"error"`
}

var geminiModels = []string{
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-2.0-flash",
}

func (geminiAdapter) Provider() Provider { return Gemini }

func (geminiAdapter) Capabilities(settings ProviderSettings) Capabilities {
	return Capabilities{
		Provider:     Gemini,
		Streaming:    true,
		MaxTokens:    settings.MaxTokens,
		ContentTypes: []string{"text"},
		Models:       geminiModels,
		DefaultModel: settings.Model,
	}
}

func (geminiAdapter) BuildRequest(conv []Message, settings ProviderSettings, creds Credentials, stream bool) (*WireRequest, error) {
	system, turns := splitSystem(conv)

	contents := make([]geminiContent, len(turns))
	for i, msg := range turns {
		// Gemini calls the assistant "model"
		role := string(msg.Role)
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents[i] = geminiContent{Parts: []geminiPart{{Text: msg.Content}}, Role: role}
	}

	request := geminiRequest{Contents: contents}
	if system != "" {
		request.SystemInstruction = &geminiSystemInstruction{Parts: []geminiPart{{Text: system}}}
	}
	if settings.Temperature != nil || settings.MaxTokens > 0 {
		request.GenerationConfig = &geminiGenerationConfig{
			Temperature: settings.Temperature,
			MaxTokens:   settings.MaxTokens,
		}
	}

	// Keep the key out of the URL.
	header := make(http.Header)
	header.Set("x-goog-api-key", creds.Secret())

	endpoint := joinURL(settings.BaseURL, "/v1beta/models/"+url.PathEscape(settings.Model))
	if stream {
		endpoint += ":streamGenerateContent?alt=sse"
	} else {
		endpoint += ":generateContent"
	}
	return jsonRequest(Gemini, endpoint, request, header)
}

func (a geminiAdapter) ParseResponse(resp *WireResponse) (Message, error) {
	if !isSuccess(resp.StatusCode) {
		return Message{}, a.parseAPIError(resp)
	}
	if isBlank(resp.Body) {
		return AssistantMessage(""), nil
	}

	var response geminiResponse
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return Message{}, NewProtocolError(Gemini, "failed to parse response", err)
	}
	if response.Error != nil {
		return Message{}, geminiError(response.Error, resp.Body)
	}
	if len(response.Candidates) == 0 {
		return AssistantMessage(""), nil
	}
	return AssistantMessage(candidateText(response.Candidates[0])), nil
}

func (geminiAdapter) ParseStreamEvent(ev Event) (*ResponseChunk, error) {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 {
		return nil, nil
	}

	var response geminiResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, NewProtocolError(Gemini, "failed to parse stream event", err)
	}
	if response.Error != nil {
		return nil, geminiError(response.Error, data)
	}
	if len(response.Candidates) == 0 {
		return nil, nil
	}

	// Gemini has no terminator frame: the frame carrying finishReason is the last one.
	candidate := response.Candidates[0]
	chunk := &ResponseChunk{
		Content:    candidateText(candidate),
		StopReason: candidate.FinishReason,
		Final:      candidate.FinishReason != "",
	}
	if chunk.Content == "" && !chunk.Final {
		return nil, nil
	}
	return chunk, nil
}

func candidateText(c geminiCandidate) string {
	var text strings.Builder
	for _, part := range c.Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String()
}

// parseAPIError parses Gemini API errors
func (geminiAdapter) parseAPIError(resp *WireResponse) *Error {
	var errorResp geminiErrorResponse
	if err := json.Unmarshal(resp.Body, &errorResp); err == nil && errorResp.Error != nil {
		kind := classifyStatus(resp.StatusCode)
		if isGeminiAuthFailure(errorResp.Error) {
			kind = KindUnauthorized
		}
		return statusError(Gemini, resp, kind, errorResp.Error.Message)
	}
	return statusError(Gemini, resp, classifyStatus(resp.StatusCode), "")
}

// geminiError classifies an error object found in a 200 response or stream frame.
func geminiError(detail *geminiErrorDetail, raw []byte) *Error {
	kind := KindProtocol
	if detail.Code != 0 {
		kind = classifyStatus(detail.Code)
	}
	if isGeminiAuthFailure(detail) {
		kind = KindUnauthorized
	}
	return &Error{
		Kind:       kind,
		Provider:   Gemini,
		StatusCode: detail.Code,
		Message:    detail.Message,
		Raw:        append([]byte(nil), raw...),
	}
}

// Gemini reports a bad key as 400 INVALID_ARGUMENT.
func isGeminiAuthFailure(detail *geminiErrorDetail) bool {
	switch detail.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return true
	}
	return strings.Contains(detail.Message, "API key not valid")
}
