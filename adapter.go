package aegis

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Adapter translates between the provider-agnostic message model and one
// provider's wire format. Implementations hold no per-call state.
type Adapter interface {
	// Provider returns the provider this adapter speaks to.
	Provider() Provider

	// Capabilities describes the provider for the given settings.
	Capabilities(settings ProviderSettings) Capabilities

	// BuildRequest maps a conversation onto the provider's request. The result
	// depends only on its arguments.
	BuildRequest(conv []Message, settings ProviderSettings, creds Credentials, stream bool) (*WireRequest, error)

	// ParseResponse maps a complete response onto one assistant message or an *Error.
	ParseResponse(resp *WireResponse) (Message, error)

	// ParseStreamEvent maps one stream frame. It returns (nil, nil) for frames that
	// carry nothing, a chunk with Final set for the end of the stream, or an *Error.
	ParseStreamEvent(ev Event) (*ResponseChunk, error)
}

// builtinAdapters is the closed set of adapters, one per Provider.
var builtinAdapters = map[Provider]Adapter{
	Anthropic: anthropicAdapter{},
	OpenAI:    openAIAdapter{},
	Gemini:    geminiAdapter{},
}

func adapterFor(p Provider) (Adapter, error) {
	a, ok := builtinAdapters[p]
	if !ok {
		return nil, newErrorf(KindInvalidRequest, 0, "unknown provider %d", int(p))
	}
	return a, nil
}

// joinURL appends path to base without doubling or dropping the slash.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// jsonRequest marshals body into a POST WireRequest with a JSON content type.
func jsonRequest(p Provider, url string, body any, header http.Header) (*WireRequest, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Provider: p, Message: "failed to encode request", Cause: err}
	}
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Type", "application/json")
	return &WireRequest{
		Method: http.MethodPost,
		URL:    url,
		Header: header,
		Body:   data,
	}, nil
}

// isSuccess reports whether status is 2xx.
func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// isBlank reports whether a body carries no payload at all.
func isBlank(body []byte) bool {
	return len(strings.TrimSpace(string(body))) == 0
}

// splitSystem separates system messages from the turn sequence, joining their
// contents with a blank line. The order of the remaining turns is preserved.
func splitSystem(conv []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(conv))
	for _, msg := range conv {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return strings.Join(system, "\n\n"), turns
}
