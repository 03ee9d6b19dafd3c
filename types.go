package aegis

import (
	"strings"
)

// Role identifies who authored a message.
// Only RoleUser, RoleAssistant and RoleSystem are accepted in a request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message represents a single turn in a conversation.
type Message struct {
	// Role of the message sender
	Role Role `json:"role"`
	// Content of the message. Empty only in streamed fragments or empty provider replies.
	Content string `json:"content"`
}

// UserMessage returns a message with the user role.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage returns a message with the system role.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AssistantMessage returns a message with the assistant role.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Conversation represents a collection of messages forming a dialogue.
// Messages are ordered chronologically with the oldest first.
type Conversation struct {
	// Messages in chronological order
	Messages []Message `json:"messages"`
}

// NewConversation creates a new conversation
func NewConversation() *Conversation {
	return &Conversation{
		Messages: make([]Message, 0),
	}
}

// AddMessage adds a message to the conversation
func (c *Conversation) AddMessage(role Role, content string) {
	c.Messages = append(c.Messages, Message{
		Role:    role,
		Content: content,
	})
}

// AddSystemMessage adds a system message to the conversation
func (c *Conversation) AddSystemMessage(content string) {
	c.AddMessage(RoleSystem, content)
}

// AddUserMessage adds a user message to the conversation
func (c *Conversation) AddUserMessage(content string) {
	c.AddMessage(RoleUser, content)
}

// AddAssistantMessage adds an assistant message to the conversation
func (c *Conversation) AddAssistantMessage(content string) {
	c.AddMessage(RoleAssistant, content)
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// validateConversation rejects requests that no provider could accept.
func validateConversation(p Provider, conv []Message) error {
	if len(conv) == 0 {
		return newError(KindInvalidRequest, p, "conversation is empty")
	}
	for i, msg := range conv {
		if !msg.Role.Valid() {
			return newErrorf(KindInvalidRequest, p, "message %d has unknown role %q", i, msg.Role)
		}
		if msg.Content == "" {
			return newErrorf(KindInvalidRequest, p, "message %d has empty content", i)
		}
	}
	return nil
}

// Provider identifies an LLM service. The zero value is not a valid provider.
type Provider int

const (
	Anthropic Provider = iota + 1
	OpenAI
	Gemini
)

var providerNames = map[Provider]string{
	Anthropic: "anthropic",
	OpenAI:    "openai",
	Gemini:    "gemini",
}

// Providers returns every known provider in declaration order.
func Providers() []Provider {
	return []Provider{Anthropic, OpenAI, Gemini}
}

// String returns the lower-case provider name used on the command line and in logs.
func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	_, ok := providerNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (p Provider) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, newErrorf(KindInvalidRequest, 0, "unknown provider %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProvider converts a free-form provider name into a Provider.
// Common aliases such as "claude" and "chatgpt" are accepted.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "claude":
		return Anthropic, nil
	case "openai", "chatgpt":
		return OpenAI, nil
	case "gemini", "google":
		return Gemini, nil
	default:
		return 0, newErrorf(KindInvalidRequest, 0, "unknown provider %q", name)
	}
}

// Credentials is an opaque API secret. Formatting never reveals the value.
type Credentials string

// String implements fmt.Stringer with a redacted value.
func (c Credentials) String() string {
	if c == "" {
		return "[unset]"
	}
	return "[redacted]"
}

// GoString implements fmt.GoStringer so %#v is redacted as well.
func (c Credentials) GoString() string {
	return c.String()
}

// Secret returns the raw credential for use in a request header.
func (c Credentials) Secret() string {
	return string(c)
}

// ResponseChunk represents one fragment of a streamed response.
// When Final is true this is the end marker and StopReason may be populated.
type ResponseChunk struct {
	// Content of this chunk
	Content string `json:"content"`
	// Final indicates this is the last chunk of the stream
	Final bool `json:"final"`
	// StopReason is the provider's reason for ending generation, if reported
	StopReason string `json:"stop_reason,omitempty"`
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	Provider     Provider `json:"provider"`
	Streaming    bool     `json:"streaming"`
	MaxTokens    int      `json:"max_tokens"`
	ContentTypes []string `json:"content_types"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}
