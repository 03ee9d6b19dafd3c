package aegis

import (
	"context"
	"strings"
)

// Session manages a multi-turn conversation with one provider.
// It keeps the history and sends all of it with every message. A Session is not
// safe for concurrent use.
//
// Example:
//
//	session := NewSessionWithSystemMessage(client, Anthropic, "You are a helpful assistant.")
//	reply1, err := session.Send(ctx, "What is Go?")
//	reply2, err := session.Send(ctx, "What are its benefits?") // Remembers context
type Session struct {
	client       *Aegis
	provider     Provider
	conversation *Conversation
}

// NewSession creates a new session talking to provider p.
// The conversation starts empty with no system message.
func NewSession(client *Aegis, p Provider) *Session {
	return &Session{
		client:       client,
		provider:     p,
		conversation: NewConversation(),
	}
}

// NewSessionWithSystemMessage creates a new session with a system message.
func NewSessionWithSystemMessage(client *Aegis, p Provider, message string) *Session {
	session := NewSession(client, p)
	session.conversation.AddSystemMessage(message)
	return session
}

// Provider returns the provider the session talks to.
func (s *Session) Provider() Provider {
	return s.provider
}

// Send sends a message and returns the reply.
// The message and the reply are added to the history. If the call fails the
// history is left as it was.
func (s *Session) Send(ctx context.Context, message string) (Message, error) {
	s.conversation.AddUserMessage(message)

	reply, err := s.client.SendMessage(ctx, s.provider, s.conversation.Messages)
	if err != nil {
		s.dropLast()
		return Message{}, err
	}

	s.conversation.AddAssistantMessage(reply.Content)
	return reply, nil
}

// Stream sends a message and streams the reply, calling onChunk for every chunk
// including the final one. The complete reply is added to the history only when
// the stream reaches its end marker; otherwise the history is left as it was.
func (s *Session) Stream(ctx context.Context, message string, onChunk func(ResponseChunk)) (Message, error) {
	s.conversation.AddUserMessage(message)

	stream, err := s.client.StreamMessage(ctx, s.provider, s.conversation.Messages)
	if err != nil {
		s.dropLast()
		return Message{}, err
	}
	defer stream.Close()

	var content strings.Builder
	for chunk, err := range stream.All() {
		if err != nil {
			s.dropLast()
			return Message{}, err
		}
		content.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	reply := AssistantMessage(content.String())
	s.conversation.AddAssistantMessage(reply.Content)
	return reply, nil
}

func (s *Session) dropLast() {
	if n := len(s.conversation.Messages); n > 0 {
		s.conversation.Messages = s.conversation.Messages[:n-1]
	}
}

// AddMessage adds a message to the conversation without sending it.
func (s *Session) AddMessage(message Message) {
	s.conversation.Messages = append(s.conversation.Messages, message)
}

// History returns the conversation history.
func (s *Session) History() *Conversation {
	return s.conversation
}

// Clear removes all messages from the conversation history.
func (s *Session) Clear() {
	s.conversation.Messages = make([]Message, 0)
}

// ResetWithSystem clears the conversation and sets a new system message.
func (s *Session) ResetWithSystem(message string) {
	s.conversation = NewConversation()
	s.conversation.AddSystemMessage(message)
}

// Len returns the number of messages in the conversation.
func (s *Session) Len() int {
	return len(s.conversation.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (s *Session) IsEmpty() bool {
	return len(s.conversation.Messages) == 0
}
