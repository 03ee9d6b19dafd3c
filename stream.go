package aegis

import (
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
)

// ChunkStream is a lazy, forward-only sequence of response chunks bound to one
// open connection. Chunks are read from the network only when Next is called.
//
// A stream ends with a chunk whose Final field is true, after which Next returns
// io.EOF, or with an *Error. Close releases the connection; it is safe to call
// at any time and more than once. A ChunkStream must be consumed by a single
// goroutine, though Close may be called from others. Once Close has been called,
// Next returns io.EOF, including a Next that was blocked on the network.
type ChunkStream struct {
	provider Provider
	adapter  Adapter
	events   EventStream

	// onDone is invoked exactly once, when the stream ends or is abandoned.
	onDone   func(chunks int, err error)
	doneOnce sync.Once

	stopReason string
	chunks     atomic.Int64
	err        error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newChunkStream(p Provider, adapter Adapter, events EventStream, onDone func(int, error)) *ChunkStream {
	if onDone == nil {
		onDone = func(int, error) {}
	}
	return &ChunkStream{
		provider: p,
		adapter:  adapter,
		events:   events,
		onDone:   onDone,
	}
}

// Provider returns the provider the stream is reading from.
func (s *ChunkStream) Provider() Provider {
	return s.provider
}

// Next returns the next chunk. Text-less fragments that only carry a stop reason
// are not returned on their own; the stop reason is reported on the final chunk.
func (s *ChunkStream) Next() (ResponseChunk, error) {
	if s.err != nil {
		return ResponseChunk{}, s.err
	}
	if s.closed.Load() {
		return ResponseChunk{}, io.EOF
	}

	for {
		ev, err := s.events.Next()
		if err != nil {
			if s.closed.Load() {
				s.err = io.EOF
				return ResponseChunk{}, io.EOF
			}
			if err == io.EOF {
				if s.stopReason != "" {
					return s.finish(ResponseChunk{Final: true, StopReason: s.stopReason})
				}
				return ResponseChunk{}, s.fail(NewProtocolError(s.provider, "stream ended without end marker", nil))
			}
			return ResponseChunk{}, s.fail(NewNetworkError(s.provider, err))
		}

		chunk, err := s.adapter.ParseStreamEvent(ev)
		if err != nil {
			return ResponseChunk{}, s.fail(ensureError(s.provider, err))
		}
		if chunk == nil {
			continue
		}
		if chunk.StopReason != "" {
			s.stopReason = chunk.StopReason
		}
		if chunk.Final {
			out := *chunk
			out.StopReason = s.stopReason
			return s.finish(out)
		}
		if chunk.Content == "" {
			continue
		}

		s.chunks.Add(1)
		return ResponseChunk{Content: chunk.Content}, nil
	}
}

func (s *ChunkStream) finish(final ResponseChunk) (ResponseChunk, error) {
	s.chunks.Add(1)
	s.err = io.EOF
	s.release()
	s.done(nil)
	return final, nil
}

func (s *ChunkStream) fail(err error) error {
	s.err = err
	s.release()
	s.done(err)
	return err
}

func (s *ChunkStream) done(err error) {
	s.doneOnce.Do(func() {
		s.onDone(int(s.chunks.Load()), err)
	})
}

func (s *ChunkStream) release() {
	s.closeOnce.Do(func() {
		s.closeErr = s.events.Close()
	})
}

// Close releases the underlying connection. Closing a stream before its end
// marker abandons the rest of the response.
func (s *ChunkStream) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.release()
		s.done(errStreamAbandoned)
	}
	// Every caller goes through closeOnce before reading closeErr.
	s.release()
	return s.closeErr
}

// All returns an iterator over the remaining chunks. The final chunk is yielded
// like any other; a terminal error is yielded once. Leaving the loop early closes
// the stream.
func (s *ChunkStream) All() iter.Seq2[ResponseChunk, error] {
	return func(yield func(ResponseChunk, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Collect drains the stream into a single assistant message and closes it.
func Collect(s *ChunkStream) (Message, error) {
	defer s.Close()

	var content strings.Builder
	for chunk, err := range s.All() {
		if err != nil {
			return Message{}, err
		}
		content.WriteString(chunk.Content)
	}
	return AssistantMessage(content.String()), nil
}

// errStreamAbandoned marks a stream closed by its consumer before the end marker.
var errStreamAbandoned = newError(KindNetwork, 0, "stream abandoned")

// ensureError wraps errors that did not come from this package as protocol errors,
// so that only taxonomy kinds leave the dispatcher.
func ensureError(p Provider, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return NewProtocolError(p, "unclassified provider error", err)
}
