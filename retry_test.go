package aegis

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return &Error{Kind: KindProviderUnavailable, Provider: OpenAI}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return NewNetworkError(Anthropic, errors.New("reset"))
	})

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	tests := []error{
		&Error{Kind: KindUnauthorized},
		&Error{Kind: KindInvalidRequest},
		NewMissingCredentialsError(Gemini),
		NewProtocolError(OpenAI, "bad json", nil),
		errors.New("foreign"),
	}

	for _, want := range tests {
		t.Run(want.Error(), func(t *testing.T) {
			attempts := 0
			err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
				attempts++
				return want
			})
			assert.Equal(t, want, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestRetry_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Retry(ctx, 3, func() error {
		attempts++
		cancel()
		return &Error{Kind: KindRateLimited, Provider: Anthropic}
	})

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, e.Kind)
	assert.Equal(t, Anthropic, e.Provider)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		delay time.Duration
		want  time.Duration
	}{
		{"network keeps delay", &Error{Kind: KindNetwork}, time.Second, time.Second},
		{"foreign keeps delay", errors.New("x"), time.Second, time.Second},
		{"rate limited doubles", &Error{Kind: KindRateLimited}, 2 * time.Second, 4 * time.Second},
		{"doubling is capped", &Error{Kind: KindRateLimited}, 20 * time.Second, maxRetryDelay},
		{"retry after wins when longer", &Error{Kind: KindRateLimited, RetryAfter: 10 * time.Second}, time.Second, 10 * time.Second},
		{"retry after beyond cap", &Error{Kind: KindRateLimited, RetryAfter: time.Minute}, time.Second, time.Minute},
		{"retry after shorter is ignored", &Error{Kind: KindRateLimited, RetryAfter: time.Millisecond}, time.Second, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryDelay(tt.err, tt.delay))
		})
	}
}

func TestSendParallel(t *testing.T) {
	exec := &recordingExecutor{response: okResponse(anthropicHanoi)}
	client := newTestClient(t, NewConfig().WithAnthropic("sk-ant"), exec)

	results := SendParallel(context.Background(), client, []Provider{Anthropic, OpenAI, Anthropic}, vietnam)

	require.Len(t, results, 3)
	assert.Equal(t, Anthropic, results[0].Provider)
	assert.Equal(t, AssistantMessage("Hanoi"), results[0].Message)
	assert.NoError(t, results[0].Error)

	assert.Equal(t, OpenAI, results[1].Provider)
	assert.ErrorIs(t, results[1].Error, ErrMissingCredentials)
	assert.Empty(t, results[1].Message.Content)

	assert.Equal(t, Anthropic, results[2].Provider)
	assert.NoError(t, results[2].Error)
	assert.Equal(t, 2, exec.calls())
}

func TestRetryWithBackoff_SendMessage(t *testing.T) {
	exec := &recordingExecutor{response: &WireResponse{StatusCode: http.StatusServiceUnavailable}}
	client := newTestClient(t, allKeysConfig(), exec)

	err := RetryWithBackoff(context.Background(), 1, time.Millisecond, func() error {
		_, err := client.SendMessage(context.Background(), Gemini, vietnam)
		return err
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, exec.calls())
}
