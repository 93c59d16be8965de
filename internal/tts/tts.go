// Package tts converts narration text into mp3 audio.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lexiqai/article-voice/internal/resilience"
)

// ErrEmptyText is returned for input with nothing to speak
var ErrEmptyText = errors.New("text is empty")

// ContentType of every synthesized clip
const ContentType = "audio/mpeg"

// APIError is a non-2xx reply from a speech endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Synthesizer turns one chunk of text into mp3 bytes
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Guarded wraps a synthesizer with a circuit breaker
type Guarded struct {
	next    Synthesizer
	breaker *resilience.CircuitBreaker
}

// NewGuarded returns next guarded by breaker
func NewGuarded(next Synthesizer, breaker *resilience.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// Synthesize calls the wrapped synthesizer unless the circuit is open.
// Rejected input does not count against the breaker.
func (g *Guarded) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		audio, err = g.next.Synthesize(ctx, text)
		if err != nil && !IsUpstreamFailure(err) {
			return resilience.Neutral(err)
		}
		return err
	})
	return audio, err
}

// IsUpstreamFailure reports whether err says the speech service is unwell.
// A 4xx other than 429, or empty input, is a fault of the request itself.
func IsUpstreamFailure(err error) bool {
	if errors.Is(err, ErrEmptyText) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Healthy reports false while the breaker is open
func (g *Guarded) Healthy(ctx context.Context) (bool, error) {
	return g.breaker.Healthy(ctx)
}
