package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/article-voice/internal/resilience"
)

var fakeMP3 = []byte{0xFF, 0xFB, 0x90, 0x64, 0x00}

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{APIKey: "test-token", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
}

func TestOpenAIClient_Synthesize(t *testing.T) {
	var got map[string]any
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", ContentType)
		w.Write(fakeMP3)
	})

	audio, err := client.Synthesize(context.Background(), "Hello there.")
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, audio)

	assert.Equal(t, "tts-1", got["model"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "Hello there.", got["input"])
}

func TestOpenAIClient_ErrorCarriesStatusAndBody(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("input too long"))
	})

	_, err := client.Synthesize(context.Background(), "text")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "input too long", apiErr.Body)
	assert.Equal(t, "status 400: input too long", err.Error())
}

func TestOpenAIClient_StructuredErrorCarriesTypeAndCode(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})

	_, err := client.Synthesize(context.Background(), "text")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "You exceeded your current quota (type: insufficient_quota, code: insufficient_quota)", apiErr.Body)
}

func TestOpenAIClient_EmptyText(t *testing.T) {
	called := false
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.Synthesize(context.Background(), " \n ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.False(t, called)
}

func TestDeepgramClient_Synthesize(t *testing.T) {
	c := &DeepgramClient{speak: func(ctx context.Context, text string) ([]byte, error) {
		assert.Equal(t, "Hello.", text)
		return fakeMP3, nil
	}}

	audio, err := c.Synthesize(context.Background(), "Hello.")
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, audio)
}

func TestDeepgramClient_Errors(t *testing.T) {
	failing := &DeepgramClient{speak: func(ctx context.Context, text string) ([]byte, error) {
		return nil, errors.New("401 invalid credentials")
	}}
	_, err := failing.Synthesize(context.Background(), "Hello.")
	assert.ErrorContains(t, err, "invalid credentials")

	silent := &DeepgramClient{speak: func(ctx context.Context, text string) ([]byte, error) {
		return nil, nil
	}}
	_, err = silent.Synthesize(context.Background(), "Hello.")
	assert.ErrorContains(t, err, "no audio")

	_, err = silent.Synthesize(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

type mockSynthesizer struct {
	mock.Mock
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	args := m.Called(ctx, text)
	audio, _ := args.Get(0).([]byte)
	return audio, args.Error(1)
}

func TestGuarded_FailsFastWhenOpen(t *testing.T) {
	inner := new(mockSynthesizer)
	inner.On("Synthesize", mock.Anything, "a").Return(nil, &APIError{StatusCode: 500, Body: "down"}).Once()

	g := NewGuarded(inner, resilience.NewCircuitBreaker("tts-test", 1, time.Minute))

	_, err := g.Synthesize(context.Background(), "a")
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))

	_, err = g.Synthesize(context.Background(), "a")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	ok, _ := g.Healthy(context.Background())
	assert.False(t, ok)
	inner.AssertExpectations(t)
}

func TestGuarded_PassesAudioThrough(t *testing.T) {
	inner := new(mockSynthesizer)
	inner.On("Synthesize", mock.Anything, "b").Return(fakeMP3, nil)

	g := NewGuarded(inner, resilience.NewCircuitBreaker("tts-test", 1, time.Minute))

	audio, err := g.Synthesize(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, audio)
}

func TestGuarded_RejectedInputDoesNotOpenBreaker(t *testing.T) {
	inner := new(mockSynthesizer)
	inner.On("Synthesize", mock.Anything, "oversized").Return(nil, &APIError{StatusCode: http.StatusBadRequest, Body: "input too long"})
	inner.On("Synthesize", mock.Anything, "").Return(nil, ErrEmptyText)
	inner.On("Synthesize", mock.Anything, "hello world").Return(fakeMP3, nil).Once()

	g := NewGuarded(inner, resilience.NewCircuitBreaker("tts-test", 5, time.Minute))

	for i := 0; i < 10; i++ {
		_, err := g.Synthesize(context.Background(), "oversized")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	}
	_, err := g.Synthesize(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)

	audio, err := g.Synthesize(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, audio)

	ok, err := g.Healthy(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)
	inner.AssertExpectations(t)
}

func TestGuarded_RateLimitOpensBreaker(t *testing.T) {
	inner := new(mockSynthesizer)
	inner.On("Synthesize", mock.Anything, "a").Return(nil, &APIError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}).Twice()

	g := NewGuarded(inner, resilience.NewCircuitBreaker("tts-test", 2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := g.Synthesize(context.Background(), "a")
		assert.Error(t, err)
	}

	_, err := g.Synthesize(context.Background(), "a")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	inner.AssertExpectations(t)
}

func TestIsUpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"empty text", ErrEmptyText, false},
		{"bad request", &APIError{StatusCode: http.StatusBadRequest}, false},
		{"forbidden", &APIError{StatusCode: http.StatusForbidden}, false},
		{"rate limited", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &APIError{StatusCode: http.StatusServiceUnavailable}, true},
		{"transport", errors.New("speech request failed: connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpstreamFailure(tt.err))
		})
	}
}
