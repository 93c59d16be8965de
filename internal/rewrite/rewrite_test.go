package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/article-voice/internal/resilience"
)

type completionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker *resilience.CircuitBreaker) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test-token",
		BaseURL: srv.URL + "/v1",
		Timeout: 5 * time.Second,
	}, breaker)
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestRewrite_SendsThreeTurnPrompt(t *testing.T) {
	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(w, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Edited post."}}]}`)
	}, nil)

	edited, err := client.Rewrite(context.Background(), "Raw post.\n")
	require.NoError(t, err)
	assert.Equal(t, "Edited post.", edited)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 1.0, got.Temperature)
	assert.Equal(t, 1.0, got.TopP)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, "Given text from a blog post:"))
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "Raw post.\n", got.Messages[2].Content)
}

func TestRewrite_NonSuccessStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusTooManyRequests, `rate limited`)
	}, nil)

	_, err := client.Rewrite(context.Background(), "text")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "rate limited")
	assert.Contains(t, err.Error(), "429")
}

func TestRewrite_StructuredAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}, nil)

	_, err := client.Rewrite(context.Background(), "text")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Incorrect API key provided (type: invalid_request_error, code: invalid_api_key)", apiErr.Body)
}

func TestRewrite_StructuredAPIErrorWithoutCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 128000 tokens","type":"invalid_request_error"}}`)
	}, nil)

	_, err := client.Rewrite(context.Background(), "text")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, "This model's maximum context length is 128000 tokens (type: invalid_request_error)", apiErr.Body)
}

func TestRewrite_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"no choices", `{"choices":[]}`},
		{"missing content", `{"choices":[{"index":0,"message":{"role":"assistant"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				reply(w, http.StatusOK, tt.body)
			}, nil)

			_, err := client.Rewrite(context.Background(), "text")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestRewrite_TransportError(t *testing.T) {
	client := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1/v1", Timeout: time.Second}, nil)

	_, err := client.Rewrite(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion request failed")
}

func TestRewrite_BreakerOpensAndFailsFast(t *testing.T) {
	calls := 0
	breaker := resilience.NewCircuitBreaker("rewrite-test", 2, time.Minute)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		reply(w, http.StatusInternalServerError, `boom`)
	}, breaker)

	for i := 0; i < 2; i++ {
		_, err := client.Rewrite(context.Background(), "text")
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
	}

	_, err := client.Rewrite(context.Background(), "text")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, calls)

	ok, _ := client.Healthy(context.Background())
	assert.False(t, ok)
}

func TestRewrite_RejectedRequestsDoNotOpenBreaker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker("rewrite-test", 2, time.Minute)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "oversized") {
			reply(w, http.StatusBadRequest, `{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`)
			return
		}
		reply(w, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Edited."}}]}`)
	}, breaker)

	for i := 0; i < 5; i++ {
		_, err := client.Rewrite(context.Background(), "oversized")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	}

	edited, err := client.Rewrite(context.Background(), "fine")
	require.NoError(t, err)
	assert.Equal(t, "Edited.", edited)

	ok, err := client.Healthy(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestRewrite_MalformedRepliesDoNotOpenBreaker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker("rewrite-test", 1, time.Minute)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `{"choices":[]}`)
	}, breaker)

	for i := 0; i < 3; i++ {
		_, err := client.Rewrite(context.Background(), "text")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	}
}

func TestIsUpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &APIError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &APIError{StatusCode: http.StatusUnauthorized}, false},
		{"rate limited", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &APIError{StatusCode: http.StatusBadGateway}, true},
		{"malformed", fmt.Errorf("%w: no choices", ErrMalformedResponse), false},
		{"transport", errors.New("completion request failed: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpstreamFailure(tt.err))
		})
	}
}
