package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscribe/chainscribe/pkg/config"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/router"
)

func openAIServer(t *testing.T, id, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))

		var req models.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			ID:      id,
			Model:   req.Model,
			Choices: []models.Choice{{Message: models.ChatMessage{Role: "assistant", Content: content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(providers []config.ProviderConfig, routes []config.RouteConfig, opts ...ClientOption) *Client {
	r := router.New(config.InferenceConfig{Providers: providers, Routes: routes})
	return NewClient(r, opts...)
}

func TestInvokeOpenAI(t *testing.T) {
	srv := openAIServer(t, "chat-123", "A concise summary.")
	c := newClient([]config.ProviderConfig{{Name: "zerog", URL: srv.URL, APIKey: "k-1"}}, nil)

	res, err := c.Invoke(context.Background(), models.InvocationRequest{
		ModelID: "chainscribe-change-analyzer", Prompt: "diff", MaxTokens: 150, Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "A concise summary.", res.Output)
	assert.Equal(t, "chat-123", res.Proof)
	assert.Equal(t, "chainscribe-change-analyzer", res.ModelID)
	assert.Equal(t, "zerog", res.Provider)
	assert.False(t, res.Timestamp.IsZero())
}

func TestInvokeAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k-a", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		var req models.AnthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 300, req.MaxTokens)

		_ = json.NewEncoder(w).Encode(models.AnthropicResponse{
			ID:      "msg_1",
			Content: []models.AnthropicContent{{Type: "text", Text: "part one "}, {Type: "text", Text: "part two"}},
		})
	}))
	defer srv.Close()

	c := newClient([]config.ProviderConfig{{Name: "claude", URL: srv.URL, APIKey: "k-a", Type: "anthropic"}}, nil)
	res, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m", Prompt: "p", MaxTokens: 300})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", res.Output)
	assert.Equal(t, "msg_1", res.Proof)
}

func TestInvokeFallsBackOnServerError(t *testing.T) {
	var primaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	secondary := openAIServer(t, "chat-2", "from backup")

	c := newClient(
		[]config.ProviderConfig{
			{Name: "primary", URL: primary.URL, APIKey: "k-1"},
			{Name: "secondary", URL: secondary.URL, APIKey: "k-1"},
		},
		[]config.RouteConfig{{Model: "m", Targets: []config.RouteTarget{
			{Provider: "primary"}, {Provider: "secondary"},
		}}},
	)

	res, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), primaryCalls.Load())
	assert.Equal(t, "from backup", res.Output)
	assert.Equal(t, "secondary", res.Provider)
}

func TestInvokeClientErrorIsNotRetried(t *testing.T) {
	var secondaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryCalls.Add(1)
	}))
	defer secondary.Close()

	c := newClient(
		[]config.ProviderConfig{{Name: "primary", URL: primary.URL}, {Name: "secondary", URL: secondary.URL}},
		[]config.RouteConfig{{Model: "m", Targets: []config.RouteTarget{{Provider: "primary"}, {Provider: "secondary"}}}},
	)

	_, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m", Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvocationFailed)

	var ie *InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.Contains(t, ie.Error(), "bad prompt")
	assert.Zero(t, secondaryCalls.Load())
}

func TestInvokeAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient([]config.ProviderConfig{{Name: "only", URL: srv.URL}}, nil)
	_, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrInvocationFailed)
}

func TestInvokeNoProviders(t *testing.T) {
	c := newClient(nil, nil)
	_, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m"})
	assert.ErrorIs(t, err, ErrInvocationFailed)
	assert.ErrorIs(t, err, router.ErrNoProviders)
}

func TestInvokeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newClient([]config.ProviderConfig{{Name: "slow", URL: srv.URL}}, nil, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m", Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvocationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	c := newClient([]config.ProviderConfig{{Name: "p", URL: srv.URL}}, nil)
	_, err := c.Invoke(context.Background(), models.InvocationRequest{ModelID: "m"})
	assert.ErrorIs(t, err, ErrInvocationFailed)
}

func TestUpstreamMessageTruncatesOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "quota exceeded", upstreamMessage([]byte(`{"error":{"message":"quota exceeded"}}`)))

	msg := upstreamMessage([]byte(strings.Repeat("a", 199) + "é and more"))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, 200, utf8.RuneCountInString(msg))
	assert.True(t, strings.HasSuffix(msg, "é"))

	assert.True(t, utf8.ValidString(upstreamMessage([]byte("broken \xc3"))))
}
