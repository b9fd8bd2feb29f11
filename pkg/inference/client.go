package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/router"
)

// Provider wire formats.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const anthropicVersion = "2023-06-01"

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// Client invokes models over HTTP, walking the router's fallback chain.
type Client struct {
	router     *router.Router
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds a whole invocation, including fallbacks.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client.
func NewClient(r *router.Router, opts ...ClientOption) *Client {
	c := &Client{
		router:     r,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// upstreamResult holds the response from a single upstream attempt.
type upstreamResult struct {
	statusCode int
	body       []byte
}

// Invoke implements Invoker.
func (c *Client) Invoke(ctx context.Context, req models.InvocationRequest) (models.InvocationResult, error) {
	routes, err := c.router.Resolve(req.ModelID)
	if err != nil {
		return models.InvocationResult{}, &InvocationError{Model: req.ModelID, Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	for _, route := range routes {
		res, err := c.doRoute(ctx, route, req)
		if err != nil {
			if ctx.Err() != nil {
				return models.InvocationResult{}, &InvocationError{Provider: route.Provider.Name, Model: route.Model, Err: ctx.Err()}
			}
			c.logger.Warn("upstream failed, trying next", "provider", route.Provider.Name, "error", err)
			lastErr = &InvocationError{Provider: route.Provider.Name, Model: route.Model, Err: err}
			continue
		}
		if isRetryable(res.statusCode) {
			c.logger.Warn("upstream returned server error, trying next", "provider", route.Provider.Name, "status", res.statusCode)
			lastErr = &InvocationError{Provider: route.Provider.Name, Model: route.Model, StatusCode: res.statusCode}
			continue
		}
		if res.statusCode != http.StatusOK {
			return models.InvocationResult{}, &InvocationError{
				Provider:   route.Provider.Name,
				Model:      route.Model,
				StatusCode: res.statusCode,
				Err:        errors.New(upstreamMessage(res.body)),
			}
		}

		out, err := decodeResponse(providerType(route.Provider.Type), res.body)
		if err != nil {
			return models.InvocationResult{}, &InvocationError{Provider: route.Provider.Name, Model: route.Model, Err: err}
		}
		out.ModelID = req.ModelID
		out.Provider = route.Provider.Name
		out.Timestamp = c.now().UTC()
		return out, nil
	}

	if lastErr == nil {
		lastErr = &InvocationError{Model: req.ModelID, Err: errors.New("no routes")}
	}
	return models.InvocationResult{}, lastErr
}

func (c *Client) doRoute(ctx context.Context, route router.Route, req models.InvocationRequest) (*upstreamResult, error) {
	var (
		path    string
		headers = map[string]string{}
		payload any
	)
	temp := req.Temperature
	switch providerType(route.Provider.Type) {
	case ProviderAnthropic:
		path = "/v1/messages"
		headers["x-api-key"] = route.Provider.APIKey
		headers["anthropic-version"] = anthropicVersion
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		payload = models.AnthropicRequest{
			Model:       route.Model,
			Messages:    []models.ChatMessage{{Role: "user", Content: req.Prompt}},
			MaxTokens:   maxTokens,
			Temperature: &temp,
		}
	default:
		path = "/v1/chat/completions"
		if route.Provider.APIKey != "" {
			headers["Authorization"] = "Bearer " + route.Provider.APIKey
		}
		p := models.ChatCompletionRequest{
			Model:       route.Model,
			Messages:    []models.ChatMessage{{Role: "user", Content: req.Prompt}},
			Temperature: &temp,
		}
		if req.MaxTokens > 0 {
			mt := req.MaxTokens
			p.MaxTokens = &mt
		}
		payload = p
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.doUpstreamRequest(ctx, route.Provider.URL, path, headers, body)
}

// doUpstreamRequest sends a request to an upstream provider and returns the result.
func (c *Client) doUpstreamRequest(ctx context.Context, providerURL, path string, headers map[string]string, body []byte) (*upstreamResult, error) {
	target, err := url.Parse(providerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(target.String(), "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}

func decodeResponse(format string, body []byte) (models.InvocationResult, error) {
	switch format {
	case ProviderAnthropic:
		var resp models.AnthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return models.InvocationResult{}, fmt.Errorf("decode response: %w", err)
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return models.InvocationResult{Output: sb.String(), Proof: resp.ID}, nil
	default:
		var resp models.ChatCompletionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return models.InvocationResult{}, fmt.Errorf("decode response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return models.InvocationResult{}, errors.New("response has no choices")
		}
		return models.InvocationResult{Output: resp.Choices[0].Message.Content, Proof: resp.ID}, nil
	}
}

// isRetryable reports whether a status code warrants trying the next route.
// Transport errors are always retried.
func isRetryable(statusCode int) bool {
	return statusCode >= 500
}

func providerType(t string) string {
	if strings.EqualFold(t, ProviderAnthropic) {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// upstreamMessage extracts a provider error message, falling back to the raw body.
func upstreamMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := []rune(strings.ToValidUTF8(strings.TrimSpace(string(body)), "\uFFFD"))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return string(msg)
}
