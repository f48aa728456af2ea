package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultCallTimeout = 60 * time.Second

// AnthropicClientConfig configures the Anthropic-backed LLM client.
type AnthropicClientConfig struct {
	APIKey      string
	Model       anthropic.Model
	MaxTokens   int64
	CallTimeout time.Duration // per-call bound; an expired call counts as a failed attempt
	Logger      *slog.Logger
}

// AnthropicClient implements LLMClient using the Anthropic API.
type AnthropicClient struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	callTimeout time.Duration
	log         *slog.Logger
}

// NewAnthropicClient creates a new Anthropic-based LLM client.
func NewAnthropicClient(cfg AnthropicClientConfig) *AnthropicClient {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		callTimeout: cfg.CallTimeout,
		log:         cfg.Logger,
	}
}

// Complete sends a prompt to Claude and returns the response text.
// Provider failures come back as *GenerateError so the retry controller
// can tell transient failures from fatal configuration errors.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	msg, err := c.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	duration := time.Since(start)

	if err != nil {
		if c.log != nil {
			c.log.Error("anthropic call failed", "duration", duration, "error", err)
		}
		// The parent context being done is the caller's decision, not a
		// provider failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &GenerateError{Retryable: isRetryableProviderError(err), Err: err}
	}
	if c.log != nil {
		c.log.Debug("anthropic call completed", "duration", duration, "stopReason", msg.StopReason)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &GenerateError{Retryable: true, Err: fmt.Errorf("no text content in response")}
}

// isRetryableProviderError separates transient provider failures (rate
// limits, server errors, network timeouts) from fatal ones (bad API key,
// malformed request). Fatal errors abort the session immediately.
func isRetryableProviderError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			// 400/401/403/404: authentication or request configuration,
			// regenerating the same request cannot help.
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Our own per-call timeout counts as a failed, retryable attempt.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unclassified transport errors: retry up to the ceiling.
	return true
}
