// Package llm implements the client for the upstream messages API and
// the high-level summarize / score / generate capabilities built on it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeask/internal/errors"
	"codeask/internal/logging"
	"codeask/internal/prompts"
)

const anthropicVersion = "2023-06-01"

// ClientConfig configures the LLM client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client talks to an Anthropic-style messages endpoint. It implements
// Summarizer, Scorer, and Generator. Every call passes the admitter
// before the request is issued.
type Client struct {
	config   ClientConfig
	http     *http.Client
	prompts  *prompts.Set
	admitter Admitter
	observer CallObserver
	logger   *logging.Logger
}

// NewClient creates a new client. admitter and observer may be nil.
func NewClient(config ClientConfig, set *prompts.Set, admitter Admitter, logger *logging.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if set == nil {
		set = prompts.Default()
	}
	return &Client{
		config:   config,
		http:     &http.Client{Timeout: config.Timeout},
		prompts:  set,
		admitter: admitter,
		logger:   logger,
	}
}

// SetObserver registers a callback invoked after every upstream call.
func (c *Client) SetObserver(observer CallObserver) {
	c.observer = observer
}

// EstimateTokens approximates the token count of a payload. Four bytes
// per token is the usual rough cut for English-plus-code payloads.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Summarize produces a concise summary of one file's content.
func (c *Client) Summarize(ctx context.Context, content, language string) (string, error) {
	prompt := c.prompts.Summarize(content, language)
	text, _, err := c.complete(ctx, "summarize", []Message{{Role: RoleUser, Content: prompt}}, "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New(errors.APIError, "empty summary received")
	}
	return strings.TrimSpace(text), nil
}

// Score asks for a relevance score per labeled summary and returns the
// raw response text for the caller to parse.
func (c *Client) Score(ctx context.Context, query string, entries []string) (string, error) {
	prompt := c.prompts.Score(query, entries)
	text, _, err := c.complete(ctx, "score", []Message{{Role: RoleUser, Content: prompt}}, "")
	if err != nil {
		return "", err
	}
	return text, nil
}

// Generate produces the final answer from the conversation messages.
func (c *Client) Generate(ctx context.Context, messages []Message, system string) (string, error) {
	text, _, err := c.complete(ctx, "generate", messages, system)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// complete issues one messages-API call and extracts the answer text.
func (c *Client) complete(ctx context.Context, operation string, messages []Message, system string) (string, Usage, error) {
	var payloadSize int
	for _, m := range messages {
		payloadSize += len(m.Content)
	}

	if c.admitter != nil {
		if err := c.admitter.Admit(EstimateTokens(messages[len(messages)-1].Content) + c.config.MaxTokens); err != nil {
			return "", Usage{}, err
		}
	}

	body, err := json.Marshal(request{
		Model:     c.config.Model,
		Messages:  messages,
		System:    system,
		MaxTokens: c.config.MaxTokens,
	})
	if err != nil {
		return "", Usage{}, errors.Wrap(errors.Internal, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, errors.Wrap(errors.Internal, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		c.observe(operation, 0, elapsed)
		if ctx.Err() != nil {
			return "", Usage{}, errors.Wrap(errors.APIError, "request canceled", ctx.Err())
		}
		// Transport-level failure: retryable
		return "", Usage{}, errors.Wrap(errors.APIError, "request failed", err).AsRetryable()
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	c.observe(operation, resp.StatusCode, elapsed)

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := errors.New(errors.APIError,
			fmt.Sprintf("upstream request failed: %s", strings.TrimSpace(string(errBody)))).
			WithStatus(resp.StatusCode)
		// Overload and server-side failures are worth retrying,
		// client errors are not.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			apiErr.AsRetryable()
		}
		return "", Usage{}, apiErr
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", Usage{}, errors.Wrap(errors.APIError, "failed to parse response body", err)
	}
	if len(parsed.Content) == 0 {
		// Malformed shape: distinct from network failure, never retryable
		return "", Usage{}, errors.New(errors.APIError, "missing 'content' field in response")
	}

	if c.logger != nil {
		c.logger.Debug("Upstream call complete", map[string]interface{}{
			"operation":    operation,
			"elapsedMs":    elapsed,
			"inputTokens":  parsed.Usage.InputTokens,
			"outputTokens": parsed.Usage.OutputTokens,
		})
	}

	return parsed.Content[0].Text, parsed.Usage, nil
}

func (c *Client) observe(operation string, status int, elapsedMs int64) {
	if c.observer != nil {
		c.observer(CallLog{
			Endpoint:  c.config.BaseURL,
			Operation: operation,
			Status:    status,
			ElapsedMs: elapsedMs,
		})
	}
}
