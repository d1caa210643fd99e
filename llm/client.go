// Client - rate-limited wrapper around providers.
//
// The external generation API is rate-limited, so every call waits on a
// token bucket sized as N calls per window before reaching the provider.
// Transient call failures are retried with exponential backoff up to a small
// bound; a call abandoned after its retries returns a *GenerationError so
// callers can isolate the failure to one candidate.

package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// GenerationError reports a generation call that failed or was abandoned
// after its retry budget.
type GenerationError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s, %d attempts): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Client wraps a Provider with rate limiting and bounded retry.
type Client struct {
	provider   Provider
	limiter    *rate.Limiter
	maxRetries int
}

// NewClient creates a client allowing calls calls per window, with up to
// maxRetries attempts per request. A non-positive window defaults to one
// minute; non-positive calls disables the limiter.
func NewClient(provider Provider, calls int, window time.Duration, maxRetries int) *Client {
	if window <= 0 {
		window = time.Minute
	}
	var limiter *rate.Limiter
	if calls > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(calls)/window.Seconds()), 1)
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Client{provider: provider, limiter: limiter, maxRetries: maxRetries}
}

// Chat sends a chat completion request under the rate limit and returns just
// the content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	return c.chat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request with a response format hint.
func (c *Client) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (string, error) {
	return c.chat(ctx, messages, format)
}

// Ask sends a single system-prompt request, the common shape for mutant and
// question generation.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, []ChatMessage{SystemMessage(prompt)}, nil)
}

func (c *Client) chat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (string, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		var response Response
		var err error
		if format != nil {
			response, err = c.provider.ChatWithFormat(ctx, messages, format)
		} else {
			response, err = c.provider.Chat(ctx, messages)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if response.Content == "" {
			lastErr = fmt.Errorf("empty response")
			continue
		}
		return response.Content, nil
	}

	return "", &GenerationError{
		Provider: c.provider.Name(),
		Attempts: c.maxRetries,
		Err:      lastErr,
	}
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// backoff returns the delay before the given retry attempt.
func backoff(attempt int) time.Duration {
	const (
		baseDelay = 200 * time.Millisecond
		maxDelay  = 5 * time.Second
	)
	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
