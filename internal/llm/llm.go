// Package llm turns a prompt into assistant text with exactly one bounded
// call to a hosted model. Every failure is absorbed into a fixed fallback
// reply so callers always have something to show the customer.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalambet/supportbot/internal/metrics"
)

// FallbackResponse is returned in place of model output whenever the call
// fails, times out or produces no text.
const FallbackResponse = "I apologize, but I'm experiencing technical difficulties. Please let me connect you with a human support agent who can assist you better."

// DefaultTimeout caps a single generation call.
const DefaultTimeout = 30 * time.Second

// ErrEmptyResponse is returned by generators when the model produced no text.
var ErrEmptyResponse = errors.New("llm returned no text")

// Generator performs one text generation call against a hosted model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reply is the outcome of a generation.
type Reply struct {
	Text string
	// Failed is set when Text is FallbackResponse because the call did not
	// produce usable output.
	Failed bool
}

// Client wraps a Generator with a timeout, fallback handling, metrics and
// logging.
type Client struct {
	gen      Generator
	provider string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewClient creates a Client. A non-positive timeout selects DefaultTimeout.
func NewClient(gen Generator, provider string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		gen:      gen,
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "llm").Str("provider", provider).Logger(),
	}
}

// Provider names the backing model provider.
func (c *Client) Provider() string {
	return c.provider
}

// Generate makes a single call. The caller's cancellation is not propagated:
// once started, the call runs until it completes or the timeout elapses.
func (c *Client) Generate(ctx context.Context, prompt string) Reply {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.gen.Generate(callCtx, prompt)
	elapsed := time.Since(start)

	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = ErrEmptyResponse
		}
	}

	if err != nil {
		outcome := metrics.OutcomeError
		switch {
		case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
			outcome = metrics.OutcomeTimeout
		case errors.Is(err, ErrEmptyResponse):
			outcome = metrics.OutcomeEmpty
		}
		metrics.ObserveLLM(c.provider, outcome, elapsed)
		c.logger.Warn().Err(err).Str("outcome", outcome).Dur("elapsed", elapsed).Msg("generation failed, using fallback reply")
		return Reply{Text: FallbackResponse, Failed: true}
	}

	metrics.ObserveLLM(c.provider, metrics.OutcomeOK, elapsed)
	c.logger.Debug().Dur("elapsed", elapsed).Int("chars", len(text)).Msg("generation completed")
	return Reply{Text: text}
}
