package llm

import (
	"context"

	"github.com/tracklens/internal/retry"
)

// ResilientClient wraps a Client with exponential-backoff retries on
// transient provider failures (rate limits, transport errors). Parse
// failures are not retried; the classifier treats them as terminal.
type ResilientClient struct {
	inner Client
	cfg   retry.Config
}

func NewResilientClient(inner Client) *ResilientClient {
	return &ResilientClient{inner: inner, cfg: retry.LLMConfig()}
}

func NewResilientClientWithConfig(inner Client, cfg retry.Config) *ResilientClient {
	return &ResilientClient{inner: inner, cfg: cfg}
}

func (rc *ResilientClient) GenerateStructured(ctx context.Context, prompt, model string, target interface{}) error {
	result := retry.Do(ctx, rc.cfg, func() error {
		return rc.inner.GenerateStructured(ctx, prompt, model, target)
	})
	if result.Success {
		return nil
	}
	return result.LastError
}
