package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklens/internal/retry"
)

// flakyClient fails a fixed number of times before succeeding.
type flakyClient struct {
	failures int
	err      error
	calls    int
}

func (c *flakyClient) GenerateStructured(ctx context.Context, prompt, model string, target interface{}) error {
	c.calls++
	if c.calls <= c.failures {
		return c.err
	}
	return nil
}

func fastRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestResilientClientRetriesTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 2, err: errors.New("429 too many requests")}
	client := NewResilientClientWithConfig(inner, fastRetryConfig())

	err := client.GenerateStructured(context.Background(), "prompt", "gpt-4o", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestResilientClientDoesNotRetryParseFailures(t *testing.T) {
	inner := &flakyClient{failures: 10, err: ErrMalformedResponse}
	client := NewResilientClientWithConfig(inner, fastRetryConfig())

	err := client.GenerateStructured(context.Background(), "prompt", "gpt-4o", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 1, inner.calls)
}

func TestResilientClientGivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyClient{failures: 10, err: errors.New("service unavailable")}
	client := NewResilientClientWithConfig(inner, fastRetryConfig())

	err := client.GenerateStructured(context.Background(), "prompt", "gpt-4o", nil)
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}
