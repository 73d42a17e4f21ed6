package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastConfig(maxAttempts int, retryable ...error) Config {
	return Config{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: retryable,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")

	attempts := 0
	err := Do(context.Background(), fastConfig(5, errFlaky), func() error {
		attempts++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts, "non-retryable errors must not consume the attempt budget")
}

func TestDoRetriesWrappedRetryableError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3, errFlaky), func() error {
		attempts++
		return fmt.Errorf("attempt failed: %w", errFlaky)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	cfg := fastConfig(10)
	cfg.InitialDelay = 50 * time.Millisecond

	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return errFlaky
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestAddJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		jittered := addJitter(base, 0.1)
		assert.GreaterOrEqual(t, jittered, 90*time.Millisecond)
		assert.LessOrEqual(t, jittered, 110*time.Millisecond)
	}

	assert.Equal(t, base, addJitter(base, 0))
}
