package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first attempt", func(t *testing.T) {
		calls := 0
		attempts, err := RetryWithBackoff(ctx, func() error {
			calls++
			return nil
		}, 3, time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		attempts, err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, 3, time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		boom := errors.New("still broken")
		calls := 0
		attempts, err := RetryWithBackoff(ctx, func() error {
			calls++
			return boom
		}, 3, time.Millisecond)

		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("terminal error stops immediately", func(t *testing.T) {
		boom := errors.New("bad input")
		calls := 0
		attempts, err := RetryWithBackoff(ctx, func() error {
			calls++
			return Terminal(boom)
		}, 5, time.Millisecond)

		require.ErrorIs(t, err, boom)
		assert.True(t, IsTerminal(err))
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("invalid max attempts", func(t *testing.T) {
		_, err := RetryWithBackoff(ctx, func() error { return nil }, 0, time.Millisecond)
		require.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		calls := 0
		_, err := RetryWithBackoff(cancelCtx, func() error {
			calls++
			cancel()
			return errors.New("transient")
		}, 5, 10*time.Millisecond)

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("already cancelled context never runs", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		attempts, err := RetryWithBackoff(cancelCtx, func() error {
			calls++
			return nil
		}, 3, time.Millisecond)

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, attempts)
		assert.Equal(t, 0, calls)
	})
}

func TestTerminalErrors(t *testing.T) {
	base := errors.New("root cause")

	assert.Nil(t, Terminal(nil))
	assert.False(t, IsTerminal(base))

	wrapped := Terminal(base)
	assert.True(t, IsTerminal(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, base.Error(), wrapped.Error())

	// Terminal marking survives further wrapping.
	rewrapped := errors.Join(errors.New("context"), wrapped)
	assert.True(t, IsTerminal(rewrapped))
}
