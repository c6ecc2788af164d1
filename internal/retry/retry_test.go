package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return wantErr
	}, nil)

	require.ErrorIs(t, err, wantErr)
	// Initial attempt plus three retries.
	assert.Equal(t, 4, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return permanent
	}, &Options{
		ShouldRetry: func(err error) bool { return false },
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls, "a non-retryable error must not be retried")
}

func TestDo_OnRetryReportsDoublingDelays(t *testing.T) {
	var delays []time.Duration
	err := Do(context.Background(), &Config{MaxRetries: 3, InitialDelay: 10 * time.Millisecond}, func() error {
		return errors.New("transient")
	}, &Options{
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	})

	require.Error(t, err)
	require.Len(t, delays, 3)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 20*time.Millisecond, delays[1])
	assert.Equal(t, 40*time.Millisecond, delays[2])
}

func TestDo_ContextCancellationDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, &Config{MaxRetries: 3, InitialDelay: time.Hour}, func() error {
			calls++
			return errors.New("transient")
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDo_NilConfigUsesDefaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, func() error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestConfig_Accessors(t *testing.T) {
	tests := []struct {
		name             string
		cfg              *Config
		wantMaxRetries   int
		wantInitialDelay time.Duration
		wantMaxDelay     time.Duration
	}{
		{
			name:             "nil config",
			cfg:              nil,
			wantMaxRetries:   DefaultMaxRetries,
			wantInitialDelay: DefaultInitialDelay,
			wantMaxDelay:     DefaultMaxDelay,
		},
		{
			name:             "zero values",
			cfg:              &Config{},
			wantMaxRetries:   DefaultMaxRetries,
			wantInitialDelay: DefaultInitialDelay,
			wantMaxDelay:     DefaultMaxDelay,
		},
		{
			name:             "explicit values",
			cfg:              &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Minute},
			wantMaxRetries:   5,
			wantInitialDelay: time.Second,
			wantMaxDelay:     time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMaxRetries, tt.cfg.GetMaxRetries())
			assert.Equal(t, tt.wantInitialDelay, tt.cfg.GetInitialDelay())
			assert.Equal(t, tt.wantMaxDelay, tt.cfg.GetMaxDelay())
		})
	}
}
