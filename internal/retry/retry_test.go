package retry_test

import (
	"context"
	"errors"
	"pipi/backend/internal/retry"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() retry.Options {
	return retry.Options{
		MaxElapsedTime:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	}, fastOptions())

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	sentinel := errors.New("full")
	calls := 0
	_, err := retry.Do(context.Background(), func() (int, error) {
		calls++
		return 0, retry.Permanent(sentinel)
	}, fastOptions())

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("always")
	}, fastOptions())

	assert.Error(t, err)
	assert.Equal(t, 4, calls, "first attempt plus three retries")
}
