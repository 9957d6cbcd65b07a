// internal/common/camunda/client_test.go
package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "permit-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineClient(requestTimeout time.Duration) *Client {
	return &Client{config: &ClientConfig{
		RequestTimeout: requestTimeout,
		RetryConfig:    &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}}
}

func TestExecuteWithRetry_BoundsEachAttempt(t *testing.T) {
	c := offlineClient(20 * time.Millisecond)
	attempts := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 20*time.Millisecond)
		<-ctx.Done()
		return nil, ctx.Err()
	}, "complete job")

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.True(t, apperrors.AsStandard(err).Retryable)
}

func TestExecuteWithRetry_RecoversFromTransientFailure(t *testing.T) {
	c := offlineClient(0)
	attempts := 0

	got, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		if attempts == 1 {
			return nil, errors.New("rpc error: code = Unavailable desc = connection refused")
		}
		return "ok", nil
	}, "complete job")

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts)
}

func TestExecuteWithRetry_DoesNotRetryRejections(t *testing.T) {
	c := offlineClient(time.Second)
	attempts := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("rpc error: code = NotFound desc = job not found")
	}, "complete job")

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
