// internal/common/camunda/runner_test.go
package camunda

import (
	"context"
	"errors"
	"testing"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/validation"
	"permit-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	v, err := validation.NewValidator(reg)
	require.NoError(t, err)
	return NewRunner(v, nil, nil, logger.NewTestLogger(t))
}

func job(taskType, variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                1,
		Type:               taskType,
		ProcessInstanceKey: 10,
		Variables:          variables,
	}}
}

func TestExecute_RejectsInputFailingSchema(t *testing.T) {
	r := newTestRunner(t)
	called := false

	_, err := r.execute(context.Background(), job("advance-stage", `{"applicationId": "app-1"}`), func(context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))
	assert.False(t, called)
}

func TestExecute_WrapsPlainErrorsAsInternal(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.execute(context.Background(), job("advance-stage", `{"applicationId": "app-1", "actorUserId": "admin"}`), func(context.Context) (interface{}, error) {
		return nil, errors.New("unexpected")
	})

	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(err))
}

func TestExecute_PassesTaxonomyErrorsThrough(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.execute(context.Background(), job("advance-stage", `{"applicationId": "app-1", "actorUserId": "admin"}`), func(context.Context) (interface{}, error) {
		return nil, apperrors.NewIncompleteStageError("fee_payment", []string{"application_fee"})
	})

	assert.ErrorIs(t, err, apperrors.ErrIncompleteStage)
}

func TestExecute_ReturnsOutput(t *testing.T) {
	r := newTestRunner(t)

	out, err := r.execute(context.Background(), job("list-stages", `{}`), func(context.Context) (interface{}, error) {
		return map[string]int{"stages": 4}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"stages": 4}, out)
}
