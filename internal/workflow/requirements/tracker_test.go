package requirements

import (
	"context"
	"errors"
	"testing"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) RecordCompletion(ctx context.Context, entry models.CompletionAudit) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func setup(t *testing.T, sink AuditSink) (*Tracker, *store.Memory) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	st := store.NewMemory()
	require.NoError(t, st.CreateApplication(context.Background(), &models.Application{
		ID: "app-1", OwnerUserID: "owner", CurrentStageID: cat.First().ID, Status: models.ApplicationInReview,
	}))
	return NewTracker(cat, st, sink, logger.NewTestLogger(t)), st
}

func TestTracker_IsRequirementComplete_DefaultsFalse(t *testing.T) {
	tr, _ := setup(t, nil)
	done, err := tr.IsRequirementComplete(context.Background(), "app-1", "building_plan")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestTracker_MarkComplete_Idempotent(t *testing.T) {
	sink := &mockSink{}
	sink.On("RecordCompletion", mock.Anything, mock.MatchedBy(func(e models.CompletionAudit) bool {
		return e.RequirementID == "building_plan" && e.ActorUserID == "admin-1"
	})).Return(nil).Once()

	tr, st := setup(t, sink)
	ctx := context.Background()

	changed, err := tr.MarkComplete(ctx, "app-1", "building_plan", "admin-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = tr.MarkComplete(ctx, "app-1", "building_plan", "admin-2")
	require.NoError(t, err)
	assert.False(t, changed)

	done, err := tr.IsRequirementComplete(ctx, "app-1", "building_plan")
	require.NoError(t, err)
	assert.True(t, done)

	c, err := st.GetCompletion(ctx, "app-1", "building_plan")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", c.CompletedByUserID)
	assert.Len(t, st.AuditTrail(), 1)
	sink.AssertExpectations(t)
}

func TestTracker_MarkComplete_SinkFailureIsNotFatal(t *testing.T) {
	sink := &mockSink{}
	sink.On("RecordCompletion", mock.Anything, mock.Anything).Return(errors.New("cluster red"))

	tr, _ := setup(t, sink)
	changed, err := tr.MarkComplete(context.Background(), "app-1", "building_plan", "admin-1")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestTracker_MarkComplete_UnknownIdentifiers(t *testing.T) {
	tr, _ := setup(t, nil)
	ctx := context.Background()

	_, err := tr.MarkComplete(ctx, "app-1", "no_such_requirement", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = tr.MarkComplete(ctx, "no-such-app", "building_plan", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTracker_StageCompletion(t *testing.T) {
	tr, _ := setup(t, nil)
	ctx := context.Background()

	sc, err := tr.StageCompletion(ctx, "app-1", "document_verification")
	require.NoError(t, err)
	assert.Equal(t, 3, sc.Total)
	assert.Equal(t, 0, sc.Completed)
	assert.False(t, sc.AllMandatoryComplete)
	assert.ElementsMatch(t, []string{"ownership_documents", "building_plan"}, sc.MissingMandatory)

	_, err = tr.MarkComplete(ctx, "app-1", "ownership_documents", "admin-1")
	require.NoError(t, err)
	_, err = tr.MarkComplete(ctx, "app-1", "building_plan", "admin-1")
	require.NoError(t, err)

	sc, err = tr.StageCompletion(ctx, "app-1", "document_verification")
	require.NoError(t, err)
	assert.Equal(t, 2, sc.Completed)
	assert.True(t, sc.AllMandatoryComplete)
	assert.Empty(t, sc.MissingMandatory)

	sc, err = tr.StageCompletion(ctx, "app-1", "certificate_issuance")
	require.NoError(t, err)
	assert.Equal(t, 0, sc.Total)
	assert.True(t, sc.AllMandatoryComplete)

	_, err = tr.StageCompletion(ctx, "app-1", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) ListCompletions(context.Context, string) ([]models.RequirementCompletion, error) {
	return nil, errors.New("connection refused")
}

func TestTracker_StorageFailureIsGeneric(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	tr := NewTracker(cat, brokenStore{store.NewMemory()}, nil, logger.NewNoOpLogger())

	_, err = tr.StageCompletion(context.Background(), "app-1", "fee_payment")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.NotContains(t, apperrors.AsStandard(err).Message, "connection refused")
	assert.True(t, apperrors.AsStandard(err).Retryable)
}
