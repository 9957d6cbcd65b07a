// internal/workers/applications/open-application/handler_test.go
package openapplication

import (
	"context"
	"testing"

	apperrors "permit-workers/internal/common/errors"
	"permit-workers/internal/models"
	"permit-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute_OpensAtFirstStage(t *testing.T) {
	env := workertest.New(t)
	h := NewHandler(LoadConfig(), env.Guard, env.Engine, nil, env.Logger)

	out, err := h.Execute(context.Background(), &Input{OwnerUserID: workertest.Owner})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ApplicationID)
	assert.Equal(t, "document_verification", out.CurrentStageID)
	assert.Equal(t, string(models.ApplicationDraft), out.Status)

	app, err := env.Store.GetApplication(context.Background(), out.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, workertest.Owner, app.OwnerUserID)
}

func TestHandler_Execute_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		wantErr error
	}{
		{name: "inspector", owner: workertest.Inspector, wantErr: apperrors.ErrForbidden},
		{name: "unknown user", owner: "ghost", wantErr: apperrors.ErrForbidden},
		{name: "missing owner", owner: "", wantErr: apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := workertest.New(t)
			h := NewHandler(LoadConfig(), env.Guard, env.Engine, nil, env.Logger)

			out, err := h.Execute(context.Background(), &Input{OwnerUserID: tt.owner})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, out)
		})
	}
}
