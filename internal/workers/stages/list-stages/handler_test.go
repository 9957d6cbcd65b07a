// internal/workers/stages/list-stages/handler_test.go
package liststages

import (
	"context"
	"testing"

	"permit-workers/internal/workers/workertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute_ListsStagesInOrder(t *testing.T) {
	env := workertest.New(t)
	h := NewHandler(LoadConfig(), env.Catalog, nil, env.Logger)

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	require.Len(t, out.Stages, 4)

	ids := make([]string, 0, len(out.Stages))
	for i, s := range out.Stages {
		ids = append(ids, s.ID)
		assert.Equal(t, i+1, s.OrderNumber)
	}
	assert.Equal(t, []string{"document_verification", "fee_payment", "site_inspection", "certificate_issuance"}, ids)
}

func TestHandler_Execute_AttachesRequirements(t *testing.T) {
	env := workertest.New(t)
	h := NewHandler(LoadConfig(), env.Catalog, nil, env.Logger)

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)

	docs := out.Stages[0].Requirements
	require.Len(t, docs, 3)
	for _, r := range docs {
		assert.Equal(t, "document_verification", r.StageID)
	}
	assert.Empty(t, out.Stages[3].Requirements)
}
