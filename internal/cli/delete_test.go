package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/store"
)

func TestDeletePlan(t *testing.T) {
	dbPath := tempDB(t)
	planID := seedPlan(t, dbPath, "soil_cores.json", "")
	other := seedPlan(t, dbPath, "no_doi.json", "")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	otherBefore, err := st.LoadPlan(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, otherBefore)
	require.NoError(t, st.Close())

	out, _, err := execute(t, NewDeleteCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--id", planID)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Deleted plan "+planID)

	st, err = store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	plans, err := st.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, other, plans[0].ID)

	counts, err := st.CountRows(ctx)
	require.NoError(t, err)
	// Only the surviving plan's datasets remain.
	assert.Equal(t, len(otherBefore.Datasets), counts["datasets"])
	otherAfter, err := st.LoadPlan(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, otherAfter)
	require.Len(t, otherAfter.Datasets, len(otherBefore.Datasets))
	for i, d := range otherBefore.Datasets {
		assert.Equal(t, d.ID, otherAfter.Datasets[i].ID)
	}

	deleted, err := st.LoadPlan(ctx, planID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
	// Shared entities survive
	assert.Equal(t, 2, counts["contributors"])
	assert.Equal(t, 1, counts["affiliations"])

	subs, err := st.Submissions(ctx, planID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestDeletePlanJSON(t *testing.T) {
	dbPath := tempDB(t)
	planID := seedPlan(t, dbPath, "soil_cores.json", "")

	out, _, err := execute(t, NewDeleteCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--id", planID)
	require.NoError(t, err)

	var data map[string]string
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, planID, data["plan_id"])
}

func TestDeletePlanNotFound(t *testing.T) {
	_, _, err := execute(t, NewDeleteCommand(&RootOptions{Format: "text"}), "--db", tempDB(t), "--id", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan not found: missing")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
