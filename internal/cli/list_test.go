package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/store"
)

func TestListEmptyDatabase(t *testing.T) {
	out, _, err := execute(t, NewListCommand(&RootOptions{Format: "text"}), "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No plans found.")
}

func TestListEmptyDatabaseJSON(t *testing.T) {
	out, _, err := execute(t, NewListCommand(&RootOptions{Format: "json"}), "--db", tempDB(t))
	require.NoError(t, err)

	var plans []store.PlanSummary
	resp := decodeResponse(t, out, &plans)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, plans)
	assert.Contains(t, out, `"data": []`)
}

func TestListPlans(t *testing.T) {
	dbPath := tempDB(t)
	soil := seedPlan(t, dbPath, "soil_cores.json", "")
	landing := seedPlan(t, dbPath, "no_doi.json", "dmphub")

	out, _, err := execute(t, NewListCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.NoError(t, err)

	var plans []store.PlanSummary
	decodeResponse(t, out, &plans)
	require.Len(t, plans, 2)
	// Ordered by title
	assert.Equal(t, landing, plans[0].ID)
	assert.Equal(t, "dmphub", plans[0].Provenance)
	assert.Equal(t, soil, plans[1].ID)
	assert.Equal(t, "dmptool", plans[1].Provenance)
}

func TestListPlansText(t *testing.T) {
	dbPath := tempDB(t)
	planID := seedPlan(t, dbPath, "soil_cores.json", "")

	out, _, err := execute(t, NewListCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, planID)
	assert.Contains(t, out, "Soil Cores 2025")
}

func TestListUnknownDriver(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	cfg, err := opts.Config()
	require.NoError(t, err)
	cfg.Database.Driver = "oracle"
	opts.cfg = &cfg

	_, _, err = execute(t, NewListCommand(opts), "--db", tempDB(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
