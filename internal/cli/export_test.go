package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportToStdout(t *testing.T) {
	dbPath := tempDB(t)
	planID := seedPlan(t, dbPath, "soil_cores.json", "")

	out, _, err := execute(t, NewExportCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--id", planID)
	require.NoError(t, err)

	var descriptor map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &descriptor))
	assert.Equal(t, "Soil Cores 2025", descriptor["title"])
	assert.Equal(t, "10.80030/D1SOIL", descriptor["id"])
	resources, ok := descriptor["resources"].([]any)
	require.True(t, ok)
	require.Len(t, resources, 1)
	res := resources[0].(map[string]any)
	assert.Equal(t, "https://zenodo.org/records/1/raw.csv", res["path"])
}

func TestExportToFile(t *testing.T) {
	dbPath := tempDB(t)
	planID := seedPlan(t, dbPath, "soil_cores.json", "")
	outPath := filepath.Join(t.TempDir(), "datapackage.json")

	out, _, err := execute(t, NewExportCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--id", planID, "--out", outPath)
	require.NoError(t, err)

	var result ExportResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, planID, result.PlanID)
	assert.Equal(t, outPath, result.Path)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "raw.csv")
}

func TestExportPlanWithoutDistributions(t *testing.T) {
	dbPath := tempDB(t)
	planID := seedPlan(t, dbPath, "no_doi.json", "")

	_, _, err := execute(t, NewExportCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--id", planID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no distribution has a URL")
}

func TestExportPlanNotFound(t *testing.T) {
	_, _, err := execute(t, NewExportCommand(&RootOptions{Format: "text"}), "--db", tempDB(t), "--id", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
