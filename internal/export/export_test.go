package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/model"
)

func samplePlan() *model.Plan {
	size := int64(2048)
	contact := &model.Contributor{
		Name:        "Jane Doe",
		Email:       "jane@example.org",
		Affiliation: &model.Affiliation{Name: "University of California, Berkeley"},
	}
	p := &model.Plan{
		Base:  model.Base{ID: "p1"},
		Title: "Soil Cores 2025",
		Roles: []*model.ContributorRole{
			{Role: model.RolePrimaryContact, Contributor: contact},
			{Role: model.RoleCurator, Contributor: &model.Contributor{Email: "curator@example.org"}},
		},
		Identifiers: []*model.Identifier{
			{Category: model.CategoryDOI, Descriptor: model.IdentifiedBy, Value: "10.80030/D1ABC"},
		},
		Datasets: []*model.Dataset{{
			Title:    "Cores",
			Keywords: []string{"soil", "carbon"},
			Distributions: []*model.Distribution{
				{
					Title:       "Raw CSV",
					DownloadURL: "https://zenodo.org/records/1/raw.csv",
					ByteSize:    &size,
					Formats:     []string{"CSV"},
					DataAccess:  model.AccessOpen,
					Host:        &model.Host{Title: "Zenodo"},
					Licenses: []*model.License{{
						LicenseRef: "https://creativecommons.org/licenses/by/4.0/",
						StartDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
					}},
				},
				{Title: "Raw CSV", AccessURL: "https://zenodo.org/records/1"},
				{Title: "Lab notebook"},
			},
		}},
	}
	return p
}

func TestPackage_BuildsResources(t *testing.T) {
	created := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	pkg, report, err := Package(samplePlan(), created)
	require.NoError(t, err)

	assert.Equal(t, []string{"Cores / Lab notebook"}, report.Skipped)
	assert.Equal(t, []string{"raw-csv", "raw-csv-2"}, pkg.ResourceNames())

	desc := pkg.Descriptor()
	assert.Equal(t, "soil-cores-2025", desc["name"])
	assert.Equal(t, "10.80030/D1ABC", desc["id"])
	assert.Equal(t, "2025-07-01T12:00:00Z", desc["created"])
	assert.Equal(t, []any{"carbon", "soil"}, desc["keywords"])

	raw := pkg.GetResource("raw-csv")
	require.NotNil(t, raw)
	rd := raw.Descriptor()
	assert.Equal(t, "https://zenodo.org/records/1/raw.csv", rd["path"])
	assert.Equal(t, "csv", rd["format"])
	assert.EqualValues(t, 2048, rd["bytes"])
	assert.Equal(t, "Zenodo", rd["host"])
	assert.Equal(t, "open", rd["data_access"])
}

func TestPackage_Contributors(t *testing.T) {
	pkg, _, err := Package(samplePlan(), time.Now())
	require.NoError(t, err)

	data, err := JSON(pkg)
	require.NoError(t, err)
	var out struct {
		Contributors []contributor `json:"contributors"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, []contributor{
		{Title: "Jane Doe", Email: "jane@example.org", Organization: "University of California, Berkeley", Role: "maintainer"},
		{Title: "curator@example.org", Email: "curator@example.org", Role: "contributor"},
	}, out.Contributors)
}

func TestPackage_NoURLs(t *testing.T) {
	p := samplePlan()
	p.Datasets[0].Distributions = p.Datasets[0].Distributions[2:]
	_, report, err := Package(p, time.Now())
	assert.ErrorContains(t, err, "no distribution has a URL")
	assert.Len(t, report.Skipped, 1)
}

func TestSave(t *testing.T) {
	pkg, _, err := Package(samplePlan(), time.Now())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "datapackage.json")
	require.NoError(t, Save(pkg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"raw-csv-2"`)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "raw-csv", slug("  Raw CSV ", "x"))
	assert.Equal(t, "x", slug("***", "x"))
	assert.Equal(t, "v1.2_final", slug("v1.2_final", "x"))
}
