package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/model"
)

func TestLoadDirectory(t *testing.T) {
	dir, err := LoadDirectory("testdata/organizations.yaml")
	require.NoError(t, err)
	assert.Equal(t, 3, dir.Len())
}

func TestLoadDirectory_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orgs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("organizations:\n  - name: X\n    homepage: y\n"), 0o644))

	_, err := LoadDirectory(path)
	require.Error(t, err)
}

func TestLoadDirectory_RequiresPairedIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orgs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("organizations:\n  - name: X\n    identifier: https://ror.org/1\n"), 0o644))

	_, err := LoadDirectory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identifier_type")
}

func TestDirectorySearch(t *testing.T) {
	dir, err := LoadDirectory("testdata/organizations.yaml")
	require.NoError(t, err)
	ctx := context.Background()

	got, err := dir.Search(ctx, "berkeley")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "University of California, Berkeley", got[0].Name)

	got, err = dir.Search(ctx, "  berkeley LAB ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Berkeley Lab", got[0].Name)

	got, err = dir.Search(ctx, "nsf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fundref", got[0].IdentifierType)

	got, err = dir.Search(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDirectorySearch_ExactFirst(t *testing.T) {
	dir := NewDirectory([]Candidate{
		{Name: "Example University Press"},
		{Name: "Example University"},
	})
	got, err := dir.Search(context.Background(), "example university")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Example University", got[0].Name)
}

func TestLocalMinter(t *testing.T) {
	m := LocalMinter{Prefix: "10.80030/", Shoulder: "D1"}
	plan := &model.Plan{Base: model.Base{ID: "plan-1", Persisted: true}}

	doi, err := m.Mint(context.Background(), plan, "dmptool")
	require.NoError(t, err)
	assert.Regexp(t, `^10\.80030/D1[0-9A-F]{10}$`, doi)

	again, err := m.Mint(context.Background(), plan, "dmptool")
	require.NoError(t, err)
	assert.Equal(t, doi, again, "minting is deterministic")

	other, err := m.Mint(context.Background(), &model.Plan{Base: model.Base{ID: "plan-2", Persisted: true}}, "dmptool")
	require.NoError(t, err)
	assert.NotEqual(t, doi, other)
}

func TestLocalMinter_RequiresPersistedPlan(t *testing.T) {
	m := LocalMinter{Prefix: "10.80030"}
	_, err := m.Mint(context.Background(), &model.Plan{Base: model.Base{ID: "p"}}, "x")
	assert.ErrorIs(t, err, ErrNotPersisted)

	_, err = LocalMinter{}.Mint(context.Background(), &model.Plan{Base: model.Base{ID: "p", Persisted: true}}, "x")
	assert.Error(t, err)
}

func TestDOICitations_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "text/x-bibliography")
		switch r.URL.Path {
		case "/10.1234/abc":
			w.Write([]byte("Rivera, S. (2024). Core samples. Zenodo.\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewDOICitations(srv.URL, time.Second)
	ctx := context.Background()

	got, err := c.Fetch(ctx, "https://doi.org/10.1234/abc")
	require.NoError(t, err)
	assert.Equal(t, "Rivera, S. (2024). Core samples. Zenodo.", got)

	_, err = c.Fetch(ctx, "10.1234/missing")
	assert.ErrorIs(t, err, ErrNoCitation)

	_, err = c.Fetch(ctx, "not-a-doi")
	assert.Error(t, err)
}

func TestBareDOI(t *testing.T) {
	assert.Equal(t, "10.1/x", bareDOI("doi:10.1/x"))
	assert.Equal(t, "10.1/x", bareDOI("https://dx.doi.org/10.1/x"))
	assert.Equal(t, "", bareDOI("https://example.org"))
}
