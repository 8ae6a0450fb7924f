package guard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/reconcile"
	"github.com/roach88/dmpsync/internal/store"
	"github.com/roach88/dmpsync/internal/testutil"
	"github.com/roach88/dmpsync/internal/wire"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// reconciler builds sessions sharing one clock and id sequence.
type reconciler struct {
	store *store.Store
	clock *testutil.DeterministicClock
	ids   *testutil.SequenceGenerator
}

func newReconciler(s *store.Store) *reconciler {
	return &reconciler{
		store: s,
		clock: testutil.NewDeterministicClock(time.Time{}, time.Second),
		ids:   testutil.NewSequenceGenerator("id"),
	}
}

func (r *reconciler) graph(t *testing.T, payload string) *reconcile.Graph {
	t.Helper()
	doc, err := wire.Parse([]byte(payload))
	require.NoError(t, err)
	g, err := reconcile.NewSession(r.store, "dmptool",
		reconcile.WithClock(r.clock.Now),
		reconcile.WithIDGenerator(r.ids),
	).Plan(context.Background(), doc)
	require.NoError(t, err)
	return g
}

func countAll(t *testing.T, s *store.Store) int {
	t.Helper()
	counts, err := s.CountRows(context.Background())
	require.NoError(t, err)
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func TestValidate_ValidPlan(t *testing.T) {
	r := newReconciler(createTestStore(t))
	g := r.graph(t, `{"title": "Brain Study", "dmp_id": {"type": "doi", "identifier": "10.1/abc"}, "contact": {"name": "A", "mbox": "a@x.org"}}`)
	assert.Empty(t, Validate(g.Plan))
}

func TestValidate_PathsAndCodes(t *testing.T) {
	contact := &model.Contributor{Base: model.Base{ID: "c1"}, Name: "Y", Email: "not-an-email"}
	host := &model.Host{Base: model.Base{ID: "h1"}}
	plan := &model.Plan{
		Base:     model.Base{ID: "p1"},
		Title:    "T",
		Language: "en",
		Roles: []*model.ContributorRole{
			{Role: model.RolePrimaryContact, Contributor: contact},
		},
		Projects: []*model.Project{{Title: "P", Fundings: []*model.Funding{{Status: "maybe", Name: "NSF"}}}},
		Datasets: []*model.Dataset{{
			Base:  model.Base{ID: "d1"},
			Title: "X",
			Type:  model.DatasetTypeDataset,
			Distributions: []*model.Distribution{{
				Title: "CSV",
				Host:  host,
			}},
		}, {
			Base: model.Base{ID: "d2"},
			Type: "video",
		}},
	}

	got := Validate(plan)
	assert.Equal(t, []string{
		"Contributor/Contact: 'Y' - Email is invalid",
		"Project: 'P' - Funding: 'NSF' - Status \"maybe\" is not recognized",
		"Dataset: 'X' - Distribution: 'CSV' - Host: '' - Title can't be blank",
		"Dataset: '' - Title can't be blank",
		"Dataset: '' - Type \"video\" is not recognized",
	}, got.Strings())

	codes := make([]string, len(got))
	for i, v := range got {
		codes[i] = v.Code
	}
	assert.Equal(t, []string{ErrContributorEmail, ErrFundingStatus, ErrHostTitleBlank, ErrDatasetTitleBlank, ErrDatasetType}, codes)
}

func TestValidate_PlanInvariants(t *testing.T) {
	a := &model.Contributor{Base: model.Base{ID: "a"}, Email: "a@x.org"}
	b := &model.Contributor{Base: model.Base{ID: "b"}, Email: "b@x.org"}
	plan := &model.Plan{
		Base: model.Base{ID: "p1"},
		Roles: []*model.ContributorRole{
			{Role: model.RolePrimaryContact, Contributor: a},
			{Role: model.RolePrimaryContact, Contributor: b},
		},
	}

	var codes []string
	for _, v := range Validate(plan) {
		codes = append(codes, v.Code)
	}
	assert.Equal(t, []string{
		ErrPlanTitleBlank,
		ErrPlanLanguageBlank,
		ErrPlanManyContacts,
		ErrPlanNoProject,
		ErrPlanNoDataset,
	}, codes)
}

func TestValidate_IdentifierOwnerMismatch(t *testing.T) {
	d := &model.Dataset{Base: model.Base{ID: "d1"}, Title: "D", Type: model.DatasetTypeDataset}
	d.Identifiers = []*model.Identifier{{
		Category:   model.CategoryDOI,
		Descriptor: model.IsIdentifiedBy,
		Value:      "10.1/x",
		Owner:      model.OwnerRef{Kind: model.KindDataset, ID: "d9"},
	}}
	w := &walker{}
	w.dataset("Dataset: 'D'", d)
	require.Len(t, w.out, 1)
	assert.Equal(t, ErrIdentifierOwner, w.out[0].Code)
}

func TestPersist_InvalidGraphWritesNothing(t *testing.T) {
	s := createTestStore(t)
	r := newReconciler(s)
	g := r.graph(t, `{"title": "Brain Study", "dmp_id": {"type": "doi", "identifier": "10.1/abc"},
		"contact": {"name": "A", "mbox": "a@x.org"},
		"project": [{"title": "P"}],
		"dataset": [{"title": "Good"}, {"description": "untitled"}]}`)

	err := Persist(context.Background(), s, g)
	require.Error(t, err)

	var violations Violations
	require.True(t, errors.As(err, &violations))
	assert.Equal(t, []string{"Dataset: '' - Title can't be blank"}, violations.Strings())
	assert.Zero(t, countAll(t, s))
	assert.False(t, g.Plan.Persisted)
}

func TestPersist_MarksPersisted(t *testing.T) {
	s := createTestStore(t)
	r := newReconciler(s)
	g := r.graph(t, `{"title": "Brain Study", "dmp_id": {"type": "doi", "identifier": "10.1/abc"}, "contact": {"name": "A", "mbox": "a@x.org"}}`)

	require.NoError(t, Persist(context.Background(), s, g))
	assert.True(t, g.Plan.Persisted)
	assert.True(t, g.Plan.Contact().Persisted)
	assert.True(t, g.Plan.Datasets[0].Persisted)
	assert.True(t, g.Plan.Identifiers[0].Persisted)

	loaded, err := s.LoadPlan(context.Background(), g.Plan.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Dataset for: Brain Study", loaded.Datasets[0].Title)
}

func TestPersist_AfterSaveRunsInTransaction(t *testing.T) {
	s := createTestStore(t)
	r := newReconciler(s)
	g := r.graph(t, `{"title": "Brain Study", "dmp_id": {"type": "doi", "identifier": "10.1/abc"}, "contact": {"name": "A", "mbox": "a@x.org"}}`)

	boom := errors.New("audit failed")
	err := Persist(context.Background(), s, g, WithAfterSave(func(ctx context.Context, tx *store.Tx, p *model.Plan) error {
		// The graph is visible inside the transaction.
		loaded, err := tx.LoadPlan(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		return boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countAll(t, s), "a failing hook rolls everything back")
	assert.False(t, g.Plan.Persisted)
}

func TestPersist_AdoptsConcurrentlyStoredSharedEntities(t *testing.T) {
	s := createTestStore(t)
	r := newReconciler(s)
	doc := func(dmpID, email string) string {
		return `{"title": "Plan ` + dmpID + `", "dmp_id": {"type": "doi", "identifier": "` + dmpID + `"},
			"contact": {"name": "P", "mbox": "` + email + `", "affiliation": {"name": "Shared Funder",
				"affiliation_id": {"type": "ror", "identifier": "https://ror.org/0shared"}}},
			"dataset": [{"title": "D", "metadata": [{"metadata_standard_id": {"type": "url", "identifier": "https://schema.org"}}],
				"distribution": [{"title": "Raw", "host": {"title": "Zenodo"}}]}]}`
	}

	// Both documents are reconciled before either is saved.
	first := r.graph(t, doc("10.1/one", "one@x.org"))
	second := r.graph(t, doc("10.1/two", "two@x.org"))
	require.NotEqual(t, first.Plan.Contact().Affiliation.ID, second.Plan.Contact().Affiliation.ID)

	ctx := context.Background()
	require.NoError(t, Persist(ctx, s, first))
	require.NoError(t, Persist(ctx, s, second))

	assert.Equal(t, first.Plan.Contact().Affiliation.ID, second.Plan.Contact().Affiliation.ID)
	assert.Equal(t, first.Hosts()[0].ID, second.Hosts()[0].ID)
	assert.Equal(t, first.Metadata()[0].ID, second.Metadata()[0].ID)

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["affiliations"])
	assert.Equal(t, 1, counts["hosts"])
	assert.Equal(t, 1, counts["metadata"])
	assert.Equal(t, 2, counts["plans"])

	for _, v := range []struct {
		c     model.Category
		value string
	}{
		{model.CategoryROR, "https://ror.org/0shared"},
		{model.CategoryURL, "https://schema.org"},
	} {
		found, err := s.FindIdentifiers(ctx, v.c, v.value)
		require.NoError(t, err)
		assert.Len(t, found, 1, v.value)
	}
}

func TestPersist_DropsIdentifierClaimedByAnotherOwner(t *testing.T) {
	s := createTestStore(t)
	r := newReconciler(s)
	doc := func(dmpID, title string) string {
		return `{"title": "` + title + `", "dmp_id": {"type": "doi", "identifier": "` + dmpID + `"},
			"contact": {"mbox": "a@x.org"},
			"dataset": [{"title": "D", "dataset_id": {"type": "doi", "identifier": "10.5/contested"}}]}`
	}

	first := r.graph(t, doc("10.1/one", "One"))
	second := r.graph(t, doc("10.1/two", "Two"))

	ctx := context.Background()
	require.NoError(t, Persist(ctx, s, first))
	require.NoError(t, Persist(ctx, s, second))

	assert.Len(t, first.Plan.Datasets[0].Identifiers, 1)
	assert.Empty(t, second.Plan.Datasets[0].Identifiers)

	found, err := s.FindIdentifiers(ctx, model.CategoryDOI, "10.5/contested")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.Plan.Datasets[0].ID, found[0].Owner.ID)
}

func TestPersist_ReplacesPrimaryContact(t *testing.T) {
	s := createTestStore(t)
	r := newReconciler(s)
	ctx := context.Background()
	doc := func(email string) string {
		return `{"title": "C", "dmp_id": {"type": "doi", "identifier": "10.1/c"}, "contact": {"mbox": "` + email + `"}}`
	}

	require.NoError(t, Persist(ctx, s, r.graph(t, doc("first@x.org"))))
	g := r.graph(t, doc("second@x.org"))
	require.Len(t, g.RemovedRoles, 1)

	require.NoError(t, Persist(ctx, s, g))
	assert.Empty(t, g.RemovedRoles)

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["contributor_roles"])
	assert.Equal(t, 2, counts["contributors"])

	// The replaced contact no longer holds any role.
	old, err := s.ContributorByEmail(ctx, "first@x.org")
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Empty(t, old.Roles)
}
