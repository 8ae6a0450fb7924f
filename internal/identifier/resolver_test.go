package identifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/testutil"
)

// memFinder is an in-memory Finder.
type memFinder struct {
	ids []*model.Identifier
	err error
}

func (f *memFinder) FindIdentifiers(_ context.Context, c model.Category, v string) ([]*model.Identifier, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.Identifier
	for _, id := range f.ids {
		if id.Category == c && id.Value == v {
			out = append(out, id)
		}
	}
	return out, nil
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func stored(id string, c model.Category, v string, owner model.OwnerRef, prov string, age time.Duration) *model.Identifier {
	return &model.Identifier{
		Base:       model.Base{ID: id, CreatedAt: t0.Add(-age), UpdatedAt: t0.Add(-age), Persisted: true},
		Category:   c,
		Descriptor: model.IsIdentifiedBy,
		Value:      v,
		Owner:      owner,
		Provenance: prov,
	}
}

func newTestResolver(f Finder) *Resolver {
	clock := testutil.NewDeterministicClock(t0, time.Second)
	return NewResolver(f, "dmptool", testutil.NewSequenceGenerator("ident").Generate, clock.Now)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		typ, value string
		want       model.Category
	}{
		{"doi", "anything", model.CategoryDOI},
		{"ROR", "https://ror.org/03yrm5c26", model.CategoryROR},
		{"FundRef", "https://doi.org/10.13039/100000001", model.CategoryFundref},
		{"sub-program", "x", model.CategorySubProgram},
		{"", "https://doi.org/10.1234/abc", model.CategoryDOI},
		{"bogus", "10.48321/D1WP4V", model.CategoryDOI},
		{"bogus", "doi:10.5061/dryad.123", model.CategoryDOI},
		{"bogus", "https://doi.org/10.13039/100000001", model.CategoryFundref},
		{"bogus", "0000-0002-1825-0097", model.CategoryORCID},
		{"bogus", "https://orcid.org/0000-0002-1694-233X", model.CategoryORCID},
		{"bogus", "https://ror.org/03yrm5c26", model.CategoryROR},
		{"bogus", "ark:/13030/tf5p30086k", model.CategoryArk},
		{"bogus", "https://example.org/data", model.CategoryURL},
		{"bogus", "local-42", model.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.typ, tt.value))
		})
	}
}

func TestResolve_BlankInput(t *testing.T) {
	r := newTestResolver(&memFinder{})
	owner := model.OwnerRef{Kind: model.KindPlan, ID: "p1"}

	for _, in := range [][2]string{{"", "10.1/x"}, {"doi", ""}, {"  ", "  "}} {
		got, err := r.Resolve(context.Background(), owner, model.KindPlan, in[0], in[1], model.IdentifiedBy)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Empty(t, r.Pending())
}

func TestResolve_GlobalPreference(t *testing.T) {
	planA := model.OwnerRef{Kind: model.KindPlan, ID: "plan-a"}
	dsB := model.OwnerRef{Kind: model.KindDataset, ID: "ds-b"}
	planC := model.OwnerRef{Kind: model.KindPlan, ID: "plan-c"}

	f := &memFinder{ids: []*model.Identifier{
		stored("i-old-plan", model.CategoryDOI, "10.1/x", planA, "dmptool", 3*time.Hour),
		stored("i-newest-ds", model.CategoryDOI, "10.1/x", dsB, "dmptool", time.Hour),
		stored("i-mid-plan", model.CategoryDOI, "10.1/x", planC, "other", 2*time.Hour),
	}}
	ctx := context.Background()

	t.Run("same owner wins", func(t *testing.T) {
		got, err := newTestResolver(f).Resolve(ctx, planA, model.KindPlan, "doi", "10.1/x", model.IdentifiedBy)
		require.NoError(t, err)
		assert.Equal(t, "i-old-plan", got.ID)
	})

	t.Run("hint kind wins over recency", func(t *testing.T) {
		other := model.OwnerRef{Kind: model.KindPlan, ID: "plan-z"}
		got, err := newTestResolver(f).Resolve(ctx, other, model.KindPlan, "doi", "10.1/x", model.IdentifiedBy)
		require.NoError(t, err)
		assert.Equal(t, "i-mid-plan", got.ID, "newest plan-owned match")
	})

	t.Run("most recent otherwise", func(t *testing.T) {
		got, err := newTestResolver(f).Resolve(ctx, model.OwnerRef{}, model.KindFunding, "doi", "10.1/x", model.IdentifiedBy)
		require.NoError(t, err)
		assert.Equal(t, "i-newest-ds", got.ID)
	})
}

func TestResolve_GlobalTieBreaksOnIDDescending(t *testing.T) {
	a := stored("i-a", model.CategoryORCID, "0000-0002-1825-0097", model.OwnerRef{Kind: model.KindContributor, ID: "c1"}, "x", 0)
	b := stored("i-b", model.CategoryORCID, "0000-0002-1825-0097", model.OwnerRef{Kind: model.KindContributor, ID: "c2"}, "x", 0)
	r := newTestResolver(&memFinder{ids: []*model.Identifier{a, b}})

	got, err := r.Resolve(context.Background(), model.OwnerRef{}, "", "orcid", "0000-0002-1825-0097", "")
	require.NoError(t, err)
	assert.Equal(t, "i-b", got.ID)
}

func TestResolve_ScopedRequiresOwner(t *testing.T) {
	d1 := model.OwnerRef{Kind: model.KindDataset, ID: "d1"}
	d2 := model.OwnerRef{Kind: model.KindDataset, ID: "d2"}
	f := &memFinder{ids: []*model.Identifier{
		stored("i-d1", model.CategoryOther, "local-7", d1, "dmptool", time.Hour),
	}}
	ctx := context.Background()
	r := newTestResolver(f)

	got, err := r.Resolve(ctx, d1, model.KindDataset, "other", "local-7", model.IsIdentifiedBy)
	require.NoError(t, err)
	assert.Equal(t, "i-d1", got.ID)

	// A different owner gets its own record.
	got, err = r.Resolve(ctx, d2, model.KindDataset, "other", "local-7", model.IsIdentifiedBy)
	require.NoError(t, err)
	assert.False(t, got.Persisted)
	assert.Equal(t, d2, got.Owner)
	assert.Equal(t, "ident-0001", got.ID)

	// No owner, no scoped identifier.
	got, err = r.Resolve(ctx, model.OwnerRef{}, model.KindDataset, "other", "local-7", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_ScopedIgnoresOtherProvenance(t *testing.T) {
	d1 := model.OwnerRef{Kind: model.KindDataset, ID: "d1"}
	f := &memFinder{ids: []*model.Identifier{stored("i-x", model.CategoryHandle, "h/1", d1, "elsewhere", time.Hour)}}

	got, err := newTestResolver(f).Resolve(context.Background(), d1, model.KindDataset, "handle", "h/1", "")
	require.NoError(t, err)
	assert.NotEqual(t, "i-x", got.ID)
	assert.Equal(t, "dmptool", got.Provenance)
}

func TestResolve_InitializesNew(t *testing.T) {
	r := newTestResolver(&memFinder{})
	owner := model.OwnerRef{Kind: model.KindPlan, ID: "p1"}

	got, err := r.Resolve(context.Background(), owner, model.KindPlan, "DOI", " 10.1/abc ", model.IdentifiedBy)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.CategoryDOI, got.Category)
	assert.Equal(t, "10.1/abc", got.Value)
	assert.Equal(t, model.IdentifiedBy, got.Descriptor)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, "dmptool", got.Provenance)
	assert.False(t, got.Persisted)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Len(t, r.Pending(), 1)
}

func TestResolve_PendingSharedWithinCall(t *testing.T) {
	r := newTestResolver(&memFinder{})
	ctx := context.Background()
	a := model.OwnerRef{Kind: model.KindAffiliation, ID: "a1"}

	first, err := r.Resolve(ctx, a, model.KindAffiliation, "ror", "https://ror.org/0abc", "")
	require.NoError(t, err)

	second, err := r.Resolve(ctx, model.OwnerRef{Kind: model.KindAffiliation, ID: "a2"}, model.KindAffiliation, "ror", "https://ror.org/0abc", "")
	require.NoError(t, err)
	assert.Same(t, first, second, "the same global value resolves to one record")
	assert.Equal(t, a, second.Owner)
}

func TestResolve_NeverRewritesValue(t *testing.T) {
	owner := model.OwnerRef{Kind: model.KindPlan, ID: "p1"}
	existing := stored("i-1", model.CategoryDOI, "10.1/ABC", owner, "dmptool", time.Hour)
	r := newTestResolver(&memFinder{ids: []*model.Identifier{existing}})

	got, err := r.Resolve(context.Background(), owner, model.KindPlan, "doi", "10.1/ABC", model.DescribedBy)
	require.NoError(t, err)
	assert.Same(t, existing, got)
	assert.Equal(t, model.IsIdentifiedBy, got.Descriptor)
}

func TestResolve_FinderError(t *testing.T) {
	r := newTestResolver(&memFinder{err: errors.New("disk on fire")})
	_, err := r.Resolve(context.Background(), model.OwnerRef{Kind: model.KindPlan, ID: "p"}, "", "doi", "10.1/x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestLookup(t *testing.T) {
	f := &memFinder{ids: []*model.Identifier{
		stored("i-plan", model.CategoryDOI, "10.1/x", model.OwnerRef{Kind: model.KindPlan, ID: "p1"}, "dmptool", time.Hour),
		stored("i-ds", model.CategoryOther, "cores-1", model.OwnerRef{Kind: model.KindDataset, ID: "d1"}, "dmptool", time.Hour),
		stored("i-ds-other", model.CategoryOther, "cores-1", model.OwnerRef{Kind: model.KindDataset, ID: "d9"}, "elsewhere", time.Hour),
	}}
	r := newTestResolver(f)
	ctx := context.Background()

	got, err := r.Lookup(ctx, model.KindPlan, "doi", "10.1/x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Owner.ID)

	got, err = r.Lookup(ctx, model.KindDataset, "doi", "10.1/x")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Lookup(ctx, model.KindDataset, "other", "cores-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].Owner.ID)
}
