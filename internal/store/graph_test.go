package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dmpsync/internal/model"
)

// samplePlan builds a small but complete graph. The funder affiliation is
// shared with the contact so identity can be checked after loading.
func samplePlan() *model.Plan {
	org := &model.Affiliation{Base: base("aff-1"), Name: "Example University", Provenance: "test"}
	org.Identifiers = []*model.Identifier{testIdentifier("id-ror", model.CategoryROR, "https://ror.org/0abc", org.Ref())}

	contact := &model.Contributor{
		Base: base("con-1"), Name: "Sam Rivera", Email: "Sam.Rivera@Example.edu",
		Roles: []model.Role{model.RolePrimaryContact}, Provenance: "test", Affiliation: org,
	}

	plan := &model.Plan{
		Base: base("plan-1"), Title: "Coastal Survey", Language: "en",
		EthicalIssues: model.FlagUnknown, Provenance: "test",
	}
	plan.Identifiers = []*model.Identifier{{
		Base: base("id-doi"), Category: model.CategoryDOI, Descriptor: model.IdentifiedBy,
		Value: "10.1/abc", Owner: plan.Ref(), Provenance: "test",
	}}
	plan.Roles = []*model.ContributorRole{{
		Base: base("role-1"), PlanID: plan.ID, Role: model.RolePrimaryContact, Provenance: "test", Contributor: contact,
	}}

	funding := &model.Funding{
		Base: base("fund-1"), ProjectID: "proj-1", Status: model.FundingGranted, Provenance: "test",
		Affiliation: org, FundedAffiliations: []*model.Affiliation{org},
	}
	funding.Identifiers = []*model.Identifier{testIdentifier("id-grant", model.CategoryURL, "https://nsf.gov/award/1", funding.Ref())}

	plan.Projects = []*model.Project{{
		Base: base("proj-1"), PlanID: plan.ID, Title: "Project: Coastal Survey",
		Start: testNow, End: testNow.AddDate(2, 0, 0), Provenance: "test",
		Fundings: []*model.Funding{funding},
	}}

	value := 1200.5
	plan.Costs = []*model.Cost{{Base: base("cost-1"), PlanID: plan.ID, Title: "Storage", Value: &value, CurrencyCode: "USD", Provenance: "test"}}

	host := &model.Host{Base: base("host-1"), Title: "Zenodo", URL: "https://zenodo.org", PIDSystems: []string{"doi"}, Provenance: "test"}
	std := &model.Metadatum{Base: base("meta-1"), Description: "Darwin Core", Provenance: "test"}
	std.Identifiers = []*model.Identifier{testIdentifier("id-meta", model.CategoryURL, "https://dwc.tdwg.org", std.Ref())}

	size := int64(2048)
	ds := &model.Dataset{
		Base: base("ds-1"), PlanID: plan.ID, Title: "Core samples", Type: model.DatasetTypeDataset,
		PersonalData: model.FlagNo, SensitiveData: model.FlagUnknown, Keywords: []string{"sediment", "coastal"},
		Provenance: "test", Metadata: []*model.Metadatum{std},
		Statements: []*model.SecurityPrivacyStatement{{Base: base("st-1"), DatasetID: "ds-1", Title: "Encrypted at rest", Provenance: "test"}},
		Resources:  []*model.TechnicalResource{{Base: base("res-1"), DatasetID: "ds-1", Title: "Core scanner", Provenance: "test"}},
		Distributions: []*model.Distribution{{
			Base: base("dist-1"), DatasetID: "ds-1", Title: "Core samples CSV", ByteSize: &size,
			DataAccess: model.AccessOpen, Formats: []string{"text/csv"}, Provenance: "test", Host: host,
			Licenses: []*model.License{{Base: base("lic-1"), DistributionID: "dist-1", LicenseRef: "https://creativecommons.org/licenses/by/4.0/", StartDate: testNow, Provenance: "test"}},
		}},
	}
	plan.Datasets = []*model.Dataset{ds}
	return plan
}

// savePlan writes a graph produced by samplePlan in dependency order.
func savePlan(ctx context.Context, tx *Tx, p *model.Plan) error {
	org := p.Roles[0].Contributor.Affiliation
	steps := []func() error{
		func() error { return tx.UpsertProvenance(ctx, "test", testNow) },
		func() error { return tx.SaveAffiliation(ctx, org) },
		func() error { return tx.SaveContributor(ctx, p.Roles[0].Contributor) },
		func() error { return tx.SavePlan(ctx, p) },
		func() error { return tx.SaveRole(ctx, p.Roles[0]) },
		func() error { return tx.SaveProject(ctx, p.Projects[0]) },
		func() error { return tx.SaveFunding(ctx, p.Projects[0].Fundings[0]) },
		func() error { return tx.LinkFundedAffiliation(ctx, "fund-1", org.ID, testNow) },
		func() error { return tx.SaveCost(ctx, p.Costs[0]) },
	}
	ds := p.Datasets[0]
	dist := ds.Distributions[0]
	steps = append(steps,
		func() error { return tx.SaveDataset(ctx, ds) },
		func() error { return tx.ReplaceKeywords(ctx, ds.ID, ds.Keywords) },
		func() error { return tx.SaveMetadatum(ctx, ds.Metadata[0]) },
		func() error { return tx.LinkMetadatum(ctx, ds.ID, ds.Metadata[0].ID, 0) },
		func() error { return tx.SaveStatement(ctx, ds.Statements[0]) },
		func() error { return tx.SaveResource(ctx, ds.Resources[0]) },
		func() error { return tx.SaveHost(ctx, dist.Host) },
		func() error { return tx.SaveDistribution(ctx, dist) },
		func() error { return tx.SaveLicense(ctx, dist.Licenses[0]) },
	)
	ids := [][]*model.Identifier{org.Identifiers, p.Identifiers, p.Projects[0].Fundings[0].Identifiers, ds.Metadata[0].Identifiers}
	for _, list := range ids {
		for _, id := range list {
			id := id
			steps = append(steps, func() error { return tx.SaveIdentifier(ctx, id) })
		}
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func TestLoadPlan_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	inTx(t, s, func(tx *Tx) error { return savePlan(ctx, tx, samplePlan()) })

	got, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Coastal Survey", got.Title)
	assert.True(t, got.Persisted)
	assert.True(t, got.CreatedAt.Equal(testNow))
	require.NotNil(t, got.DOI())
	assert.Equal(t, "10.1/abc", got.DOI().Value)

	contact := got.Contact()
	require.NotNil(t, contact)
	assert.Equal(t, "Sam.Rivera@Example.edu", contact.Email)
	require.NotNil(t, contact.Affiliation)
	require.Len(t, contact.Affiliation.Identifiers, 1)

	require.Len(t, got.Projects, 1)
	require.Len(t, got.Projects[0].Fundings, 1)
	f := got.Projects[0].Fundings[0]
	assert.True(t, f.Funded())
	assert.True(t, got.Projects[0].End.Equal(testNow.AddDate(2, 0, 0)))

	// One row, one pointer.
	assert.Same(t, contact.Affiliation, f.Affiliation)
	require.Len(t, f.FundedAffiliations, 1)
	assert.Same(t, f.Affiliation, f.FundedAffiliations[0])

	require.Len(t, got.Costs, 1)
	require.NotNil(t, got.Costs[0].Value)
	assert.InDelta(t, 1200.5, *got.Costs[0].Value, 0.0001)

	require.Len(t, got.Datasets, 1)
	ds := got.Datasets[0]
	assert.Equal(t, []string{"sediment", "coastal"}, ds.Keywords)
	require.Len(t, ds.Metadata, 1)
	assert.Equal(t, "Darwin Core", ds.Metadata[0].Description)
	require.Len(t, ds.Statements, 1)
	require.Len(t, ds.Resources, 1)
	require.Len(t, ds.Distributions, 1)

	dist := ds.Distributions[0]
	require.NotNil(t, dist.Host)
	assert.Equal(t, []string{"doi"}, dist.Host.PIDSystems)
	require.NotNil(t, dist.ByteSize)
	assert.Equal(t, int64(2048), *dist.ByteSize)
	require.Len(t, dist.Licenses, 1)
	assert.True(t, dist.Licenses[0].StartDate.Equal(testNow))
}

func TestLoadPlan_NotFound(t *testing.T) {
	s := createTestStore(t)
	got, err := s.LoadPlan(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFinders(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	inTx(t, s, func(tx *Tx) error { return savePlan(ctx, tx, samplePlan()) })

	a, err := s.AffiliationByName(ctx, "  example   UNIVERSITY ")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "aff-1", a.ID)

	c, err := s.ContributorByEmail(ctx, "sam.rivera@example.EDU")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "con-1", c.ID)

	h, err := s.HostByTitle(ctx, "zenodo")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "host-1", h.ID)

	planID, err := s.PlanByTitleAndContact(ctx, "coastal survey", "con-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-1", planID)

	planID, err = s.PlanByTitleAndContact(ctx, "coastal survey", "someone-else")
	require.NoError(t, err)
	assert.Empty(t, planID)

	missing, err := s.Affiliation(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	plans, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Coastal Survey", plans[0].Title)
}

func TestFindIdentifiers_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	older := testIdentifier("id-a", model.CategoryOther, "x-1", model.OwnerRef{Kind: model.KindDataset, ID: "ds-a"})
	newer := testIdentifier("id-b", model.CategoryOther, "x-1", model.OwnerRef{Kind: model.KindDataset, ID: "ds-b"})
	newer.CreatedAt = testNow.Add(time.Minute)
	inTx(t, s, func(tx *Tx) error {
		if err := tx.SaveIdentifier(ctx, older); err != nil {
			return err
		}
		return tx.SaveIdentifier(ctx, newer)
	})

	got, err := s.FindIdentifiers(ctx, model.CategoryOther, "x-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-b", got[0].ID)
	assert.Equal(t, "id-a", got[1].ID)
	assert.Equal(t, model.KindDataset, got[0].Owner.Kind)
}

func TestUniqueIndexes(t *testing.T) {
	ctx := context.Background()

	t.Run("global identifier", func(t *testing.T) {
		s := createTestStore(t)
		a := testIdentifier("id-1", model.CategoryDOI, "10.1/x", model.OwnerRef{Kind: model.KindPlan, ID: "p1"})
		b := testIdentifier("id-2", model.CategoryDOI, "10.1/x", model.OwnerRef{Kind: model.KindPlan, ID: "p2"})
		inTx(t, s, func(tx *Tx) error { return tx.SaveIdentifier(ctx, a) })
		err := s.InTx(ctx, func(tx *Tx) error { return tx.SaveIdentifier(ctx, b) })
		assert.Error(t, err)
	})

	t.Run("scoped identifier under two owners", func(t *testing.T) {
		s := createTestStore(t)
		a := testIdentifier("id-1", model.CategoryOther, "local-7", model.OwnerRef{Kind: model.KindDataset, ID: "d1"})
		b := testIdentifier("id-2", model.CategoryOther, "local-7", model.OwnerRef{Kind: model.KindDataset, ID: "d2"})
		inTx(t, s, func(tx *Tx) error {
			if err := tx.SaveIdentifier(ctx, a); err != nil {
				return err
			}
			return tx.SaveIdentifier(ctx, b)
		})
		got, err := s.FindIdentifiers(ctx, model.CategoryOther, "local-7")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("affiliation name is case-insensitive", func(t *testing.T) {
		s := createTestStore(t)
		inTx(t, s, func(tx *Tx) error {
			return tx.SaveAffiliation(ctx, &model.Affiliation{Base: base("a1"), Name: "Example University", Provenance: "test"})
		})
		err := s.InTx(ctx, func(tx *Tx) error {
			return tx.SaveAffiliation(ctx, &model.Affiliation{Base: base("a2"), Name: "EXAMPLE university", Provenance: "test"})
		})
		assert.Error(t, err)
	})
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.SaveAffiliation(ctx, &model.Affiliation{Base: base("a1"), Name: "Org", Provenance: "test"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["affiliations"])
}

func TestUpsert_KeepsCreatedAt(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := &model.Affiliation{Base: base("a1"), Name: "Org", Provenance: "test"}
	inTx(t, s, func(tx *Tx) error { return tx.SaveAffiliation(ctx, a) })

	a.Name = "Org Renamed"
	a.CreatedAt = testNow.Add(time.Hour)
	a.UpdatedAt = testNow.Add(time.Hour)
	inTx(t, s, func(tx *Tx) error { return tx.SaveAffiliation(ctx, a) })

	got, err := s.Affiliation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Org Renamed", got.Name)
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.True(t, got.UpdatedAt.Equal(testNow.Add(time.Hour)))
}

func TestDeletePlan_KeepsSharedEntities(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	inTx(t, s, func(tx *Tx) error {
		if err := savePlan(ctx, tx, samplePlan()); err != nil {
			return err
		}
		return tx.WriteSubmission(ctx, Submission{
			ID: "sub-1", PlanID: "plan-1", Provenance: "test", PayloadHash: "h", Payload: []byte(`{}`), CreatedAt: testNow,
		})
	})

	var existed bool
	inTx(t, s, func(tx *Tx) error {
		var err error
		existed, err = tx.DeletePlan(ctx, "plan-1")
		return err
	})
	assert.True(t, existed)

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	for _, table := range []string{"plans", "projects", "fundings", "costs", "datasets", "distributions", "licenses", "contributor_roles"} {
		assert.Zero(t, counts[table], table)
	}
	assert.Equal(t, 1, counts["affiliations"])
	assert.Equal(t, 1, counts["contributors"])
	assert.Equal(t, 1, counts["hosts"])
	assert.Equal(t, 1, counts["metadata"])
	// ROR of the affiliation and the metadata standard URL survive.
	assert.Equal(t, 2, counts["identifiers"])

	subs, err := s.Submissions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestFormatTime_SortsInTimeOrder(t *testing.T) {
	whole := time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)

	assert.Equal(t, "2025-01-01T00:00:01.000000000Z", formatTime(whole))
	assert.Less(t, formatTime(whole), formatTime(half))
	assert.Less(t, formatTime(half), formatTime(whole.Add(time.Second)))

	parsed, err := parseTime(formatTime(half))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(half))

	// Rows written before the fixed-width layout still parse.
	legacy, err := parseTime("2025-01-01T00:00:01.5Z")
	require.NoError(t, err)
	assert.True(t, legacy.Equal(half))
}

func TestSubmissions_OrderedAcrossWholeSeconds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	whole := time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)

	inTx(t, s, func(tx *Tx) error {
		if err := savePlan(ctx, tx, samplePlan()); err != nil {
			return err
		}
		// Ids sort against time so only created_at can order these.
		for _, sub := range []Submission{
			{ID: "sub-a", CreatedAt: whole.Add(1500 * time.Millisecond)},
			{ID: "sub-b", CreatedAt: whole.Add(500 * time.Millisecond)},
			{ID: "sub-c", CreatedAt: whole.Add(time.Second)},
			{ID: "sub-d", CreatedAt: whole},
		} {
			sub.PlanID, sub.Provenance, sub.PayloadHash, sub.Payload = "plan-1", "test", "h", []byte(`{}`)
			if err := tx.WriteSubmission(ctx, sub); err != nil {
				return err
			}
		}
		return nil
	})

	subs, err := s.Submissions(ctx, "plan-1")
	require.NoError(t, err)
	var ids []string
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	assert.Equal(t, []string{"sub-d", "sub-b", "sub-c", "sub-a"}, ids)
}
