package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"doi", CategoryDOI, true},
		{"DOI", CategoryDOI, true},
		{"ROR", CategoryROR, true},
		{"FundRef", CategoryFundref, true},
		{"sub-program", CategorySubProgram, true},
		{"sub_program", CategorySubProgram, true},
		{" orcid ", CategoryORCID, true},
		{"other", CategoryOther, true},
		{"grant", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryGloballyUnique(t *testing.T) {
	for _, c := range []Category{CategoryArk, CategoryDOI, CategoryORCID, CategoryROR, CategoryFundref, CategoryURL, CategoryCredit} {
		assert.True(t, c.GloballyUnique(), c)
	}
	for _, c := range []Category{CategoryDUNS, CategoryHandle, CategoryISNI, CategoryOpenID, CategoryProgram, CategorySubProgram, CategoryOther} {
		assert.False(t, c.GloballyUnique(), c)
	}
}

func TestParseDescriptor(t *testing.T) {
	assert.Equal(t, IsCitedBy, ParseDescriptor("IsCitedBy"))
	assert.Equal(t, IsCitedBy, ParseDescriptor("is_cited_by"))
	assert.Equal(t, IsReferencedBy, ParseDescriptor("is-referenced-by"))
	assert.Equal(t, DescriptorOther, ParseDescriptor("frobnicates"))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"author", RoleAuthor, true},
		{"Principal Investigator", RolePrincipalInvestigator, true},
		{"https://credit.niso.org/contributor-roles/data-curation/", RoleDataCuration, true},
		{"http://credit.niso.org/contributor-roles/investigation", RoleInvestigation, true},
		{"https://credit.niso.org/contributor-roles/writing-review-editing/", RoleWritingReviewAndEditing, true},
		{"primary_contact", RolePrimaryContact, true},
		{"janitor", Role("janitor"), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttachIdentifierDedupes(t *testing.T) {
	a := &Identifier{Category: CategoryDOI, Value: "10.1/abc"}
	b := &Identifier{Category: CategoryDOI, Value: "10.1/abc", Descriptor: Cites}
	c := &Identifier{Category: CategoryURL, Value: "10.1/abc"}

	list, added := AttachIdentifier(nil, a)
	assert.True(t, added)
	list, added = AttachIdentifier(list, b)
	assert.False(t, added)
	list, added = AttachIdentifier(list, c)
	assert.True(t, added)
	list, added = AttachIdentifier(list, nil)
	assert.False(t, added)

	assert.Len(t, list, 2)
	assert.Same(t, a, list[0])
}

func TestFundingFunded(t *testing.T) {
	f := &Funding{Status: FundingGranted}
	assert.False(t, f.Funded(), "granted without url identifier")

	f.Identifiers = append(f.Identifiers, &Identifier{Category: CategoryDOI, Value: "10.1/grant"})
	assert.False(t, f.Funded(), "doi is not a url identifier")

	f.Identifiers = append(f.Identifiers, &Identifier{Category: CategoryURL, Value: "https://nsf.gov/award/1"})
	assert.True(t, f.Funded())

	f.Status = FundingApplied
	assert.False(t, f.Funded())
}

func TestPlanContact(t *testing.T) {
	alice := &Contributor{Name: "Alice"}
	bob := &Contributor{Name: "Bob"}
	p := &Plan{Roles: []*ContributorRole{
		{Role: RoleAuthor, Contributor: alice},
		{Role: RolePrimaryContact, Contributor: bob},
	}}

	assert.Same(t, bob, p.Contact())
	assert.Nil(t, (&Plan{}).Contact())
}

func TestNaturalKey(t *testing.T) {
	assert.Equal(t, NaturalKey("University of California"), NaturalKey("  university   OF california "))
	assert.True(t, SameKey("Café", "café"))
	assert.False(t, SameKey("Zenodo", "Dryad"))
}

func TestParseFlag(t *testing.T) {
	assert.Equal(t, FlagYes, ParseFlag("Yes"))
	assert.Equal(t, FlagNo, ParseFlag("no"))
	assert.Equal(t, FlagUnknown, ParseFlag(""))
	assert.Equal(t, FlagUnknown, ParseFlag("maybe"))
}
