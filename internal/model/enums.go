package model

import (
	"net/url"
	"path"
	"strings"
)

// Role is the part a contributor plays on a plan.
type Role string

const (
	RolePrimaryContact        Role = "primary_contact"
	RoleCurator               Role = "curator"
	RoleAuthor                Role = "author"
	RolePrincipalInvestigator Role = "principal_investigator"
	RoleInvestigator          Role = "investigator"
	RoleDataLibrarian         Role = "data_librarian"
	RoleCreator               Role = "creator"
	RoleProgramOfficer        Role = "program_officer"

	// CRediT contributor roles.
	RoleConceptualization       Role = "conceptualization"
	RoleDataCuration            Role = "data_curation"
	RoleFormalAnalysis          Role = "formal_analysis"
	RoleFundingAcquisition      Role = "funding_acquisition"
	RoleInvestigation           Role = "investigation"
	RoleMethodology             Role = "methodology"
	RoleProjectAdministration   Role = "project_administration"
	RoleResources               Role = "resources"
	RoleSoftware                Role = "software"
	RoleSupervision             Role = "supervision"
	RoleValidation              Role = "validation"
	RoleVisualization           Role = "visualization"
	RoleWritingOriginalDraft    Role = "writing_original_draft"
	RoleWritingReviewAndEditing Role = "writing_review_editing"
)

// ValidRoles defines the accepted role names.
var ValidRoles = map[Role]bool{
	RolePrimaryContact:          true,
	RoleCurator:                 true,
	RoleAuthor:                  true,
	RolePrincipalInvestigator:   true,
	RoleInvestigator:            true,
	RoleDataLibrarian:           true,
	RoleCreator:                 true,
	RoleProgramOfficer:          true,
	RoleConceptualization:       true,
	RoleDataCuration:            true,
	RoleFormalAnalysis:          true,
	RoleFundingAcquisition:      true,
	RoleInvestigation:           true,
	RoleMethodology:             true,
	RoleProjectAdministration:   true,
	RoleResources:               true,
	RoleSoftware:                true,
	RoleSupervision:             true,
	RoleValidation:              true,
	RoleVisualization:           true,
	RoleWritingOriginalDraft:    true,
	RoleWritingReviewAndEditing: true,
}

// roleAliases covers CRediT URL slugs that differ from the role name.
var roleAliases = map[string]Role{
	"writing_review_&_editing":   RoleWritingReviewAndEditing,
	"writing_review_and_editing": RoleWritingReviewAndEditing,
	"project_administrator":      RoleProjectAdministration,
}

// ParseRole accepts a plain role name or a role URL such as
// "https://credit.niso.org/contributor-roles/data-curation/".
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		s = path.Base(strings.TrimSuffix(u.Path, "/"))
	}
	key := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(s))
	if r, ok := roleAliases[key]; ok {
		return r, true
	}
	r := Role(key)
	return r, ValidRoles[r]
}

// FundingStatus is the lifecycle stage of a funding request.
type FundingStatus string

const (
	FundingPlanned  FundingStatus = "planned"
	FundingApplied  FundingStatus = "applied"
	FundingGranted  FundingStatus = "granted"
	FundingRejected FundingStatus = "rejected"
)

// ValidFundingStatuses defines the closed status set.
var ValidFundingStatuses = map[FundingStatus]bool{
	FundingPlanned:  true,
	FundingApplied:  true,
	FundingGranted:  true,
	FundingRejected: true,
}

// DatasetType distinguishes data from software outputs.
type DatasetType string

const (
	DatasetTypeDataset  DatasetType = "dataset"
	DatasetTypeSoftware DatasetType = "software"
)

// ValidDatasetTypes defines the closed dataset type set.
var ValidDatasetTypes = map[DatasetType]bool{
	DatasetTypeDataset:  true,
	DatasetTypeSoftware: true,
}

// Flag is a tri-state yes/no/unknown answer.
type Flag string

const (
	FlagYes     Flag = "yes"
	FlagNo      Flag = "no"
	FlagUnknown Flag = "unknown"
)

// ParseFlag maps free text to a Flag. Empty or unrecognized input is unknown.
func ParseFlag(s string) Flag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "y":
		return FlagYes
	case "no", "false", "n":
		return FlagNo
	default:
		return FlagUnknown
	}
}

// DataAccess is the access level of a distribution.
type DataAccess string

const (
	AccessOpen   DataAccess = "open"
	AccessShared DataAccess = "shared"
	AccessClosed DataAccess = "closed"
)

// ValidDataAccess defines the closed access level set.
var ValidDataAccess = map[DataAccess]bool{
	AccessOpen:   true,
	AccessShared: true,
	AccessClosed: true,
}
