package model

import "time"

// Plan is a data management plan, the root of the entity graph.
type Plan struct {
	Base
	Title                    string `json:"title"`
	Description              string `json:"description,omitempty"`
	Language                 string `json:"language"`
	EthicalIssues            Flag   `json:"ethical_issues_exist"`
	EthicalIssuesDescription string `json:"ethical_issues_description,omitempty"`
	EthicalIssuesReport      string `json:"ethical_issues_report,omitempty"`
	Provenance               string `json:"provenance"`

	Projects    []*Project         `json:"projects"`
	Roles       []*ContributorRole `json:"roles"`
	Costs       []*Cost            `json:"costs"`
	Datasets    []*Dataset         `json:"datasets"`
	Identifiers []*Identifier      `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this plan.
func (p *Plan) Ref() OwnerRef { return OwnerRef{Kind: KindPlan, ID: p.ID} }

// ContactRole returns the primary_contact role link, or nil.
func (p *Plan) ContactRole() *ContributorRole {
	for _, r := range p.Roles {
		if r.Role == RolePrimaryContact {
			return r
		}
	}
	return nil
}

// Contact returns the primary contact, or nil.
func (p *Plan) Contact() *Contributor {
	if r := p.ContactRole(); r != nil {
		return r.Contributor
	}
	return nil
}

// DOI returns the plan's own DOI, or nil.
func (p *Plan) DOI() *Identifier {
	for _, id := range p.Identifiers {
		if id.Category == CategoryDOI && id.Descriptor == IdentifiedBy {
			return id
		}
	}
	return nil
}

// Project is the research project a plan belongs to.
type Project struct {
	Base
	PlanID      string    `json:"plan_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Provenance  string    `json:"provenance"`

	Fundings []*Funding `json:"fundings"`
}

// Funding is a funding request or award for a project.
type Funding struct {
	Base
	ProjectID  string        `json:"project_id"`
	Name       string        `json:"name,omitempty"`
	Status     FundingStatus `json:"status"`
	Provenance string        `json:"provenance"`

	Affiliation        *Affiliation   `json:"affiliation,omitempty"`
	FundedAffiliations []*Affiliation `json:"funded_affiliations"`
	Identifiers        []*Identifier  `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this funding.
func (f *Funding) Ref() OwnerRef { return OwnerRef{Kind: KindFunding, ID: f.ID} }

// Funded reports whether the funding was granted and carries at least one
// url identifier (the award landing page).
func (f *Funding) Funded() bool {
	return f.Status == FundingGranted && FindIdentifier(f.Identifiers, CategoryURL) != nil
}

// Affiliation is an organization. Affiliations are shared across plans.
type Affiliation struct {
	Base
	Name           string            `json:"name"`
	AlternateNames []string          `json:"alternate_names,omitempty"`
	Types          []string          `json:"types,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Provenance     string            `json:"provenance"`

	Identifiers []*Identifier `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this affiliation.
func (a *Affiliation) Ref() OwnerRef { return OwnerRef{Kind: KindAffiliation, ID: a.ID} }

// Contributor is a person linked to plans through role links.
type Contributor struct {
	Base
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Roles      []Role `json:"roles,omitempty"`
	Provenance string `json:"provenance"`

	Affiliation *Affiliation  `json:"affiliation,omitempty"`
	Identifiers []*Identifier `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this contributor.
func (c *Contributor) Ref() OwnerRef { return OwnerRef{Kind: KindContributor, ID: c.ID} }

// Label is the human-readable name used in messages.
func (c *Contributor) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// ContributorRole links a contributor to a plan under one role.
type ContributorRole struct {
	Base
	PlanID      string       `json:"plan_id"`
	Role        Role         `json:"role"`
	Provenance  string       `json:"provenance"`
	Contributor *Contributor `json:"contributor"`
}

// Cost is a budget line on a plan.
type Cost struct {
	Base
	PlanID       string   `json:"plan_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	CurrencyCode string   `json:"currency_code,omitempty"`
	Provenance   string   `json:"provenance"`
}

// Dataset is a research output described by a plan.
type Dataset struct {
	Base
	PlanID                string      `json:"plan_id"`
	Title                 string      `json:"title"`
	Description           string      `json:"description,omitempty"`
	Type                  DatasetType `json:"type"`
	PersonalData          Flag        `json:"personal_data"`
	SensitiveData         Flag        `json:"sensitive_data"`
	DataQualityAssurance  []string    `json:"data_quality_assurance,omitempty"`
	PreservationStatement string      `json:"preservation_statement,omitempty"`
	Issued                *time.Time  `json:"issued,omitempty"`
	Language              string      `json:"language,omitempty"`
	Keywords              []string    `json:"keywords,omitempty"`
	Provenance            string      `json:"provenance"`

	Metadata      []*Metadatum                `json:"metadata"`
	Statements    []*SecurityPrivacyStatement `json:"security_and_privacy"`
	Resources     []*TechnicalResource        `json:"technical_resources"`
	Distributions []*Distribution             `json:"distributions"`
	Identifiers   []*Identifier               `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this dataset.
func (d *Dataset) Ref() OwnerRef { return OwnerRef{Kind: KindDataset, ID: d.ID} }

// Distribution is one concrete form in which a dataset is made available.
type Distribution struct {
	Base
	DatasetID      string     `json:"dataset_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	AccessURL      string     `json:"access_url,omitempty"`
	DownloadURL    string     `json:"download_url,omitempty"`
	ByteSize       *int64     `json:"byte_size,omitempty"`
	DataAccess     DataAccess `json:"data_access,omitempty"`
	Formats        []string   `json:"formats,omitempty"`
	AvailableUntil *time.Time `json:"available_until,omitempty"`
	Provenance     string     `json:"provenance"`

	Host     *Host      `json:"host,omitempty"`
	Licenses []*License `json:"licenses"`
}

// Host is a repository or storage service. Hosts are shared across plans.
type Host struct {
	Base
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	URL               string   `json:"url,omitempty"`
	Availability      string   `json:"availability,omitempty"`
	BackupFrequency   string   `json:"backup_frequency,omitempty"`
	BackupType        string   `json:"backup_type,omitempty"`
	CertifiedWith     string   `json:"certified_with,omitempty"`
	GeoLocation       string   `json:"geo_location,omitempty"`
	PIDSystems        []string `json:"pid_systems,omitempty"`
	StorageType       string   `json:"storage_type,omitempty"`
	SupportVersioning Flag     `json:"support_versioning,omitempty"`
	Provenance        string   `json:"provenance"`

	Identifiers []*Identifier `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this host.
func (h *Host) Ref() OwnerRef { return OwnerRef{Kind: KindHost, ID: h.ID} }

// License is a license applied to a distribution from a start date.
type License struct {
	Base
	DistributionID string    `json:"distribution_id"`
	LicenseRef     string    `json:"license_ref"`
	StartDate      time.Time `json:"start_date"`
	Provenance     string    `json:"provenance"`
}

// Metadatum is a metadata standard. Standards are shared across datasets.
type Metadatum struct {
	Base
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Provenance  string `json:"provenance"`

	Identifiers []*Identifier `json:"identifiers"`
}

// Ref returns the owner reference for identifiers of this metadatum.
func (m *Metadatum) Ref() OwnerRef { return OwnerRef{Kind: KindMetadatum, ID: m.ID} }

// SecurityPrivacyStatement records a security or privacy measure of a dataset.
type SecurityPrivacyStatement struct {
	Base
	DatasetID   string `json:"dataset_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Provenance  string `json:"provenance"`
}

// TechnicalResource is equipment or infrastructure a dataset depends on.
type TechnicalResource struct {
	Base
	DatasetID   string `json:"dataset_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Provenance  string `json:"provenance"`
}
