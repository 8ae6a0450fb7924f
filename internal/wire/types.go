package wire

import "strings"

// IDRef is an identifier block: {"type": "doi", "identifier": "10.1/abc"}.
type IDRef struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// Empty reports whether the block carries no identifier value.
func (r *IDRef) Empty() bool {
	return r == nil || strings.TrimSpace(r.Identifier) == ""
}

// Document is the dmp object of a submission.
type Document struct {
	Title                    string              `json:"title"`
	Description              string              `json:"description"`
	Language                 string              `json:"language"`
	EthicalIssuesExist       string              `json:"ethical_issues_exist"`
	EthicalIssuesDescription string              `json:"ethical_issues_description"`
	EthicalIssuesReport      string              `json:"ethical_issues_report"`
	DMPID                    *IDRef              `json:"dmp_id"`
	Contact                  *Contact            `json:"contact"`
	Contributors             []Contributor       `json:"contributor"`
	Projects                 []Project           `json:"project"`
	Costs                    []Cost              `json:"cost"`
	Datasets                 []Dataset           `json:"dataset"`
	RelatedIdentifiers       []RelatedIdentifier `json:"dmproadmap_related_identifiers"`
}

// Affiliation is an organization block.
type Affiliation struct {
	Name          string `json:"name"`
	Abbreviation  string `json:"abbreviation"`
	AffiliationID *IDRef `json:"affiliation_id"`
}

// Empty reports whether the block names nothing.
func (a *Affiliation) Empty() bool {
	return a == nil || (strings.TrimSpace(a.Name) == "" && a.AffiliationID.Empty())
}

// Contact is the plan's primary contact.
type Contact struct {
	Name               string       `json:"name"`
	Mbox               string       `json:"mbox"`
	ContactID          *IDRef       `json:"contact_id"`
	Affiliation        *Affiliation `json:"affiliation"`
	RoadmapAffiliation *Affiliation `json:"dmproadmap_affiliation"`
}

// Person converts the contact into the shared contributor shape.
func (c *Contact) Person() Contributor {
	return Contributor{
		Name:               c.Name,
		Mbox:               c.Mbox,
		ContributorID:      c.ContactID,
		Affiliation:        c.Affiliation,
		RoadmapAffiliation: c.RoadmapAffiliation,
	}
}

// Contributor is a person listed on the plan with one or more roles.
type Contributor struct {
	Name               string       `json:"name"`
	Mbox               string       `json:"mbox"`
	Role               StringList   `json:"role"`
	ContributorID      *IDRef       `json:"contributor_id"`
	Affiliation        *Affiliation `json:"affiliation"`
	RoadmapAffiliation *Affiliation `json:"dmproadmap_affiliation"`
}

// Org returns whichever affiliation block the document supplied.
func (c *Contributor) Org() *Affiliation {
	if !c.RoadmapAffiliation.Empty() {
		return c.RoadmapAffiliation
	}
	if !c.Affiliation.Empty() {
		return c.Affiliation
	}
	return nil
}

// Project is a project block with its fundings.
type Project struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Funding     []Funding `json:"funding"`
}

// Funding is a funding block.
type Funding struct {
	Name               string        `json:"name"`
	FunderID           *IDRef        `json:"funder_id"`
	GrantID            *IDRef        `json:"grant_id"`
	FundingStatus      string        `json:"funding_status"`
	OpportunityID      *IDRef        `json:"dmproadmap_funding_opportunity_id"`
	FundedAffiliations []Affiliation `json:"dmproadmap_funded_affiliations"`
}

// Cost is a budget line.
type Cost struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Value        Number `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

// Dataset is a dataset block with its owned collections.
type Dataset struct {
	Title                 string         `json:"title"`
	Description           string         `json:"description"`
	Type                  string         `json:"type"`
	DatasetID             *IDRef         `json:"dataset_id"`
	PersonalData          string         `json:"personal_data"`
	SensitiveData         string         `json:"sensitive_data"`
	DataQualityAssurance  StringList     `json:"data_quality_assurance"`
	PreservationStatement string         `json:"preservation_statement"`
	Issued                string         `json:"issued"`
	Language              string         `json:"language"`
	Keyword               StringList     `json:"keyword"`
	Metadata              []Metadatum    `json:"metadata"`
	SecurityAndPrivacy    []Statement    `json:"security_and_privacy"`
	TechnicalResource     []Resource     `json:"technical_resource"`
	Distribution          []Distribution `json:"distribution"`
}

// Metadatum references a metadata standard.
type Metadatum struct {
	Description        string `json:"description"`
	Language           string `json:"language"`
	MetadataStandardID *IDRef `json:"metadata_standard_id"`
}

// Statement is a security and privacy statement.
type Statement struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Resource is a technical resource. Older documents use title, newer use name.
type Resource struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Label returns the resource's name, falling back to title.
func (r *Resource) Label() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.Title
}

// Distribution is a distribution block.
type Distribution struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	AccessURL      string     `json:"access_url"`
	DownloadURL    string     `json:"download_url"`
	ByteSize       Number     `json:"byte_size"`
	DataAccess     string     `json:"data_access"`
	Format         StringList `json:"format"`
	AvailableUntil string     `json:"available_until"`
	Host           *Host      `json:"host"`
	License        []License  `json:"license"`
}

// Host is a repository block.
type Host struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	URL               string     `json:"url"`
	HostID            *IDRef     `json:"dmproadmap_host_id"`
	Availability      string     `json:"availability"`
	BackupFrequency   string     `json:"backup_frequency"`
	BackupType        string     `json:"backup_type"`
	CertifiedWith     string     `json:"certified_with"`
	GeoLocation       string     `json:"geo_location"`
	PIDSystem         StringList `json:"pid_system"`
	StorageType       string     `json:"storage_type"`
	SupportVersioning string     `json:"support_versioning"`
}

// License is a license block.
type License struct {
	LicenseRef string `json:"license_ref"`
	StartDate  string `json:"start_date"`
}

// RelatedIdentifier is a work related to the plan.
type RelatedIdentifier struct {
	Type         string `json:"type"`
	Descriptor   string `json:"descriptor"`
	RelationType string `json:"relation_type"`
	Identifier   string `json:"identifier"`
	WorkType     string `json:"work_type"`
}

// Relation returns descriptor, falling back to relation_type.
func (r *RelatedIdentifier) Relation() string {
	if strings.TrimSpace(r.Descriptor) != "" {
		return r.Descriptor
	}
	return r.RelationType
}
