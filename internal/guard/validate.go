package guard

import (
	"fmt"
	"strings"

	"github.com/roach88/dmpsync/internal/model"
)

// Violation codes (E200-E299)
const (
	// Plan (E200-E209)
	ErrPlanTitleBlank    = "E201" // title is required
	ErrPlanNoContact     = "E202" // exactly one primary contact
	ErrPlanManyContacts  = "E203" // more than one primary contact
	ErrPlanNoProject     = "E204" // at least one project
	ErrPlanNoDataset     = "E205" // at least one dataset
	ErrPlanLanguageBlank = "E206" // language is required

	// People and organizations (E210-E219)
	ErrContributorUnnamed = "E210" // name or email required
	ErrContributorEmail   = "E211" // malformed email
	ErrAffiliationUnnamed = "E212" // name is required

	// Projects and fundings (E220-E229)
	ErrProjectTitleBlank  = "E220" // title is required
	ErrProjectDates       = "E221" // end before start
	ErrFundingStatus      = "E222" // unknown status
	ErrFundingUnnamed     = "E223" // name or funder required
	ErrCostTitleBlank     = "E224" // title is required
	ErrCostCurrency       = "E225" // currency code must be three letters
	ErrRoleWithoutPerson  = "E226" // role link needs a contributor
	ErrRoleUnknown        = "E227" // unknown role
	ErrDuplicateRoleLinks = "E228" // same contributor and role twice

	// Datasets (E230-E249)
	ErrDatasetTitleBlank      = "E230" // title is required
	ErrDatasetType            = "E231" // dataset or software
	ErrDistributionTitleBlank = "E232" // title is required
	ErrDistributionAccess     = "E233" // open, shared or closed
	ErrHostTitleBlank         = "E234" // title is required
	ErrLicenseIncomplete      = "E235" // license_ref and start_date required
	ErrMetadatumUnidentified  = "E236" // standard needs an identifier
	ErrStatementTitleBlank    = "E237" // title is required
	ErrResourceTitleBlank     = "E238" // name is required

	// Identifiers (E250-E259)
	ErrIdentifierValueBlank = "E250" // value is required
	ErrIdentifierDescriptor = "E251" // unknown descriptor
	ErrIdentifierOwner      = "E252" // owner mismatch
)

// Violation is one validation failure, located by a human-readable path
// such as "Dataset: 'Cores' - Distribution: 'CSV'".
type Violation struct {
	Path    string `json:"path"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// String renders the violation as "<path> - <Message>".
func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + " - " + v.Message
}

// Violations aggregates every failure found in a graph.
type Violations []Violation

// Error implements the error interface.
func (v Violations) Error() string {
	msgs := make([]string, len(v))
	for i, x := range v {
		msgs[i] = x.String()
	}
	return "invalid graph: " + strings.Join(msgs, "; ")
}

// Strings returns the rendered violations.
func (v Violations) Strings() []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = x.String()
	}
	return out
}

// walker collects violations in post order: children before their parent.
type walker struct {
	out Violations
}

func (w *walker) add(path, field, code, format string, args ...any) {
	w.out = append(w.out, Violation{
		Path:    path,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func segment(kind, label string) string {
	return fmt.Sprintf("%s: '%s'", kind, label)
}

func join(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + " - " + child
}

// Validate walks a plan graph and returns every violation found. An empty
// result means the graph can be saved.
func Validate(p *model.Plan) Violations {
	if p == nil {
		return Violations{{Message: "plan is missing", Code: ErrPlanTitleBlank}}
	}
	w := &walker{}
	w.plan(p)
	return w.out
}

func (w *walker) plan(p *model.Plan) {
	contacts := 0
	seen := make(map[string]bool)
	for _, r := range p.Roles {
		label := string(r.Role)
		if r.Role == model.RolePrimaryContact {
			contacts++
			label = "Contact"
		}
		if r.Contributor == nil {
			w.add(segment("ContributorRole", label), "contributor", ErrRoleWithoutPerson, "Contributor can't be blank")
			continue
		}
		w.contributor(segment("Contributor/"+label, r.Contributor.Label()), r.Contributor)
		if !model.ValidRoles[r.Role] {
			w.add(segment("Contributor/"+label, r.Contributor.Label()), "role", ErrRoleUnknown, "Role %q is not recognized", r.Role)
		}
		key := r.Contributor.ID + "|" + string(r.Role)
		if seen[key] {
			w.add(segment("Contributor/"+label, r.Contributor.Label()), "role", ErrDuplicateRoleLinks, "Role %s is listed twice", r.Role)
		}
		seen[key] = true
	}

	for _, proj := range p.Projects {
		w.project(segment("Project", proj.Title), proj)
	}
	for _, c := range p.Costs {
		w.cost(segment("Cost", c.Title), c)
	}
	for _, d := range p.Datasets {
		w.dataset(segment("Dataset", d.Title), d)
	}
	w.identifiers(segment("DataManagementPlan", p.Title), p.Identifiers, p.Ref())

	path := segment("DataManagementPlan", p.Title)
	if strings.TrimSpace(p.Title) == "" {
		w.add(path, "title", ErrPlanTitleBlank, "Title can't be blank")
	}
	if strings.TrimSpace(p.Language) == "" {
		w.add(path, "language", ErrPlanLanguageBlank, "Language can't be blank")
	}
	switch {
	case contacts == 0:
		w.add(path, "contact", ErrPlanNoContact, "Contact can't be blank")
	case contacts > 1:
		w.add(path, "contact", ErrPlanManyContacts, "Contact must be unique, found %d", contacts)
	}
	if len(p.Projects) == 0 {
		w.add(path, "project", ErrPlanNoProject, "Project can't be blank")
	}
	if len(p.Datasets) == 0 {
		w.add(path, "dataset", ErrPlanNoDataset, "Dataset can't be blank")
	}
}

func (w *walker) contributor(path string, c *model.Contributor) {
	if c.Affiliation != nil {
		w.affiliation(join(path, segment("Affiliation", c.Affiliation.Name)), c.Affiliation)
	}
	w.identifiers(path, c.Identifiers, c.Ref())

	if strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Email) == "" {
		w.add(path, "name", ErrContributorUnnamed, "Name can't be blank")
	}
	if c.Email != "" && !validEmail(c.Email) {
		w.add(path, "email", ErrContributorEmail, "Email is invalid")
	}
}

func validEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\n")
}

func (w *walker) affiliation(path string, a *model.Affiliation) {
	w.identifiers(path, a.Identifiers, a.Ref())
	if strings.TrimSpace(a.Name) == "" {
		w.add(path, "name", ErrAffiliationUnnamed, "Name can't be blank")
	}
}

func (w *walker) project(path string, p *model.Project) {
	for _, f := range p.Fundings {
		label := f.Name
		if label == "" && f.Affiliation != nil {
			label = f.Affiliation.Name
		}
		w.funding(join(path, segment("Funding", label)), f)
	}
	if strings.TrimSpace(p.Title) == "" {
		w.add(path, "title", ErrProjectTitleBlank, "Title can't be blank")
	}
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		w.add(path, "end", ErrProjectDates, "End must be after start")
	}
}

func (w *walker) funding(path string, f *model.Funding) {
	if f.Affiliation != nil {
		w.affiliation(join(path, segment("Funder", f.Affiliation.Name)), f.Affiliation)
	}
	for _, a := range f.FundedAffiliations {
		w.affiliation(join(path, segment("FundedAffiliation", a.Name)), a)
	}
	w.identifiers(path, f.Identifiers, f.Ref())

	if !model.ValidFundingStatuses[f.Status] {
		w.add(path, "status", ErrFundingStatus, "Status %q is not recognized", f.Status)
	}
	if strings.TrimSpace(f.Name) == "" && f.Affiliation == nil && len(f.Identifiers) == 0 {
		w.add(path, "name", ErrFundingUnnamed, "Name can't be blank")
	}
}

func (w *walker) cost(path string, c *model.Cost) {
	if strings.TrimSpace(c.Title) == "" {
		w.add(path, "title", ErrCostTitleBlank, "Title can't be blank")
	}
	if c.CurrencyCode != "" && len(c.CurrencyCode) != 3 {
		w.add(path, "currency_code", ErrCostCurrency, "Currency code %q is invalid", c.CurrencyCode)
	}
}

func (w *walker) dataset(path string, d *model.Dataset) {
	for _, m := range d.Metadata {
		w.metadatum(join(path, segment("Metadatum", metadatumLabel(m))), m)
	}
	for _, s := range d.Statements {
		if strings.TrimSpace(s.Title) == "" {
			w.add(join(path, segment("SecurityPrivacyStatement", s.Title)), "title", ErrStatementTitleBlank, "Title can't be blank")
		}
	}
	for _, r := range d.Resources {
		if strings.TrimSpace(r.Title) == "" {
			w.add(join(path, segment("TechnicalResource", r.Title)), "name", ErrResourceTitleBlank, "Name can't be blank")
		}
	}
	for _, dist := range d.Distributions {
		w.distribution(join(path, segment("Distribution", dist.Title)), dist)
	}
	w.identifiers(path, d.Identifiers, d.Ref())

	if strings.TrimSpace(d.Title) == "" {
		w.add(path, "title", ErrDatasetTitleBlank, "Title can't be blank")
	}
	if !model.ValidDatasetTypes[d.Type] {
		w.add(path, "type", ErrDatasetType, "Type %q is not recognized", d.Type)
	}
}

func metadatumLabel(m *model.Metadatum) string {
	if len(m.Identifiers) > 0 {
		return m.Identifiers[0].Value
	}
	return m.Description
}

func (w *walker) metadatum(path string, m *model.Metadatum) {
	w.identifiers(path, m.Identifiers, m.Ref())
	if len(m.Identifiers) == 0 {
		w.add(path, "identifier", ErrMetadatumUnidentified, "Identifier can't be blank")
	}
}

func (w *walker) distribution(path string, d *model.Distribution) {
	if d.Host != nil {
		w.host(join(path, segment("Host", d.Host.Title)), d.Host)
	}
	for _, l := range d.Licenses {
		if strings.TrimSpace(l.LicenseRef) == "" || l.StartDate.IsZero() {
			w.add(join(path, segment("License", l.LicenseRef)), "license_ref", ErrLicenseIncomplete, "License ref and start date can't be blank")
		}
	}
	if strings.TrimSpace(d.Title) == "" {
		w.add(path, "title", ErrDistributionTitleBlank, "Title can't be blank")
	}
	if d.DataAccess != "" && !model.ValidDataAccess[d.DataAccess] {
		w.add(path, "data_access", ErrDistributionAccess, "Data access %q is not recognized", d.DataAccess)
	}
}

func (w *walker) host(path string, h *model.Host) {
	w.identifiers(path, h.Identifiers, h.Ref())
	if strings.TrimSpace(h.Title) == "" {
		w.add(path, "title", ErrHostTitleBlank, "Title can't be blank")
	}
}

func (w *walker) identifiers(path string, list []*model.Identifier, owner model.OwnerRef) {
	for _, id := range list {
		p := join(path, segment("Identifier", string(id.Category)))
		if strings.TrimSpace(id.Value) == "" {
			w.add(p, "value", ErrIdentifierValueBlank, "Value can't be blank")
		}
		if !model.ValidDescriptors[id.Descriptor] {
			w.add(p, "descriptor", ErrIdentifierDescriptor, "Descriptor %q is not recognized", id.Descriptor)
		}
		if id.Owner != owner {
			w.add(p, "owner", ErrIdentifierOwner, "Identifier %s belongs to %s", id.Value, id.Owner)
		}
	}
}
