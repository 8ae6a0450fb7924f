package reconcile

import (
	"context"
	"strings"

	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/wire"
)

// Contributor reconciles a person block: contributor_id, then email, then
// a new contributor. Role links are handled by Plan.
func (s *Session) Contributor(ctx context.Context, dto wire.Contributor) (*model.Contributor, error) {
	name := model.Clean(dto.Name)
	email := model.Clean(dto.Mbox)
	if name == "" && email == "" && dto.ContributorID.Empty() {
		return nil, nil
	}

	var (
		c        *model.Contributor
		strategy string
	)
	found, err := s.lookupRef(ctx, model.KindContributor, dto.ContributorID)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		if c, err = s.loadContributor(ctx, found[0].Owner.ID); err != nil {
			return nil, err
		}
		strategy = "identifier"
	}
	if c == nil && email != "" {
		if c, err = s.contributorByEmail(ctx, email); err != nil {
			return nil, err
		}
		strategy = "email"
	}
	if c == nil {
		c = &model.Contributor{Name: name, Email: email, Provenance: s.provenance}
		c.Init(s.ids.Generate(), s.now())
		s.internContributor(c)
		strategy = "new"
	}
	s.logMatch(model.KindContributor, strategy, c.ID)

	switch strategy {
	case "identifier":
		// Matched by identifier: the natural keys are only filled in.
		if c.Name == "" {
			c.Name = name
		}
		if c.Email == "" && email != "" {
			owner, err := s.contributorByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if owner == nil || owner == c {
				c.Email = email
				s.indexContributorEmail(c)
			}
		}
	case "email":
		setIfPresent(&c.Name, name)
	}

	if org := dto.Org(); org != nil {
		a, err := s.Affiliation(ctx, org)
		if err != nil {
			return nil, err
		}
		if a != nil {
			c.Affiliation = a
		}
	}
	c.Touch(s.now())

	if c.Identifiers, err = s.attachRef(ctx, c.Identifiers, c.Ref(), dto.ContributorID, model.IsIdentifiedBy); err != nil {
		return nil, err
	}
	return c, nil
}

// Distribution reconciles a distribution block, matched by title within
// the dataset.
func (s *Session) Distribution(ctx context.Context, ds *model.Dataset, dto wire.Distribution) (*model.Distribution, error) {
	title := model.Clean(dto.Title)
	if title == "" {
		return nil, nil
	}

	var d *model.Distribution
	for _, existing := range ds.Distributions {
		if model.SameKey(existing.Title, title) {
			d = existing
			break
		}
	}
	if d == nil {
		d = &model.Distribution{DatasetID: ds.ID}
		d.Init(s.ids.Generate(), s.now())
		ds.Distributions = append(ds.Distributions, d)
		s.logMatch(model.KindDistribution, "new", d.ID)
	} else {
		s.logMatch(model.KindDistribution, "title", d.ID)
	}

	d.Title = title
	d.Description = model.Clean(dto.Description)
	d.AccessURL = model.Clean(dto.AccessURL)
	d.DownloadURL = model.Clean(dto.DownloadURL)
	d.ByteSize = dto.ByteSize.Int()
	d.DataAccess = ""
	if access := model.DataAccess(strings.ToLower(model.Clean(dto.DataAccess))); access != "" {
		if model.ValidDataAccess[access] {
			d.DataAccess = access
		} else {
			s.logger.Debug("ignoring unknown data_access", "distribution", d.ID, "value", dto.DataAccess)
		}
	}
	d.Formats = nil
	for _, f := range dto.Format.Clean() {
		d.Formats = append(d.Formats, model.Clean(f))
	}
	d.AvailableUntil = nil
	if t, ok := wire.ParseTime(dto.AvailableUntil); ok {
		d.AvailableUntil = &t
	}
	d.Provenance = s.provenance
	d.Touch(s.now())

	h, err := s.Host(ctx, dto.Host)
	if err != nil {
		return nil, err
	}
	if h != nil {
		d.Host = h
	}
	for _, l := range dto.License {
		s.License(ctx, d, l)
	}
	return d, nil
}

// Dataset reconciles a dataset block. Datasets are never skipped: an
// untitled dataset is kept so validation can report it.
func (s *Session) Dataset(ctx context.Context, plan *model.Plan, dto wire.Dataset) (*model.Dataset, error) {
	title := model.Clean(dto.Title)

	var (
		d        *model.Dataset
		strategy string
	)
	found, err := s.lookupRef(ctx, model.KindDataset, dto.DatasetID)
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		if d = findDatasetByID(plan.Datasets, id.Owner.ID); d != nil {
			strategy = "identifier"
			break
		}
	}
	if d == nil && title != "" {
		if d = findDatasetByTitle(plan.Datasets, title); d != nil {
			strategy = "title"
		}
	}
	if d == nil {
		if d = findDatasetByTitle(plan.Datasets, defaultDatasetTitle(plan.Title)); d != nil {
			strategy = "default"
		}
	}
	if d == nil {
		d = s.newDataset(plan)
		strategy = "new"
	}
	s.logMatch(model.KindDataset, strategy, d.ID)

	d.Title = title
	d.Description = model.Clean(dto.Description)
	d.Type = model.DatasetTypeDataset
	if strings.EqualFold(strings.TrimSpace(dto.Type), string(model.DatasetTypeSoftware)) {
		d.Type = model.DatasetTypeSoftware
	}
	d.PersonalData = model.ParseFlag(dto.PersonalData)
	d.SensitiveData = model.ParseFlag(dto.SensitiveData)
	d.DataQualityAssurance = dto.DataQualityAssurance.Clean()
	d.PreservationStatement = model.Clean(dto.PreservationStatement)
	d.Issued = nil
	if t, ok := wire.ParseTime(dto.Issued); ok {
		d.Issued = &t
	}
	d.Language = model.Clean(dto.Language)
	d.Keywords = dto.Keyword.Clean()
	d.Provenance = s.provenance
	d.Touch(s.now())

	for _, md := range dto.Metadata {
		m, err := s.Metadatum(ctx, md)
		if err != nil {
			return nil, err
		}
		if m != nil && !containsMetadatum(d.Metadata, m) {
			d.Metadata = append(d.Metadata, m)
		}
	}
	for _, st := range dto.SecurityAndPrivacy {
		s.Statement(d, st)
	}
	for _, r := range dto.TechnicalResource {
		s.Resource(d, r)
	}
	for _, dist := range dto.Distribution {
		if _, err := s.Distribution(ctx, d, dist); err != nil {
			return nil, err
		}
	}

	if d.Identifiers, err = s.attachRef(ctx, d.Identifiers, d.Ref(), dto.DatasetID, model.IsIdentifiedBy); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Session) newDataset(plan *model.Plan) *model.Dataset {
	d := &model.Dataset{
		PlanID:        plan.ID,
		Type:          model.DatasetTypeDataset,
		PersonalData:  model.FlagUnknown,
		SensitiveData: model.FlagUnknown,
		Provenance:    s.provenance,
	}
	d.Init(s.ids.Generate(), s.now())
	plan.Datasets = append(plan.Datasets, d)
	return d
}

// defaultDataset adds the generated dataset to a plan that has none.
func (s *Session) defaultDataset(plan *model.Plan) *model.Dataset {
	d := s.newDataset(plan)
	d.Title = defaultDatasetTitle(plan.Title)
	s.logMatch(model.KindDataset, "default", d.ID)
	return d
}

func defaultDatasetTitle(planTitle string) string {
	return "Dataset for: " + planTitle
}

func findDatasetByID(list []*model.Dataset, id string) *model.Dataset {
	for _, d := range list {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func findDatasetByTitle(list []*model.Dataset, title string) *model.Dataset {
	for _, d := range list {
		if model.SameKey(d.Title, title) {
			return d
		}
	}
	return nil
}

func containsMetadatum(list []*model.Metadatum, m *model.Metadatum) bool {
	for _, existing := range list {
		if existing.ID == m.ID {
			return true
		}
	}
	return false
}

// Funding reconciles a funding block within a project: grant_id, then the
// funder, then a new funding.
func (s *Session) Funding(ctx context.Context, project *model.Project, dto wire.Funding) (*model.Funding, error) {
	name := model.Clean(dto.Name)
	if name == "" && dto.FunderID.Empty() && dto.GrantID.Empty() {
		return nil, nil
	}

	var (
		f        *model.Funding
		strategy string
	)
	found, err := s.lookupRef(ctx, model.KindFunding, dto.GrantID)
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		if f = findFundingByID(project.Fundings, id.Owner.ID); f != nil {
			strategy = "identifier"
			break
		}
	}

	funder, err := s.affiliation(ctx, name, "", dto.FunderID)
	if err != nil {
		return nil, err
	}
	if f == nil && funder != nil {
		for _, existing := range project.Fundings {
			if existing.Affiliation != nil && existing.Affiliation.ID == funder.ID {
				f = existing
				strategy = "funder"
				break
			}
		}
	}
	if f == nil {
		f = &model.Funding{ProjectID: project.ID, Status: model.FundingPlanned}
		f.Init(s.ids.Generate(), s.now())
		project.Fundings = append(project.Fundings, f)
		strategy = "new"
	}
	s.logMatch(model.KindFunding, strategy, f.ID)

	f.Name = name
	if funder != nil {
		f.Affiliation = funder
	}
	if status := model.FundingStatus(strings.ToLower(model.Clean(dto.FundingStatus))); model.ValidFundingStatuses[status] {
		f.Status = status
	} else if f.Status == "" {
		f.Status = model.FundingPlanned
	}
	f.Provenance = s.provenance
	f.Touch(s.now())

	for i := range dto.FundedAffiliations {
		a, err := s.Affiliation(ctx, &dto.FundedAffiliations[i])
		if err != nil {
			return nil, err
		}
		if a != nil && !containsAffiliation(f.FundedAffiliations, a) {
			f.FundedAffiliations = append(f.FundedAffiliations, a)
		}
	}

	if f.Identifiers, err = s.attachRef(ctx, f.Identifiers, f.Ref(), dto.GrantID, model.IsIdentifiedBy); err != nil {
		return nil, err
	}
	if f.Identifiers, err = s.attachRef(ctx, f.Identifiers, f.Ref(), dto.OpportunityID, model.FundedBy); err != nil {
		return nil, err
	}
	return f, nil
}

func findFundingByID(list []*model.Funding, id string) *model.Funding {
	for _, f := range list {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func containsAffiliation(list []*model.Affiliation, a *model.Affiliation) bool {
	for _, existing := range list {
		if existing.ID == a.ID {
			return true
		}
	}
	return false
}

// Project reconciles a project block, matched by title within the plan or
// as the generated default project.
func (s *Session) Project(ctx context.Context, plan *model.Plan, dto wire.Project) (*model.Project, error) {
	title := model.Clean(dto.Title)

	var (
		p        *model.Project
		strategy string
	)
	if title != "" {
		if p = findProjectByTitle(plan.Projects, title); p != nil {
			strategy = "title"
		}
	}
	if p == nil {
		if p = findProjectByTitle(plan.Projects, defaultProjectTitle(plan.Title)); p != nil {
			strategy = "default"
		}
	}
	if p == nil {
		p = &model.Project{PlanID: plan.ID}
		p.Init(s.ids.Generate(), s.now())
		plan.Projects = append(plan.Projects, p)
		strategy = "new"
	}
	s.logMatch(model.KindProject, strategy, p.ID)

	p.Title = title
	p.Description = model.Clean(dto.Description)
	if t, ok := wire.ParseTime(dto.Start); ok {
		p.Start = t
	}
	if t, ok := wire.ParseTime(dto.End); ok {
		p.End = t
	}
	p.Provenance = s.provenance
	p.Touch(s.now())

	for _, fd := range dto.Funding {
		if _, err := s.Funding(ctx, p, fd); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// defaultProject adds the generated project, running two years from now,
// to a plan that has none.
func (s *Session) defaultProject(plan *model.Plan) *model.Project {
	now := s.now()
	p := &model.Project{
		PlanID:     plan.ID,
		Title:      defaultProjectTitle(plan.Title),
		Start:      now,
		End:        now.AddDate(2, 0, 0),
		Provenance: s.provenance,
	}
	p.Init(s.ids.Generate(), now)
	plan.Projects = append(plan.Projects, p)
	s.logMatch(model.KindProject, "default", p.ID)
	return p
}

func defaultProjectTitle(planTitle string) string {
	return "Project: " + planTitle
}

func findProjectByTitle(list []*model.Project, title string) *model.Project {
	for _, p := range list {
		if model.SameKey(p.Title, title) {
			return p
		}
	}
	return nil
}
