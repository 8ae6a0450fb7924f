package reconcile

import (
	"context"
	"strings"

	"github.com/roach88/dmpsync/internal/external"
	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/wire"
)

// Affiliation reconciles an organization block. It returns nil when the
// block names nothing, or names only an identifier that matches nothing.
func (s *Session) Affiliation(ctx context.Context, dto *wire.Affiliation) (*model.Affiliation, error) {
	if dto.Empty() {
		return nil, nil
	}
	return s.affiliation(ctx, dto.Name, dto.Abbreviation, dto.AffiliationID)
}

func (s *Session) affiliation(ctx context.Context, name, abbreviation string, ref *wire.IDRef) (*model.Affiliation, error) {
	name = model.Clean(name)
	if name == "" && ref.Empty() {
		return nil, nil
	}

	var (
		a         *model.Affiliation
		strategy  string
		candidate *external.Candidate
	)

	found, err := s.lookupRef(ctx, model.KindAffiliation, ref)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		if a, err = s.loadAffiliation(ctx, found[0].Owner.ID); err != nil {
			return nil, err
		}
		strategy = "identifier"
	}

	if a == nil && name != "" {
		if a, err = s.affiliationByName(ctx, name); err != nil {
			return nil, err
		}
		strategy = "name"
	}

	if a == nil && name != "" && s.names != nil {
		if a, candidate, err = s.searchAffiliation(ctx, name); err != nil {
			return nil, err
		}
		strategy = "name_search"
	}

	if a == nil {
		if name == "" {
			s.logger.Debug("skipping unnamed affiliation", "identifier", ref.Identifier)
			return nil, nil
		}
		a = &model.Affiliation{Name: name, Provenance: s.provenance}
		a.Init(s.ids.Generate(), s.now())
		s.internAffiliation(a)
		strategy = "new"
	}
	s.logMatch(model.KindAffiliation, strategy, a.ID)

	if a.Name == "" {
		a.Name = name
	}
	a.AlternateNames = addName(a.AlternateNames, a.Name, abbreviation)
	if candidate != nil {
		for _, alt := range candidate.AlternateNames {
			a.AlternateNames = addName(a.AlternateNames, a.Name, alt)
		}
		a.Types = addStrings(a.Types, candidate.Types...)
	}
	a.Touch(s.now())

	if a.Identifiers, err = s.attachRef(ctx, a.Identifiers, a.Ref(), ref, model.IsIdentifiedBy); err != nil {
		return nil, err
	}
	if candidate != nil && candidate.Identifier != "" {
		if a.Identifiers, _, err = s.attach(ctx, a.Identifiers, a.Ref(), candidate.IdentifierType, candidate.Identifier, model.IsIdentifiedBy); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// searchAffiliation asks the name search collaborator for an exact name
// match carrying an identifier. A stored owner of that identifier is
// returned; otherwise only the candidate is, and the caller creates the
// affiliation with the candidate's identifier. Search failures are logged
// and treated as no match.
func (s *Session) searchAffiliation(ctx context.Context, name string) (*model.Affiliation, *external.Candidate, error) {
	candidates, err := s.names.Search(ctx, name)
	if err != nil {
		s.logger.Warn("organization search failed", "term", name, "error", err)
		return nil, nil, nil
	}
	for i := range candidates {
		c := candidates[i]
		if !model.SameKey(c.Name, name) || c.Identifier == "" {
			continue
		}
		found, err := s.lookup(ctx, model.KindAffiliation, c.IdentifierType, c.Identifier)
		if err != nil {
			return nil, nil, err
		}
		if len(found) > 0 {
			a, err := s.loadAffiliation(ctx, found[0].Owner.ID)
			return a, &c, err
		}
		return nil, &c, nil
	}
	return nil, nil, nil
}

// Host reconciles a repository block. Hosts are shared across
// distributions and plans.
func (s *Session) Host(ctx context.Context, dto *wire.Host) (*model.Host, error) {
	if dto == nil {
		return nil, nil
	}
	title := model.Clean(dto.Title)
	if title == "" && dto.HostID.Empty() {
		return nil, nil
	}

	var (
		h        *model.Host
		strategy string
	)
	found, err := s.lookupRef(ctx, model.KindHost, dto.HostID)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		if h, err = s.loadHost(ctx, found[0].Owner.ID); err != nil {
			return nil, err
		}
		strategy = "identifier"
	}
	if h == nil && title != "" {
		if h, err = s.hostByTitle(ctx, title); err != nil {
			return nil, err
		}
		strategy = "title"
	}
	if h == nil {
		h = &model.Host{Title: title, Provenance: s.provenance}
		h.Init(s.ids.Generate(), s.now())
		s.internHost(h)
		strategy = "new"
	}
	s.logMatch(model.KindHost, strategy, h.ID)

	if h.Title == "" {
		h.Title = title
	}
	// Everything but the title follows the latest block, absent fields
	// included.
	h.Description = model.Clean(dto.Description)
	h.URL = model.Clean(dto.URL)
	h.Availability = model.Clean(dto.Availability)
	h.BackupFrequency = model.Clean(dto.BackupFrequency)
	h.BackupType = model.Clean(dto.BackupType)
	h.CertifiedWith = model.Clean(dto.CertifiedWith)
	h.GeoLocation = model.Clean(dto.GeoLocation)
	h.StorageType = model.Clean(dto.StorageType)
	h.PIDSystems = dto.PIDSystem.Clean()
	h.SupportVersioning = model.ParseFlag(dto.SupportVersioning)
	h.Touch(s.now())

	if h.Identifiers, err = s.attachRef(ctx, h.Identifiers, h.Ref(), dto.HostID, model.IsIdentifiedBy); err != nil {
		return nil, err
	}
	return h, nil
}

// License reconciles a license block within a distribution. It needs a
// license_ref and a parseable start_date.
func (s *Session) License(ctx context.Context, dist *model.Distribution, dto wire.License) *model.License {
	ref := model.Clean(dto.LicenseRef)
	start, ok := wire.ParseTime(dto.StartDate)
	if ref == "" || !ok {
		return nil
	}

	var l *model.License
	for _, existing := range dist.Licenses {
		if existing.LicenseRef == ref {
			l = existing
			break
		}
	}
	if l == nil {
		l = &model.License{DistributionID: dist.ID, LicenseRef: ref}
		l.Init(s.ids.Generate(), s.now())
		dist.Licenses = append(dist.Licenses, l)
		s.logMatch(model.KindLicense, "new", l.ID)
	} else {
		s.logMatch(model.KindLicense, "license_ref", l.ID)
	}

	l.StartDate = start
	l.Provenance = s.provenance
	l.Touch(s.now())
	return l
}

// Metadatum reconciles a metadata standard reference. Standards are
// matched by identifier only.
func (s *Session) Metadatum(ctx context.Context, dto wire.Metadatum) (*model.Metadatum, error) {
	ref := dto.MetadataStandardID
	if ref.Empty() {
		return nil, nil
	}

	var (
		m        *model.Metadatum
		strategy = "identifier"
	)
	found, err := s.lookupRef(ctx, model.KindMetadatum, ref)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		if m, err = s.loadMetadatum(ctx, found[0].Owner.ID); err != nil {
			return nil, err
		}
	}
	if m == nil {
		m = &model.Metadatum{Provenance: s.provenance}
		m.Init(s.ids.Generate(), s.now())
		s.internMetadatum(m)
		strategy = "new"
	}
	s.logMatch(model.KindMetadatum, strategy, m.ID)

	m.Description = model.Clean(dto.Description)
	m.Language = model.Clean(dto.Language)
	m.Touch(s.now())

	if m.Identifiers, err = s.attachRef(ctx, m.Identifiers, m.Ref(), ref, model.IsIdentifiedBy); err != nil {
		return nil, err
	}
	return m, nil
}

// Statement reconciles a security and privacy statement, matched by title
// within the dataset.
func (s *Session) Statement(ds *model.Dataset, dto wire.Statement) *model.SecurityPrivacyStatement {
	title := model.Clean(dto.Title)
	if title == "" {
		return nil
	}

	var st *model.SecurityPrivacyStatement
	for _, existing := range ds.Statements {
		if model.SameKey(existing.Title, title) {
			st = existing
			break
		}
	}
	if st == nil {
		st = &model.SecurityPrivacyStatement{DatasetID: ds.ID}
		st.Init(s.ids.Generate(), s.now())
		ds.Statements = append(ds.Statements, st)
		s.logMatch(model.KindStatement, "new", st.ID)
	} else {
		s.logMatch(model.KindStatement, "title", st.ID)
	}

	st.Title = title
	st.Description = model.Clean(dto.Description)
	st.Provenance = s.provenance
	st.Touch(s.now())
	return st
}

// Resource reconciles a technical resource, matched by name within the
// dataset.
func (s *Session) Resource(ds *model.Dataset, dto wire.Resource) *model.TechnicalResource {
	title := model.Clean(dto.Label())
	if title == "" {
		return nil
	}

	var r *model.TechnicalResource
	for _, existing := range ds.Resources {
		if model.SameKey(existing.Title, title) {
			r = existing
			break
		}
	}
	if r == nil {
		r = &model.TechnicalResource{DatasetID: ds.ID}
		r.Init(s.ids.Generate(), s.now())
		ds.Resources = append(ds.Resources, r)
		s.logMatch(model.KindTechnicalResource, "new", r.ID)
	} else {
		s.logMatch(model.KindTechnicalResource, "title", r.ID)
	}

	r.Title = title
	r.Description = model.Clean(dto.Description)
	r.Provenance = s.provenance
	r.Touch(s.now())
	return r
}

// Cost reconciles a budget line, matched by title within the plan.
func (s *Session) Cost(plan *model.Plan, dto wire.Cost) *model.Cost {
	title := model.Clean(dto.Title)
	if title == "" {
		return nil
	}

	var c *model.Cost
	for _, existing := range plan.Costs {
		if model.SameKey(existing.Title, title) {
			c = existing
			break
		}
	}
	if c == nil {
		c = &model.Cost{PlanID: plan.ID}
		c.Init(s.ids.Generate(), s.now())
		plan.Costs = append(plan.Costs, c)
		s.logMatch(model.KindCost, "new", c.ID)
	} else {
		s.logMatch(model.KindCost, "title", c.ID)
	}

	c.Title = title
	c.Description = model.Clean(dto.Description)
	c.Value = dto.Value.Float()
	c.CurrencyCode = strings.ToUpper(model.Clean(dto.CurrencyCode))
	c.Provenance = s.provenance
	c.Touch(s.now())
	return c
}

func setIfPresent(dst *string, v string) {
	if v = model.Clean(v); v != "" {
		*dst = v
	}
}

// addName appends name to list unless it is blank, equal to primary or
// already present, all compared as natural keys.
func addName(list []string, primary, name string) []string {
	name = model.Clean(name)
	if name == "" || model.SameKey(name, primary) {
		return list
	}
	for _, existing := range list {
		if model.SameKey(existing, name) {
			return list
		}
	}
	return append(list, name)
}

func addStrings(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		present := false
		for _, existing := range list {
			if existing == v {
				present = true
				break
			}
		}
		if !present {
			list = append(list, v)
		}
	}
	return list
}
