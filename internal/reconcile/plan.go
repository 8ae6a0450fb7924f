package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/wire"
)

// Plan reconciles a whole document and returns the resulting graph. It
// returns an *InvalidDocumentError when the document lacks a title, a
// dmp_id or a reachable contact.
func (s *Session) Plan(ctx context.Context, doc *wire.Document) (*Graph, error) {
	if doc == nil {
		return nil, &InvalidDocumentError{Reasons: []string{"document is empty"}}
	}
	if reasons := doc.Problems(); len(reasons) > 0 {
		return nil, &InvalidDocumentError{Reasons: reasons}
	}
	g := &Graph{}

	plan, err := s.matchPlan(ctx, doc)
	if err != nil {
		return nil, err
	}
	contact, err := s.Contributor(ctx, doc.Contact.Person())
	if err != nil {
		return nil, fmt.Errorf("reconcile contact: %w", err)
	}
	if contact == nil {
		return nil, errors.New("reconcile contact: contact matched nothing")
	}
	if plan == nil {
		if plan, err = s.planByContact(ctx, doc, contact); err != nil {
			return nil, err
		}
	}
	if plan == nil {
		plan = &model.Plan{Provenance: s.provenance}
		plan.Init(s.ids.Generate(), s.now())
		s.logMatch(model.KindPlan, "new", plan.ID)
	}
	g.Plan = plan

	plan.Title = model.Clean(doc.Title)
	plan.Description = model.Clean(doc.Description)
	if lang := model.Clean(doc.Language); lang != "" {
		plan.Language = lang
	} else if plan.Language == "" {
		plan.Language = s.language
	}
	plan.EthicalIssues = model.ParseFlag(doc.EthicalIssuesExist)
	plan.EthicalIssuesDescription = model.Clean(doc.EthicalIssuesDescription)
	plan.EthicalIssuesReport = model.Clean(doc.EthicalIssuesReport)
	plan.Provenance = s.provenance
	plan.Touch(s.now())

	var dmpID *model.Identifier
	if plan.Identifiers, dmpID, err = s.attach(ctx, plan.Identifiers, plan.Ref(), doc.DMPID.Type, doc.DMPID.Identifier, model.IdentifiedBy); err != nil {
		return nil, err
	}

	s.contactRole(g, contact)

	for _, pd := range doc.Projects {
		if _, err := s.Project(ctx, plan, pd); err != nil {
			return nil, fmt.Errorf("reconcile project %q: %w", pd.Title, err)
		}
	}
	if len(plan.Projects) == 0 {
		s.defaultProject(plan)
	}

	if err := s.contributorRoles(ctx, g, doc.Contributors, contact); err != nil {
		return nil, err
	}

	for _, cd := range doc.Costs {
		s.Cost(plan, cd)
	}

	for _, dd := range doc.Datasets {
		if _, err := s.Dataset(ctx, plan, dd); err != nil {
			return nil, fmt.Errorf("reconcile dataset %q: %w", dd.Title, err)
		}
	}
	if len(plan.Datasets) == 0 {
		s.defaultDataset(plan)
	}

	if err := s.relatedIdentifiers(ctx, g, doc.RelatedIdentifiers, dmpID); err != nil {
		return nil, err
	}
	return g, nil
}

// matchPlan finds the stored plan owning the document's dmp_id.
func (s *Session) matchPlan(ctx context.Context, doc *wire.Document) (*model.Plan, error) {
	found, err := s.lookupRef(ctx, model.KindPlan, doc.DMPID)
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		plan, err := s.loadPlan(ctx, id.Owner.ID)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			s.logMatch(model.KindPlan, "identifier", plan.ID)
			return plan, nil
		}
	}
	return nil, nil
}

// planByContact finds a stored plan with the document's title whose
// primary contact is contact.
func (s *Session) planByContact(ctx context.Context, doc *wire.Document, contact *model.Contributor) (*model.Plan, error) {
	if !contact.Persisted {
		return nil, nil
	}
	id, err := s.finder.PlanByTitleAndContact(ctx, model.Clean(doc.Title), contact.ID)
	if err != nil {
		return nil, fmt.Errorf("find plan by title and contact: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	plan, err := s.loadPlan(ctx, id)
	if err != nil || plan == nil {
		return nil, err
	}
	s.logMatch(model.KindPlan, "title_contact", plan.ID)
	return plan, nil
}

func (s *Session) loadPlan(ctx context.Context, id string) (*model.Plan, error) {
	plan, err := s.finder.LoadPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", id, err)
	}
	if plan != nil {
		s.adoptPlan(plan)
	}
	return plan, nil
}

// contactRole keeps the primary_contact link when the contact is
// unchanged and replaces it otherwise.
func (s *Session) contactRole(g *Graph, contact *model.Contributor) {
	plan := g.Plan
	if existing := plan.ContactRole(); existing != nil {
		if existing.Contributor != nil && existing.Contributor.ID == contact.ID {
			existing.Contributor = contact
			existing.Touch(s.now())
			s.logMatch(model.KindContributorRole, "contact", existing.ID)
			return
		}
		plan.Roles = removeRole(plan.Roles, existing)
		g.removeRole(existing)
	}
	r := s.newRole(plan, contact, model.RolePrimaryContact)
	s.logMatch(model.KindContributorRole, "new", r.ID)
}

func (s *Session) newRole(plan *model.Plan, c *model.Contributor, role model.Role) *model.ContributorRole {
	r := &model.ContributorRole{
		PlanID:      plan.ID,
		Role:        role,
		Provenance:  s.provenance,
		Contributor: c,
	}
	r.Init(s.ids.Generate(), s.now())
	plan.Roles = append(plan.Roles, r)
	return r
}

// contributorRoles makes the plan's non-contact role links equal to the
// (contributor, role) pairs of the document.
func (s *Session) contributorRoles(ctx context.Context, g *Graph, dtos []wire.Contributor, contact *model.Contributor) error {
	plan := g.Plan

	type pair struct {
		c    *model.Contributor
		role model.Role
	}
	var wanted []pair
	seen := make(map[string]bool)
	tags := map[*model.Contributor]map[model.Role]bool{
		contact: {model.RolePrimaryContact: true},
	}

	for _, dto := range dtos {
		c, err := s.Contributor(ctx, dto)
		if err != nil {
			return fmt.Errorf("reconcile contributor %q: %w", dto.Name, err)
		}
		if c == nil {
			continue
		}
		for _, raw := range dto.Role {
			role, ok := model.ParseRole(raw)
			if !ok || role == model.RolePrimaryContact {
				if !ok {
					s.logger.Debug("ignoring unknown role", "contributor", c.ID, "role", raw)
				}
				continue
			}
			if tags[c] == nil {
				tags[c] = make(map[model.Role]bool)
			}
			tags[c][role] = true

			key := c.ID + "|" + string(role)
			if seen[key] {
				continue
			}
			seen[key] = true
			wanted = append(wanted, pair{c: c, role: role})
		}
	}

	// Drop stale links; keep the ones the document still lists.
	kept := plan.Roles[:0]
	have := make(map[string]bool)
	for _, r := range plan.Roles {
		if r.Role == model.RolePrimaryContact {
			kept = append(kept, r)
			continue
		}
		key := r.Contributor.ID + "|" + string(r.Role)
		if !seen[key] || have[key] {
			g.removeRole(r)
			continue
		}
		have[key] = true
		r.Touch(s.now())
		kept = append(kept, r)
	}
	plan.Roles = kept

	for _, p := range wanted {
		key := p.c.ID + "|" + string(p.role)
		if have[key] {
			continue
		}
		r := s.newRole(plan, p.c, p.role)
		s.logMatch(model.KindContributorRole, "new", r.ID)
	}

	// A contributor's role tags are the union over every plan it is linked
	// to, including those that just lost a link here.
	for _, r := range g.RemovedRoles {
		if r.Contributor != nil && tags[r.Contributor] == nil {
			tags[r.Contributor] = make(map[model.Role]bool)
		}
	}
	for c, roles := range tags {
		if c.Persisted {
			others, err := s.finder.ContributorRoles(ctx, c.ID, plan.ID)
			if err != nil {
				return fmt.Errorf("load roles of contributor %s: %w", c.ID, err)
			}
			for _, role := range others {
				roles[role] = true
			}
		}
		c.Roles = c.Roles[:0]
		for role := range roles {
			c.Roles = append(c.Roles, role)
		}
		sort.Slice(c.Roles, func(i, j int) bool { return c.Roles[i] < c.Roles[j] })
	}
	return nil
}

func removeRole(list []*model.ContributorRole, r *model.ContributorRole) []*model.ContributorRole {
	out := list[:0]
	for _, existing := range list {
		if existing != r {
			out = append(out, existing)
		}
	}
	return out
}

// relatedIdentifiers makes the plan's identifiers match the document's
// related identifiers. The dmp_id, identifiers the plan is identified by
// and dataset identifiers are never removed.
func (s *Session) relatedIdentifiers(ctx context.Context, g *Graph, dtos []wire.RelatedIdentifier, dmpID *model.Identifier) error {
	plan := g.Plan
	keep := make(map[*model.Identifier]bool)

	for _, dto := range dtos {
		d := model.ParseDescriptor(dto.Relation())
		var (
			id  *model.Identifier
			err error
		)
		plan.Identifiers, id, err = s.attach(ctx, plan.Identifiers, plan.Ref(), dto.Type, dto.Identifier, d)
		if err != nil {
			return fmt.Errorf("reconcile related identifier %q: %w", dto.Identifier, err)
		}
		if id == nil || s.protected(plan, id, dmpID) {
			continue
		}
		keep[id] = true
		id.Descriptor = d
		if wt := model.Clean(dto.WorkType); wt != "" {
			id.WorkType = wt
		}
		id.Touch(s.now())
	}

	kept := plan.Identifiers[:0]
	for _, id := range plan.Identifiers {
		if keep[id] || s.protected(plan, id, dmpID) {
			kept = append(kept, id)
			continue
		}
		g.removeIdentifier(id)
	}
	plan.Identifiers = kept
	return nil
}

func (s *Session) protected(plan *model.Plan, id, dmpID *model.Identifier) bool {
	if dmpID != nil && id.Same(dmpID) {
		return true
	}
	if id.Descriptor == model.IdentifiedBy {
		return true
	}
	for _, d := range plan.Datasets {
		for _, di := range d.Identifiers {
			if id.Same(di) {
				return true
			}
		}
	}
	return false
}
