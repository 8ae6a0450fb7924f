package reconcile

import "github.com/roach88/dmpsync/internal/model"

// Graph is the result of reconciling one document: the plan with every
// entity reachable from it, plus the stored rows the document no longer
// lists.
type Graph struct {
	Plan *model.Plan

	// RemovedRoles are persisted role links dropped from the plan.
	RemovedRoles []*model.ContributorRole

	// RemovedIdentifiers are persisted plan identifiers absent from the
	// document's related identifiers.
	RemovedIdentifiers []*model.Identifier
}

func (g *Graph) removeRole(r *model.ContributorRole) {
	if r.Persisted {
		g.RemovedRoles = append(g.RemovedRoles, r)
	}
}

func (g *Graph) removeIdentifier(id *model.Identifier) {
	if id.Persisted {
		g.RemovedIdentifiers = append(g.RemovedIdentifiers, id)
	}
}

// Contributors returns the contributors linked to the plan, in role order,
// followed by stored contributors that lost their last link to it, without
// duplicates.
func (g *Graph) Contributors() []*model.Contributor {
	var out []*model.Contributor
	seen := make(map[*model.Contributor]bool)
	for _, r := range g.Plan.Roles {
		if r.Contributor != nil && !seen[r.Contributor] {
			seen[r.Contributor] = true
			out = append(out, r.Contributor)
		}
	}
	for _, r := range g.RemovedRoles {
		if r.Contributor != nil && !seen[r.Contributor] {
			seen[r.Contributor] = true
			out = append(out, r.Contributor)
		}
	}
	return out
}

// Affiliations returns every affiliation reachable from the plan:
// contributor affiliations first, then funders and funded affiliations.
func (g *Graph) Affiliations() []*model.Affiliation {
	var out []*model.Affiliation
	seen := make(map[*model.Affiliation]bool)
	add := func(a *model.Affiliation) {
		if a != nil && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, c := range g.Contributors() {
		add(c.Affiliation)
	}
	for _, p := range g.Plan.Projects {
		for _, f := range p.Fundings {
			add(f.Affiliation)
			for _, a := range f.FundedAffiliations {
				add(a)
			}
		}
	}
	return out
}

// Hosts returns the hosts of all distributions, without duplicates.
func (g *Graph) Hosts() []*model.Host {
	var out []*model.Host
	seen := make(map[*model.Host]bool)
	for _, d := range g.Plan.Datasets {
		for _, dist := range d.Distributions {
			if dist.Host != nil && !seen[dist.Host] {
				seen[dist.Host] = true
				out = append(out, dist.Host)
			}
		}
	}
	return out
}

// Metadata returns the metadata standards of all datasets, without
// duplicates.
func (g *Graph) Metadata() []*model.Metadatum {
	var out []*model.Metadatum
	seen := make(map[*model.Metadatum]bool)
	for _, d := range g.Plan.Datasets {
		for _, m := range d.Metadata {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// Identifiers returns every identifier attached to an entity of the graph.
func (g *Graph) Identifiers() []*model.Identifier {
	var out []*model.Identifier
	seen := make(map[*model.Identifier]bool)
	add := func(list []*model.Identifier) {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	for _, a := range g.Affiliations() {
		add(a.Identifiers)
	}
	for _, h := range g.Hosts() {
		add(h.Identifiers)
	}
	for _, m := range g.Metadata() {
		add(m.Identifiers)
	}
	for _, c := range g.Contributors() {
		add(c.Identifiers)
	}
	add(g.Plan.Identifiers)
	for _, p := range g.Plan.Projects {
		for _, f := range p.Fundings {
			add(f.Identifiers)
		}
	}
	for _, d := range g.Plan.Datasets {
		add(d.Identifiers)
	}
	return out
}
