package identifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/dmpsync/internal/model"
)

// Finder reads stored identifiers. *store.Store and *store.Tx satisfy it.
type Finder interface {
	FindIdentifiers(ctx context.Context, category model.Category, value string) ([]*model.Identifier, error)
}

// Resolver finds or initializes identifier records for one reconciliation
// call.
//
// Thread-safety: a Resolver is not safe for concurrent use; reconciliation
// of one document is single-threaded.
type Resolver struct {
	finder     Finder
	provenance string
	newID      func() string
	now        func() time.Time

	// pending holds identifiers initialized by this resolver and not yet
	// persisted, in creation order.
	pending []*model.Identifier
}

// NewResolver creates a resolver tagging new identifiers with provenance.
func NewResolver(finder Finder, provenance string, newID func() string, now func() time.Time) *Resolver {
	return &Resolver{
		finder:     finder,
		provenance: provenance,
		newID:      newID,
		now:        now,
	}
}

// Resolve finds the identifier for (typ, value) on behalf of owner, or
// initializes a new unpersisted one bound to owner.
//
// It returns nil when typ or value is blank. For globally unique categories
// the match may belong to a different owner; callers must compare
// result.Owner with owner before attaching. A found identifier is returned
// as stored; its value is never rewritten.
func (r *Resolver) Resolve(ctx context.Context, owner model.OwnerRef, hint model.EntityKind, typ, value string, d model.Descriptor) (*model.Identifier, error) {
	typ, value = strings.TrimSpace(typ), strings.TrimSpace(value)
	if typ == "" || value == "" {
		return nil, nil
	}
	category := Classify(typ, value)

	if !category.GloballyUnique() && owner.IsZero() {
		// Scoped identifiers only exist relative to an owner.
		return nil, nil
	}

	candidates, err := r.candidates(ctx, category, value)
	if err != nil {
		return nil, err
	}

	if category.GloballyUnique() {
		if found := prefer(candidates, owner, hint); found != nil {
			return found, nil
		}
	} else {
		for _, c := range candidates {
			if c.Owner == owner && c.Provenance == r.provenance {
				return c, nil
			}
		}
	}

	if owner.IsZero() {
		return nil, nil
	}
	return r.initialize(owner, category, value, d), nil
}

// Lookup returns the identifiers with (typ, value) whose owner is of the
// given kind, newest first. Scoped categories only match identifiers of
// this resolver's provenance. It is used to find an entity by identifier
// before the entity itself is known.
func (r *Resolver) Lookup(ctx context.Context, kind model.EntityKind, typ, value string) ([]*model.Identifier, error) {
	typ, value = strings.TrimSpace(typ), strings.TrimSpace(value)
	if typ == "" || value == "" {
		return nil, nil
	}
	category := Classify(typ, value)

	candidates, err := r.candidates(ctx, category, value)
	if err != nil {
		return nil, err
	}
	var out []*model.Identifier
	for _, c := range candidates {
		if c.Owner.Kind != kind {
			continue
		}
		if !category.GloballyUnique() && c.Provenance != r.provenance {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Pending returns the identifiers initialized by this resolver.
func (r *Resolver) Pending() []*model.Identifier {
	return r.pending
}

// candidates merges pending and stored identifiers for (category, value),
// newest first with ties broken by id descending.
func (r *Resolver) candidates(ctx context.Context, category model.Category, value string) ([]*model.Identifier, error) {
	stored, err := r.finder.FindIdentifiers(ctx, category, value)
	if err != nil {
		return nil, fmt.Errorf("find identifiers (%s, %s): %w", category, value, err)
	}

	seen := make(map[string]bool, len(stored))
	var out []*model.Identifier
	for _, p := range r.pending {
		if p.Category == category && p.Value == value {
			out = append(out, p)
			seen[p.ID] = true
		}
	}
	for _, s := range stored {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// prefer picks among globally unique matches: the given owner, then an
// owner of the hinted kind, then the newest match.
func prefer(candidates []*model.Identifier, owner model.OwnerRef, hint model.EntityKind) *model.Identifier {
	if len(candidates) == 0 {
		return nil
	}
	if !owner.IsZero() {
		for _, c := range candidates {
			if c.Owner == owner {
				return c
			}
		}
	}
	if hint != "" {
		for _, c := range candidates {
			if c.Owner.Kind == hint {
				return c
			}
		}
	}
	return candidates[0]
}

func (r *Resolver) initialize(owner model.OwnerRef, category model.Category, value string, d model.Descriptor) *model.Identifier {
	if d == "" {
		d = model.IsIdentifiedBy
	}
	id := &model.Identifier{
		Category:   category,
		Descriptor: d,
		Value:      value,
		Owner:      owner,
		Provenance: r.provenance,
	}
	id.Init(r.newID(), r.now())
	r.pending = append(r.pending, id)
	return id
}
