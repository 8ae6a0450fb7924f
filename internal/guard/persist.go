package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/reconcile"
	"github.com/roach88/dmpsync/internal/store"
)

// AfterSave runs inside the persistence transaction once the graph is
// written. Returning an error rolls everything back.
type AfterSave func(ctx context.Context, tx *store.Tx, plan *model.Plan) error

type options struct {
	now       func() time.Time
	logger    *slog.Logger
	afterSave []AfterSave
}

// Option configures Persist.
type Option func(*options)

// WithAfterSave adds a hook run in the transaction after the graph is saved.
func WithAfterSave(fn AfterSave) Option {
	return func(o *options) {
		if fn != nil {
			o.afterSave = append(o.afterSave, fn)
		}
	}
}

// WithClock sets the time source for bookkeeping rows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger for adoption decisions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Persist validates g and saves it in one transaction. It returns
// Violations when the graph is invalid, in which case nothing is written.
// On success every entity of the graph is marked persisted.
func Persist(ctx context.Context, s *store.Store, g *reconcile.Graph, opts ...Option) error {
	o := &options{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if g == nil || g.Plan == nil {
		return Violations{{Message: "plan is missing", Code: ErrPlanTitleBlank}}
	}
	if v := Validate(g.Plan); len(v) > 0 {
		return v
	}

	w := &writer{opts: o}
	err := s.InTx(ctx, func(tx *store.Tx) error {
		w.tx = tx
		w.saved = w.saved[:0]
		if err := w.requery(ctx, g); err != nil {
			return err
		}
		if err := w.save(ctx, g); err != nil {
			return err
		}
		for _, fn := range o.afterSave {
			if err := fn(ctx, tx, g.Plan); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, b := range w.saved {
		b.Persisted = true
	}
	g.RemovedRoles = nil
	g.RemovedIdentifiers = nil
	return nil
}

// writer saves one graph inside a transaction.
type writer struct {
	tx    *store.Tx
	opts  *options
	saved []*model.Base
}

func (w *writer) mark(b *model.Base) {
	w.saved = append(w.saved, b)
}

// requery adopts rows of shared entities and identifiers stored after the
// graph was reconciled.
func (w *writer) requery(ctx context.Context, g *reconcile.Graph) error {
	for _, a := range g.Affiliations() {
		if a.Persisted {
			continue
		}
		stored, err := w.tx.AffiliationByName(ctx, a.Name)
		if err != nil {
			return err
		}
		if stored != nil && stored.ID != a.ID {
			w.opts.logger.Info("adopting stored affiliation", "name", a.Name, "id", stored.ID)
			adoptAffiliation(a, stored)
		}
	}
	for _, h := range g.Hosts() {
		if h.Persisted {
			continue
		}
		stored, err := w.tx.HostByTitle(ctx, h.Title)
		if err != nil {
			return err
		}
		if stored != nil && stored.ID != h.ID {
			w.opts.logger.Info("adopting stored host", "title", h.Title, "id", stored.ID)
			adoptHost(h, stored)
		}
	}
	for _, m := range g.Metadata() {
		if m.Persisted {
			continue
		}
		stored, err := w.storedMetadatum(ctx, m)
		if err != nil {
			return err
		}
		if stored != nil {
			w.opts.logger.Info("adopting stored metadata standard", "id", stored.ID)
			adoptMetadatum(m, stored)
		}
	}
	for _, c := range g.Contributors() {
		if c.Persisted || c.Email == "" {
			continue
		}
		stored, err := w.tx.ContributorByEmail(ctx, c.Email)
		if err != nil {
			return err
		}
		if stored != nil && stored.ID != c.ID {
			w.opts.logger.Info("adopting stored contributor", "email", c.Email, "id", stored.ID)
			adoptContributor(c, stored)
		}
	}
	return w.requeryIdentifiers(ctx, g)
}

func (w *writer) storedMetadatum(ctx context.Context, m *model.Metadatum) (*model.Metadatum, error) {
	for _, id := range m.Identifiers {
		found, err := w.tx.FindIdentifiers(ctx, id.Category, id.Value)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if f.Owner.Kind == model.KindMetadatum && f.Owner.ID != m.ID {
				return w.tx.Metadatum(ctx, f.Owner.ID)
			}
		}
	}
	return nil, nil
}

// requeryIdentifiers matches new identifiers against rows stored since
// reconciliation. A row with the same owner is adopted; a globally unique
// value claimed by another owner is dropped from the graph.
func (w *writer) requeryIdentifiers(ctx context.Context, g *reconcile.Graph) error {
	drop := make(map[*model.Identifier]bool)
	for _, id := range g.Identifiers() {
		if id.Persisted {
			continue
		}
		found, err := w.tx.FindIdentifiers(ctx, id.Category, id.Value)
		if err != nil {
			return err
		}
		for _, f := range found {
			if f.ID == id.ID {
				continue
			}
			switch {
			case f.Owner == id.Owner && (id.Category.GloballyUnique() || f.Provenance == id.Provenance):
				id.ID = f.ID
				id.CreatedAt = f.CreatedAt
			case id.Category.GloballyUnique():
				w.opts.logger.Warn("identifier claimed by another owner",
					"category", id.Category,
					"value", id.Value,
					"owner", f.Owner.String(),
				)
				drop[id] = true
			}
		}
	}
	if len(drop) > 0 {
		dropIdentifiers(g, drop)
	}
	return nil
}

func dropIdentifiers(g *reconcile.Graph, drop map[*model.Identifier]bool) {
	filter := func(list []*model.Identifier) []*model.Identifier {
		out := list[:0]
		for _, id := range list {
			if !drop[id] {
				out = append(out, id)
			}
		}
		return out
	}
	for _, a := range g.Affiliations() {
		a.Identifiers = filter(a.Identifiers)
	}
	for _, h := range g.Hosts() {
		h.Identifiers = filter(h.Identifiers)
	}
	for _, m := range g.Metadata() {
		m.Identifiers = filter(m.Identifiers)
	}
	for _, c := range g.Contributors() {
		c.Identifiers = filter(c.Identifiers)
	}
	g.Plan.Identifiers = filter(g.Plan.Identifiers)
	for _, p := range g.Plan.Projects {
		for _, f := range p.Fundings {
			f.Identifiers = filter(f.Identifiers)
		}
	}
	for _, d := range g.Plan.Datasets {
		d.Identifiers = filter(d.Identifiers)
	}
}

// Adoption keeps the in-memory pointer, so every reference in the graph
// follows, and takes the stored row's identity.

func adoptAffiliation(a, stored *model.Affiliation) {
	old := a.Ref()
	a.ID, a.CreatedAt, a.Persisted = stored.ID, stored.CreatedAt, false
	a.Provenance = stored.Provenance
	a.Name = stored.Name
	for _, n := range stored.AlternateNames {
		a.AlternateNames = appendMissing(a.AlternateNames, n)
	}
	for _, t := range stored.Types {
		a.Types = appendMissing(a.Types, t)
	}
	for k, v := range stored.Attributes {
		if a.Attributes == nil {
			a.Attributes = make(map[string]string)
		}
		if _, ok := a.Attributes[k]; !ok {
			a.Attributes[k] = v
		}
	}
	a.Identifiers = reown(a.Identifiers, stored.Identifiers, old, a.Ref())
}

func adoptHost(h, stored *model.Host) {
	old := h.Ref()
	h.ID, h.CreatedAt, h.Persisted = stored.ID, stored.CreatedAt, false
	h.Provenance = stored.Provenance
	h.Title = stored.Title
	h.Identifiers = reown(h.Identifiers, stored.Identifiers, old, h.Ref())
}

func adoptMetadatum(m, stored *model.Metadatum) {
	old := m.Ref()
	m.ID, m.CreatedAt, m.Persisted = stored.ID, stored.CreatedAt, false
	m.Provenance = stored.Provenance
	if m.Description == "" {
		m.Description = stored.Description
	}
	if m.Language == "" {
		m.Language = stored.Language
	}
	m.Identifiers = reown(m.Identifiers, stored.Identifiers, old, m.Ref())
}

func adoptContributor(c, stored *model.Contributor) {
	old := c.Ref()
	c.ID, c.CreatedAt, c.Persisted = stored.ID, stored.CreatedAt, false
	c.Provenance = stored.Provenance
	if c.Name == "" {
		c.Name = stored.Name
	}
	if c.Affiliation == nil {
		c.Affiliation = stored.Affiliation
	}
	c.Identifiers = reown(c.Identifiers, stored.Identifiers, old, c.Ref())
}

// reown moves identifiers from old to owner and drops those the stored
// row already carries.
func reown(list, stored []*model.Identifier, old, owner model.OwnerRef) []*model.Identifier {
	out := make([]*model.Identifier, 0, len(list)+len(stored))
	out = append(out, stored...)
	for _, id := range list {
		if id.Owner == old {
			id.Owner = owner
		}
		out, _ = model.AttachIdentifier(out, id)
	}
	return out
}

func appendMissing(list []string, s string) []string {
	for _, existing := range list {
		if model.SameKey(existing, s) {
			return list
		}
	}
	return append(list, s)
}

// save writes the graph parents first.
func (w *writer) save(ctx context.Context, g *reconcile.Graph) error {
	tx := w.tx
	plan := g.Plan
	now := w.opts.now()

	if err := tx.UpsertProvenance(ctx, plan.Provenance, now); err != nil {
		return err
	}

	for _, a := range g.Affiliations() {
		if err := tx.SaveAffiliation(ctx, a); err != nil {
			return err
		}
		w.mark(&a.Base)
	}
	for _, h := range g.Hosts() {
		if err := tx.SaveHost(ctx, h); err != nil {
			return err
		}
		w.mark(&h.Base)
	}
	for _, m := range g.Metadata() {
		if err := tx.SaveMetadatum(ctx, m); err != nil {
			return err
		}
		w.mark(&m.Base)
	}
	for _, c := range g.Contributors() {
		if err := tx.SaveContributor(ctx, c); err != nil {
			return err
		}
		w.mark(&c.Base)
	}

	if err := tx.SavePlan(ctx, plan); err != nil {
		return err
	}
	w.mark(&plan.Base)

	for _, p := range plan.Projects {
		if err := tx.SaveProject(ctx, p); err != nil {
			return err
		}
		w.mark(&p.Base)
		for _, f := range p.Fundings {
			if err := tx.SaveFunding(ctx, f); err != nil {
				return err
			}
			w.mark(&f.Base)
			for _, a := range f.FundedAffiliations {
				if err := tx.LinkFundedAffiliation(ctx, f.ID, a.ID, now); err != nil {
					return err
				}
			}
		}
	}

	// Deletions run before role links are saved: a replaced primary
	// contact must be gone before its successor is inserted.
	for _, r := range g.RemovedRoles {
		if err := tx.DeleteRole(ctx, r.ID); err != nil {
			return err
		}
	}
	for _, id := range g.RemovedIdentifiers {
		if err := tx.DeleteIdentifier(ctx, id.ID); err != nil {
			return err
		}
	}

	for _, r := range plan.Roles {
		if err := tx.SaveRole(ctx, r); err != nil {
			return err
		}
		w.mark(&r.Base)
	}
	for _, c := range plan.Costs {
		if err := tx.SaveCost(ctx, c); err != nil {
			return err
		}
		w.mark(&c.Base)
	}

	for _, d := range plan.Datasets {
		if err := w.saveDataset(ctx, d); err != nil {
			return err
		}
	}

	for _, id := range g.Identifiers() {
		if err := tx.SaveIdentifier(ctx, id); err != nil {
			return err
		}
		w.mark(&id.Base)
	}
	return nil
}

func (w *writer) saveDataset(ctx context.Context, d *model.Dataset) error {
	tx := w.tx
	if err := tx.SaveDataset(ctx, d); err != nil {
		return err
	}
	w.mark(&d.Base)

	if err := tx.ReplaceKeywords(ctx, d.ID, d.Keywords); err != nil {
		return err
	}
	for i, m := range d.Metadata {
		if err := tx.LinkMetadatum(ctx, d.ID, m.ID, i); err != nil {
			return err
		}
	}
	for _, s := range d.Statements {
		if err := tx.SaveStatement(ctx, s); err != nil {
			return err
		}
		w.mark(&s.Base)
	}
	for _, r := range d.Resources {
		if err := tx.SaveResource(ctx, r); err != nil {
			return err
		}
		w.mark(&r.Base)
	}
	for _, dist := range d.Distributions {
		if err := tx.SaveDistribution(ctx, dist); err != nil {
			return fmt.Errorf("dataset %s: %w", d.ID, err)
		}
		w.mark(&dist.Base)
		for _, l := range dist.Licenses {
			if err := tx.SaveLicense(ctx, l); err != nil {
				return err
			}
			w.mark(&l.Base)
		}
	}
	return nil
}
