package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dmpsync/internal/external"
	"github.com/roach88/dmpsync/internal/identifier"
	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/wire"
)

// DefaultLanguage is the plan language used when neither the document nor
// the stored plan has one.
const DefaultLanguage = "en"

// Finder reads the stored graph. *store.Store and *store.Tx satisfy it.
type Finder interface {
	identifier.Finder
	Affiliation(ctx context.Context, id string) (*model.Affiliation, error)
	AffiliationByName(ctx context.Context, name string) (*model.Affiliation, error)
	Contributor(ctx context.Context, id string) (*model.Contributor, error)
	ContributorByEmail(ctx context.Context, email string) (*model.Contributor, error)
	ContributorRoles(ctx context.Context, contributorID, excludePlanID string) ([]model.Role, error)
	Host(ctx context.Context, id string) (*model.Host, error)
	HostByTitle(ctx context.Context, title string) (*model.Host, error)
	Metadatum(ctx context.Context, id string) (*model.Metadatum, error)
	LoadPlan(ctx context.Context, id string) (*model.Plan, error)
	PlanByTitleAndContact(ctx context.Context, title, contributorID string) (string, error)
}

// MatchObserver is told about every match decision.
type MatchObserver interface {
	ObserveMatch(kind model.EntityKind, strategy string)
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the generator for new entity ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithNameSearch enables organization lookup by free text for affiliations
// that match nothing stored.
func WithNameSearch(n external.NameSearch) Option {
	return func(s *Session) {
		s.names = n
	}
}

// WithLogger sets the logger for match decisions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver reports match decisions to o.
func WithObserver(o MatchObserver) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// WithLanguage sets the default plan language.
func WithLanguage(lang string) Option {
	return func(s *Session) {
		if lang != "" {
			s.language = lang
		}
	}
}

// Session reconciles one document. It holds no state beyond the call:
// create a new Session for every document.
//
// Thread-safety: a Session is not safe for concurrent use.
type Session struct {
	finder     Finder
	provenance string
	resolver   *identifier.Resolver
	ids        IDGenerator
	now        func() time.Time
	names      external.NameSearch
	logger     *slog.Logger
	observer   MatchObserver
	language   string

	affiliations        map[string]*model.Affiliation
	affiliationsByKey   map[string]*model.Affiliation
	contributors        map[string]*model.Contributor
	contributorsByEmail map[string]*model.Contributor
	hosts               map[string]*model.Host
	hostsByKey          map[string]*model.Host
	metadata            map[string]*model.Metadatum
}

// NewSession creates a session reading from finder and tagging new records
// with provenance.
func NewSession(finder Finder, provenance string, opts ...Option) *Session {
	s := &Session{
		finder:     finder,
		provenance: provenance,
		ids:        UUIDv7Generator{},
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
		language:   DefaultLanguage,

		affiliations:        make(map[string]*model.Affiliation),
		affiliationsByKey:   make(map[string]*model.Affiliation),
		contributors:        make(map[string]*model.Contributor),
		contributorsByEmail: make(map[string]*model.Contributor),
		hosts:               make(map[string]*model.Host),
		hostsByKey:          make(map[string]*model.Host),
		metadata:            make(map[string]*model.Metadatum),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = identifier.NewResolver(finder, provenance, s.ids.Generate, s.now)
	return s
}

// Provenance returns the source tag of this session.
func (s *Session) Provenance() string { return s.provenance }

func (s *Session) logMatch(kind model.EntityKind, strategy, id string) {
	s.logger.Debug("reconciled", "kind", kind, "strategy", strategy, "id", id)
	if s.observer != nil {
		s.observer.ObserveMatch(kind, strategy)
	}
}

// attach resolves (typ, value) for owner and appends it to list. An
// identifier already owned by another entity is not attached. It returns
// the identifier as held in list, or nil.
func (s *Session) attach(ctx context.Context, list []*model.Identifier, owner model.OwnerRef, typ, value string, d model.Descriptor) ([]*model.Identifier, *model.Identifier, error) {
	id, err := s.resolver.Resolve(ctx, owner, owner.Kind, typ, value, d)
	if err != nil {
		return list, nil, err
	}
	if id == nil {
		return list, nil, nil
	}
	if id.Owner != owner {
		s.logger.Debug("identifier owned elsewhere",
			"category", id.Category,
			"value", id.Value,
			"owner", id.Owner.String(),
			"wanted", owner.String(),
		)
		return list, nil, nil
	}
	for _, existing := range list {
		if existing.Same(id) {
			return list, existing, nil
		}
	}
	return append(list, id), id, nil
}

func (s *Session) attachRef(ctx context.Context, list []*model.Identifier, owner model.OwnerRef, ref *wire.IDRef, d model.Descriptor) ([]*model.Identifier, error) {
	if ref.Empty() {
		return list, nil
	}
	list, _, err := s.attach(ctx, list, owner, ref.Type, ref.Identifier, d)
	return list, err
}

// lookup returns the identifiers with (typ, value) owned by an entity of
// kind, newest first.
func (s *Session) lookup(ctx context.Context, kind model.EntityKind, typ, value string) ([]*model.Identifier, error) {
	found, err := s.resolver.Lookup(ctx, kind, typ, value)
	if err != nil {
		return nil, fmt.Errorf("lookup %s by identifier: %w", kind, err)
	}
	return found, nil
}

func (s *Session) lookupRef(ctx context.Context, kind model.EntityKind, ref *wire.IDRef) ([]*model.Identifier, error) {
	if ref.Empty() {
		return nil, nil
	}
	return s.lookup(ctx, kind, ref.Type, ref.Identifier)
}

// Identity map. intern* return the canonical pointer for a row.

func (s *Session) internAffiliation(a *model.Affiliation) *model.Affiliation {
	if a == nil {
		return nil
	}
	if existing, ok := s.affiliations[a.ID]; ok {
		return existing
	}
	s.affiliations[a.ID] = a
	if k := model.NaturalKey(a.Name); k != "" {
		if _, ok := s.affiliationsByKey[k]; !ok {
			s.affiliationsByKey[k] = a
		}
	}
	return a
}

func (s *Session) internContributor(c *model.Contributor) *model.Contributor {
	if c == nil {
		return nil
	}
	if existing, ok := s.contributors[c.ID]; ok {
		return existing
	}
	c.Affiliation = s.internAffiliation(c.Affiliation)
	s.contributors[c.ID] = c
	s.indexContributorEmail(c)
	return c
}

func (s *Session) indexContributorEmail(c *model.Contributor) {
	if k := model.NaturalKey(c.Email); k != "" {
		if _, ok := s.contributorsByEmail[k]; !ok {
			s.contributorsByEmail[k] = c
		}
	}
}

func (s *Session) internHost(h *model.Host) *model.Host {
	if h == nil {
		return nil
	}
	if existing, ok := s.hosts[h.ID]; ok {
		return existing
	}
	s.hosts[h.ID] = h
	if k := model.NaturalKey(h.Title); k != "" {
		if _, ok := s.hostsByKey[k]; !ok {
			s.hostsByKey[k] = h
		}
	}
	return h
}

func (s *Session) internMetadatum(m *model.Metadatum) *model.Metadatum {
	if m == nil {
		return nil
	}
	if existing, ok := s.metadata[m.ID]; ok {
		return existing
	}
	s.metadata[m.ID] = m
	return m
}

// adoptPlan replaces the shared entities of a freshly loaded plan with the
// session's pointers, registering the ones it has not seen yet.
func (s *Session) adoptPlan(p *model.Plan) {
	for _, r := range p.Roles {
		r.Contributor = s.internContributor(r.Contributor)
	}
	for _, proj := range p.Projects {
		for _, f := range proj.Fundings {
			f.Affiliation = s.internAffiliation(f.Affiliation)
			for i, a := range f.FundedAffiliations {
				f.FundedAffiliations[i] = s.internAffiliation(a)
			}
		}
	}
	for _, d := range p.Datasets {
		for i, m := range d.Metadata {
			d.Metadata[i] = s.internMetadatum(m)
		}
		for _, dist := range d.Distributions {
			dist.Host = s.internHost(dist.Host)
		}
	}
}

// Loaders consult the identity map before the finder.

func (s *Session) loadAffiliation(ctx context.Context, id string) (*model.Affiliation, error) {
	if a, ok := s.affiliations[id]; ok {
		return a, nil
	}
	a, err := s.finder.Affiliation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load affiliation %s: %w", id, err)
	}
	return s.internAffiliation(a), nil
}

func (s *Session) affiliationByName(ctx context.Context, name string) (*model.Affiliation, error) {
	if a, ok := s.affiliationsByKey[model.NaturalKey(name)]; ok {
		return a, nil
	}
	a, err := s.finder.AffiliationByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find affiliation %q: %w", name, err)
	}
	return s.internAffiliation(a), nil
}

func (s *Session) loadContributor(ctx context.Context, id string) (*model.Contributor, error) {
	if c, ok := s.contributors[id]; ok {
		return c, nil
	}
	c, err := s.finder.Contributor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load contributor %s: %w", id, err)
	}
	return s.internContributor(c), nil
}

func (s *Session) contributorByEmail(ctx context.Context, email string) (*model.Contributor, error) {
	if c, ok := s.contributorsByEmail[model.NaturalKey(email)]; ok {
		return c, nil
	}
	c, err := s.finder.ContributorByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find contributor %q: %w", email, err)
	}
	return s.internContributor(c), nil
}

func (s *Session) loadHost(ctx context.Context, id string) (*model.Host, error) {
	if h, ok := s.hosts[id]; ok {
		return h, nil
	}
	h, err := s.finder.Host(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load host %s: %w", id, err)
	}
	return s.internHost(h), nil
}

func (s *Session) hostByTitle(ctx context.Context, title string) (*model.Host, error) {
	if h, ok := s.hostsByKey[model.NaturalKey(title)]; ok {
		return h, nil
	}
	h, err := s.finder.HostByTitle(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("find host %q: %w", title, err)
	}
	return s.internHost(h), nil
}

func (s *Session) loadMetadatum(ctx context.Context, id string) (*model.Metadatum, error) {
	if m, ok := s.metadata[id]; ok {
		return m, nil
	}
	m, err := s.finder.Metadatum(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load metadatum %s: %w", id, err)
	}
	return s.internMetadatum(m), nil
}
