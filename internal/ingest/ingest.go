// Package ingest runs the submission pipeline: parse, reconcile, persist
// with an audit row, then mint a DOI and archive the payload.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/dmpsync/internal/archive"
	"github.com/roach88/dmpsync/internal/external"
	"github.com/roach88/dmpsync/internal/guard"
	"github.com/roach88/dmpsync/internal/metrics"
	"github.com/roach88/dmpsync/internal/model"
	"github.com/roach88/dmpsync/internal/reconcile"
	"github.com/roach88/dmpsync/internal/store"
	"github.com/roach88/dmpsync/internal/wire"
)

// DefaultProvenance tags submissions that name no source.
const DefaultProvenance = "dmptool"

// Result describes an accepted submission.
type Result struct {
	PlanID       string           `json:"plan_id"`
	SubmissionID string           `json:"submission_id"`
	Provenance   string           `json:"provenance"`
	PayloadHash  string           `json:"payload_hash"`
	DOI          string           `json:"doi,omitempty"`
	Minted       bool             `json:"minted"`
	Archive      *archive.Info    `json:"archive,omitempty"`
	Graph        *reconcile.Graph `json:"-"`
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithMinter mints a DOI for plans saved without one.
func WithMinter(m external.Minter) Option {
	return func(i *Ingester) { i.minter = m }
}

// WithNameSearch enables free-text organization lookup.
func WithNameSearch(n external.NameSearch) Option {
	return func(i *Ingester) { i.names = n }
}

// WithArchive copies accepted payloads to a.
func WithArchive(a archive.Store) Option {
	return func(i *Ingester) { i.archive = a }
}

// WithMetrics records outcomes and match decisions on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(i *Ingester) { i.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithClock sets the time source for new records.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) {
		if now != nil {
			i.now = now
		}
	}
}

// WithIDGenerator sets the generator for new ids.
func WithIDGenerator(g reconcile.IDGenerator) Option {
	return func(i *Ingester) {
		if g != nil {
			i.ids = g
		}
	}
}

// WithDefaultProvenance sets the provenance used when a submission names none.
func WithDefaultProvenance(p string) Option {
	return func(i *Ingester) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			i.provenance = p
		}
	}
}

// WithLanguage sets the default plan language.
func WithLanguage(lang string) Option {
	return func(i *Ingester) { i.language = lang }
}

// Ingester accepts DMP documents into a store.
//
// Thread-safety: Submit may be called concurrently; each call reconciles in
// its own session and the store serializes writes.
type Ingester struct {
	store      *store.Store
	minter     external.Minter
	names      external.NameSearch
	archive    archive.Store
	metrics    *metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
	ids        reconcile.IDGenerator
	provenance string
	language   string
}

// New creates an Ingester writing to s.
func New(s *store.Store, opts ...Option) *Ingester {
	i := &Ingester{
		store:      s,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		ids:        reconcile.UUIDv7Generator{},
		provenance: DefaultProvenance,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NormalizeProvenance lower-cases p and falls back to def when it is blank.
func NormalizeProvenance(p, def string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return def
	}
	return p
}

// Submit reconciles payload and saves the result. The submission audit row
// is written in the same transaction as the graph. Minting and archiving
// run after commit: their errors are returned together with the Result of
// the saved plan.
func (i *Ingester) Submit(ctx context.Context, provenance string, payload []byte) (*Result, error) {
	start := time.Now()
	prov := NormalizeProvenance(provenance, i.provenance)

	res, err := i.process(ctx, prov, payload, true)
	if err != nil {
		i.observe(prov, err, start)
		i.logger.Warn("submission rejected", "provenance", prov, "error", err)
		return nil, err
	}

	err = i.finish(ctx, res, payload)
	i.observe(prov, err, start)
	i.logger.Info("submission accepted",
		"plan", res.PlanID,
		"submission", res.SubmissionID,
		"provenance", prov,
		"minted", res.Minted,
	)
	return res, err
}

// Check parses and reconciles payload and validates the graph without
// writing anything.
func (i *Ingester) Check(ctx context.Context, provenance string, payload []byte) (*reconcile.Graph, error) {
	prov := NormalizeProvenance(provenance, i.provenance)
	g, _, err := i.reconcile(ctx, prov, payload)
	if err != nil {
		return nil, err
	}
	if v := guard.Validate(g.Plan); len(v) > 0 {
		return g, newError(ErrCodeInvalidGraph, "graph failed validation", v)
	}
	return g, nil
}

func (i *Ingester) reconcile(ctx context.Context, prov string, payload []byte) (*reconcile.Graph, string, error) {
	hash, err := model.PayloadHash(payload)
	if err != nil {
		return nil, "", newError(ErrCodeInvalidPayload, "payload is not JSON", err)
	}
	doc, err := wire.Parse(payload)
	if err != nil {
		var se *wire.SchemaError
		if errors.As(err, &se) {
			return nil, "", newError(ErrCodeInvalidPayload, "payload does not match the DMP schema", err)
		}
		return nil, "", newError(ErrCodeInvalidPayload, "parse payload", err)
	}

	opts := []reconcile.Option{
		reconcile.WithClock(i.now),
		reconcile.WithIDGenerator(i.ids),
		reconcile.WithLogger(i.logger),
		reconcile.WithLanguage(i.language),
	}
	if i.names != nil {
		opts = append(opts, reconcile.WithNameSearch(i.names))
	}
	if i.metrics != nil {
		opts = append(opts, reconcile.WithObserver(i.metrics))
	}
	g, err := reconcile.NewSession(i.store, prov, opts...).Plan(ctx, doc)
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidDocument) {
			return nil, "", newError(ErrCodeInvalidDocument, "document cannot be reconciled", err)
		}
		return nil, "", newError(ErrCodeStorage, "reconcile", err)
	}
	return g, hash, nil
}

// process reconciles and persists one payload. record controls whether an
// audit row is appended.
func (i *Ingester) process(ctx context.Context, prov string, payload []byte, record bool) (*Result, error) {
	g, hash, err := i.reconcile(ctx, prov, payload)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Provenance:  prov,
		PayloadHash: hash,
		Graph:       g,
	}
	opts := []guard.Option{guard.WithClock(i.now), guard.WithLogger(i.logger)}
	if record {
		res.SubmissionID = i.ids.Generate()
		opts = append(opts, guard.WithAfterSave(func(ctx context.Context, tx *store.Tx, p *model.Plan) error {
			return tx.WriteSubmission(ctx, store.Submission{
				ID:          res.SubmissionID,
				PlanID:      p.ID,
				Provenance:  prov,
				PayloadHash: hash,
				Payload:     payload,
				CreatedAt:   i.now(),
			})
		}))
	}

	if err := guard.Persist(ctx, i.store, g, opts...); err != nil {
		var v guard.Violations
		if errors.As(err, &v) {
			if i.metrics != nil {
				for _, x := range v {
					i.metrics.ObserveViolation(x.Code)
				}
			}
			return nil, newError(ErrCodeInvalidGraph, "graph failed validation", err)
		}
		return nil, newError(ErrCodeStorage, "persist", err)
	}

	res.PlanID = g.Plan.ID
	if doi := g.Plan.DOI(); doi != nil {
		res.DOI = doi.Value
	}
	return res, nil
}

// finish runs the post-commit steps.
func (i *Ingester) finish(ctx context.Context, res *Result, payload []byte) error {
	var errs []error
	if err := i.mint(ctx, res); err != nil {
		errs = append(errs, err)
	}
	if i.archive != nil {
		info, err := i.archive.Put(ctx, archive.Key(res.Provenance, res.PayloadHash), payload)
		if err != nil {
			errs = append(errs, newError(ErrCodeArchive, "archive payload", err))
		} else {
			res.Archive = &info
			if i.metrics != nil {
				i.metrics.ObserveArchive()
			}
		}
	}
	return errors.Join(errs...)
}

// mint gives a saved plan without a DOI one.
func (i *Ingester) mint(ctx context.Context, res *Result) error {
	plan := res.Graph.Plan
	if i.minter == nil || plan.DOI() != nil {
		return nil
	}
	value, err := i.minter.Mint(ctx, plan, res.Provenance)
	if err != nil {
		return newError(ErrCodeMint, fmt.Sprintf("mint DOI for plan %s", plan.ID), err)
	}

	id := &model.Identifier{
		Category:   model.CategoryDOI,
		Descriptor: model.IdentifiedBy,
		Value:      value,
		Owner:      plan.Ref(),
		Provenance: res.Provenance,
	}
	id.Init(i.ids.Generate(), i.now())
	err = i.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.SaveIdentifier(ctx, id)
	})
	if err != nil {
		return newError(ErrCodeMint, fmt.Sprintf("save DOI for plan %s", plan.ID), err)
	}
	id.Persisted = true
	plan.Identifiers = append(plan.Identifiers, id)

	res.DOI, res.Minted = value, true
	if i.metrics != nil {
		i.metrics.ObserveMint()
	}
	i.logger.Info("minted DOI", "plan", plan.ID, "doi", value)
	return nil
}

func (i *Ingester) observe(prov string, err error, start time.Time) {
	if i.metrics == nil {
		return
	}
	outcome := metrics.OutcomeAccepted
	switch CodeOf(err) {
	case "":
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
	case ErrCodeInvalidPayload, ErrCodeInvalidDocument, ErrCodeInvalidGraph:
		outcome = metrics.OutcomeRejected
	case ErrCodeMint, ErrCodeArchive:
		// The plan was saved.
	default:
		outcome = metrics.OutcomeFailed
	}
	i.metrics.ObserveSubmission(prov, outcome, time.Since(start))
}
