package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dmpsync/internal/model"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const identifierColumns = `id, category, descriptor, value, owner_kind, owner_id, provenance, work_type, created_at, updated_at`

func scanIdentifier(sc scanner) (*model.Identifier, error) {
	var (
		id                   model.Identifier
		category, descriptor string
		ownerKind            string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&id.ID, &category, &descriptor, &id.Value, &ownerKind, &id.Owner.ID,
		&id.Provenance, &id.WorkType, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	id.Category = model.Category(category)
	id.Descriptor = model.Descriptor(descriptor)
	id.Owner.Kind = model.EntityKind(ownerKind)
	if err := scanBase(&id.Base, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &id, nil
}

func scanBase(b *model.Base, createdAt, updatedAt string) error {
	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return err
	}
	b.Persisted = true
	return nil
}

// FindIdentifiers returns every identifier with the given category and
// value, most recently created first (ties broken by id, descending).
func (r *reader) FindIdentifiers(ctx context.Context, category model.Category, value string) ([]*model.Identifier, error) {
	rows, err := r.query(ctx, `
		SELECT `+identifierColumns+`
		FROM identifiers
		WHERE category = ? AND value = ?
		ORDER BY created_at DESC, id DESC
	`, string(category), value)
	if err != nil {
		return nil, fmt.Errorf("query identifiers: %w", err)
	}
	return collectIdentifiers(rows)
}

// IdentifiersFor returns the identifiers attached to owner in creation order.
func (r *reader) IdentifiersFor(ctx context.Context, owner model.OwnerRef) ([]*model.Identifier, error) {
	rows, err := r.query(ctx, `
		SELECT `+identifierColumns+`
		FROM identifiers
		WHERE owner_kind = ? AND owner_id = ?
		ORDER BY created_at ASC, id ASC
	`, string(owner.Kind), owner.ID)
	if err != nil {
		return nil, fmt.Errorf("query identifiers for %s: %w", owner, err)
	}
	return collectIdentifiers(rows)
}

func collectIdentifiers(rows *sql.Rows) ([]*model.Identifier, error) {
	defer rows.Close()
	var out []*model.Identifier
	for rows.Next() {
		id, err := scanIdentifier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return out, nil
}

const affiliationColumns = `id, name, alternate_names, types, attributes, provenance, created_at, updated_at`

func (r *reader) scanAffiliation(ctx context.Context, row *sql.Row) (*model.Affiliation, error) {
	var (
		a                    model.Affiliation
		alternate, types     string
		attributes           string
		createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.Name, &alternate, &types, &attributes, &a.Provenance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan affiliation: %w", err)
	}
	if a.AlternateNames, err = unmarshalStrings(alternate); err != nil {
		return nil, err
	}
	if a.Types, err = unmarshalStrings(types); err != nil {
		return nil, err
	}
	if a.Attributes, err = unmarshalAttributes(attributes); err != nil {
		return nil, err
	}
	if err := scanBase(&a.Base, createdAt, updatedAt); err != nil {
		return nil, err
	}
	if a.Identifiers, err = r.IdentifiersFor(ctx, a.Ref()); err != nil {
		return nil, err
	}
	return &a, nil
}

// Affiliation returns the affiliation with the given id, or nil.
func (r *reader) Affiliation(ctx context.Context, id string) (*model.Affiliation, error) {
	row := r.queryRow(ctx, `SELECT `+affiliationColumns+` FROM affiliations WHERE id = ?`, id)
	return r.scanAffiliation(ctx, row)
}

// AffiliationByName returns the affiliation whose name matches name
// case-insensitively, or nil.
func (r *reader) AffiliationByName(ctx context.Context, name string) (*model.Affiliation, error) {
	key := model.NaturalKey(name)
	if key == "" {
		return nil, nil
	}
	row := r.queryRow(ctx, `SELECT `+affiliationColumns+` FROM affiliations WHERE name_key = ?`, key)
	return r.scanAffiliation(ctx, row)
}

const contributorColumns = `id, name, email, roles, affiliation_id, provenance, created_at, updated_at`

func (r *reader) scanContributor(ctx context.Context, row *sql.Row) (*model.Contributor, error) {
	var (
		c                    model.Contributor
		email, affiliationID sql.NullString
		roles                string
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.Name, &email, &roles, &affiliationID, &c.Provenance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan contributor: %w", err)
	}
	c.Email = email.String
	names, err := unmarshalStrings(roles)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		c.Roles = append(c.Roles, model.Role(n))
	}
	if err := scanBase(&c.Base, createdAt, updatedAt); err != nil {
		return nil, err
	}
	if affiliationID.Valid {
		if c.Affiliation, err = r.Affiliation(ctx, affiliationID.String); err != nil {
			return nil, err
		}
	}
	if c.Identifiers, err = r.IdentifiersFor(ctx, c.Ref()); err != nil {
		return nil, err
	}
	return &c, nil
}

// Contributor returns the contributor with the given id, or nil.
func (r *reader) Contributor(ctx context.Context, id string) (*model.Contributor, error) {
	row := r.queryRow(ctx, `SELECT `+contributorColumns+` FROM contributors WHERE id = ?`, id)
	return r.scanContributor(ctx, row)
}

// ContributorByEmail returns the contributor whose email matches
// case-insensitively, or nil.
func (r *reader) ContributorByEmail(ctx context.Context, email string) (*model.Contributor, error) {
	key := model.NaturalKey(email)
	if key == "" {
		return nil, nil
	}
	row := r.queryRow(ctx, `SELECT `+contributorColumns+` FROM contributors WHERE email_key = ?`, key)
	return r.scanContributor(ctx, row)
}

const hostColumns = `id, title, description, url, availability, backup_frequency, backup_type,
	certified_with, geo_location, pid_systems, storage_type, support_versioning,
	provenance, created_at, updated_at`

func (r *reader) scanHost(ctx context.Context, row *sql.Row) (*model.Host, error) {
	var (
		h                    model.Host
		pidSystems           string
		versioning           string
		createdAt, updatedAt string
	)
	err := row.Scan(&h.ID, &h.Title, &h.Description, &h.URL, &h.Availability, &h.BackupFrequency,
		&h.BackupType, &h.CertifiedWith, &h.GeoLocation, &pidSystems, &h.StorageType, &versioning,
		&h.Provenance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan host: %w", err)
	}
	h.SupportVersioning = model.Flag(versioning)
	if h.PIDSystems, err = unmarshalStrings(pidSystems); err != nil {
		return nil, err
	}
	if err := scanBase(&h.Base, createdAt, updatedAt); err != nil {
		return nil, err
	}
	if h.Identifiers, err = r.IdentifiersFor(ctx, h.Ref()); err != nil {
		return nil, err
	}
	return &h, nil
}

// Host returns the host with the given id, or nil.
func (r *reader) Host(ctx context.Context, id string) (*model.Host, error) {
	row := r.queryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id)
	return r.scanHost(ctx, row)
}

// HostByTitle returns the oldest host whose title matches case-insensitively,
// or nil.
func (r *reader) HostByTitle(ctx context.Context, title string) (*model.Host, error) {
	key := model.NaturalKey(title)
	if key == "" {
		return nil, nil
	}
	row := r.queryRow(ctx, `
		SELECT `+hostColumns+` FROM hosts
		WHERE title_key = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, key)
	return r.scanHost(ctx, row)
}

// Metadatum returns the metadata standard with the given id, or nil.
func (r *reader) Metadatum(ctx context.Context, id string) (*model.Metadatum, error) {
	var (
		m                    model.Metadatum
		createdAt, updatedAt string
	)
	err := r.queryRow(ctx, `
		SELECT id, description, language, provenance, created_at, updated_at
		FROM metadata WHERE id = ?
	`, id).Scan(&m.ID, &m.Description, &m.Language, &m.Provenance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan metadatum: %w", err)
	}
	if err := scanBase(&m.Base, createdAt, updatedAt); err != nil {
		return nil, err
	}
	if m.Identifiers, err = r.IdentifiersFor(ctx, m.Ref()); err != nil {
		return nil, err
	}
	return &m, nil
}

// PlanByTitleAndContact returns the id of the most recently updated plan
// with the given title (case-insensitive) whose primary contact is
// contributorID, or "" when there is none.
func (r *reader) PlanByTitleAndContact(ctx context.Context, title, contributorID string) (string, error) {
	key := model.NaturalKey(title)
	if key == "" || contributorID == "" {
		return "", nil
	}
	var id string
	err := r.queryRow(ctx, `
		SELECT p.id
		FROM plans p
		JOIN contributor_roles cr ON cr.plan_id = p.id
		WHERE p.title_key = ? AND cr.contributor_id = ? AND cr.role = ?
		ORDER BY p.updated_at DESC, p.id DESC
		LIMIT 1
	`, key, contributorID, string(model.RolePrimaryContact)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query plan by title: %w", err)
	}
	return id, nil
}

// ContributorRoles returns the distinct roles a contributor holds on plans
// other than excludePlanID, in role order.
func (r *reader) ContributorRoles(ctx context.Context, contributorID, excludePlanID string) ([]model.Role, error) {
	rows, err := r.query(ctx, `
		SELECT DISTINCT role FROM contributor_roles
		WHERE contributor_id = ? AND plan_id <> ?
		ORDER BY role ASC
	`, contributorID, excludePlanID)
	if err != nil {
		return nil, fmt.Errorf("query roles of contributor %s: %w", contributorID, err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan contributor role: %w", err)
		}
		roles = append(roles, model.Role(role))
	}
	return roles, rows.Err()
}

// PlanSummary is one row of ListPlans.
type PlanSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Provenance string    `json:"provenance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListPlans returns every stored plan ordered by title then id.
func (r *reader) ListPlans(ctx context.Context) ([]PlanSummary, error) {
	rows, err := r.query(ctx, `
		SELECT id, title, provenance, updated_at
		FROM plans
		ORDER BY title_key ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var out []PlanSummary
	for rows.Next() {
		var (
			p         PlanSummary
			updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Provenance, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Submission is one accepted document in the audit log.
type Submission struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"plan_id"`
	Provenance  string    `json:"provenance"`
	PayloadHash string    `json:"payload_hash"`
	Payload     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submissions returns the audit log in acceptance order. When planID is
// non-empty only that plan's submissions are returned.
func (r *reader) Submissions(ctx context.Context, planID string) ([]Submission, error) {
	query := `SELECT id, plan_id, provenance, payload_hash, payload, created_at FROM submissions`
	var args []any
	if planID != "" {
		query += ` WHERE plan_id = ?`
		args = append(args, planID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			s         Submission
			payload   string
			createdAt string
		)
		if err := rows.Scan(&s.ID, &s.PlanID, &s.Provenance, &s.PayloadHash, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.Payload = []byte(payload)
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
