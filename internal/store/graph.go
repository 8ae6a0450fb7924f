package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dmpsync/internal/model"
)

// LoadPlan reads the full entity graph of one plan, or nil when no plan has
// that id. Shared entities (affiliations, contributors, hosts, metadata)
// appear once per graph: every reference to the same row is the same
// pointer.
//
// Result sets are drained before child queries run, since a SQLite store
// holds a single connection.
func (r *reader) LoadPlan(ctx context.Context, id string) (*model.Plan, error) {
	l := &loader{
		r:            r,
		affiliations: make(map[string]*model.Affiliation),
		contributors: make(map[string]*model.Contributor),
		hosts:        make(map[string]*model.Host),
		metadata:     make(map[string]*model.Metadatum),
	}
	return l.plan(ctx, id)
}

// loader caches shared entities for the duration of one LoadPlan call.
type loader struct {
	r            *reader
	affiliations map[string]*model.Affiliation
	contributors map[string]*model.Contributor
	hosts        map[string]*model.Host
	metadata     map[string]*model.Metadatum
}

func (l *loader) plan(ctx context.Context, id string) (*model.Plan, error) {
	var (
		p                    model.Plan
		ethical              string
		createdAt, updatedAt string
	)
	err := l.r.queryRow(ctx, `
		SELECT id, title, description, language, ethical_issues, ethical_issues_description,
			ethical_issues_report, provenance, created_at, updated_at
		FROM plans WHERE id = ?
	`, id).Scan(&p.ID, &p.Title, &p.Description, &p.Language, &ethical, &p.EthicalIssuesDescription,
		&p.EthicalIssuesReport, &p.Provenance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", id, err)
	}
	p.EthicalIssues = model.Flag(ethical)
	if err := scanBase(&p.Base, createdAt, updatedAt); err != nil {
		return nil, err
	}

	if p.Identifiers, err = l.r.IdentifiersFor(ctx, p.Ref()); err != nil {
		return nil, err
	}
	if p.Roles, err = l.roles(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Projects, err = l.projects(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Costs, err = l.costs(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Datasets, err = l.datasets(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *loader) affiliation(ctx context.Context, id string) (*model.Affiliation, error) {
	if a, ok := l.affiliations[id]; ok {
		return a, nil
	}
	a, err := l.r.Affiliation(ctx, id)
	if err != nil || a == nil {
		return nil, err
	}
	l.affiliations[id] = a
	return a, nil
}

func (l *loader) contributor(ctx context.Context, id string) (*model.Contributor, error) {
	if c, ok := l.contributors[id]; ok {
		return c, nil
	}
	c, err := l.r.Contributor(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	if c.Affiliation != nil {
		if cached, ok := l.affiliations[c.Affiliation.ID]; ok {
			c.Affiliation = cached
		} else {
			l.affiliations[c.Affiliation.ID] = c.Affiliation
		}
	}
	l.contributors[id] = c
	return c, nil
}

func (l *loader) host(ctx context.Context, id string) (*model.Host, error) {
	if h, ok := l.hosts[id]; ok {
		return h, nil
	}
	h, err := l.r.Host(ctx, id)
	if err != nil || h == nil {
		return nil, err
	}
	l.hosts[id] = h
	return h, nil
}

func (l *loader) metadatum(ctx context.Context, id string) (*model.Metadatum, error) {
	if m, ok := l.metadata[id]; ok {
		return m, nil
	}
	m, err := l.r.Metadatum(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	l.metadata[id] = m
	return m, nil
}

func (l *loader) roles(ctx context.Context, planID string) ([]*model.ContributorRole, error) {
	type roleRow struct {
		role          *model.ContributorRole
		contributorID string
	}

	rows, err := l.r.query(ctx, `
		SELECT id, contributor_id, role, provenance, created_at, updated_at
		FROM contributor_roles
		WHERE plan_id = ?
		ORDER BY created_at ASC, id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	var pending []roleRow
	for rows.Next() {
		var (
			cr                   model.ContributorRole
			contributorID, role  string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&cr.ID, &contributorID, &role, &cr.Provenance, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan role: %w", err)
		}
		cr.PlanID = planID
		cr.Role = model.Role(role)
		if err := scanBase(&cr.Base, createdAt, updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, roleRow{role: &cr, contributorID: contributorID})
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	out := make([]*model.ContributorRole, 0, len(pending))
	for _, p := range pending {
		c, err := l.contributor(ctx, p.contributorID)
		if err != nil {
			return nil, err
		}
		p.role.Contributor = c
		out = append(out, p.role)
	}
	return out, nil
}

func (l *loader) projects(ctx context.Context, planID string) ([]*model.Project, error) {
	rows, err := l.r.query(ctx, `
		SELECT id, title, description, start_on, end_on, provenance, created_at, updated_at
		FROM projects
		WHERE plan_id = ?
		ORDER BY created_at ASC, id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	var out []*model.Project
	for rows.Next() {
		var (
			p                    model.Project
			start, end           sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &start, &end, &p.Provenance, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.PlanID = planID
		if err := scanBase(&p.Base, createdAt, updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		startOn, err := scanNullTime(start)
		if err != nil {
			rows.Close()
			return nil, err
		}
		endOn, err := scanNullTime(end)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if startOn != nil {
			p.Start = *startOn
		}
		if endOn != nil {
			p.End = *endOn
		}
		out = append(out, &p)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	for _, p := range out {
		if p.Fundings, err = l.fundings(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *loader) fundings(ctx context.Context, projectID string) ([]*model.Funding, error) {
	type fundingRow struct {
		funding       *model.Funding
		affiliationID sql.NullString
	}

	rows, err := l.r.query(ctx, `
		SELECT id, affiliation_id, name, status, provenance, created_at, updated_at
		FROM fundings
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query fundings: %w", err)
	}
	var pending []fundingRow
	for rows.Next() {
		var (
			f                    model.Funding
			affiliationID        sql.NullString
			status               string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&f.ID, &affiliationID, &f.Name, &status, &f.Provenance, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan funding: %w", err)
		}
		f.ProjectID = projectID
		f.Status = model.FundingStatus(status)
		if err := scanBase(&f.Base, createdAt, updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, fundingRow{funding: &f, affiliationID: affiliationID})
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate fundings: %w", err)
	}

	out := make([]*model.Funding, 0, len(pending))
	for _, p := range pending {
		f := p.funding
		if p.affiliationID.Valid {
			if f.Affiliation, err = l.affiliation(ctx, p.affiliationID.String); err != nil {
				return nil, err
			}
		}
		funded, err := l.stringColumn(ctx, `
			SELECT affiliation_id FROM funded_affiliations
			WHERE funding_id = ?
			ORDER BY created_at ASC, affiliation_id ASC
		`, f.ID)
		if err != nil {
			return nil, fmt.Errorf("query funded affiliations: %w", err)
		}
		for _, id := range funded {
			a, err := l.affiliation(ctx, id)
			if err != nil {
				return nil, err
			}
			if a != nil {
				f.FundedAffiliations = append(f.FundedAffiliations, a)
			}
		}
		if f.Identifiers, err = l.r.IdentifiersFor(ctx, f.Ref()); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (l *loader) costs(ctx context.Context, planID string) ([]*model.Cost, error) {
	rows, err := l.r.query(ctx, `
		SELECT id, title, description, value, currency_code, provenance, created_at, updated_at
		FROM costs
		WHERE plan_id = ?
		ORDER BY created_at ASC, id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query costs: %w", err)
	}
	defer rows.Close()

	var out []*model.Cost
	for rows.Next() {
		var (
			c                    model.Cost
			value                sql.NullFloat64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &value, &c.CurrencyCode, &c.Provenance, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cost: %w", err)
		}
		c.PlanID = planID
		if value.Valid {
			v := value.Float64
			c.Value = &v
		}
		if err := scanBase(&c.Base, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (l *loader) datasets(ctx context.Context, planID string) ([]*model.Dataset, error) {
	rows, err := l.r.query(ctx, `
		SELECT id, title, description, dataset_type, personal_data, sensitive_data,
			data_quality_assurance, preservation_statement, issued, language,
			provenance, created_at, updated_at
		FROM datasets
		WHERE plan_id = ?
		ORDER BY created_at ASC, id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	var out []*model.Dataset
	for rows.Next() {
		var (
			d                           model.Dataset
			dsType, personal, sensitive string
			quality                     string
			issued                      sql.NullString
			createdAt, updatedAt        string
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &dsType, &personal, &sensitive,
			&quality, &d.PreservationStatement, &issued, &d.Language,
			&d.Provenance, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		d.PlanID = planID
		d.Type = model.DatasetType(dsType)
		d.PersonalData = model.Flag(personal)
		d.SensitiveData = model.Flag(sensitive)
		if d.DataQualityAssurance, err = unmarshalStrings(quality); err != nil {
			rows.Close()
			return nil, err
		}
		if d.Issued, err = scanNullTime(issued); err != nil {
			rows.Close()
			return nil, err
		}
		if err := scanBase(&d.Base, createdAt, updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &d)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}

	for _, d := range out {
		if err := l.datasetChildren(ctx, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *loader) datasetChildren(ctx context.Context, d *model.Dataset) error {
	var err error
	if d.Keywords, err = l.stringColumn(ctx, `
		SELECT keyword FROM dataset_keywords
		WHERE dataset_id = ?
		ORDER BY position ASC, keyword ASC
	`, d.ID); err != nil {
		return fmt.Errorf("query keywords: %w", err)
	}

	metadataIDs, err := l.stringColumn(ctx, `
		SELECT metadatum_id FROM dataset_metadata
		WHERE dataset_id = ?
		ORDER BY position ASC, metadatum_id ASC
	`, d.ID)
	if err != nil {
		return fmt.Errorf("query dataset metadata: %w", err)
	}
	for _, id := range metadataIDs {
		m, err := l.metadatum(ctx, id)
		if err != nil {
			return err
		}
		if m != nil {
			d.Metadata = append(d.Metadata, m)
		}
	}

	if d.Statements, err = l.statements(ctx, d.ID); err != nil {
		return err
	}
	if d.Resources, err = l.resources(ctx, d.ID); err != nil {
		return err
	}
	if d.Distributions, err = l.distributions(ctx, d.ID); err != nil {
		return err
	}
	if d.Identifiers, err = l.r.IdentifiersFor(ctx, d.Ref()); err != nil {
		return err
	}
	return nil
}

// titled is the shared row shape of statements and resources.
type titled struct {
	base        model.Base
	title       string
	description string
	provenance  string
}

func (l *loader) titledRows(ctx context.Context, table, datasetID string) ([]titled, error) {
	rows, err := l.r.query(ctx, `
		SELECT id, title, description, provenance, created_at, updated_at
		FROM `+table+`
		WHERE dataset_id = ?
		ORDER BY created_at ASC, id ASC
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []titled
	for rows.Next() {
		var (
			t                    titled
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.base.ID, &t.title, &t.description, &t.provenance, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if err := scanBase(&t.base, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *loader) statements(ctx context.Context, datasetID string) ([]*model.SecurityPrivacyStatement, error) {
	rows, err := l.titledRows(ctx, "security_privacy_statements", datasetID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.SecurityPrivacyStatement, 0, len(rows))
	for _, t := range rows {
		out = append(out, &model.SecurityPrivacyStatement{
			Base: t.base, DatasetID: datasetID, Title: t.title, Description: t.description, Provenance: t.provenance,
		})
	}
	return out, nil
}

func (l *loader) resources(ctx context.Context, datasetID string) ([]*model.TechnicalResource, error) {
	rows, err := l.titledRows(ctx, "technical_resources", datasetID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.TechnicalResource, 0, len(rows))
	for _, t := range rows {
		out = append(out, &model.TechnicalResource{
			Base: t.base, DatasetID: datasetID, Title: t.title, Description: t.description, Provenance: t.provenance,
		})
	}
	return out, nil
}

func (l *loader) distributions(ctx context.Context, datasetID string) ([]*model.Distribution, error) {
	type distributionRow struct {
		dist   *model.Distribution
		hostID sql.NullString
	}

	rows, err := l.r.query(ctx, `
		SELECT id, host_id, title, description, access_url, download_url, byte_size,
			data_access, formats, available_until, provenance, created_at, updated_at
		FROM distributions
		WHERE dataset_id = ?
		ORDER BY created_at ASC, id ASC
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	var pending []distributionRow
	for rows.Next() {
		var (
			d                    model.Distribution
			hostID, until        sql.NullString
			byteSize             sql.NullInt64
			access, formats      string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&d.ID, &hostID, &d.Title, &d.Description, &d.AccessURL, &d.DownloadURL, &byteSize,
			&access, &formats, &until, &d.Provenance, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		d.DatasetID = datasetID
		d.DataAccess = model.DataAccess(access)
		if byteSize.Valid {
			n := byteSize.Int64
			d.ByteSize = &n
		}
		if d.Formats, err = unmarshalStrings(formats); err != nil {
			rows.Close()
			return nil, err
		}
		if d.AvailableUntil, err = scanNullTime(until); err != nil {
			rows.Close()
			return nil, err
		}
		if err := scanBase(&d.Base, createdAt, updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, distributionRow{dist: &d, hostID: hostID})
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}

	out := make([]*model.Distribution, 0, len(pending))
	for _, p := range pending {
		if p.hostID.Valid {
			if p.dist.Host, err = l.host(ctx, p.hostID.String); err != nil {
				return nil, err
			}
		}
		if p.dist.Licenses, err = l.licenses(ctx, p.dist.ID); err != nil {
			return nil, err
		}
		out = append(out, p.dist)
	}
	return out, nil
}

func (l *loader) licenses(ctx context.Context, distributionID string) ([]*model.License, error) {
	rows, err := l.r.query(ctx, `
		SELECT id, license_ref, start_date, provenance, created_at, updated_at
		FROM licenses
		WHERE distribution_id = ?
		ORDER BY created_at ASC, id ASC
	`, distributionID)
	if err != nil {
		return nil, fmt.Errorf("query licenses: %w", err)
	}
	defer rows.Close()

	var out []*model.License
	for rows.Next() {
		var (
			lic                  model.License
			start                string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&lic.ID, &lic.LicenseRef, &start, &lic.Provenance, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		lic.DistributionID = distributionID
		if lic.StartDate, err = parseTime(start); err != nil {
			return nil, err
		}
		if err := scanBase(&lic.Base, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, &lic)
	}
	return out, rows.Err()
}

// stringColumn runs a single-column query and returns every value.
func (l *loader) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := l.r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// closeRows closes rows and reports any iteration error.
func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
