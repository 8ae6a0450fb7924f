package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dmpsync/internal/model"
)

// Writes upsert by primary key. created_at is set on first insert only;
// every later save refreshes the mutable columns and updated_at.

// UpsertProvenance records a source-system name. Idempotent.
func (t *Tx) UpsertProvenance(ctx context.Context, name string, now time.Time) error {
	_, err := t.exec(ctx, `
		INSERT INTO provenances (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, formatTime(now))
	if err != nil {
		return fmt.Errorf("upsert provenance %q: %w", name, err)
	}
	return nil
}

// SaveAffiliation upserts an affiliation row. Identifiers are saved
// separately.
func (t *Tx) SaveAffiliation(ctx context.Context, a *model.Affiliation) error {
	alternate, err := marshalStrings(a.AlternateNames)
	if err != nil {
		return err
	}
	types, err := marshalStrings(a.Types)
	if err != nil {
		return err
	}
	attrs, err := marshalAttributes(a.Attributes)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO affiliations (id, name, name_key, alternate_names, types, attributes, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_key = excluded.name_key,
			alternate_names = excluded.alternate_names,
			types = excluded.types,
			attributes = excluded.attributes,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, a.ID, a.Name, model.NaturalKey(a.Name), alternate, types, attrs, a.Provenance,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save affiliation %s: %w", a.ID, err)
	}
	return nil
}

// SaveContributor upserts a contributor row.
func (t *Tx) SaveContributor(ctx context.Context, c *model.Contributor) error {
	names := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		names = append(names, string(r))
	}
	roles, err := marshalStrings(names)
	if err != nil {
		return err
	}
	var affiliationID string
	if c.Affiliation != nil {
		affiliationID = c.Affiliation.ID
	}
	_, err = t.exec(ctx, `
		INSERT INTO contributors (id, name, email, email_key, roles, affiliation_id, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			email_key = excluded.email_key,
			roles = excluded.roles,
			affiliation_id = excluded.affiliation_id,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, nullString(c.Email), nullString(model.NaturalKey(c.Email)), roles,
		nullString(affiliationID), c.Provenance, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save contributor %s: %w", c.ID, err)
	}
	return nil
}

// SavePlan upserts the plan row. Children are saved separately.
func (t *Tx) SavePlan(ctx context.Context, p *model.Plan) error {
	_, err := t.exec(ctx, `
		INSERT INTO plans (id, title, title_key, description, language, ethical_issues,
			ethical_issues_description, ethical_issues_report, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			title_key = excluded.title_key,
			description = excluded.description,
			language = excluded.language,
			ethical_issues = excluded.ethical_issues,
			ethical_issues_description = excluded.ethical_issues_description,
			ethical_issues_report = excluded.ethical_issues_report,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, p.ID, p.Title, model.NaturalKey(p.Title), p.Description, p.Language, string(p.EthicalIssues),
		p.EthicalIssuesDescription, p.EthicalIssuesReport, p.Provenance,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}

// SaveProject upserts a project row.
func (t *Tx) SaveProject(ctx context.Context, p *model.Project) error {
	_, err := t.exec(ctx, `
		INSERT INTO projects (id, plan_id, title, description, start_on, end_on, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			start_on = excluded.start_on,
			end_on = excluded.end_on,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, p.ID, p.PlanID, p.Title, p.Description, zeroTimeNull(p.Start), zeroTimeNull(p.End), p.Provenance,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

// SaveFunding upserts a funding row. Funded affiliations and identifiers
// are linked separately.
func (t *Tx) SaveFunding(ctx context.Context, f *model.Funding) error {
	var affiliationID string
	if f.Affiliation != nil {
		affiliationID = f.Affiliation.ID
	}
	_, err := t.exec(ctx, `
		INSERT INTO fundings (id, project_id, affiliation_id, name, status, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			affiliation_id = excluded.affiliation_id,
			name = excluded.name,
			status = excluded.status,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, f.ID, f.ProjectID, nullString(affiliationID), f.Name, string(f.Status), f.Provenance,
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save funding %s: %w", f.ID, err)
	}
	return nil
}

// LinkFundedAffiliation records that a funding supports an affiliation.
// Idempotent.
func (t *Tx) LinkFundedAffiliation(ctx context.Context, fundingID, affiliationID string, now time.Time) error {
	_, err := t.exec(ctx, `
		INSERT INTO funded_affiliations (funding_id, affiliation_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(funding_id, affiliation_id) DO NOTHING
	`, fundingID, affiliationID, formatTime(now))
	if err != nil {
		return fmt.Errorf("link funded affiliation: %w", err)
	}
	return nil
}

// SaveRole upserts a contributor role link.
func (t *Tx) SaveRole(ctx context.Context, r *model.ContributorRole) error {
	if r.Contributor == nil {
		return fmt.Errorf("save role %s: no contributor", r.ID)
	}
	_, err := t.exec(ctx, `
		INSERT INTO contributor_roles (id, plan_id, contributor_id, role, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contributor_id = excluded.contributor_id,
			role = excluded.role,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, r.ID, r.PlanID, r.Contributor.ID, string(r.Role), r.Provenance,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save role %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRole removes a contributor role link.
func (t *Tx) DeleteRole(ctx context.Context, id string) error {
	if _, err := t.exec(ctx, `DELETE FROM contributor_roles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete role %s: %w", id, err)
	}
	return nil
}

// SaveCost upserts a cost row.
func (t *Tx) SaveCost(ctx context.Context, c *model.Cost) error {
	_, err := t.exec(ctx, `
		INSERT INTO costs (id, plan_id, title, description, value, currency_code, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			value = excluded.value,
			currency_code = excluded.currency_code,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, c.ID, c.PlanID, c.Title, c.Description, nullFloat(c.Value), c.CurrencyCode, c.Provenance,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save cost %s: %w", c.ID, err)
	}
	return nil
}

// SaveDataset upserts a dataset row. Keywords, metadata links and children
// are saved separately.
func (t *Tx) SaveDataset(ctx context.Context, d *model.Dataset) error {
	quality, err := marshalStrings(d.DataQualityAssurance)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO datasets (id, plan_id, title, description, dataset_type, personal_data, sensitive_data,
			data_quality_assurance, preservation_statement, issued, language, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			dataset_type = excluded.dataset_type,
			personal_data = excluded.personal_data,
			sensitive_data = excluded.sensitive_data,
			data_quality_assurance = excluded.data_quality_assurance,
			preservation_statement = excluded.preservation_statement,
			issued = excluded.issued,
			language = excluded.language,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, d.ID, d.PlanID, d.Title, d.Description, string(d.Type), string(d.PersonalData), string(d.SensitiveData),
		quality, d.PreservationStatement, nullTime(d.Issued), d.Language, d.Provenance,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", d.ID, err)
	}
	return nil
}

// ReplaceKeywords replaces the keyword set of a dataset.
func (t *Tx) ReplaceKeywords(ctx context.Context, datasetID string, keywords []string) error {
	if _, err := t.exec(ctx, `DELETE FROM dataset_keywords WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("clear keywords: %w", err)
	}
	for i, kw := range keywords {
		_, err := t.exec(ctx, `
			INSERT INTO dataset_keywords (dataset_id, position, keyword) VALUES (?, ?, ?)
			ON CONFLICT(dataset_id, keyword) DO NOTHING
		`, datasetID, i, kw)
		if err != nil {
			return fmt.Errorf("insert keyword %q: %w", kw, err)
		}
	}
	return nil
}

// SaveMetadatum upserts a metadata standard row.
func (t *Tx) SaveMetadatum(ctx context.Context, m *model.Metadatum) error {
	_, err := t.exec(ctx, `
		INSERT INTO metadata (id, description, language, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			language = excluded.language,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, m.ID, m.Description, m.Language, m.Provenance, formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save metadatum %s: %w", m.ID, err)
	}
	return nil
}

// LinkMetadatum attaches a metadata standard to a dataset at position.
func (t *Tx) LinkMetadatum(ctx context.Context, datasetID, metadatumID string, position int) error {
	_, err := t.exec(ctx, `
		INSERT INTO dataset_metadata (dataset_id, metadatum_id, position) VALUES (?, ?, ?)
		ON CONFLICT(dataset_id, metadatum_id) DO UPDATE SET position = excluded.position
	`, datasetID, metadatumID, position)
	if err != nil {
		return fmt.Errorf("link metadatum: %w", err)
	}
	return nil
}

// SaveStatement upserts a security and privacy statement.
func (t *Tx) SaveStatement(ctx context.Context, s *model.SecurityPrivacyStatement) error {
	return t.saveTitled(ctx, "security_privacy_statements", s.Base, s.DatasetID, s.Title, s.Description, s.Provenance)
}

// SaveResource upserts a technical resource.
func (t *Tx) SaveResource(ctx context.Context, r *model.TechnicalResource) error {
	return t.saveTitled(ctx, "technical_resources", r.Base, r.DatasetID, r.Title, r.Description, r.Provenance)
}

func (t *Tx) saveTitled(ctx context.Context, table string, b model.Base, datasetID, title, description, provenance string) error {
	_, err := t.exec(ctx, `
		INSERT INTO `+table+` (id, dataset_id, title, description, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, b.ID, datasetID, title, description, provenance, formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save %s %s: %w", table, b.ID, err)
	}
	return nil
}

// SaveHost upserts a host row.
func (t *Tx) SaveHost(ctx context.Context, h *model.Host) error {
	pids, err := marshalStrings(h.PIDSystems)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `
		INSERT INTO hosts (id, title, title_key, description, url, availability, backup_frequency, backup_type,
			certified_with, geo_location, pid_systems, storage_type, support_versioning, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			title_key = excluded.title_key,
			description = excluded.description,
			url = excluded.url,
			availability = excluded.availability,
			backup_frequency = excluded.backup_frequency,
			backup_type = excluded.backup_type,
			certified_with = excluded.certified_with,
			geo_location = excluded.geo_location,
			pid_systems = excluded.pid_systems,
			storage_type = excluded.storage_type,
			support_versioning = excluded.support_versioning,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, h.ID, h.Title, model.NaturalKey(h.Title), h.Description, h.URL, h.Availability, h.BackupFrequency,
		h.BackupType, h.CertifiedWith, h.GeoLocation, pids, h.StorageType, string(h.SupportVersioning),
		h.Provenance, formatTime(h.CreatedAt), formatTime(h.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save host %s: %w", h.ID, err)
	}
	return nil
}

// SaveDistribution upserts a distribution row. The host must already be
// saved; licenses are saved separately.
func (t *Tx) SaveDistribution(ctx context.Context, d *model.Distribution) error {
	formats, err := marshalStrings(d.Formats)
	if err != nil {
		return err
	}
	var hostID string
	if d.Host != nil {
		hostID = d.Host.ID
	}
	_, err = t.exec(ctx, `
		INSERT INTO distributions (id, dataset_id, host_id, title, description, access_url, download_url,
			byte_size, data_access, formats, available_until, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host_id = excluded.host_id,
			title = excluded.title,
			description = excluded.description,
			access_url = excluded.access_url,
			download_url = excluded.download_url,
			byte_size = excluded.byte_size,
			data_access = excluded.data_access,
			formats = excluded.formats,
			available_until = excluded.available_until,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, d.ID, d.DatasetID, nullString(hostID), d.Title, d.Description, d.AccessURL, d.DownloadURL,
		nullInt(d.ByteSize), string(d.DataAccess), formats, nullTime(d.AvailableUntil), d.Provenance,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save distribution %s: %w", d.ID, err)
	}
	return nil
}

// SaveLicense upserts a license row.
func (t *Tx) SaveLicense(ctx context.Context, l *model.License) error {
	_, err := t.exec(ctx, `
		INSERT INTO licenses (id, distribution_id, license_ref, start_date, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			license_ref = excluded.license_ref,
			start_date = excluded.start_date,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at
	`, l.ID, l.DistributionID, l.LicenseRef, formatTime(l.StartDate), l.Provenance,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save license %s: %w", l.ID, err)
	}
	return nil
}

// SaveIdentifier upserts an identifier. The category and value of a stored
// identifier are never rewritten; only its descriptor and bookkeeping
// columns change.
func (t *Tx) SaveIdentifier(ctx context.Context, id *model.Identifier) error {
	if id.Owner.IsZero() {
		return fmt.Errorf("save identifier %s: no owner", id.ID)
	}
	_, err := t.exec(ctx, `
		INSERT INTO identifiers (id, category, descriptor, value, owner_kind, owner_id, provenance,
			is_global, work_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			descriptor = excluded.descriptor,
			work_type = excluded.work_type,
			updated_at = excluded.updated_at
	`, id.ID, string(id.Category), string(id.Descriptor), id.Value, string(id.Owner.Kind), id.Owner.ID,
		id.Provenance, boolInt(id.Category.GloballyUnique()), id.WorkType,
		formatTime(id.CreatedAt), formatTime(id.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save identifier %s (%s %s): %w", id.ID, id.Category, id.Value, err)
	}
	return nil
}

// DeleteIdentifier removes an identifier.
func (t *Tx) DeleteIdentifier(ctx context.Context, id string) error {
	if _, err := t.exec(ctx, `DELETE FROM identifiers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete identifier %s: %w", id, err)
	}
	return nil
}

// DeletePlan removes a plan with everything it owns: projects, fundings,
// costs, datasets and their children, role links, submissions and the
// identifiers of each. Shared entities (affiliations, contributors, hosts,
// metadata standards) are kept. It reports whether the plan existed.
func (t *Tx) DeletePlan(ctx context.Context, id string) (bool, error) {
	owned := []struct {
		kind  model.EntityKind
		query string
	}{
		{model.KindPlan, `SELECT id FROM plans WHERE id = ?`},
		{model.KindDataset, `SELECT id FROM datasets WHERE plan_id = ?`},
		{model.KindFunding, `SELECT f.id FROM fundings f JOIN projects p ON p.id = f.project_id WHERE p.plan_id = ?`},
	}
	for _, o := range owned {
		_, err := t.exec(ctx, `
			DELETE FROM identifiers
			WHERE owner_kind = ? AND owner_id IN (`+o.query+`)
		`, string(o.kind), id)
		if err != nil {
			return false, fmt.Errorf("delete %s identifiers: %w", o.kind, err)
		}
	}

	res, err := t.exec(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete plan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete plan %s: %w", id, err)
	}
	return n > 0, nil
}

// WriteSubmission appends one accepted document to the audit log.
func (t *Tx) WriteSubmission(ctx context.Context, s Submission) error {
	_, err := t.exec(ctx, `
		INSERT INTO submissions (id, plan_id, provenance, payload_hash, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.PlanID, s.Provenance, s.PayloadHash, string(s.Payload), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("write submission %s: %w", s.ID, err)
	}
	return nil
}
