package ingest

import (
	"context"
	"fmt"
	"maps"
)

// ReplayReport is the outcome of re-submitting the audit log.
type ReplayReport struct {
	Submissions int            `json:"submissions"`
	Before      map[string]int `json:"before"`
	After       map[string]int `json:"after"`
	Failed      []ReplayError  `json:"failed,omitempty"`
}

// ReplayError names a stored submission that no longer reconciles.
type ReplayError struct {
	SubmissionID string `json:"submission_id"`
	Error        string `json:"error"`
}

// Stable reports whether every entity table kept its row count.
func (r *ReplayReport) Stable() bool {
	return len(r.Failed) == 0 && maps.Equal(r.Before, r.After)
}

// Replay re-submits every stored submission in acceptance order without
// appending audit rows, minting or archiving. Reconciliation is idempotent
// when the entity row counts do not change.
func (i *Ingester) Replay(ctx context.Context) (*ReplayReport, error) {
	before, err := i.store.CountRows(ctx)
	if err != nil {
		return nil, newError(ErrCodeStorage, "count rows", err)
	}
	subs, err := i.store.Submissions(ctx, "")
	if err != nil {
		return nil, newError(ErrCodeStorage, "list submissions", err)
	}

	report := &ReplayReport{Submissions: len(subs), Before: before}
	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := i.process(ctx, s.Provenance, s.Payload, false); err != nil {
			i.logger.Warn("replay failed", "submission", s.ID, "error", err)
			report.Failed = append(report.Failed, ReplayError{SubmissionID: s.ID, Error: err.Error()})
		}
	}

	if report.After, err = i.store.CountRows(ctx); err != nil {
		return nil, newError(ErrCodeStorage, "count rows", err)
	}
	i.logger.Info("replay finished",
		"submissions", report.Submissions,
		"failed", len(report.Failed),
		"stable", report.Stable(),
	)
	return report, nil
}

// String summarizes the report.
func (r *ReplayReport) String() string {
	status := "stable"
	if !r.Stable() {
		status = "changed"
	}
	return fmt.Sprintf("replayed %d submissions: %s", r.Submissions, status)
}
