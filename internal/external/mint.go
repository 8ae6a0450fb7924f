package external

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dmpsync/internal/model"
)

// Minter issues a persistent identifier for a persisted plan. It runs after
// the reconciliation transaction commits.
type Minter interface {
	Mint(ctx context.Context, plan *model.Plan, provenance string) (string, error)
}

// ErrNotPersisted is returned when minting is attempted for a plan that has
// not been saved yet.
var ErrNotPersisted = errors.New("plan is not persisted")

// LocalMinter derives DOIs from the plan id without calling a registration
// agency: <prefix>/<shoulder><hash>. The same plan always receives the same
// DOI, so minting is safe to retry.
type LocalMinter struct {
	Prefix   string
	Shoulder string
}

// Mint returns the DOI for plan.
func (m LocalMinter) Mint(ctx context.Context, plan *model.Plan, provenance string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if plan == nil || plan.ID == "" {
		return "", fmt.Errorf("mint: %w", ErrNotPersisted)
	}
	if !plan.Persisted {
		return "", fmt.Errorf("mint %s: %w", plan.ID, ErrNotPersisted)
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(m.Prefix), "/")
	if prefix == "" {
		return "", errors.New("mint: prefix is required")
	}

	hash := model.HashWithDomain(model.DomainMint, []byte(plan.ID))
	suffix := strings.ToUpper(hash[:10])
	return prefix + "/" + m.Shoulder + suffix, nil
}
