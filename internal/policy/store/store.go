// Package store persists policies and their transition history.
package store

import (
	"context"

	"github.com/google/uuid"

	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
)

// Store is the policy persistence port. All reads are org-scoped so a foreign
// org's identifiers behave as missing rows.
type Store interface {
	Create(ctx context.Context, policy *models.Policy) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Policy, error)
	FindByPolicyNumber(ctx context.Context, orgID uuid.UUID, policyNumber string) (*models.Policy, error)
	List(ctx context.Context, orgID uuid.UUID, filter models.ListFilter) ([]*models.Policy, int, error)
	// ListActiveByClient returns a client's ACTIVE policies sorted by start
	// date descending, for lookup selectors.
	ListActiveByClient(ctx context.Context, orgID, clientID uuid.UUID) ([]*models.Policy, error)
	Update(ctx context.Context, policy *models.Policy) error

	// TransitionStatus persists the policy only if the stored status still
	// equals expectedFrom; otherwise it returns sentinel.ErrStaleStatus.
	TransitionStatus(ctx context.Context, policy *models.Policy, expectedFrom lifecycle.Status) error

	Delete(ctx context.Context, orgID, id uuid.UUID) error

	AppendHistory(ctx context.Context, entry *models.History) error
	ListHistory(ctx context.Context, orgID, policyID uuid.UUID) ([]*models.History, error)
}
