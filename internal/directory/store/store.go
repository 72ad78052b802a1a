package store

import (
	"context"

	"github.com/google/uuid"

	"claimstack/internal/authz"
	"claimstack/internal/directory/models"
)

// Store is the read surface over the directory tables. Lookups are scoped by
// organization so a cross-tenant ID behaves exactly like a missing row.
type Store interface {
	FindClient(ctx context.Context, orgID, clientID uuid.UUID) (*models.Client, error)
	FindAffiliate(ctx context.Context, orgID, affiliateID uuid.UUID) (*models.Affiliate, error)
	FindInsurer(ctx context.Context, orgID, insurerID uuid.UUID) (*models.Insurer, error)

	// ListActiveClients returns active clients in the org, name ascending.
	ListActiveClients(ctx context.Context, orgID uuid.UUID) ([]*models.Client, error)
	// ListAssignedActiveClients narrows ListActiveClients to the caller's
	// assignment rows.
	ListAssignedActiveClients(ctx context.Context, orgID, userID uuid.UUID) ([]*models.Client, error)
	// ListMainAffiliates returns a client's primary subscribers, name ascending.
	ListMainAffiliates(ctx context.Context, orgID, clientID uuid.UUID) ([]*models.Affiliate, error)
	// ListFamily returns the affiliate itself first, then its active
	// dependents sorted by name.
	ListFamily(ctx context.Context, orgID, affiliateID uuid.UUID) ([]*models.Affiliate, error)
	// FindAffiliateByUser resolves the affiliate linked to a portal user.
	FindAffiliateByUser(ctx context.Context, orgID, userID uuid.UUID) (*models.Affiliate, error)
	// ListAssignedClientIDs returns the client IDs assigned to the user,
	// regardless of client activity. Used to narrow client-scoped listings.
	ListAssignedClientIDs(ctx context.Context, orgID, userID uuid.UUID) ([]uuid.UUID, error)

	// The two interfaces the authorizer consumes.
	authz.AssignmentStore
	authz.AffiliateLinkStore
}
