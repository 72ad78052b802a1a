package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"claimstack/pkg/platform/sentinel"
)

// RecordRef is the slice of a record the authorizer needs: who owns it.
// Services build it from the loaded record after the org check, so a ref seen
// here is always inside the caller's organization.
type RecordRef struct {
	ClientID uuid.UUID
	// AffiliateID is the record's subscriber; uuid.Nil when the record kind
	// has no subscriber (e.g. a client-level policy).
	AffiliateID uuid.UUID
}

// AssignmentStore answers whether a user is assigned to a client.
type AssignmentStore interface {
	IsAssigned(ctx context.Context, userID, clientID uuid.UUID) (bool, error)
}

// AffiliateLink is the subset of an affiliate row the own-scope check needs.
type AffiliateLink struct {
	UserID uuid.UUID
	Active bool
}

// AffiliateLinkStore resolves an affiliate's user link.
type AffiliateLinkStore interface {
	FindLink(ctx context.Context, affiliateID uuid.UUID) (AffiliateLink, error)
}

// Authorizer gates a specific in-org record against a resolved scope.
type Authorizer struct {
	assignments AssignmentStore
	affiliates  AffiliateLinkStore
}

func New(assignments AssignmentStore, affiliates AffiliateLinkStore) *Authorizer {
	return &Authorizer{assignments: assignments, affiliates: affiliates}
}

// Allowed reports whether the caller may act on the record under the given
// scope. An error means the check itself failed, not that access is denied.
func (a *Authorizer) Allowed(ctx context.Context, userID uuid.UUID, scope Scope, ref RecordRef) (bool, error) {
	return a.allowed(ctx, userID, scope, ref, false)
}

// AllowedActive is Allowed with the extra own-scope requirement that the
// linked affiliate is active. Lookup endpoints use this variant.
func (a *Authorizer) AllowedActive(ctx context.Context, userID uuid.UUID, scope Scope, ref RecordRef) (bool, error) {
	return a.allowed(ctx, userID, scope, ref, true)
}

func (a *Authorizer) allowed(ctx context.Context, userID uuid.UUID, scope Scope, ref RecordRef, requireActive bool) (bool, error) {
	switch scope {
	case ScopeAll:
		return true, nil
	case ScopeClient:
		if ref.ClientID == uuid.Nil {
			return false, nil
		}
		assigned, err := a.assignments.IsAssigned(ctx, userID, ref.ClientID)
		if err != nil {
			return false, fmt.Errorf("check client assignment: %w", err)
		}
		return assigned, nil
	case ScopeOwn:
		if ref.AffiliateID == uuid.Nil {
			return false, nil
		}
		link, err := a.affiliates.FindLink(ctx, ref.AffiliateID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("resolve affiliate link: %w", err)
		}
		if link.UserID != userID {
			return false, nil
		}
		if requireActive && !link.Active {
			return false, nil
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown scope %q", scope)
}
