// Package service orchestrates claim mutations and reads. It owns every write
// to the claims, claim_history, claim_invoices, and audit_log tables as one
// transactional unit; handlers never touch stores directly.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	"claimstack/internal/claim/models"
	"claimstack/internal/claim/store"
	dirstore "claimstack/internal/directory/store"
	"claimstack/internal/lifecycle"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/sentinel"
	txcontext "claimstack/pkg/platform/tx"
	"claimstack/pkg/requestcontext"
)

const resourceClaim = "claim"

// PolicyRef is the slice of a policy the claim engine validates against.
type PolicyRef struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Status   lifecycle.Status
}

// PolicyDirectory resolves policy references without importing the policy
// module.
type PolicyDirectory interface {
	FindPolicyRef(ctx context.Context, orgID, policyID uuid.UUID) (*PolicyRef, error)
}

type Service struct {
	store      store.Store
	directory  dirstore.Store
	policies   PolicyDirectory
	authorizer *authz.Authorizer
	machine    *lifecycle.Machine
	runner     txcontext.Runner
	recorder   *audit.Recorder
	logger     *slog.Logger
}

func New(
	st store.Store,
	directory dirstore.Store,
	policies PolicyDirectory,
	authorizer *authz.Authorizer,
	runner txcontext.Runner,
	recorder *audit.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:      st,
		directory:  directory,
		policies:   policies,
		authorizer: authorizer,
		machine:    lifecycle.ForKind(lifecycle.KindClaim),
		runner:     runner,
		recorder:   recorder,
		logger:     logger,
	}
}

// resolveScope maps the caller's role onto the scope granted for an action.
func (s *Service) resolveScope(ident requestcontext.Identity, action authz.Action) (authz.Scope, error) {
	if ident.UserID == uuid.Nil {
		return "", domainerrors.New(domainerrors.CodeUnauthorized, "authentication required")
	}
	perms := authz.PermissionsForRole(ident.Role)
	if perms == nil {
		return "", domainerrors.Newf(domainerrors.CodePermissionDenied, "role %q grants no permissions", ident.Role)
	}
	scope, ok := authz.ScopeForAction(perms, action)
	if !ok {
		return "", domainerrors.New(domainerrors.CodePermissionDenied, "action not permitted for role")
	}
	return scope, nil
}

// loadAuthorized fetches the claim and gates it behind the caller's scope.
// A cross-org or missing id reads as not found; an in-org claim outside the
// caller's scope is a permission failure.
func (s *Service) loadAuthorized(ctx context.Context, ident requestcontext.Identity, action authz.Action, id uuid.UUID) (*models.Claim, error) {
	scope, err := s.resolveScope(ident, action)
	if err != nil {
		return nil, err
	}
	claim, err := s.store.FindByID(ctx, ident.OrgID, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound(resourceClaim), "claim not found")
	}
	if err != nil {
		return nil, err
	}
	allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, authz.RecordRef{
		ClientID:    claim.ClientID,
		AffiliateID: claim.AffiliateID,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domainerrors.New(domainerrors.CodePermissionDenied, "claim is outside your scope")
	}
	return claim, nil
}

// Get returns a claim the caller may read.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	ident := requestcontext.CallerIdentity(ctx)
	return s.loadAuthorized(ctx, ident, authz.ActionClaimRead, id)
}

// List returns claims visible to the caller, narrowed by the filter. Callers
// outside any scope see an empty page rather than an error.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Claim, int, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident, authz.ActionClaimRead)
	if err != nil {
		return nil, 0, err
	}

	switch scope {
	case authz.ScopeAll:
	case authz.ScopeClient:
		ids, err := s.directory.ListAssignedClientIDs(ctx, ident.OrgID, ident.UserID)
		if err != nil {
			return nil, 0, err
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		filter.ScopeClientIDs = ids
	case authz.ScopeOwn:
		aff, err := s.directory.FindAffiliateByUser(ctx, ident.OrgID, ident.UserID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return []*models.Claim{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		filter.ScopeAffiliateIDs = []uuid.UUID{aff.ID}
	default:
		return nil, 0, domainerrors.Newf(domainerrors.CodeInternal, "unknown scope %q", scope)
	}

	return s.store.List(ctx, ident.OrgID, filter)
}

// History returns the claim's transition records, newest first.
func (s *Service) History(ctx context.Context, id uuid.UUID, offset, limit int) ([]*models.History, int, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimRead, id); err != nil {
		return nil, 0, err
	}
	entries, err := s.store.ListHistory(ctx, ident.OrgID, id)
	if err != nil {
		return nil, 0, err
	}
	total := len(entries)
	if offset >= total {
		return []*models.History{}, total, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, total, nil
}

// Timeline returns the curated audit view for a claim, newest first.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID, offset, limit int) ([]*audit.Entry, int, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimRead, id); err != nil {
		return nil, 0, err
	}
	return s.recorder.ListTimeline(ctx, ident.OrgID, resourceClaim, id, offset, limit)
}
