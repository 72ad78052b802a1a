// Package service orchestrates policy mutations and reads, mirroring the
// claim orchestrator: it owns every write to the policies, policy_history,
// and audit_log tables as one transactional unit.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	dirstore "claimstack/internal/directory/store"
	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
	"claimstack/internal/policy/store"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/sentinel"
	txcontext "claimstack/pkg/platform/tx"
	"claimstack/pkg/requestcontext"
)

const resourcePolicy = "policy"

type Service struct {
	store      store.Store
	directory  dirstore.Store
	authorizer *authz.Authorizer
	machine    *lifecycle.Machine
	runner     txcontext.Runner
	recorder   *audit.Recorder
	logger     *slog.Logger
}

func New(
	st store.Store,
	directory dirstore.Store,
	authorizer *authz.Authorizer,
	runner txcontext.Runner,
	recorder *audit.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:      st,
		directory:  directory,
		authorizer: authorizer,
		machine:    lifecycle.ForKind(lifecycle.KindPolicy),
		runner:     runner,
		recorder:   recorder,
		logger:     logger,
	}
}

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

// recordRef builds the authorization reference. Policies without a holder
// carry a nil affiliate, which own-scope callers can never satisfy.
func recordRef(p *models.Policy) authz.RecordRef {
	ref := authz.RecordRef{ClientID: p.ClientID}
	if p.HolderAffiliateID != nil {
		ref.AffiliateID = *p.HolderAffiliateID
	}
	return ref
}

func (s *Service) loadAuthorized(ctx context.Context, ident requestcontext.Identity, action authz.Action, id uuid.UUID) (*models.Policy, error) {
	scope, err := s.resolveScope(ident, action)
	if err != nil {
		return nil, err
	}
	policy, err := s.store.FindByID(ctx, ident.OrgID, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound(resourcePolicy), "policy not found")
	}
	if err != nil {
		return nil, err
	}
	allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, recordRef(policy))
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domainerrors.New(domainerrors.CodePermissionDenied, "policy is outside your scope")
	}
	return policy, nil
}

// Get returns a policy the caller may read.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	ident := requestcontext.CallerIdentity(ctx)
	return s.loadAuthorized(ctx, ident, authz.ActionPolicyRead, id)
}

// List returns policies visible to the caller, narrowed by the filter.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Policy, int, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident, authz.ActionPolicyRead)
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
			return []*models.Policy{}, 0, nil
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

// History returns the policy's transition records, newest first.
func (s *Service) History(ctx context.Context, id uuid.UUID, offset, limit int) ([]*models.History, int, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionPolicyRead, id); err != nil {
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

// Timeline returns the curated audit view for a policy, newest first.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID, offset, limit int) ([]*audit.Entry, int, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionPolicyRead, id); err != nil {
		return nil, 0, err
	}
	return s.recorder.ListTimeline(ctx, ident.OrgID, resourcePolicy, id, offset, limit)
}
