// Package service serves the dependent-selector lookups: the clients,
// affiliates, and policies a caller may pick from when filling in a claim or
// policy form. Everything here is read-only and scope-filtered; own-scope
// callers additionally need an active affiliate.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"claimstack/internal/authz"
	dirmodels "claimstack/internal/directory/models"
	dirstore "claimstack/internal/directory/store"
	"claimstack/internal/platform/config"
	policymodels "claimstack/internal/policy/models"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/sentinel"
	"claimstack/pkg/requestcontext"
)

// PolicySource lists a client's active policies without coupling this package
// to the policy module's store.
type PolicySource interface {
	ListActiveByClient(ctx context.Context, orgID, clientID uuid.UUID) ([]*policymodels.Policy, error)
}

type Service struct {
	directory  dirstore.Store
	policies   PolicySource
	authorizer *authz.Authorizer
	cache      Cache
	logger     *slog.Logger
}

func New(directory dirstore.Store, policies PolicySource, authorizer *authz.Authorizer, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{
		directory:  directory,
		policies:   policies,
		authorizer: authorizer,
		cache:      cache,
		logger:     logger,
	}
}

func (s *Service) resolveScope(ident requestcontext.Identity) (authz.Scope, error) {
	if ident.UserID == uuid.Nil {
		return "", domainerrors.New(domainerrors.CodeUnauthorized, "authentication required")
	}
	perms := authz.PermissionsForRole(ident.Role)
	if perms == nil {
		return "", domainerrors.Newf(domainerrors.CodePermissionDenied, "role %q grants no permissions", ident.Role)
	}
	scope, ok := authz.ScopeForAction(perms, authz.ActionLookupRead)
	if !ok {
		return "", domainerrors.New(domainerrors.CodePermissionDenied, "action not permitted for role")
	}
	return scope, nil
}

// callerAffiliate resolves the own-scope caller's affiliate. Lookups require
// it to be active; a missing or inactive affiliate reads as out of scope.
func (s *Service) callerAffiliate(ctx context.Context, ident requestcontext.Identity) (*dirmodels.Affiliate, error) {
	aff, err := s.directory.FindAffiliateByUser(ctx, ident.OrgID, ident.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !aff.Active {
		return nil, nil
	}
	return aff, nil
}

// Clients returns the active clients the caller may file against, name
// ascending. Callers outside any client see an empty list, not an error.
func (s *Service) Clients(ctx context.Context) ([]*dirmodels.Client, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident)
	if err != nil {
		return nil, err
	}

	switch scope {
	case authz.ScopeAll:
		key := cacheKey(ident.OrgID, "clients")
		if raw, ok := s.cache.Get(ctx, key); ok {
			var clients []*dirmodels.Client
			if json.Unmarshal(raw, &clients) == nil {
				return clients, nil
			}
		}
		clients, err := s.directory.ListActiveClients(ctx, ident.OrgID)
		if err != nil {
			return nil, err
		}
		if clients == nil {
			clients = []*dirmodels.Client{}
		}
		if raw, err := json.Marshal(clients); err == nil {
			s.cache.Set(ctx, key, raw, config.LookupCacheTTL)
		}
		return clients, nil

	case authz.ScopeClient:
		clients, err := s.directory.ListAssignedActiveClients(ctx, ident.OrgID, ident.UserID)
		if err != nil {
			return nil, err
		}
		if clients == nil {
			clients = []*dirmodels.Client{}
		}
		return clients, nil

	case authz.ScopeOwn:
		aff, err := s.callerAffiliate(ctx, ident)
		if err != nil {
			return nil, err
		}
		if aff == nil {
			return []*dirmodels.Client{}, nil
		}
		client, err := s.directory.FindClient(ctx, ident.OrgID, aff.ClientID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return []*dirmodels.Client{}, nil
		}
		if err != nil {
			return nil, err
		}
		if !client.Active {
			return []*dirmodels.Client{}, nil
		}
		return []*dirmodels.Client{client}, nil
	}
	return nil, domainerrors.Newf(domainerrors.CodeInternal, "unknown scope %q", scope)
}

// MainAffiliates returns a client's primary subscribers. Own-scope callers
// only see their own family's subscriber.
func (s *Service) MainAffiliates(ctx context.Context, clientID uuid.UUID) ([]*dirmodels.Affiliate, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.FindClient(ctx, ident.OrgID, clientID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.NotFound("client"), "client not found")
		}
		return nil, err
	}

	switch scope {
	case authz.ScopeAll:
		return s.directory.ListMainAffiliates(ctx, ident.OrgID, clientID)
	case authz.ScopeClient:
		allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, authz.RecordRef{ClientID: clientID})
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, domainerrors.New(domainerrors.CodePermissionDenied, "client is outside your scope")
		}
		return s.directory.ListMainAffiliates(ctx, ident.OrgID, clientID)
	case authz.ScopeOwn:
		aff, err := s.callerAffiliate(ctx, ident)
		if err != nil {
			return nil, err
		}
		if aff == nil || aff.ClientID != clientID {
			return nil, domainerrors.New(domainerrors.CodePermissionDenied, "client is outside your scope")
		}
		main := aff
		if !aff.IsMain() {
			main, err = s.directory.FindAffiliate(ctx, ident.OrgID, *aff.PrimaryAffiliateID)
			if err != nil {
				return nil, err
			}
		}
		return []*dirmodels.Affiliate{main}, nil
	}
	return nil, domainerrors.Newf(domainerrors.CodeInternal, "unknown scope %q", scope)
}

// Family returns an affiliate's covered family: the main subscriber first,
// then active dependents by name.
func (s *Service) Family(ctx context.Context, affiliateID uuid.UUID) ([]*dirmodels.Affiliate, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident)
	if err != nil {
		return nil, err
	}
	aff, err := s.directory.FindAffiliate(ctx, ident.OrgID, affiliateID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound("affiliate"), "affiliate not found")
	}
	if err != nil {
		return nil, err
	}

	mainID := aff.ID
	if !aff.IsMain() {
		mainID = *aff.PrimaryAffiliateID
	}

	switch scope {
	case authz.ScopeAll:
	case authz.ScopeClient:
		allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, authz.RecordRef{ClientID: aff.ClientID})
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, domainerrors.New(domainerrors.CodePermissionDenied, "affiliate is outside your scope")
		}
	case authz.ScopeOwn:
		caller, err := s.callerAffiliate(ctx, ident)
		if err != nil {
			return nil, err
		}
		if caller == nil || !caller.CoveredBy(mainID) {
			return nil, domainerrors.New(domainerrors.CodePermissionDenied, "affiliate is outside your scope")
		}
	default:
		return nil, domainerrors.Newf(domainerrors.CodeInternal, "unknown scope %q", scope)
	}

	return s.directory.ListFamily(ctx, ident.OrgID, mainID)
}

// ActivePolicies returns a client's active policies, start date descending.
// Own-scope callers only see policies they hold.
func (s *Service) ActivePolicies(ctx context.Context, clientID uuid.UUID) ([]*policymodels.Policy, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.FindClient(ctx, ident.OrgID, clientID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.NotFound("client"), "client not found")
		}
		return nil, err
	}

	switch scope {
	case authz.ScopeAll:
		key := cacheKey(ident.OrgID, "policies:"+clientID.String())
		if raw, ok := s.cache.Get(ctx, key); ok {
			var policies []*policymodels.Policy
			if json.Unmarshal(raw, &policies) == nil {
				return policies, nil
			}
		}
		policies, err := s.listActivePolicies(ctx, ident.OrgID, clientID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(policies); err == nil {
			s.cache.Set(ctx, key, raw, config.LookupCacheTTL)
		}
		return policies, nil

	case authz.ScopeClient:
		allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, authz.RecordRef{ClientID: clientID})
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, domainerrors.New(domainerrors.CodePermissionDenied, "client is outside your scope")
		}
		return s.listActivePolicies(ctx, ident.OrgID, clientID)

	case authz.ScopeOwn:
		aff, err := s.callerAffiliate(ctx, ident)
		if err != nil {
			return nil, err
		}
		if aff == nil || aff.ClientID != clientID {
			return nil, domainerrors.New(domainerrors.CodePermissionDenied, "client is outside your scope")
		}
		policies, err := s.listActivePolicies(ctx, ident.OrgID, clientID)
		if err != nil {
			return nil, err
		}
		held := []*policymodels.Policy{}
		for _, p := range policies {
			if p.HolderAffiliateID != nil && *p.HolderAffiliateID == aff.ID {
				held = append(held, p)
			}
		}
		return held, nil
	}
	return nil, domainerrors.Newf(domainerrors.CodeInternal, "unknown scope %q", scope)
}

func (s *Service) listActivePolicies(ctx context.Context, orgID, clientID uuid.UUID) ([]*policymodels.Policy, error) {
	policies, err := s.policies.ListActiveByClient(ctx, orgID, clientID)
	if err != nil {
		return nil, err
	}
	if policies == nil {
		policies = []*policymodels.Policy{}
	}
	return policies, nil
}

func cacheKey(orgID uuid.UUID, suffix string) string {
	return fmt.Sprintf("lookup:v1:%s:%s", orgID, suffix)
}
