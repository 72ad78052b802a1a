package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
	"claimstack/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded Store used by unit tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]*models.Policy
	history  map[uuid.UUID][]*models.History
}

func NewInMemory() *InMemory {
	return &InMemory{
		policies: make(map[uuid.UUID]*models.Policy),
		history:  make(map[uuid.UUID][]*models.History),
	}
}

func (s *InMemory) Create(_ context.Context, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.policies {
		if existing.OrgID == policy.OrgID && existing.PolicyNumber == policy.PolicyNumber {
			return sentinel.ErrConflict
		}
	}
	cp := *policy
	s.policies[policy.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orgID, id uuid.UUID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok || p.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) FindByPolicyNumber(_ context.Context, orgID uuid.UUID, policyNumber string) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.OrgID == orgID && p.PolicyNumber == policyNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) List(_ context.Context, orgID uuid.UUID, filter models.ListFilter) ([]*models.Policy, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Policy
	for _, p := range s.policies {
		if p.OrgID != orgID {
			continue
		}
		if !matchesFilter(p, filter) {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	sortPolicies(matched, filter.SortBy, filter.SortDesc)

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func matchesFilter(p *models.Policy, f models.ListFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if p.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ClientID != nil && p.ClientID != *f.ClientID {
		return false
	}
	if f.InsurerID != nil && (p.InsurerID == nil || *p.InsurerID != *f.InsurerID) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if p.PolicyNumber != f.Search &&
			!strings.Contains(strings.ToLower(p.HolderName), needle) {
			return false
		}
	}
	if f.DateFrom != nil && p.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && p.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.ScopeClientIDs != nil && !containsID(f.ScopeClientIDs, p.ClientID) {
		return false
	}
	if f.ScopeAffiliateIDs != nil {
		if p.HolderAffiliateID == nil || !containsID(f.ScopeAffiliateIDs, *p.HolderAffiliateID) {
			return false
		}
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func sortPolicies(policies []*models.Policy, sortBy string, desc bool) {
	less := func(i, j int) bool {
		a, b := policies[i], policies[j]
		switch sortBy {
		case lifecycle.PolicyFieldStartDate:
			return timeLess(a.StartDate, b.StartDate)
		case "policyNumber":
			return a.PolicyNumber < b.PolicyNumber
		case "status":
			return a.Status < b.Status
		case "updatedAt":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	if sortBy == "" {
		desc = true
	}
	sort.SliceStable(policies, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func timeLess(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

func (s *InMemory) ListActiveByClient(_ context.Context, orgID, clientID uuid.UUID) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Policy
	for _, p := range s.policies {
		if p.OrgID == orgID && p.ClientID == clientID && p.Status == lifecycle.PolicyActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return timeLess(out[j].StartDate, out[i].StartDate) })
	return out, nil
}

func (s *InMemory) Update(_ context.Context, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.policies[policy.ID]
	if !ok || existing.OrgID != policy.OrgID {
		return sentinel.ErrNotFound
	}
	cp := *policy
	s.policies[policy.ID] = &cp
	return nil
}

func (s *InMemory) TransitionStatus(_ context.Context, policy *models.Policy, expectedFrom lifecycle.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.policies[policy.ID]
	if !ok || existing.OrgID != policy.OrgID {
		return sentinel.ErrNotFound
	}
	if existing.Status != expectedFrom {
		return sentinel.ErrStaleStatus
	}
	cp := *policy
	s.policies[policy.ID] = &cp
	return nil
}

func (s *InMemory) Delete(_ context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.policies[id]
	if !ok || existing.OrgID != orgID {
		return sentinel.ErrNotFound
	}
	delete(s.policies, id)
	delete(s.history, id)
	return nil
}

func (s *InMemory) AppendHistory(_ context.Context, entry *models.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.history[entry.PolicyID] = append(s.history[entry.PolicyID], &cp)
	return nil
}

func (s *InMemory) ListHistory(_ context.Context, orgID, policyID uuid.UUID) ([]*models.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok || p.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	entries := s.history[policyID]
	out := make([]*models.History, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
