package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"claimstack/internal/authz"
	"claimstack/internal/directory/models"
	"claimstack/pkg/platform/sentinel"
)

// InMemory backs unit tests and local development. Assignment rows are keyed
// by (userID, clientID).
type InMemory struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID]*models.Client
	affiliates  map[uuid.UUID]*models.Affiliate
	insurers    map[uuid.UUID]*models.Insurer
	assignments map[[2]uuid.UUID]bool
}

func NewInMemory() *InMemory {
	return &InMemory{
		clients:     make(map[uuid.UUID]*models.Client),
		affiliates:  make(map[uuid.UUID]*models.Affiliate),
		insurers:    make(map[uuid.UUID]*models.Insurer),
		assignments: make(map[[2]uuid.UUID]bool),
	}
}

// Seed helpers for tests.

func (s *InMemory) PutClient(c *models.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ID] = &cp
}

func (s *InMemory) PutAffiliate(a *models.Affiliate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.affiliates[a.ID] = &cp
}

func (s *InMemory) PutInsurer(i *models.Insurer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.insurers[i.ID] = &cp
}

func (s *InMemory) Assign(userID, clientID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[[2]uuid.UUID{userID, clientID}] = true
}

func (s *InMemory) Unassign(userID, clientID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, [2]uuid.UUID{userID, clientID})
}

func (s *InMemory) FindClient(_ context.Context, orgID, clientID uuid.UUID) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok || c.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindAffiliate(_ context.Context, orgID, affiliateID uuid.UUID) (*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.affiliates[affiliateID]
	if !ok || a.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) FindInsurer(_ context.Context, orgID, insurerID uuid.UUID) (*models.Insurer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.insurers[insurerID]
	if !ok || i.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *InMemory) ListActiveClients(_ context.Context, orgID uuid.UUID) ([]*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Client
	for _, c := range s.clients {
		if c.OrgID == orgID && c.Active {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListAssignedActiveClients(ctx context.Context, orgID, userID uuid.UUID) ([]*models.Client, error) {
	all, err := s.ListActiveClients(ctx, orgID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Client
	for _, c := range all {
		if s.assignments[[2]uuid.UUID{userID, c.ID}] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemory) ListAssignedClientIDs(_ context.Context, orgID, userID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for key := range s.assignments {
		if key[0] != userID {
			continue
		}
		if c, ok := s.clients[key[1]]; ok && c.OrgID == orgID {
			out = append(out, c.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *InMemory) ListMainAffiliates(_ context.Context, orgID, clientID uuid.UUID) ([]*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Affiliate
	for _, a := range s.affiliates {
		if a.OrgID == orgID && a.ClientID == clientID && a.IsMain() && a.Active {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListFamily(_ context.Context, orgID, affiliateID uuid.UUID) ([]*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	self, ok := s.affiliates[affiliateID]
	if !ok || self.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	cp := *self
	out := []*models.Affiliate{&cp}
	var deps []*models.Affiliate
	for _, a := range s.affiliates {
		if a.OrgID == orgID && a.CoveredBy(affiliateID) && a.ID != affiliateID && a.Active {
			d := *a
			deps = append(deps, &d)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return append(out, deps...), nil
}

func (s *InMemory) FindAffiliateByUser(_ context.Context, orgID, userID uuid.UUID) (*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.affiliates {
		if a.OrgID == orgID && a.UserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) IsAssigned(_ context.Context, userID, clientID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments[[2]uuid.UUID{userID, clientID}], nil
}

func (s *InMemory) FindLink(_ context.Context, affiliateID uuid.UUID) (authz.AffiliateLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.affiliates[affiliateID]
	if !ok || a.UserID == uuid.Nil {
		return authz.AffiliateLink{}, sentinel.ErrNotFound
	}
	return authz.AffiliateLink{UserID: a.UserID, Active: a.Active}, nil
}
