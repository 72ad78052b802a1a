package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"claimstack/internal/claim/models"
	"claimstack/internal/lifecycle"
	"claimstack/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded Store used by unit tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	claims   map[uuid.UUID]*models.Claim
	history  map[uuid.UUID][]*models.History
	invoices map[uuid.UUID][]*models.Invoice
}

func NewInMemory() *InMemory {
	return &InMemory{
		claims:   make(map[uuid.UUID]*models.Claim),
		history:  make(map[uuid.UUID][]*models.History),
		invoices: make(map[uuid.UUID][]*models.Invoice),
	}
}

func (s *InMemory) Create(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Claims without an insurer are exempt from number uniqueness, matching
	// the partial index in scripts/schema.sql.
	if claim.InsurerID != nil {
		for _, existing := range s.claims {
			if existing.OrgID == claim.OrgID &&
				existing.InsurerID != nil && *existing.InsurerID == *claim.InsurerID &&
				existing.ClaimNumber == claim.ClaimNumber {
				return sentinel.ErrConflict
			}
		}
	}
	cp := *claim
	s.claims[claim.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orgID, id uuid.UUID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok || c.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindByClaimNumber(_ context.Context, orgID, insurerID uuid.UUID, claimNumber string) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.OrgID == orgID && c.InsurerID != nil && *c.InsurerID == insurerID && c.ClaimNumber == claimNumber {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) List(_ context.Context, orgID uuid.UUID, filter models.ListFilter) ([]*models.Claim, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Claim
	for _, c := range s.claims {
		if c.OrgID != orgID {
			continue
		}
		if !matchesFilter(c, filter) {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sortClaims(matched, filter.SortBy, filter.SortDesc)

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

func sortClaims(claims []*models.Claim, sortBy string, desc bool) {
	less := func(i, j int) bool {
		a, b := claims[i], claims[j]
		switch sortBy {
		case lifecycle.ClaimFieldServiceDate:
			return timeLess(a.ServiceDate, b.ServiceDate)
		case "claimNumber":
			return a.ClaimNumber < b.ClaimNumber
		case "status":
			return a.Status < b.Status
		case "updatedAt":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	if sortBy == "" {
		// Newest first by default.
		desc = true
	}
	sort.SliceStable(claims, func(i, j int) bool {
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

func matchesFilter(c *models.Claim, f models.ListFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if f.ClientID != nil && c.ClientID != *f.ClientID {
		return false
	}
	if f.AffiliateID != nil && c.AffiliateID != *f.AffiliateID {
		return false
	}
	if f.InsurerID != nil && (c.InsurerID == nil || *c.InsurerID != *f.InsurerID) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if c.ClaimNumber != f.Search &&
			!strings.Contains(strings.ToLower(c.PatientName), needle) {
			return false
		}
	}
	if f.DateFrom != nil && c.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && c.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.ScopeClientIDs != nil && !containsID(f.ScopeClientIDs, c.ClientID) {
		return false
	}
	if f.ScopeAffiliateIDs != nil && !containsID(f.ScopeAffiliateIDs, c.AffiliateID) {
		return false
	}
	return true
}

func containsStatus(statuses []lifecycle.Status, status lifecycle.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (s *InMemory) Update(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.claims[claim.ID]
	if !ok || existing.OrgID != claim.OrgID {
		return sentinel.ErrNotFound
	}
	cp := *claim
	s.claims[claim.ID] = &cp
	return nil
}

func (s *InMemory) TransitionStatus(_ context.Context, claim *models.Claim, expectedFrom lifecycle.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.claims[claim.ID]
	if !ok || existing.OrgID != claim.OrgID {
		return sentinel.ErrNotFound
	}
	if existing.Status != expectedFrom {
		return sentinel.ErrStaleStatus
	}
	cp := *claim
	s.claims[claim.ID] = &cp
	return nil
}

func (s *InMemory) Delete(_ context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.claims[id]
	if !ok || existing.OrgID != orgID {
		return sentinel.ErrNotFound
	}
	delete(s.claims, id)
	delete(s.history, id)
	delete(s.invoices, id)
	return nil
}

func (s *InMemory) AppendHistory(_ context.Context, entry *models.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.history[entry.ClaimID] = append(s.history[entry.ClaimID], &cp)
	return nil
}

func (s *InMemory) ListHistory(_ context.Context, orgID, claimID uuid.UUID) ([]*models.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok || c.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	entries := s.history[claimID]
	out := make([]*models.History, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) CreateInvoice(_ context.Context, orgID uuid.UUID, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[inv.ClaimID]
	if !ok || c.OrgID != orgID {
		return sentinel.ErrNotFound
	}
	cp := *inv
	s.invoices[inv.ClaimID] = append(s.invoices[inv.ClaimID], &cp)
	return nil
}

func (s *InMemory) FindInvoice(_ context.Context, orgID, claimID, invoiceID uuid.UUID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok || c.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	for _, inv := range s.invoices[claimID] {
		if inv.ID == invoiceID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListInvoices(_ context.Context, orgID, claimID uuid.UUID) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok || c.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	entries := s.invoices[claimID]
	out := make([]*models.Invoice, 0, len(entries))
	for _, inv := range entries {
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) UpdateInvoice(_ context.Context, orgID uuid.UUID, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[inv.ClaimID]
	if !ok || c.OrgID != orgID {
		return sentinel.ErrNotFound
	}
	for i, existing := range s.invoices[inv.ClaimID] {
		if existing.ID == inv.ID {
			cp := *inv
			s.invoices[inv.ClaimID][i] = &cp
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) DeleteInvoice(_ context.Context, orgID, claimID, invoiceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.OrgID != orgID {
		return sentinel.ErrNotFound
	}
	for i, inv := range s.invoices[claimID] {
		if inv.ID == invoiceID {
			s.invoices[claimID] = append(s.invoices[claimID][:i], s.invoices[claimID][i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}
