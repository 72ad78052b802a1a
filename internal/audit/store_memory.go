package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore backs unit tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryStore) ListByResource(_ context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error) {
	return s.list(orgID, resource, resourceID, offset, limit, nil)
}

func (s *InMemoryStore) ListTimeline(_ context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error) {
	allowed := map[Action]bool{}
	for _, a := range TimelineActions(resource) {
		allowed[a] = true
	}
	return s.list(orgID, resource, resourceID, offset, limit, allowed)
}

func (s *InMemoryStore) list(orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int, allowed map[Action]bool) ([]*Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Entry
	for _, e := range s.entries {
		if e.OrgID != orgID || e.Resource != resource || e.ResourceID != resourceID {
			continue
		}
		if allowed != nil && !allowed[e.Action] {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// All returns every entry, oldest first. Test helper.
func (s *InMemoryStore) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
