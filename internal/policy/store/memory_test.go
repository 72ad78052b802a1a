package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
	"claimstack/pkg/platform/sentinel"
)

func seedPolicy(t *testing.T, s *InMemory, orgID uuid.UUID, number string, status lifecycle.Status, createdAt time.Time) *models.Policy {
	t.Helper()
	holderID := uuid.New()
	p := &models.Policy{
		ID:                uuid.New(),
		OrgID:             orgID,
		PolicyNumber:      number,
		Status:            status,
		ClientID:          uuid.New(),
		HolderAffiliateID: &holderID,
		HolderName:        "Jordan Alvarez",
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func TestPolicyNumberUniquePerOrg(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()

	seedPolicy(t, s, orgID, "POL-1", lifecycle.PolicyPending, time.Now())

	dup := &models.Policy{
		ID:           uuid.New(),
		OrgID:        orgID,
		PolicyNumber: "POL-1",
		Status:       lifecycle.PolicyPending,
		ClientID:     uuid.New(),
	}
	require.ErrorIs(t, s.Create(ctx, dup), sentinel.ErrConflict)

	// Another org can reuse the number.
	dup.ID = uuid.New()
	dup.OrgID = uuid.New()
	require.NoError(t, s.Create(ctx, dup))
}

func TestPolicyTransitionStatusGuard(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()
	policy := seedPolicy(t, s, orgID, "POL-1", lifecycle.PolicyPending, time.Now())

	t.Run("writes when status matches", func(t *testing.T) {
		cp := *policy
		cp.Status = lifecycle.PolicyActive
		require.NoError(t, s.TransitionStatus(ctx, &cp, lifecycle.PolicyPending))

		got, err := s.FindByID(ctx, orgID, policy.ID)
		require.NoError(t, err)
		require.Equal(t, lifecycle.PolicyActive, got.Status)
	})

	t.Run("rejects a stale expectation", func(t *testing.T) {
		cp := *policy
		cp.Status = lifecycle.PolicySuspended
		err := s.TransitionStatus(ctx, &cp, lifecycle.PolicyPending)
		require.ErrorIs(t, err, sentinel.ErrStaleStatus)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		cp := *policy
		cp.ID = uuid.New()
		err := s.TransitionStatus(ctx, &cp, lifecycle.PolicyPending)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPolicyListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := seedPolicy(t, s, orgID, "POL-1", lifecycle.PolicyPending, base)
	newer := seedPolicy(t, s, orgID, "POL-2", lifecycle.PolicyActive, base.AddDate(0, 0, 5))
	seedPolicy(t, s, uuid.New(), "POL-3", lifecycle.PolicyPending, base)

	t.Run("org scoping newest first", func(t *testing.T) {
		policies, total, err := s.List(ctx, orgID, models.ListFilter{Limit: 10})
		require.NoError(t, err)
		require.Equal(t, 2, total)
		require.Equal(t, newer.ID, policies[0].ID)
		require.Equal(t, older.ID, policies[1].ID)
	})

	t.Run("exact number search", func(t *testing.T) {
		policies, total, err := s.List(ctx, orgID, models.ListFilter{Search: "POL-2", Limit: 10})
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Equal(t, newer.ID, policies[0].ID)
	})

	t.Run("holder name substring search", func(t *testing.T) {
		_, total, err := s.List(ctx, orgID, models.ListFilter{Search: "alvarez", Limit: 10})
		require.NoError(t, err)
		require.Equal(t, 2, total)
	})

	t.Run("status set filter", func(t *testing.T) {
		_, total, err := s.List(ctx, orgID, models.ListFilter{
			Statuses: []lifecycle.Status{lifecycle.PolicyActive},
			Limit:    10,
		})
		require.NoError(t, err)
		require.Equal(t, 1, total)
	})

	t.Run("holder scope ignores group policies", func(t *testing.T) {
		group := &models.Policy{
			ID:           uuid.New(),
			OrgID:        orgID,
			PolicyNumber: "POL-G",
			Status:       lifecycle.PolicyActive,
			ClientID:     older.ClientID,
			CreatedAt:    base,
			UpdatedAt:    base,
		}
		require.NoError(t, s.Create(ctx, group))

		policies, total, err := s.List(ctx, orgID, models.ListFilter{
			ScopeAffiliateIDs: []uuid.UUID{*older.HolderAffiliateID},
			Limit:             10,
		})
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Equal(t, older.ID, policies[0].ID)
	})
}

func TestListActiveByClient(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()
	clientID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	put := func(number string, status lifecycle.Status, start time.Time) *models.Policy {
		p := &models.Policy{
			ID:           uuid.New(),
			OrgID:        orgID,
			PolicyNumber: number,
			Status:       status,
			ClientID:     clientID,
			StartDate:    &start,
			CreatedAt:    base,
			UpdatedAt:    base,
		}
		require.NoError(t, s.Create(ctx, p))
		return p
	}

	put("POL-1", lifecycle.PolicyPending, base)
	early := put("POL-2", lifecycle.PolicyActive, base)
	late := put("POL-3", lifecycle.PolicyActive, base.AddDate(0, 6, 0))

	policies, err := s.ListActiveByClient(ctx, orgID, clientID)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	require.Equal(t, late.ID, policies[0].ID)
	require.Equal(t, early.ID, policies[1].ID)
}
