package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"claimstack/internal/claim/models"
	"claimstack/internal/lifecycle"
	"claimstack/pkg/platform/sentinel"
)

func seedClaim(t *testing.T, s *InMemory, orgID uuid.UUID, number string, status lifecycle.Status, createdAt time.Time) *models.Claim {
	t.Helper()
	c := &models.Claim{
		ID:          uuid.New(),
		OrgID:       orgID,
		ClaimNumber: number,
		Status:      status,
		ClientID:    uuid.New(),
		AffiliateID: uuid.New(),
		PatientID:   uuid.New(),
		PatientName: "Jordan Alvarez",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	require.NoError(t, s.Create(context.Background(), c))
	return c
}

func TestTransitionStatusGuard(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()
	claim := seedClaim(t, s, orgID, "CLM-1", lifecycle.ClaimDraft, time.Now())

	t.Run("writes when status matches", func(t *testing.T) {
		cp := *claim
		cp.Status = lifecycle.ClaimInReview
		require.NoError(t, s.TransitionStatus(ctx, &cp, lifecycle.ClaimDraft))

		got, err := s.FindByID(ctx, orgID, claim.ID)
		require.NoError(t, err)
		require.Equal(t, lifecycle.ClaimInReview, got.Status)
	})

	t.Run("rejects a stale expectation", func(t *testing.T) {
		cp := *claim
		cp.Status = lifecycle.ClaimReturned
		err := s.TransitionStatus(ctx, &cp, lifecycle.ClaimDraft)
		require.ErrorIs(t, err, sentinel.ErrStaleStatus)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		cp := *claim
		cp.ID = uuid.New()
		err := s.TransitionStatus(ctx, &cp, lifecycle.ClaimDraft)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestCreateRejectsDuplicateNumberPerInsurer(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()
	insurerID := uuid.New()

	first := seedClaim(t, s, orgID, "CLM-1", lifecycle.ClaimDraft, time.Now())
	first.InsurerID = &insurerID
	require.NoError(t, s.Update(ctx, first))

	dup := &models.Claim{
		ID:          uuid.New(),
		OrgID:       orgID,
		ClaimNumber: "CLM-1",
		Status:      lifecycle.ClaimDraft,
		InsurerID:   &insurerID,
	}
	require.ErrorIs(t, s.Create(ctx, dup), sentinel.ErrConflict)

	// The same number under another insurer is fine.
	otherInsurer := uuid.New()
	dup.ID = uuid.New()
	dup.InsurerID = &otherInsurer
	require.NoError(t, s.Create(ctx, dup))

	// Claims with no insurer are exempt, even when they share a number.
	for range 2 {
		require.NoError(t, s.Create(ctx, &models.Claim{
			ID:          uuid.New(),
			OrgID:       orgID,
			ClaimNumber: "CLM-1",
			Status:      lifecycle.ClaimDraft,
		}))
	}
}

func TestListFiltersAndSort(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	orgID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := seedClaim(t, s, orgID, "CLM-1", lifecycle.ClaimDraft, base)
	newer := seedClaim(t, s, orgID, "CLM-2", lifecycle.ClaimInReview, base.AddDate(0, 0, 5))
	seedClaim(t, s, uuid.New(), "CLM-3", lifecycle.ClaimDraft, base)

	t.Run("org scoping", func(t *testing.T) {
		claims, total, err := s.List(ctx, orgID, models.ListFilter{Limit: 10})
		require.NoError(t, err)
		require.Equal(t, 2, total)
		require.Len(t, claims, 2)
	})

	t.Run("newest first by default", func(t *testing.T) {
		claims, _, err := s.List(ctx, orgID, models.ListFilter{Limit: 10})
		require.NoError(t, err)
		require.Equal(t, newer.ID, claims[0].ID)
		require.Equal(t, older.ID, claims[1].ID)
	})

	t.Run("ascending by claim number", func(t *testing.T) {
		claims, _, err := s.List(ctx, orgID, models.ListFilter{
			SortBy: "claimNumber", Limit: 10,
		})
		require.NoError(t, err)
		require.Equal(t, "CLM-1", claims[0].ClaimNumber)
	})

	t.Run("status set filter", func(t *testing.T) {
		_, total, err := s.List(ctx, orgID, models.ListFilter{
			Statuses: []lifecycle.Status{lifecycle.ClaimInReview, lifecycle.ClaimSettled},
			Limit:    10,
		})
		require.NoError(t, err)
		require.Equal(t, 1, total)
	})

	t.Run("inclusive date range", func(t *testing.T) {
		to := base.AddDate(0, 0, 5)
		_, total, err := s.List(ctx, orgID, models.ListFilter{
			DateFrom: &base, DateTo: &to, Limit: 10,
		})
		require.NoError(t, err)
		require.Equal(t, 2, total)
	})

	t.Run("empty scope slice matches nothing", func(t *testing.T) {
		claims, total, err := s.List(ctx, orgID, models.ListFilter{
			ScopeClientIDs: []uuid.UUID{}, Limit: 10,
		})
		require.NoError(t, err)
		require.Equal(t, 0, total)
		require.Empty(t, claims)
	})

	t.Run("offset pagination", func(t *testing.T) {
		claims, total, err := s.List(ctx, orgID, models.ListFilter{Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Equal(t, 2, total)
		require.Len(t, claims, 1)
		require.Equal(t, older.ID, claims[0].ID)
	})
}
