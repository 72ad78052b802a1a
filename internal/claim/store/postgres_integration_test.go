//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"claimstack/internal/claim/models"
	"claimstack/internal/claim/store"
	"claimstack/internal/lifecycle"
	"claimstack/pkg/platform/sentinel"
	"claimstack/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres

	orgID       uuid.UUID
	clientID    uuid.UUID
	affiliateID uuid.UUID
	insurerID   uuid.UUID
	userID      uuid.UUID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx,
		"claims", "policies", "audit_log", "client_assignments",
		"affiliates", "insurers", "clients",
	))

	s.orgID = uuid.New()
	s.clientID = uuid.New()
	s.affiliateID = uuid.New()
	s.insurerID = uuid.New()
	s.userID = uuid.New()

	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO clients (id, org_id, name, active) VALUES ($1, $2, 'Acme Benefits', TRUE)`,
		s.clientID, s.orgID)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx,
		`INSERT INTO affiliates (id, org_id, client_id, user_id, name, active)
		 VALUES ($1, $2, $3, $4, 'Jordan Alvarez', TRUE)`,
		s.affiliateID, s.orgID, s.clientID, s.userID)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx,
		`INSERT INTO insurers (id, org_id, name, active) VALUES ($1, $2, 'Atlas Mutual', TRUE)`,
		s.insurerID, s.orgID)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newClaim(number string) *models.Claim {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Claim{
		ID:          uuid.New(),
		OrgID:       s.orgID,
		ClaimNumber: number,
		Status:      lifecycle.ClaimDraft,
		ClientID:    s.clientID,
		AffiliateID: s.affiliateID,
		PatientID:   s.affiliateID,
		PatientName: "Jordan Alvarez",
		InsurerID:   &s.insurerID,
		CreatedByID: s.userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundtrip() {
	ctx := context.Background()
	diagnosis := "J06.9"
	amount := int64(125_00)
	claim := s.newClaim("CLM-1")
	claim.DiagnosisCode = &diagnosis
	claim.AmountClaimed = &amount

	s.Require().NoError(s.store.Create(ctx, claim))

	got, err := s.store.FindByID(ctx, s.orgID, claim.ID)
	s.Require().NoError(err)
	s.Equal(claim.ClaimNumber, got.ClaimNumber)
	s.Equal(lifecycle.ClaimDraft, got.Status)
	s.Require().NotNil(got.InsurerID)
	s.Equal(s.insurerID, *got.InsurerID)
	s.Require().NotNil(got.DiagnosisCode)
	s.Equal(diagnosis, *got.DiagnosisCode)
	s.Nil(got.PolicyID)

	// A cross-org read behaves like a missing row.
	_, err = s.store.FindByID(ctx, uuid.New(), claim.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUniqueNumberPerInsurer() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newClaim("CLM-1")))

	dup := s.newClaim("CLM-1")
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrConflict)

	// Without an insurer the partial unique index does not apply.
	free := s.newClaim("CLM-1")
	free.InsurerID = nil
	s.NoError(s.store.Create(ctx, free))
}

func (s *PostgresStoreSuite) TestTransitionStatusGuard() {
	ctx := context.Background()
	claim := s.newClaim("CLM-1")
	s.Require().NoError(s.store.Create(ctx, claim))

	claim.Status = lifecycle.ClaimInReview
	s.Require().NoError(s.store.TransitionStatus(ctx, claim, lifecycle.ClaimDraft))

	// The row already moved on; a stale expectation must not win.
	claim.Status = lifecycle.ClaimReturned
	s.ErrorIs(s.store.TransitionStatus(ctx, claim, lifecycle.ClaimDraft), sentinel.ErrStaleStatus)

	missing := s.newClaim("CLM-2")
	s.ErrorIs(s.store.TransitionStatus(ctx, missing, lifecycle.ClaimDraft), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListFilters() {
	ctx := context.Background()
	first := s.newClaim("CLM-1")
	s.Require().NoError(s.store.Create(ctx, first))
	second := s.newClaim("CLM-2")
	second.Status = lifecycle.ClaimInReview
	second.CreatedAt = second.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt
	s.Require().NoError(s.store.Create(ctx, second))

	claims, total, err := s.store.List(ctx, s.orgID, models.ListFilter{Limit: 10})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal(second.ID, claims[0].ID)

	claims, total, err = s.store.List(ctx, s.orgID, models.ListFilter{
		Statuses: []lifecycle.Status{lifecycle.ClaimInReview},
		Limit:    10,
	})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(second.ID, claims[0].ID)

	claims, total, err = s.store.List(ctx, s.orgID, models.ListFilter{Search: "alvarez", Limit: 10})
	s.Require().NoError(err)
	s.Equal(2, total)

	_, total, err = s.store.List(ctx, s.orgID, models.ListFilter{
		ScopeClientIDs: []uuid.UUID{},
		Limit:          10,
	})
	s.Require().NoError(err)
	s.Equal(0, total)
}

func (s *PostgresStoreSuite) TestHistoryAndCascade() {
	ctx := context.Background()
	claim := s.newClaim("CLM-1")
	s.Require().NoError(s.store.Create(ctx, claim))
	s.Require().NoError(s.store.AppendHistory(ctx, &models.History{
		ID:          uuid.New(),
		ClaimID:     claim.ID,
		ToStatus:    lifecycle.ClaimDraft,
		CreatedByID: s.userID,
		CreatedAt:   claim.CreatedAt,
	}))

	entries, err := s.store.ListHistory(ctx, s.orgID, claim.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Nil(entries[0].FromStatus)

	s.Require().NoError(s.store.Delete(ctx, s.orgID, claim.ID))
	entries, err = s.store.ListHistory(ctx, s.orgID, claim.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *PostgresStoreSuite) TestInvoicesScopedThroughClaim() {
	ctx := context.Background()
	claim := s.newClaim("CLM-1")
	s.Require().NoError(s.store.Create(ctx, claim))

	inv := &models.Invoice{
		ID:            uuid.New(),
		ClaimID:       claim.ID,
		InvoiceNumber: "INV-1",
		Amount:        250_00,
		IssuedDate:    claim.CreatedAt,
		CreatedAt:     claim.CreatedAt,
		UpdatedAt:     claim.CreatedAt,
	}
	s.Require().NoError(s.store.CreateInvoice(ctx, s.orgID, inv))

	got, err := s.store.FindInvoice(ctx, s.orgID, claim.ID, inv.ID)
	s.Require().NoError(err)
	s.Equal("INV-1", got.InvoiceNumber)

	// The wrong org cannot see or mutate the invoice through the join.
	_, err = s.store.FindInvoice(ctx, uuid.New(), claim.ID, inv.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.DeleteInvoice(ctx, uuid.New(), claim.ID, inv.ID), sentinel.ErrNotFound)

	s.Require().NoError(s.store.DeleteInvoice(ctx, s.orgID, claim.ID, inv.ID))
	_, err = s.store.FindInvoice(ctx, s.orgID, claim.ID, inv.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
