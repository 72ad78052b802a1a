// Package store persists claims, their transition history, and their
// invoices.
package store

import (
	"context"

	"github.com/google/uuid"

	"claimstack/internal/claim/models"
	"claimstack/internal/lifecycle"
)

// Store is the claim persistence port. All reads are org-scoped so a foreign
// org's identifiers behave as missing rows.
type Store interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Claim, error)
	FindByClaimNumber(ctx context.Context, orgID uuid.UUID, insurerID uuid.UUID, claimNumber string) (*models.Claim, error)
	List(ctx context.Context, orgID uuid.UUID, filter models.ListFilter) ([]*models.Claim, int, error)
	Update(ctx context.Context, claim *models.Claim) error

	// TransitionStatus persists the claim only if the stored status still
	// equals expectedFrom; otherwise it returns sentinel.ErrStaleStatus.
	TransitionStatus(ctx context.Context, claim *models.Claim, expectedFrom lifecycle.Status) error

	Delete(ctx context.Context, orgID, id uuid.UUID) error

	AppendHistory(ctx context.Context, entry *models.History) error
	ListHistory(ctx context.Context, orgID, claimID uuid.UUID) ([]*models.History, error)

	CreateInvoice(ctx context.Context, orgID uuid.UUID, inv *models.Invoice) error
	FindInvoice(ctx context.Context, orgID, claimID, invoiceID uuid.UUID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, orgID, claimID uuid.UUID) ([]*models.Invoice, error)
	UpdateInvoice(ctx context.Context, orgID uuid.UUID, inv *models.Invoice) error
	DeleteInvoice(ctx context.Context, orgID, claimID, invoiceID uuid.UUID) error
}
