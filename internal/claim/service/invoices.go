package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	"claimstack/internal/claim/models"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/sentinel"
	"claimstack/pkg/requestcontext"
)

// Invoice operations require record-level scope on the parent claim only;
// field tiers and invariants do not apply to children.

func validateInvoiceInput(in models.InvoiceInput) error {
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		return domainerrors.New(domainerrors.CodeValidation, "invoiceNumber is required")
	}
	if in.Amount <= 0 {
		return domainerrors.New(domainerrors.CodeValidation, "amount must be positive")
	}
	if in.IssuedDate.IsZero() {
		return domainerrors.New(domainerrors.CodeValidation, "issuedDate is required")
	}
	return nil
}

func (s *Service) CreateInvoice(ctx context.Context, claimID uuid.UUID, in models.InvoiceInput) (*models.Invoice, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimWrite, claimID); err != nil {
		return nil, err
	}
	if err := validateInvoiceInput(in); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	inv := &models.Invoice{
		ID:            uuid.New(),
		ClaimID:       claimID,
		InvoiceNumber: strings.TrimSpace(in.InvoiceNumber),
		Amount:        in.Amount,
		IssuedDate:    in.IssuedDate,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateInvoice(ctx, ident.OrgID, inv); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound(resourceClaim), "claim not found")
			}
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionInvoiceCreated, resourceClaim, claimID, map[string]any{
			"invoiceId":     inv.ID.String(),
			"invoiceNumber": inv.InvoiceNumber,
			"amount":        inv.Amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, claimID, invoiceID uuid.UUID) (*models.Invoice, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimRead, claimID); err != nil {
		return nil, err
	}
	inv, err := s.store.FindInvoice(ctx, ident.OrgID, claimID, invoiceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound("invoice"), "invoice not found")
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, claimID uuid.UUID) ([]*models.Invoice, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimRead, claimID); err != nil {
		return nil, err
	}
	return s.store.ListInvoices(ctx, ident.OrgID, claimID)
}

func (s *Service) UpdateInvoice(ctx context.Context, claimID, invoiceID uuid.UUID, in models.InvoiceInput) (*models.Invoice, error) {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimWrite, claimID); err != nil {
		return nil, err
	}
	if err := validateInvoiceInput(in); err != nil {
		return nil, err
	}
	inv, err := s.store.FindInvoice(ctx, ident.OrgID, claimID, invoiceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound("invoice"), "invoice not found")
	}
	if err != nil {
		return nil, err
	}

	inv.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	inv.Amount = in.Amount
	inv.IssuedDate = in.IssuedDate
	inv.Notes = in.Notes
	inv.UpdatedAt = requestcontext.Now(ctx)

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateInvoice(ctx, ident.OrgID, inv); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound("invoice"), "invoice not found")
			}
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionInvoiceUpdated, resourceClaim, claimID, map[string]any{
			"invoiceId":     inv.ID.String(),
			"invoiceNumber": inv.InvoiceNumber,
			"amount":        inv.Amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, claimID, invoiceID uuid.UUID) error {
	ident := requestcontext.CallerIdentity(ctx)
	if _, err := s.loadAuthorized(ctx, ident, authz.ActionClaimWrite, claimID); err != nil {
		return err
	}
	inv, err := s.store.FindInvoice(ctx, ident.OrgID, claimID, invoiceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerrors.New(domainerrors.NotFound("invoice"), "invoice not found")
	}
	if err != nil {
		return err
	}

	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteInvoice(ctx, ident.OrgID, claimID, invoiceID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound("invoice"), "invoice not found")
			}
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionInvoiceDeleted, resourceClaim, claimID, map[string]any{
			"invoiceId":     inv.ID.String(),
			"invoiceNumber": inv.InvoiceNumber,
			"amount":        inv.Amount,
		})
	})
}
