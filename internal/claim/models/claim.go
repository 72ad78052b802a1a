// Package models defines the claim aggregate, its append-only history, and
// its invoice children.
package models

import (
	"time"

	"github.com/google/uuid"

	"claimstack/internal/lifecycle"
)

// Claim is a versioned business document moving through the claim lifecycle.
//
// Invariants:
//   - Every related entity (client, affiliate, patient, policy, insurer)
//     shares the claim's OrgID.
//   - The patient is the subscribing affiliate or one of its dependents.
//   - Status only changes through a recorded transition; creation writes the
//     synthetic nil -> DRAFT history row.
//
// Field tiers unlock progressively by status; the lifecycle package is the
// single source of truth for which tier a status opens.
type Claim struct {
	ID          uuid.UUID        `json:"id"`
	OrgID       uuid.UUID        `json:"orgId"`
	ClaimNumber string           `json:"claimNumber"`
	Status      lifecycle.Status `json:"status"`

	ClientID    uuid.UUID `json:"clientId"`
	AffiliateID uuid.UUID `json:"affiliateId"`
	PatientID   uuid.UUID `json:"patientId"`
	// PatientName is denormalized for free-text search over listings.
	PatientName string     `json:"patientName"`
	PolicyID    *uuid.UUID `json:"policyId,omitempty"`
	InsurerID   *uuid.UUID `json:"insurerId,omitempty"`

	// Core tier.
	DiagnosisCode *string    `json:"diagnosisCode,omitempty"`
	ServiceDate   *time.Time `json:"serviceDate,omitempty"`
	ProviderName  *string    `json:"providerName,omitempty"`
	Description   *string    `json:"description,omitempty"`
	AmountClaimed *int64     `json:"amountClaimed,omitempty"`

	// Submission tier. Amounts are integer cents.
	AmountSubmitted *int64     `json:"amountSubmitted,omitempty"`
	SubmittedDate   *time.Time `json:"submittedDate,omitempty"`

	// Settlement tier.
	AmountApproved *int64     `json:"amountApproved,omitempty"`
	SettledDate    *time.Time `json:"settledDate,omitempty"`

	// Stamped by transition side effects, never edited directly.
	PendingReason      *string    `json:"pendingReason,omitempty"`
	PendedAt           *time.Time `json:"pendedAt,omitempty"`
	ReturnReason       *string    `json:"returnReason,omitempty"`
	ReturnedAt         *time.Time `json:"returnedAt,omitempty"`
	CancellationReason *string    `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`

	CreatedByID uuid.UUID `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FieldPresent reports whether the named lifecycle field is populated.
// Invariant checks run against the record after any same-request patch has
// been applied.
func (c *Claim) FieldPresent(name string) bool {
	switch name {
	case lifecycle.ClaimFieldDiagnosisCode:
		return c.DiagnosisCode != nil
	case lifecycle.ClaimFieldServiceDate:
		return c.ServiceDate != nil
	case lifecycle.ClaimFieldProviderName:
		return c.ProviderName != nil
	case lifecycle.ClaimFieldDescription:
		return c.Description != nil
	case lifecycle.ClaimFieldPolicyID:
		return c.PolicyID != nil
	case lifecycle.ClaimFieldInsurerID:
		return c.InsurerID != nil
	case lifecycle.ClaimFieldAmountClaimed:
		return c.AmountClaimed != nil
	case lifecycle.ClaimFieldAmountSubmitted:
		return c.AmountSubmitted != nil
	case lifecycle.ClaimFieldSubmittedDate:
		return c.SubmittedDate != nil
	case lifecycle.ClaimFieldAmountApproved:
		return c.AmountApproved != nil
	case lifecycle.ClaimFieldSettledDate:
		return c.SettledDate != nil
	}
	return false
}

// ApplyEffect executes one declared transition side effect.
func (c *Claim) ApplyEffect(effect lifecycle.FieldEffect, reason *string, now time.Time) {
	switch effect.Op {
	case lifecycle.OpStampNow:
		c.setTime(effect.Field, &now)
	case lifecycle.OpCopyReason:
		c.setString(effect.Field, reason)
	case lifecycle.OpClear:
		c.setTime(effect.Field, nil)
		c.setString(effect.Field, nil)
	}
}

func (c *Claim) setTime(field string, t *time.Time) {
	switch field {
	case lifecycle.ClaimFieldPendedAt:
		c.PendedAt = copyTime(t)
	case lifecycle.ClaimFieldReturnedAt:
		c.ReturnedAt = copyTime(t)
	case lifecycle.ClaimFieldCancelledAt:
		c.CancelledAt = copyTime(t)
	}
}

func (c *Claim) setString(field string, v *string) {
	switch field {
	case lifecycle.ClaimFieldPendingReason:
		c.PendingReason = copyString(v)
	case lifecycle.ClaimFieldReturnReason:
		c.ReturnReason = copyString(v)
	case lifecycle.ClaimFieldCancellationReason:
		c.CancellationReason = copyString(v)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// History is one append-only transition record. Immutable once written.
type History struct {
	ID      uuid.UUID `json:"id"`
	ClaimID uuid.UUID `json:"claimId"`
	// FromStatus is nil only on the synthetic creation row.
	FromStatus  *lifecycle.Status `json:"fromStatus"`
	ToStatus    lifecycle.Status  `json:"toStatus"`
	Reason      *string           `json:"reason,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	CreatedByID uuid.UUID         `json:"createdById"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Invoice is a claim's financial child document. Invoice mutations require
// record-level scope authorization only; field tiers do not apply.
type Invoice struct {
	ID            uuid.UUID `json:"id"`
	ClaimID       uuid.UUID `json:"claimId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        int64     `json:"amount"`
	IssuedDate    time.Time `json:"issuedDate"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
