// Package models defines the policy aggregate and its transition history.
package models

import (
	"time"

	"github.com/google/uuid"

	"claimstack/internal/lifecycle"
)

// Policy is a coverage contract between a client and an insurer. It moves
// through the policy lifecycle: born PENDING, activated once the financial
// terms are settled, and suspended or cancelled from there.
//
// HolderAffiliateID is set for individual policies only; group policies have
// no holder and are never visible at own scope.
type Policy struct {
	ID           uuid.UUID        `json:"id"`
	OrgID        uuid.UUID        `json:"orgId"`
	PolicyNumber string           `json:"policyNumber"`
	Status       lifecycle.Status `json:"status"`

	ClientID          uuid.UUID  `json:"clientId"`
	InsurerID         *uuid.UUID `json:"insurerId,omitempty"`
	HolderAffiliateID *uuid.UUID `json:"holderAffiliateId,omitempty"`
	// HolderName is denormalized for free-text search over listings.
	HolderName string `json:"holderName,omitempty"`

	PlanName      *string    `json:"planName,omitempty"`
	CoverageLevel *string    `json:"coverageLevel,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`

	// Financial terms in integer cents; required before activation.
	Premium       *int64 `json:"premium,omitempty"`
	Deductible    *int64 `json:"deductible,omitempty"`
	CoverageLimit *int64 `json:"coverageLimit,omitempty"`

	// Stamped by transition side effects, never edited directly.
	SuspensionReason   *string    `json:"suspensionReason,omitempty"`
	SuspendedAt        *time.Time `json:"suspendedAt,omitempty"`
	CancellationReason *string    `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`

	CreatedByID uuid.UUID `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FieldPresent reports whether the named lifecycle field is populated.
func (p *Policy) FieldPresent(name string) bool {
	switch name {
	case lifecycle.PolicyFieldPlanName:
		return p.PlanName != nil
	case lifecycle.PolicyFieldCoverageLevel:
		return p.CoverageLevel != nil
	case lifecycle.PolicyFieldInsurerID:
		return p.InsurerID != nil
	case lifecycle.PolicyFieldStartDate:
		return p.StartDate != nil
	case lifecycle.PolicyFieldEndDate:
		return p.EndDate != nil
	case lifecycle.PolicyFieldPremium:
		return p.Premium != nil
	case lifecycle.PolicyFieldDeductible:
		return p.Deductible != nil
	case lifecycle.PolicyFieldCoverageLimit:
		return p.CoverageLimit != nil
	}
	return false
}

// ApplyEffect executes one declared transition side effect.
func (p *Policy) ApplyEffect(effect lifecycle.FieldEffect, reason *string, now time.Time) {
	switch effect.Op {
	case lifecycle.OpStampNow:
		p.setTime(effect.Field, &now)
	case lifecycle.OpCopyReason:
		p.setString(effect.Field, reason)
	case lifecycle.OpClear:
		p.setTime(effect.Field, nil)
		p.setString(effect.Field, nil)
	}
}

func (p *Policy) setTime(field string, t *time.Time) {
	switch field {
	case lifecycle.PolicyFieldSuspendedAt:
		p.SuspendedAt = copyTime(t)
	case lifecycle.PolicyFieldCancelledAt:
		p.CancelledAt = copyTime(t)
	}
}

func (p *Policy) setString(field string, v *string) {
	switch field {
	case lifecycle.PolicyFieldSuspensionReason:
		p.SuspensionReason = copyString(v)
	case lifecycle.PolicyFieldCancellationReason:
		p.CancellationReason = copyString(v)
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

// History is one append-only policy transition record.
type History struct {
	ID       uuid.UUID `json:"id"`
	PolicyID uuid.UUID `json:"policyId"`
	// FromStatus is nil only on the synthetic creation row.
	FromStatus  *lifecycle.Status `json:"fromStatus"`
	ToStatus    lifecycle.Status  `json:"toStatus"`
	Reason      *string           `json:"reason,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	CreatedByID uuid.UUID         `json:"createdById"`
	CreatedAt   time.Time         `json:"createdAt"`
}
