package models

import (
	"time"

	"github.com/google/uuid"

	"claimstack/internal/lifecycle"
)

// CreatePolicyRequest carries the fields accepted at creation. The policy is
// born PENDING; financial terms may arrive later, before activation.
type CreatePolicyRequest struct {
	PolicyNumber      string     `json:"policyNumber"`
	ClientID          uuid.UUID  `json:"clientId"`
	InsurerID         *uuid.UUID `json:"insurerId"`
	HolderAffiliateID *uuid.UUID `json:"holderAffiliateId"`

	PlanName      *string    `json:"planName"`
	CoverageLevel *string    `json:"coverageLevel"`
	StartDate     *time.Time `json:"startDate"`
	EndDate       *time.Time `json:"endDate"`
	Premium       *int64     `json:"premium"`
	Deductible    *int64     `json:"deductible"`
	CoverageLimit *int64     `json:"coverageLimit"`
}

// PolicyPatch is a partial update; nil means "not sent".
type PolicyPatch struct {
	PlanName      *string    `json:"planName"`
	CoverageLevel *string    `json:"coverageLevel"`
	InsurerID     *uuid.UUID `json:"insurerId"`
	StartDate     *time.Time `json:"startDate"`
	EndDate       *time.Time `json:"endDate"`
	Premium       *int64     `json:"premium"`
	Deductible    *int64     `json:"deductible"`
	CoverageLimit *int64     `json:"coverageLimit"`
}

// Fields lists the lifecycle field names present in the patch, in a stable
// order so editability errors are deterministic.
func (p PolicyPatch) Fields() []string {
	var out []string
	if p.PlanName != nil {
		out = append(out, lifecycle.PolicyFieldPlanName)
	}
	if p.CoverageLevel != nil {
		out = append(out, lifecycle.PolicyFieldCoverageLevel)
	}
	if p.InsurerID != nil {
		out = append(out, lifecycle.PolicyFieldInsurerID)
	}
	if p.StartDate != nil {
		out = append(out, lifecycle.PolicyFieldStartDate)
	}
	if p.EndDate != nil {
		out = append(out, lifecycle.PolicyFieldEndDate)
	}
	if p.Premium != nil {
		out = append(out, lifecycle.PolicyFieldPremium)
	}
	if p.Deductible != nil {
		out = append(out, lifecycle.PolicyFieldDeductible)
	}
	if p.CoverageLimit != nil {
		out = append(out, lifecycle.PolicyFieldCoverageLimit)
	}
	return out
}

// Apply overwrites the policy with every present patch field.
func (p PolicyPatch) Apply(target *Policy) {
	if p.PlanName != nil {
		target.PlanName = copyString(p.PlanName)
	}
	if p.CoverageLevel != nil {
		target.CoverageLevel = copyString(p.CoverageLevel)
	}
	if p.InsurerID != nil {
		id := *p.InsurerID
		target.InsurerID = &id
	}
	if p.StartDate != nil {
		target.StartDate = copyTime(p.StartDate)
	}
	if p.EndDate != nil {
		target.EndDate = copyTime(p.EndDate)
	}
	if p.Premium != nil {
		v := *p.Premium
		target.Premium = &v
	}
	if p.Deductible != nil {
		v := *p.Deductible
		target.Deductible = &v
	}
	if p.CoverageLimit != nil {
		v := *p.CoverageLimit
		target.CoverageLimit = &v
	}
}

// TransitionRequest asks for a status change, optionally with a same-request
// patch applied before invariant checks.
type TransitionRequest struct {
	ToStatus lifecycle.Status `json:"status"`
	Reason   *string          `json:"reason"`
	Notes    *string          `json:"notes"`
	Patch    *PolicyPatch     `json:"patch"`
}

// ListFilter narrows policy listings.
type ListFilter struct {
	Statuses  []lifecycle.Status
	ClientID  *uuid.UUID
	InsurerID *uuid.UUID
	// Search matches the policy number exactly or the holder name as a
	// case-insensitive substring.
	Search string

	DateFrom *time.Time
	DateTo   *time.Time

	SortBy   string
	SortDesc bool

	// ScopeClientIDs / ScopeAffiliateIDs mirror the claim listing scope
	// narrowing; an empty non-nil slice matches nothing.
	ScopeClientIDs    []uuid.UUID
	ScopeAffiliateIDs []uuid.UUID

	Offset int
	Limit  int
}
