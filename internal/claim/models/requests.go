package models

import (
	"time"

	"github.com/google/uuid"

	"claimstack/internal/lifecycle"
)

// CreateClaimRequest carries the fields accepted at creation. The record is
// born DRAFT; every field beyond the identity set is optional.
type CreateClaimRequest struct {
	ClaimNumber string    `json:"claimNumber"`
	ClientID    uuid.UUID `json:"clientId"`
	AffiliateID uuid.UUID `json:"affiliateId"`
	PatientID   uuid.UUID `json:"patientId"`

	PolicyID      *uuid.UUID `json:"policyId"`
	InsurerID     *uuid.UUID `json:"insurerId"`
	DiagnosisCode *string    `json:"diagnosisCode"`
	ServiceDate   *time.Time `json:"serviceDate"`
	ProviderName  *string    `json:"providerName"`
	Description   *string    `json:"description"`
	AmountClaimed *int64     `json:"amountClaimed"`
}

// ClaimPatch is a partial update. nil means "not sent"; a present pointer
// overwrites, including explicit nulls for clearable fields at the store
// layer (a sent field always overwrites).
type ClaimPatch struct {
	PolicyID      *uuid.UUID `json:"policyId"`
	InsurerID     *uuid.UUID `json:"insurerId"`
	DiagnosisCode *string    `json:"diagnosisCode"`
	ServiceDate   *time.Time `json:"serviceDate"`
	ProviderName  *string    `json:"providerName"`
	Description   *string    `json:"description"`
	AmountClaimed *int64     `json:"amountClaimed"`

	AmountSubmitted *int64     `json:"amountSubmitted"`
	SubmittedDate   *time.Time `json:"submittedDate"`

	AmountApproved *int64     `json:"amountApproved"`
	SettledDate    *time.Time `json:"settledDate"`
}

// Fields lists the lifecycle field names present in the patch, in a stable
// order so editability errors are deterministic.
func (p ClaimPatch) Fields() []string {
	var out []string
	if p.PolicyID != nil {
		out = append(out, lifecycle.ClaimFieldPolicyID)
	}
	if p.InsurerID != nil {
		out = append(out, lifecycle.ClaimFieldInsurerID)
	}
	if p.DiagnosisCode != nil {
		out = append(out, lifecycle.ClaimFieldDiagnosisCode)
	}
	if p.ServiceDate != nil {
		out = append(out, lifecycle.ClaimFieldServiceDate)
	}
	if p.ProviderName != nil {
		out = append(out, lifecycle.ClaimFieldProviderName)
	}
	if p.Description != nil {
		out = append(out, lifecycle.ClaimFieldDescription)
	}
	if p.AmountClaimed != nil {
		out = append(out, lifecycle.ClaimFieldAmountClaimed)
	}
	if p.AmountSubmitted != nil {
		out = append(out, lifecycle.ClaimFieldAmountSubmitted)
	}
	if p.SubmittedDate != nil {
		out = append(out, lifecycle.ClaimFieldSubmittedDate)
	}
	if p.AmountApproved != nil {
		out = append(out, lifecycle.ClaimFieldAmountApproved)
	}
	if p.SettledDate != nil {
		out = append(out, lifecycle.ClaimFieldSettledDate)
	}
	return out
}

// IsEmpty reports whether the patch carries no fields.
func (p ClaimPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Apply overwrites the claim with every present patch field.
func (p ClaimPatch) Apply(c *Claim) {
	if p.PolicyID != nil {
		id := *p.PolicyID
		c.PolicyID = &id
	}
	if p.InsurerID != nil {
		id := *p.InsurerID
		c.InsurerID = &id
	}
	if p.DiagnosisCode != nil {
		c.DiagnosisCode = copyString(p.DiagnosisCode)
	}
	if p.ServiceDate != nil {
		c.ServiceDate = copyTime(p.ServiceDate)
	}
	if p.ProviderName != nil {
		c.ProviderName = copyString(p.ProviderName)
	}
	if p.Description != nil {
		c.Description = copyString(p.Description)
	}
	if p.AmountClaimed != nil {
		v := *p.AmountClaimed
		c.AmountClaimed = &v
	}
	if p.AmountSubmitted != nil {
		v := *p.AmountSubmitted
		c.AmountSubmitted = &v
	}
	if p.SubmittedDate != nil {
		c.SubmittedDate = copyTime(p.SubmittedDate)
	}
	if p.AmountApproved != nil {
		v := *p.AmountApproved
		c.AmountApproved = &v
	}
	if p.SettledDate != nil {
		c.SettledDate = copyTime(p.SettledDate)
	}
}

// TransitionRequest asks for a status change, optionally with a same-request
// patch applied before invariant checks.
type TransitionRequest struct {
	ToStatus lifecycle.Status `json:"status"`
	Reason   *string          `json:"reason"`
	Notes    *string          `json:"notes"`
	Patch    *ClaimPatch      `json:"patch"`
}

// InvoiceInput carries invoice create/update fields.
type InvoiceInput struct {
	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        int64     `json:"amount"`
	IssuedDate    time.Time `json:"issuedDate"`
	Notes         *string   `json:"notes"`
}

// ListFilter narrows claim listings. Scope filtering is applied by the
// service on top of whatever the caller asks for.
type ListFilter struct {
	Statuses    []lifecycle.Status
	ClientID    *uuid.UUID
	AffiliateID *uuid.UUID
	InsurerID   *uuid.UUID
	// Search matches the claim number exactly or the patient name as a
	// case-insensitive substring.
	Search string

	// DateFrom/DateTo bound CreatedAt inclusively.
	DateFrom *time.Time
	DateTo   *time.Time

	// SortBy must be one of the lifecycle claim field names the handler
	// whitelists; empty means newest first.
	SortBy   string
	SortDesc bool

	// ScopeClientIDs, when non-nil, restricts rows to the given clients.
	// An empty non-nil slice matches nothing.
	ScopeClientIDs []uuid.UUID
	// ScopeAffiliateIDs, when non-nil, restricts rows to claims whose
	// subscriber is one of the given affiliates.
	ScopeAffiliateIDs []uuid.UUID

	Offset int
	Limit  int
}
