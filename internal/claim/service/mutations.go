package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	"claimstack/internal/claim/models"
	"claimstack/internal/lifecycle"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/sentinel"
	"claimstack/pkg/requestcontext"
)

// Create starts a claim in DRAFT and writes the entity, the synthetic
// null->DRAFT history row, and the audit row in one transaction.
func (s *Service) Create(ctx context.Context, req models.CreateClaimRequest) (*models.Claim, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident, authz.ActionClaimWrite)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.ClaimNumber) == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "claimNumber is required")
	}
	if req.ClientID == uuid.Nil || req.AffiliateID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, domainerrors.New(domainerrors.CodeValidation, "clientId, affiliateId and patientId are required")
	}
	if err := validateAmounts(req.AmountClaimed); err != nil {
		return nil, err
	}

	client, err := s.directory.FindClient(ctx, ident.OrgID, req.ClientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound("client"), "client not found")
	}
	if err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, domainerrors.New(domainerrors.Inactive("client"), "client is not active")
	}

	subscriber, err := s.directory.FindAffiliate(ctx, ident.OrgID, req.AffiliateID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound("affiliate"), "affiliate not found")
	}
	if err != nil {
		return nil, err
	}
	if subscriber.ClientID != req.ClientID {
		return nil, domainerrors.New(domainerrors.Mismatch("affiliate"), "affiliate does not belong to the client")
	}
	if !subscriber.IsMain() {
		return nil, domainerrors.New(domainerrors.Mismatch("affiliate"), "affiliate is not a primary subscriber")
	}
	if !subscriber.Active {
		return nil, domainerrors.New(domainerrors.Inactive("affiliate"), "affiliate is not active")
	}

	patient, err := s.directory.FindAffiliate(ctx, ident.OrgID, req.PatientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.NotFound("patient"), "patient not found")
	}
	if err != nil {
		return nil, err
	}
	if !patient.CoveredBy(subscriber.ID) {
		return nil, domainerrors.New(domainerrors.Mismatch("patient"), "patient is not covered by the affiliate")
	}

	if err := s.validateInsurerRef(ctx, ident.OrgID, req.InsurerID); err != nil {
		return nil, err
	}
	if err := s.validatePolicyRef(ctx, ident.OrgID, req.ClientID, req.PolicyID); err != nil {
		return nil, err
	}

	allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, authz.RecordRef{
		ClientID:    req.ClientID,
		AffiliateID: req.AffiliateID,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domainerrors.New(domainerrors.CodePermissionDenied, "cannot create claims for this affiliate")
	}

	if req.InsurerID != nil {
		if err := s.checkClaimNumberFree(ctx, ident.OrgID, *req.InsurerID, req.ClaimNumber, uuid.Nil); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	claim := &models.Claim{
		ID:            uuid.New(),
		OrgID:         ident.OrgID,
		ClaimNumber:   strings.TrimSpace(req.ClaimNumber),
		Status:        s.machine.Initial,
		ClientID:      req.ClientID,
		AffiliateID:   req.AffiliateID,
		PatientID:     req.PatientID,
		PatientName:   patient.Name,
		PolicyID:      req.PolicyID,
		InsurerID:     req.InsurerID,
		DiagnosisCode: req.DiagnosisCode,
		ServiceDate:   req.ServiceDate,
		ProviderName:  req.ProviderName,
		Description:   req.Description,
		AmountClaimed: req.AmountClaimed,
		CreatedByID:   ident.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, claim); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return domainerrors.New(domainerrors.NumberUnavailable(resourceClaim), "claim number already in use for this insurer")
			}
			return err
		}
		if err := s.store.AppendHistory(ctx, &models.History{
			ID:          uuid.New(),
			ClaimID:     claim.ID,
			FromStatus:  nil,
			ToStatus:    claim.Status,
			CreatedByID: ident.UserID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionClaimCreated, resourceClaim, claim.ID, map[string]any{
			"claimNumber": claim.ClaimNumber,
			"clientId":    claim.ClientID.String(),
			"status":      string(claim.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Update applies a partial edit. Any patched field outside the current
// status's editable set rejects the whole request.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch models.ClaimPatch) (*models.Claim, error) {
	ident := requestcontext.CallerIdentity(ctx)
	claim, err := s.loadAuthorized(ctx, ident, authz.ActionClaimWrite, id)
	if err != nil {
		return nil, err
	}

	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation, "no editable fields in request")
	}
	if err := s.checkEditable(claim.Status, fields); err != nil {
		return nil, err
	}
	if err := validateAmounts(patch.AmountClaimed, patch.AmountSubmitted, patch.AmountApproved); err != nil {
		return nil, err
	}
	if patch.InsurerID != nil {
		if err := s.validateInsurerRef(ctx, ident.OrgID, patch.InsurerID); err != nil {
			return nil, err
		}
		if err := s.checkClaimNumberFree(ctx, ident.OrgID, *patch.InsurerID, claim.ClaimNumber, claim.ID); err != nil {
			return nil, err
		}
	}
	if patch.PolicyID != nil {
		if err := s.validatePolicyRef(ctx, ident.OrgID, claim.ClientID, patch.PolicyID); err != nil {
			return nil, err
		}
	}

	patch.Apply(claim)
	claim.UpdatedAt = requestcontext.Now(ctx)

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, claim); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return domainerrors.New(domainerrors.NumberUnavailable(resourceClaim), "claim number already in use for this insurer")
			}
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionClaimUpdated, resourceClaim, claim.ID, map[string]any{
			"fields": fields,
			"status": string(claim.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Transition moves the claim along one edge of the lifecycle graph. An
// optional same-request patch merges into the record before invariants run.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req models.TransitionRequest) (*models.Claim, error) {
	ident := requestcontext.CallerIdentity(ctx)
	claim, err := s.loadAuthorized(ctx, ident, authz.ActionClaimWrite, id)
	if err != nil {
		return nil, err
	}

	if !s.machine.Knows(req.ToStatus) {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown status %q", req.ToStatus)
	}
	from := claim.Status
	if !s.machine.IsLegal(from, req.ToStatus) {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidTransition,
			"cannot transition claim from %s to %s", from, req.ToStatus)
	}
	if s.machine.ReasonRequired(from, req.ToStatus) && (req.Reason == nil || strings.TrimSpace(*req.Reason) == "") {
		return nil, domainerrors.Newf(domainerrors.CodeReasonRequired,
			"transition to %s requires a reason", req.ToStatus)
	}

	if req.Patch != nil {
		fields := req.Patch.Fields()
		if err := s.checkEditable(from, fields); err != nil {
			return nil, err
		}
		if err := validateAmounts(req.Patch.AmountClaimed, req.Patch.AmountSubmitted, req.Patch.AmountApproved); err != nil {
			return nil, err
		}
		req.Patch.Apply(claim)
	}

	var missing []string
	for _, field := range s.machine.RequiredFields(req.ToStatus) {
		if !claim.FieldPresent(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeInvariantViolation,
			"missing required fields for %s: %s", req.ToStatus, strings.Join(missing, ", "))
	}

	now := requestcontext.Now(ctx)
	for _, effect := range s.machine.Effects(from, req.ToStatus) {
		claim.ApplyEffect(effect, req.Reason, now)
	}
	claim.Status = req.ToStatus
	claim.UpdatedAt = now

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.TransitionStatus(ctx, claim, from); err != nil {
			if errors.Is(err, sentinel.ErrStaleStatus) {
				return domainerrors.New(domainerrors.CodeTransitionConflict, "claim was transitioned by another request")
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound(resourceClaim), "claim not found")
			}
			return err
		}
		if err := s.store.AppendHistory(ctx, &models.History{
			ID:          uuid.New(),
			ClaimID:     claim.ID,
			FromStatus:  &from,
			ToStatus:    req.ToStatus,
			Reason:      req.Reason,
			Notes:       req.Notes,
			CreatedByID: ident.UserID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionClaimTransitioned, resourceClaim, claim.ID, map[string]any{
			"fromStatus": string(from),
			"toStatus":   string(req.ToStatus),
			"reason":     stringOrNil(req.Reason),
			"notes":      stringOrNil(req.Notes),
		})
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Delete removes the claim with its history and invoices. The audit row
// snapshots the identifying fields since they stop being queryable.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ident := requestcontext.CallerIdentity(ctx)
	claim, err := s.loadAuthorized(ctx, ident, authz.ActionClaimWrite, id)
	if err != nil {
		return err
	}

	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.recorder.Record(ctx, ident.OrgID, audit.ActionClaimDeleted, resourceClaim, claim.ID, map[string]any{
			"claimNumber": claim.ClaimNumber,
			"status":      string(claim.Status),
			"clientId":    claim.ClientID.String(),
			"affiliateId": claim.AffiliateID.String(),
			"policyId":    uuidOrNil(claim.PolicyID),
			"insurerId":   uuidOrNil(claim.InsurerID),
		}); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, ident.OrgID, id); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound(resourceClaim), "claim not found")
			}
			return err
		}
		return nil
	})
}

func (s *Service) checkEditable(status lifecycle.Status, fields []string) error {
	editable := s.machine.EditableFields(status)
	var offending []string
	for _, f := range fields {
		if !editable[f] {
			offending = append(offending, f)
		}
	}
	if len(offending) > 0 {
		sort.Strings(offending)
		return domainerrors.Newf(domainerrors.CodeFieldNotEditable,
			"fields not editable in status %s: %s", status, strings.Join(offending, ", "))
	}
	return nil
}

func (s *Service) validateInsurerRef(ctx context.Context, orgID uuid.UUID, insurerID *uuid.UUID) error {
	if insurerID == nil {
		return nil
	}
	insurer, err := s.directory.FindInsurer(ctx, orgID, *insurerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerrors.New(domainerrors.NotFound("insurer"), "insurer not found")
	}
	if err != nil {
		return err
	}
	if !insurer.Active {
		return domainerrors.New(domainerrors.Inactive("insurer"), "insurer is not active")
	}
	return nil
}

func (s *Service) validatePolicyRef(ctx context.Context, orgID, clientID uuid.UUID, policyID *uuid.UUID) error {
	if policyID == nil {
		return nil
	}
	ref, err := s.policies.FindPolicyRef(ctx, orgID, *policyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerrors.New(domainerrors.NotFound("policy"), "policy not found")
	}
	if err != nil {
		return err
	}
	if ref.ClientID != clientID {
		return domainerrors.New(domainerrors.Mismatch("policy"), "policy does not belong to the client")
	}
	if ref.Status != lifecycle.PolicyActive {
		return domainerrors.New(domainerrors.Inactive("policy"), "policy is not active")
	}
	return nil
}

// checkClaimNumberFree pre-checks uniqueness of (insurer, claimNumber) inside
// the org, skipping the claim being edited. The database constraint remains
// the authority under races.
func (s *Service) checkClaimNumberFree(ctx context.Context, orgID, insurerID uuid.UUID, claimNumber string, selfID uuid.UUID) error {
	existing, err := s.store.FindByClaimNumber(ctx, orgID, insurerID, claimNumber)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return domainerrors.New(domainerrors.NumberUnavailable(resourceClaim), "claim number already in use for this insurer")
}

func validateAmounts(amounts ...*int64) error {
	for _, a := range amounts {
		if a != nil && *a < 0 {
			return domainerrors.New(domainerrors.CodeValidation, "amounts must not be negative")
		}
	}
	return nil
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
