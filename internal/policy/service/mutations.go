package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/sentinel"
	"claimstack/pkg/requestcontext"
)

// Create starts a policy in PENDING and writes the entity, the synthetic
// null->PENDING history row, and the audit row in one transaction.
func (s *Service) Create(ctx context.Context, req models.CreatePolicyRequest) (*models.Policy, error) {
	ident := requestcontext.CallerIdentity(ctx)
	scope, err := s.resolveScope(ident, authz.ActionPolicyWrite)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.PolicyNumber) == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "policyNumber is required")
	}
	if req.ClientID == uuid.Nil {
		return nil, domainerrors.New(domainerrors.CodeValidation, "clientId is required")
	}
	if err := validateAmounts(req.Premium, req.Deductible, req.CoverageLimit); err != nil {
		return nil, err
	}
	if err := validateTerm(req.StartDate, req.EndDate); err != nil {
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

	if err := s.validateInsurerRef(ctx, ident.OrgID, req.InsurerID); err != nil {
		return nil, err
	}

	var holderName string
	if req.HolderAffiliateID != nil {
		holder, err := s.directory.FindAffiliate(ctx, ident.OrgID, *req.HolderAffiliateID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.NotFound("affiliate"), "affiliate not found")
		}
		if err != nil {
			return nil, err
		}
		if holder.ClientID != req.ClientID {
			return nil, domainerrors.New(domainerrors.Mismatch("affiliate"), "affiliate does not belong to the client")
		}
		if !holder.Active {
			return nil, domainerrors.New(domainerrors.Inactive("affiliate"), "affiliate is not active")
		}
		holderName = holder.Name
	}

	ref := authz.RecordRef{ClientID: req.ClientID}
	if req.HolderAffiliateID != nil {
		ref.AffiliateID = *req.HolderAffiliateID
	}
	allowed, err := s.authorizer.Allowed(ctx, ident.UserID, scope, ref)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domainerrors.New(domainerrors.CodePermissionDenied, "cannot create policies for this client")
	}

	if err := s.checkPolicyNumberFree(ctx, ident.OrgID, req.PolicyNumber, uuid.Nil); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	policy := &models.Policy{
		ID:                uuid.New(),
		OrgID:             ident.OrgID,
		PolicyNumber:      strings.TrimSpace(req.PolicyNumber),
		Status:            s.machine.Initial,
		ClientID:          req.ClientID,
		InsurerID:         req.InsurerID,
		HolderAffiliateID: req.HolderAffiliateID,
		HolderName:        holderName,
		PlanName:          req.PlanName,
		CoverageLevel:     req.CoverageLevel,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Premium:           req.Premium,
		Deductible:        req.Deductible,
		CoverageLimit:     req.CoverageLimit,
		CreatedByID:       ident.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, policy); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return domainerrors.New(domainerrors.NumberUnavailable(resourcePolicy), "policy number already in use")
			}
			return err
		}
		if err := s.store.AppendHistory(ctx, &models.History{
			ID:          uuid.New(),
			PolicyID:    policy.ID,
			ToStatus:    policy.Status,
			CreatedByID: ident.UserID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionPolicyCreated, resourcePolicy, policy.ID, map[string]any{
			"policyNumber": policy.PolicyNumber,
			"clientId":     policy.ClientID.String(),
			"status":       string(policy.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Update applies a partial edit gated by the current status's editable set.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch models.PolicyPatch) (*models.Policy, error) {
	ident := requestcontext.CallerIdentity(ctx)
	policy, err := s.loadAuthorized(ctx, ident, authz.ActionPolicyWrite, id)
	if err != nil {
		return nil, err
	}

	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation, "no editable fields in request")
	}
	if err := s.checkEditable(policy.Status, fields); err != nil {
		return nil, err
	}
	if err := validateAmounts(patch.Premium, patch.Deductible, patch.CoverageLimit); err != nil {
		return nil, err
	}
	if patch.InsurerID != nil {
		if err := s.validateInsurerRef(ctx, ident.OrgID, patch.InsurerID); err != nil {
			return nil, err
		}
	}

	patch.Apply(policy)
	if err := validateTerm(policy.StartDate, policy.EndDate); err != nil {
		return nil, err
	}
	policy.UpdatedAt = requestcontext.Now(ctx)

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, policy); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return domainerrors.New(domainerrors.NumberUnavailable(resourcePolicy), "policy number already in use")
			}
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionPolicyUpdated, resourcePolicy, policy.ID, map[string]any{
			"fields": fields,
			"status": string(policy.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Transition moves the policy along one edge of the lifecycle graph.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req models.TransitionRequest) (*models.Policy, error) {
	ident := requestcontext.CallerIdentity(ctx)
	policy, err := s.loadAuthorized(ctx, ident, authz.ActionPolicyWrite, id)
	if err != nil {
		return nil, err
	}

	if !s.machine.Knows(req.ToStatus) {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown status %q", req.ToStatus)
	}
	from := policy.Status
	if !s.machine.IsLegal(from, req.ToStatus) {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidTransition,
			"cannot transition policy from %s to %s", from, req.ToStatus)
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
		if err := validateAmounts(req.Patch.Premium, req.Patch.Deductible, req.Patch.CoverageLimit); err != nil {
			return nil, err
		}
		req.Patch.Apply(policy)
	}

	var missing []string
	for _, field := range s.machine.RequiredFields(req.ToStatus) {
		if !policy.FieldPresent(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeInvariantViolation,
			"missing required fields for %s: %s", req.ToStatus, strings.Join(missing, ", "))
	}

	now := requestcontext.Now(ctx)
	for _, effect := range s.machine.Effects(from, req.ToStatus) {
		policy.ApplyEffect(effect, req.Reason, now)
	}
	policy.Status = req.ToStatus
	policy.UpdatedAt = now

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.TransitionStatus(ctx, policy, from); err != nil {
			if errors.Is(err, sentinel.ErrStaleStatus) {
				return domainerrors.New(domainerrors.CodeTransitionConflict, "policy was transitioned by another request")
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound(resourcePolicy), "policy not found")
			}
			return err
		}
		if err := s.store.AppendHistory(ctx, &models.History{
			ID:          uuid.New(),
			PolicyID:    policy.ID,
			FromStatus:  &from,
			ToStatus:    req.ToStatus,
			Reason:      req.Reason,
			Notes:       req.Notes,
			CreatedByID: ident.UserID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ident.OrgID, audit.ActionPolicyTransitioned, resourcePolicy, policy.ID, map[string]any{
			"fromStatus": string(from),
			"toStatus":   string(req.ToStatus),
			"reason":     stringOrNil(req.Reason),
			"notes":      stringOrNil(req.Notes),
		})
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Delete removes the policy with its history. The audit row snapshots the
// identifying fields since they stop being queryable.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ident := requestcontext.CallerIdentity(ctx)
	policy, err := s.loadAuthorized(ctx, ident, authz.ActionPolicyWrite, id)
	if err != nil {
		return err
	}

	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.recorder.Record(ctx, ident.OrgID, audit.ActionPolicyDeleted, resourcePolicy, policy.ID, map[string]any{
			"policyNumber": policy.PolicyNumber,
			"status":       string(policy.Status),
			"clientId":     policy.ClientID.String(),
			"insurerId":    uuidOrNil(policy.InsurerID),
		}); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, ident.OrgID, id); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.NotFound(resourcePolicy), "policy not found")
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

// checkPolicyNumberFree pre-checks uniqueness inside the org. The database
// constraint remains the authority under races.
func (s *Service) checkPolicyNumberFree(ctx context.Context, orgID uuid.UUID, policyNumber string, selfID uuid.UUID) error {
	existing, err := s.store.FindByPolicyNumber(ctx, orgID, policyNumber)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return domainerrors.New(domainerrors.NumberUnavailable(resourcePolicy), "policy number already in use")
}

func validateAmounts(amounts ...*int64) error {
	for _, a := range amounts {
		if a != nil && *a < 0 {
			return domainerrors.New(domainerrors.CodeValidation, "amounts must not be negative")
		}
	}
	return nil
}

func validateTerm(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return domainerrors.New(domainerrors.CodeValidation, "endDate must not precede startDate")
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
