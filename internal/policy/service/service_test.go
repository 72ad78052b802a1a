package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	dirmodels "claimstack/internal/directory/models"
	dirstore "claimstack/internal/directory/store"
	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
	policystore "claimstack/internal/policy/store"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/tx"
	"claimstack/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	store     *policystore.InMemory
	directory *dirstore.InMemory
	auditLog  *audit.InMemoryStore
	svc       *Service

	orgID     uuid.UUID
	managerID uuid.UUID
	memberID  uuid.UUID

	clientID  uuid.UUID
	holderID  uuid.UUID
	insurerID uuid.UUID

	now time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = policystore.NewInMemory()
	s.directory = dirstore.NewInMemory()
	s.auditLog = audit.NewInMemoryStore()

	s.orgID = uuid.New()
	s.managerID = uuid.New()
	s.memberID = uuid.New()
	s.clientID = uuid.New()
	s.holderID = uuid.New()
	s.insurerID = uuid.New()
	s.now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s.directory.PutClient(&dirmodels.Client{
		ID: s.clientID, OrgID: s.orgID, Name: "Acme Benefits", Active: true,
	})
	s.directory.PutAffiliate(&dirmodels.Affiliate{
		ID: s.holderID, OrgID: s.orgID, ClientID: s.clientID,
		UserID: s.memberID, Name: "Jordan Alvarez", Active: true,
	})
	s.directory.PutInsurer(&dirmodels.Insurer{
		ID: s.insurerID, OrgID: s.orgID, Name: "Atlas Mutual", Active: true,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(s.auditLog, audit.NoopPublisher{}, logger)
	s.svc = New(s.store, s.directory, authz.New(s.directory, s.directory),
		tx.PassthroughRunner{}, recorder, logger)
}

func (s *ServiceSuite) ctxAs(userID uuid.UUID, role string) context.Context {
	ctx := requestcontext.WithIdentity(context.Background(), requestcontext.Identity{
		UserID: userID, OrgID: s.orgID, Role: role,
	})
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) managerCtx() context.Context {
	return s.ctxAs(s.managerID, authz.RoleOrgManager)
}

// createRequest takes the policy number explicitly because subtests under one
// method share the store and the number is unique per org.
func (s *ServiceSuite) createRequest(number string) models.CreatePolicyRequest {
	return models.CreatePolicyRequest{
		PolicyNumber:      number,
		ClientID:          s.clientID,
		InsurerID:         &s.insurerID,
		HolderAffiliateID: &s.holderID,
	}
}

func (s *ServiceSuite) mustCreate(ctx context.Context, number string) *models.Policy {
	policy, err := s.svc.Create(ctx, s.createRequest(number))
	s.Require().NoError(err)
	return policy
}

// fillActivation patches in everything required to go active.
func (s *ServiceSuite) fillActivation(ctx context.Context, id uuid.UUID) *models.Policy {
	plan := "Gold PPO"
	level := "FAMILY"
	premium := int64(450_00)
	deductible := int64(1_000_00)
	limit := int64(500_000_00)
	policy, err := s.svc.Update(ctx, id, models.PolicyPatch{
		PlanName:      &plan,
		CoverageLevel: &level,
		Premium:       &premium,
		Deductible:    &deductible,
		CoverageLimit: &limit,
	})
	s.Require().NoError(err)
	return policy
}

func (s *ServiceSuite) activate(ctx context.Context, id uuid.UUID) *models.Policy {
	s.fillActivation(ctx, id)
	policy, err := s.svc.Transition(ctx, id, models.TransitionRequest{
		ToStatus: lifecycle.PolicyActive,
	})
	s.Require().NoError(err)
	return policy
}

func (s *ServiceSuite) TestCreate() {
	s.Run("starts pending with history and audit rows", func() {
		policy := s.mustCreate(s.managerCtx(), "POL-1001")
		s.Equal(lifecycle.PolicyPending, policy.Status)
		s.Equal("Jordan Alvarez", policy.HolderName)

		history, total, err := s.svc.History(s.managerCtx(), policy.ID, 0, 10)
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Nil(history[0].FromStatus)
		s.Equal(lifecycle.PolicyPending, history[0].ToStatus)

		entries := s.auditLog.All()
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionPolicyCreated, entries[0].Action)
	})

	s.Run("group policy without holder", func() {
		req := s.createRequest("POL-2000")
		req.HolderAffiliateID = nil
		policy, err := s.svc.Create(s.managerCtx(), req)
		s.Require().NoError(err)
		s.Nil(policy.HolderAffiliateID)
		s.Empty(policy.HolderName)
	})

	s.Run("rejects duplicate policy number", func() {
		s.mustCreate(s.managerCtx(), "POL-6000")
		_, err := s.svc.Create(s.managerCtx(), s.createRequest("POL-6000"))
		s.True(domainerrors.HasCode(err, domainerrors.NumberUnavailable("policy")))
	})

	s.Run("rejects holder of another client", func() {
		otherClient := uuid.New()
		s.directory.PutClient(&dirmodels.Client{
			ID: otherClient, OrgID: s.orgID, Name: "Borealis Group", Active: true,
		})
		req := s.createRequest("POL-3000")
		req.ClientID = otherClient
		_, err := s.svc.Create(s.managerCtx(), req)
		s.True(domainerrors.HasCode(err, domainerrors.Mismatch("affiliate")))
	})

	s.Run("rejects inverted term", func() {
		start := s.now
		end := s.now.AddDate(-1, 0, 0)
		req := s.createRequest("POL-4000")
		req.StartDate = &start
		req.EndDate = &end
		_, err := s.svc.Create(s.managerCtx(), req)
		s.True(domainerrors.HasCode(err, domainerrors.CodeValidation))
	})

	s.Run("member cannot create policies", func() {
		req := s.createRequest("POL-5000")
		_, err := s.svc.Create(s.ctxAs(s.memberID, authz.RoleMember), req)
		s.True(domainerrors.HasCode(err, domainerrors.CodePermissionDenied))
	})
}

func (s *ServiceSuite) TestActivation() {
	s.Run("requires the activation field set", func() {
		policy := s.mustCreate(s.managerCtx(), "POL-1001")
		_, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
			ToStatus: lifecycle.PolicyActive,
		})
		s.True(domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))
		msg := domainerrors.MessageOf(err)
		s.Contains(msg, "planName")
		s.Contains(msg, "premium")
		s.Contains(msg, "coverageLimit")
	})

	s.Run("activates once terms are settled", func() {
		policy := s.mustCreate(s.managerCtx(), "POL-1002")
		active := s.activate(s.managerCtx(), policy.ID)
		s.Equal(lifecycle.PolicyActive, active.Status)
	})

	s.Run("activation fields merge in the same request", func() {
		req := s.createRequest("POL-7000")
		policy, err := s.svc.Create(s.managerCtx(), req)
		s.Require().NoError(err)

		plan := "Silver HMO"
		level := "INDIVIDUAL"
		premium := int64(220_00)
		deductible := int64(2_500_00)
		limit := int64(250_000_00)
		active, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
			ToStatus: lifecycle.PolicyActive,
			Patch: &models.PolicyPatch{
				PlanName:      &plan,
				CoverageLevel: &level,
				Premium:       &premium,
				Deductible:    &deductible,
				CoverageLimit: &limit,
			},
		})
		s.Require().NoError(err)
		s.Equal(lifecycle.PolicyActive, active.Status)
	})
}

func (s *ServiceSuite) TestSuspendResume() {
	policy := s.mustCreate(s.managerCtx(), "POL-1001")
	s.activate(s.managerCtx(), policy.ID)

	_, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
		ToStatus: lifecycle.PolicySuspended,
	})
	s.True(domainerrors.HasCode(err, domainerrors.CodeReasonRequired))

	reason := "premium unpaid"
	suspended, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
		ToStatus: lifecycle.PolicySuspended,
		Reason:   &reason,
	})
	s.Require().NoError(err)
	s.Require().NotNil(suspended.SuspensionReason)
	s.Equal("premium unpaid", *suspended.SuspensionReason)
	s.NotNil(suspended.SuspendedAt)

	resumed, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
		ToStatus: lifecycle.PolicyActive,
	})
	s.Require().NoError(err)
	s.Nil(resumed.SuspensionReason)
	s.Nil(resumed.SuspendedAt)
}

func (s *ServiceSuite) TestFieldGates() {
	s.Run("active policy only allows financial additions", func() {
		policy := s.mustCreate(s.managerCtx(), "POL-1001")
		s.activate(s.managerCtx(), policy.ID)

		plan := "Platinum PPO"
		_, err := s.svc.Update(s.managerCtx(), policy.ID, models.PolicyPatch{PlanName: &plan})
		s.True(domainerrors.HasCode(err, domainerrors.CodeFieldNotEditable))
		s.Contains(domainerrors.MessageOf(err), "planName")

		premium := int64(475_00)
		end := s.now.AddDate(1, 0, 0)
		updated, err := s.svc.Update(s.managerCtx(), policy.ID, models.PolicyPatch{
			Premium: &premium,
			EndDate: &end,
		})
		s.Require().NoError(err)
		s.Equal(premium, *updated.Premium)
	})

	s.Run("terminal policy allows nothing", func() {
		policy := s.mustCreate(s.managerCtx(), "POL-1002")
		s.activate(s.managerCtx(), policy.ID)
		reason := "client offboarded"
		_, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
			ToStatus: lifecycle.PolicyCancelled,
			Reason:   &reason,
		})
		s.Require().NoError(err)

		premium := int64(1_00)
		_, err = s.svc.Update(s.managerCtx(), policy.ID, models.PolicyPatch{Premium: &premium})
		s.True(domainerrors.HasCode(err, domainerrors.CodeFieldNotEditable))
	})
}

func (s *ServiceSuite) TestScopesAndListing() {
	policy := s.mustCreate(s.managerCtx(), "POL-1001")

	s.Run("member reads own policy but not a group one", func() {
		memberCtx := s.ctxAs(s.memberID, authz.RoleMember)
		got, err := s.svc.Get(memberCtx, policy.ID)
		s.Require().NoError(err)
		s.Equal(policy.ID, got.ID)

		req := s.createRequest("POL-8000")
		req.HolderAffiliateID = nil
		group, err := s.svc.Create(s.managerCtx(), req)
		s.Require().NoError(err)

		_, err = s.svc.Get(memberCtx, group.ID)
		s.True(domainerrors.HasCode(err, domainerrors.CodePermissionDenied))
	})

	s.Run("member listing only includes held policies", func() {
		policies, total, err := s.svc.List(s.ctxAs(s.memberID, authz.RoleMember), models.ListFilter{Limit: 10})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(policy.ID, policies[0].ID)
	})

	s.Run("cross-org policy reads as not found", func() {
		foreignCtx := requestcontext.WithIdentity(context.Background(), requestcontext.Identity{
			UserID: uuid.New(), OrgID: uuid.New(), Role: authz.RoleOrgManager,
		})
		_, err := s.svc.Get(foreignCtx, policy.ID)
		s.True(domainerrors.HasCode(err, domainerrors.NotFound("policy")))
	})
}

func (s *ServiceSuite) TestDelete() {
	policy := s.mustCreate(s.managerCtx(), "POL-1001")
	s.Require().NoError(s.svc.Delete(s.managerCtx(), policy.ID))

	_, err := s.svc.Get(s.managerCtx(), policy.ID)
	s.True(domainerrors.HasCode(err, domainerrors.NotFound("policy")))

	entries := s.auditLog.All()
	last := entries[len(entries)-1]
	s.Equal(audit.ActionPolicyDeleted, last.Action)
	s.Equal(policy.PolicyNumber, last.Metadata["policyNumber"])
}

func (s *ServiceSuite) TestExpiry() {
	policy := s.mustCreate(s.managerCtx(), "POL-1001")
	s.activate(s.managerCtx(), policy.ID)

	expired, err := s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
		ToStatus: lifecycle.PolicyExpired,
	})
	s.Require().NoError(err)
	s.Equal(lifecycle.PolicyExpired, expired.Status)

	_, err = s.svc.Transition(s.managerCtx(), policy.ID, models.TransitionRequest{
		ToStatus: lifecycle.PolicyActive,
	})
	s.True(domainerrors.HasCode(err, domainerrors.CodeInvalidTransition))
}
