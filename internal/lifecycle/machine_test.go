package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type MachineSuite struct {
	suite.Suite
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) TestForKind() {
	s.Run("returns claim machine", func() {
		m := ForKind(KindClaim)
		s.Require().NotNil(m)
		s.Equal(ClaimDraft, m.Initial)
	})

	s.Run("returns policy machine", func() {
		m := ForKind(KindPolicy)
		s.Require().NotNil(m)
		s.Equal(PolicyPending, m.Initial)
	})

	s.Run("unknown kind returns nil", func() {
		s.Nil(ForKind(RecordKind("invoice")))
	})
}

// TestClaimEdgesExhaustive enumerates every (from, to) pair of the claim
// status set and checks legality against the expected edge list.
func (s *MachineSuite) TestClaimEdgesExhaustive() {
	m := ForKind(KindClaim)
	legal := map[[2]Status]bool{
		{ClaimDraft, ClaimInReview}:        true,
		{ClaimInReview, ClaimSubmitted}:    true,
		{ClaimSubmitted, ClaimPendingInfo}: true,
		{ClaimPendingInfo, ClaimSubmitted}: true,
		{ClaimSubmitted, ClaimSettled}:     true,
		{ClaimDraft, ClaimReturned}:        true,
		{ClaimInReview, ClaimReturned}:     true,
		{ClaimDraft, ClaimCancelled}:       true,
		{ClaimInReview, ClaimCancelled}:    true,
	}
	for _, from := range m.Statuses() {
		for _, to := range m.Statuses() {
			want := legal[[2]Status{from, to}]
			s.Equalf(want, m.IsLegal(from, to), "edge %s -> %s", from, to)
		}
	}
}

func (s *MachineSuite) TestPolicyEdgesExhaustive() {
	m := ForKind(KindPolicy)
	legal := map[[2]Status]bool{
		{PolicyPending, PolicyActive}:      true,
		{PolicyActive, PolicySuspended}:    true,
		{PolicySuspended, PolicyActive}:    true,
		{PolicyActive, PolicyCancelled}:    true,
		{PolicySuspended, PolicyCancelled}: true,
		{PolicyActive, PolicyExpired}:      true,
	}
	for _, from := range m.Statuses() {
		for _, to := range m.Statuses() {
			want := legal[[2]Status{from, to}]
			s.Equalf(want, m.IsLegal(from, to), "edge %s -> %s", from, to)
		}
	}
}

// TestTerminalStatuses verifies terminal means out-degree zero, and that no
// terminal status has a legal outgoing edge to anywhere.
func (s *MachineSuite) TestTerminalStatuses() {
	cases := []struct {
		kind     RecordKind
		terminal []Status
		open     []Status
	}{
		{KindClaim,
			[]Status{ClaimSettled, ClaimReturned, ClaimCancelled},
			[]Status{ClaimDraft, ClaimInReview, ClaimSubmitted, ClaimPendingInfo}},
		{KindPolicy,
			[]Status{PolicyCancelled, PolicyExpired},
			[]Status{PolicyPending, PolicyActive, PolicySuspended}},
	}
	for _, tc := range cases {
		m := ForKind(tc.kind)
		for _, st := range tc.terminal {
			s.Truef(m.IsTerminal(st), "%s should be terminal", st)
			for _, to := range m.Statuses() {
				s.Falsef(m.IsLegal(st, to), "terminal %s must not reach %s", st, to)
			}
		}
		for _, st := range tc.open {
			s.Falsef(m.IsTerminal(st), "%s should not be terminal", st)
		}
	}
}

func (s *MachineSuite) TestReasonRequiredEdges() {
	claim := ForKind(KindClaim)
	s.True(claim.ReasonRequired(ClaimDraft, ClaimCancelled))
	s.True(claim.ReasonRequired(ClaimInReview, ClaimReturned))
	s.True(claim.ReasonRequired(ClaimSubmitted, ClaimPendingInfo))
	s.False(claim.ReasonRequired(ClaimDraft, ClaimInReview))
	s.False(claim.ReasonRequired(ClaimPendingInfo, ClaimSubmitted))
	// Non-existent edges never require a reason.
	s.False(claim.ReasonRequired(ClaimSettled, ClaimDraft))

	policy := ForKind(KindPolicy)
	s.True(policy.ReasonRequired(PolicyActive, PolicySuspended))
	s.True(policy.ReasonRequired(PolicySuspended, PolicyCancelled))
	s.False(policy.ReasonRequired(PolicyPending, PolicyActive))
	s.False(policy.ReasonRequired(PolicyActive, PolicyExpired))
}

func (s *MachineSuite) TestEditableFieldTiers() {
	m := ForKind(KindClaim)

	s.Run("draft allows only core fields", func() {
		set := m.EditableFields(ClaimDraft)
		s.True(set[ClaimFieldDiagnosisCode])
		s.True(set[ClaimFieldPolicyID])
		s.False(set[ClaimFieldAmountSubmitted])
		s.False(set[ClaimFieldAmountApproved])
	})

	s.Run("in review unlocks submission tier", func() {
		set := m.EditableFields(ClaimInReview)
		s.True(set[ClaimFieldDiagnosisCode])
		s.True(set[ClaimFieldAmountSubmitted])
		s.True(set[ClaimFieldSubmittedDate])
		s.False(set[ClaimFieldAmountApproved])
	})

	s.Run("submitted allows only settlement fields", func() {
		set := m.EditableFields(ClaimSubmitted)
		s.True(set[ClaimFieldAmountApproved])
		s.True(set[ClaimFieldSettledDate])
		s.False(set[ClaimFieldDiagnosisCode])
	})

	s.Run("terminal statuses allow nothing", func() {
		for _, st := range []Status{ClaimSettled, ClaimReturned, ClaimCancelled} {
			s.Emptyf(m.EditableFields(st), "status %s", st)
		}
	})

	s.Run("active policy allows financial additions only", func() {
		set := ForKind(KindPolicy).EditableFields(PolicyActive)
		s.True(set[PolicyFieldPremium])
		s.True(set[PolicyFieldEndDate])
		s.False(set[PolicyFieldPlanName])
		s.False(set[PolicyFieldDeductible])
	})
}

func (s *MachineSuite) TestRequiredFields() {
	claim := ForKind(KindClaim)
	s.Equal([]string{
		ClaimFieldDiagnosisCode,
		ClaimFieldServiceDate,
		ClaimFieldPolicyID,
		ClaimFieldInsurerID,
	}, claim.RequiredFields(ClaimInReview))
	s.Equal([]string{
		ClaimFieldAmountSubmitted,
		ClaimFieldSubmittedDate,
	}, claim.RequiredFields(ClaimSubmitted))
	s.Empty(claim.RequiredFields(ClaimCancelled))

	policy := ForKind(KindPolicy)
	s.Equal([]string{
		PolicyFieldPlanName,
		PolicyFieldCoverageLevel,
		PolicyFieldPremium,
		PolicyFieldDeductible,
		PolicyFieldCoverageLimit,
	}, policy.RequiredFields(PolicyActive))
}

func (s *MachineSuite) TestTransitionEffects() {
	s.Run("entering cancelled stamps timestamp and copies reason", func() {
		effects := ForKind(KindClaim).Effects(ClaimInReview, ClaimCancelled)
		s.Equal([]FieldEffect{
			{Field: ClaimFieldCancelledAt, Op: OpStampNow},
			{Field: ClaimFieldCancellationReason, Op: OpCopyReason},
		}, effects)
	})

	s.Run("leaving pending info clears pause fields", func() {
		effects := ForKind(KindClaim).Effects(ClaimPendingInfo, ClaimSubmitted)
		s.Equal([]FieldEffect{
			{Field: ClaimFieldPendedAt, Op: OpClear},
			{Field: ClaimFieldPendingReason, Op: OpClear},
		}, effects)
	})

	s.Run("resuming a suspended policy clears suspension fields", func() {
		effects := ForKind(KindPolicy).Effects(PolicySuspended, PolicyActive)
		s.Equal([]FieldEffect{
			{Field: PolicyFieldSuspendedAt, Op: OpClear},
			{Field: PolicyFieldSuspensionReason, Op: OpClear},
		}, effects)
	})

	s.Run("plain edges have no effects", func() {
		s.Empty(ForKind(KindClaim).Effects(ClaimDraft, ClaimInReview))
	})
}

func (s *MachineSuite) TestKnows() {
	claim := ForKind(KindClaim)
	s.True(claim.Knows(ClaimDraft))
	s.True(claim.Knows(ClaimPendingInfo))
	s.False(claim.Knows(PolicyActive))
	s.False(claim.Knows(Status("ARCHIVED")))
}
