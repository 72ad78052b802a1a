package lifecycle

// Claim statuses.
const (
	ClaimDraft       Status = "DRAFT"
	ClaimInReview    Status = "IN_REVIEW"
	ClaimSubmitted   Status = "SUBMITTED"
	ClaimPendingInfo Status = "PENDING_INFO"
	ClaimSettled     Status = "SETTLED"
	ClaimReturned    Status = "RETURNED"
	ClaimCancelled   Status = "CANCELLED"
)

// Claim field names as they appear in API payloads. The models package maps
// these onto struct fields; the policy tables below only speak in names.
const (
	ClaimFieldDiagnosisCode      = "diagnosisCode"
	ClaimFieldServiceDate        = "serviceDate"
	ClaimFieldProviderName       = "providerName"
	ClaimFieldDescription        = "description"
	ClaimFieldPolicyID           = "policyId"
	ClaimFieldInsurerID          = "insurerId"
	ClaimFieldAmountClaimed      = "amountClaimed"
	ClaimFieldAmountSubmitted    = "amountSubmitted"
	ClaimFieldSubmittedDate      = "submittedDate"
	ClaimFieldAmountApproved     = "amountApproved"
	ClaimFieldSettledDate        = "settledDate"
	ClaimFieldPendingReason      = "pendingReason"
	ClaimFieldPendedAt           = "pendedAt"
	ClaimFieldReturnReason       = "returnReason"
	ClaimFieldReturnedAt         = "returnedAt"
	ClaimFieldCancellationReason = "cancellationReason"
	ClaimFieldCancelledAt        = "cancelledAt"
)

// claimCoreFields are editable while the claim is in an early, non-terminal
// status.
var claimCoreFields = []string{
	ClaimFieldDiagnosisCode,
	ClaimFieldServiceDate,
	ClaimFieldProviderName,
	ClaimFieldDescription,
	ClaimFieldPolicyID,
	ClaimFieldInsurerID,
	ClaimFieldAmountClaimed,
}

// claimSubmissionFields unlock once review starts.
var claimSubmissionFields = []string{
	ClaimFieldAmountSubmitted,
	ClaimFieldSubmittedDate,
}

// claimSettlementFields are only editable while the claim awaits settlement.
var claimSettlementFields = []string{
	ClaimFieldAmountApproved,
	ClaimFieldSettledDate,
}

var claimMachine = &Machine{
	Kind:    KindClaim,
	Initial: ClaimDraft,
	Edges: []Transition{
		{From: ClaimDraft, To: ClaimInReview},
		{From: ClaimInReview, To: ClaimSubmitted},
		{From: ClaimSubmitted, To: ClaimPendingInfo, ReasonRequired: true},
		{From: ClaimPendingInfo, To: ClaimSubmitted},
		{From: ClaimSubmitted, To: ClaimSettled},
		{From: ClaimDraft, To: ClaimReturned, ReasonRequired: true},
		{From: ClaimInReview, To: ClaimReturned, ReasonRequired: true},
		{From: ClaimDraft, To: ClaimCancelled, ReasonRequired: true},
		{From: ClaimInReview, To: ClaimCancelled, ReasonRequired: true},
	},
	EnterEffects: map[Status][]FieldEffect{
		ClaimPendingInfo: {
			{Field: ClaimFieldPendedAt, Op: OpStampNow},
			{Field: ClaimFieldPendingReason, Op: OpCopyReason},
		},
		ClaimReturned: {
			{Field: ClaimFieldReturnedAt, Op: OpStampNow},
			{Field: ClaimFieldReturnReason, Op: OpCopyReason},
		},
		ClaimCancelled: {
			{Field: ClaimFieldCancelledAt, Op: OpStampNow},
			{Field: ClaimFieldCancellationReason, Op: OpCopyReason},
		},
	},
	ExitEffects: map[Status][]FieldEffect{
		ClaimPendingInfo: {
			{Field: ClaimFieldPendedAt, Op: OpClear},
			{Field: ClaimFieldPendingReason, Op: OpClear},
		},
	},
	editable: map[Status][]string{
		ClaimDraft:       claimCoreFields,
		ClaimInReview:    concat(claimCoreFields, claimSubmissionFields),
		ClaimPendingInfo: concat(claimCoreFields, claimSubmissionFields),
		ClaimSubmitted:   claimSettlementFields,
		// Terminal statuses allow nothing.
	},
	required: map[Status][]string{
		ClaimInReview: {
			ClaimFieldDiagnosisCode,
			ClaimFieldServiceDate,
			ClaimFieldPolicyID,
			ClaimFieldInsurerID,
		},
		ClaimSubmitted: {
			ClaimFieldAmountSubmitted,
			ClaimFieldSubmittedDate,
		},
		ClaimSettled: {
			ClaimFieldAmountApproved,
			ClaimFieldSettledDate,
		},
	},
}

func init() {
	claimMachine.statuses = collectStatuses(claimMachine.Initial, claimMachine.Edges)
}

func concat(sets ...[]string) []string {
	var out []string
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}
