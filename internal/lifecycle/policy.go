package lifecycle

// Policy statuses.
const (
	PolicyPending   Status = "PENDING"
	PolicyActive    Status = "ACTIVE"
	PolicySuspended Status = "SUSPENDED"
	PolicyCancelled Status = "CANCELLED"
	PolicyExpired   Status = "EXPIRED"
)

// Policy field names.
const (
	PolicyFieldPlanName           = "planName"
	PolicyFieldCoverageLevel      = "coverageLevel"
	PolicyFieldInsurerID          = "insurerId"
	PolicyFieldStartDate          = "startDate"
	PolicyFieldEndDate            = "endDate"
	PolicyFieldPremium            = "premium"
	PolicyFieldDeductible         = "deductible"
	PolicyFieldCoverageLimit      = "coverageLimit"
	PolicyFieldSuspensionReason   = "suspensionReason"
	PolicyFieldSuspendedAt        = "suspendedAt"
	PolicyFieldCancellationReason = "cancellationReason"
	PolicyFieldCancelledAt        = "cancelledAt"
)

var policyCoreFields = []string{
	PolicyFieldPlanName,
	PolicyFieldCoverageLevel,
	PolicyFieldInsurerID,
	PolicyFieldStartDate,
	PolicyFieldEndDate,
}

// policyActivationFields must be settled before a policy can go active.
var policyActivationFields = []string{
	PolicyFieldPremium,
	PolicyFieldDeductible,
	PolicyFieldCoverageLimit,
}

// policyFinancialFields stay editable on an active policy so premium changes
// and term extensions do not require suspension.
var policyFinancialFields = []string{
	PolicyFieldPremium,
	PolicyFieldEndDate,
}

var policyMachine = &Machine{
	Kind:    KindPolicy,
	Initial: PolicyPending,
	Edges: []Transition{
		{From: PolicyPending, To: PolicyActive},
		{From: PolicyActive, To: PolicySuspended, ReasonRequired: true},
		{From: PolicySuspended, To: PolicyActive},
		{From: PolicyActive, To: PolicyCancelled, ReasonRequired: true},
		{From: PolicySuspended, To: PolicyCancelled, ReasonRequired: true},
		{From: PolicyActive, To: PolicyExpired},
	},
	EnterEffects: map[Status][]FieldEffect{
		PolicySuspended: {
			{Field: PolicyFieldSuspendedAt, Op: OpStampNow},
			{Field: PolicyFieldSuspensionReason, Op: OpCopyReason},
		},
		PolicyCancelled: {
			{Field: PolicyFieldCancelledAt, Op: OpStampNow},
			{Field: PolicyFieldCancellationReason, Op: OpCopyReason},
		},
	},
	ExitEffects: map[Status][]FieldEffect{
		PolicySuspended: {
			{Field: PolicyFieldSuspendedAt, Op: OpClear},
			{Field: PolicyFieldSuspensionReason, Op: OpClear},
		},
	},
	editable: map[Status][]string{
		PolicyPending:   concat(policyCoreFields, policyActivationFields),
		PolicyActive:    policyFinancialFields,
		PolicySuspended: concat(policyCoreFields, policyActivationFields),
	},
	required: map[Status][]string{
		PolicyActive: {
			PolicyFieldPlanName,
			PolicyFieldCoverageLevel,
			PolicyFieldPremium,
			PolicyFieldDeductible,
			PolicyFieldCoverageLimit,
		},
	},
}

func init() {
	policyMachine.statuses = collectStatuses(policyMachine.Initial, policyMachine.Edges)
}
