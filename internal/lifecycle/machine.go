// Package lifecycle holds the pure status-machine policies for both record
// kinds: the legal transition graph, which edges demand a reason, which fields
// a status unlocks for editing, which fields a status requires before entry,
// and the field side effects tied to entering or leaving a status.
//
// Everything here is data plus lookups. No I/O, no clock, no store access;
// the orchestrating services feed results into their transactional writes.
package lifecycle

// RecordKind selects between the two lifecycle instantiations.
type RecordKind string

const (
	KindClaim  RecordKind = "claim"
	KindPolicy RecordKind = "policy"
)

// Status is a lifecycle state. The sets are disjoint per kind; the machine
// for a kind only recognizes its own statuses.
type Status string

// Transition is one directed edge in a kind's status graph. Edges not listed
// do not exist: there are no wildcard transitions, and terminal statuses are
// simply those with no outgoing edges.
type Transition struct {
	From           Status
	To             Status
	ReasonRequired bool
}

// EffectOp is a declarative field side effect applied around a transition.
type EffectOp string

const (
	// OpStampNow sets the field to the transition timestamp.
	OpStampNow EffectOp = "stamp_now"
	// OpCopyReason copies the transition reason into the field.
	OpCopyReason EffectOp = "copy_reason"
	// OpClear nulls the field.
	OpClear EffectOp = "clear"
)

// FieldEffect pairs a field name with the operation applied to it.
type FieldEffect struct {
	Field string
	Op    EffectOp
}

// Machine is the full lifecycle policy for one record kind.
type Machine struct {
	Kind    RecordKind
	Initial Status
	Edges   []Transition

	// EnterEffects run when a transition lands on the keyed status.
	EnterEffects map[Status][]FieldEffect
	// ExitEffects run when a transition leaves the keyed status.
	ExitEffects map[Status][]FieldEffect

	// editable maps current status to the field names an update may touch.
	editable map[Status][]string
	// required maps target status to the fields that must be populated
	// before a transition into it commits. Order is stable so error
	// messages enumerate fields deterministically.
	required map[Status][]string

	statuses []Status
}

// ForKind returns the machine for a record kind. Unknown kinds return nil;
// callers treat that as a programming error.
func ForKind(kind RecordKind) *Machine {
	switch kind {
	case KindClaim:
		return claimMachine
	case KindPolicy:
		return policyMachine
	}
	return nil
}

// IsLegal reports whether (from, to) is an explicitly listed edge.
func (m *Machine) IsLegal(from, to Status) bool {
	for _, e := range m.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// ReasonRequired reports whether the (from, to) edge mandates a non-empty
// reason. False for edges that do not exist.
func (m *Machine) ReasonRequired(from, to Status) bool {
	for _, e := range m.Edges {
		if e.From == from && e.To == to {
			return e.ReasonRequired
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func (m *Machine) IsTerminal(s Status) bool {
	for _, e := range m.Edges {
		if e.From == s {
			return false
		}
	}
	return true
}

// Knows reports whether s belongs to this machine's status set.
func (m *Machine) Knows(s Status) bool {
	for _, known := range m.statuses {
		if known == s {
			return true
		}
	}
	return false
}

// Statuses returns every status reachable in the graph, initial first.
func (m *Machine) Statuses() []Status {
	out := make([]Status, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// EditableFields returns the field names an update may touch while the record
// sits in the given status. Terminal statuses return an empty set.
func (m *Machine) EditableFields(s Status) map[string]bool {
	set := make(map[string]bool, len(m.editable[s]))
	for _, f := range m.editable[s] {
		set[f] = true
	}
	return set
}

// RequiredFields returns, in declaration order, the fields that must be
// populated before the record may enter the target status.
func (m *Machine) RequiredFields(target Status) []string {
	out := make([]string, len(m.required[target]))
	copy(out, m.required[target])
	return out
}

// Effects returns the ordered side effects for a transition: exit effects of
// the from-status, then enter effects of the to-status.
func (m *Machine) Effects(from, to Status) []FieldEffect {
	var effects []FieldEffect
	effects = append(effects, m.ExitEffects[from]...)
	effects = append(effects, m.EnterEffects[to]...)
	return effects
}

// collectStatuses derives the status list from the edge set, initial first.
func collectStatuses(initial Status, edges []Transition) []Status {
	seen := map[Status]bool{initial: true}
	out := []Status{initial}
	add := func(s Status) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, e := range edges {
		add(e.From)
		add(e.To)
	}
	return out
}
