// Package audit owns the append-only audit log: one row per mutating action,
// written in the same transaction as the mutation it records.
package audit

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// Action is a namespaced action name, e.g. "claim.transitioned".
type Action string

const (
	ActionClaimCreated      Action = "claim.created"
	ActionClaimUpdated      Action = "claim.updated"
	ActionClaimTransitioned Action = "claim.transitioned"
	ActionClaimDeleted      Action = "claim.deleted"

	ActionInvoiceCreated Action = "claim.invoice.created"
	ActionInvoiceUpdated Action = "claim.invoice.updated"
	ActionInvoiceDeleted Action = "claim.invoice.deleted"

	ActionPolicyCreated      Action = "policy.created"
	ActionPolicyUpdated      Action = "policy.updated"
	ActionPolicyTransitioned Action = "policy.transitioned"
	ActionPolicyDeleted      Action = "policy.deleted"
)

// timelineActions is the curated subset of actions surfaced on the read-only
// timeline view, keyed by resource.
var timelineActions = map[string][]Action{
	"claim": {
		ActionClaimCreated,
		ActionClaimTransitioned,
		ActionInvoiceCreated,
		ActionClaimDeleted,
	},
	"policy": {
		ActionPolicyCreated,
		ActionPolicyTransitioned,
		ActionPolicyDeleted,
	},
}

// TimelineActions returns the timeline allow-list for a resource.
func TimelineActions(resource string) []Action {
	out := make([]Action, len(timelineActions[resource]))
	copy(out, timelineActions[resource])
	return out
}

// MaxUserAgentLen caps the raw User-Agent stored per entry; browsers and bots
// occasionally send multi-kilobyte values.
const MaxUserAgentLen = 512

// Entry is one immutable audit row.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	OrgID      uuid.UUID `json:"orgId"`
	Action     Action    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID uuid.UUID `json:"resourceId"`
	// UserID is nil for system actions (e.g. scheduled expiry).
	UserID    *uuid.UUID     `json:"userId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	// Device is a short human-readable summary parsed from UserAgent.
	Device    string    `json:"device,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CapUserAgent truncates a raw User-Agent to the stored maximum, backing up
// so the cut never splits a multi-byte rune.
func CapUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLen {
		return ua
	}
	cut := MaxUserAgentLen
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}

// DeviceSummary renders "Browser on OS" from a User-Agent string.
func DeviceSummary(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OS()
	parts := make([]string, 0, 3)
	if name != "" {
		parts = append(parts, name)
	}
	if os != "" {
		parts = append(parts, "on", os)
	}
	if len(parts) == 0 {
		return "Unknown Device"
	}
	return strings.Join(parts, " ")
}
