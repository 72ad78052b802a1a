// Package models holds the read-only reference entities the lifecycle engine
// validates against: clients, affiliates, insurers, and the user-to-client
// assignment rows. Another service owns their lifecycle; this one only reads.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is an organization's customer (typically an employer group).
type Client struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"orgId"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Affiliate is a subscriber or a dependent under a client. A main affiliate
// has no PrimaryAffiliateID; dependents point at their main affiliate.
type Affiliate struct {
	ID       uuid.UUID `json:"id"`
	OrgID    uuid.UUID `json:"orgId"`
	ClientID uuid.UUID `json:"clientId"`
	// UserID links the affiliate to a platform user for own-scope access.
	// Nil when the affiliate has no portal account.
	UserID             uuid.UUID  `json:"userId,omitempty"`
	PrimaryAffiliateID *uuid.UUID `json:"primaryAffiliateId,omitempty"`
	Name               string     `json:"name"`
	Active             bool       `json:"active"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// IsMain reports whether the affiliate is a primary subscriber.
func (a *Affiliate) IsMain() bool {
	return a.PrimaryAffiliateID == nil
}

// CoveredBy reports whether the affiliate may appear as patient on a claim
// whose subscriber is main: either it is the subscriber itself or one of its
// dependents.
func (a *Affiliate) CoveredBy(mainID uuid.UUID) bool {
	if a.ID == mainID {
		return true
	}
	return a.PrimaryAffiliateID != nil && *a.PrimaryAffiliateID == mainID
}

// Insurer is a carrier that claims and policies are filed against.
type Insurer struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"orgId"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
