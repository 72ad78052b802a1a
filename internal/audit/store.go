package audit

import (
	"context"

	"github.com/google/uuid"
)

// Store persists audit entries. Append joins the ambient transaction when one
// is present in the context, so audit rows commit or roll back together with
// the mutation they record.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// ListByResource returns entries for one record, newest first.
	ListByResource(ctx context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error)
	// ListTimeline is ListByResource restricted to the timeline allow-list.
	// Audit rows survive record deletion; the log is the compliance trail.
	ListTimeline(ctx context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error)
}
