package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"claimstack/pkg/requestcontext"
)

// Recorder builds audit entries from request context and appends them through
// the store. Appending is part of the mutation's write set: a failed append
// fails the whole transaction. Publishing to the compliance stream is
// best-effort and never blocks the mutation.
type Recorder struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

func NewRecorder(store Store, publisher Publisher, logger *slog.Logger) *Recorder {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Recorder{store: store, publisher: publisher, logger: logger}
}

// Record appends one audit entry for a mutating action. Caller identity,
// client metadata, and the timestamp come from the request context.
func (r *Recorder) Record(ctx context.Context, orgID uuid.UUID, action Action, resource string, resourceID uuid.UUID, metadata map[string]any) error {
	rawUA := requestcontext.UserAgent(ctx)
	entry := &Entry{
		ID:         uuid.New(),
		OrgID:      orgID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
		IPAddress:  requestcontext.ClientIP(ctx),
		UserAgent:  CapUserAgent(rawUA),
		Device:     DeviceSummary(rawUA),
		CreatedAt:  requestcontext.Now(ctx),
	}
	if ident := requestcontext.CallerIdentity(ctx); ident.UserID != uuid.Nil {
		uid := ident.UserID
		entry.UserID = &uid
	}

	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	if err := r.publisher.Publish(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "audit publish failed",
			"action", string(action),
			"resource_id", resourceID.String(),
			"error", err,
		)
	}
	return nil
}

// ListByResource exposes the store read path for the history/timeline
// projections.
func (r *Recorder) ListByResource(ctx context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error) {
	return r.store.ListByResource(ctx, orgID, resource, resourceID, offset, limit)
}

func (r *Recorder) ListTimeline(ctx context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error) {
	return r.store.ListTimeline(ctx, orgID, resource, resourceID, offset, limit)
}
