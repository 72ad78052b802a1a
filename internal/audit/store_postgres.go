package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	txcontext "claimstack/pkg/platform/tx"
)

// PostgresStore persists audit entries in the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer returns the ambient transaction when the orchestrator opened one.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var userID uuid.NullUUID
	if entry.UserID != nil {
		userID = uuid.NullUUID{UUID: *entry.UserID, Valid: true}
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_log (id, org_id, action, resource, resource_id, user_id,
			metadata, ip_address, user_agent, device, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.OrgID, string(entry.Action), entry.Resource, entry.ResourceID,
		userID, metadata, entry.IPAddress, entry.UserAgent, entry.Device, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const entryColumns = "id, org_id, action, resource, resource_id, user_id, metadata, ip_address, user_agent, device, created_at"

func (s *PostgresStore) ListByResource(ctx context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE org_id = $1 AND resource = $2 AND resource_id = $3`,
		orgID, resource, resourceID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_log
		 WHERE org_id = $1 AND resource = $2 AND resource_id = $3
		 ORDER BY created_at DESC, id DESC
		 OFFSET $4 LIMIT $5`,
		orgID, resource, resourceID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	return entries, total, err
}

func (s *PostgresStore) ListTimeline(ctx context.Context, orgID uuid.UUID, resource string, resourceID uuid.UUID, offset, limit int) ([]*Entry, int, error) {
	allowed := TimelineActions(resource)
	actions := make([]string, len(allowed))
	for i, a := range allowed {
		actions[i] = string(a)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log
		 WHERE org_id = $1 AND resource = $2 AND resource_id = $3 AND action = ANY($4)`,
		orgID, resource, resourceID, actions).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count timeline entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_log
		 WHERE org_id = $1 AND resource = $2 AND resource_id = $3 AND action = ANY($4)
		 ORDER BY created_at DESC, id DESC
		 OFFSET $5 LIMIT $6`,
		orgID, resource, resourceID, actions, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query timeline entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	return entries, total, err
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var (
			e        Entry
			action   string
			userID   uuid.NullUUID
			metadata []byte
		)
		err := rows.Scan(&e.ID, &e.OrgID, &action, &e.Resource, &e.ResourceID,
			&userID, &metadata, &e.IPAddress, &e.UserAgent, &e.Device, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		if userID.Valid {
			uid := userID.UUID
			e.UserID = &uid
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
