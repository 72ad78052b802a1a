package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"claimstack/internal/lifecycle"
	"claimstack/internal/policy/models"
	"claimstack/pkg/platform/sentinel"
	txcontext "claimstack/pkg/platform/tx"
)

// Postgres persists policies in the policies and policy_history tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const policyColumns = `id, org_id, policy_number, status, client_id, insurer_id,
	holder_affiliate_id, holder_name, plan_name, coverage_level, start_date,
	end_date, premium_cents, deductible_cents, coverage_limit_cents,
	suspension_reason, suspended_at, cancellation_reason, cancelled_at,
	created_by_id, created_at, updated_at`

func policyArgs(p *models.Policy) []any {
	return []any{
		p.ID, p.OrgID, p.PolicyNumber, string(p.Status), p.ClientID,
		nullUUID(p.InsurerID), nullUUID(p.HolderAffiliateID), p.HolderName,
		p.PlanName, p.CoverageLevel, p.StartDate, p.EndDate, p.Premium,
		p.Deductible, p.CoverageLimit, p.SuspensionReason, p.SuspendedAt,
		p.CancellationReason, p.CancelledAt, p.CreatedByID, p.CreatedAt, p.UpdatedAt,
	}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Postgres) Create(ctx context.Context, p *models.Policy) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)`,
		policyArgs(p)...,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var p models.Policy
	var status string
	var insurerID, holderID uuid.NullUUID
	err := row.Scan(
		&p.ID, &p.OrgID, &p.PolicyNumber, &status, &p.ClientID, &insurerID,
		&holderID, &p.HolderName, &p.PlanName, &p.CoverageLevel, &p.StartDate,
		&p.EndDate, &p.Premium, &p.Deductible, &p.CoverageLimit,
		&p.SuspensionReason, &p.SuspendedAt, &p.CancellationReason,
		&p.CancelledAt, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	p.Status = lifecycle.Status(status)
	if insurerID.Valid {
		id := insurerID.UUID
		p.InsurerID = &id
	}
	if holderID.Valid {
		id := holderID.UUID
		p.HolderAffiliateID = &id
	}
	return &p, nil
}

func (s *Postgres) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Policy, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+policyColumns+` FROM policies WHERE org_id = $1 AND id = $2`,
		orgID, id,
	)
	return scanPolicy(row)
}

func (s *Postgres) FindByPolicyNumber(ctx context.Context, orgID uuid.UUID, policyNumber string) (*models.Policy, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+policyColumns+` FROM policies WHERE org_id = $1 AND policy_number = $2`,
		orgID, policyNumber,
	)
	return scanPolicy(row)
}

var policySortColumns = map[string]string{
	"createdAt":    "created_at",
	"updatedAt":    "updated_at",
	"startDate":    "start_date",
	"policyNumber": "policy_number",
	"status":       "status",
	"premium":      "premium_cents",
}

func sortClause(filter models.ListFilter) string {
	col, ok := policySortColumns[filter.SortBy]
	if !ok {
		return "created_at DESC, id"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	return col + " " + dir + ", id"
}

func (s *Postgres) List(ctx context.Context, orgID uuid.UUID, filter models.ListFilter) ([]*models.Policy, int, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if filter.ClientID != nil {
		add("client_id = $%d", *filter.ClientID)
	}
	if filter.InsurerID != nil {
		add("insurer_id = $%d", *filter.InsurerID)
	}
	if filter.Search != "" {
		args = append(args, filter.Search, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(policy_number = $%d OR holder_name ILIKE $%d)", len(args)-1, len(args)))
	}
	if filter.DateFrom != nil {
		add("created_at >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("created_at <= $%d", *filter.DateTo)
	}
	if filter.ScopeClientIDs != nil {
		if len(filter.ScopeClientIDs) == 0 {
			return nil, 0, nil
		}
		add("client_id = ANY($%d)", filter.ScopeClientIDs)
	}
	if filter.ScopeAffiliateIDs != nil {
		if len(filter.ScopeAffiliateIDs) == 0 {
			return nil, 0, nil
		}
		add("holder_affiliate_id = ANY($%d)", filter.ScopeAffiliateIDs)
	}

	cond := strings.Join(where, " AND ")

	var total int
	err := s.execer(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM policies WHERE "+cond, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count policies: %w", err)
	}

	query := "SELECT " + policyColumns + " FROM policies WHERE " + cond +
		" ORDER BY " + sortClause(filter)
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	return out, total, nil
}

func (s *Postgres) ListActiveByClient(ctx context.Context, orgID, clientID uuid.UUID) ([]*models.Policy, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE org_id = $1 AND client_id = $2 AND status = $3
		ORDER BY start_date DESC NULLS LAST, id`,
		orgID, clientID, string(lifecycle.PolicyActive),
	)
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}
	return out, nil
}

const policyUpdateSet = `policy_number = $3, status = $4, insurer_id = $5,
	plan_name = $6, coverage_level = $7, start_date = $8, end_date = $9,
	premium_cents = $10, deductible_cents = $11, coverage_limit_cents = $12,
	suspension_reason = $13, suspended_at = $14, cancellation_reason = $15,
	cancelled_at = $16, updated_at = $17`

func policyUpdateArgs(p *models.Policy) []any {
	return []any{
		p.OrgID, p.ID, p.PolicyNumber, string(p.Status), nullUUID(p.InsurerID),
		p.PlanName, p.CoverageLevel, p.StartDate, p.EndDate, p.Premium,
		p.Deductible, p.CoverageLimit, p.SuspensionReason, p.SuspendedAt,
		p.CancellationReason, p.CancelledAt, p.UpdatedAt,
	}
}

func (s *Postgres) Update(ctx context.Context, p *models.Policy) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE policies SET `+policyUpdateSet+`
		WHERE org_id = $1 AND id = $2`,
		policyUpdateArgs(p)...,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	return checkAffected(res, sentinel.ErrNotFound)
}

// TransitionStatus only writes when the stored status still matches, so
// concurrent transitions resolve to one winner.
func (s *Postgres) TransitionStatus(ctx context.Context, p *models.Policy, expectedFrom lifecycle.Status) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE policies SET `+policyUpdateSet+`
		WHERE org_id = $1 AND id = $2 AND status = $18`,
		append(policyUpdateArgs(p), string(expectedFrom))...,
	)
	if err != nil {
		return fmt.Errorf("transition policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition policy: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.execer(ctx).QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM policies WHERE org_id = $1 AND id = $2)",
			p.OrgID, p.ID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("transition policy: %w", err)
		}
		if exists {
			return sentinel.ErrStaleStatus
		}
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		"DELETE FROM policies WHERE org_id = $1 AND id = $2", orgID, id,
	)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return checkAffected(res, sentinel.ErrNotFound)
}

func checkAffected(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func (s *Postgres) AppendHistory(ctx context.Context, entry *models.History) error {
	var from *string
	if entry.FromStatus != nil {
		v := string(*entry.FromStatus)
		from = &v
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO policy_history (id, policy_id, from_status, to_status, reason, notes, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.PolicyID, from, string(entry.ToStatus),
		entry.Reason, entry.Notes, entry.CreatedByID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert policy history: %w", err)
	}
	return nil
}

func (s *Postgres) ListHistory(ctx context.Context, orgID, policyID uuid.UUID) ([]*models.History, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT h.id, h.policy_id, h.from_status, h.to_status, h.reason, h.notes, h.created_by_id, h.created_at
		FROM policy_history h
		JOIN policies p ON p.id = h.policy_id
		WHERE p.org_id = $1 AND h.policy_id = $2
		ORDER BY h.created_at DESC, h.id`,
		orgID, policyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list policy history: %w", err)
	}
	defer rows.Close()

	var out []*models.History
	for rows.Next() {
		var h models.History
		var from sql.NullString
		var to string
		if err := rows.Scan(&h.ID, &h.PolicyID, &from, &to, &h.Reason, &h.Notes, &h.CreatedByID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan policy history: %w", err)
		}
		if from.Valid {
			status := lifecycle.Status(from.String)
			h.FromStatus = &status
		}
		h.ToStatus = lifecycle.Status(to)
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list policy history: %w", err)
	}
	return out, nil
}
