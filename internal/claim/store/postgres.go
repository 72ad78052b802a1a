package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"claimstack/internal/claim/models"
	"claimstack/internal/lifecycle"
	"claimstack/pkg/platform/sentinel"
	txcontext "claimstack/pkg/platform/tx"
)

// Postgres persists claims in the claims, claim_history, and claim_invoices
// tables.
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

// execer returns the ambient transaction when the orchestrator opened one.
func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const claimColumns = `id, org_id, claim_number, status, client_id, affiliate_id,
	patient_id, patient_name, policy_id, insurer_id, diagnosis_code, service_date,
	provider_name, description, amount_claimed_cents, amount_submitted_cents,
	submitted_date, amount_approved_cents, settled_date, pending_reason, pended_at,
	return_reason, returned_at, cancellation_reason, cancelled_at, created_by_id,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, c *models.Claim) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		claimArgs(c)...,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func claimArgs(c *models.Claim) []any {
	return []any{
		c.ID, c.OrgID, c.ClaimNumber, string(c.Status), c.ClientID, c.AffiliateID,
		c.PatientID, c.PatientName, nullUUID(c.PolicyID), nullUUID(c.InsurerID),
		c.DiagnosisCode, c.ServiceDate, c.ProviderName, c.Description,
		c.AmountClaimed, c.AmountSubmitted, c.SubmittedDate, c.AmountApproved,
		c.SettledDate, c.PendingReason, c.PendedAt, c.ReturnReason, c.ReturnedAt,
		c.CancellationReason, c.CancelledAt, c.CreatedByID, c.CreatedAt, c.UpdatedAt,
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

func (s *Postgres) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Claim, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM claims WHERE org_id = $1 AND id = $2`,
		orgID, id,
	)
	return scanClaim(row)
}

func (s *Postgres) FindByClaimNumber(ctx context.Context, orgID, insurerID uuid.UUID, claimNumber string) (*models.Claim, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE org_id = $1 AND insurer_id = $2 AND claim_number = $3`,
		orgID, insurerID, claimNumber,
	)
	return scanClaim(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var c models.Claim
	var status string
	var policyID, insurerID uuid.NullUUID
	err := row.Scan(
		&c.ID, &c.OrgID, &c.ClaimNumber, &status, &c.ClientID, &c.AffiliateID,
		&c.PatientID, &c.PatientName, &policyID, &insurerID, &c.DiagnosisCode,
		&c.ServiceDate, &c.ProviderName, &c.Description, &c.AmountClaimed,
		&c.AmountSubmitted, &c.SubmittedDate, &c.AmountApproved, &c.SettledDate,
		&c.PendingReason, &c.PendedAt, &c.ReturnReason, &c.ReturnedAt,
		&c.CancellationReason, &c.CancelledAt, &c.CreatedByID, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	c.Status = lifecycle.Status(status)
	if policyID.Valid {
		id := policyID.UUID
		c.PolicyID = &id
	}
	if insurerID.Valid {
		id := insurerID.UUID
		c.InsurerID = &id
	}
	return &c, nil
}

func (s *Postgres) List(ctx context.Context, orgID uuid.UUID, filter models.ListFilter) ([]*models.Claim, int, error) {
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
	if filter.AffiliateID != nil {
		add("affiliate_id = $%d", *filter.AffiliateID)
	}
	if filter.InsurerID != nil {
		add("insurer_id = $%d", *filter.InsurerID)
	}
	if filter.Search != "" {
		args = append(args, filter.Search, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(claim_number = $%d OR patient_name ILIKE $%d)", len(args)-1, len(args)))
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
		add("affiliate_id = ANY($%d)", filter.ScopeAffiliateIDs)
	}

	cond := strings.Join(where, " AND ")

	var total int
	err := s.execer(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM claims WHERE "+cond, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	query := "SELECT " + claimColumns + " FROM claims WHERE " + cond +
		" ORDER BY " + sortClause(filter)
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}
	return out, total, nil
}

// claimSortColumns whitelists sortable columns; anything else falls back to
// created_at so caller input never reaches the ORDER BY clause raw.
var claimSortColumns = map[string]string{
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"serviceDate":   "service_date",
	"claimNumber":   "claim_number",
	"status":        "status",
	"amountClaimed": "amount_claimed_cents",
}

func sortClause(filter models.ListFilter) string {
	col, ok := claimSortColumns[filter.SortBy]
	if !ok {
		return "created_at DESC, id"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	return col + " " + dir + ", id"
}

const claimUpdateSet = `claim_number = $3, status = $4, policy_id = $5, insurer_id = $6,
	diagnosis_code = $7, service_date = $8, provider_name = $9, description = $10,
	amount_claimed_cents = $11, amount_submitted_cents = $12, submitted_date = $13,
	amount_approved_cents = $14, settled_date = $15, pending_reason = $16,
	pended_at = $17, return_reason = $18, returned_at = $19,
	cancellation_reason = $20, cancelled_at = $21, updated_at = $22`

func claimUpdateArgs(c *models.Claim) []any {
	return []any{
		c.OrgID, c.ID, c.ClaimNumber, string(c.Status), nullUUID(c.PolicyID),
		nullUUID(c.InsurerID), c.DiagnosisCode, c.ServiceDate, c.ProviderName,
		c.Description, c.AmountClaimed, c.AmountSubmitted, c.SubmittedDate,
		c.AmountApproved, c.SettledDate, c.PendingReason, c.PendedAt,
		c.ReturnReason, c.ReturnedAt, c.CancellationReason, c.CancelledAt,
		c.UpdatedAt,
	}
}

func (s *Postgres) Update(ctx context.Context, c *models.Claim) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE claims SET `+claimUpdateSet+`
		WHERE org_id = $1 AND id = $2`,
		claimUpdateArgs(c)...,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	return checkAffected(res, sentinel.ErrNotFound)
}

// TransitionStatus only writes when the stored status still matches, so
// concurrent transitions resolve to one winner.
func (s *Postgres) TransitionStatus(ctx context.Context, c *models.Claim, expectedFrom lifecycle.Status) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE claims SET `+claimUpdateSet+`
		WHERE org_id = $1 AND id = $2 AND status = $23`,
		append(claimUpdateArgs(c), string(expectedFrom))...,
	)
	if err != nil {
		return fmt.Errorf("transition claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition claim: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale status from a missing row.
		var exists bool
		err := s.execer(ctx).QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM claims WHERE org_id = $1 AND id = $2)",
			c.OrgID, c.ID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("transition claim: %w", err)
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
		"DELETE FROM claims WHERE org_id = $1 AND id = $2", orgID, id,
	)
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
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
		INSERT INTO claim_history (id, claim_id, from_status, to_status, reason, notes, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ClaimID, from, string(entry.ToStatus),
		entry.Reason, entry.Notes, entry.CreatedByID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim history: %w", err)
	}
	return nil
}

func (s *Postgres) ListHistory(ctx context.Context, orgID, claimID uuid.UUID) ([]*models.History, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT h.id, h.claim_id, h.from_status, h.to_status, h.reason, h.notes, h.created_by_id, h.created_at
		FROM claim_history h
		JOIN claims c ON c.id = h.claim_id
		WHERE c.org_id = $1 AND h.claim_id = $2
		ORDER BY h.created_at DESC, h.id`,
		orgID, claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("list claim history: %w", err)
	}
	defer rows.Close()

	var out []*models.History
	for rows.Next() {
		var h models.History
		var from sql.NullString
		var to string
		if err := rows.Scan(&h.ID, &h.ClaimID, &from, &to, &h.Reason, &h.Notes, &h.CreatedByID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claim history: %w", err)
		}
		if from.Valid {
			status := lifecycle.Status(from.String)
			h.FromStatus = &status
		}
		h.ToStatus = lifecycle.Status(to)
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list claim history: %w", err)
	}
	return out, nil
}

func (s *Postgres) CreateInvoice(ctx context.Context, orgID uuid.UUID, inv *models.Invoice) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO claim_invoices (id, claim_id, invoice_number, amount_cents, issued_date, notes, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM claims WHERE org_id = $9 AND id = $2)`,
		inv.ID, inv.ClaimID, inv.InvoiceNumber, inv.Amount, inv.IssuedDate,
		inv.Notes, inv.CreatedAt, inv.UpdatedAt, orgID,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return checkAffected(res, sentinel.ErrNotFound)
}

func (s *Postgres) FindInvoice(ctx context.Context, orgID, claimID, invoiceID uuid.UUID) (*models.Invoice, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT i.id, i.claim_id, i.invoice_number, i.amount_cents, i.issued_date, i.notes, i.created_at, i.updated_at
		FROM claim_invoices i
		JOIN claims c ON c.id = i.claim_id
		WHERE c.org_id = $1 AND i.claim_id = $2 AND i.id = $3`,
		orgID, claimID, invoiceID,
	)
	var inv models.Invoice
	err := row.Scan(&inv.ID, &inv.ClaimID, &inv.InvoiceNumber, &inv.Amount,
		&inv.IssuedDate, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return &inv, nil
}

func (s *Postgres) ListInvoices(ctx context.Context, orgID, claimID uuid.UUID) ([]*models.Invoice, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT i.id, i.claim_id, i.invoice_number, i.amount_cents, i.issued_date, i.notes, i.created_at, i.updated_at
		FROM claim_invoices i
		JOIN claims c ON c.id = i.claim_id
		WHERE c.org_id = $1 AND i.claim_id = $2
		ORDER BY i.created_at, i.id`,
		orgID, claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.ClaimID, &inv.InvoiceNumber, &inv.Amount,
			&inv.IssuedDate, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

func (s *Postgres) UpdateInvoice(ctx context.Context, orgID uuid.UUID, inv *models.Invoice) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE claim_invoices i SET invoice_number = $1, amount_cents = $2,
			issued_date = $3, notes = $4, updated_at = $5
		FROM claims c
		WHERE c.id = i.claim_id AND c.org_id = $6 AND i.claim_id = $7 AND i.id = $8`,
		inv.InvoiceNumber, inv.Amount, inv.IssuedDate, inv.Notes, inv.UpdatedAt,
		orgID, inv.ClaimID, inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return checkAffected(res, sentinel.ErrNotFound)
}

func (s *Postgres) DeleteInvoice(ctx context.Context, orgID, claimID, invoiceID uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM claim_invoices i
		USING claims c
		WHERE c.id = i.claim_id AND c.org_id = $1 AND i.claim_id = $2 AND i.id = $3`,
		orgID, claimID, invoiceID,
	)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return checkAffected(res, sentinel.ErrNotFound)
}
