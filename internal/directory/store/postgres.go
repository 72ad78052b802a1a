package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"claimstack/internal/authz"
	"claimstack/internal/directory/models"
	"claimstack/pkg/platform/sentinel"
)

// Postgres reads the directory tables. All statements filter by org_id so a
// cross-tenant ID scans to zero rows.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const clientColumns = "id, org_id, name, active, created_at"

func (s *Postgres) FindClient(ctx context.Context, orgID, clientID uuid.UUID) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE org_id = $1 AND id = $2`, orgID, clientID)
	return scanClient(row)
}

func (s *Postgres) ListActiveClients(ctx context.Context, orgID uuid.UUID) ([]*models.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE org_id = $1 AND active ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

func (s *Postgres) ListAssignedActiveClients(ctx context.Context, orgID, userID uuid.UUID) ([]*models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.org_id, c.name, c.active, c.created_at
		FROM clients c
		JOIN client_assignments ca ON ca.client_id = c.id
		WHERE c.org_id = $1 AND ca.user_id = $2 AND c.active
		ORDER BY c.name`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list assigned clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

func (s *Postgres) ListAssignedClientIDs(ctx context.Context, orgID, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM clients c
		JOIN client_assignments ca ON ca.client_id = c.id
		WHERE c.org_id = $1 AND ca.user_id = $2
		ORDER BY c.id`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list assigned client ids: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assigned client id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assigned client ids: %w", err)
	}
	return out, nil
}

const affiliateColumns = "id, org_id, client_id, user_id, primary_affiliate_id, name, active, created_at"

func (s *Postgres) FindAffiliate(ctx context.Context, orgID, affiliateID uuid.UUID) (*models.Affiliate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates WHERE org_id = $1 AND id = $2`, orgID, affiliateID)
	return scanAffiliate(row)
}

func (s *Postgres) ListMainAffiliates(ctx context.Context, orgID, clientID uuid.UUID) ([]*models.Affiliate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates
		 WHERE org_id = $1 AND client_id = $2 AND primary_affiliate_id IS NULL AND active
		 ORDER BY name`, orgID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list main affiliates: %w", err)
	}
	defer rows.Close()
	return scanAffiliates(rows)
}

func (s *Postgres) ListFamily(ctx context.Context, orgID, affiliateID uuid.UUID) ([]*models.Affiliate, error) {
	// Self first regardless of active flag, then active dependents by name.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates
		 WHERE org_id = $1 AND (id = $2 OR (primary_affiliate_id = $2 AND active))
		 ORDER BY (id = $2) DESC, name`, orgID, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("list family: %w", err)
	}
	defer rows.Close()
	family, err := scanAffiliates(rows)
	if err != nil {
		return nil, err
	}
	if len(family) == 0 || family[0].ID != affiliateID {
		return nil, sentinel.ErrNotFound
	}
	return family, nil
}

func (s *Postgres) FindAffiliateByUser(ctx context.Context, orgID, userID uuid.UUID) (*models.Affiliate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	return scanAffiliate(row)
}

func (s *Postgres) FindInsurer(ctx context.Context, orgID, insurerID uuid.UUID) (*models.Insurer, error) {
	var i models.Insurer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, active, created_at FROM insurers WHERE org_id = $1 AND id = $2`,
		orgID, insurerID).
		Scan(&i.ID, &i.OrgID, &i.Name, &i.Active, &i.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find insurer: %w", err)
	}
	return &i, nil
}

func (s *Postgres) IsAssigned(ctx context.Context, userID, clientID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM client_assignments WHERE user_id = $1 AND client_id = $2)`,
		userID, clientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return exists, nil
}

func (s *Postgres) FindLink(ctx context.Context, affiliateID uuid.UUID) (authz.AffiliateLink, error) {
	var link authz.AffiliateLink
	var userID uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, active FROM affiliates WHERE id = $1`, affiliateID).
		Scan(&userID, &link.Active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !userID.Valid) {
		return authz.AffiliateLink{}, sentinel.ErrNotFound
	}
	if err != nil {
		return authz.AffiliateLink{}, fmt.Errorf("find affiliate link: %w", err)
	}
	link.UserID = userID.UUID
	return link, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}

func scanClients(rows *sql.Rows) ([]*models.Client, error) {
	var out []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanAffiliate(row rowScanner) (*models.Affiliate, error) {
	var a models.Affiliate
	var userID uuid.NullUUID
	var primary uuid.NullUUID
	err := row.Scan(&a.ID, &a.OrgID, &a.ClientID, &userID, &primary, &a.Name, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan affiliate: %w", err)
	}
	if userID.Valid {
		a.UserID = userID.UUID
	}
	if primary.Valid {
		p := primary.UUID
		a.PrimaryAffiliateID = &p
	}
	return &a, nil
}

func scanAffiliates(rows *sql.Rows) ([]*models.Affiliate, error) {
	var out []*models.Affiliate
	for rows.Next() {
		a, err := scanAffiliate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
