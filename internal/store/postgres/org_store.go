package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// OrgStore implements domain.OrgStore using PostgreSQL. Organizations,
// members, and tokens are provisioned outside this engine; all access here
// is read-only.
type OrgStore struct {
	pool *pgxpool.Pool
}

// NewOrgStore creates a new OrgStore backed by the given pool.
func NewOrgStore(pool *pgxpool.Pool) *OrgStore {
	return &OrgStore{pool: pool}
}

// GetOrganization retrieves a single organization by ID.
func (s *OrgStore) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var org domain.Organization
	var role string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, role, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &role, &org.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Organization{}, domain.ErrNotFound
		}
		return domain.Organization{}, fmt.Errorf("postgres: get organization %s: %w", id, err)
	}

	org.Role = domain.OrgRole(role)
	return org, nil
}

// ListMembers returns all members of the given organization.
func (s *OrgStore) ListMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, email, name, created_at FROM members
		 WHERE org_id = $1 ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list members of %s: %w", orgID, err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Email, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetToken retrieves an API token row by its public ID half.
func (s *OrgStore) GetToken(ctx context.Context, tokenID string) (domain.APIToken, error) {
	var t domain.APIToken

	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, member_id, secret_hash, created_at
		 FROM api_tokens WHERE id = $1`, tokenID,
	).Scan(&t.ID, &t.OrgID, &t.MemberID, &t.SecretHash, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.APIToken{}, domain.ErrNotFound
		}
		return domain.APIToken{}, fmt.Errorf("postgres: get api token %s: %w", tokenID, err)
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.OrgStore = (*OrgStore)(nil)
