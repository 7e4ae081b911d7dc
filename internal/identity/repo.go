package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecoord/authcore/internal/shared"
)

const identityColumns = `id, email, password_hash, first_name, last_name, role, zone_id, permission_overrides, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts the identity. Email uniqueness is enforced by the
// identities_email_key index on lower(email).
func (r *PGRepository) Create(ctx context.Context, identity *Identity) error {
	overrides := identity.PermissionOverrides
	if overrides == nil {
		overrides = []string{}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO identities (`+identityColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.FirstName, identity.LastName,
		identity.Role, identity.ZoneID, overrides, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

// FindByEmail fetches an identity by normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email)
}

// FindByID fetches an identity by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*Identity, error) {
	return r.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// ListByZone returns identities in a zone ordered by email.
func (r *PGRepository) ListByZone(ctx context.Context, zoneID string) ([]Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities WHERE zone_id = $1 ORDER BY email`, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	identities := make([]Identity, 0)
	for rows.Next() {
		found, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *found)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return identities, nil
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg string) (*Identity, error) {
	found, err := scanIdentity(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return found, nil
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity
	if err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.FirstName, &i.LastName,
		&i.Role, &i.ZoneID, &i.PermissionOverrides, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

var _ Repository = (*PGRepository)(nil)
