package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecoord/authcore/internal/shared"
)

const sessionColumns = `id, identity_id, device_id, token_hash, expires_at, created_at, rotated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Upsert replaces the device row in one statement.
func (r *PGRepository) Upsert(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_id, device_id) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			rotated_at = EXCLUDED.rotated_at`,
		s.ID, s.IdentityID, s.DeviceID, s.TokenHash, s.ExpiresAt.UTC(), s.CreatedAt.UTC(), s.RotatedAt.UTC())
	return mapWriteError(err)
}

// Get fetches the device row.
func (r *PGRepository) Get(ctx context.Context, identityID, deviceID string) (*Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE identity_id = $1 AND device_id = $2`, identityID, deviceID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// CompareAndSwap rotates the hash only while the old hash is still current.
func (r *PGRepository) CompareAndSwap(ctx context.Context, identityID, deviceID, oldHash string, next Session) (*Session, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET token_hash = $4, expires_at = $5, rotated_at = $6
		WHERE identity_id = $1 AND device_id = $2 AND token_hash = $3 AND expires_at > $6
		RETURNING `+sessionColumns,
		identityID, deviceID, oldHash, next.TokenHash, next.ExpiresAt.UTC(), next.RotatedAt.UTC())
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, mapWriteError(err)
	}
	return s, true, nil
}

// Delete removes the device row.
func (r *PGRepository) Delete(ctx context.Context, identityID, deviceID string) (*Session, error) {
	row := r.pool.QueryRow(ctx, `DELETE FROM sessions WHERE identity_id = $1 AND device_id = $2 RETURNING `+sessionColumns, identityID, deviceID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// DeleteAll removes every row of the identity.
func (r *PGRepository) DeleteAll(ctx context.Context, identityID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE identity_id = $1`, identityID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// List returns the identity's rows, most recently rotated first.
func (r *PGRepository) List(ctx context.Context, identityID string) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE identity_id = $1 ORDER BY rotated_at DESC`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteExpired removes rows past expiry.
func (r *PGRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.IdentityID, &s.DeviceID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt, &s.RotatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateHash, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
