// Package apitokens provides a PostgreSQL-backed repository for issued
// bearer tokens. Only token hashes are stored; validity is the combination
// of a hash match and a null revoked_at.
package apitokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/smsbridge/internal/common"
	"github.com/dmitrijs2005/smsbridge/internal/dbx"
	"github.com/dmitrijs2005/smsbridge/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create records the hash of a freshly issued token for userID.
func (r *PostgresRepository) Create(ctx context.Context, userID int64, tokenHash string) (int64, error) {
	query :=
		`INSERT INTO api_tokens (user_id, token_hash)
		 VALUES ($1, $2)
		 RETURNING id
		 `

	var id int64
	if err := r.db.QueryRowContext(ctx, query, userID, tokenHash).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// FindUserByTokenHash resolves a non-revoked token hash to its owning user.
// Returns common.ErrorNotFound when the hash is unknown or revoked.
func (r *PostgresRepository) FindUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	query :=
		`SELECT u.id, u.username, u.email, u.password_hash, u.created_at
		 FROM api_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.token_hash = $1 AND t.revoked_at IS NULL
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// TouchLastUsed stamps last_used_at for a token hash. Callers treat this as
// best-effort; a lost update under a race is acceptable.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, tokenHash string) error {
	query :=
		`UPDATE api_tokens SET last_used_at = now()
		 WHERE token_hash = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Revoke marks a token as revoked. Revocation is a field update, never a
// delete. Returns common.ErrorNotFound when no active token matches.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string) error {
	query :=
		`UPDATE api_tokens SET revoked_at = now()
		 WHERE token_hash = $1 AND revoked_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}
