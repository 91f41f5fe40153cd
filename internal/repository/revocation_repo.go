package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RevocationRepository is the ledger of explicitly invalidated tokens. An
// entry only matters until the token's natural expiry, so lookups ignore
// expired rows and a periodic sweep deletes them; the ledger never grows past
// the set of tokens revoked within one token lifetime.
type RevocationRepository struct {
	pool *pgxpool.Pool
}

func NewRevocationRepository(pool *pgxpool.Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

// Revoke records a token. Revoking an already-revoked token is a no-op that
// still reports success.
func (r *RevocationRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token, created_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token) DO NOTHING`,
		token, time.Now().UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token = $1 AND expires_at > now())`,
		token).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// DeleteExpired removes ledger entries whose tokens would fail verification
// by expiry anyway.
func (r *RevocationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired revoked tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
