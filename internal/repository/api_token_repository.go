package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pawtograder/office-hours/internal/models"
)

const apiTokenColumns = `id, user_id, name, token_id, scopes, expires_at, revoked_at, last_used_at, created_at`

// APITokenRepository persists MCP token metadata.
type APITokenRepository struct {
	db *sqlx.DB
}

// NewAPITokenRepository constructs a token repository.
func NewAPITokenRepository(db *sqlx.DB) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// Create inserts token metadata.
func (r *APITokenRepository) Create(ctx context.Context, token *models.APIToken) error {
	const query = `INSERT INTO api_tokens (id, user_id, name, token_id, scopes, expires_at, created_at)
VALUES (:id, :user_id, :name, :token_id, :scopes, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}

// ListByUser returns the user's tokens, newest first.
func (r *APITokenRepository) ListByUser(ctx context.Context, userID string) ([]models.APIToken, error) {
	query := `SELECT ` + apiTokenColumns + ` FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC`
	tokens := []models.APIToken{}
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	return tokens, nil
}

// GetByTokenID fetches metadata by the JWT id.
func (r *APITokenRepository) GetByTokenID(ctx context.Context, tokenID string) (*models.APIToken, error) {
	query := `SELECT ` + apiTokenColumns + ` FROM api_tokens WHERE token_id = $1`
	var token models.APIToken
	if err := r.db.GetContext(ctx, &token, query, tokenID); err != nil {
		return nil, err
	}
	return &token, nil
}

// Revoke marks the user's token revoked. It returns sql.ErrNoRows when no
// unrevoked token matches.
func (r *APITokenRepository) Revoke(ctx context.Context, id, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND user_id = $3 AND revoked_at IS NULL`, at, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api token rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchLastUsed records token use.
func (r *APITokenRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("touch api token: %w", err)
	}
	return nil
}
