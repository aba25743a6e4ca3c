package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/authrim/authrim/internal/oauth2"
)

// AuthCodeRepository implements oauth2.AuthCodeRepository
type AuthCodeRepository struct {
	db *DB
}

// NewAuthCodeRepository creates a new authorization code repository
func NewAuthCodeRepository(db *DB) *AuthCodeRepository {
	return &AuthCodeRepository{db: db}
}

// Create creates a new authorization code
func (r *AuthCodeRepository) Create(ctx context.Context, code *oauth2.AuthCode) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO auth_codes (
			code, user_id, client_id, redirect_uri, scope,
			code_challenge, code_challenge_method,
			created_at, expires_at, is_used, used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		code.Code, code.UserID, code.ClientID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CodeChallengeMethod,
		code.CreatedAt, code.ExpiresAt, code.Used, code.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// GetByCode retrieves an authorization code by its value
func (r *AuthCodeRepository) GetByCode(ctx context.Context, codeStr string) (*oauth2.AuthCode, error) {
	var code oauth2.AuthCode
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			code, user_id, client_id, redirect_uri, scope,
			code_challenge, code_challenge_method,
			created_at, expires_at, is_used, used_at
		FROM auth_codes
		WHERE code = $1
	`, codeStr).Scan(
		&code.Code, &code.UserID, &code.ClientID, &code.RedirectURI, &code.Scope,
		&code.CodeChallenge, &code.CodeChallengeMethod,
		&code.CreatedAt, &code.ExpiresAt, &code.Used, &code.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return &code, nil
}

// MarkUsed flips the code from unused to used. The compare-and-set in the
// WHERE clause guarantees at most one caller wins under concurrent
// exchanges of the same code.
func (r *AuthCodeRepository) MarkUsed(ctx context.Context, code string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE auth_codes SET is_used = true, used_at = $2
		WHERE code = $1 AND is_used = false
	`, code, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark code as used: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either consumed by a concurrent exchange or never existed;
		// both are unusable.
		return oauth2.ErrCodeAlreadyUsed
	}
	return nil
}

// DeleteExpired removes expired and consumed codes
func (r *AuthCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM auth_codes WHERE expires_at < NOW() OR is_used
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return result.RowsAffected(), nil
}
