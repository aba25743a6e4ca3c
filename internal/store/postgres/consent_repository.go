package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/authrim/authrim/internal/consent"
)

// ConsentRepository implements consent.Repository
type ConsentRepository struct {
	db *DB
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Upsert inserts or replaces the consent row keyed on (user_id,
// client_id). ON CONFLICT makes concurrent approvals converge to a single
// row, last writer wins.
func (r *ConsentRepository) Upsert(ctx context.Context, c *consent.Consent) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO consents (id, user_id, client_id, scopes, granted_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, client_id) DO UPDATE SET
			scopes = EXCLUDED.scopes,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at,
			revoked_at = NULL
	`,
		c.ID, c.UserID, c.ClientID, c.Scopes, c.GrantedAt, c.ExpiresAt, c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}

// Get retrieves the consent row for a (user, client) pair
func (r *ConsentRepository) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	var c consent.Consent
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, scopes, granted_at, expires_at, revoked_at
		FROM consents
		WHERE user_id = $1 AND client_id = $2
	`, userID, clientID).Scan(
		&c.ID, &c.UserID, &c.ClientID, &c.Scopes, &c.GrantedAt, &c.ExpiresAt, &c.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consent.ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return &c, nil
}

// Revoke sets revoked_at on the active row
func (r *ConsentRepository) Revoke(ctx context.Context, userID, clientID string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE consents SET revoked_at = NOW()
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`, userID, clientID)
	if err != nil {
		return fmt.Errorf("failed to revoke consent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return consent.ErrConsentNotFound
	}
	return nil
}

// ListByUserID lists all consent rows belonging to a user
func (r *ConsentRepository) ListByUserID(ctx context.Context, userID string) ([]*consent.Consent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, user_id, client_id, scopes, granted_at, expires_at, revoked_at
		FROM consents
		WHERE user_id = $1
		ORDER BY granted_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var consents []*consent.Consent
	for rows.Next() {
		var c consent.Consent
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.ClientID, &c.Scopes, &c.GrantedAt, &c.ExpiresAt, &c.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, &c)
	}
	return consents, rows.Err()
}
