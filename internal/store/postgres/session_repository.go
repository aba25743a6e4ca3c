package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/authrim/authrim/internal/session"
)

// SessionRepository implements session.Repository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at, user_agent, ip_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt, sess.UserAgent, sess.IPAddress, sess.Metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return session.ErrDuplicateID
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a session by id
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	var sess session.Session
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, created_at, expires_at, user_agent, ip_address, metadata
		FROM sessions
		WHERE id = $1
	`, sessionID).Scan(
		&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.UserAgent, &sess.IPAddress, &sess.Metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// Update replaces the stored session row
func (r *SessionRepository) Update(ctx context.Context, sess *session.Session) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $2, metadata = $3 WHERE id = $1
	`, sess.ID, sess.ExpiresAt, sess.Metadata)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// Delete deletes a session
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID deletes all sessions for a user
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// ListByUserID lists sessions belonging to a user
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, user_id, created_at, expires_at, user_agent, ip_address, metadata
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.UserAgent, &sess.IPAddress, &sess.Metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// DeleteExpired deletes all expired sessions
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
