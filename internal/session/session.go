package session

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is reported for rows past their expiry. Consumers
	// must treat it exactly like an absent session; it exists only so the
	// failure reason can be logged.
	ErrSessionExpired = errors.New("session expired")
	ErrDuplicateID    = errors.New("session id already exists")
)

// Session represents a server-side user session keyed by an opaque id
// stored in a browser cookie.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	UserAgent string
	IPAddress string
	Metadata  map[string]string
}

// IsExpired reports whether the session has expired. Strict comparison:
// expiresAt <= now means expired.
func (s *Session) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// Extend returns a copy with a fresh expiry computed from now.
func (s *Session) Extend(ttl time.Duration) *Session {
	extended := *s
	extended.ExpiresAt = time.Now().Add(ttl)
	return &extended
}

// Repository defines the interface for session persistence
type Repository interface {
	// Create persists a new session. Returns ErrDuplicateID when the id
	// collides with an existing row.
	Create(ctx context.Context, sess *Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Update replaces the stored session row
	Update(ctx context.Context, sess *Session) error

	// Delete deletes a session
	Delete(ctx context.Context, sessionID string) error

	// DeleteByUserID deletes all sessions for a user
	DeleteByUserID(ctx context.Context, userID string) error

	// ListByUserID lists sessions belonging to a user
	ListByUserID(ctx context.Context, userID string) ([]*Session, error)

	// DeleteExpired deletes all sessions whose expiry is in the past and
	// returns the number of rows removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
