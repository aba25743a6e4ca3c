// Copyright 2026 The Authrim Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is used when no lifetime is configured.
const DefaultTTL = time.Hour

// createRetries bounds duplicate-id retry at creation. Collisions on a
// 256-bit random id are negligible; the retry exists for the contract, not
// for an expected path.
const createRetries = 3

// Service provides session lifecycle management
type Service struct {
	repo        Repository
	ttl         time.Duration
	rememberTTL time.Duration
}

// NewService creates a new session service
func NewService(repo Repository, ttl, rememberTTL time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if rememberTTL <= 0 {
		rememberTTL = ttl
	}
	return &Service{repo: repo, ttl: ttl, rememberTTL: rememberTTL}
}

// TTL returns the configured lifetime for the given remember-me choice.
func (s *Service) TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.rememberTTL
	}
	return s.ttl
}

// Create establishes a new session for the user.
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string, rememberMe bool) (*Session, error) {
	ttl := s.TTL(rememberMe)

	var lastErr error
	for i := 0; i < createRetries; i++ {
		now := time.Now()
		sess := &Session{
			ID:        newSessionID(),
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
			IPAddress: ipAddress,
			UserAgent: userAgent,
			Metadata:  map[string]string{},
		}
		if rememberMe {
			sess.Metadata["remember_me"] = "true"
		}

		err := s.repo.Create(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to create session after retries: %w", lastErr)
}

// Get returns a live session. Expired sessions are treated as absent.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Extend pushes the session expiry forward from now.
func (s *Service) Extend(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	extended := sess.Extend(s.ttl)
	if err := s.repo.Update(ctx, extended); err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	return extended, nil
}

// Destroy removes a session.
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// DestroyAllForUser removes every session belonging to the user.
func (s *Service) DestroyAllForUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// ListForUser lists the user's sessions, expired rows excluded.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	all, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	live := make([]*Session, 0, len(all))
	for _, sess := range all {
		if !sess.IsExpired() {
			live = append(live, sess)
		}
	}
	return live, nil
}

// CleanupExpired drops all expired sessions and reports the count.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

func newSessionID() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
