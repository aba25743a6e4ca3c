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

package consent

import (
	"context"
	"errors"
	"time"
)

// ErrConsentNotFound is returned when no consent row exists for a
// (user, client) pair.
var ErrConsentNotFound = errors.New("consent not found")

// Consent records a user's grant of scoped access to a client.
// (UserID, ClientID) identifies the active row; re-consenting replaces
// the scope set.
type Consent struct {
	ID        string
	UserID    string
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// IsActive reports whether the consent is in force: not revoked and not
// past its optional expiry.
func (c *Consent) IsActive() bool {
	if c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && !time.Now().Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// HasAllScopes reports whether every requested scope is covered by the
// stored scope set.
func (c *Consent) HasAllScopes(requested []string) bool {
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// Repository defines the interface for consent persistence
type Repository interface {
	// Upsert atomically inserts or replaces the consent row keyed on
	// (userID, clientID). Concurrent upserts converge to one row.
	Upsert(ctx context.Context, consent *Consent) error

	// Get retrieves the consent row for a (user, client) pair
	Get(ctx context.Context, userID, clientID string) (*Consent, error)

	// Revoke sets revokedAt on the active row
	Revoke(ctx context.Context, userID, clientID string) error

	// ListByUserID lists all consent rows belonging to a user
	ListByUserID(ctx context.Context, userID string) ([]*Consent, error)
}
