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

package oauth2

import (
	"context"
	"errors"
	"time"
)

// Repository errors
var (
	ErrClientNotFound  = errors.New("client not found")
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrCodeAlreadyUsed = errors.New("authorization code already used")
)

// Client represents a registered OAuth2 client application.
type Client struct {
	ID               string
	ClientID         string
	ClientSecretHash string

	// Previous secret kept valid for a grace window after rotation.
	ClientSecretOldHash *string
	SecretOldExpiresAt  *time.Time

	ClientName   string
	Description  *string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
	IsPublic     bool
	IsActive     bool

	// OwnerID is the user who registered the client and may manage it.
	OwnerID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOwnedBy reports whether the given user registered this client.
func (c *Client) IsOwnedBy(userID string) bool {
	return c.OwnerID == userID
}

// IsValidRedirectURI reports whether the URI exactly matches a registered
// redirect URI. No prefix or pattern matching.
func (c *Client) IsValidRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// SupportsGrantType reports whether the client is registered for the grant.
func (c *Client) SupportsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// PublicClient is the client projection returned by the management API.
// Secret hashes never leave the server.
type PublicClient struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	ClientName   string    `json:"clientName"`
	Description  *string   `json:"description,omitempty"`
	RedirectURIs []string  `json:"redirectUris"`
	GrantTypes   []string  `json:"grantTypes"`
	Scopes       []string  `json:"scopes"`
	IsPublic     bool      `json:"isPublic"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ToPublic strips credential material from the client.
func (c *Client) ToPublic() PublicClient {
	return PublicClient{
		ID:           c.ID,
		ClientID:     c.ClientID,
		ClientName:   c.ClientName,
		Description:  c.Description,
		RedirectURIs: c.RedirectURIs,
		GrantTypes:   c.GrantTypes,
		Scopes:       c.Scopes,
		IsPublic:     c.IsPublic,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// AuthCode is a single-use authorization code binding a user, a client,
// a redirect URI and a PKCE challenge.
type AuthCode struct {
	Code                string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
	UsedAt              *time.Time
}

// IsExpired reports whether the code has passed its expiry.
func (a *AuthCode) IsExpired() bool {
	return !time.Now().Before(a.ExpiresAt)
}

// IsValid reports whether the code is still exchangeable: never used and
// not expired.
func (a *AuthCode) IsValid() bool {
	return !a.Used && !a.IsExpired()
}

// MarkAsUsed flags the code as consumed. Idempotent; the persistent
// compare-and-set lives in the repository.
func (a *AuthCode) MarkAsUsed() {
	if a.Used {
		return
	}
	now := time.Now()
	a.Used = true
	a.UsedAt = &now
}

// ClientRepository defines the interface for client persistence
type ClientRepository interface {
	// Create persists a new client
	Create(ctx context.Context, client *Client) error

	// GetByClientID retrieves a client by its public client_id
	GetByClientID(ctx context.Context, clientID string) (*Client, error)

	// GetByID retrieves a client by its internal id
	GetByID(ctx context.Context, id string) (*Client, error)

	// Update replaces the stored client row
	Update(ctx context.Context, client *Client) error

	// ListByOwner lists active clients registered by the user,
	// newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Client, error)
}

// AuthCodeRepository defines the interface for authorization code persistence
type AuthCodeRepository interface {
	// Create persists a new authorization code
	Create(ctx context.Context, code *AuthCode) error

	// GetByCode retrieves an authorization code by its value
	GetByCode(ctx context.Context, code string) (*AuthCode, error)

	// MarkUsed atomically flips the code from unused to used. Returns
	// ErrCodeAlreadyUsed when the code was consumed concurrently and
	// ErrCodeNotFound when no such code exists.
	MarkUsed(ctx context.Context, code string) error

	// DeleteExpired removes expired and consumed codes and returns the
	// number of rows removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
