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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/audit"
)

// secretRotationGrace is how long the previous client secret stays valid
// after a rotation.
const secretRotationGrace = 24 * time.Hour

// ClientService manages OAuth2 client registrations on behalf of their
// owning users.
type ClientService struct {
	repo        ClientRepository
	auditLogger audit.Logger
}

// NewClientService creates a new client management service.
func NewClientService(repo ClientRepository, auditLogger audit.Logger) *ClientService {
	return &ClientService{repo: repo, auditLogger: auditLogger}
}

// CreateClientInput carries the fields accepted at client registration.
type CreateClientInput struct {
	ClientName   string
	Description  *string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
	IsPublic     bool
}

// CreatedClient is returned from Create and RotateSecret. ClientSecret is
// the plaintext secret, surfaced exactly once.
type CreatedClient struct {
	PublicClient
	ClientSecret string `json:"clientSecret"`
}

// Create registers a new client owned by the caller and returns the
// plaintext secret once.
func (s *ClientService) Create(ctx context.Context, ownerID string, in CreateClientInput) (*CreatedClient, error) {
	if err := validateClientInput(in); err != nil {
		return nil, err
	}
	if len(in.GrantTypes) == 0 {
		in.GrantTypes = []string{GrantAuthorizationCode}
	}
	if len(in.Scopes) == 0 {
		in.Scopes = []string{"read"}
	}

	secret := newClientSecret()
	now := time.Now()
	client := &Client{
		ID:               uuid.NewString(),
		ClientID:         newPublicClientID(),
		ClientSecretHash: HashClientSecret(secret),
		ClientName:       strings.TrimSpace(in.ClientName),
		Description:      in.Description,
		RedirectURIs:     in.RedirectURIs,
		GrantTypes:       in.GrantTypes,
		Scopes:           in.Scopes,
		IsPublic:         in.IsPublic,
		IsActive:         true,
		OwnerID:          ownerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, client); err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to create client", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientCreated,
		ActorID:  ownerID,
		Resource: "client",
		Metadata: map[string]any{"client_id": client.ClientID},
	})

	return &CreatedClient{PublicClient: client.ToPublic(), ClientSecret: secret}, nil
}

// List returns the caller's active clients, newest first.
func (s *ClientService) List(ctx context.Context, ownerID string) ([]PublicClient, error) {
	clients, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to list clients", err)
	}
	out := make([]PublicClient, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.ToPublic())
	}
	return out, nil
}

// GetByID returns one of the caller's clients.
func (s *ClientService) GetByID(ctx context.Context, ownerID, id string) (*PublicClient, error) {
	client, err := s.ownedClient(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	pub := client.ToPublic()
	return &pub, nil
}

// UpdateClientInput carries the mutable client fields. Nil means
// unchanged.
type UpdateClientInput struct {
	ClientName   *string
	Description  *string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
}

// Update modifies one of the caller's clients.
func (s *ClientService) Update(ctx context.Context, ownerID, id string, in UpdateClientInput) (*PublicClient, error) {
	client, err := s.ownedClient(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if in.ClientName != nil {
		if err := validateClientName(*in.ClientName); err != nil {
			return nil, err
		}
		client.ClientName = strings.TrimSpace(*in.ClientName)
	}
	if in.Description != nil {
		client.Description = in.Description
	}
	if in.RedirectURIs != nil {
		if err := validateRedirectURIs(in.RedirectURIs); err != nil {
			return nil, err
		}
		client.RedirectURIs = in.RedirectURIs
	}
	if in.GrantTypes != nil {
		client.GrantTypes = in.GrantTypes
	}
	if in.Scopes != nil {
		client.Scopes = in.Scopes
	}
	client.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to update client", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientUpdated,
		ActorID:  ownerID,
		Resource: "client",
		Metadata: map[string]any{"client_id": client.ClientID},
	})

	pub := client.ToPublic()
	return &pub, nil
}

// Delete deactivates one of the caller's clients. The row is kept for
// audit purposes.
func (s *ClientService) Delete(ctx context.Context, ownerID, id string) error {
	client, err := s.ownedClient(ctx, ownerID, id)
	if err != nil {
		return err
	}

	client.IsActive = false
	client.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, client); err != nil {
		return apperr.Wrap(apperr.KindServerError, "failed to delete client", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientDeleted,
		ActorID:  ownerID,
		Resource: "client",
		Metadata: map[string]any{"client_id": client.ClientID},
	})

	return nil
}

// RotateSecret replaces the client secret, keeping the previous one valid
// for a grace window. The new plaintext is returned exactly once.
func (s *ClientService) RotateSecret(ctx context.Context, ownerID, id string) (*CreatedClient, error) {
	client, err := s.ownedClient(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	secret := newClientSecret()
	oldHash := client.ClientSecretHash
	oldExpires := time.Now().Add(secretRotationGrace)

	client.ClientSecretHash = HashClientSecret(secret)
	client.ClientSecretOldHash = &oldHash
	client.SecretOldExpiresAt = &oldExpires
	client.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to rotate client secret", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSecretRotated,
		ActorID:  ownerID,
		Resource: "client",
		Metadata: map[string]any{"client_id": client.ClientID},
	})

	return &CreatedClient{PublicClient: client.ToPublic(), ClientSecret: secret}, nil
}

// VerifySecret checks a plaintext secret against the current hash, or the
// previous one while its grace window is open.
func (c *Client) VerifySecret(secret string) bool {
	hash := HashClientSecret(secret)
	if constantTimeEquals(hash, c.ClientSecretHash) {
		return true
	}
	if c.ClientSecretOldHash != nil && c.SecretOldExpiresAt != nil && time.Now().Before(*c.SecretOldExpiresAt) {
		return constantTimeEquals(hash, *c.ClientSecretOldHash)
	}
	return false
}

func (s *ClientService) ownedClient(ctx context.Context, ownerID, id string) (*Client, error) {
	client, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "client not found", err)
	}
	if !client.IsOwnedBy(ownerID) {
		return nil, apperr.New(apperr.KindForbidden, "client does not belong to the caller")
	}
	return client, nil
}

// HashClientSecret hashes a client secret with SHA-256, base64url encoded.
func HashClientSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func validateClientInput(in CreateClientInput) error {
	if err := validateClientName(in.ClientName); err != nil {
		return err
	}
	if len(in.RedirectURIs) == 0 {
		return apperr.New(apperr.KindValidateRequest, "at least one redirect URI is required")
	}
	return validateRedirectURIs(in.RedirectURIs)
}

func validateClientName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 3 || len(trimmed) > 30 {
		return apperr.New(apperr.KindValidateRequest, "clientName must be 3 to 30 characters")
	}
	return nil
}

func validateRedirectURIs(uris []string) error {
	bad := make([]string, 0)
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			bad = append(bad, raw)
			continue
		}
		if u.Scheme != "https" && !(u.Scheme == "http" && u.Hostname() == "localhost") {
			bad = append(bad, raw)
		}
	}
	if len(bad) > 0 {
		return apperr.New(apperr.KindValidateRequest, "redirect URIs must be absolute HTTPS URLs or http://localhost").
			WithList(bad)
	}
	return nil
}

func newPublicClientID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "ac_" + base64.RawURLEncoding.EncodeToString(b)
}

func newClientSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
