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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/audit"
)

// Decision values accepted at the consent endpoint.
const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
)

// defaultScopes applies when an approval carries no explicit scopes.
var defaultScopes = []string{"read"}

// scopeCatalog maps scope names to the descriptions shown on the consent
// page.
var scopeCatalog = map[string]string{
	"read":    "Read your basic account information",
	"write":   "Modify your account information",
	"profile": "Access your profile details (name, username)",
	"email":   "Access your email address",
	"offline": "Keep access when you are not signed in",
}

// DescribeScope returns the human-readable description for a scope.
func DescribeScope(name string) string {
	if desc, ok := scopeCatalog[name]; ok {
		return desc
	}
	return fmt.Sprintf("Access to scope: %s", name)
}

// Service manages consent grants and the consent screen data.
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new consent service.
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, auditLogger: auditLogger}
}

// Check reports whether the user holds an active consent for the client
// covering all requested scopes. Absence is not an error.
func (s *Service) Check(ctx context.Context, userID, clientID string, requestedScopes []string) (bool, error) {
	c, err := s.repo.Get(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.KindServerError, "failed to check consent", err)
	}
	if !c.IsActive() {
		return false, nil
	}
	if len(requestedScopes) > 0 && !c.HasAllScopes(requestedScopes) {
		return false, nil
	}
	return true, nil
}

// ScopeView is one row of the consent screen scope list.
type ScopeView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ScreenData is everything the consent page needs to render and to
// resubmit the original authorize request with the user's decision.
type ScreenData struct {
	ClientName string      `json:"clientName"`
	Scopes     []ScopeView `json:"scopes"`

	// Original authorize parameters, echoed back on decision submit.
	ClientID            string `json:"clientId"`
	RedirectURI         string `json:"redirectUri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"codeChallenge"`
	CodeChallengeMethod string `json:"codeChallengeMethod"`
}

// Describe maps scope names to catalog descriptions for rendering.
func Describe(scopes []string) []ScopeView {
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	views := make([]ScopeView, 0, len(scopes))
	for _, name := range scopes {
		views = append(views, ScopeView{Name: name, Description: DescribeScope(name)})
	}
	return views
}

// Grant upserts an approval for the (user, client) pair, replacing any
// earlier scope set.
func (s *Service) Grant(ctx context.Context, userID, clientID string, scopes []string) error {
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	c := &Consent{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		GrantedAt: time.Now(),
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return apperr.Wrap(apperr.KindServerError, "failed to store consent", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentGranted,
		ActorID:  userID,
		Resource: "consent",
		Metadata: map[string]any{
			"client_id":     clientID,
			audit.AttrScope: scopes,
		},
	})

	return nil
}

// Deny records the denial and fails with DenyConsent. Nothing is
// persisted; the authorize flow surfaces the error to the client.
func (s *Service) Deny(ctx context.Context, userID, clientID string) error {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentDenied,
		ActorID:  userID,
		Resource: "consent",
		Metadata: map[string]any{"client_id": clientID},
	})
	return apperr.New(apperr.KindDenyConsent, "the user denied the authorization request")
}

// Revoke withdraws an active consent.
func (s *Service) Revoke(ctx context.Context, userID, clientID string) error {
	if err := s.repo.Revoke(ctx, userID, clientID); err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return apperr.Wrap(apperr.KindNotFound, "consent not found", err)
		}
		return apperr.Wrap(apperr.KindServerError, "failed to revoke consent", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentRevoked,
		ActorID:  userID,
		Resource: "consent",
		Metadata: map[string]any{"client_id": clientID},
	})

	return nil
}

// ListForUser returns the user's active consents.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Consent, error) {
	all, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to list consents", err)
	}
	active := make([]*Consent, 0, len(all))
	for _, c := range all {
		if c.IsActive() {
			active = append(active, c)
		}
	}
	return active, nil
}
