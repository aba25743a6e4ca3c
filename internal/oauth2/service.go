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
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/audit"
	"github.com/authrim/authrim/internal/identity"
	"github.com/authrim/authrim/internal/observability/logger"
)

// DefaultAuthCodeTTL applies when no lifetime is configured.
const DefaultAuthCodeTTL = time.Minute

// TokenClaims carries the identity and grant context embedded into an
// access token. Registered claims (iss, aud, iat, exp) are added by the
// signer.
type TokenClaims struct {
	Subject  string
	Email    string
	Username string
	Roles    []string
	Scope    string
	ClientID string
}

// AccessTokenSigner signs access tokens. Implemented by the token package.
type AccessTokenSigner interface {
	// SignAccessToken returns the signed compact JWT and its lifetime
	// in seconds.
	SignAccessToken(claims TokenClaims) (string, int64, error)
}

// Service implements the authorization code grant: client validation,
// code issuance and token exchange.
type Service struct {
	clients     ClientRepository
	codes       AuthCodeRepository
	users       identity.UserRepository
	signer      AccessTokenSigner
	auditLogger audit.Logger
	codeTTL     time.Duration
}

// NewService creates a new OAuth2 protocol service.
func NewService(
	clients ClientRepository,
	codes AuthCodeRepository,
	users identity.UserRepository,
	signer AccessTokenSigner,
	auditLogger audit.Logger,
	codeTTL time.Duration,
) *Service {
	if codeTTL <= 0 {
		codeTTL = DefaultAuthCodeTTL
	}
	return &Service{
		clients:     clients,
		codes:       codes,
		users:       users,
		signer:      signer,
		auditLogger: auditLogger,
		codeTTL:     codeTTL,
	}
}

// ValidateClientInput identifies the client and the requested redirect
// and grant for an authorize or token request.
type ValidateClientInput struct {
	ClientID    ClientID
	RedirectURI string
	GrantType   string
}

// ValidatedClient is the projection handed to downstream use cases.
type ValidatedClient struct {
	ClientID     string   `json:"clientId"`
	ClientName   string   `json:"clientName"`
	IsPublic     bool     `json:"isPublic"`
	RedirectURIs []string `json:"redirectUris"`
	GrantTypes   []string `json:"grantTypes"`
}

// ValidateClient checks that the client exists, is active, has the
// redirect URI registered and supports the grant. Every failure surfaces
// as InvalidClient.
func (s *Service) ValidateClient(ctx context.Context, in ValidateClientInput) (*ValidatedClient, error) {
	client, err := s.clients.GetByClientID(ctx, in.ClientID.String())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidClient, "unknown client", err)
	}
	if !client.IsActive {
		return nil, apperr.New(apperr.KindInvalidClient, "client is not active")
	}
	if !client.IsValidRedirectURI(in.RedirectURI) {
		return nil, apperr.New(apperr.KindInvalidClient, "redirect_uri is not registered for this client")
	}
	if !client.SupportsGrantType(in.GrantType) {
		return nil, apperr.New(apperr.KindInvalidClient, "grant type is not allowed for this client")
	}
	return &ValidatedClient{
		ClientID:     client.ClientID,
		ClientName:   client.ClientName,
		IsPublic:     client.IsPublic,
		RedirectURIs: client.RedirectURIs,
		GrantTypes:   client.GrantTypes,
	}, nil
}

// AuthorizeRequest is a validated /auth/authorize request.
type AuthorizeRequest struct {
	ClientID      ClientID
	RedirectURI   string
	Scope         string
	State         string
	CodeChallenge CodeChallenge
}

// CodeGrant is the result of GenerateAuthCode.
type CodeGrant struct {
	Code  string
	State string
}

// GenerateAuthCode validates the client and issues a fresh single-use
// authorization code bound to the user and the PKCE challenge.
func (s *Service) GenerateAuthCode(ctx context.Context, userID string, req AuthorizeRequest) (*CodeGrant, error) {
	if _, err := s.ValidateClient(ctx, ValidateClientInput{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		GrantType:   GrantAuthorizationCode,
	}); err != nil {
		return nil, err
	}

	now := time.Now()
	authCode := &AuthCode{
		Code:                newAuthCode(),
		UserID:              userID,
		ClientID:            req.ClientID.String(),
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge.Challenge(),
		CodeChallengeMethod: req.CodeChallenge.Method(),
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, authCode); err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to issue authorization code", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCodeIssued,
		ActorID:  userID,
		Resource: "auth_code",
		Metadata: map[string]any{
			"client_id":     req.ClientID.String(),
			audit.AttrScope: req.Scope,
		},
	})

	return &CodeGrant{Code: authCode.Code, State: req.State}, nil
}

// ExchangeInput carries the token endpoint parameters.
type ExchangeInput struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// TokenResponse is the token endpoint success body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// ExchangeToken redeems an authorization code for an access token.
// Checks run in a fixed order; failures never reveal which one fired
// beyond the error kind.
func (s *Service) ExchangeToken(ctx context.Context, in ExchangeInput) (*TokenResponse, error) {
	authCode, err := s.codes.GetByCode(ctx, in.Code)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidCode, "invalid authorization code", err)
	}

	if authCode.IsExpired() {
		return nil, apperr.New(apperr.KindInvalidCode, "invalid authorization code")
	}

	if authCode.Used {
		slog.ErrorContext(ctx, "authorization code replay detected",
			logger.ClientID(authCode.ClientID),
			logger.UserID(authCode.UserID),
		)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeCodeReplayed,
			ActorID:  authCode.UserID,
			Resource: "auth_code",
			Metadata: map[string]any{"client_id": authCode.ClientID},
		})
		return nil, apperr.New(apperr.KindInvalidCode, "invalid authorization code")
	}

	if authCode.ClientID != in.ClientID {
		return nil, apperr.New(apperr.KindInvalidClient, "authorization code was not issued to this client")
	}

	if authCode.RedirectURI != in.RedirectURI {
		return nil, apperr.New(apperr.KindInvalidCode, "invalid authorization code")
	}

	challenge, err := ParseCodeChallenge(authCode.CodeChallenge, authCode.CodeChallengeMethod)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidCode, "invalid authorization code", err)
	}
	verifier, err := ParseCodeVerifier(in.CodeVerifier)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidCode, "invalid authorization code", err)
	}
	if !VerifyPKCE(challenge, verifier) {
		return nil, apperr.New(apperr.KindInvalidCode, "invalid authorization code")
	}

	user, err := s.users.GetByID(ctx, authCode.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidUser, "user not found", err)
	}
	if !user.CanLogin() {
		// The code was issued while the account was active; the grant
		// stands for its remaining lifetime.
		slog.WarnContext(ctx, "issuing token for inactive user",
			logger.UserID(user.ID),
			logger.ClientID(authCode.ClientID),
		)
	}

	if err := s.codes.MarkUsed(ctx, authCode.Code); err != nil {
		if errors.Is(err, ErrCodeAlreadyUsed) || errors.Is(err, ErrCodeNotFound) {
			slog.ErrorContext(ctx, "authorization code replay detected",
				logger.ClientID(authCode.ClientID),
				logger.UserID(authCode.UserID),
			)
			return nil, apperr.New(apperr.KindInvalidCode, "invalid authorization code")
		}
		return nil, apperr.Wrap(apperr.KindInvalidCreationToken, "failed to create token", err)
	}

	username := ""
	if user.Username != nil {
		username = *user.Username
	}
	signed, expiresIn, err := s.signer.SignAccessToken(TokenClaims{
		Subject:  user.ID,
		Email:    user.Email,
		Username: username,
		Roles:    user.Roles,
		Scope:    authCode.Scope,
		ClientID: authCode.ClientID,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidCreationToken, "failed to create token", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  user.ID,
		Resource: "access_token",
		Metadata: map[string]any{
			"client_id":     authCode.ClientID,
			audit.AttrScope: authCode.Scope,
		},
	})

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       authCode.Scope,
	}, nil
}

// CleanupCodes drops expired and consumed codes and reports the count.
func (s *Service) CleanupCodes(ctx context.Context) (int64, error) {
	return s.codes.DeleteExpired(ctx)
}

// BuildCodeRedirect appends code and state to the client redirect URI,
// preserving any query parameters already present.
func BuildCodeRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newAuthCode() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
