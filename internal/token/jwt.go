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

package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/oauth2"
)

// Service signs and verifies RS256 access tokens.
type Service struct {
	keys     *KeyProvider
	issuer   string
	audience []string
	keyID    string
	ttl      time.Duration
}

// NewService creates a new JWT service.
func NewService(keys *KeyProvider, issuer string, audience []string, keyID string, ttl time.Duration) *Service {
	return &Service{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		keyID:    keyID,
		ttl:      ttl,
	}
}

// SignAccessToken implements oauth2.AccessTokenSigner. Registered claims
// iss, aud, iat and exp are added here; aud is always an array.
func (s *Service) SignAccessToken(tc oauth2.TokenClaims) (string, int64, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       tc.Subject,
		"email":     tc.Email,
		"username":  tc.Username,
		"roles":     tc.Roles,
		"scope":     tc.Scope,
		"client_id": tc.ClientID,
		"iss":       s.issuer,
		"aud":       s.audience,
		"iat":       now.Unix(),
		"exp":       now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.keys.PrivateKey())
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, int64(s.ttl.Seconds()), nil
}

// Verify validates signature and issuer. When expectedAudience is
// non-empty it must appear in the aud claim. Returns the claims on
// success; all failures surface as InvalidToken.
func (s *Service) Verify(tokenString, expectedAudience string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	}
	if expectedAudience != "" {
		opts = append(opts, jwt.WithAudience(expectedAudience))
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return s.keys.PublicKey(), nil
	}, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidToken, "invalid token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, apperr.New(apperr.KindInvalidToken, "invalid token")
	}
	return claims, nil
}
