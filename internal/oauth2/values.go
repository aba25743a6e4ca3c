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
	"crypto/subtle"
	"errors"
	"strings"
)

// Value object errors
var (
	ErrValueEmpty       = errors.New("value must not be empty")
	ErrValueLength      = errors.New("value length out of range")
	ErrValueCharset     = errors.New("value contains characters outside [A-Za-z0-9_-]")
	ErrChallengeMethod  = errors.New("code_challenge_method must be S256 or plain")
	ErrNotPlainMethod   = errors.New("plain comparison requires method plain")
	ErrGrantUnsupported = errors.New("unsupported grant type")
)

// PKCE challenge methods (RFC 7636 Section 4.2)
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// Grant types a client may be registered for.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// ClientID is a validated client identifier. The zero value is invalid;
// construct through ParseClientID.
type ClientID struct {
	value string
}

// ParseClientID validates and trims a client identifier (8..128 chars).
func ParseClientID(raw string) (ClientID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ClientID{}, ErrValueEmpty
	}
	if len(trimmed) < 8 || len(trimmed) > 128 {
		return ClientID{}, ErrValueLength
	}
	return ClientID{value: trimmed}, nil
}

// String returns the underlying identifier.
func (c ClientID) String() string { return c.value }

// Equals compares by string value.
func (c ClientID) Equals(other ClientID) bool { return c.value == other.value }

// CodeChallenge is a validated PKCE challenge with its transform method.
type CodeChallenge struct {
	challenge string
	method    string
}

// ParseCodeChallenge validates a PKCE challenge. The challenge must be at
// least 43 base64url characters and the method exactly S256 or plain.
func ParseCodeChallenge(challenge, method string) (CodeChallenge, error) {
	if challenge == "" {
		return CodeChallenge{}, ErrValueEmpty
	}
	if len(challenge) < 43 {
		return CodeChallenge{}, ErrValueLength
	}
	if !isBase64URL(challenge) {
		return CodeChallenge{}, ErrValueCharset
	}
	if method != MethodS256 && method != MethodPlain {
		return CodeChallenge{}, ErrChallengeMethod
	}
	return CodeChallenge{challenge: challenge, method: method}, nil
}

// Challenge returns the challenge string.
func (c CodeChallenge) Challenge() string { return c.challenge }

// Method returns the transform method.
func (c CodeChallenge) Method() string { return c.method }

// VerifyPlain compares a verifier in constant time. Defined only for the
// plain method.
func (c CodeChallenge) VerifyPlain(verifier string) (bool, error) {
	if c.method != MethodPlain {
		return false, ErrNotPlainMethod
	}
	return constantTimeEquals(c.challenge, verifier), nil
}

// CodeVerifier is a validated PKCE verifier (43..128 base64url chars),
// constructed from client input at the token endpoint.
type CodeVerifier struct {
	value string
}

// ParseCodeVerifier validates a PKCE verifier.
func ParseCodeVerifier(raw string) (CodeVerifier, error) {
	if raw == "" {
		return CodeVerifier{}, ErrValueEmpty
	}
	if len(raw) < 43 || len(raw) > 128 {
		return CodeVerifier{}, ErrValueLength
	}
	if !isBase64URL(raw) {
		return CodeVerifier{}, ErrValueCharset
	}
	return CodeVerifier{value: raw}, nil
}

// String returns the verifier string.
func (v CodeVerifier) String() string { return v.value }

func isBase64URL(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
