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
	"crypto/sha256"
	"encoding/base64"
)

// S256Challenge computes the S256 transform of a verifier:
// base64url(SHA-256(verifier)) without padding (RFC 7636 Section 4.2).
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a verifier against a stored challenge. Comparison is
// constant time for both methods.
func VerifyPKCE(challenge CodeChallenge, verifier CodeVerifier) bool {
	switch challenge.Method() {
	case MethodS256:
		return constantTimeEquals(S256Challenge(verifier.String()), challenge.Challenge())
	case MethodPlain:
		ok, err := challenge.VerifyPlain(verifier.String())
		return err == nil && ok
	default:
		return false
	}
}
