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
	"encoding/base64"
	"math/big"
	"sync"
)

// JWK represents a JSON Web Key (RFC 7517)
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JwksService exports the public signing key as a JWKS. The key set is
// computed once and cached for the process lifetime.
type JwksService struct {
	keys  *KeyProvider
	keyID string

	once   sync.Once
	cached JWKS
}

// NewJwksService creates a new JWKS service.
func NewJwksService(keys *KeyProvider, keyID string) *JwksService {
	return &JwksService{keys: keys, keyID: keyID}
}

// Get returns the cached key set. n and e are base64url without padding.
func (s *JwksService) Get() JWKS {
	s.once.Do(func() {
		pub := s.keys.PublicKey()
		s.cached = JWKS{
			Keys: []JWK{
				{
					Kty: "RSA",
					Kid: s.keyID,
					Use: "sig",
					Alg: "RS256",
					N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
	})
	return s.cached
}
