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
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Key file names expected inside the configured keys directory.
const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

var errNotRSAPublicKey = errors.New("public key is not an RSA key")

// KeyProvider holds the RSA key pair used for access token signing.
type KeyProvider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// LoadKeys reads private.pem and public.pem from the given directory.
// Missing or malformed files are a startup failure; the caller is
// expected to treat the error as fatal.
func LoadKeys(dir string) (*KeyProvider, error) {
	priv, err := loadPrivateKey(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	pub, err := loadPublicKey(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}
	return &KeyProvider{privateKey: priv, publicKey: pub}, nil
}

// PrivateKey returns the signing key.
func (p *KeyProvider) PrivateKey() *rsa.PrivateKey { return p.privateKey }

// PublicKey returns the verification key.
func (p *KeyProvider) PublicKey() *rsa.PublicKey { return p.publicKey }

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s contains no PEM block", path)
	}

	// PKCS#8 first, PKCS#1 as fallback for keys generated with older
	// openssl defaults.
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s is not an RSA private key", path)
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s contains no PEM block", path)
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errNotRSAPublicKey
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}
