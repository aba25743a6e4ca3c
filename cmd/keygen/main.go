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

// Command keygen writes a fresh RSA key pair into the keys directory.
// The server refuses to start without private.pem and public.pem.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
)

func main() {
	dir := flag.String("dir", "keys", "directory to write private.pem and public.pem into")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0700); err != nil {
		slog.Error("failed to create keys directory", "error", err)
		os.Exit(1)
	}

	privPath := filepath.Join(*dir, "private.pem")
	if _, err := os.Stat(privPath); err == nil {
		slog.Error("refusing to overwrite existing key", "path", privPath)
		os.Exit(1)
	}

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		slog.Error("failed to generate key", "error", err)
		os.Exit(1)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		slog.Error("failed to encode private key", "error", err)
		os.Exit(1)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		slog.Error("failed to write private key", "error", err)
		os.Exit(1)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		slog.Error("failed to encode public key", "error", err)
		os.Exit(1)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	pubPath := filepath.Join(*dir, "public.pem")
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		slog.Error("failed to write public key", "error", err)
		os.Exit(1)
	}

	slog.Info("key pair written", "private", privPath, "public", pubPath, "bits", *bits)
}
