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
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/audit"
	"github.com/authrim/authrim/internal/identity"
)

// Mock repositories

type MockClientRepo struct {
	clients map[string]*Client
}

func (m *MockClientRepo) Create(ctx context.Context, client *Client) error {
	m.clients[client.ClientID] = client
	return nil
}

func (m *MockClientRepo) GetByClientID(ctx context.Context, clientID string) (*Client, error) {
	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func (m *MockClientRepo) GetByID(ctx context.Context, id string) (*Client, error) {
	for _, c := range m.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrClientNotFound
}

func (m *MockClientRepo) Update(ctx context.Context, client *Client) error {
	m.clients[client.ClientID] = client
	return nil
}

func (m *MockClientRepo) ListByOwner(ctx context.Context, ownerID string) ([]*Client, error) {
	var out []*Client
	for _, c := range m.clients {
		if c.OwnerID == ownerID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

type MockCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*AuthCode
}

func (m *MockCodeRepo) Create(ctx context.Context, code *AuthCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code.Code] = code
	return nil
}

func (m *MockCodeRepo) GetByCode(ctx context.Context, code string) (*AuthCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	copied := *c
	return &copied, nil
}

// MarkUsed mirrors the store-level compare-and-set: exactly one caller
// wins for a given code.
func (m *MockCodeRepo) MarkUsed(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.Used {
		return ErrCodeAlreadyUsed
	}
	c.MarkAsUsed()
	return nil
}

func (m *MockCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.codes {
		if c.Used || c.IsExpired() {
			delete(m.codes, k)
			n++
		}
	}
	return n, nil
}

type MockUserRepo struct {
	users map[string]*identity.User
}

func (m *MockUserRepo) Create(ctx context.Context, user *identity.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	for _, u := range m.users {
		if u.Username != nil && *u.Username == username {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *MockUserRepo) Update(ctx context.Context, user *identity.User) error { return nil }

func (m *MockUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return nil
}

type MockSigner struct {
	Captured TokenClaims
}

func (m *MockSigner) SignAccessToken(claims TokenClaims) (string, int64, error) {
	m.Captured = claims
	return "mock-access-token", 900, nil
}

// Test fixtures

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func newTestService(t *testing.T) (*Service, *MockCodeRepo, *MockSigner) {
	t.Helper()
	clientRepo := &MockClientRepo{
		clients: map[string]*Client{
			"demo-client-001": {
				ID:           "internal-1",
				ClientID:     "demo-client-001",
				ClientName:   "Demo App",
				RedirectURIs: []string{"https://app.example/cb"},
				GrantTypes:   []string{GrantAuthorizationCode},
				IsActive:     true,
				OwnerID:      "owner-1",
			},
		},
	}
	codeRepo := &MockCodeRepo{codes: make(map[string]*AuthCode)}
	userRepo := &MockUserRepo{
		users: map[string]*identity.User{
			"user-1": {
				ID:       "user-1",
				Email:    "alice@example.com",
				Roles:    []string{"user"},
				IsActive: true,
			},
		},
	}
	signer := &MockSigner{}
	svc := NewService(clientRepo, codeRepo, userRepo, signer, audit.NewSlogLogger(), time.Minute)
	return svc, codeRepo, signer
}

func mustAuthorizeRequest(t *testing.T) AuthorizeRequest {
	t.Helper()
	clientID, err := ParseClientID("demo-client-001")
	if err != nil {
		t.Fatalf("failed to parse client id: %v", err)
	}
	challenge, err := ParseCodeChallenge(testChallenge, MethodS256)
	if err != nil {
		t.Fatalf("failed to parse challenge: %v", err)
	}
	return AuthorizeRequest{
		ClientID:      clientID,
		RedirectURI:   "https://app.example/cb",
		Scope:         "read",
		State:         "xyz",
		CodeChallenge: challenge,
	}
}

// TestPurpose: Validates client lookup, active flag, redirect URI and grant checks.
// Scope: Unit Test
// Expected: Every failure mode surfaces as InvalidClient; success returns the projection.
func TestValidateClient(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	goodID, _ := ParseClientID("demo-client-001")
	unknownID, _ := ParseClientID("unknown-client-1")

	cases := []struct {
		name string
		in   ValidateClientInput
		ok   bool
	}{
		{"valid", ValidateClientInput{goodID, "https://app.example/cb", GrantAuthorizationCode}, true},
		{"unknown client", ValidateClientInput{unknownID, "https://app.example/cb", GrantAuthorizationCode}, false},
		{"unregistered redirect", ValidateClientInput{goodID, "https://evil.example/cb", GrantAuthorizationCode}, false},
		{"prefix is not a match", ValidateClientInput{goodID, "https://app.example/cb/extra", GrantAuthorizationCode}, false},
		{"unsupported grant", ValidateClientInput{goodID, "https://app.example/cb", GrantRefreshToken}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ValidateClient(ctx, tc.in)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.ClientName != "Demo App" {
					t.Errorf("unexpected projection: %+v", got)
				}
				return
			}
			if !apperr.IsKind(err, apperr.KindInvalidClient) {
				t.Fatalf("expected InvalidClient, got %v", err)
			}
		})
	}
}

// TestPurpose: Validates authorization code issuance binds user, client and PKCE challenge.
// Scope: Unit Test
// Expected: A fresh high-entropy code is persisted with the configured TTL.
func TestGenerateAuthCode(t *testing.T) {
	svc, codeRepo, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.State != "xyz" {
		t.Errorf("state not preserved: %q", grant.State)
	}
	// 32 random bytes encode to 43 base64url chars
	if len(grant.Code) != 43 {
		t.Errorf("expected 43-char code, got %d", len(grant.Code))
	}

	stored := codeRepo.codes[grant.Code]
	if stored == nil {
		t.Fatal("code not persisted")
	}
	if stored.UserID != "user-1" || stored.ClientID != "demo-client-001" {
		t.Errorf("code binding wrong: %+v", stored)
	}
	if stored.CodeChallenge != testChallenge || stored.CodeChallengeMethod != MethodS256 {
		t.Errorf("challenge not stored by value: %+v", stored)
	}
	ttl := stored.ExpiresAt.Sub(stored.CreatedAt)
	if ttl != time.Minute {
		t.Errorf("expected 1m TTL, got %v", ttl)
	}

	// Two calls are independent
	second, err := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Code == grant.Code {
		t.Error("expected fresh code per call")
	}
}

// TestPurpose: Validates the full exchange path issues a token with the bound identity and scope.
// Scope: Unit Test
// Security: OAuth2 Authorization Code Grant (RFC 6749 Section 4.1.3) with PKCE.
// Expected: A Bearer token response carrying the code's scope.
func TestExchangeToken_Success(t *testing.T) {
	svc, _, signer := newTestService(t)
	ctx := context.Background()

	grant, err := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
	if err != nil {
		t.Fatalf("failed to issue code: %v", err)
	}

	resp, err := svc.ExchangeToken(ctx, ExchangeInput{
		Code:         grant.Code,
		ClientID:     "demo-client-001",
		RedirectURI:  "https://app.example/cb",
		CodeVerifier: testVerifier,
	})
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	if resp.AccessToken != "mock-access-token" {
		t.Errorf("unexpected token: %q", resp.AccessToken)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected Bearer, got %q", resp.TokenType)
	}
	if resp.ExpiresIn != 900 {
		t.Errorf("expected 900s expiry, got %d", resp.ExpiresIn)
	}
	if resp.Scope != "read" {
		t.Errorf("expected scope read, got %q", resp.Scope)
	}
	if signer.Captured.Subject != "user-1" || signer.Captured.ClientID != "demo-client-001" {
		t.Errorf("claims not bound to code: %+v", signer.Captured)
	}
}

// TestPurpose: Validates single-use enforcement on replayed codes.
// Scope: Unit Test
// Security: Replay prevention — at most one exchange per code.
// Expected: The second exchange of the same code fails with InvalidCode.
func TestExchangeToken_Replay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
	in := ExchangeInput{
		Code:         grant.Code,
		ClientID:     "demo-client-001",
		RedirectURI:  "https://app.example/cb",
		CodeVerifier: testVerifier,
	}

	if _, err := svc.ExchangeToken(ctx, in); err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	_, err := svc.ExchangeToken(ctx, in)
	if !apperr.IsKind(err, apperr.KindInvalidCode) {
		t.Fatalf("expected InvalidCode on replay, got %v", err)
	}
}

// TestPurpose: Validates concurrent exchanges of the same code produce exactly one success.
// Scope: Unit Test
// Security: Single-use guarantee under concurrency.
// Expected: One goroutine wins; all others fail with InvalidCode.
func TestExchangeToken_ConcurrentSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
	in := ExchangeInput{
		Code:         grant.Code,
		ClientID:     "demo-client-001",
		RedirectURI:  "https://app.example/cb",
		CodeVerifier: testVerifier,
	}

	const workers = 16
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ExchangeToken(ctx, in)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, invalidCode int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.IsKind(err, apperr.KindInvalidCode):
			invalidCode++
		default:
			t.Errorf("unexpected error kind: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 success, got %d", successes)
	}
	if invalidCode != workers-1 {
		t.Errorf("expected %d InvalidCode failures, got %d", workers-1, invalidCode)
	}
}

// TestPurpose: Validates each ordered exchange check maps to its error kind.
// Scope: Unit Test
// Expected: Client mismatch → InvalidClient; redirect/PKCE/expiry/missing → InvalidCode.
func TestExchangeToken_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.ExchangeToken(ctx, ExchangeInput{
			Code:         "no-such-code",
			ClientID:     "demo-client-001",
			RedirectURI:  "https://app.example/cb",
			CodeVerifier: testVerifier,
		})
		if !apperr.IsKind(err, apperr.KindInvalidCode) {
			t.Fatalf("expected InvalidCode, got %v", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		svc, codeRepo, _ := newTestService(t)
		grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
		codeRepo.codes[grant.Code].ExpiresAt = time.Now().Add(-time.Second)

		_, err := svc.ExchangeToken(ctx, ExchangeInput{
			Code:         grant.Code,
			ClientID:     "demo-client-001",
			RedirectURI:  "https://app.example/cb",
			CodeVerifier: testVerifier,
		})
		if !apperr.IsKind(err, apperr.KindInvalidCode) {
			t.Fatalf("expected InvalidCode, got %v", err)
		}
	})

	t.Run("client mismatch", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))

		_, err := svc.ExchangeToken(ctx, ExchangeInput{
			Code:         grant.Code,
			ClientID:     "another-client-9",
			RedirectURI:  "https://app.example/cb",
			CodeVerifier: testVerifier,
		})
		if !apperr.IsKind(err, apperr.KindInvalidClient) {
			t.Fatalf("expected InvalidClient, got %v", err)
		}
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))

		_, err := svc.ExchangeToken(ctx, ExchangeInput{
			Code:         grant.Code,
			ClientID:     "demo-client-001",
			RedirectURI:  "https://app.example/other",
			CodeVerifier: testVerifier,
		})
		if !apperr.IsKind(err, apperr.KindInvalidCode) {
			t.Fatalf("expected InvalidCode, got %v", err)
		}
	})

	t.Run("pkce mismatch", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))

		_, err := svc.ExchangeToken(ctx, ExchangeInput{
			Code:         grant.Code,
			ClientID:     "demo-client-001",
			RedirectURI:  "https://app.example/cb",
			CodeVerifier: strings.Repeat("z", 43),
		})
		if !apperr.IsKind(err, apperr.KindInvalidCode) {
			t.Fatalf("expected InvalidCode, got %v", err)
		}
	})
}

// TestPurpose: Validates an inactive user does not block exchange of a previously issued code.
// Scope: Unit Test
// Expected: The token is still issued; the grant stands for its lifetime.
func TestExchangeToken_InactiveUserProceeds(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	grant, _ := svc.GenerateAuthCode(ctx, "user-1", mustAuthorizeRequest(t))
	svc.users.(*MockUserRepo).users["user-1"].IsActive = false

	resp, err := svc.ExchangeToken(ctx, ExchangeInput{
		Code:         grant.Code,
		ClientID:     "demo-client-001",
		RedirectURI:  "https://app.example/cb",
		CodeVerifier: testVerifier,
	})
	if err != nil {
		t.Fatalf("expected exchange to proceed, got %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected token for inactive user")
	}
}

// TestPurpose: Validates redirect URL construction preserves existing query parameters.
// Scope: Unit Test
// Expected: code and state are appended; the original query survives the round trip.
func TestBuildCodeRedirect(t *testing.T) {
	location, err := BuildCodeRedirect("https://app.example/cb?keep=1", "the-code", "the-state")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("redirect did not parse: %v", err)
	}
	q := u.Query()
	if q.Get("keep") != "1" {
		t.Error("existing query parameter lost")
	}
	if q.Get("code") != "the-code" || q.Get("state") != "the-state" {
		t.Errorf("code/state missing: %s", location)
	}

	// No state parameter when state is empty
	location, _ = BuildCodeRedirect("https://app.example/cb", "the-code", "")
	u, _ = url.Parse(location)
	if _, present := u.Query()["state"]; present {
		t.Error("state must be omitted when empty")
	}
}
