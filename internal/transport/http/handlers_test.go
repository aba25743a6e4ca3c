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

package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/authrim/authrim/internal/audit"
	"github.com/authrim/authrim/internal/consent"
	"github.com/authrim/authrim/internal/health"
	"github.com/authrim/authrim/internal/identity"
	"github.com/authrim/authrim/internal/oauth2"
	"github.com/authrim/authrim/internal/session"
	"github.com/authrim/authrim/internal/token"
)

// In-memory repositories backing the full handler stack.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*identity.User
}

func (m *memUserRepo) Create(ctx context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username != nil && *u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) Update(ctx context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func (m *memSessionRepo) Create(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return session.ErrDuplicateID
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memSessionRepo) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memSessionRepo) Update(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memSessionRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessionRepo) ListByUserID(ctx context.Context, userID string) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type memClientRepo struct {
	mu      sync.Mutex
	clients map[string]*oauth2.Client
}

func (m *memClientRepo) Create(ctx context.Context, c *oauth2.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.clients[c.ClientID] = &copied
	return nil
}

func (m *memClientRepo) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, oauth2.ErrClientNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memClientRepo) GetByID(ctx context.Context, id string) (*oauth2.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.ID == id {
			copied := *c
			return &copied, nil
		}
	}
	return nil, oauth2.ErrClientNotFound
}

func (m *memClientRepo) Update(ctx context.Context, c *oauth2.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.clients[c.ClientID] = &copied
	return nil
}

func (m *memClientRepo) ListByOwner(ctx context.Context, ownerID string) ([]*oauth2.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*oauth2.Client
	for _, c := range m.clients {
		if c.OwnerID == ownerID && c.IsActive {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*oauth2.AuthCode
}

func (m *memCodeRepo) Create(ctx context.Context, code *oauth2.AuthCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *code
	m.codes[code.Code] = &copied
	return nil
}

func (m *memCodeRepo) GetByCode(ctx context.Context, code string) (*oauth2.AuthCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, oauth2.ErrCodeNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memCodeRepo) MarkUsed(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.Used {
		return oauth2.ErrCodeAlreadyUsed
	}
	c.MarkAsUsed()
	return nil
}

func (m *memCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.codes {
		if c.IsExpired() || c.Used {
			delete(m.codes, k)
			n++
		}
	}
	return n, nil
}

type memConsentRepo struct {
	mu   sync.Mutex
	rows map[string]*consent.Consent
}

func consentKey(userID, clientID string) string { return userID + "|" + clientID }

func (m *memConsentRepo) Upsert(ctx context.Context, c *consent.Consent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	copied.RevokedAt = nil
	m.rows[consentKey(c.UserID, c.ClientID)] = &copied
	return nil
}

func (m *memConsentRepo) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[consentKey(userID, clientID)]
	if !ok {
		return nil, consent.ErrConsentNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memConsentRepo) Revoke(ctx context.Context, userID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[consentKey(userID, clientID)]
	if !ok || c.RevokedAt != nil {
		return consent.ErrConsentNotFound
	}
	now := time.Now()
	c.RevokedAt = &now
	return nil
}

func (m *memConsentRepo) ListByUserID(ctx context.Context, userID string) ([]*consent.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*consent.Consent
	for _, c := range m.rows {
		if c.UserID == userID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

// stubSigner avoids RSA key material in handler tests.
type stubSigner struct{}

func (stubSigner) SignAccessToken(tc oauth2.TokenClaims) (string, int64, error) {
	return "test-access-token", 900, nil
}

// RFC 7636 Appendix B test vector
const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type testEnv struct {
	router   http.Handler
	handler  *Handler
	sessions *session.Service
	consents *consent.Service
	userID   string
}

// newTestEnv wires the full handler stack over in-memory repositories,
// seeds a user (alice@example.com / password123) and a registered client
// (demo-client-001, https://app.example/cb).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	userRepo := &memUserRepo{users: make(map[string]*identity.User)}
	sessionRepo := &memSessionRepo{sessions: make(map[string]*session.Session)}
	clientRepo := &memClientRepo{clients: make(map[string]*oauth2.Client)}
	codeRepo := &memCodeRepo{codes: make(map[string]*oauth2.AuthCode)}
	consentRepo := &memConsentRepo{rows: make(map[string]*consent.Consent)}

	auditLogger := audit.NewSlogLogger()
	identityService := identity.NewService(userRepo, identity.NewPasswordHasher(bcrypt.MinCost), auditLogger)
	sessionService := session.NewService(sessionRepo, time.Hour, 30*24*time.Hour)
	oauth2Service := oauth2.NewService(clientRepo, codeRepo, userRepo, stubSigner{}, auditLogger, time.Minute)
	clientService := oauth2.NewClientService(clientRepo, auditLogger)
	consentService := consent.NewService(consentRepo, auditLogger)

	registry := health.NewRegistry()

	user, err := identityService.Register(ctx, identity.RegisterInput{
		Email:    "alice@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	now := time.Now()
	if err := clientRepo.Create(ctx, &oauth2.Client{
		ID:           "client-internal-1",
		ClientID:     "demo-client-001",
		ClientName:   "Demo App",
		RedirectURIs: []string{"https://app.example/cb"},
		GrantTypes:   []string{oauth2.GrantAuthorizationCode},
		Scopes:       []string{"read"},
		IsActive:     true,
		OwnerID:      user.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}

	handler := NewHandler(HandlerConfig{
		IdentityService: identityService,
		SessionService:  sessionService,
		OAuth2Service:   oauth2Service,
		ClientService:   clientService,
		ConsentService:  consentService,
		HealthRegistry:  registry,
		AuditLogger:     auditLogger,
		SessionConfig: SessionConfig{
			CookieName:     "session_id",
			CookiePath:     "/",
			Lifetime:       time.Hour,
			RememberMeLife: 30 * 24 * time.Hour,
		},
		ServiceName: "auth-server",
		ServiceURL:  "http://localhost:4000",
	})

	router := NewRouter(handler, NewRateLimiter(1000, 1000), RouterConfig{})

	return &testEnv{
		router:   router,
		handler:  handler,
		sessions: sessionService,
		consents: consentService,
		userID:   user.ID,
	}
}

// login establishes a session and returns its cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	sess, err := e.sessions.Create(context.Background(), e.userID, "203.0.113.7", "test-agent", false)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return &http.Cookie{Name: "session_id", Value: sess.ID}
}

func authorizeQuery(state string) url.Values {
	q := url.Values{}
	q.Set("client_id", "demo-client-001")
	q.Set("redirect_uri", "https://app.example/cb")
	q.Set("response_type", "code")
	q.Set("scope", "read")
	q.Set("state", state)
	q.Set("code_challenge", testChallenge)
	q.Set("code_challenge_method", "S256")
	return q
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

// TestPurpose: Validates session gating of interactive and API routes.
// Scope: Integration Test
// Security: Unauthenticated requests never reach the protected handlers.
// Expected: Pages redirect to login with the original URL preserved; API
// routes answer 401 with the InvalidSession envelope.
func TestSessionMiddleware(t *testing.T) {
	env := newTestEnv(t)

	t.Run("page redirects to login", func(t *testing.T) {
		target := "/auth/authorize?" + authorizeQuery("xyz").Encode()
		req := httptest.NewRequest("GET", target, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		loc := rec.Header().Get("Location")
		if !strings.HasPrefix(loc, "/auth/login?return_url=") {
			t.Errorf("unexpected redirect target: %q", loc)
		}
		if !strings.Contains(loc, url.QueryEscape("/auth/authorize")) {
			t.Errorf("return_url must carry the original path: %q", loc)
		}
	})

	t.Run("api answers 401", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/user/me", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "InvalidSession" {
			t.Errorf("expected InvalidSession envelope, got %v", body)
		}
	})

	t.Run("stale cookie is cleared", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/user/me", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "does-not-exist"})
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		cleared := false
		for _, c := range rec.Result().Cookies() {
			if c.Name == "session_id" && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Error("expected the session cookie to be cleared")
		}
	})

	t.Run("valid session passes", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/user/me", nil)
		req.AddCookie(env.login(t))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

// TestPurpose: Validates the login endpoint for JSON clients.
// Scope: Integration Test
// Expected: Correct credentials set a session cookie and return the public
// user; wrong credentials produce the InvalidCredentials envelope.
func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("success", func(t *testing.T) {
		payload := `{"email":"alice@example.com","password":"password123"}`
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == "session_id" {
				cookie = c
			}
		}
		if cookie == nil || cookie.Value == "" {
			t.Fatal("expected a session cookie")
		}
		if !cookie.HttpOnly {
			t.Error("session cookie must be HttpOnly")
		}
		body := decodeBody(t, rec)
		user, _ := body["user"].(map[string]any)
		if user["email"] != "alice@example.com" {
			t.Errorf("unexpected user payload: %v", body)
		}
		if _, leaked := user["password_hash"]; leaked {
			t.Error("password hash leaked into the response")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		payload := `{"email":"alice@example.com","password":"wrong"}`
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "InvalidCredentials" || body["statusCode"] != float64(401) {
			t.Errorf("unexpected envelope: %v", body)
		}
	})
}

// TestPurpose: Validates the authorize state machine end to end.
// Scope: Integration Test
// Expected: Missing consent yields the consent-required signal; an approval
// resumes the flow; existing consent goes straight to the code redirect.
func TestAuthorizeFlow(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	target := "/auth/authorize?" + authorizeQuery("abc123").Encode()

	// First pass: no consent on file.
	req := httptest.NewRequest("GET", target, nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 consent-required, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "ConsentRequired" {
		t.Fatalf("expected ConsentRequired, got %v", body)
	}
	consentURL, _ := body["consentUrl"].(string)
	if !strings.HasPrefix(consentURL, "/auth/authorize/consent?") {
		t.Errorf("unexpected consentUrl: %q", consentURL)
	}
	scopes, _ := body["scopes"].([]any)
	if len(scopes) != 1 || scopes[0] != "read" {
		t.Errorf("signal must carry plain scope names, got %v", body["scopes"])
	}

	// The consent page renders for the same parameters.
	req = httptest.NewRequest("GET", consentURL, nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("consent page failed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Demo App") {
		t.Error("consent page must show the client name")
	}

	// Approval resumes the flow with a code redirect.
	form := url.Values{}
	form.Set("decision", "approve")
	form.Set("client_id", "demo-client-001")
	form.Set("redirect_uri", "https://app.example/cb")
	form.Set("scope", "read")
	form.Set("state", "abc123")
	form.Set("code_challenge", testChallenge)
	form.Set("code_challenge_method", "S256")

	req = httptest.NewRequest("POST", "/auth/authorize/decision", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect location: %v", err)
	}
	if loc.Host != "app.example" || loc.Path != "/cb" {
		t.Errorf("redirect must target the registered URI, got %q", loc.String())
	}
	if loc.Query().Get("code") == "" {
		t.Error("redirect must carry an authorization code")
	}
	if loc.Query().Get("state") != "abc123" {
		t.Errorf("state not preserved: %q", loc.Query().Get("state"))
	}

	// Second authorize: consent is now on file, straight to the redirect.
	req = httptest.NewRequest("GET", target, nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected direct 302 with existing consent, got %d", rec.Code)
	}
}

// TestPurpose: Validates consent denial.
// Scope: Integration Test
// Expected: A deny decision answers 401 DenyConsent and stores no consent.
func TestConsentDeny(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	form := url.Values{}
	form.Set("decision", "deny")
	form.Set("client_id", "demo-client-001")
	form.Set("redirect_uri", "https://app.example/cb")
	form.Set("scope", "read")
	form.Set("code_challenge", testChallenge)
	form.Set("code_challenge_method", "S256")

	req := httptest.NewRequest("POST", "/auth/authorize/decision", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "DenyConsent" || body["statusCode"] != float64(401) {
		t.Errorf("unexpected envelope: %v", body)
	}

	granted, _ := env.consents.Check(context.Background(), env.userID, "demo-client-001", []string{"read"})
	if granted {
		t.Error("denial must not store consent")
	}
}

// obtainCode drives the authorize flow to a code for the given state.
func obtainCode(t *testing.T, env *testEnv, cookie *http.Cookie, state string) string {
	t.Helper()

	if err := env.consents.Grant(context.Background(), env.userID, "demo-client-001", []string{"read"}); err != nil {
		t.Fatalf("failed to grant consent: %v", err)
	}

	req := httptest.NewRequest("GET", "/auth/authorize?"+authorizeQuery(state).Encode(), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("authorize did not redirect: %d %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatal("no code in redirect")
	}
	return code
}

// TestPurpose: Validates the token endpoint contract (RFC 6749 Section 4.1.3).
// Scope: Integration Test
// Security: Token responses must never be cached; a consumed code is dead.
// Expected: A valid exchange returns the Bearer response with no-store
// headers; a replay answers 401 InvalidCode; a wrong grant_type answers 400.
func TestTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	code := obtainCode(t, env, cookie, "xyz")

	exchange := func(code, verifier string) *httptest.ResponseRecorder {
		form := url.Values{}
		form.Set("grant_type", "authorization_code")
		form.Set("code", code)
		form.Set("client_id", "demo-client-001")
		form.Set("redirect_uri", "https://app.example/cb")
		form.Set("code_verifier", verifier)

		req := httptest.NewRequest("POST", "/auth/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := exchange(code, testVerifier)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("Pragma") != "no-cache" {
		t.Error("token responses must carry no-store headers")
	}
	body := decodeBody(t, rec)
	if body["access_token"] != "test-access-token" || body["token_type"] != "Bearer" {
		t.Errorf("unexpected token response: %v", body)
	}
	if body["expires_in"] != float64(900) || body["scope"] != "read" {
		t.Errorf("unexpected token metadata: %v", body)
	}

	t.Run("replay", func(t *testing.T) {
		rec := exchange(code, testVerifier)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "InvalidCode" {
			t.Errorf("unexpected envelope: %v", body)
		}
	})

	t.Run("wrong verifier", func(t *testing.T) {
		fresh := obtainCode(t, env, cookie, "pkce")
		rec := exchange(fresh, strings.Repeat("z", 43))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeBody(t, rec); body["error"] != "InvalidCode" {
			t.Errorf("unexpected envelope: %v", body)
		}
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		req := httptest.NewRequest("POST", "/auth/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

// TestPurpose: Validates authorize parameter checks at the HTTP boundary.
// Scope: Integration Test
// Expected: Malformed parameters fail with 400 before any client lookup.
func TestAuthorizeValidation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	cases := []struct {
		name   string
		mutate func(url.Values)
	}{
		{"missing client_id", func(q url.Values) { q.Del("client_id") }},
		{"short client_id", func(q url.Values) { q.Set("client_id", "short") }},
		{"bad response_type", func(q url.Values) { q.Set("response_type", "token") }},
		{"relative redirect_uri", func(q url.Values) { q.Set("redirect_uri", "/cb") }},
		{"plain http redirect", func(q url.Values) { q.Set("redirect_uri", "http://app.example/cb") }},
		{"missing challenge", func(q url.Values) { q.Del("code_challenge") }},
		{"bad challenge method", func(q url.Values) { q.Set("code_challenge_method", "md5") }},
		{"oversized state", func(q url.Values) { q.Set("state", strings.Repeat("s", 501)) }},
		{"non-digest S256 challenge", func(q url.Values) { q.Set("code_challenge", strings.Repeat("a", 44)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := authorizeQuery("xyz")
			tc.mutate(q)
			req := httptest.NewRequest("GET", "/auth/authorize?"+q.Encode(), nil)
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if body := decodeBody(t, rec); body["error"] != "ValidateRequest" {
				t.Errorf("unexpected envelope: %v", body)
			}
		})
	}

	t.Run("unknown client", func(t *testing.T) {
		q := authorizeQuery("xyz")
		q.Set("client_id", "unknown-client-001")
		req := httptest.NewRequest("GET", "/auth/authorize?"+q.Encode(), nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeBody(t, rec); body["error"] != "InvalidClient" {
			t.Errorf("unexpected envelope: %v", body)
		}
	})
}

// TestPurpose: Validates the liveness endpoint and service metadata.
// Scope: Integration Test
// Expected: /health answers ok; / lists the discovery endpoints.
func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	endpoints, _ := body["endpoints"].(map[string]any)
	if endpoints["token"] != "http://localhost:4000/auth/token" {
		t.Errorf("unexpected endpoint map: %v", endpoints)
	}
}

// TestPurpose: Validates the JWKS endpoint shape and caching.
// Scope: Integration Test
// Expected: The key set serves with a one-hour public cache header.
func TestJWKSEndpoint(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	dir := t.TempDir()
	privDER, _ := x509.MarshalPKCS8PrivateKey(key)
	os.WriteFile(filepath.Join(dir, "private.pem"),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0600)
	pubDER, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	os.WriteFile(filepath.Join(dir, "public.pem"),
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0644)

	provider, err := token.LoadKeys(dir)
	if err != nil {
		t.Fatalf("failed to load keys: %v", err)
	}

	h := NewHandler(HandlerConfig{
		JwksService: token.NewJwksService(provider, "key-1"),
	})

	rec := httptest.NewRecorder()
	h.JWKS(rec, httptest.NewRequest("GET", "/auth/.well-known/jwks.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("unexpected cache header: %q", rec.Header().Get("Cache-Control"))
	}
	body := decodeBody(t, rec)
	keys, _ := body["keys"].([]any)
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %v", body)
	}
	jwk, _ := keys[0].(map[string]any)
	if jwk["kty"] != "RSA" || jwk["alg"] != "RS256" || jwk["kid"] != "key-1" {
		t.Errorf("unexpected key metadata: %v", jwk)
	}
}

// TestPurpose: Validates logout destroys the session server-side.
// Scope: Integration Test
// Expected: After logout the session no longer authenticates requests.
func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/user/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}
