package iam

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/terraconstructs/gridauth/internal/provider"
	"github.com/terraconstructs/gridauth/internal/repository"
)

// mockUser implements auth.Authenticatable
type mockUser struct {
	id           string
	password     string
	loadedHash   string
	stagedToken  string
	stagedChange bool
}

func (u *mockUser) GetID() string                { return u.id }
func (u *mockUser) VerifyPassword(p string) bool { return u.password != "" && p == u.password }
func (u *mockUser) GetRememberMeToken() string   { return u.stagedToken }
func (u *mockUser) SetRememberMeToken(t string) {
	u.stagedToken = t
	u.stagedChange = true
}

type mockUserRecord struct {
	id           string
	email        string
	password     string
	rememberHash string
}

// mockProvider implements provider.Provider with compare-and-swap remember tokens
type mockProvider struct {
	mu            sync.Mutex
	users         map[string]*mockUserRecord
	lookups       int
	failAll       error
	missingChecks []string
}

func newMockProvider() *mockProvider {
	return &mockProvider{users: make(map[string]*mockUserRecord)}
}

func (p *mockProvider) add(id, email, password string) *mockUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[id] = &mockUserRecord{id: id, email: email, password: password}
	return &mockUser{id: id, password: password}
}

func (p *mockProvider) load(rec *mockUserRecord) *mockUser {
	return &mockUser{id: rec.id, password: rec.password, loadedHash: rec.rememberHash}
}

func (p *mockProvider) FindByID(_ context.Context, id string) (auth.Authenticatable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.failAll != nil {
		return nil, p.failAll
	}
	rec, ok := p.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return p.load(rec), nil
}

func (p *mockProvider) FindByUID(_ context.Context, uid string) (auth.Authenticatable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.failAll != nil {
		return nil, p.failAll
	}
	for _, rec := range p.users {
		if rec.email == uid {
			return p.load(rec), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (p *mockProvider) FindByToken(_ context.Context, userID, token string) (auth.Authenticatable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.failAll != nil {
		return nil, p.failAll
	}
	rec, ok := p.users[userID]
	if !ok || !auth.TokenMatchesHash(token, rec.rememberHash) {
		return nil, auth.ErrUserNotFound
	}
	return p.load(rec), nil
}

func (p *mockProvider) UpdateRememberMeToken(_ context.Context, user auth.Authenticatable) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := user.(*mockUser)
	if !u.stagedChange {
		return nil
	}
	rec, ok := p.users[u.id]
	if !ok {
		return auth.ErrUserNotFound
	}
	if rec.rememberHash != u.loadedHash {
		return provider.ErrRememberTokenConflict
	}
	next := ""
	if u.stagedToken != "" {
		next = auth.HashToken(u.stagedToken)
	}
	rec.rememberHash = next
	u.loadedHash = next
	u.stagedChange = false
	return nil
}

func (p *mockProvider) VerifyMissing(password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missingChecks = append(p.missingChecks, password)
}

func (p *mockProvider) missingCheckCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.missingChecks)
}

func (p *mockProvider) rememberHash(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[id].rememberHash
}

func (p *mockProvider) lookupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups
}

// mockTokenStore implements repository.TokenStore
type mockTokenStore struct {
	mu      sync.Mutex
	records []*models.APIToken
	seq     int
	touched map[string]int
	failErr error
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{touched: make(map[string]int)}
}

func (s *mockTokenStore) Save(_ context.Context, token *models.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.seq++
	cp := *token
	cp.ID = time.Unix(int64(s.seq), 0).UTC().Format("20060102150405")
	cp.CreatedAt = time.Unix(int64(s.seq), 0)
	token.ID = cp.ID
	token.CreatedAt = cp.CreatedAt
	s.records = append(s.records, &cp)
	return nil
}

func matches(r *models.APIToken, f repository.TokenFilter) bool {
	return (f.UserID == "" || r.UserID == f.UserID) &&
		(f.Group == "" || r.Group == f.Group) &&
		(f.Environment == "" || r.Environment == f.Environment) &&
		(f.Type == "" || r.Type == f.Type)
}

func (s *mockTokenStore) FindByToken(_ context.Context, plainToken string, f repository.TokenFilter) (*models.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	hash := auth.HashToken(plainToken)
	for _, r := range s.records {
		if r.TokenHash == hash && matches(r, f) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *mockTokenStore) List(_ context.Context, f repository.TokenFilter) ([]models.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.APIToken{}
	for _, r := range s.records {
		if matches(r, f) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *mockTokenStore) UpdateLastUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id]++
	return nil
}

func (s *mockTokenStore) Delete(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id && r.UserID == userID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *mockTokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// mockSessionStore implements SessionStore
type mockSessionStore struct {
	userID    string
	sets      int
	destroyed int
	getErr    error
}

func (s *mockSessionStore) Get(context.Context) (string, error) { return s.userID, s.getErr }
func (s *mockSessionStore) Set(_ context.Context, userID string) error {
	s.userID = userID
	s.sets++
	return nil
}
func (s *mockSessionStore) Destroy(context.Context) error {
	s.userID = ""
	s.destroyed++
	return nil
}

// mockRememberStore implements RememberCookieStore; it plays the browser cookie jar
type mockRememberStore struct {
	userID string
	token  string
	expiry time.Duration
	set    bool
	setErr error
}

func (s *mockRememberStore) Get() (string, string, bool) { return s.userID, s.token, s.set }
func (s *mockRememberStore) Set(userID, token string, expiry time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.userID, s.token, s.expiry, s.set = userID, token, expiry, true
	return nil
}
func (s *mockRememberStore) Clear() {
	s.userID, s.token, s.expiry, s.set = "", "", 0, false
}

func testCodec(t *testing.T) *auth.Codec {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	enc, err := auth.NewAEADEncrypterFromKey(context.Background(), base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return auth.NewCodec(enc)
}

// requestContext returns a context carrying a fresh request state
func requestContext() (context.Context, *auth.RequestState) {
	return auth.WithRequestState(context.Background())
}
