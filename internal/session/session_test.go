package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/db/models"
	"github.com/terraconstructs/gridauth/internal/repository"
)

// mockSessionRepository implements repository.SessionRepository in memory
type mockSessionRepository struct {
	mu      sync.Mutex
	byID    map[string]*models.Session
	touched int
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{byID: make(map[string]*models.Session)}
}

func (m *mockSessionRepository) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *mockSessionRepository) GetByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockSessionRepository) UpdateLastUsed(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	return nil
}

func (m *mockSessionRepository) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		s.Revoked = true
	}
	return nil
}

func (m *mockSessionRepository) RevokeByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

func (m *mockSessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.Revoked || time.Now().After(s.ExpiresAt) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepository) get(id string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.byID[id]
	return &cp
}

var testHashKey = []byte("0123456789abcdef0123456789abcdef")

func testOptions() Options {
	return Options{
		SessionCookieName:  "test.session",
		RememberCookieName: "test.remember",
		SessionDuration:    time.Hour,
		RememberDuration:   24 * time.Hour,
		Secure:             true,
	}
}

func newTestManager(t *testing.T, repo *mockSessionRepository) *Manager {
	t.Helper()
	m, err := NewManager(repo, testHashKey, nil, testOptions(), nil)
	require.NoError(t, err)
	return m
}

// nextRequest builds a request that carries the cookies a browser would keep from rec.
func nextRequest(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return r
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func TestNewManager_Validation(t *testing.T) {
	repo := newMockSessionRepository()

	_, err := NewManager(nil, testHashKey, nil, testOptions(), nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = NewManager(repo, []byte("short"), nil, testOptions(), nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = NewManager(repo, testHashKey, []byte("bad-block"), testOptions(), nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	opts := testOptions()
	opts.RememberCookieName = ""
	_, err = NewManager(repo, testHashKey, nil, opts, nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	opts = testOptions()
	opts.SessionDuration = 0
	_, err = NewManager(repo, testHashKey, nil, opts, nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = NewManager(repo, testHashKey, []byte("0123456789abcdef"), testOptions(), nil)
	assert.NoError(t, err)
}

func TestDatabaseStore_SetThenGet(t *testing.T) {
	ctx := context.Background()
	repo := newMockSessionRepository()
	m := newTestManager(t, repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("User-Agent", "test-agent")
	store, _ := m.Stores(rec, req)
	require.NoError(t, store.Set(ctx, "user-1"))

	cookie := findCookie(rec, "test.session")
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Len(t, cookie.Value, auth.TokenLength)

	stored := repo.get(store.Current().ID)
	assert.Equal(t, auth.HashToken(cookie.Value), stored.TokenHash)
	assert.NotEqual(t, cookie.Value, stored.TokenHash)
	require.NotNil(t, stored.UserAgent)
	assert.Equal(t, "test-agent", *stored.UserAgent)

	next, _ := m.Stores(httptest.NewRecorder(), nextRequest(rec))
	userID, err := next.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestDatabaseStore_NoCookie(t *testing.T) {
	m := newTestManager(t, newMockSessionRepository())
	store, _ := m.Stores(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	userID, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestDatabaseStore_InvalidSessions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(s *models.Session)
	}{
		{name: "revoked", mutate: func(s *models.Session) { s.Revoked = true }},
		{name: "expired", mutate: func(s *models.Session) { s.ExpiresAt = time.Now().Add(-time.Minute) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockSessionRepository()
			m := newTestManager(t, repo)

			rec := httptest.NewRecorder()
			store, _ := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			require.NoError(t, store.Set(ctx, "user-1"))
			repo.mu.Lock()
			tt.mutate(repo.byID[store.Current().ID])
			repo.mu.Unlock()

			out := httptest.NewRecorder()
			next, _ := m.Stores(out, nextRequest(rec))
			userID, err := next.Get(ctx)
			require.NoError(t, err)
			assert.Empty(t, userID)

			cleared := findCookie(out, "test.session")
			require.NotNil(t, cleared)
			assert.Less(t, cleared.MaxAge, 0)
		})
	}
}

func TestDatabaseStore_UnknownCookie(t *testing.T) {
	m := newTestManager(t, newMockSessionRepository())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "test.session", Value: "forged"})
	store, _ := m.Stores(httptest.NewRecorder(), req)
	userID, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestDatabaseStore_SetRegenerates(t *testing.T) {
	ctx := context.Background()
	repo := newMockSessionRepository()
	m := newTestManager(t, repo)

	rec := httptest.NewRecorder()
	first, _ := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, first.Set(ctx, "user-1"))
	oldID := first.Current().ID

	second, _ := m.Stores(httptest.NewRecorder(), nextRequest(rec))
	_, err := second.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Set(ctx, "user-1"))

	assert.NotEqual(t, oldID, second.Current().ID)
	assert.True(t, repo.get(oldID).Revoked)
}

func TestDatabaseStore_Destroy(t *testing.T) {
	ctx := context.Background()
	repo := newMockSessionRepository()
	m := newTestManager(t, repo)

	rec := httptest.NewRecorder()
	store, _ := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, store.Set(ctx, "user-1"))
	id := store.Current().ID

	// A later request destroys the session without reading it first
	out := httptest.NewRecorder()
	next, _ := m.Stores(out, nextRequest(rec))
	require.NoError(t, next.Destroy(ctx))
	assert.True(t, repo.get(id).Revoked)
	assert.Nil(t, next.Current())
	assert.Less(t, findCookie(out, "test.session").MaxAge, 0)

	userID, err := next.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestManager_Sweep(t *testing.T) {
	ctx := context.Background()
	repo := newMockSessionRepository()
	m := newTestManager(t, repo)

	store, _ := m.Stores(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, store.Set(ctx, "user-1"))
	require.NoError(t, store.Destroy(ctx))
	require.NoError(t, store.Set(ctx, "user-1"))

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRememberCookie_RoundTrip(t *testing.T) {
	m := newTestManager(t, newMockSessionRepository())

	rec := httptest.NewRecorder()
	_, remember := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, remember.Set("user-1", "plain-remember-token", 2*time.Hour))

	cookie := findCookie(rec, "test.remember")
	require.NotNil(t, cookie)
	assert.Equal(t, 7200, cookie.MaxAge)
	assert.NotContains(t, cookie.Value, "plain-remember-token")

	_, next := m.Stores(httptest.NewRecorder(), nextRequest(rec))
	userID, token, ok := next.Get()
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "plain-remember-token", token)
}

func TestRememberCookie_Rejected(t *testing.T) {
	m := newTestManager(t, newMockSessionRepository())

	rec := httptest.NewRecorder()
	_, remember := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, remember.Set("user-1", "tok", time.Hour))
	value := findCookie(rec, "test.remember").Value

	other, err := NewManager(newMockSessionRepository(), []byte("fedcba9876543210fedcba9876543210"), nil, testOptions(), nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		m     *Manager
		value string
	}{
		{name: "tampered", m: m, value: value[:len(value)-2] + "xx"},
		{name: "foreign key", m: other, value: value},
		{name: "garbage", m: m, value: "not-a-cookie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "test.remember", Value: tt.value})
			_, store := tt.m.Stores(httptest.NewRecorder(), req)
			_, _, ok := store.Get()
			assert.False(t, ok)
		})
	}
}

func TestRememberCookie_SetError(t *testing.T) {
	m := newTestManager(t, newMockSessionRepository())
	rec := httptest.NewRecorder()
	_, remember := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	// securecookie refuses values over its 4096 byte limit.
	err := remember.Set("user-1", strings.Repeat("t", 5000), time.Hour)
	require.Error(t, err)
	assert.Nil(t, findCookie(rec, "test.remember"))
}

func TestRememberCookie_Clear(t *testing.T) {
	m := newTestManager(t, newMockSessionRepository())
	rec := httptest.NewRecorder()
	_, remember := m.Stores(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	remember.Clear()

	cookie := findCookie(rec, "test.remember")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}
