package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-host/lattice-gateway/internal/account"
	"github.com/lattice-host/lattice-gateway/internal/apikey"
)

type fakeKeys struct {
	mu      sync.Mutex
	byHash  map[string]*apikey.Key
	err     error
	touched []int
}

func (f *fakeKeys) GetByHash(_ context.Context, hash string) (*apikey.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if k, ok := f.byHash[hash]; ok {
		return k, nil
	}
	return nil, apikey.ErrNotFound
}

func (f *fakeKeys) TouchLastUsed(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeKeys) touchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.touched)
}

type fakeUsers struct {
	byEmail map[string]*account.User
	err     error
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*account.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, account.ErrNotFound
}

func newTestVerifier(t *testing.T) (*Verifier, *SessionManager, *fakeKeys, *fakeUsers) {
	t.Helper()
	sessions := NewSessionManager("session-secret", "lattice-gateway")
	keys := &fakeKeys{byHash: map[string]*apikey.Key{
		apikey.Hash("lk_service_key"): {ID: 1, ProjectID: 3, Type: apikey.TypeService},
		apikey.Hash("lk_restricted"):  {ID: 2, ProjectID: 5, Type: apikey.TypeRestricted},
	}}
	users := &fakeUsers{byEmail: map[string]*account.User{
		"alice@example.com": {ID: 10, Email: "alice@example.com"},
		"root@example.com":  {ID: 11, Email: "root@example.com", IsAdmin: true},
	}}
	return NewVerifier("master-secret", sessions, keys, users), sessions, keys, users
}

func TestVerifyMasterBypass(t *testing.T) {
	v, _, _, _ := newTestVerifier(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.AddCookie(&http.Cookie{Name: AdminCookie, Value: "master-secret"})

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.True(t, res.IsAdmin)
	assert.Equal(t, MethodSession, res.Method)
	assert.Zero(t, res.ProjectID)
}

func TestVerifyMasterBypassWrongSecret(t *testing.T) {
	v, _, _, _ := newTestVerifier(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.AddCookie(&http.Cookie{Name: AdminCookie, Value: "guess"})

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Authorized)
}

func TestVerifyAPIKey(t *testing.T) {
	v, _, keys, _ := newTestVerifier(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer lk_service_key")

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Authorized)
	assert.Equal(t, MethodAPIKey, res.Method)
	assert.Equal(t, 3, res.ProjectID)
	assert.True(t, res.ServiceKey)
	assert.False(t, res.KeyRejected)

	// Last-used update is async; give it a moment.
	assert.Eventually(t, func() bool { return keys.touchCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestVerifyRestrictedKey(t *testing.T) {
	v, _, _, _ := newTestVerifier(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer lk_restricted")

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Authorized)
	assert.Equal(t, 5, res.ProjectID)
	assert.False(t, res.ServiceKey)
}

func TestVerifyInvalidKeyFallsThroughToSession(t *testing.T) {
	v, sessions, _, _ := newTestVerifier(t)

	token, err := sessions.Issue("alice@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer lk_unknown")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Authorized)
	assert.Equal(t, MethodSession, res.Method)
	assert.Equal(t, 10, res.UserID)
	// The rejected key is still reported, not masked.
	assert.True(t, res.KeyRejected)
}

func TestVerifyInvalidKeyNoSession(t *testing.T) {
	v, _, _, _ := newTestVerifier(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer lk_unknown")

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.True(t, res.KeyRejected)
}

func TestVerifySessionCookie(t *testing.T) {
	v, sessions, _, _ := newTestVerifier(t)

	token, err := sessions.Issue("root@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Authorized)
	assert.Equal(t, MethodSession, res.Method)
	assert.Equal(t, 11, res.UserID)
	assert.True(t, res.IsAdmin)
	assert.Zero(t, res.ProjectID)
}

func TestVerifyUnknownSessionUser(t *testing.T) {
	v, sessions, _, _ := newTestVerifier(t)

	token, err := sessions.Issue("ghost@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Authorized)
}

func TestVerifyKeyStoreFailure(t *testing.T) {
	v, _, keys, _ := newTestVerifier(t)
	keys.err = errors.New("dial tcp: connection refused")

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer lk_service_key")

	// A store outage is not a rejection: the key was never evaluated.
	res, err := v.Verify(context.Background(), req)
	require.Error(t, err)
	assert.False(t, res.Authorized)
	assert.False(t, res.KeyRejected)
}

func TestVerifyUserStoreFailure(t *testing.T) {
	v, sessions, _, users := newTestVerifier(t)
	users.err = errors.New("dial tcp: connection refused")

	token, err := sessions.Issue("alice@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	res, err := v.Verify(context.Background(), req)
	require.Error(t, err)
	assert.False(t, res.Authorized)
}

func TestVerifyNoCredentials(t *testing.T) {
	v, _, _, _ := newTestVerifier(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	res, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.False(t, res.KeyRejected)
}
