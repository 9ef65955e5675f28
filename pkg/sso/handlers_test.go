package sso

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

type ssoStore struct {
	storage.Store

	users  map[int64]*storage.User
	nextID int64
}

func newSSOStore() *ssoStore {
	return &ssoStore{users: make(map[int64]*storage.User), nextID: 1}
}

func (s *ssoStore) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

func (s *ssoStore) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user %s not found", email)
}

func (s *ssoStore) GetUserBySSOSubject(ctx context.Context, subject string) (*storage.User, error) {
	for _, u := range s.users {
		if u.SSOSubject == subject {
			return u, nil
		}
	}
	return nil, apperr.NotFound("no user for subject")
}

func (s *ssoStore) CreateUser(ctx context.Context, user *storage.User) error {
	user.ID = s.nextID
	s.nextID++
	s.users[user.ID] = user
	return nil
}

func (s *ssoStore) UpdateUser(ctx context.Context, user *storage.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return apperr.NotFound("user %d not found", user.ID)
	}
	s.users[user.ID] = user
	return nil
}

func (s *ssoStore) CreateSession(ctx context.Context, session *storage.Session) error {
	return nil
}

type fakeProvider struct {
	exchangeErr error
	identity    *Identity
	gotCode     string
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://login.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	p.gotCode = code
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.identity, nil
}

func ssoFixture(t *testing.T) (*Handlers, *ssoStore, *fakeProvider, *mux.Router) {
	t.Helper()
	store := newSSOStore()
	provider := &fakeProvider{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	authSvc := auth.NewService(store, auth.Options{}, logger)
	h := NewHandlers(provider, authSvc, store, "/app", false, logger)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return h, store, provider, router
}

func stateCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("state cookie not set")
	return nil
}

func TestLoginRedirectsWithState(t *testing.T) {
	_, _, _, router := ssoFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	cookie := stateCookie(t, rec)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, cookie.Value, location.Query().Get("state"))
	assert.True(t, cookie.HttpOnly)
}

func callbackRequest(state, code string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/sso/callback?state="+url.QueryEscape(state)+"&code="+url.QueryEscape(code), nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestCallbackProvisionsEmployee(t *testing.T) {
	_, store, provider, router := ssoFixture(t)
	provider.identity = &Identity{Subject: "ms-sub-1", Email: "new@example.com", Name: "New Person", Verified: true}

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))
	cookie := stateCookie(t, loginRec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest(cookie.Value, "code-1", cookie))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/app", rec.Header().Get("Location"))
	assert.Equal(t, "code-1", provider.gotCode)

	user, err := store.GetUserBySSOSubject(context.Background(), "ms-sub-1")
	require.NoError(t, err)
	assert.Equal(t, "employee", user.Role)
	assert.Equal(t, "New Person", user.FullName)
	assert.True(t, user.Active)

	var sessionSet bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "fieldsafe_session" && c.Value != "" {
			sessionSet = true
		}
	}
	assert.True(t, sessionSet, "session cookie should be set")
}

func TestCallbackLinksExistingUserByVerifiedEmail(t *testing.T) {
	_, store, provider, router := ssoFixture(t)
	store.users[5] = &storage.User{ID: 5, Email: "ines@example.com", FullName: "Ines Okafor", Role: "inspector", Active: true}
	store.nextID = 6
	provider.identity = &Identity{Subject: "ms-sub-5", Email: "ines@example.com", Verified: true}

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))
	cookie := stateCookie(t, loginRec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest(cookie.Value, "code-2", cookie))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "ms-sub-5", store.users[5].SSOSubject)
	assert.Equal(t, "inspector", store.users[5].Role)
	assert.Len(t, store.users, 1)
}

func TestCallbackRejectsUnverifiedEmail(t *testing.T) {
	_, store, provider, router := ssoFixture(t)
	store.users[5] = &storage.User{ID: 5, Email: "ines@example.com", Role: "inspector", Active: true}
	store.nextID = 6
	provider.identity = &Identity{Subject: "ms-sub-9", Email: "ines@example.com", Verified: false}

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))
	cookie := stateCookie(t, loginRec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest(cookie.Value, "code-3", cookie))

	// The inspector account must not be linked on an unverified claim.
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, store.users[5].SSOSubject)
	assert.Len(t, store.users, 1)
}

func TestCallbackStateMismatch(t *testing.T) {
	_, _, provider, router := ssoFixture(t)
	provider.identity = &Identity{Subject: "s", Email: "e@example.com", Verified: true}

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))
	cookie := stateCookie(t, loginRec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest("tampered", "code", cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest(cookie.Value, "code", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallbackExchangeFailure(t *testing.T) {
	_, _, provider, router := ssoFixture(t)
	provider.exchangeErr = errors.New("idp unavailable")

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))
	cookie := stateCookie(t, loginRec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest(cookie.Value, "code", cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallbackDeactivatedUser(t *testing.T) {
	_, store, provider, router := ssoFixture(t)
	store.users[3] = &storage.User{ID: 3, Email: "old@example.com", SSOSubject: "ms-sub-3", Role: "employee", Active: false}
	store.nextID = 4
	provider.identity = &Identity{Subject: "ms-sub-3", Email: "old@example.com", Verified: true}

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil))
	cookie := stateCookie(t, loginRec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callbackRequest(cookie.Value, "code", cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims idClaims
		want   Identity
	}{
		{
			name:   "verified email claim",
			claims: idClaims{Email: "a@example.com", EmailVerified: true, Name: "A Person"},
			want:   Identity{Subject: "sub", Email: "a@example.com", Name: "A Person", Verified: true},
		},
		{
			name:   "preferred_username fallback",
			claims: idClaims{PreferredUsername: "b@example.com"},
			want:   Identity{Subject: "sub", Email: "b@example.com", Name: "b@example.com", Verified: true},
		},
		{
			name:   "unverified email",
			claims: idClaims{Email: "c@example.com", Name: "C"},
			want:   Identity{Subject: "sub", Email: "c@example.com", Name: "C", Verified: false},
		},
		{
			name:   "no email at all",
			claims: idClaims{Name: "D"},
			want:   Identity{Subject: "sub", Name: "D", Verified: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := identityFromClaims("sub", tt.claims)
			assert.Equal(t, tt.want, *got)
		})
	}
}
