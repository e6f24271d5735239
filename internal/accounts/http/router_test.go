package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	accountshttp "github.com/aussiebroadwan/accounts/internal/accounts/http"
	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/mail"
	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/internal/accounts/store/drivers/sqlite"
	"github.com/aussiebroadwan/accounts/pkg/accountsdk"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testServer struct {
	router *accountshttp.Router
	auth   *service.AuthService
	users  *service.UserService
	codec  *jwtx.Codec
	mailer *recordingMailer
}

func generousLimits() httpx.RateLimits {
	lim := httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}
	return httpx.RateLimits{Strict: lim, Moderate: lim, Public: lim}
}

func newTestServer(t *testing.T, openSignUp bool, limits httpx.RateLimits) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "accounts.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hasher := cryptox.NewPasswordHasher(cryptox.HasherConfig{Pepper: "test-pepper", Memory: 1024, Iterations: 1})
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "accounts-test",
	})
	require.NoError(t, err)

	m := &recordingMailer{}
	auth := service.NewAuthService(st.Users(), hasher, codec, m, service.AuthConfig{
		ProjectName: "Accounts",
		ServerHost:  "https://accounts.example.com",
	})
	users := service.NewUserService(st, hasher, m, service.UserConfig{
		OpenSignUp:  openSignUp,
		ProjectName: "Accounts",
		ServerHost:  "https://accounts.example.com",
	})

	r := accountshttp.NewRouter(st, auth, users, accountshttp.RouterConfig{
		BuildVersion: "test",
		RateLimits:   limits,
	}, slogx.Discard())
	r.ApplyRoutes()

	ts := &testServer{router: r, auth: auth, users: users, codec: codec, mailer: m}
	ts.createUser(t, adminEmail, adminPassword, true, true)
	return ts
}

func (ts *testServer) createUser(t *testing.T, email, password string, active, superuser bool) domain.User {
	t.Helper()
	u, err := ts.users.CreateUser(context.Background(), domain.NewUser{
		Email:       email,
		Password:    password,
		IsActive:    active,
		IsSuperuser: superuser,
	})
	require.NoError(t, err)
	return u
}

func (ts *testServer) token(t *testing.T, email, password string) string {
	t.Helper()
	grant, err := ts.auth.Authenticate(context.Background(), email, password)
	require.NoError(t, err)
	return grant.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, want *accountsdk.APIError) {
	t.Helper()
	require.Equal(t, want.StatusCode, rec.Code, rec.Body.String())
	body := decode[accountsdk.ErrorResponse](t, rec)
	require.Equal(t, want.Code, body.Error)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())
	ts.createUser(t, "sleepy@example.com", "sleepy-password", false, false)

	t.Run("success", func(t *testing.T) {
		rec := ts.login(t, "  ADMIN@example.com ", adminPassword)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		tok := decode[accountsdk.TokenResponse](t, rec)
		require.Equal(t, "bearer", tok.TokenType)
		require.Equal(t, int(jwtx.DefaultAccessTokenTTL.Seconds()), tok.ExpiresIn)

		sub, err := ts.codec.DecodeAccessToken(tok.AccessToken)
		require.NoError(t, err)
		require.NotEmpty(t, sub)
	})

	t.Run("wrong password", func(t *testing.T) {
		requireError(t, ts.login(t, adminEmail, "nope-nope"), accountsdk.ErrInvalidCredentials)
	})

	t.Run("unknown user looks the same", func(t *testing.T) {
		requireError(t, ts.login(t, "ghost@example.com", "nope-nope"), accountsdk.ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		requireError(t, ts.login(t, "sleepy@example.com", "sleepy-password"), accountsdk.ErrInactiveUser)
	})

	t.Run("missing fields", func(t *testing.T) {
		requireError(t, ts.login(t, "", ""), accountsdk.ErrInvalidRequest)
	})
}

func TestLogin_RateLimited(t *testing.T) {
	limits := generousLimits()
	limits.Strict = httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}
	ts := newTestServer(t, false, limits)

	require.Equal(t, http.StatusOK, ts.login(t, adminEmail, adminPassword).Code)

	rec := ts.login(t, adminEmail, adminPassword)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestBearerAuthentication(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())
	sleepy := ts.createUser(t, "sleepy@example.com", "sleepy-password", false, false)
	sleepyToken, err := ts.codec.IssueAccessToken(sleepy.ID, time.Hour)
	require.NoError(t, err)
	ghostToken, err := ts.codec.IssueAccessToken("01ARZ3NDEKTSV4RRFFQ69G5FAV", time.Hour)
	require.NoError(t, err)
	resetToken, err := ts.codec.IssueResetToken(sleepy.ID, time.Hour)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/login/test-token", ts.token(t, adminEmail, adminPassword), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		u := decode[accountsdk.UserResponse](t, rec)
		require.Equal(t, adminEmail, u.Email)
		require.True(t, u.IsSuperuser)
		require.NotContains(t, rec.Body.String(), "password")
	})

	for name, token := range map[string]string{
		"missing":        "",
		"garbage":        "not-a-token",
		"unknown user":   ghostToken,
		"reset as login": resetToken,
	} {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/login/test-token", token, nil)
			requireError(t, rec, accountsdk.ErrInvalidToken)
			require.Contains(t, rec.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`)
		})
	}

	t.Run("inactive account", func(t *testing.T) {
		requireError(t, ts.do(t, http.MethodGet, "/api/v1/users/me", sleepyToken, nil), accountsdk.ErrInactiveAccount)
	})
}

func TestPasswordRecovery(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())

	for _, email := range []string{adminEmail, "ghost@example.com"} {
		rec := ts.do(t, http.MethodPost, "/api/v1/login/password-recovery", "", accountsdk.PasswordRecoveryRequest{Email: email})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "Password recovery email sent", decode[accountsdk.MessageResponse](t, rec).Message)
	}

	// Only the registered address is mailed.
	require.Equal(t, 1, ts.mailer.count())

	rec := ts.do(t, http.MethodPost, "/api/v1/login/password-recovery", "", map[string]string{})
	requireError(t, rec, accountsdk.ErrInvalidRequest)
}

func TestResetPassword(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())
	u := ts.createUser(t, "forgetful@example.com", "old-password", true, false)

	reset, err := ts.codec.IssueResetToken(u.ID, time.Hour)
	require.NoError(t, err)

	t.Run("short password", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/login/reset-password", "",
			accountsdk.ResetPasswordRequest{Token: reset, NewPassword: "short"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		access := ts.token(t, "forgetful@example.com", "old-password")
		rec := ts.do(t, http.MethodPost, "/api/v1/login/reset-password", "",
			accountsdk.ResetPasswordRequest{Token: access, NewPassword: "new-password"})
		requireError(t, rec, accountsdk.ErrInvalidResetToken)
	})

	t.Run("success", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/login/reset-password", "",
			accountsdk.ResetPasswordRequest{Token: reset, NewPassword: "new-password"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, "Password updated successfully", decode[accountsdk.MessageResponse](t, rec).Message)

		require.Equal(t, http.StatusOK, ts.login(t, "forgetful@example.com", "new-password").Code)
		requireError(t, ts.login(t, "forgetful@example.com", "old-password"), accountsdk.ErrInvalidCredentials)
	})
}

func TestUsersAdmin(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())
	admin := ts.token(t, adminEmail, adminPassword)

	rec := ts.do(t, http.MethodPost, "/api/v1/users", admin, accountsdk.UserCreateRequest{
		Email:     "New@Example.com",
		Password:  "new-user-password",
		FirstName: "New",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[accountsdk.UserResponse](t, rec)
	require.Equal(t, "new@example.com", created.Email)
	require.True(t, created.IsActive)
	require.False(t, created.IsSuperuser)

	t.Run("duplicate email", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/users", admin, accountsdk.UserCreateRequest{
			Email:    "new@example.com",
			Password: "another-password",
		})
		requireError(t, rec, accountsdk.ErrEmailTaken)
	})

	t.Run("invalid email", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/users", admin, accountsdk.UserCreateRequest{
			Email:    "not-an-email",
			Password: "another-password",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/users?skip=0&limit=1", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		page := decode[accountsdk.UserListResponse](t, rec)
		require.Equal(t, 2, page.Count)
		require.Equal(t, 1, page.Limit)
		require.Len(t, page.Data, 1)

		rec = ts.do(t, http.MethodGet, "/api/v1/users?limit=abc", admin, nil)
		requireError(t, rec, accountsdk.ErrInvalidRequest)
	})

	t.Run("get", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/users/"+created.ID, admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, created.ID, decode[accountsdk.UserResponse](t, rec).ID)

		requireError(t, ts.do(t, http.MethodGet, "/api/v1/users/missing", admin, nil), accountsdk.ErrUserNotFound)
	})

	t.Run("update", func(t *testing.T) {
		name := "Renamed"
		inactive := false
		rec := ts.do(t, http.MethodPatch, "/api/v1/users/"+created.ID, admin, accountsdk.UserUpdateRequest{
			FirstName: &name,
			IsActive:  &inactive,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decode[accountsdk.UserResponse](t, rec)
		require.Equal(t, "Renamed", updated.FirstName)
		require.False(t, updated.IsActive)

		taken := adminEmail
		rec = ts.do(t, http.MethodPatch, "/api/v1/users/"+created.ID, admin, accountsdk.UserUpdateRequest{Email: &taken})
		requireError(t, rec, accountsdk.ErrEmailTaken)
	})

	t.Run("delete", func(t *testing.T) {
		rec := ts.do(t, http.MethodDelete, "/api/v1/users/"+created.ID, admin, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		requireError(t, ts.do(t, http.MethodDelete, "/api/v1/users/"+created.ID, admin, nil), accountsdk.ErrUserNotFound)
	})
}

func TestUsersAdmin_RequiresSuperuser(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())
	ts.createUser(t, "plain@example.com", "plain-password", true, false)
	plain := ts.token(t, "plain@example.com", "plain-password")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPost, "/api/v1/users"},
		{http.MethodGet, "/api/v1/users/anything"},
		{http.MethodPatch, "/api/v1/users/anything"},
		{http.MethodDelete, "/api/v1/users/anything"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			requireError(t, ts.do(t, tc.method, tc.path, plain, nil), accountsdk.ErrInsufficientPrivileges)
		})
	}
}

func TestUsersMe(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())
	ts.createUser(t, "me@example.com", "my-password", true, false)
	token := ts.token(t, "me@example.com", "my-password")

	rec := ts.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "me@example.com", decode[accountsdk.UserResponse](t, rec).Email)

	phone := "+61 400 000 000"
	rec = ts.do(t, http.MethodPatch, "/api/v1/users/me", token, accountsdk.UserUpdateRequest{PhoneNumber: &phone})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, phone, decode[accountsdk.UserResponse](t, rec).PhoneNumber)

	promote := true
	rec = ts.do(t, http.MethodPatch, "/api/v1/users/me", token, accountsdk.UserUpdateRequest{IsSuperuser: &promote})
	requireError(t, rec, accountsdk.ErrForbiddenFields)
}

func TestSignUp(t *testing.T) {
	req := accountsdk.SignUpRequest{Email: "joiner@example.com", Password: "joiner-password"}

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, false, generousLimits())
		requireError(t, ts.do(t, http.MethodPost, "/api/v1/users/sign-up", "", req), accountsdk.ErrSignUpDisabled)
	})

	t.Run("open", func(t *testing.T) {
		ts := newTestServer(t, true, generousLimits())

		rec := ts.do(t, http.MethodPost, "/api/v1/users/sign-up", "", req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		u := decode[accountsdk.UserResponse](t, rec)
		require.True(t, u.IsActive)
		require.False(t, u.IsSuperuser)

		requireError(t, ts.do(t, http.MethodPost, "/api/v1/users/sign-up", "", req), accountsdk.ErrEmailTaken)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		ts := newTestServer(t, true, generousLimits())
		rec := ts.do(t, http.MethodPost, "/api/v1/users/sign-up", "", map[string]any{
			"email":        "joiner@example.com",
			"password":     "joiner-password",
			"is_superuser": true,
		})
		requireError(t, rec, accountsdk.ErrInvalidRequest)
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false, generousLimits())

	rec := ts.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	live := decode[accountsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	rec = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[accountsdk.HealthResponse](t, rec)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
