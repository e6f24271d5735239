package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/mail"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/internal/accounts/store/drivers/sqlite"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *fakeMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type fixture struct {
	store  store.Store
	hasher *cryptox.PasswordHasher
	codec  *jwtx.Codec
	mailer *fakeMailer
	auth   *AuthService
	users  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "accounts.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hasher := cryptox.NewPasswordHasher(cryptox.HasherConfig{Pepper: "test-pepper", Memory: 1024, Iterations: 1})
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{Secret: testSecret, Issuer: "accounts-test"})
	require.NoError(t, err)

	m := &fakeMailer{}
	return &fixture{
		store:  st,
		hasher: hasher,
		codec:  codec,
		mailer: m,
		auth: NewAuthService(st.Users(), hasher, codec, m, AuthConfig{
			ProjectName: "Accounts",
			ServerHost:  "https://accounts.example.com",
		}),
		users: NewUserService(st, hasher, m, UserConfig{
			OpenSignUp:  true,
			ProjectName: "Accounts",
			ServerHost:  "https://accounts.example.com",
		}),
	}
}

func (f *fixture) createUser(t *testing.T, email, password string, active, superuser bool) domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), domain.NewUser{
		Email:       email,
		Password:    password,
		FirstName:   "Test",
		LastName:    "User",
		IsActive:    active,
		IsSuperuser: superuser,
	})
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active := f.createUser(t, "ada@example.com", "correct-horse", true, false)
	f.createUser(t, "idle@example.com", "correct-horse", false, false)

	t.Run("success", func(t *testing.T) {
		grant, err := f.auth.Authenticate(ctx, "ada@example.com", "correct-horse")
		require.NoError(t, err)
		require.Equal(t, TokenTypeBearer, grant.TokenType)
		require.Equal(t, jwtx.DefaultAccessTokenTTL, grant.ExpiresIn)
		require.Equal(t, active.ID, grant.Principal.UserID)

		sub, err := f.codec.DecodeAccessToken(grant.AccessToken)
		require.NoError(t, err)
		require.Equal(t, active.ID, sub)
	})

	t.Run("email is case-insensitive", func(t *testing.T) {
		_, err := f.auth.Authenticate(ctx, "  ADA@Example.com ", "correct-horse")
		require.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.auth.Authenticate(ctx, "ada@example.com", "wrong-horse")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := f.auth.Authenticate(ctx, "nobody@example.com", "correct-horse")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("malformed email", func(t *testing.T) {
		_, err := f.auth.Authenticate(ctx, "not-an-email", "correct-horse")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive with correct password", func(t *testing.T) {
		_, err := f.auth.Authenticate(ctx, "idle@example.com", "correct-horse")
		require.ErrorIs(t, err, ErrInactiveAccount)
	})

	t.Run("inactive with wrong password", func(t *testing.T) {
		_, err := f.auth.Authenticate(ctx, "idle@example.com", "wrong-horse")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthenticate_UpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "legacy@example.com", "changethis", true, false)

	legacy, err := bcryptHash("changethis")
	require.NoError(t, err)
	_, err = f.store.Users().UpdatePasswordHash(ctx, u.ID, legacy)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, "legacy@example.com", "changethis")
	require.NoError(t, err)

	stored, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, f.hasher.NeedsRehash(stored.PasswordHash))
	require.True(t, f.hasher.Verify("changethis", stored.PasswordHash))
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "ada@example.com", "correct-horse", true, true)

	grant, err := f.auth.Authenticate(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)

	p, err := f.auth.Authorize(ctx, grant.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, p.UserID)
	require.True(t, p.IsSuperuser)
	require.NoError(t, f.auth.RequireSuperuser(p))

	_, err = f.auth.Authorize(ctx, "garbage")
	require.ErrorIs(t, err, ErrUnauthenticated)

	reset, err := f.codec.IssueResetToken(u.ID, time.Hour)
	require.NoError(t, err)
	_, err = f.auth.Authorize(ctx, reset)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.users.UpdateUser(ctx, u.ID, domain.UserUpdate{IsActive: ptr(false)})
	require.NoError(t, err)
	_, err = f.auth.Authorize(ctx, grant.AccessToken)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.users.DeleteUser(ctx, u.ID))
	_, err = f.auth.Authorize(ctx, grant.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRequireSuperuser(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.auth.RequireSuperuser(domain.Principal{IsActive: true}), ErrForbidden)
	require.NoError(t, f.auth.RequireSuperuser(domain.Principal{IsActive: true, IsSuperuser: true}))
}

func TestRequestPasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "ada@example.com", "correct-horse", true, false)
	welcome := len(f.mailer.Sent())

	t.Run("unknown email is success-shaped", func(t *testing.T) {
		token, err := f.auth.RequestPasswordReset(ctx, "nobody@example.com")
		require.NoError(t, err)
		require.Empty(t, token)
		require.Len(t, f.mailer.Sent(), welcome)
	})

	t.Run("known email mails the token", func(t *testing.T) {
		token, err := f.auth.RequestPasswordReset(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		sub, ok := f.codec.DecodeResetToken(token)
		require.True(t, ok)
		require.Equal(t, u.ID, sub)

		sent := f.mailer.Sent()
		require.Len(t, sent, welcome+1)
		last := sent[len(sent)-1]
		require.Equal(t, "ada@example.com", last.To)
		require.Contains(t, last.HTML, token)
	})

	t.Run("delivery failure is not surfaced", func(t *testing.T) {
		f.mailer.mu.Lock()
		f.mailer.err = errors.New("smtp down")
		f.mailer.mu.Unlock()
		t.Cleanup(func() {
			f.mailer.mu.Lock()
			f.mailer.err = nil
			f.mailer.mu.Unlock()
		})

		token, err := f.auth.RequestPasswordReset(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, token)
	})
}

type stalledMailer struct {
	release chan struct{}
	fakeMailer
}

func (m *stalledMailer) Send(ctx context.Context, msg mail.Message) error {
	<-m.release
	return m.fakeMailer.Send(ctx, msg)
}

func TestRequestPasswordReset_DoesNotWaitForDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "ada@example.com", "correct-horse", true, false)

	slow := &stalledMailer{release: make(chan struct{})}
	outbox := mail.NewAsyncMailer(slow, time.Minute)
	auth := NewAuthService(f.store.Users(), f.hasher, f.codec, outbox, AuthConfig{
		ProjectName: "Accounts",
		ServerHost:  "https://accounts.example.com",
	})

	done := make(chan string, 1)
	go func() {
		token, err := auth.RequestPasswordReset(ctx, "ada@example.com")
		if err != nil {
			token = ""
		}
		done <- token
	}()

	var token string
	select {
	case token = <-done:
	case <-time.After(2 * time.Second):
		close(slow.release)
		t.Fatal("RequestPasswordReset waited on mail delivery")
	}
	require.NotEmpty(t, token)
	require.Empty(t, slow.Sent())

	close(slow.release)
	outbox.Wait()
	sent := slow.Sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].HTML, token)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "ada@example.com", "correct-horse", true, false)

	token, err := f.auth.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)

	t.Run("tampered token", func(t *testing.T) {
		err := f.auth.ResetPassword(ctx, tamper(token), "brand-new-pass")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("access token is not a reset token", func(t *testing.T) {
		access, err := f.codec.IssueAccessToken(u.ID, time.Hour)
		require.NoError(t, err)
		require.ErrorIs(t, f.auth.ResetPassword(ctx, access, "brand-new-pass"), ErrInvalidToken)
	})

	t.Run("weak password", func(t *testing.T) {
		require.ErrorIs(t, f.auth.ResetPassword(ctx, token, "short"), domain.ErrWeakPassword)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.auth.ResetPassword(ctx, token, "brand-new-pass"))

		_, err := f.auth.Authenticate(ctx, "ada@example.com", "correct-horse")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = f.auth.Authenticate(ctx, "ada@example.com", "brand-new-pass")
		require.NoError(t, err)
	})

	t.Run("inactive user", func(t *testing.T) {
		idle := f.createUser(t, "idle@example.com", "correct-horse", false, false)
		tok, err := f.codec.IssueResetToken(idle.ID, time.Hour)
		require.NoError(t, err)
		require.ErrorIs(t, f.auth.ResetPassword(ctx, tok, "brand-new-pass"), ErrInactiveAccount)
	})

	t.Run("deleted user", func(t *testing.T) {
		gone := f.createUser(t, "gone@example.com", "correct-horse", true, false)
		tok, err := f.codec.IssueResetToken(gone.ID, time.Hour)
		require.NoError(t, err)
		require.NoError(t, f.users.DeleteUser(ctx, gone.ID))
		require.ErrorIs(t, f.auth.ResetPassword(ctx, tok, "brand-new-pass"), ErrUserNotFound)
	})
}

func TestAuthService_ConcurrentLogins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "ada@example.com", "correct-horse", true, false)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grant, err := f.auth.Authenticate(ctx, "ada@example.com", "correct-horse")
			if err == nil {
				_, err = f.auth.Authorize(ctx, grant.AccessToken)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

// tamper flips one character in the middle of the signature segment.
func tamper(token string) string {
	dot := len(token) - 1
	for token[dot] != '.' {
		dot--
	}
	sig := []byte(token[dot+1:])
	i := len(sig) / 2
	if sig[i] == 'A' {
		sig[i] = 'B'
	} else {
		sig[i] = 'A'
	}
	return token[:dot+1] + string(sig)
}
