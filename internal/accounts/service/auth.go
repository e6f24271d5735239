package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/mail"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// TokenTypeBearer is the token_type returned on login.
const TokenTypeBearer = "bearer"

// UserDirectory is the user lookup and credential update contract the auth
// flow depends on. store.Users satisfies it. A missing user is reported as
// store.ErrNotFound.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) (domain.User, error)
}

// AuthConfig holds token lifetimes and the values used in outbound email.
type AuthConfig struct {
	AccessTokenTTL time.Duration
	ResetTokenTTL  time.Duration

	ProjectName string
	ServerHost  string
}

// AuthService implements login, bearer authorization and password reset.
// It holds no mutable state after construction and is safe for concurrent use.
type AuthService struct {
	users  UserDirectory
	hasher *cryptox.PasswordHasher
	tokens *jwtx.Codec
	mailer mail.Mailer
	cfg    AuthConfig

	// dummyHash is verified against when the email is unknown so a miss
	// costs the same as a wrong password.
	dummyHash string
}

func NewAuthService(users UserDirectory, hasher *cryptox.PasswordHasher, tokens *jwtx.Codec, mailer mail.Mailer, cfg AuthConfig) *AuthService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = jwtx.DefaultAccessTokenTTL
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = jwtx.DefaultResetTokenTTL
	}
	if mailer == nil {
		mailer = mail.LogMailer{}
	}

	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		dummy = fallbackDummyHash
	}

	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		mailer:    mailer,
		cfg:       cfg,
		dummyHash: dummy,
	}
}

// fallbackDummyHash has the default argon2id parameters and matches nothing.
const fallbackDummyHash = "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AccessTokenTTL is the lifetime of tokens issued by Authenticate.
func (s *AuthService) AccessTokenTTL() time.Duration { return s.cfg.AccessTokenTTL }

// Authenticate checks email and password and issues an access token.
//
// An unknown email and a wrong password both yield ErrInvalidCredentials.
// A correct password on an inactive account yields ErrInactiveAccount.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (domain.AccessGrant, error) {
	l := slogx.FromContext(ctx)

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			loginAttempts.WithLabelValues(outcomeInvalidCredentials).Inc()
			return domain.AccessGrant{}, ErrInvalidCredentials
		}
		return domain.AccessGrant{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		l.Info("login failed", slog.String("user_id", user.ID))
		loginAttempts.WithLabelValues(outcomeInvalidCredentials).Inc()
		return domain.AccessGrant{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		l.Info("login refused for inactive user", slog.String("user_id", user.ID))
		loginAttempts.WithLabelValues(outcomeInactive).Inc()
		return domain.AccessGrant{}, ErrInactiveAccount
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	token, err := s.tokens.IssueAccessToken(user.ID, s.cfg.AccessTokenTTL)
	if err != nil {
		return domain.AccessGrant{}, fmt.Errorf("issue access token: %w", err)
	}

	loginAttempts.WithLabelValues(outcomeSuccess).Inc()
	l.Info("login succeeded", slog.String("user_id", user.ID))

	return domain.AccessGrant{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.cfg.AccessTokenTTL,
		Principal:   user.Principal(),
	}, nil
}

// upgradeHash replaces a legacy or weaker hash after a successful login.
// Failure only costs another attempt on the next login.
func (s *AuthService) upgradeHash(ctx context.Context, userID, password string) {
	l := slogx.FromContext(ctx)
	hash, err := s.hasher.Hash(password)
	if err != nil {
		l.Warn("password rehash failed", slog.String("user_id", userID), slog.Any("err", err))
		return
	}
	if _, err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		l.Warn("password rehash not stored", slog.String("user_id", userID), slog.Any("err", err))
		return
	}
	l.Info("password hash upgraded", slog.String("user_id", userID))
}

// Authorize resolves a bearer token to the principal it names.
//
// A bad token or a user that no longer exists yields ErrUnauthenticated. An
// inactive user yields ErrForbidden.
func (s *AuthService) Authorize(ctx context.Context, token string) (domain.Principal, error) {
	subject, err := s.tokens.DecodeAccessToken(token)
	if err != nil {
		slogx.FromContext(ctx).Debug("access token rejected",
			slog.String("token_fp", cryptox.FingerprintToken(token)),
			slog.Any("err", err),
		)
		return domain.Principal{}, ErrUnauthenticated
	}

	user, err := s.users.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, ErrUnauthenticated
		}
		return domain.Principal{}, err
	}

	if !user.IsActive {
		return domain.Principal{}, ErrForbidden
	}
	return user.Principal(), nil
}

// RequireSuperuser returns ErrForbidden unless p is a superuser.
func (s *AuthService) RequireSuperuser(p domain.Principal) error {
	if !p.IsSuperuser {
		return ErrForbidden
	}
	return nil
}

// RequestPasswordReset issues a reset token for email and mails it.
//
// An unknown email returns ("", nil) so callers answer identically whether
// or not the account exists. Mail delivery failures are logged only.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	l := slogx.FromContext(ctx)

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			resetRequests.WithLabelValues(outcomeUnknownUser).Inc()
			return "", nil
		}
		return "", err
	}

	token, err := s.tokens.IssueResetToken(user.ID, s.cfg.ResetTokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}

	msg, err := mail.ResetPasswordMessage(s.cfg.ProjectName, s.cfg.ServerHost, user.Email, user.FullName(), token, s.cfg.ResetTokenTTL)
	if err != nil {
		l.Error("reset email render failed", slog.String("user_id", user.ID), slog.Any("err", err))
	} else if err := s.mailer.Send(ctx, msg); err != nil {
		l.Error("reset email delivery failed", slog.String("user_id", user.ID), slog.Any("err", err))
	}

	resetRequests.WithLabelValues(outcomeSuccess).Inc()
	l.Info("password reset requested",
		slog.String("user_id", user.ID),
		slog.String("token_fp", cryptox.FingerprintToken(token)),
	)
	return token, nil
}

// ResetPassword sets a new password for the user named by a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	l := slogx.FromContext(ctx)

	subject, ok := s.tokens.DecodeResetToken(token)
	if !ok {
		resetCompletions.WithLabelValues(outcomeInvalidToken).Inc()
		return ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			resetCompletions.WithLabelValues(outcomeUnknownUser).Inc()
			return ErrUserNotFound
		}
		return err
	}
	if !user.IsActive {
		resetCompletions.WithLabelValues(outcomeInactive).Inc()
		return ErrInactiveAccount
	}

	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	resetCompletions.WithLabelValues(outcomeSuccess).Inc()
	l.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// lookupByEmail normalises email before the directory lookup. An address
// that cannot be valid is reported as not found.
func (s *AuthService) lookupByEmail(ctx context.Context, email string) (domain.User, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, store.ErrNotFound
	}
	return s.users.GetUserByEmail(ctx, normalized)
}
