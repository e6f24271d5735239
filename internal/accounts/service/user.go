package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/mail"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// Pagination bounds for ListUsers.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// UserConfig controls self-service registration and outbound email content.
type UserConfig struct {
	OpenSignUp  bool
	ProjectName string
	ServerHost  string
}

// UserService implements account management on top of the store.
type UserService struct {
	store  store.Store
	hasher *cryptox.PasswordHasher
	mailer mail.Mailer
	cfg    UserConfig
}

func NewUserService(st store.Store, hasher *cryptox.PasswordHasher, mailer mail.Mailer, cfg UserConfig) *UserService {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	return &UserService{store: st, hasher: hasher, mailer: mailer, cfg: cfg}
}

// UserPage is one page of ListUsers.
type UserPage struct {
	Users []domain.User
	Total int
	Skip  int
	Limit int
}

// ListUsers returns users in creation order. A non-positive limit means
// DefaultListLimit; limits above MaxListLimit are clamped.
func (s *UserService) ListUsers(ctx context.Context, skip, limit int) (UserPage, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var page UserPage
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		users, err := tx.Users().ListUsers(ctx, skip, limit)
		if err != nil {
			return err
		}
		total, err := tx.Users().CountUsers(ctx)
		if err != nil {
			return err
		}
		page = UserPage{Users: users, Total: total, Skip: skip, Limit: limit}
		return nil
	})
	return page, err
}

// CreateUser creates an account on behalf of an administrator and sends
// the welcome email.
func (s *UserService) CreateUser(ctx context.Context, in domain.NewUser) (domain.User, error) {
	u, err := s.create(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	usersCreated.WithLabelValues("admin").Inc()
	s.sendWelcome(ctx, u)
	return u, nil
}

// SignUp is open registration. The account is always active and never a
// superuser regardless of the input.
func (s *UserService) SignUp(ctx context.Context, in domain.NewUser) (domain.User, error) {
	if !s.cfg.OpenSignUp {
		return domain.User{}, ErrSignUpDisabled
	}
	in.IsActive = true
	in.IsSuperuser = false

	u, err := s.create(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	usersCreated.WithLabelValues("sign_up").Inc()
	s.sendWelcome(ctx, u)
	return u, nil
}

func (s *UserService) create(ctx context.Context, in domain.NewUser) (domain.User, error) {
	email, err := domain.NormalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		IsActive:     in.IsActive,
		IsSuperuser:  in.IsSuperuser,
	}

	if err := s.store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	created, err := s.store.Users().GetUserByID(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user created",
		slog.String("user_id", created.ID),
		slog.Bool("superuser", created.IsSuperuser),
	)
	return created, nil
}

func (s *UserService) sendWelcome(ctx context.Context, u domain.User) {
	l := slogx.FromContext(ctx)
	msg, err := mail.NewAccountMessage(s.cfg.ProjectName, s.cfg.ServerHost, u.Email, u.FullName())
	if err != nil {
		l.Error("welcome email render failed", slog.String("user_id", u.ID), slog.Any("err", err))
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		l.Error("welcome email delivery failed", slog.String("user_id", u.ID), slog.Any("err", err))
	}
}

// userID canonicalises a caller-supplied id. Malformed ids cannot name a
// user, so they report ErrUserNotFound without a store round trip.
func userID(id string) (string, error) {
	parsed, err := idx.Parse(id)
	if err != nil {
		return "", ErrUserNotFound
	}
	return parsed.String(), nil
}

// GetUser fetches a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	id, err := userID(id)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateUser applies an administrative partial update. An update that
// changes nothing returns the stored user untouched.
func (s *UserService) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (domain.User, error) {
	id, err := userID(id)
	if err != nil {
		return domain.User{}, err
	}
	changes, err := s.changes(upd)
	if err != nil {
		return domain.User{}, err
	}
	if changes.IsEmpty() {
		return s.GetUser(ctx, id)
	}

	u, err := s.store.Users().UpdateUser(ctx, id, changes)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrUserNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.User{}, ErrEmailTaken
	case err != nil:
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user updated", slog.String("user_id", u.ID))
	return u, nil
}

// UpdateMe applies a self-service update. Attempts to change IsActive or
// IsSuperuser are refused with ErrForbidden.
func (s *UserService) UpdateMe(ctx context.Context, p domain.Principal, upd domain.UserUpdate) (domain.User, error) {
	if upd.IsSuperuser != nil && *upd.IsSuperuser != p.IsSuperuser {
		return domain.User{}, ErrForbidden
	}
	if upd.IsActive != nil && *upd.IsActive != p.IsActive {
		return domain.User{}, ErrForbidden
	}
	upd.IsSuperuser = nil
	upd.IsActive = nil
	return s.UpdateUser(ctx, p.UserID, upd)
}

// changes validates upd and hashes a new password.
func (s *UserService) changes(upd domain.UserUpdate) (domain.UserChanges, error) {
	c := domain.UserChanges{
		FirstName:   trimmed(upd.FirstName),
		LastName:    trimmed(upd.LastName),
		PhoneNumber: trimmed(upd.PhoneNumber),
		IsActive:    upd.IsActive,
		IsSuperuser: upd.IsSuperuser,
	}

	if upd.Email != nil {
		email, err := domain.NormalizeEmail(*upd.Email)
		if err != nil {
			return domain.UserChanges{}, err
		}
		c.Email = &email
	}

	if upd.Password != nil {
		if err := domain.ValidatePassword(*upd.Password); err != nil {
			return domain.UserChanges{}, err
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return domain.UserChanges{}, fmt.Errorf("hash password: %w", err)
		}
		c.PasswordHash = &hash
	}
	return c, nil
}

// DeleteUser removes a user by id.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	id, err := userID(id)
	if err != nil {
		return err
	}
	if err := s.store.Users().DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", id))
	return nil
}

// SuperuserSeed describes the initial administrator.
type SuperuserSeed struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// EnsureSuperuser creates the initial superuser unless an account with that
// email already exists. It reports whether a user was created.
func (s *UserService) EnsureSuperuser(ctx context.Context, seed SuperuserSeed) (domain.User, bool, error) {
	email, err := domain.NormalizeEmail(seed.Email)
	if err != nil {
		return domain.User{}, false, err
	}

	empty, err := s.store.Users().IsEmpty(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	// On a fresh database there is nothing to look up.
	if !empty {
		existing, err := s.store.Users().GetUserByEmail(ctx, email)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, false, err
		}
	}

	u, err := s.create(ctx, domain.NewUser{
		Email:       email,
		Password:    seed.Password,
		FirstName:   seed.FirstName,
		LastName:    seed.LastName,
		IsActive:    true,
		IsSuperuser: true,
	})
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent seeder.
		existing, err := s.store.Users().GetUserByEmail(ctx, email)
		return existing, false, err
	}
	if err != nil {
		return domain.User{}, false, err
	}
	usersCreated.WithLabelValues("seed").Inc()
	return u, true, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
