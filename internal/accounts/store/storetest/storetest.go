// Package storetest is a conformance suite run against every store driver.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Opener returns a migrated, empty store. Cleanup is the opener's job.
type Opener func(t *testing.T) store.Store

func ptr[T any](v T) *T { return &v }

// NewUser builds a user with a fresh id.
func NewUser(email string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		FirstName:    "Test",
		LastName:     "User",
		IsActive:     true,
	}
}

// RunUsers exercises store.Users.
func RunUsers(t *testing.T, open Opener) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		empty, err := s.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)

		u := NewUser("alice@example.com")
		u.PhoneNumber = "+61 400 000 000"
		u.IsSuperuser = true
		require.NoError(t, s.Users().CreateUser(ctx, u))

		byID, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, byID.Email)
		require.Equal(t, u.PasswordHash, byID.PasswordHash)
		require.Equal(t, "+61 400 000 000", byID.PhoneNumber)
		require.True(t, byID.IsActive)
		require.True(t, byID.IsSuperuser)
		require.WithinDuration(t, time.Now(), byID.CreatedAt, time.Minute)

		byEmail, err := s.Users().GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)

		empty, err = s.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.False(t, empty)
	})

	t.Run("not found", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		_, err := s.Users().GetUserByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Users().UpdatePasswordHash(ctx, idx.New().String(), "x")
		require.ErrorIs(t, err, store.ErrNotFound)

		err = s.Users().DeleteUser(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		require.NoError(t, s.Users().CreateUser(ctx, NewUser("dup@example.com")))
		err := s.Users().CreateUser(ctx, NewUser("dup@example.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		other := NewUser("other@example.com")
		require.NoError(t, s.Users().CreateUser(ctx, other))
		_, err = s.Users().UpdateUser(ctx, other.ID, domain.UserChanges{Email: ptr("dup@example.com")})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("update partial", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		u := NewUser("bob@example.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		updated, err := s.Users().UpdateUser(ctx, u.ID, domain.UserChanges{
			FirstName: ptr("Robert"),
			IsActive:  ptr(false),
		})
		require.NoError(t, err)
		require.Equal(t, "Robert", updated.FirstName)
		require.Equal(t, "User", updated.LastName, "untouched fields survive")
		require.False(t, updated.IsActive)
		require.Equal(t, u.PasswordHash, updated.PasswordHash)

		same, err := s.Users().UpdateUser(ctx, u.ID, domain.UserChanges{})
		require.NoError(t, err)
		require.Equal(t, updated.FirstName, same.FirstName)

		rehashed, err := s.Users().UpdatePasswordHash(ctx, u.ID, "new-hash")
		require.NoError(t, err)
		require.Equal(t, "new-hash", rehashed.PasswordHash)
		require.False(t, rehashed.UpdatedAt.Before(rehashed.CreatedAt))
	})

	t.Run("list and count", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		var ids []string
		for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			u := NewUser(email)
			require.NoError(t, s.Users().CreateUser(ctx, u))
			ids = append(ids, u.ID)
		}

		n, err := s.Users().CountUsers(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		page, err := s.Users().ListUsers(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, ids[0], page[0].ID)
		require.Equal(t, ids[1], page[1].ID)

		page, err = s.Users().ListUsers(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, ids[2], page[0].ID)

		page, err = s.Users().ListUsers(ctx, 10, 2)
		require.NoError(t, err)
		require.Empty(t, page)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		u := NewUser("gone@example.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.Users().DeleteUser(ctx, u.ID))

		_, err := s.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

// RunTx exercises WithTx commit and rollback.
func RunTx(t *testing.T, open Opener) {
	t.Run("commit", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		u := NewUser("tx@example.com")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.Users().CreateUser(ctx, u)
		})
		require.NoError(t, err)

		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		boom := errors.New("boom")
		u := NewUser("rollback@example.com")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().CreateUser(ctx, u); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("no nesting", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.WithTx(ctx, func(store.Tx) error { return nil })
		})
		require.Error(t, err)
	})
}
