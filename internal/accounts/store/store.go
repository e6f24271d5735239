package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repositories hang off it as methods so a Tx-scoped Store
// exposes exactly the same surface and nested transactions can be refused.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying connection pool.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up a user by normalised (lower-case) email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// ListUsers returns users ordered by id (creation order), paginated.
	ListUsers(ctx context.Context, offset, limit int) ([]domain.User, error)

	// CountUsers returns the total number of users.
	CountUsers(ctx context.Context) (int, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// A duplicate email yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser applies the non-nil fields of c, bumps updated_at and
	// returns the stored row.
	UpdateUser(ctx context.Context, id string, c domain.UserChanges) (domain.User, error)

	// UpdatePasswordHash sets password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id string, hash string) (domain.User, error)

	// DeleteUser removes a user. Missing users yield ErrNotFound.
	DeleteUser(ctx context.Context, id string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

// Column is one SET clause produced from a UserChanges.
type Column struct {
	Name  string
	Value any
}

// ChangedColumns lists the columns c touches, in a stable order. Drivers
// render them with their own placeholder syntax.
func ChangedColumns(c domain.UserChanges) []Column {
	var cols []Column
	add := func(name string, v any) { cols = append(cols, Column{Name: name, Value: v}) }

	if c.Email != nil {
		add("email", *c.Email)
	}
	if c.PasswordHash != nil {
		add("password_hash", *c.PasswordHash)
	}
	if c.FirstName != nil {
		add("first_name", *c.FirstName)
	}
	if c.LastName != nil {
		add("last_name", *c.LastName)
	}
	if c.PhoneNumber != nil {
		add("phone_number", *c.PhoneNumber)
	}
	if c.IsActive != nil {
		add("is_active", *c.IsActive)
	}
	if c.IsSuperuser != nil {
		add("is_superuser", *c.IsSuperuser)
	}
	return cols
}
