// Package store defines the keyed transactional persistence interface for
// the paper ledger. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/paper-ledger/internal/model"
)

var (
	// ErrNotFound is returned when no record exists under the key.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned by Create* when the key is taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Reader exposes get-by-key lookups. Keys are ("config", ConfigKey),
// ("account", owner) and ("position", owner, positionID).
type Reader interface {
	GetConfig(ctx context.Context) (*model.Config, error)
	GetAccount(ctx context.Context, owner string) (*model.Account, error)
	GetPosition(ctx context.Context, owner string, positionID uint64) (*model.Position, error)
}

// Tx is a unit of work. Records read through a Tx are locked against
// concurrent writers until the unit commits or rolls back.
type Tx interface {
	Reader

	// CreateConfig stores the singleton config; ErrAlreadyExists if present.
	CreateConfig(ctx context.Context, cfg *model.Config) error

	// CreateAccount stores a new account; ErrAlreadyExists if the owner has one.
	CreateAccount(ctx context.Context, acct *model.Account) error

	// UpdateAccount overwrites an existing account.
	UpdateAccount(ctx context.Context, acct *model.Account) error

	// CreatePosition stores a new position; ErrAlreadyExists on a duplicate id.
	CreatePosition(ctx context.Context, pos *model.Position) error

	// UpdatePosition overwrites an existing position.
	UpdatePosition(ctx context.Context, pos *model.Position) error
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	Reader

	// ListPositions returns all positions of an owner ordered by id.
	ListPositions(ctx context.Context, owner string) ([]model.Position, error)

	// InTx runs fn as one atomic unit. If fn returns an error nothing it
	// wrote becomes visible; otherwise all writes commit together.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
