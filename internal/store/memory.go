package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/paper-ledger/internal/model"
)

type positionKey struct {
	owner string
	id    uint64
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions hold the write lock for their whole duration and stage
// writes in an overlay that is applied only on success.
type MemoryStore struct {
	mu        sync.RWMutex
	config    *model.Config
	accounts  map[string]*model.Account
	positions map[positionKey]*model.Position
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		positions: make(map[positionKey]*model.Position),
	}
}

func (s *MemoryStore) GetConfig(_ context.Context) (*model.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, fmt.Errorf("config: %w", ErrNotFound)
	}
	cfg := *s.config
	return &cfg, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, owner string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[owner]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", owner, ErrNotFound)
	}
	acct := *a
	return &acct, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, owner string, id uint64) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey{owner, id}]
	if !ok {
		return nil, fmt.Errorf("position %s/%d: %w", owner, id, ErrNotFound)
	}
	pos := *p
	return &pos, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, owner string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for k, p := range s.positions {
		if k.owner == owner {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PositionID < result[j].PositionID
	})
	return result, nil
}

// InTx serializes all writers behind the store lock.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		s:         s,
		accounts:  make(map[string]*model.Account),
		positions: make(map[positionKey]*model.Position),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	// Commit.
	if tx.config != nil {
		s.config = tx.config
	}
	for k, a := range tx.accounts {
		s.accounts[k] = a
	}
	for k, p := range tx.positions {
		s.positions[k] = p
	}
	return nil
}

// memoryTx is the overlay for one MemoryStore transaction. The store lock
// is already held, so base maps are read directly.
type memoryTx struct {
	s         *MemoryStore
	config    *model.Config
	accounts  map[string]*model.Account
	positions map[positionKey]*model.Position
}

func (tx *memoryTx) GetConfig(_ context.Context) (*model.Config, error) {
	cfg := tx.config
	if cfg == nil {
		cfg = tx.s.config
	}
	if cfg == nil {
		return nil, fmt.Errorf("config: %w", ErrNotFound)
	}
	out := *cfg
	return &out, nil
}

func (tx *memoryTx) CreateConfig(_ context.Context, cfg *model.Config) error {
	if tx.config != nil || tx.s.config != nil {
		return fmt.Errorf("config: %w", ErrAlreadyExists)
	}
	c := *cfg
	tx.config = &c
	return nil
}

func (tx *memoryTx) account(owner string) (*model.Account, bool) {
	if a, ok := tx.accounts[owner]; ok {
		return a, true
	}
	a, ok := tx.s.accounts[owner]
	return a, ok
}

func (tx *memoryTx) GetAccount(_ context.Context, owner string) (*model.Account, error) {
	a, ok := tx.account(owner)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", owner, ErrNotFound)
	}
	acct := *a
	return &acct, nil
}

func (tx *memoryTx) CreateAccount(_ context.Context, acct *model.Account) error {
	if _, ok := tx.account(acct.Owner); ok {
		return fmt.Errorf("account %s: %w", acct.Owner, ErrAlreadyExists)
	}
	a := *acct
	tx.accounts[acct.Owner] = &a
	return nil
}

func (tx *memoryTx) UpdateAccount(_ context.Context, acct *model.Account) error {
	if _, ok := tx.account(acct.Owner); !ok {
		return fmt.Errorf("account %s: %w", acct.Owner, ErrNotFound)
	}
	a := *acct
	tx.accounts[acct.Owner] = &a
	return nil
}

func (tx *memoryTx) position(k positionKey) (*model.Position, bool) {
	if p, ok := tx.positions[k]; ok {
		return p, true
	}
	p, ok := tx.s.positions[k]
	return p, ok
}

func (tx *memoryTx) GetPosition(_ context.Context, owner string, id uint64) (*model.Position, error) {
	p, ok := tx.position(positionKey{owner, id})
	if !ok {
		return nil, fmt.Errorf("position %s/%d: %w", owner, id, ErrNotFound)
	}
	pos := *p
	return &pos, nil
}

func (tx *memoryTx) CreatePosition(_ context.Context, pos *model.Position) error {
	k := positionKey{pos.Owner, pos.PositionID}
	if _, ok := tx.position(k); ok {
		return fmt.Errorf("position %s/%d: %w", pos.Owner, pos.PositionID, ErrAlreadyExists)
	}
	p := *pos
	tx.positions[k] = &p
	return nil
}

func (tx *memoryTx) UpdatePosition(_ context.Context, pos *model.Position) error {
	k := positionKey{pos.Owner, pos.PositionID}
	if _, ok := tx.position(k); !ok {
		return fmt.Errorf("position %s/%d: %w", pos.Owner, pos.PositionID, ErrNotFound)
	}
	p := *pos
	tx.positions[k] = &p
	return nil
}
