package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/paper-ledger/internal/model"
)

var errBoom = errors.New("boom")

func seedAccount(t *testing.T, s *MemoryStore, owner string, balance uint64) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateAccount(ctx, &model.Account{Owner: owner, Balance: balance})
	})
	require.NoError(t, err)
}

func TestMemoryStore_CreateAccountUnique(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "alice", 100)

	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateAccount(ctx, &model.Account{Owner: "alice", Balance: 5})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	acct, err := s.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.Balance)
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "alice", 100)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, "alice")
		if err != nil {
			return err
		}
		acct.Balance = 0
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		if err := tx.CreatePosition(ctx, &model.Position{Owner: "alice", PositionID: 0}); err != nil {
			return err
		}
		// Writes are visible inside the unit.
		staged, err := tx.GetAccount(ctx, "alice")
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(0), staged.Balance)
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	acct, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.Balance)

	_, err = s.GetPosition(ctx, "alice", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConfigSingleton(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetConfig(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	create := func(ctx context.Context, tx Tx) error {
		return tx.CreateConfig(ctx, &model.Config{Authority: "admin", Treasury: "vault"})
	}
	require.NoError(t, s.InTx(ctx, create))
	assert.ErrorIs(t, s.InTx(ctx, create), ErrAlreadyExists)

	cfg, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vault", cfg.Treasury)
}

func TestMemoryStore_ListPositionsOrdered(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "alice", 100)
	seedAccount(t, s, "bob", 100)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, id := range []uint64{2, 0, 1} {
			if err := tx.CreatePosition(ctx, &model.Position{Owner: "alice", PositionID: id}); err != nil {
				return err
			}
		}
		return tx.CreatePosition(ctx, &model.Position{Owner: "bob", PositionID: 0})
	})
	require.NoError(t, err)

	positions, err := s.ListPositions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 3)
	for i, p := range positions {
		assert.Equal(t, uint64(i), p.PositionID)
	}
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.UpdateAccount(ctx, &model.Account{Owner: "ghost"})
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SerializesWriters(t *testing.T) {
	s := NewMemoryStore()
	seedAccount(t, s, "alice", 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
				acct, err := tx.GetAccount(ctx, "alice")
				if err != nil {
					return err
				}
				acct.TotalTrades++
				return tx.UpdateAccount(ctx, acct)
			})
		}()
	}
	wg.Wait()

	acct, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), acct.TotalTrades)
}
