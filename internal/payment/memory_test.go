package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWallets_Transfer(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallets(1_000)

	r, err := w.Transfer(ctx, "alice", "treasury", 400)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, uint64(600), w.Balance("alice"))
	assert.Equal(t, uint64(1_400), w.Balance("treasury"))
}

func TestMemoryWallets_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallets(0)
	w.SetBalance("alice", 99)

	_, err := w.Transfer(ctx, "alice", "treasury", 100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(99), w.Balance("alice"))
	assert.Equal(t, uint64(0), w.Balance("treasury"))
}

func TestMemoryWallets_SelfTransfer(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallets(0)
	w.SetBalance("treasury", 1_000)

	r, err := w.Transfer(ctx, "treasury", "treasury", 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), w.Balance("treasury"))

	require.NoError(t, w.Reverse(ctx, r))
	assert.Equal(t, uint64(1_000), w.Balance("treasury"))

	_, err = w.Transfer(ctx, "treasury", "treasury", 1_001)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(1_000), w.Balance("treasury"))
}

func TestMemoryWallets_ReverseOnce(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallets(0)
	w.SetBalance("alice", 500)

	r, err := w.Transfer(ctx, "alice", "treasury", 200)
	require.NoError(t, err)

	require.NoError(t, w.Reverse(ctx, r))
	require.NoError(t, w.Reverse(ctx, r))
	assert.Equal(t, uint64(500), w.Balance("alice"))
	assert.Equal(t, uint64(0), w.Balance("treasury"))

	err = w.Reverse(ctx, Receipt{ID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownTransfer)
}

func TestMemoryWallets_ConcurrentNoOverdraw(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallets(0)
	w.SetBalance("alice", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Transfer(ctx, "alice", "treasury", 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, uint64(0), w.Balance("alice"))
	assert.Equal(t, uint64(10), w.Balance("treasury"))
}
