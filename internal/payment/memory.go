package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryWallets implements Payments with in-memory balances. Wallets that
// have never been seen start at the faucet balance.
type MemoryWallets struct {
	mu        sync.Mutex
	faucet    uint64
	balances  map[string]uint64
	transfers map[string]bool // id -> reversed
}

// NewMemoryWallets creates wallets where every new wallet holds faucet units.
func NewMemoryWallets(faucet uint64) *MemoryWallets {
	return &MemoryWallets{
		faucet:    faucet,
		balances:  make(map[string]uint64),
		transfers: make(map[string]bool),
	}
}

func (m *MemoryWallets) balance(wallet string) uint64 {
	b, ok := m.balances[wallet]
	if !ok {
		b = m.faucet
		m.balances[wallet] = b
	}
	return b
}

// SetBalance overrides a wallet balance.
func (m *MemoryWallets) SetBalance(wallet string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[wallet] = amount
}

// Balance returns the current wallet balance.
func (m *MemoryWallets) Balance(wallet string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(wallet)
}

func (m *MemoryWallets) Transfer(_ context.Context, from, to string, amount uint64) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.balance(from)
	if src < amount {
		return Receipt{}, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, src, amount)
	}
	r := Receipt{ID: uuid.New().String(), From: from, To: to, Amount: amount}
	if from == to {
		// Paying yourself moves nothing.
		m.transfers[r.ID] = false
		return r, nil
	}
	dst := m.balance(to)
	if dst+amount < dst {
		return Receipt{}, fmt.Errorf("payment: %s balance overflow", to)
	}

	m.balances[from] = src - amount
	m.balances[to] = dst + amount
	m.transfers[r.ID] = false
	return r, nil
}

func (m *MemoryWallets) Reverse(_ context.Context, r Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reversed, ok := m.transfers[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, r.ID)
	}
	if reversed {
		return nil
	}
	if r.From != r.To {
		m.balances[r.To] = m.balance(r.To) - r.Amount
		m.balances[r.From] = m.balance(r.From) + r.Amount
	}
	m.transfers[r.ID] = true
	return nil
}
