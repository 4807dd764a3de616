// Package payment moves the one-time account entry fee from a user wallet
// to the treasury. Wallets here hold simulated native-token balances in the
// payment unit (10^-9 of a token), separate from the USD paper balance.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned when the payer cannot cover the amount.
	ErrInsufficientFunds = errors.New("payment: insufficient funds")

	// ErrUnknownTransfer is returned when reversing a transfer that was
	// never recorded.
	ErrUnknownTransfer = errors.New("payment: unknown transfer")
)

// Receipt identifies a completed transfer so it can be reversed.
type Receipt struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Payments is the funding port used during account creation.
//
// Transfer is atomic on its own. Reverse undoes a transfer exactly once and
// is how callers roll back a transfer whose enclosing unit of work failed.
type Payments interface {
	Transfer(ctx context.Context, from, to string, amount uint64) (Receipt, error)
	Reverse(ctx context.Context, r Receipt) error
}
