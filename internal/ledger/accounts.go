package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atmx/paper-ledger/internal/events"
	"github.com/atmx/paper-ledger/internal/model"
	"github.com/atmx/paper-ledger/internal/payment"
	"github.com/atmx/paper-ledger/internal/store"
)

// Accounts creates and reads user accounts.
type Accounts struct {
	*core
	payments payment.Payments
}

// Create opens the caller's account after moving entryFee (payment units)
// from the caller to the treasury. The transfer and the account record
// succeed or fail together: the transfer runs last inside the store
// transaction, and is reversed if the commit itself fails.
func (a *Accounts) Create(ctx context.Context, caller string, entryFee uint64) (acct *model.Account, err error) {
	start := a.now()
	defer func() {
		a.observe(ctx, "create_account", start, err,
			slog.String("owner", caller),
			slog.Uint64("entry_fee", entryFee),
		)
	}()

	if caller == "" {
		return nil, fmt.Errorf("%w: anonymous caller", ErrUnauthorized)
	}
	if entryFee < model.MinEntryFee {
		return nil, fmt.Errorf("%w: %d < %d", ErrEntryFeeTooLow, entryFee, model.MinEntryFee)
	}

	var receipt *payment.Receipt
	err = a.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return notFound(err, ErrNotInitialized)
		}

		_, err = tx.GetAccount(ctx, caller)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, caller)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		acct = &model.Account{
			Owner:       caller,
			Balance:     model.InitialBalance,
			TotalTrades: 0,
			CreatedAt:   a.now().Unix(),
		}
		if err := tx.CreateAccount(ctx, acct); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
			}
			return err
		}

		r, err := a.payments.Transfer(ctx, caller, cfg.Treasury, entryFee)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
		receipt = &r
		return nil
	})
	if err != nil {
		if receipt != nil {
			a.reverse(ctx, *receipt)
		}
		return nil, err
	}

	a.logger.InfoContext(ctx, "account initialized",
		slog.String("owner", acct.Owner),
		slog.Uint64("balance", acct.Balance),
	)
	a.publish(ctx, events.New(events.AccountInitialized, acct.Owner, acct.CreatedAt, map[string]any{
		"initial_balance": acct.Balance,
	}))
	return acct, nil
}

// reverse undoes an entry-fee transfer whose account never committed.
func (a *Accounts) reverse(ctx context.Context, r payment.Receipt) {
	if err := a.payments.Reverse(context.WithoutCancel(ctx), r); err != nil {
		a.logger.ErrorContext(ctx, "entry fee reversal failed",
			slog.String("transfer_id", r.ID),
			slog.String("from", r.From),
			slog.Uint64("amount", r.Amount),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.WarnContext(ctx, "entry fee reversed",
		slog.String("transfer_id", r.ID),
		slog.String("from", r.From),
	)
}

// Get returns the account of owner.
func (a *Accounts) Get(ctx context.Context, owner string) (*model.Account, error) {
	acct, err := a.store.GetAccount(ctx, owner)
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return acct, nil
}
