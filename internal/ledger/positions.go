package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atmx/paper-ledger/internal/events"
	"github.com/atmx/paper-ledger/internal/fixedpoint"
	"github.com/atmx/paper-ledger/internal/metrics"
	"github.com/atmx/paper-ledger/internal/model"
	"github.com/atmx/paper-ledger/internal/store"
)

// Positions runs the buy/close lifecycle.
type Positions struct {
	*core
}

// BuyRequest describes a purchase of shares on one side of a market.
// Amount and Price are 6-decimal fixed point.
type BuyRequest struct {
	Owner    string
	Side     model.Side
	MarketID string
	Amount   uint64
	Price    uint64
}

// Buy debits Amount from the owner's balance and opens a position holding
// floor(Amount / Price) shares. Only the owner may buy on an account.
func (p *Positions) Buy(ctx context.Context, caller string, req BuyRequest) (pos *model.Position, err error) {
	start := p.now()
	defer func() {
		p.observe(ctx, "buy", start, err,
			slog.String("owner", req.Owner),
			slog.String("caller", caller),
			slog.String("market", req.MarketID),
		)
	}()

	if err := p.guard.RequireOwner(caller, req.Owner); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if req.Side != model.SideYes && req.Side != model.SideNo {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, req.Side)
	}

	var acct *model.Account
	err = p.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		acct, err = tx.GetAccount(ctx, req.Owner)
		if err != nil {
			return notFound(err, ErrNotFound)
		}
		if err := p.guard.RequireOwner(caller, acct.Owner); err != nil {
			return err
		}
		if acct.Balance < req.Amount {
			return fmt.Errorf("%w: balance %d, amount %d", ErrInsufficientBalance, acct.Balance, req.Amount)
		}
		if req.Price == 0 || req.Price > fixedpoint.MaxPrice {
			return fmt.Errorf("%w: %d not in (0, %d]", ErrInvalidPrice, req.Price, fixedpoint.MaxPrice)
		}
		if len(req.MarketID) > model.MaxMarketIDLen {
			return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidMarketID, len(req.MarketID), model.MaxMarketIDLen)
		}

		shares, err := fixedpoint.SharesFromSpend(req.Amount, req.Price)
		if err != nil {
			return fmt.Errorf("shares from spend: %w", err)
		}
		balance, err := fixedpoint.Sub(acct.Balance, req.Amount)
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}
		trades, err := fixedpoint.Add(acct.TotalTrades, 1)
		if err != nil {
			return fmt.Errorf("trade counter: %w", err)
		}

		now := p.now().Unix()
		pos = &model.Position{
			Owner:         acct.Owner,
			MarketID:      req.MarketID,
			PositionID:    acct.TotalTrades,
			Side:          req.Side,
			AmountUSDC:    req.Amount,
			PricePerShare: req.Price,
			Shares:        shares,
			Status:        model.StatusActive,
			OpenedAt:      now,
			ClosedAt:      0,
		}
		acct.Balance = balance
		acct.TotalTrades = trades

		if err := tx.CreatePosition(ctx, pos); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}

	metrics.ActivePositions.Inc()
	metrics.StakedVolume.WithLabelValues(string(pos.Side)).Add(float64(pos.AmountUSDC))

	p.logger.InfoContext(ctx, "prediction made",
		slog.String("owner", pos.Owner),
		slog.Uint64("position_id", pos.PositionID),
		slog.String("market", pos.MarketID),
		slog.String("side", string(pos.Side)),
		slog.String("amount", fixedpoint.Format(pos.AmountUSDC)),
		slog.String("price", fixedpoint.Format(pos.PricePerShare)),
		slog.String("shares", fixedpoint.Format(pos.Shares)),
		slog.String("balance", fixedpoint.Format(acct.Balance)),
	)
	p.publish(ctx, events.New(events.PredictionMade, pos.Owner, pos.OpenedAt, map[string]any{
		"market_id":       pos.MarketID,
		"position_id":     pos.PositionID,
		"side":            string(pos.Side),
		"amount_usdc":     pos.AmountUSDC,
		"price_per_share": pos.PricePerShare,
		"shares":          pos.Shares,
	}))
	return pos, nil
}

// CloseResult is the outcome of a successful Close.
type CloseResult struct {
	Position *model.Position
	Payout   uint64
	Balance  uint64
}

// Close settles an active position at price, crediting
// floor(shares * price) to the owner's balance. Closed is terminal.
func (p *Positions) Close(ctx context.Context, caller, owner string, positionID, price uint64) (res *CloseResult, err error) {
	start := p.now()
	defer func() {
		p.observe(ctx, "close", start, err,
			slog.String("owner", owner),
			slog.String("caller", caller),
			slog.Uint64("position_id", positionID),
		)
	}()

	if err := p.guard.RequireOwner(caller, owner); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	err = p.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, owner)
		if err != nil {
			return notFound(err, ErrNotFound)
		}
		pos, err := tx.GetPosition(ctx, owner, positionID)
		if err != nil {
			return notFound(err, ErrNotFound)
		}
		if err := p.guard.RequireOwner(caller, pos.Owner); err != nil {
			return err
		}
		if err := p.guard.RequireOwner(caller, acct.Owner); err != nil {
			return err
		}
		if !pos.IsActive() {
			return fmt.Errorf("%w: position %d is %s", ErrPositionNotActive, pos.PositionID, pos.Status)
		}
		if price > fixedpoint.MaxPrice {
			return fmt.Errorf("%w: %d exceeds %d", ErrInvalidPrice, price, fixedpoint.MaxPrice)
		}

		payout, err := fixedpoint.PayoutFromShares(pos.Shares, price)
		if err != nil {
			return fmt.Errorf("payout from shares: %w", err)
		}
		balance, err := fixedpoint.Add(acct.Balance, payout)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}

		acct.Balance = balance
		pos.Status = model.StatusClosed
		pos.ClosedAt = p.now().Unix()

		if err := tx.UpdatePosition(ctx, pos); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		res = &CloseResult{Position: pos, Payout: payout, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ActivePositions.Dec()

	pos := res.Position
	p.logger.InfoContext(ctx, "position closed",
		slog.String("owner", pos.Owner),
		slog.Uint64("position_id", pos.PositionID),
		slog.String("market", pos.MarketID),
		slog.String("close_price", fixedpoint.Format(price)),
		slog.String("payout", fixedpoint.Format(res.Payout)),
		slog.String("balance", fixedpoint.Format(res.Balance)),
	)
	p.publish(ctx, events.New(events.PositionClosed, pos.Owner, pos.ClosedAt, map[string]any{
		"market_id":   pos.MarketID,
		"position_id": pos.PositionID,
		"close_price": price,
		"payout":      res.Payout,
	}))
	return res, nil
}

// Get returns one position of owner.
func (p *Positions) Get(ctx context.Context, owner string, positionID uint64) (*model.Position, error) {
	pos, err := p.store.GetPosition(ctx, owner, positionID)
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return pos, nil
}

// List returns every position of owner ordered by id.
func (p *Positions) List(ctx context.Context, owner string) ([]model.Position, error) {
	if _, err := p.store.GetAccount(ctx, owner); err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return p.store.ListPositions(ctx, owner)
}
