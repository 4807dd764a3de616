// Package model defines the core domain types shared across the paper ledger.
// All money, price, and share values are uint64 base units scaled by 10^6
// (see package fixedpoint). Never float64 for money.
package model

import "fmt"

// InitialBalance is the paper balance credited to every new account:
// 10,000.00 USD.
const InitialBalance uint64 = 10_000_000_000

// MinEntryFee is the smallest accepted entry fee, in payment units.
const MinEntryFee uint64 = 100_000_000

// MaxMarketIDLen bounds the market identifier length in bytes.
const MaxMarketIDLen = 32

// ConfigKey is the well-known key of the singleton Config record.
const ConfigKey = "global"

// Side is the binary outcome a position is staked on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide validates a wire value.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideYes, SideNo:
		return Side(s), nil
	}
	return "", fmt.Errorf("side must be YES or NO, got %q", s)
}

// PositionStatus tracks the position lifecycle. Active -> Closed is the only
// transition.
type PositionStatus string

const (
	StatusActive PositionStatus = "active"
	StatusClosed PositionStatus = "closed"
)

// Config is the per-deployment singleton naming the administrative
// authority and the treasury that receives entry fees.
type Config struct {
	Authority string `json:"authority" db:"authority"`
	Treasury  string `json:"treasury" db:"treasury"`
}

// Account is a user's paper balance. Keyed by Owner; one per identity.
type Account struct {
	Owner       string `json:"owner" db:"owner"`
	Balance     uint64 `json:"balance" db:"balance"`           // USD micros
	TotalTrades uint64 `json:"total_trades" db:"total_trades"` // next position id
	CreatedAt   int64  `json:"created_at" db:"created_at"`     // unix seconds
}

// Position records a single buy. Keyed by (Owner, PositionID).
type Position struct {
	Owner         string         `json:"owner" db:"owner"`
	MarketID      string         `json:"market_id" db:"market_id"`
	PositionID    uint64         `json:"position_id" db:"position_id"`
	Side          Side           `json:"side" db:"side"`
	AmountUSDC    uint64         `json:"amount_usdc" db:"amount_usdc"`
	PricePerShare uint64         `json:"price_per_share" db:"price_per_share"`
	Shares        uint64         `json:"shares" db:"shares"`
	Status        PositionStatus `json:"status" db:"status"`
	OpenedAt      int64          `json:"opened_at" db:"opened_at"`
	ClosedAt      int64          `json:"closed_at" db:"closed_at"` // 0 until closed
}

// IsActive reports whether the position can still be closed.
func (p *Position) IsActive() bool {
	return p.Status == StatusActive
}
