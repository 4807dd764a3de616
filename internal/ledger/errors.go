package ledger

import (
	"errors"

	"github.com/atmx/paper-ledger/internal/auth"
	"github.com/atmx/paper-ledger/internal/fixedpoint"
)

var (
	ErrAlreadyInitialized  = errors.New("ledger: config already initialized")
	ErrNotInitialized      = errors.New("ledger: config not initialized")
	ErrAlreadyExists       = errors.New("ledger: account already exists")
	ErrNotFound            = errors.New("ledger: not found")
	ErrEntryFeeTooLow      = errors.New("ledger: entry fee too low")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidPrice        = errors.New("ledger: invalid price")
	ErrInvalidMarketID     = errors.New("ledger: invalid market id")
	ErrInvalidSide         = errors.New("ledger: invalid side")
	ErrInvalidTreasury     = errors.New("ledger: invalid treasury")
	ErrPositionNotActive   = errors.New("ledger: position not active")
	ErrPaymentFailed       = errors.New("ledger: entry fee transfer failed")

	// ErrUnauthorized and ErrArithmeticOverflow alias the guard and
	// fixed-point sentinels so errors.Is matches either name.
	ErrUnauthorized       = auth.ErrUnauthorized
	ErrArithmeticOverflow = fixedpoint.ErrOverflow
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrNotFound, "NotFound"},
	{ErrEntryFeeTooLow, "EntryFeeTooLow"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrInvalidMarketID, "InvalidMarketID"},
	{ErrInvalidSide, "InvalidSide"},
	{ErrInvalidTreasury, "InvalidTreasury"},
	{ErrPositionNotActive, "PositionNotActive"},
	{ErrPaymentFailed, "PaymentFailed"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
}

// Kind names the rejection carried by err: "" for nil, "Internal" for
// anything that is not a ledger rejection.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}

// IsRejection reports whether err is an expected business outcome rather
// than an invariant violation or infrastructure failure.
func IsRejection(err error) bool {
	switch Kind(err) {
	case "", "Internal", "ArithmeticOverflow":
		return false
	}
	return true
}
