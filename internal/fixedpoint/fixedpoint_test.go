package fixedpoint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharesFromSpend(t *testing.T) {
	tests := []struct {
		name          string
		amount, price uint64
		want          uint64
	}{
		{"half price doubles shares", 1_000_000, 500_000, 2_000_000},
		{"par price", 1_000_000, 1_000_000, 1_000_000},
		{"truncates toward zero", 1_000_000, 300_000, 3_333_333},
		{"zero amount", 0, 250_000, 0},
		{"minimum price", 1, 1, 1_000_000},
		{"full balance at one micro", 10_000_000_000, 1, 10_000_000_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SharesFromSpend(tt.amount, tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSharesFromSpend_Overflow(t *testing.T) {
	_, err := SharesFromSpend(math.MaxUint64, 1)
	assert.True(t, errors.Is(err, ErrOverflow), "expected ErrOverflow, got %v", err)
}

func TestSharesFromSpend_ZeroPricePanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = SharesFromSpend(1_000_000, 0)
	})
}

func TestPayoutFromShares(t *testing.T) {
	tests := []struct {
		name          string
		shares, price uint64
		want          uint64
	}{
		{"profit", 2_000_000, 750_000, 1_500_000},
		{"worthless", 2_000_000, 0, 0},
		{"full payout", 3_333_333, 1_000_000, 3_333_333},
		{"truncates", 3_333_333, 300_000, 999_999},
		{"large position", math.MaxUint64, 1_000_000, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PayoutFromShares(tt.shares, tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayoutFromShares_Overflow(t *testing.T) {
	_, err := PayoutFromShares(math.MaxUint64, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

// Re-deriving the spend from minted shares never exceeds the original spend.
func TestTruncationNeverCreatesValue(t *testing.T) {
	amounts := []uint64{0, 1, 7, 999_999, 1_000_000, 1_234_567, 10_000_000_000, 123_456_789_012}
	prices := []uint64{1, 3, 7, 333_333, 500_000, 666_667, 999_999, 1_000_000}

	for _, amount := range amounts {
		for _, price := range prices {
			shares, err := SharesFromSpend(amount, price)
			require.NoError(t, err)
			back, err := PayoutFromShares(shares, price)
			require.NoError(t, err)
			if back > amount {
				t.Errorf("amount=%d price=%d: shares=%d re-derive to %d > amount",
					amount, price, shares, back)
			}
		}
	}
}

func TestAddSub(t *testing.T) {
	sum, err := Add(10_000_000_000, 1_500_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_001_500_000), sum)

	_, err = Add(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	diff, err := Sub(10_000_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_999_000_000), diff)

	_, err = Sub(1, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestFormatAndParse(t *testing.T) {
	assert.Equal(t, "10000.000000", Format(10_000_000_000))
	assert.Equal(t, "0.500000", Format(500_000))
	assert.Equal(t, "0.000001", Format(1))

	v, err := ParseDecimal("0.75")
	require.NoError(t, err)
	assert.Equal(t, uint64(750_000), v)

	v, err = ParseDecimal("1.0000019")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_001), v)

	_, err = ParseDecimal("-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseDecimal("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseDecimal("99999999999999999999")
	assert.ErrorIs(t, err, ErrOverflow)
}
