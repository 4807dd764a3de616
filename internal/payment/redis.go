package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// transferLua moves ARGV[1] units from KEYS[1] to KEYS[2] and records the
// transfer under KEYS[3]. A missing payer wallet is seeded with ARGV[2].
// Returns 1 on success, 0 on insufficient funds.
const transferLua = `
local bal = redis.call('GET', KEYS[1])
if not bal then
    bal = ARGV[2]
    redis.call('SET', KEYS[1], bal)
end
if tonumber(bal) < tonumber(ARGV[1]) then
    return 0
end
redis.call('DECRBY', KEYS[1], ARGV[1])
redis.call('INCRBY', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3], 'amount', ARGV[1], 'reversed', '0')
return 1
`

// reverseLua undoes the transfer recorded at KEYS[3] once.
// Returns 1 when reversed now, 0 when already reversed, -1 when unknown.
const reverseLua = `
local state = redis.call('HGET', KEYS[3], 'reversed')
if not state then
    return -1
end
if state == '1' then
    return 0
end
local amount = redis.call('HGET', KEYS[3], 'amount')
redis.call('DECRBY', KEYS[2], amount)
redis.call('INCRBY', KEYS[1], amount)
redis.call('HSET', KEYS[3], 'reversed', '1')
return 1
`

// RedisWallets implements Payments with balances held in Redis. Both
// scripts run atomically on the server, so concurrent transfers from one
// wallet never overdraw it. Balances are compared as Lua numbers, exact up
// to 2^53 units.
type RedisWallets struct {
	rdb      *redis.Client
	faucet   uint64
	transfer *redis.Script
	reverse  *redis.Script
}

// NewRedisWallets creates a Redis-backed wallet set seeding new wallets
// with faucet units.
func NewRedisWallets(rdb *redis.Client, faucet uint64) *RedisWallets {
	return &RedisWallets{
		rdb:      rdb,
		faucet:   faucet,
		transfer: redis.NewScript(transferLua),
		reverse:  redis.NewScript(reverseLua),
	}
}

func walletKey(w string) string {
	return "wallet:" + w
}

func transferKey(id string) string {
	return "wallet:transfer:" + id
}

func (w *RedisWallets) Transfer(ctx context.Context, from, to string, amount uint64) (Receipt, error) {
	id := uuid.New().String()
	keys := []string{walletKey(from), walletKey(to), transferKey(id)}

	res, err := w.transfer.Run(ctx, w.rdb, keys,
		strconv.FormatUint(amount, 10), strconv.FormatUint(w.faucet, 10)).Int()
	if err != nil {
		return Receipt{}, fmt.Errorf("redis: transfer %s -> %s: %w", from, to, err)
	}
	if res == 0 {
		return Receipt{}, fmt.Errorf("%w: %s", ErrInsufficientFunds, from)
	}
	return Receipt{ID: id, From: from, To: to, Amount: amount}, nil
}

func (w *RedisWallets) Reverse(ctx context.Context, r Receipt) error {
	keys := []string{walletKey(r.From), walletKey(r.To), transferKey(r.ID)}
	res, err := w.reverse.Run(ctx, w.rdb, keys).Int()
	if err != nil {
		return fmt.Errorf("redis: reverse %s: %w", r.ID, err)
	}
	if res == -1 {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, r.ID)
	}
	return nil
}
