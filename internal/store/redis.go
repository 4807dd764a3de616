package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/paper-ledger/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache once the
// transaction commits; reads check Redis first then fall back to the primary.
// Reads inside a transaction always hit the primary so row locks apply.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var touched []string
	err := s.primary.InTx(ctx, func(ctx context.Context, tx Tx) error {
		rtx := &recordingTx{Tx: tx}
		if err := fn(ctx, rtx); err != nil {
			return err
		}
		touched = rtx.keys
		return nil
	})
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		// Invalidate; next read will re-populate. The write has committed, so
		// a cancelled request must not leave stale entries behind.
		if err := s.rdb.Del(context.WithoutCancel(ctx), touched...).Err(); err != nil {
			slog.WarnContext(ctx, "cache invalidation failed",
				slog.Any("keys", touched),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// recordingTx remembers which cache keys a transaction wrote.
type recordingTx struct {
	Tx
	keys []string
}

func (t *recordingTx) CreateConfig(ctx context.Context, cfg *model.Config) error {
	if err := t.Tx.CreateConfig(ctx, cfg); err != nil {
		return err
	}
	t.keys = append(t.keys, configKey())
	return nil
}

func (t *recordingTx) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := t.Tx.CreateAccount(ctx, a); err != nil {
		return err
	}
	t.keys = append(t.keys, accountKey(a.Owner))
	return nil
}

func (t *recordingTx) UpdateAccount(ctx context.Context, a *model.Account) error {
	if err := t.Tx.UpdateAccount(ctx, a); err != nil {
		return err
	}
	t.keys = append(t.keys, accountKey(a.Owner))
	return nil
}

func (t *recordingTx) CreatePosition(ctx context.Context, p *model.Position) error {
	if err := t.Tx.CreatePosition(ctx, p); err != nil {
		return err
	}
	t.keys = append(t.keys, positionKeyFor(p.Owner, p.PositionID))
	return nil
}

func (t *recordingTx) UpdatePosition(ctx context.Context, p *model.Position) error {
	if err := t.Tx.UpdatePosition(ctx, p); err != nil {
		return err
	}
	t.keys = append(t.keys, positionKeyFor(p.Owner, p.PositionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetConfig(ctx context.Context) (*model.Config, error) {
	var cfg model.Config
	if s.fromCache(ctx, configKey(), &cfg) {
		return &cfg, nil
	}

	c, err := s.primary.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, configKey(), c)
	return c, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, owner string) (*model.Account, error) {
	var a model.Account
	if s.fromCache(ctx, accountKey(owner), &a) {
		return &a, nil
	}

	acct, err := s.primary.GetAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, accountKey(owner), acct)
	return acct, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, owner string, id uint64) (*model.Position, error) {
	var p model.Position
	if s.fromCache(ctx, positionKeyFor(owner, id), &p) {
		return &p, nil
	}

	pos, err := s.primary.GetPosition(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, positionKeyFor(owner, id), pos)
	return pos, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPositions(ctx context.Context, owner string) ([]model.Position, error) {
	return s.primary.ListPositions(ctx, owner)
}

// --- Cache helpers ---

func (s *CachedStore) fromCache(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) toCache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func configKey() string { return "ledger:config" }

func accountKey(owner string) string { return fmt.Sprintf("ledger:account:%s", owner) }

func positionKeyFor(owner string, id uint64) string {
	return fmt.Sprintf("ledger:position:%s:%d", owner, id)
}
