package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atmx/paper-ledger/internal/events"
	"github.com/atmx/paper-ledger/internal/model"
	"github.com/atmx/paper-ledger/internal/store"
)

// Registry owns the per-deployment config singleton.
type Registry struct {
	*core
	bootstrap string
}

// Initialize creates the config with the caller as authority. A second
// call fails with ErrAlreadyInitialized.
func (r *Registry) Initialize(ctx context.Context, caller, treasury string) (cfg *model.Config, err error) {
	start := r.now()
	defer func() {
		r.observe(ctx, "init_config", start, err, slog.String("caller", caller))
	}()

	if caller == "" {
		return nil, fmt.Errorf("%w: anonymous caller", ErrUnauthorized)
	}
	if r.bootstrap != "" {
		if err := r.guard.RequireOwner(caller, r.bootstrap); err != nil {
			return nil, fmt.Errorf("initialize config: %w", err)
		}
	}
	if strings.TrimSpace(treasury) == "" {
		return nil, fmt.Errorf("%w: treasury is required", ErrInvalidTreasury)
	}

	cfg = &model.Config{Authority: caller, Treasury: treasury}
	err = r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateConfig(ctx, cfg); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("%w: %w", ErrAlreadyInitialized, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "config initialized",
		slog.String("authority", cfg.Authority),
		slog.String("treasury", cfg.Treasury),
	)
	r.publish(ctx, events.New(events.ConfigInitialized, caller, r.now().Unix(), map[string]any{
		"authority": cfg.Authority,
		"treasury":  cfg.Treasury,
	}))
	return cfg, nil
}

// Get returns the config or ErrNotInitialized.
func (r *Registry) Get(ctx context.Context) (*model.Config, error) {
	cfg, err := r.store.GetConfig(ctx)
	if err != nil {
		return nil, notFound(err, ErrNotInitialized)
	}
	return cfg, nil
}
