// Package ledger implements the paper trading bookkeeping: the config
// registry, account creation with a funded entry fee, and the buy/close
// lifecycle of positions.
//
// Every mutation runs in a single store transaction and publishes its
// event only after that transaction commits. A failed operation leaves no
// trace in the store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/paper-ledger/internal/auth"
	"github.com/atmx/paper-ledger/internal/events"
	"github.com/atmx/paper-ledger/internal/metrics"
	"github.com/atmx/paper-ledger/internal/payment"
	"github.com/atmx/paper-ledger/internal/store"
)

// Options wires a Ledger to its collaborators.
type Options struct {
	Store     store.Store
	Payments  payment.Payments
	Publisher events.Publisher // defaults to logging events
	Logger    *slog.Logger

	// BootstrapAuthority, when set, is the only identity allowed to
	// initialize the config. Empty lets the first caller become authority.
	BootstrapAuthority string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Ledger groups the three services sharing one set of collaborators.
type Ledger struct {
	Registry  *Registry
	Accounts  *Accounts
	Positions *Positions
}

// New builds a Ledger. Store and Payments are required.
func New(opts Options) *Ledger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewLogPublisher(opts.Logger)
	}
	c := &core{
		store:     opts.Store,
		publisher: opts.Publisher,
		logger:    opts.Logger.With(slog.String("component", "ledger")),
		now:       opts.Now,
	}
	return &Ledger{
		Registry:  &Registry{core: c, bootstrap: opts.BootstrapAuthority},
		Accounts:  &Accounts{core: c, payments: opts.Payments},
		Positions: &Positions{core: c},
	}
}

// core holds what every service needs.
type core struct {
	store     store.Store
	publisher events.Publisher
	guard     auth.Guard
	logger    *slog.Logger
	now       func() time.Time
}

// publish hands e to the publisher. Delivery failures are logged by the
// sinks and never fail the committed operation.
func (c *core) publish(ctx context.Context, e events.Event) {
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "event not fully delivered",
			slog.String("event", e.Name),
			slog.String("error", err.Error()),
		)
	}
}

// observe records metrics for op and logs failures at a level matching
// their kind.
func (c *core) observe(ctx context.Context, op string, start time.Time, err error, attrs ...any) {
	metrics.OpLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.LedgerOps.WithLabelValues(op, "ok").Inc()
		return
	}

	kind := Kind(err)
	metrics.LedgerOps.WithLabelValues(op, kind).Inc()
	attrs = append(attrs, slog.String("op", op), slog.String("kind", kind), slog.String("error", err.Error()))

	switch {
	case errors.Is(err, ErrArithmeticOverflow):
		metrics.ArithmeticOverflows.WithLabelValues(op).Inc()
		c.logger.ErrorContext(ctx, "ledger invariant violated", attrs...)
	case IsRejection(err):
		c.logger.InfoContext(ctx, "operation rejected", attrs...)
	default:
		c.logger.ErrorContext(ctx, "operation failed", attrs...)
	}
}

// notFound maps a store miss onto target, passing other errors through.
func notFound(err, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", target, err)
	}
	return err
}
