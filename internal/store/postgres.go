package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/paper-ledger/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for a unique or primary key conflict.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
// uint64 values are stored as NUMERIC and moved across the wire as text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConfig(ctx context.Context) (*model.Config, error) {
	return getConfig(ctx, s.pool, "")
}

func (s *PostgresStore) GetAccount(ctx context.Context, owner string) (*model.Account, error) {
	return getAccount(ctx, s.pool, owner, "")
}

func (s *PostgresStore) GetPosition(ctx context.Context, owner string, id uint64) (*model.Position, error) {
	return getPosition(ctx, s.pool, owner, id, "")
}

func (s *PostgresStore) ListPositions(ctx context.Context, owner string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+`
		 FROM positions WHERE owner = $1 ORDER BY position_id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list positions %s: %w", owner, err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// InTx runs fn in a READ COMMITTED transaction; records fetched through
// the Tx are locked with SELECT ... FOR UPDATE.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresTx struct {
	tx pgx.Tx
}

const (
	forUpdate = " FOR UPDATE"
	// Config is read by every account creation; a shared lock keeps those
	// from queueing behind each other.
	forShare = " FOR SHARE"
)

func (t *postgresTx) GetConfig(ctx context.Context) (*model.Config, error) {
	return getConfig(ctx, t.tx, forShare)
}

func (t *postgresTx) GetAccount(ctx context.Context, owner string) (*model.Account, error) {
	return getAccount(ctx, t.tx, owner, forUpdate)
}

func (t *postgresTx) GetPosition(ctx context.Context, owner string, id uint64) (*model.Position, error) {
	return getPosition(ctx, t.tx, owner, id, forUpdate)
}

func (t *postgresTx) CreateConfig(ctx context.Context, cfg *model.Config) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_config (key, authority, treasury) VALUES ($1, $2, $3)`,
		model.ConfigKey, cfg.Authority, cfg.Treasury)
	return mapWriteErr(err, "create config")
}

func (t *postgresTx) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (owner, balance, total_trades, created_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)`,
		a.Owner, u64(a.Balance), u64(a.TotalTrades), a.CreatedAt)
	return mapWriteErr(err, "create account "+a.Owner)
}

func (t *postgresTx) UpdateAccount(ctx context.Context, a *model.Account) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2::NUMERIC, total_trades = $3::NUMERIC
		 WHERE owner = $1`,
		a.Owner, u64(a.Balance), u64(a.TotalTrades))
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.Owner, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update account %s: %w", a.Owner, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO positions (owner, position_id, market_id, side, amount_usdc,
		                        price_per_share, shares, status, opened_at, closed_at)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10)`,
		p.Owner, u64(p.PositionID), p.MarketID, string(p.Side),
		u64(p.AmountUSDC), u64(p.PricePerShare), u64(p.Shares),
		string(p.Status), p.OpenedAt, p.ClosedAt)
	return mapWriteErr(err, fmt.Sprintf("create position %s/%d", p.Owner, p.PositionID))
}

func (t *postgresTx) UpdatePosition(ctx context.Context, p *model.Position) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE positions SET status = $3, closed_at = $4
		 WHERE owner = $1 AND position_id = $2::NUMERIC`,
		p.Owner, u64(p.PositionID), string(p.Status), p.ClosedAt)
	if err != nil {
		return fmt.Errorf("update position %s/%d: %w", p.Owner, p.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update position %s/%d: %w", p.Owner, p.PositionID, ErrNotFound)
	}
	return nil
}

// --- shared query helpers ---

const positionCols = `owner, position_id::TEXT, market_id, side, amount_usdc::TEXT,
	price_per_share::TEXT, shares::TEXT, status, opened_at, closed_at`

func getConfig(ctx context.Context, q querier, suffix string) (*model.Config, error) {
	var cfg model.Config
	err := q.QueryRow(ctx,
		`SELECT authority, treasury FROM ledger_config WHERE key = $1`+suffix,
		model.ConfigKey).Scan(&cfg.Authority, &cfg.Treasury)
	if err != nil {
		return nil, mapReadErr(err, "config")
	}
	return &cfg, nil
}

func getAccount(ctx context.Context, q querier, owner, suffix string) (*model.Account, error) {
	var a model.Account
	var balance, trades string
	err := q.QueryRow(ctx,
		`SELECT owner, balance::TEXT, total_trades::TEXT, created_at
		 FROM accounts WHERE owner = $1`+suffix, owner).
		Scan(&a.Owner, &balance, &trades, &a.CreatedAt)
	if err != nil {
		return nil, mapReadErr(err, "account "+owner)
	}
	if a.Balance, err = parseU64(balance); err != nil {
		return nil, err
	}
	if a.TotalTrades, err = parseU64(trades); err != nil {
		return nil, err
	}
	return &a, nil
}

func getPosition(ctx context.Context, q querier, owner string, id uint64, suffix string) (*model.Position, error) {
	row := q.QueryRow(ctx,
		`SELECT `+positionCols+`
		 FROM positions WHERE owner = $1 AND position_id = $2::NUMERIC`+suffix,
		owner, u64(id))
	p, err := scanPosition(row)
	if err != nil {
		return nil, mapReadErr(err, fmt.Sprintf("position %s/%d", owner, id))
	}
	return p, nil
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var id, amount, price, shares, side, status string
	if err := row.Scan(&p.Owner, &id, &p.MarketID, &side, &amount,
		&price, &shares, &status, &p.OpenedAt, &p.ClosedAt); err != nil {
		return nil, err
	}
	p.Side = model.Side(side)
	p.Status = model.PositionStatus(status)

	var err error
	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&p.PositionID, id},
		{&p.AmountUSDC, amount},
		{&p.PricePerShare, price},
		{&p.Shares, shares},
	} {
		if *f.dst, err = parseU64(f.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func mapReadErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func mapWriteErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: invalid NUMERIC %q: %w", s, err)
	}
	return v, nil
}
