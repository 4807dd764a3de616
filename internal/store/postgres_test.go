package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

// sqlRecorder captures the SQL a postgresTx sends. Every row reads as
// missing.
type sqlRecorder struct {
	pgx.Tx
	queries []string
}

func (r *sqlRecorder) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	r.queries = append(r.queries, sql)
	return noRow{}
}

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

func TestPostgresTx_LockModes(t *testing.T) {
	rec := &sqlRecorder{}
	tx := &postgresTx{tx: rec}
	ctx := context.Background()

	_, err := tx.GetConfig(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tx.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	if assert.Len(t, rec.queries, 2) {
		// Config is shared by all owners and must not serialize them.
		assert.Contains(t, rec.queries[0], "FOR SHARE")
		assert.NotContains(t, rec.queries[0], "FOR UPDATE")
		assert.Contains(t, rec.queries[1], "FOR UPDATE")
	}
}
