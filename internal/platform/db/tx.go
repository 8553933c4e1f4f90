package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const txKey contextKey = "db_tx"

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a Querier that can open transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTxContext stores tx in ctx so repositories called further down join it.
func WithTxContext(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn returns the transaction in ctx when there is one, otherwise fallback.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// TxRunner opens read-committed transactions on a pool. Calls nested inside
// an open transaction reuse it instead of starting another one.
type TxRunner struct {
	pool Pool
}

func NewTxRunner(pool Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(WithTxContext(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
