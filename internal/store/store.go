// Package store is the pgx-backed persistence layer wiring the DAG
// runner, the eval harness, and the command endpoint to Postgres. It
// implements every store-shaped interface those packages declare
// (dag.RunStore/NodeStore/ArtifactWriter/TicketStore/KillSwitch/
// PortfolioSnapshotReader/Writer/OrderHistoryStore/OrderBackfiller,
// endpoint.RunStore, eval.FactsLoader/ResultWriter) against a single
// connection pool, the way internal/confirmation.Store implements the
// confirmation lifecycle against the same pool.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the subset of *pgxpool.Pool every method in this package
// needs, narrowed so tests can substitute pgxmock the same way
// internal/confirmation does.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store is the single pgx-backed implementation shared by every
// persistence seam in the pipeline.
type Store struct {
	pool Pool
}

func New(pool Pool) *Store {
	return &Store{pool: pool}
}
