// internal/adapters/db/repository.go
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the query surface shared by *Database and pgx.Tx. Repositories
// hold a querier instead of the pool directly, so WithTx can rebind a
// repository to an open transaction by swapping this field.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

var (
	_ querier = (*Database)(nil)
	_ querier = (pgx.Tx)(nil)
)
