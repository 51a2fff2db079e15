package repository

import (
	"context"
	"database/sql"
)

// Querier общий интерфейс для *sql.DB и *sql.Tx. Репозитории,
// участвующие в атомарном исполнении сделки, создаются и поверх
// соединения, и поверх открытой транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
