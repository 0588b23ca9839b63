package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Storage implements both store.VectorStore and store.GraphStore on
// PostgreSQL, using pgvector for dense similarity search. The caller is
// responsible for registering pgvector types on the connection pool.
type Storage struct {
	conn pgxIConn
}

// NewStorageWithConnection creates a Storage using an existing database
// connection or pool.
func NewStorageWithConnection(conn pgxIConn) *Storage {
	return &Storage{conn: conn}
}

// VectorDimension reads the dimension of the dense vector column from the
// catalog. For pgvector columns the type modifier is the dimension itself.
func (s *Storage) VectorDimension(ctx context.Context) (int, error) {
	var dim int
	err := s.conn.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'chunks'::regclass AND attname = 'dense'
	`).Scan(&dim)
	if err != nil {
		return 0, fmt.Errorf("failed to read dense column dimension: %w", err)
	}
	return dim, nil
}
