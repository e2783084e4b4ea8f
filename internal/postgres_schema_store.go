package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/datamodel"
)

type schemaFilePool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSchemaStore keeps schema files as rows of a single table, partitioned by namespace
// so several repositories can share one database.
type PostgresSchemaStore struct {
	pool      schemaFilePool
	table     string
	namespace string
	nowFunc   func() time.Time
}

var _ datamodel.SchemaStore = (*PostgresSchemaStore)(nil)

func NewPostgresSchemaStore(pool schemaFilePool, table, namespace string) *PostgresSchemaStore {
	return &PostgresSchemaStore{
		pool:      pool,
		table:     sanitizeIdentifier(table),
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

func (s *PostgresSchemaStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

func (s *PostgresSchemaStore) nowMillis() int64 {
	if s.nowFunc == nil {
		return time.Now().UnixMilli()
	}
	return s.nowFunc().UnixMilli()
}

// CreateSchemaTableSQL returns the DDL for the schema file table.
func CreateSchemaTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    namespace TEXT NOT NULL,
    path TEXT NOT NULL,
    content TEXT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (namespace, path)
)`, sanitizeIdentifier(table))
}

func (s *PostgresSchemaStore) Read(ctx context.Context, path string) (string, error) {
	query := fmt.Sprintf("SELECT content FROM %s WHERE namespace = $1 AND path = $2", s.table)
	var content string
	err := s.pool.QueryRow(ctx, query, s.namespace, path).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", datamodel.NewSchemaNotFoundError(path, err)
	}
	if err != nil {
		return "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "select schema file failed", Cause: err}
	}
	return content, nil
}

func (s *PostgresSchemaStore) Write(ctx context.Context, path string, content string) error {
	query := fmt.Sprintf(`INSERT INTO %s (namespace, path, content, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (namespace, path) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.namespace, path, content, s.nowMillis()); err != nil {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "upsert schema file failed", Cause: err}
	}
	return nil
}

func (s *PostgresSchemaStore) Delete(ctx context.Context, path string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND path = $2", s.table)
	if _, err := s.pool.Exec(ctx, query, s.namespace, path); err != nil {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "delete schema file failed", Cause: err}
	}
	return nil
}

func (s *PostgresSchemaStore) List(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT path FROM %s WHERE namespace = $1 AND path LIKE $2 ESCAPE '\' ORDER BY path`, s.table)
	rows, err := s.pool.Query(ctx, query, s.namespace, escapeLike(prefix)+"%")
	if err != nil {
		return nil, &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: prefix, Message: "list schema files failed", Cause: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan schema file path: %w", err)
		}
		out = append(out, path)
	}
	if err := rows.Err(); err != nil {
		return nil, &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: prefix, Message: "iterate schema files failed", Cause: err}
	}
	return out, nil
}
