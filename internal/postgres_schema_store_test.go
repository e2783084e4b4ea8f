package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/datamodel"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresSchemaStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewPostgresSchemaStore(mock, "public.schema_files", "tenant-a")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.withClock(func() time.Time { return fixed })
	return store, mock
}

func TestPostgresSchemaStore_Read(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT content FROM "public"."schema_files" WHERE namespace = \$1 AND path = \$2`).
		WithArgs("tenant-a", "App/models/a.schema.json").
		WillReturnRows(pgxmock.NewRows([]string{"content"}).AddRow(`{"type":"object"}`))
	content, err := store.Read(ctx, "App/models/a.schema.json")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object"}`, content)

	mock.ExpectQuery(`SELECT content FROM`).
		WithArgs("tenant-a", "App/models/missing.schema.json").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Read(ctx, "App/models/missing.schema.json")
	assert.True(t, datamodel.IsNotFound(err))

	mock.ExpectQuery(`SELECT content FROM`).
		WithArgs("tenant-a", "App/models/a.schema.json").
		WillReturnError(errors.New("connection reset"))
	_, err = store.Read(ctx, "App/models/a.schema.json")
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeProviderError))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSchemaStore_WriteUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "public"."schema_files" \(namespace, path, content, updated_at\) VALUES \(\$1, \$2, \$3, \$4\)\s+ON CONFLICT \(namespace, path\) DO UPDATE`).
		WithArgs("tenant-a", "App/models/a.xsd", "<xs:schema/>", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Write(context.Background(), "App/models/a.xsd", "<xs:schema/>"))

	mock.ExpectExec(`INSERT INTO`).
		WithArgs("tenant-a", "App/models/a.xsd", "x", pgxmock.AnyArg()).
		WillReturnError(errors.New("read-only transaction"))
	err := store.Write(context.Background(), "App/models/a.xsd", "x")
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeProviderError))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSchemaStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "public"."schema_files" WHERE namespace = \$1 AND path = \$2`).
		WithArgs("tenant-a", "App/models/a.xsd").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, store.Delete(context.Background(), "App/models/a.xsd"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSchemaStore_ListEscapesPrefix(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT path FROM "public"."schema_files" WHERE namespace = \$1 AND path LIKE \$2 ESCAPE '\\' ORDER BY path`).
		WithArgs("tenant-a", `App/my\_models/%`).
		WillReturnRows(pgxmock.NewRows([]string{"path"}).
			AddRow("App/my_models/a.schema.json").
			AddRow("App/my_models/a.xsd"))

	paths, err := store.List(context.Background(), "App/my_models/")
	require.NoError(t, err)
	assert.Equal(t, []string{"App/my_models/a.schema.json", "App/my_models/a.xsd"}, paths)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchemaTableSQL(t *testing.T) {
	ddl := CreateSchemaTableSQL("schema_files")
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "schema_files"`)
	assert.Contains(t, ddl, "PRIMARY KEY (namespace, path)")
}
