package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/datamodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSchemaStore_ReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSchemaStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "App/models/a.schema.json", `{"type":"object"}`))
	require.NoError(t, store.Write(ctx, "App/models/a.schema.json", `{"type":"string"}`))

	content, err := store.Read(ctx, "/App/models/a.schema.json")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"string"}`, content)

	entries, err := os.ReadDir(filepath.Join(store.Root(), "App", "models"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging files left behind")

	require.NoError(t, store.Delete(ctx, "App/models/a.schema.json"))
	require.NoError(t, store.Delete(ctx, "App/models/a.schema.json"))
	_, err = store.Read(ctx, "App/models/a.schema.json")
	assert.True(t, datamodel.IsNotFound(err))
}

func TestFileSchemaStore_StaysInsideRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	require.NoError(t, os.Mkdir(root, 0o755))
	store, err := NewFileSchemaStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "../../escape.xsd", "x"))
	_, err = os.Stat(filepath.Join(parent, "escape.xsd"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "escape.xsd"))
	assert.NoError(t, err)

	_, err = store.Read(ctx, "/")
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeInvalidFormat))
}

func TestFileSchemaStore_List(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSchemaStore(t.TempDir())
	require.NoError(t, err)
	for _, p := range []string{"App/models/b.xsd", "App/models/a.schema.json", "App/models/sub/c.xsd", "App/ui/layout.json"} {
		require.NoError(t, store.Write(ctx, p, "x"))
	}

	paths, err := store.List(ctx, "App/models")
	require.NoError(t, err)
	assert.Equal(t, []string{"App/models/a.schema.json", "App/models/b.xsd", "App/models/sub/c.xsd"}, paths)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	missing, err := store.List(ctx, "App/nothing")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestNewFileSchemaStore_RejectsMissingRoot(t *testing.T) {
	_, err := NewFileSchemaStore(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeConfigError))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewFileSchemaStore(file)
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeConfigError))
}

func TestFileSchemaStore_BacksModelService(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSchemaStore(t.TempDir())
	require.NoError(t, err)
	svc := newTestService(store)

	require.NoError(t, svc.UpdateSchema(ctx, "App/models/minimum", minimumValidSchema, false))
	files, err := store.List(ctx, "App/models")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"App/models/minimum.metadata.json",
		"App/models/minimum.schema.json",
		"App/models/minimum.xsd",
	}, files)

	require.NoError(t, svc.DeleteSchema(ctx, "App/models/minimum"))
	files, err = store.List(ctx, "App/models")
	require.NoError(t, err)
	assert.Empty(t, files)
}
