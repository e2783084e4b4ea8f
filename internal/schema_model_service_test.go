package internal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/lychee-technology/datamodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimumValidSchema = `{"$schema":"https://json-schema.org/draft/2020-12/schema","$id":"schema.json","type":"object","properties":{"root":{"$ref":"#/$defs/rootType"}},"$defs":{"rootType":{"properties":{"keyword":{"type":"string"}}}}}`

const singleRefOneOfWithPropertiesSchema = `{"$schema":"https://json-schema.org/draft/2020-12/schema","$id":"schema.json","type":"object","oneOf":[{"$ref":"#/$defs/otherType"}],"properties":{"root":{"$ref":"#/$defs/rootType"}},"$defs":{"rootType":{"properties":{"keyword":{"type":"string"}}},"otherType":{"properties":{"keyword":{"type":"string"}}}}}`

const oneOfWithPropertiesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "schema.json",
  "type": "object",
  "oneOf": [{"$ref": "#/$defs/Person"}, {"$ref": "#/$defs/Company"}],
  "properties": {"shared": {"type": "string"}},
  "$defs": {
    "Person": {"type": "object", "properties": {"name": {"type": "string"}}},
    "Company": {"type": "object", "properties": {"orgNo": {"type": "string"}}}
  }
}`

const uploadXsd = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" elementFormDefault="qualified" attributeFormDefault="unqualified">
  <xs:element name="melding" type="Melding"/>
  <xs:complexType name="Melding">
    <xs:sequence>
      <xs:element name="id" type="xs:integer"/>
      <xs:element name="navn" type="xs:string" minOccurs="0"/>
    </xs:sequence>
  </xs:complexType>
</xs:schema>`

// memoryStore is an in-memory SchemaStore whose writes can be made to fail per path.
type memoryStore struct {
	mu        sync.Mutex
	files     map[string]string
	failWrite map[string]bool
	writes    []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: make(map[string]string), failWrite: make(map[string]bool)}
}

func (m *memoryStore) Read(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	if !ok {
		return "", datamodel.NewSchemaNotFoundError(path, nil)
	}
	return content, nil
}

func (m *memoryStore) Write(ctx context.Context, path string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[path] {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "disk full"}
	}
	m.files[path] = content
	m.writes = append(m.writes, path)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func newTestService(store datamodel.SchemaStore) *ModelService {
	return NewModelService(store, datamodel.DefaultConfig().Conversion)
}

func TestUpdateSchema_WritesAllArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)

	require.NoError(t, svc.UpdateSchema(ctx, "App/models/minimum.schema.json", minimumValidSchema, false))

	assert.Equal(t, []string{
		"App/models/minimum.schema.json",
		"App/models/minimum.xsd",
		"App/models/minimum.metadata.json",
	}, store.writes)
	assert.Equal(t, minimumValidSchema, store.files["App/models/minimum.schema.json"])

	xsdText := store.files["App/models/minimum.xsd"]
	assert.Contains(t, xsdText, `<xs:complexType name="rootType">`)
	assert.Contains(t, xsdText, `<xs:element name="keyword" type="xs:string" minOccurs="0"/>`)

	metadata, err := svc.ConvertToMetadata("minimum", minimumValidSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{"root.keyword"}, metadata.DataBindingNames())
	assert.Contains(t, store.files["App/models/minimum.metadata.json"], `"dataBindingName": "root.keyword"`)
}

func TestUpdateSchema_UnsupportedConstructWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"oneOf with two branches and properties", oneOfWithPropertiesSchema},
		{"oneOf with one reference and properties", singleRefOneOfWithPropertiesSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newMemoryStore()
			svc := newTestService(store)

			err := svc.UpdateSchema(ctx, "App/models/combined.schema.json", tt.schema, false)
			require.Error(t, err)
			assert.True(t, datamodel.IsUnsupportedConstruct(err))
			assert.Equal(t, datamodel.ErrCodeJsonSchemaConvertError, datamodel.ErrorCode(err))
			assert.Empty(t, store.files)
			assert.Empty(t, store.writes)
		})
	}
}

func TestUpdateSchema_SaveOnlySkipsDerivedArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)

	require.NoError(t, svc.UpdateSchema(ctx, "App/models/combined.schema.json", oneOfWithPropertiesSchema, true))
	assert.Equal(t, []string{"App/models/combined.schema.json"}, store.writes)
}

func TestUpdateSchema_InvalidJson(t *testing.T) {
	svc := newTestService(newMemoryStore())
	err := svc.UpdateSchema(context.Background(), "App/models/x.schema.json", `{"type":`, false)
	assert.True(t, datamodel.IsInvalidSchema(err))
}

func TestUpdateSchema_AcceptsEscapedAndRootedPaths(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{
		"App%2Fmodels%2Fminimum.schema.json",
		"/App/models/minimum.schema.json",
		`App\models\minimum`,
	} {
		store := newMemoryStore()
		svc := newTestService(store)
		require.NoError(t, svc.UpdateSchema(ctx, raw, minimumValidSchema, true), raw)
		assert.Contains(t, store.files, "App/models/minimum.schema.json", raw)
	}

	err := newTestService(newMemoryStore()).UpdateSchema(ctx, "../outside.schema.json", minimumValidSchema, true)
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeInvalidFormat))
}

func TestUpdateSchema_RestoresPreviousArtifactsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.files["App/models/minimum.schema.json"] = `{"type":"object"}`
	store.failWrite["App/models/minimum.metadata.json"] = true
	svc := newTestService(store)

	err := svc.UpdateSchema(ctx, "App/models/minimum", minimumValidSchema, false)
	require.Error(t, err)
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeProviderError))

	assert.Equal(t, map[string]string{"App/models/minimum.schema.json": `{"type":"object"}`}, store.files)
}

func TestBuildSchemaFromXsd(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)

	schemaText, err := svc.BuildSchemaFromXsd(ctx, "melding.xsd", strings.NewReader(uploadXsd))
	require.NoError(t, err)
	assert.Contains(t, schemaText, `"$id": "melding.schema.json"`)
	assert.Contains(t, schemaText, `"$ref": "#/$defs/Melding"`)

	assert.Equal(t, schemaText, store.files["App/models/melding.schema.json"])
	assert.Equal(t, uploadXsd, store.files["App/models/melding.xsd"])
	assert.Contains(t, store.files["App/models/melding.metadata.json"], `"dataBindingName": "melding.id"`)
}

func TestBuildSchemaFromXsd_RejectsOtherExtensions(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	for _, name := range []string{"melding.json", "melding", "melding.xsd.txt", ".xsd"} {
		_, err := svc.BuildSchemaFromXsd(context.Background(), name, strings.NewReader(uploadXsd))
		assert.True(t, datamodel.IsInvalidFileExtension(err), name)
		assert.Equal(t, datamodel.ErrCodeInvalidFileExtension, datamodel.ErrorCode(err), name)
	}
	assert.Empty(t, store.files)
}

func TestBuildSchemaFromXsd_UnsupportedConstructWritesNothing(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	xsdText := strings.Replace(uploadXsd, `<xs:sequence>`, `<xs:sequence><xs:any/>`, 1)
	_, err := svc.BuildSchemaFromXsd(context.Background(), "melding.XSD", strings.NewReader(xsdText))
	require.Error(t, err)
	assert.Equal(t, datamodel.ErrCodeXsdToJsonSchemaConvert, datamodel.ErrorCode(err))
	assert.Empty(t, store.files)
}

func TestUseXsdFromRepo(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.files["App/models/melding.xsd"] = uploadXsd
	svc := newTestService(store)

	schemaText, err := svc.UseXsdFromRepo(ctx, "/App/models/melding.xsd")
	require.NoError(t, err)
	assert.Equal(t, schemaText, store.files["App/models/melding.schema.json"])
	assert.Contains(t, store.files, "App/models/melding.metadata.json")
	assert.Equal(t, uploadXsd, store.files["App/models/melding.xsd"])

	_, err = svc.UseXsdFromRepo(ctx, "App/models/missing.xsd")
	assert.True(t, datamodel.IsNotFound(err))
}

func TestCreateSchemaFromTemplate(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)

	path, content, err := svc.CreateSchemaFromTemplate(ctx, "person", "")
	require.NoError(t, err)
	assert.Equal(t, "App/models/person.schema.json", path)
	assert.Contains(t, content, `"property1"`)
	assert.Contains(t, content, `"property2"`)
	assert.Contains(t, content, `"$id": "person.schema.json"`)
	assert.Contains(t, store.files, "App/models/person.xsd")
	assert.Contains(t, store.files, "App/models/person.metadata.json")

	ui, err := svc.BuildUiSchema(content)
	require.NoError(t, err)
	assert.True(t, ui.Has("#/properties/property1"))

	_, _, err = svc.CreateSchemaFromTemplate(ctx, "person", "")
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeInvalidFormat))

	_, _, err = svc.CreateSchemaFromTemplate(ctx, "a/b", "")
	assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeInvalidFormat))

	path, _, err = svc.CreateSchemaFromTemplate(ctx, "order", "App/other")
	require.NoError(t, err)
	assert.Equal(t, "App/other/order.schema.json", path)
}

func TestDeleteSchema(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)
	require.NoError(t, svc.UpdateSchema(ctx, "App/models/minimum", minimumValidSchema, false))
	store.files["App/models/other.schema.json"] = "{}"

	require.NoError(t, svc.DeleteSchema(ctx, "App%2Fmodels%2Fminimum.schema.json"))
	assert.Equal(t, map[string]string{"App/models/other.schema.json": "{}"}, store.files)

	err := svc.DeleteSchema(ctx, "App/models/minimum.schema.json")
	assert.True(t, datamodel.IsNotFound(err))
}

func TestGetSchemaAndFiles(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)
	require.NoError(t, svc.UpdateSchema(ctx, "App/models/minimum", minimumValidSchema, false))
	store.files["App/models/legacy.xsd"] = uploadXsd
	store.files["App/ui/layout.json"] = "{}"

	text, err := svc.GetSchema(ctx, "App/models/minimum.xsd")
	require.NoError(t, err)
	assert.Equal(t, minimumValidSchema, text)

	jsonFiles, err := svc.GetSchemaFiles(ctx, datamodel.SchemaFileKindJSON)
	require.NoError(t, err)
	assert.Equal(t, []datamodel.SchemaFile{{
		FileName:  "minimum.schema.json",
		FilePath:  "App/models/minimum.schema.json",
		Directory: "App/models",
		FileType:  SchemaSuffix,
	}}, jsonFiles)

	xsdFiles, err := svc.GetSchemaFiles(ctx, datamodel.SchemaFileKindXSD)
	require.NoError(t, err)
	require.Len(t, xsdFiles, 2)
	assert.Equal(t, "legacy.xsd", xsdFiles[0].FileName)
	assert.Equal(t, "minimum.xsd", xsdFiles[1].FileName)

	_, err = svc.GetSchemaFiles(ctx, "yaml")
	assert.Error(t, err)
}

func TestValidateInstance(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store)
	schema := `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "$id": "order.schema.json",
	  "type": "object",
	  "properties": {"order": {"$ref": "#/$defs/Order"}},
	  "$defs": {"Order": {"type": "object", "properties": {"qty": {"type": "integer", "minimum": 1}}, "required": ["qty"]}}
	}`
	require.NoError(t, svc.UpdateSchema(ctx, "App/models/order", schema, true))

	assert.NoError(t, svc.ValidateInstance(ctx, "App/models/order", []byte(`{"order":{"qty":2}}`)))
	assert.Error(t, svc.ValidateInstance(ctx, "App/models/order", []byte(`{"order":{"qty":0}}`)))
	assert.Error(t, svc.ValidateInstance(ctx, "App/models/order", []byte(`{"order":{}}`)))
	assert.Error(t, svc.ValidateInstance(ctx, "App/models/order", []byte(`not json`)))

	err := svc.ValidateInstance(ctx, "App/models/missing", []byte(`{}`))
	assert.True(t, datamodel.IsNotFound(err))
}

func TestPureConversions(t *testing.T) {
	svc := newTestService(newMemoryStore())

	ui, err := svc.BuildUiSchema(minimumValidSchema)
	require.NoError(t, err)
	text, err := svc.BuildJsonSchema(ui)
	require.NoError(t, err)
	assert.JSONEq(t, minimumValidSchema, text)

	xsdText, err := svc.ConvertToXsd(minimumValidSchema)
	require.NoError(t, err)
	assert.Contains(t, xsdText, `name="keyword"`)

	_, err = svc.ConvertToXsd(oneOfWithPropertiesSchema)
	assert.Equal(t, datamodel.ErrCodeJsonSchemaConvertError, datamodel.ErrorCode(err))

	_, err = svc.ConvertToMetadata("combined", oneOfWithPropertiesSchema)
	assert.Equal(t, datamodel.ErrCodeModelMetadataConvertError, datamodel.ErrorCode(err))
}

func TestConversionTelemetry(t *testing.T) {
	var mu sync.Mutex
	var names []string
	var failureCodes []string
	RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, name+":"+labels["direction"]+labels["operation"])
		if name == "schema_conversion_failures" {
			failureCodes = append(failureCodes, labels["code"])
		}
	})
	defer RegisterTelemetryEmitter(nil)

	svc := newTestService(newMemoryStore())
	require.NoError(t, svc.UpdateSchema(context.Background(), "App/models/minimum", minimumValidSchema, false))
	require.Error(t, svc.UpdateSchema(context.Background(), "App/models/combined", oneOfWithPropertiesSchema, false))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"schema_conversion_latency_ms:json_to_xsd",
		"schema_conversion_latency_ms:json_to_metadata",
		"schema_artifacts_written:update",
		"schema_conversion_failures:json_to_xsd",
	}, names)
	assert.Equal(t, []string{datamodel.ErrCodeJsonSchemaConvertError}, failureCodes)
}

func TestWriteArtifacts_SnapshotFailureWritesNothing(t *testing.T) {
	store := &failingReadStore{memoryStore: newMemoryStore()}
	svc := newTestService(store)

	err := svc.UpdateSchema(context.Background(), "App/models/minimum", minimumValidSchema, false)
	require.Error(t, err)
	assert.Empty(t, store.files)
}

type failingReadStore struct {
	*memoryStore
}

func (f *failingReadStore) Read(ctx context.Context, path string) (string, error) {
	return "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "unavailable", Cause: errors.New("timeout")}
}
