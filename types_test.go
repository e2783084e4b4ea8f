package datamodel

import (
	"encoding/json"
	"testing"

	"github.com/lychee-technology/datamodel/schemadoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FieldType / CombinationKind Tests
// =============================================================================

func TestFieldType_Classification(t *testing.T) {
	tests := []struct {
		fieldType   FieldType
		combination bool
		primitive   bool
	}{
		{FieldTypeString, false, true},
		{FieldTypeInteger, false, true},
		{FieldTypeNull, false, true},
		{FieldTypeObject, false, false},
		{FieldTypeArray, false, false},
		{FieldTypeOneOf, true, false},
		{FieldTypeAllOf, true, false},
		{FieldTypeAnyOf, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.fieldType), func(t *testing.T) {
			assert.Equal(t, tt.combination, tt.fieldType.IsCombination())
			assert.Equal(t, tt.primitive, tt.fieldType.IsPrimitive())
		})
	}
}

func TestCombinationKind_Valid(t *testing.T) {
	assert.True(t, CombinationOneOf.Valid())
	assert.False(t, CombinationKind("not").Valid())
	assert.Len(t, CombinationKinds, 3)
}

func TestRestrictionKeys(t *testing.T) {
	assert.True(t, IsRestrictionKey("pattern"))
	assert.True(t, IsRestrictionKey("maxItems"))
	assert.False(t, IsRestrictionKey("enum"))
	assert.True(t, IsArrayRestrictionKey("minItems"))
	assert.False(t, IsArrayRestrictionKey("minLength"))
}

// =============================================================================
// UiSchemaNode Tests
// =============================================================================

func TestUiSchemaNode_CloneIsDeep(t *testing.T) {
	node := NewUiSchemaNode("#/properties/a")
	node.Children = []string{"#/properties/a/properties/b"}
	node.Restrictions.Set("minLength", json.Number("1"))
	node.Enum = []any{"x"}

	clone := node.Clone()
	clone.Children[0] = "changed"
	clone.Restrictions.Set("minLength", json.Number("2"))
	clone.Enum[0] = "y"

	assert.Equal(t, "#/properties/a/properties/b", node.Children[0])
	v, _ := node.Restrictions.Get("minLength")
	assert.Equal(t, json.Number("1"), v)
	assert.Equal(t, []any{"x"}, node.Enum)
}

func TestUiSchemaNode_NameAndContentBase(t *testing.T) {
	node := NewUiSchemaNode("#/properties/a~1b")
	assert.Equal(t, "a/b", node.Name())
	assert.Equal(t, "#/properties/a~1b", node.ContentBase())

	node.IsArray = true
	assert.Equal(t, "#/properties/a~1b/items", node.ContentBase())
}

// =============================================================================
// UiSchema Arena Tests
// =============================================================================

func newTestArena() *UiSchema {
	root := NewUiSchemaNode(schemadoc.RootPointer)
	root.Children = []string{"#/properties/a", "#/$defs/T"}
	a := NewUiSchemaNode("#/properties/a")
	a.Children = []string{"#/properties/a/properties/b"}
	b := NewUiSchemaNode("#/properties/a/properties/b")
	def := NewUiSchemaNode("#/$defs/T")
	return NewUiSchema(root, a, b, def)
}

func TestUiSchema_Basics(t *testing.T) {
	ui := newTestArena()

	assert.Equal(t, 4, ui.Len())
	assert.True(t, ui.Has("#/properties/a"))
	assert.Equal(t, schemadoc.RootPointer, ui.Root().Pointer)
	assert.Equal(t, []string{"#", "#/properties/a", "#/properties/a/properties/b", "#/$defs/T"}, ui.Pointers())

	parent := ui.Parent("#/properties/a/properties/b")
	require.NotNil(t, parent)
	assert.Equal(t, "#/properties/a", parent.Pointer)
	assert.Nil(t, ui.Parent(schemadoc.RootPointer))

	assert.Equal(t, []string{"#/properties/a", "#/properties/a/properties/b", "#/$defs/T"}, ui.Descendants(schemadoc.RootPointer))
}

func TestUiSchema_PutReplacesInPlace(t *testing.T) {
	ui := newTestArena()
	replacement := NewUiSchemaNode("#/properties/a")
	replacement.Title = "A"
	ui.Put(replacement)

	assert.Equal(t, 4, ui.Len())
	assert.Equal(t, "A", ui.Node("#/properties/a").Title)
	assert.Equal(t, "#/properties/a", ui.Pointers()[1])
}

func TestUiSchema_RemoveAndClone(t *testing.T) {
	ui := newTestArena()
	clone := ui.Clone()
	clone.Remove("#/$defs/T")
	clone.Node("#/properties/a").Title = "changed"

	assert.True(t, ui.Has("#/$defs/T"))
	assert.Empty(t, ui.Node("#/properties/a").Title)
	assert.Equal(t, 3, clone.Len())
}

func TestUiSchema_JSONRoundTrip(t *testing.T) {
	ui := newTestArena()
	ui.Node("#/properties/a/properties/b").Restrictions.Set("pattern", "^x$")

	data, err := json.Marshal(ui)
	require.NoError(t, err)

	var decoded UiSchema
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ui.Pointers(), decoded.Pointers())
	pattern, ok := decoded.Node("#/properties/a/properties/b").Restrictions.StringValue("pattern")
	assert.True(t, ok)
	assert.Equal(t, "^x$", pattern)
}

func TestModelMetadata_DataBindingNames(t *testing.T) {
	meta := &ModelMetadata{Fields: []MetadataModelField{
		{DataBindingName: "root.keyword"},
		{DataBindingName: "root.other"},
	}}
	assert.Equal(t, []string{"root.keyword", "root.other"}, meta.DataBindingNames())
}
