package datamodel

import (
	"context"
	"io"
)

// SchemaStore persists schema text keyed by a path relative to the repository root.
// Each individual Write is atomic; multi-path consistency is the caller's concern.
type SchemaStore interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path string, content string) error
	Delete(ctx context.Context, path string) error
	// List returns stored paths below prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// SchemaFileKind selects which stored schema files GetSchemaFiles returns.
type SchemaFileKind string

const (
	SchemaFileKindJSON SchemaFileKind = "json"
	SchemaFileKindXSD  SchemaFileKind = "xsd"
)

// SchemaFile describes one stored data model file.
type SchemaFile struct {
	FileName  string `json:"fileName"`
	FilePath  string `json:"filePath"`
	Directory string `json:"directory"`
	FileType  string `json:"fileType"`
}

// SchemaModelService manages stored data models and their derived artifacts.
type SchemaModelService interface {
	// Stored model operations
	GetSchema(ctx context.Context, modelPath string) (string, error)
	GetSchemaFiles(ctx context.Context, kind SchemaFileKind) ([]SchemaFile, error)
	UpdateSchema(ctx context.Context, modelPath string, content string, saveOnly bool) error
	BuildSchemaFromXsd(ctx context.Context, fileName string, xsd io.Reader) (string, error)
	UseXsdFromRepo(ctx context.Context, xsdPath string) (string, error)
	CreateSchemaFromTemplate(ctx context.Context, modelName string, directory string) (string, string, error)
	DeleteSchema(ctx context.Context, modelPath string) error
	ValidateInstance(ctx context.Context, modelPath string, instance []byte) error

	// Pure conversions
	BuildUiSchema(content string) (*UiSchema, error)
	BuildJsonSchema(ui *UiSchema) (string, error)
	ConvertToXsd(content string) (string, error)
	ConvertToMetadata(modelName string, content string) (*ModelMetadata, error)
}

// SchemaEditor is the set of graph operations over a UiSchema. Every operation returns a new
// collection and leaves its input untouched. A pointer absent from the collection makes the
// operation a no-op that returns the input.
type SchemaEditor interface {
	AddProperty(ui *UiSchema, parentPointer, name string, props *UiSchemaNode) (*UiSchema, string)
	AddDefinition(ui *UiSchema, name string, props *UiSchemaNode) (*UiSchema, string)
	AddCombinationItem(ui *UiSchema, pointer string, props *UiSchemaNode) (*UiSchema, string)
	RenameNode(ui *UiSchema, pointer, newName string) (*UiSchema, string)
	DeleteNode(ui *UiSchema, pointer string) *UiSchema
	SetReference(ui *UiSchema, pointer, target string) *UiSchema
	SetType(ui *UiSchema, pointer string, fieldType FieldType) *UiSchema
	SetCombinationKind(ui *UiSchema, pointer string, kind CombinationKind) *UiSchema
	ReorderSiblings(ui *UiSchema, pointerA, pointerB string) *UiSchema
	SetRestriction(ui *UiSchema, pointer, key string, value any) *UiSchema
	SetRestrictions(ui *UiSchema, pointer string, restrictions map[string]any) *UiSchema
	AddEnum(ui *UiSchema, pointer string, value, oldValue any) *UiSchema
	DeleteEnum(ui *UiSchema, pointer string, value any) *UiSchema
	SetTitle(ui *UiSchema, pointer, title string) *UiSchema
	SetDescription(ui *UiSchema, pointer, description string) *UiSchema
	SetRequired(ui *UiSchema, pointer string, required bool) *UiSchema
	ToggleArray(ui *UiSchema, pointer string) *UiSchema
	PromoteToType(ui *UiSchema, pointer string) (*UiSchema, string)
}
