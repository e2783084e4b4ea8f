package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal/metamodel"
	"github.com/lychee-technology/datamodel/internal/uischema"
	"github.com/lychee-technology/datamodel/internal/xsd"
	"github.com/lychee-technology/datamodel/schemadoc"
	"go.uber.org/zap"
)

// Conversion directions reported to telemetry.
const (
	DirectionJsonToXsd      = "json_to_xsd"
	DirectionXsdToJson      = "xsd_to_json"
	DirectionJsonToMetadata = "json_to_metadata"
)

// ModelService stores data models together with their derived XSD and metadata artifacts.
type ModelService struct {
	store      datamodel.SchemaStore
	conversion datamodel.ConversionConfig
	locks      *pathLocks
}

var _ datamodel.SchemaModelService = (*ModelService)(nil)

func NewModelService(store datamodel.SchemaStore, conversion datamodel.ConversionConfig) *ModelService {
	if conversion.SchemaDialect == "" {
		conversion.SchemaDialect = xsd.DefaultDialect
	}
	return &ModelService{
		store:      store,
		conversion: conversion,
		locks:      newPathLocks(),
	}
}

type artifact struct {
	path    string
	content string
}

func (s *ModelService) GetSchema(ctx context.Context, modelPath string) (string, error) {
	mp, err := ParseModelPath(modelPath)
	if err != nil {
		return "", err
	}
	return s.store.Read(ctx, mp.SchemaPath())
}

// GetSchemaFiles lists the stored schemas of one kind below the models directory.
func (s *ModelService) GetSchemaFiles(ctx context.Context, kind datamodel.SchemaFileKind) ([]datamodel.SchemaFile, error) {
	var suffix string
	switch kind {
	case datamodel.SchemaFileKindJSON:
		suffix = SchemaSuffix
	case datamodel.SchemaFileKindXSD:
		suffix = XsdSuffix
	default:
		return nil, &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeInvalidFormat, Message: fmt.Sprintf("unknown schema file kind %q", kind)}
	}

	paths, err := s.store.List(ctx, s.conversion.ModelsDirectory)
	if err != nil {
		return nil, err
	}
	files := make([]datamodel.SchemaFile, 0, len(paths))
	for _, p := range paths {
		if !strings.HasSuffix(strings.ToLower(p), suffix) {
			continue
		}
		dir, name := path.Split(p)
		files = append(files, datamodel.SchemaFile{
			FileName:  name,
			FilePath:  p,
			Directory: strings.TrimSuffix(dir, "/"),
			FileType:  suffix,
		})
	}
	return files, nil
}

// UpdateSchema stores content as the model's schema. Unless saveOnly is set, the XSD and
// metadata artifacts are derived first and nothing is written when either conversion fails.
func (s *ModelService) UpdateSchema(ctx context.Context, modelPath string, content string, saveOnly bool) error {
	mp, err := ParseModelPath(modelPath)
	if err != nil {
		return err
	}
	doc, err := parseSchema(content)
	if err != nil {
		return err
	}

	artifacts := []artifact{{path: mp.SchemaPath(), content: content}}
	if !saveOnly {
		derived, err := s.deriveArtifacts(ctx, mp, doc)
		if err != nil {
			zap.S().Warnw("data model conversion failed", "model", mp.String(), "code", datamodel.ErrorCode(err), "error", err)
			return err
		}
		artifacts = append(artifacts, derived...)
	}
	return s.writeArtifacts(ctx, "update", mp, artifacts)
}

// BuildSchemaFromXsd converts an uploaded XSD and stores the schema, the XSD itself and the
// metadata in the models directory. It returns the schema text.
func (s *ModelService) BuildSchemaFromXsd(ctx context.Context, fileName string, r io.Reader) (string, error) {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if !strings.EqualFold(path.Ext(base), XsdSuffix) {
		return "", datamodel.NewInvalidFileExtensionError(fileName, XsdSuffix)
	}
	name := base[:len(base)-len(XsdSuffix)]
	if name == "" {
		return "", datamodel.NewInvalidFileExtensionError(fileName, XsdSuffix)
	}
	mp := NewModelPath(s.conversion.ModelsDirectory, name)

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read uploaded xsd %s: %w", fileName, err)
	}
	schemaText, metadataText, err := s.fromXsd(ctx, mp, string(raw))
	if err != nil {
		return "", err
	}

	err = s.writeArtifacts(ctx, "upload", mp, []artifact{
		{path: mp.SchemaPath(), content: schemaText},
		{path: mp.XsdPath(), content: string(raw)},
		{path: mp.MetadataPath(), content: metadataText},
	})
	if err != nil {
		return "", err
	}
	return schemaText, nil
}

// UseXsdFromRepo converts an XSD already stored in the repository and stores the derived
// schema and metadata next to it.
func (s *ModelService) UseXsdFromRepo(ctx context.Context, xsdPath string) (string, error) {
	mp, err := ParseModelPath(xsdPath)
	if err != nil {
		return "", err
	}
	text, err := s.store.Read(ctx, mp.XsdPath())
	if err != nil {
		return "", err
	}
	schemaText, metadataText, err := s.fromXsd(ctx, mp, text)
	if err != nil {
		return "", err
	}

	err = s.writeArtifacts(ctx, "xsd-from-repo", mp, []artifact{
		{path: mp.SchemaPath(), content: schemaText},
		{path: mp.MetadataPath(), content: metadataText},
	})
	if err != nil {
		return "", err
	}
	return schemaText, nil
}

// CreateSchemaFromTemplate stores a new model with two string properties and returns its
// schema path and content. directory defaults to the models directory.
func (s *ModelService) CreateSchemaFromTemplate(ctx context.Context, modelName string, directory string) (string, string, error) {
	if modelName == "" || strings.ContainsAny(modelName, `/\`) {
		return "", "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeInvalidFormat, Path: modelName, Message: "model name must be a plain file name"}
	}
	if directory == "" {
		directory = s.conversion.ModelsDirectory
	}
	mp, err := ParseModelPath(path.Join(directory, modelName))
	if err != nil {
		return "", "", err
	}

	if _, err := s.store.Read(ctx, mp.SchemaPath()); err == nil {
		return "", "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeInvalidFormat, Path: mp.SchemaPath(), Message: "data model already exists"}
	} else if !datamodel.IsNotFound(err) {
		return "", "", err
	}

	doc := schemadoc.ObjectOf(
		"$schema", s.conversion.SchemaDialect,
		"$id", mp.Name+SchemaSuffix,
		"type", "object",
		"properties", schemadoc.ObjectOf(
			"property1", schemadoc.ObjectOf("type", "string"),
			"property2", schemadoc.ObjectOf("type", "string"),
		),
	)
	raw, err := schemadoc.MarshalIndent(doc)
	if err != nil {
		return "", "", fmt.Errorf("encode template schema: %w", err)
	}
	content := string(raw)

	derived, err := s.deriveArtifacts(ctx, mp, doc)
	if err != nil {
		return "", "", err
	}
	artifacts := append([]artifact{{path: mp.SchemaPath(), content: content}}, derived...)
	if err := s.writeArtifacts(ctx, "create", mp, artifacts); err != nil {
		return "", "", err
	}
	return mp.SchemaPath(), content, nil
}

// DeleteSchema removes the schema and its derived artifacts. The schema must exist.
func (s *ModelService) DeleteSchema(ctx context.Context, modelPath string) error {
	mp, err := ParseModelPath(modelPath)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(mp.String())
	defer unlock()

	if _, err := s.store.Read(ctx, mp.SchemaPath()); err != nil {
		return err
	}
	for _, p := range []string{mp.XsdPath(), mp.MetadataPath(), mp.SchemaPath()} {
		if err := s.store.Delete(ctx, p); err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	zap.S().Infow("deleted data model", "model", mp.String())
	return nil
}

// ValidateInstance checks instance against the stored schema of modelPath.
func (s *ModelService) ValidateInstance(ctx context.Context, modelPath string, instance []byte) error {
	text, err := s.GetSchema(ctx, modelPath)
	if err != nil {
		return err
	}

	var schemaMap map[string]any
	if err := json.Unmarshal([]byte(text), &schemaMap); err != nil {
		return datamodel.NewInvalidSchemaError("stored schema is not valid JSON", err)
	}
	// "$id" is a relative file name, which would become the base URI of every "$ref".
	delete(schemaMap, "$id")
	schemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for validation: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return datamodel.NewInvalidSchemaError("stored schema is not a well-formed JSON Schema document", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return datamodel.NewInvalidSchemaError("failed to resolve JSON schema", err)
	}

	var data any
	if err := json.Unmarshal(instance, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w", err)
	}
	if err := resolved.Validate(data); err != nil {
		return fmt.Errorf("JSON validation failed: %w", err)
	}
	return nil
}

func (s *ModelService) BuildUiSchema(content string) (*datamodel.UiSchema, error) {
	return uischema.BuildUiSchemaFromText(content)
}

func (s *ModelService) BuildJsonSchema(ui *datamodel.UiSchema) (string, error) {
	return uischema.BuildJsonSchemaText(ui)
}

func (s *ModelService) ConvertToXsd(content string) (string, error) {
	doc, err := parseSchema(content)
	if err != nil {
		return "", err
	}
	return xsd.JsonSchemaToXsdText(doc, s.writeOptions(xsd.DefaultModelName))
}

func (s *ModelService) ConvertToMetadata(modelName string, content string) (*datamodel.ModelMetadata, error) {
	doc, err := parseSchema(content)
	if err != nil {
		return nil, err
	}
	return metamodel.Convert(modelName, doc)
}

func (s *ModelService) writeOptions(modelName string) xsd.WriteOptions {
	return xsd.WriteOptions{
		ModelName:          modelName,
		ElementFormDefault: s.conversion.ElementFormDefault,
		Indent:             s.conversion.IndentXsd,
	}
}

// deriveArtifacts converts doc into the XSD and metadata artifacts of mp.
func (s *ModelService) deriveArtifacts(ctx context.Context, mp ModelPath, doc *schemadoc.Object) ([]artifact, error) {
	var xsdText, metadataText string
	err := timed(ctx, DirectionJsonToXsd, func() (err error) {
		xsdText, err = xsd.JsonSchemaToXsdText(doc, s.writeOptions(mp.Name))
		return err
	})
	if err != nil {
		return nil, err
	}
	err = timed(ctx, DirectionJsonToMetadata, func() (err error) {
		metadataText, err = metamodel.ConvertText(mp.Name, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []artifact{
		{path: mp.XsdPath(), content: xsdText},
		{path: mp.MetadataPath(), content: metadataText},
	}, nil
}

// fromXsd converts XSD text into schema text and the metadata derived from that schema.
func (s *ModelService) fromXsd(ctx context.Context, mp ModelPath, text string) (string, string, error) {
	var doc *schemadoc.Object
	err := timed(ctx, DirectionXsdToJson, func() (err error) {
		doc, err = xsd.XsdToJsonSchema(strings.NewReader(text), xsd.ReadOptions{
			SchemaID: mp.Name + SchemaSuffix,
			Dialect:  s.conversion.SchemaDialect,
		})
		return err
	})
	if err != nil {
		zap.S().Warnw("xsd conversion failed", "model", mp.String(), "code", datamodel.ErrorCode(err), "error", err)
		return "", "", err
	}
	raw, err := schemadoc.MarshalIndent(doc)
	if err != nil {
		return "", "", fmt.Errorf("encode converted schema: %w", err)
	}

	var metadataText string
	err = timed(ctx, DirectionJsonToMetadata, func() (err error) {
		metadataText, err = metamodel.ConvertText(mp.Name, doc)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return string(raw), metadataText, nil
}

// writeArtifacts writes artifacts in order while holding the model lock. When a write fails
// the artifacts already written are restored to their previous content, or removed if they
// did not exist.
func (s *ModelService) writeArtifacts(ctx context.Context, operation string, mp ModelPath, artifacts []artifact) error {
	unlock := s.locks.lock(mp.String())
	defer unlock()

	opID := uuid.NewString()
	previous := make([]*string, len(artifacts))
	for i, a := range artifacts {
		content, err := s.store.Read(ctx, a.path)
		switch {
		case err == nil:
			previous[i] = &content
		case datamodel.IsNotFound(err):
		default:
			return fmt.Errorf("snapshot %s: %w", a.path, err)
		}
	}

	for i, a := range artifacts {
		if err := s.store.Write(ctx, a.path, a.content); err != nil {
			zap.S().Errorw("data model write failed, restoring previous artifacts",
				"op", opID, "operation", operation, "path", a.path, "error", err)
			s.restore(ctx, opID, artifacts[:i], previous[:i])
			return fmt.Errorf("write %s: %w", a.path, err)
		}
	}

	EmitArtifactsWritten(ctx, operation, len(artifacts))
	zap.S().Infow("saved data model", "op", opID, "operation", operation, "model", mp.String(), "artifacts", len(artifacts))
	return nil
}

func (s *ModelService) restore(ctx context.Context, opID string, written []artifact, previous []*string) {
	for i := len(written) - 1; i >= 0; i-- {
		var err error
		if previous[i] != nil {
			err = s.store.Write(ctx, written[i].path, *previous[i])
		} else {
			err = s.store.Delete(ctx, written[i].path)
		}
		if err != nil {
			zap.S().Errorw("failed to restore data model artifact", "op", opID, "path", written[i].path, "error", err)
		}
	}
}

func parseSchema(content string) (*schemadoc.Object, error) {
	doc, err := schemadoc.ParseString(content)
	if err != nil {
		return nil, datamodel.NewInvalidSchemaError("schema is not valid JSON", err)
	}
	return doc, nil
}

// timed runs one conversion and reports its latency, or its error code on failure.
func timed(ctx context.Context, direction string, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		EmitConversionFailure(ctx, direction, datamodel.ErrorCode(err))
		return err
	}
	EmitConversionLatency(ctx, direction, time.Since(start).Milliseconds())
	return nil
}
