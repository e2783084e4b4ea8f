// Package metamodel derives the flat application metadata model from a JSON Schema.
package metamodel

import (
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal/normalizer"
	"github.com/lychee-technology/datamodel/internal/xsd"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// Convert returns one field per leaf element of doc, in declaration order. Elements reached
// through a oneOf or anyOf branch are optional.
func Convert(modelName string, doc *schemadoc.Object) (*datamodel.ModelMetadata, error) {
	strategy, err := normalizer.Prepare(doc)
	if err != nil {
		return nil, withCode(err)
	}
	analysis, err := strategy.Analyze()
	if err != nil {
		return nil, withCode(err)
	}

	out := &datamodel.ModelMetadata{ModelName: modelName, Fields: make([]datamodel.MetadataModelField, 0)}
	for _, el := range analysis.Leaves() {
		out.Fields = append(out.Fields, datamodel.MetadataModelField{
			DataBindingName:   el.BindingPath,
			JsonSchemaPointer: el.Pointer,
			XmlSchemaXPath:    el.XPath,
			MinOccurs:         el.MinOccurs,
			MaxOccurs:         el.MaxOccurs,
			XsdValueType:      xsd.XsdValueType(el.Type, el.Format),
			IsReadOnly:        el.ReadOnly,
		})
	}
	return out, nil
}

// ConvertText converts doc and serializes the metadata model with two-space indentation.
func ConvertText(modelName string, doc *schemadoc.Object) (string, error) {
	metadata, err := Convert(modelName, doc)
	if err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

// withCode surfaces unsupported constructs as metadata conversion failures. Invalid
// documents keep their own code.
func withCode(err error) error {
	if convErr, ok := datamodel.AsConversionError(err); ok && convErr.Kind == datamodel.KindUnsupportedConstruct {
		return convErr.WithCode(datamodel.ErrCodeModelMetadataConvertError)
	}
	return err
}
