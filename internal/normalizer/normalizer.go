// Package normalizer checks raw JSON Schema documents against the supported construct subset,
// selects the conversion strategy for their shape and analyzes them into an element tree.
package normalizer

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// Keywords no strategy can express.
var unsupportedKeywords = []string{"not", "if", "then", "else"}

// Keywords that carry no structure and may sit next to a single-branch composition.
var annotationKeywords = map[string]bool{
	"$schema":     true,
	"$id":         true,
	"$comment":    true,
	"$defs":       true,
	"definitions": true,
	"title":       true,
	"description": true,
	"examples":    true,
	"default":     true,
	"readOnly":    true,
	"writeOnly":   true,
	"deprecated":  true,
}

// Visitor is called for every subschema with its pointer, parents before children.
type Visitor func(schema *schemadoc.Object, pointer string) error

// Walk visits doc and every nested subschema in declaration order.
func Walk(doc *schemadoc.Object, visit Visitor) error {
	return walk(doc, schemadoc.RootPointer, visit)
}

func walk(schema *schemadoc.Object, pointer string, visit Visitor) error {
	if err := visit(schema, pointer); err != nil {
		return err
	}

	var err error
	schema.Each(func(key string, value any) {
		if err != nil {
			return
		}
		switch key {
		case "properties", "patternProperties", "$defs", "definitions", "dependentSchemas":
			members, ok := value.(*schemadoc.Object)
			if !ok {
				return
			}
			members.Each(func(name string, member any) {
				if sub, ok := member.(*schemadoc.Object); ok && err == nil {
					err = walk(sub, schemadoc.MakePointer(pointer, key, name), visit)
				}
			})
		case "items", "additionalProperties", "contains", "propertyNames", "not", "if", "then", "else":
			if sub, ok := value.(*schemadoc.Object); ok {
				err = walk(sub, schemadoc.MakePointer(pointer, key), visit)
			}
		case "allOf", "anyOf", "oneOf", "prefixItems":
			branches, ok := value.([]any)
			if !ok {
				return
			}
			for i, branch := range branches {
				if sub, ok := branch.(*schemadoc.Object); ok && err == nil {
					err = walk(sub, schemadoc.MakePointer(pointer, key, fmt.Sprint(i)), visit)
				}
			}
		}
	})
	return err
}

// CheckSupported fails with an UnsupportedConstruct error on the first keyword outside the
// supported subset.
func CheckSupported(doc *schemadoc.Object) error {
	return Walk(doc, func(schema *schemadoc.Object, pointer string) error {
		for _, keyword := range unsupportedKeywords {
			if schema.Has(keyword) {
				return datamodel.NewUnsupportedConstructError(keyword, pointer,
					fmt.Sprintf("keyword '%s' is not supported", keyword))
			}
		}
		return nil
	})
}

// CheckWellFormed decodes doc as a JSON Schema to catch keywords holding values of the wrong shape.
func CheckWellFormed(doc *schemadoc.Object) error {
	raw, err := schemadoc.Marshal(doc)
	if err != nil {
		return datamodel.NewInvalidSchemaError("failed to encode schema", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return datamodel.NewInvalidSchemaError("schema is not a well-formed JSON Schema document", err)
	}
	return nil
}

// Normalize validates doc and returns a normalized copy suitable for strategy selection and
// analysis. doc itself is not modified. A composition with a single "$ref" branch and only
// annotations beside it is flattened into a plain "$ref".
func Normalize(doc *schemadoc.Object) (*schemadoc.Object, error) {
	if err := CheckWellFormed(doc); err != nil {
		return nil, err
	}
	if err := CheckSupported(doc); err != nil {
		return nil, err
	}

	normalized := doc.Clone()
	var schemas []*schemadoc.Object
	_ = Walk(normalized, func(schema *schemadoc.Object, _ string) error {
		schemas = append(schemas, schema)
		return nil
	})
	// Innermost first, so a flattened branch is already in its final form when merged.
	for i := len(schemas) - 1; i >= 0; i-- {
		flattenTrivialComposition(schemas[i])
	}
	return normalized, nil
}

func flattenTrivialComposition(schema *schemadoc.Object) {
	var keyword string
	var branch *schemadoc.Object
	for _, key := range schema.Keys() {
		if annotationKeywords[key] {
			continue
		}
		if !datamodel.CombinationKind(key).Valid() || keyword != "" {
			return
		}
		branches, ok := schema.Array(key)
		if !ok || len(branches) != 1 {
			return
		}
		if branch, ok = branches[0].(*schemadoc.Object); !ok || !isPureRef(branch) {
			return
		}
		keyword = key
	}
	if keyword == "" || schema.Has("$ref") {
		return
	}

	schema.Delete(keyword)
	branch.Each(func(key string, value any) {
		if !schema.Has(key) {
			schema.Set(key, value)
		}
	})
}

// isPureRef reports whether schema is a "$ref" with nothing but annotations beside it.
func isPureRef(schema *schemadoc.Object) bool {
	if !schema.Has("$ref") {
		return false
	}
	for _, key := range schema.Keys() {
		if key != "$ref" && !annotationKeywords[key] {
			return false
		}
	}
	return true
}
