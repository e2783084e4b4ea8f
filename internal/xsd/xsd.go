// Package xsd converts between JSON Schema documents and XML Schema definitions.
//
// The supported subset is the one both directions can express: global elements, named
// complex and simple types, sequences, choices, attributes, occurrence bounds, nillable
// elements, documentation and the common restriction facets.
package xsd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

const (
	// Namespace is the XML Schema namespace.
	Namespace = "http://www.w3.org/2001/XMLSchema"

	// AttributeMarker is the custom JSON Schema keyword that turns a property into an xs:attribute.
	AttributeMarker = "@xsdType"
	// AttributeMarkerValue is the value of AttributeMarker for attributes.
	AttributeMarkerValue = "XmlAttribute"

	// DefaultDialect is written as "$schema" on converted documents.
	DefaultDialect = "https://json-schema.org/draft/2020-12/schema"
	// DefaultModelName names the global element wrapping a root that has no properties.
	DefaultModelName = "model"

	unbounded = "unbounded"
)

type builtin struct {
	typ    datamodel.FieldType
	format string
}

// builtinTypes maps XSD built-in types to JSON Schema type and format.
var builtinTypes = map[string]builtin{
	"string":             {datamodel.FieldTypeString, ""},
	"normalizedString":   {datamodel.FieldTypeString, ""},
	"token":              {datamodel.FieldTypeString, ""},
	"date":               {datamodel.FieldTypeString, "date"},
	"dateTime":           {datamodel.FieldTypeString, "date-time"},
	"time":               {datamodel.FieldTypeString, "time"},
	"anyURI":             {datamodel.FieldTypeString, "uri"},
	"integer":            {datamodel.FieldTypeInteger, ""},
	"nonNegativeInteger": {datamodel.FieldTypeInteger, ""},
	"positiveInteger":    {datamodel.FieldTypeInteger, ""},
	"int":                {datamodel.FieldTypeInteger, "int32"},
	"long":               {datamodel.FieldTypeInteger, "int64"},
	"decimal":            {datamodel.FieldTypeNumber, ""},
	"double":             {datamodel.FieldTypeNumber, "double"},
	"float":              {datamodel.FieldTypeNumber, "double"},
	"boolean":            {datamodel.FieldTypeBoolean, ""},
}

// builtinName returns the XSD built-in type for a JSON Schema type and format.
func builtinName(typ datamodel.FieldType, format string) string {
	switch typ {
	case datamodel.FieldTypeInteger:
		switch format {
		case "int32":
			return "int"
		case "int64":
			return "long"
		}
		return "integer"
	case datamodel.FieldTypeNumber:
		if format == "double" || format == "float" {
			return "double"
		}
		return "decimal"
	case datamodel.FieldTypeBoolean:
		return "boolean"
	}
	switch format {
	case "date":
		return "date"
	case "date-time":
		return "dateTime"
	case "time":
		return "time"
	case "uri":
		return "anyURI"
	}
	return "string"
}

// XsdValueType returns the metadata value type for a JSON Schema type and format.
func XsdValueType(typ datamodel.FieldType, format string) datamodel.XsdValueType {
	switch builtinName(typ, format) {
	case "int":
		return datamodel.XsdValueTypeInt
	case "long":
		return datamodel.XsdValueTypeLong
	case "integer":
		return datamodel.XsdValueTypeInteger
	case "double":
		return datamodel.XsdValueTypeDouble
	case "decimal":
		return datamodel.XsdValueTypeDecimal
	case "boolean":
		return datamodel.XsdValueTypeBoolean
	case "date":
		return datamodel.XsdValueTypeDate
	case "dateTime":
		return datamodel.XsdValueTypeDateTime
	case "time":
		return datamodel.XsdValueTypeTime
	case "anyURI":
		return datamodel.XsdValueTypeAnyURI
	}
	return datamodel.XsdValueTypeString
}

// facetKeywords maps XSD facets to the JSON Schema keywords they become.
var facetKeywords = map[string]string{
	"minLength":    "minLength",
	"maxLength":    "maxLength",
	"pattern":      "pattern",
	"minInclusive": "minimum",
	"maxInclusive": "maximum",
	"minExclusive": "exclusiveMinimum",
	"maxExclusive": "exclusiveMaximum",
}

// keywordFacets is the inverse of facetKeywords.
var keywordFacets = func() map[string]string {
	out := make(map[string]string, len(facetKeywords))
	for facet, keyword := range facetKeywords {
		out[keyword] = facet
	}
	return out
}()

// hasFacets reports whether schema carries keywords that need an xs:restriction.
func hasFacets(schema *schemadoc.Object) bool {
	for _, key := range schema.Keys() {
		if _, ok := keywordFacets[key]; ok || key == "enum" || key == "multipleOf" {
			return true
		}
	}
	return false
}

// xsdPattern converts a JSON Schema pattern, which matches anywhere, to an XSD pattern,
// which is anchored. Top-level alternatives are anchored one by one and grouped.
func xsdPattern(pattern string) string {
	alternatives := topLevelAlternatives(pattern)
	if len(alternatives) == 1 {
		return anchored(pattern)
	}
	for i, alt := range alternatives {
		alternatives[i] = anchored(alt)
	}
	return "(" + strings.Join(alternatives, "|") + ")"
}

func anchored(pattern string) string {
	if strings.HasPrefix(pattern, "^") {
		pattern = pattern[1:]
	} else {
		pattern = ".*" + pattern
	}
	if strings.HasSuffix(pattern, "$") && !strings.HasSuffix(pattern, `\$`) {
		pattern = pattern[:len(pattern)-1]
	} else {
		pattern += ".*"
	}
	return pattern
}

// topLevelAlternatives splits pattern at the "|" that are outside groups and character classes.
func topLevelAlternatives(pattern string) []string {
	var (
		parts   []string
		depth   int
		inClass bool
		escaped bool
		start   int
	)
	for i, r := range pattern {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inClass:
			inClass = r != ']'
		case r == '[':
			inClass = true
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == '|' && depth == 0:
			parts = append(parts, pattern[start:i])
			start = i + 1
		}
	}
	return append(parts, pattern[start:])
}

func jsonPattern(pattern string) string {
	return "^" + pattern + "$"
}

// fractionDigits returns n when multipleOf is 10^-n.
func fractionDigits(multipleOf any) (int, bool) {
	text, ok := schemadoc.FormatNumber(multipleOf)
	if !ok {
		return 0, false
	}
	if text == "1" {
		return 0, true
	}
	if !strings.HasPrefix(text, "0.") {
		return 0, false
	}
	digits := text[2:]
	if digits == "" || strings.Trim(digits[:len(digits)-1], "0") != "" || digits[len(digits)-1] != '1' {
		return 0, false
	}
	return len(digits), true
}

func multipleOf(digits int) json.Number {
	if digits == 0 {
		return json.Number("1")
	}
	return json.Number("0." + strings.Repeat("0", digits-1) + "1")
}

// literal renders a JSON value as XSD attribute text.
func literal(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	if text, ok := schemadoc.FormatNumber(value); ok {
		return text
	}
	return fmt.Sprint(value)
}

// typedValue converts XSD attribute text to a JSON value of the given type.
func typedValue(text string, typ datamodel.FieldType) any {
	switch typ {
	case datamodel.FieldTypeInteger, datamodel.FieldTypeNumber:
		if _, err := strconv.ParseFloat(text, 64); err == nil {
			return json.Number(text)
		}
	case datamodel.FieldTypeBoolean:
		if b, err := strconv.ParseBool(text); err == nil {
			return b
		}
	}
	return text
}
