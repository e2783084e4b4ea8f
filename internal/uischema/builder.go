// Package uischema converts JSON Schema documents to the flat pointer-addressed node arena used
// by the data model editor, edits that arena and converts it back.
package uischema

import (
	"fmt"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal/normalizer"
	"github.com/lychee-technology/datamodel/schemadoc"
)

type builder struct {
	analyzer *normalizer.Analyzer
	ui       *datamodel.UiSchema
}

// BuildUiSchema converts doc into a node arena. References are stored as pointers and are not
// resolved, so a dangling "$ref" is kept as is.
func BuildUiSchema(doc *schemadoc.Object) (*datamodel.UiSchema, error) {
	if _, err := normalizer.Prepare(doc); err != nil {
		return nil, err
	}

	b := &builder{
		analyzer: normalizer.NewAnalyzer(doc),
		ui:       datamodel.NewUiSchema(),
	}
	if _, err := b.build(doc, schemadoc.RootPointer, true); err != nil {
		return nil, err
	}
	return b.ui, nil
}

// BuildUiSchemaFromText parses text and converts it.
func BuildUiSchemaFromText(text string) (*datamodel.UiSchema, error) {
	doc, err := schemadoc.ParseString(text)
	if err != nil {
		return nil, datamodel.NewInvalidSchemaError("schema is not valid JSON", err)
	}
	return BuildUiSchema(doc)
}

type pendingChild struct {
	schema      any
	pointer     string
	keyword     string
	combination bool
}

func (b *builder) build(schema *schemadoc.Object, pointer string, isRoot bool) (*datamodel.UiSchemaNode, error) {
	node := datamodel.NewUiSchemaNode(pointer)
	b.ui.Put(node)

	content := schema
	if typ, _ := schema.StringValue("type"); typ == string(datamodel.FieldTypeArray) {
		if items, ok := schema.Object(schemadoc.KeywordItems); ok {
			node.IsArray = true
			node.ItemsCustom = schemadoc.NewObject()
			content = items
			schema.Each(func(key string, value any) {
				switch {
				case key == "type" || key == schemadoc.KeywordItems:
				case key == "title" && isString(value):
					node.Title = value.(string)
				case key == "description" && isString(value):
					node.Description = value.(string)
				case datamodel.IsArrayRestrictionKey(key):
					node.Restrictions.Set(key, schemadoc.CloneValue(value))
				default:
					node.Custom.Set(key, schemadoc.CloneValue(value))
				}
			})
		}
	}

	return node, b.fillContent(node, content, isRoot)
}

func (b *builder) fillContent(node *datamodel.UiSchemaNode, content *schemadoc.Object, isRoot bool) error {
	custom := node.Custom
	if node.IsArray {
		custom = node.ItemsCustom
	}
	base := node.ContentBase()
	combination := structuralCombination(content)

	var pending []pendingChild
	var required []string
	hasRequired := false

	content.Each(func(key string, value any) {
		switch {
		case key == "type":
			typ, nullable, ok := parseType(value)
			if !ok || combination != "" {
				custom.Set(key, schemadoc.CloneValue(value))
				return
			}
			node.FieldType = typ
			node.IsNillable = nullable
			node.ImplicitType = false

		case key == "$ref":
			ref, ok := value.(string)
			if !ok {
				custom.Set(key, schemadoc.CloneValue(value))
				return
			}
			node.ObjectKind = datamodel.ObjectKindReference
			node.Reference = ref

		case combination != "" && key == string(combination):
			node.ObjectKind = datamodel.ObjectKindCombination
			node.FieldType = datamodel.FieldType(combination)
			for i, branch := range value.([]any) {
				pending = append(pending, pendingChild{
					schema:      branch,
					pointer:     schemadoc.MakePointer(base, key, fmt.Sprint(i)),
					keyword:     key,
					combination: true,
				})
			}

		case key == schemadoc.KeywordProperties:
			props, ok := value.(*schemadoc.Object)
			if !ok || props.Len() == 0 {
				custom.Set(key, schemadoc.CloneValue(value))
				return
			}
			props.Each(func(name string, sub any) {
				pending = append(pending, pendingChild{
					schema:  sub,
					pointer: schemadoc.MakePointer(base, key, name),
					keyword: key,
				})
			})

		case key == "required":
			names, ok := stringArray(value)
			if !ok {
				custom.Set(key, schemadoc.CloneValue(value))
				return
			}
			required = names
			hasRequired = true

		case isRoot && (key == schemadoc.KeywordDefs || key == schemadoc.KeywordDefinitions):
			defs, ok := value.(*schemadoc.Object)
			if !ok || defs.Len() == 0 {
				custom.Set(key, schemadoc.CloneValue(value))
				return
			}
			defs.Each(func(name string, sub any) {
				pending = append(pending, pendingChild{
					schema:  sub,
					pointer: schemadoc.MakePointer(schemadoc.RootPointer, key, name),
					keyword: key,
				})
			})

		case key == "title" && !node.IsArray && isString(value):
			node.Title = value.(string)

		case key == "description" && !node.IsArray && isString(value):
			node.Description = value.(string)

		case key == "enum":
			values, ok := value.([]any)
			if !ok {
				custom.Set(key, schemadoc.CloneValue(value))
				return
			}
			node.Enum = schemadoc.CloneValue(values).([]any)

		case datamodel.IsRestrictionKey(key) && !(node.IsArray && datamodel.IsArrayRestrictionKey(key)):
			node.Restrictions.Set(key, schemadoc.CloneValue(value))

		default:
			custom.Set(key, schemadoc.CloneValue(value))
		}
	})

	if node.ObjectKind == datamodel.ObjectKindReference && node.ImplicitType {
		node.FieldType = b.referencedType(node.Reference)
	}
	if node.FieldType == "" && content.Has(schemadoc.KeywordProperties) {
		node.FieldType = datamodel.FieldTypeObject
	}

	requiredSet := make(map[string]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
	}
	matched := make(map[string]bool)

	for _, p := range pending {
		sub, ok := p.schema.(*schemadoc.Object)
		if !ok {
			return datamodel.NewUnsupportedConstructError(p.keyword, p.pointer, "boolean schemas are not supported")
		}
		child, err := b.build(sub, p.pointer, false)
		if err != nil {
			return err
		}
		child.IsCombinationItem = p.combination
		if p.keyword == schemadoc.KeywordProperties && requiredSet[child.Name()] {
			child.IsRequired = true
			matched[child.Name()] = true
		}
		node.Children = append(node.Children, p.pointer)
	}

	// Required names without a matching property, or an empty list, are kept verbatim.
	if hasRequired {
		var extra []any
		for _, name := range required {
			if !matched[name] {
				extra = append(extra, name)
			}
		}
		if len(required) == 0 || len(extra) > 0 {
			if extra == nil {
				extra = []any{}
			}
			custom.Set("required", extra)
		}
	}
	return nil
}

// referencedType is the display type of a reference target, or "" for a dangling reference.
func (b *builder) referencedType(ref string) datamodel.FieldType {
	target, _, err := b.analyzer.ResolveRef(ref)
	if err != nil {
		return ""
	}
	return inferType(target)
}

func inferType(schema *schemadoc.Object) datamodel.FieldType {
	if typ, _ := normalizer.SchemaType(schema); typ != "" {
		return typ
	}
	if schema.Has(schemadoc.KeywordProperties) {
		return datamodel.FieldTypeObject
	}
	if kind, ok := normalizer.RootCombination(schema); ok {
		return datamodel.FieldType(kind)
	}
	return ""
}

// structuralCombination returns the combination keyword that becomes the node's branches.
// Combinations next to properties or a reference stay verbatim.
func structuralCombination(content *schemadoc.Object) datamodel.CombinationKind {
	if content.Has(schemadoc.KeywordProperties) || content.Has("$ref") {
		return ""
	}
	for _, key := range content.Keys() {
		kind := datamodel.CombinationKind(key)
		if !kind.Valid() {
			continue
		}
		if _, ok := content.Array(key); ok {
			return kind
		}
	}
	return ""
}

func parseType(value any) (datamodel.FieldType, bool, bool) {
	switch t := value.(type) {
	case string:
		return datamodel.FieldType(t), false, true
	case []any:
		if len(t) != 2 {
			return "", false, false
		}
		first, ok1 := t[0].(string)
		second, ok2 := t[1].(string)
		if !ok1 || !ok2 || second != string(datamodel.FieldTypeNull) || first == second {
			return "", false, false
		}
		return datamodel.FieldType(first), true, true
	}
	return "", false, false
}

func stringArray(value any) ([]string, bool) {
	arr, ok := value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func isString(value any) bool {
	_, ok := value.(string)
	return ok
}
