package uischema

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// BuildJsonSchema serializes the arena back into a JSON Schema document. Property, definition
// and branch order follow the children lists. References are written verbatim whether or not
// their target exists.
func BuildJsonSchema(ui *datamodel.UiSchema) (*schemadoc.Object, error) {
	root := ui.Root()
	if root == nil {
		return nil, fmt.Errorf("ui schema has no root node")
	}
	w := &jsonWriter{ui: ui, visited: make(map[string]bool)}
	return w.emit(root)
}

// BuildJsonSchemaText serializes the arena as indented JSON text.
func BuildJsonSchemaText(ui *datamodel.UiSchema) (string, error) {
	doc, err := BuildJsonSchema(ui)
	if err != nil {
		return "", err
	}
	raw, err := schemadoc.MarshalIndent(doc)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return string(raw), nil
}

type jsonWriter struct {
	ui      *datamodel.UiSchema
	visited map[string]bool
}

func (w *jsonWriter) emit(node *datamodel.UiSchemaNode) (*schemadoc.Object, error) {
	if w.visited[node.Pointer] {
		return nil, fmt.Errorf("node %s is reachable twice", node.Pointer)
	}
	w.visited[node.Pointer] = true

	out := schemadoc.NewObject()
	if !node.IsArray {
		if err := w.emitContent(node, node.Custom, out, true); err != nil {
			return nil, err
		}
		return out, nil
	}

	writeDollarKeys(out, node.Custom)
	out.Set("type", string(datamodel.FieldTypeArray))
	writeAnnotations(out, node)
	node.Restrictions.Each(func(key string, value any) {
		if datamodel.IsArrayRestrictionKey(key) {
			out.Set(key, schemadoc.CloneValue(value))
		}
	})
	items := schemadoc.NewObject()
	if err := w.emitContent(node, node.ItemsCustom, items, false); err != nil {
		return nil, err
	}
	out.Set(schemadoc.KeywordItems, items)
	writeRemaining(out, node.Custom)
	return out, nil
}

func (w *jsonWriter) emitContent(node *datamodel.UiSchemaNode, custom *schemadoc.Object, out *schemadoc.Object, annotations bool) error {
	writeDollarKeys(out, custom)

	if t := typeValue(node); t != nil {
		out.Set("type", t)
	}
	if annotations {
		writeAnnotations(out, node)
	}
	if node.ObjectKind == datamodel.ObjectKindReference && node.Reference != "" {
		out.Set("$ref", node.Reference)
	}

	groups, order, err := w.childGroups(node)
	if err != nil {
		return err
	}

	if node.ObjectKind == datamodel.ObjectKindCombination && node.FieldType.IsCombination() {
		branches := make([]any, 0)
		for _, child := range groups[string(node.FieldType)] {
			branches = append(branches, child.schema)
		}
		out.Set(string(node.FieldType), branches)
	}

	node.Restrictions.Each(func(key string, value any) {
		if node.IsArray && datamodel.IsArrayRestrictionKey(key) {
			return
		}
		out.Set(key, schemadoc.CloneValue(value))
	})
	if node.Enum != nil {
		out.Set("enum", schemadoc.CloneValue(node.Enum))
	}

	if props := groups[schemadoc.KeywordProperties]; len(props) > 0 {
		obj := schemadoc.NewObject()
		for _, child := range props {
			obj.Set(child.name, child.schema)
		}
		out.Set(schemadoc.KeywordProperties, obj)
	}
	if required, ok := requiredValue(groups[schemadoc.KeywordProperties], custom); ok {
		out.Set("required", required)
	}

	writeRemaining(out, custom)

	for _, keyword := range order {
		if keyword != schemadoc.KeywordDefs && keyword != schemadoc.KeywordDefinitions {
			continue
		}
		obj := schemadoc.NewObject()
		for _, child := range groups[keyword] {
			obj.Set(child.name, child.schema)
		}
		out.Set(keyword, obj)
	}
	return nil
}

type emittedChild struct {
	name     string
	required bool
	schema   *schemadoc.Object
}

// childGroups emits the children grouped by the keyword that contains them.
func (w *jsonWriter) childGroups(node *datamodel.UiSchemaNode) (map[string][]emittedChild, []string, error) {
	groups := make(map[string][]emittedChild)
	var order []string
	for _, pointer := range node.Children {
		child := w.ui.Node(pointer)
		if child == nil {
			return nil, nil, fmt.Errorf("node %s lists missing child %s", node.Pointer, pointer)
		}
		schema, err := w.emit(child)
		if err != nil {
			return nil, nil, err
		}
		keyword := ContainerKeyword(pointer)
		if _, seen := groups[keyword]; !seen {
			order = append(order, keyword)
		}
		groups[keyword] = append(groups[keyword], emittedChild{
			name:     child.Name(),
			required: child.IsRequired,
			schema:   schema,
		})
	}
	return groups, order, nil
}

// ContainerKeyword returns the keyword holding pointer in its parent: "properties", "$defs",
// "definitions" or a combination keyword.
func ContainerKeyword(pointer string) string {
	base, _ := schemadoc.SplitPointer(pointer)
	_, keyword := schemadoc.SplitPointer(base)
	return keyword
}

func typeValue(node *datamodel.UiSchemaNode) any {
	if node.ImplicitType || node.FieldType == "" || node.FieldType.IsCombination() {
		return nil
	}
	if node.IsNillable {
		return []any{string(node.FieldType), string(datamodel.FieldTypeNull)}
	}
	return string(node.FieldType)
}

func writeAnnotations(out *schemadoc.Object, node *datamodel.UiSchemaNode) {
	if node.Title != "" {
		out.Set("title", node.Title)
	}
	if node.Description != "" {
		out.Set("description", node.Description)
	}
}

// requiredValue merges the required properties with names kept verbatim by the builder.
func requiredValue(props []emittedChild, custom *schemadoc.Object) ([]any, bool) {
	out := make([]any, 0)
	seen := make(map[string]bool)
	for _, child := range props {
		if child.required {
			out = append(out, child.name)
			seen[child.name] = true
		}
	}
	extra, hasExtra := custom.Array("required")
	for _, value := range extra {
		if name, ok := value.(string); ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out, len(out) > 0 || hasExtra
}

func writeDollarKeys(out *schemadoc.Object, custom *schemadoc.Object) {
	custom.Each(func(key string, value any) {
		if strings.HasPrefix(key, "$") && !out.Has(key) {
			out.Set(key, schemadoc.CloneValue(value))
		}
	})
}

func writeRemaining(out *schemadoc.Object, custom *schemadoc.Object) {
	custom.Each(func(key string, value any) {
		if strings.HasPrefix(key, "$") || key == "required" || out.Has(key) {
			return
		}
		out.Set(key, schemadoc.CloneValue(value))
	})
}
