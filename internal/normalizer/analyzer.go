package normalizer

import (
	"fmt"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// Element is one node of the analyzed element tree shared by the XSD and metadata converters.
type Element struct {
	Name        string
	BindingPath string
	XPath       string
	// Pointer is where the element's schema is declared.
	Pointer string
	// ContentPointer is where its content lives after following references and array items.
	ContentPointer string
	// TypeName is the definition the element refers to, if any.
	TypeName  string
	Type      datamodel.FieldType
	Format    string
	MinOccurs int
	MaxOccurs int
	IsArray   bool
	ReadOnly  bool
	Nillable  bool
	// Complex elements have child elements; Choice marks children that are alternatives.
	Complex  bool
	Choice   bool
	Schema   *schemadoc.Object
	Children []*Element
}

// Analysis is the result of running a strategy over a document.
type Analysis struct {
	Strategy StrategyKind
	Root     *Element
}

// Walk visits every element below the root depth-first in declaration order.
func (a *Analysis) Walk(fn func(el *Element)) {
	var visit func(el *Element)
	visit = func(el *Element) {
		for _, child := range el.Children {
			fn(child)
			visit(child)
		}
	}
	visit(a.Root)
}

// Leaves returns the elements without child elements.
func (a *Analysis) Leaves() []*Element {
	var out []*Element
	a.Walk(func(el *Element) {
		if !el.Complex {
			out = append(out, el)
		}
	})
	return out
}

// Analyzer resolves references and derives elements from a normalized document.
type Analyzer struct {
	doc *schemadoc.Object
}

// NewAnalyzer returns an analyzer over doc.
func NewAnalyzer(doc *schemadoc.Object) *Analyzer {
	return &Analyzer{doc: doc}
}

// Document returns the analyzed document.
func (a *Analyzer) Document() *schemadoc.Object {
	return a.doc
}

// ResolveRef follows a chain of local references and returns the final schema and its pointer.
func (a *Analyzer) ResolveRef(ref string) (*schemadoc.Object, string, error) {
	seen := make(map[string]bool)
	for {
		if seen[ref] {
			return nil, "", datamodel.NewUnsupportedConstructError("$ref", ref, "reference cycle")
		}
		seen[ref] = true

		if !schemadoc.IsLocalRef(ref) {
			return nil, "", datamodel.NewUnsupportedConstructError("$ref", ref,
				"only references within the document are supported")
		}
		target, err := schemadoc.ResolveObject(a.doc, ref)
		if err != nil {
			return nil, "", datamodel.NewUnsupportedConstructError("$ref", ref, "unresolved reference").WithCause(err)
		}
		next, ok := target.StringValue("$ref")
		if !ok || !isPureRef(target) {
			return target, ref, nil
		}
		ref = next
	}
}

// ResolveSchema returns schema itself, or its reference target when schema is a "$ref".
func (a *Analyzer) ResolveSchema(schema *schemadoc.Object, pointer string) (*schemadoc.Object, string, error) {
	ref, ok := schema.StringValue("$ref")
	if !ok {
		return schema, pointer, nil
	}
	target, targetPointer, err := a.ResolveRef(ref)
	if err != nil {
		if convErr, ok := datamodel.AsConversionError(err); ok {
			convErr.WithDetail("referencedFrom", pointer)
		}
		return nil, "", err
	}
	return target, targetPointer, nil
}

// DefinitionName returns the name of the definition pointer addresses directly.
func DefinitionName(pointer string) (string, bool) {
	segments := schemadoc.Segments(pointer)
	if len(segments) != 2 {
		return "", false
	}
	if segments[0] != schemadoc.KeywordDefs && segments[0] != schemadoc.KeywordDefinitions {
		return "", false
	}
	return segments[1], true
}

// SchemaType returns the explicit type of schema. A ["T", "null"] type yields T and nullable.
func SchemaType(schema *schemadoc.Object) (datamodel.FieldType, bool) {
	value, ok := schema.Get("type")
	if !ok {
		return "", false
	}
	switch t := value.(type) {
	case string:
		return datamodel.FieldType(t), false
	case []any:
		var typ datamodel.FieldType
		nullable := false
		for _, item := range t {
			s, _ := item.(string)
			if s == string(datamodel.FieldTypeNull) {
				nullable = true
			} else if typ == "" {
				typ = datamodel.FieldType(s)
			}
		}
		if typ == "" && nullable {
			return datamodel.FieldTypeNull, false
		}
		return typ, nullable
	}
	return "", false
}

// IsComplex reports whether schema describes an element with child elements.
func IsComplex(schema *schemadoc.Object) bool {
	if _, ok := RootCombination(schema); ok {
		return true
	}
	typ, _ := SchemaType(schema)
	if typ == datamodel.FieldTypeObject {
		return true
	}
	return typ == "" && schema.Has(schemadoc.KeywordProperties)
}

func (a *Analyzer) analyzePlain() (*Analysis, error) {
	root := &Element{Pointer: schemadoc.RootPointer, Type: datamodel.FieldTypeObject, Complex: true, MinOccurs: 1, MaxOccurs: 1}
	resolved, pointer, err := a.ResolveSchema(a.doc, schemadoc.RootPointer)
	if err != nil {
		return nil, err
	}
	if typ, _ := SchemaType(resolved); typ == datamodel.FieldTypeArray {
		return nil, datamodel.NewUnsupportedConstructError("type", schemadoc.RootPointer,
			"a root array cannot be converted")
	}
	root.ContentPointer = pointer
	root.Schema = resolved
	root.TypeName, _ = DefinitionName(pointer)

	stack := map[string]bool{pointer: true}
	if err := a.addContent(root, resolved, pointer, false, stack); err != nil {
		return nil, err
	}
	return &Analysis{Strategy: StrategyPlain, Root: root}, nil
}

func (a *Analyzer) analyzeCombination() (*Analysis, error) {
	root := &Element{
		Pointer:        schemadoc.RootPointer,
		ContentPointer: schemadoc.RootPointer,
		Type:           datamodel.FieldTypeObject,
		Complex:        true,
		MinOccurs:      1,
		MaxOccurs:      1,
		Schema:         a.doc,
	}
	stack := map[string]bool{schemadoc.RootPointer: true}
	if err := a.addContent(root, a.doc, schemadoc.RootPointer, false, stack); err != nil {
		return nil, err
	}
	return &Analysis{Strategy: StrategyCombination, Root: root}, nil
}

// addContent appends the elements declared by schema to parent. Combination branches add
// their elements at the same level; alternatives make them optional.
func (a *Analyzer) addContent(parent *Element, schema *schemadoc.Object, pointer string, optional bool, stack map[string]bool) error {
	required := make(map[string]bool)
	for _, name := range schema.Strings("required") {
		required[name] = true
	}

	if props, ok := schema.Object(schemadoc.KeywordProperties); ok {
		for _, name := range props.Keys() {
			sub, ok := props.Object(name)
			if !ok {
				continue
			}
			child, err := a.element(parent, name, sub, schemadoc.MakePointer(pointer, schemadoc.KeywordProperties, name), required[name] && !optional, stack)
			if err != nil {
				return err
			}
			parent.Children = append(parent.Children, child)
		}
	}

	for _, kind := range datamodel.CombinationKinds {
		branches, ok := schema.Array(string(kind))
		if !ok {
			continue
		}
		alternative := kind != datamodel.CombinationAllOf
		if alternative && len(branches) > 0 {
			parent.Choice = true
		}
		for i, value := range branches {
			branch, ok := value.(*schemadoc.Object)
			if !ok {
				continue
			}
			resolved, branchPointer, err := a.ResolveSchema(branch, schemadoc.MakePointer(pointer, string(kind), fmt.Sprint(i)))
			if err != nil {
				return err
			}
			if stack[branchPointer] {
				continue
			}
			stack[branchPointer] = true
			err = a.addContent(parent, resolved, branchPointer, optional || alternative, stack)
			delete(stack, branchPointer)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Analyzer) element(parent *Element, name string, schema *schemadoc.Object, pointer string, required bool, stack map[string]bool) (*Element, error) {
	el := &Element{
		Name:        name,
		BindingPath: joinBinding(parent.BindingPath, name),
		XPath:       parent.XPath + "/" + name,
		Pointer:     pointer,
		MaxOccurs:   1,
	}
	if required {
		el.MinOccurs = 1
	}
	el.ReadOnly, _ = schema.Bool("readOnly")

	resolved, contentPointer, err := a.ResolveSchema(schema, pointer)
	if err != nil {
		return nil, err
	}
	if schema.Has("$ref") {
		el.TypeName, _ = DefinitionName(contentPointer)
	}

	typ, nullable := SchemaType(resolved)
	if typ == datamodel.FieldTypeArray {
		if items, ok := resolved.Object(schemadoc.KeywordItems); ok {
			el.IsArray = true
			if minItems, ok := resolved.Int("minItems"); ok && required {
				el.MinOccurs = minItems
			}
			el.MaxOccurs = datamodel.MaxOccursUnbounded
			if maxItems, ok := resolved.Int("maxItems"); ok {
				el.MaxOccurs = maxItems
			}
			if readOnly, ok := resolved.Bool("readOnly"); ok && readOnly {
				el.ReadOnly = true
			}

			resolved, contentPointer, err = a.ResolveSchema(items, schemadoc.MakePointer(contentPointer, schemadoc.KeywordItems))
			if err != nil {
				return nil, err
			}
			if items.Has("$ref") {
				el.TypeName, _ = DefinitionName(contentPointer)
			}
			typ, nullable = SchemaType(resolved)
		}
	}
	if readOnly, ok := resolved.Bool("readOnly"); ok && readOnly {
		el.ReadOnly = true
	}

	el.Nillable = nullable
	el.ContentPointer = contentPointer
	el.Schema = resolved

	if !IsComplex(resolved) {
		el.Type = typ
		if el.Type == "" {
			el.Type = datamodel.FieldTypeString
		}
		el.Format, _ = resolved.StringValue("format")
		return el, nil
	}

	el.Complex = true
	el.Type = datamodel.FieldTypeObject
	if stack[contentPointer] {
		// Recursive type: the children are those of the enclosing occurrence.
		return el, nil
	}
	stack[contentPointer] = true
	defer delete(stack, contentPointer)
	if err := a.addContent(el, resolved, contentPointer, false, stack); err != nil {
		return nil, err
	}
	return el, nil
}

func joinBinding(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
