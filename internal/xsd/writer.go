package xsd

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal/normalizer"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// WriteOptions controls JSON Schema to XSD conversion.
type WriteOptions struct {
	// ModelName names the global element when the root is a reference, a combination or a
	// primitive. Defaults to DefaultModelName.
	ModelName string
	// ElementFormDefault is written on xs:schema. Defaults to "qualified".
	ElementFormDefault string
	// Indent is the number of spaces per level. Zero writes no indentation.
	Indent int
}

type writer struct {
	analyzer *normalizer.Analyzer
	opts     WriteOptions
	// inlining holds the non-definition pointers currently being written inline.
	inlining map[string]bool
}

// JsonSchemaToXsd converts doc to an XSD document.
func JsonSchemaToXsd(doc *schemadoc.Object, opts WriteOptions) (*etree.Document, error) {
	strategy, err := normalizer.Prepare(doc)
	if err != nil {
		return nil, err
	}
	// The element analysis rejects shapes XSD cannot express before anything is written.
	if _, err := strategy.Analyze(); err != nil {
		return nil, err
	}
	if opts.ModelName == "" {
		opts.ModelName = DefaultModelName
	}
	if opts.ElementFormDefault == "" {
		opts.ElementFormDefault = "qualified"
	}

	w := &writer{analyzer: strategy.Analyzer(), opts: opts, inlining: make(map[string]bool)}
	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := out.CreateElement("xs:schema")
	root.CreateAttr("xmlns:xs", Namespace)
	root.CreateAttr("elementFormDefault", opts.ElementFormDefault)
	root.CreateAttr("attributeFormDefault", "unqualified")

	source := w.analyzer.Document()
	if description, ok := source.StringValue("description"); ok {
		documentation(root, description)
	}
	if err := w.globals(root, source, strategy.Kind); err != nil {
		return nil, err
	}
	if err := w.definitions(root, source); err != nil {
		return nil, err
	}
	if opts.Indent > 0 {
		out.Indent(opts.Indent)
	}
	return out, nil
}

// JsonSchemaToXsdText converts doc and serializes the result.
func JsonSchemaToXsdText(doc *schemadoc.Object, opts WriteOptions) (string, error) {
	out, err := JsonSchemaToXsd(doc, opts)
	if err != nil {
		return "", err
	}
	text, err := out.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize xsd: %w", err)
	}
	return text, nil
}

// globals writes the global elements: one per root property, or a single element named after
// the model for a root that is a reference, a combination or a primitive.
func (w *writer) globals(root *etree.Element, doc *schemadoc.Object, kind normalizer.StrategyKind) error {
	if kind == normalizer.StrategyCombination || doc.Has("$ref") || !normalizer.IsComplex(doc) {
		return w.element(root, w.opts.ModelName, doc, schemadoc.RootPointer, true, true)
	}

	props, _ := doc.Object(schemadoc.KeywordProperties)
	for _, name := range props.Keys() {
		sub, ok := props.Object(name)
		if !ok {
			continue
		}
		pointer := schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordProperties, name)
		if isAttribute(sub) {
			return unsupported(AttributeMarker, pointer, "root properties cannot be attributes")
		}
		if err := w.element(root, name, sub, pointer, true, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) definitions(root *etree.Element, doc *schemadoc.Object) error {
	names := make(map[string]string)
	for _, keyword := range []string{schemadoc.KeywordDefs, schemadoc.KeywordDefinitions} {
		defs, ok := doc.Object(keyword)
		if !ok {
			continue
		}
		for _, name := range defs.Keys() {
			def, ok := defs.Object(name)
			if !ok {
				continue
			}
			pointer := schemadoc.MakePointer(schemadoc.RootPointer, keyword, name)
			if other, taken := names[name]; taken {
				return unsupported(keyword, pointer, fmt.Sprintf("type name %q is also declared at %s", name, other))
			}
			names[name] = pointer

			if err := w.namedType(root, name, def, pointer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) namedType(root *etree.Element, name string, def *schemadoc.Object, pointer string) error {
	if typ, _ := normalizer.SchemaType(def); typ == datamodel.FieldTypeArray {
		return unsupported("type", pointer, "array definitions have no XSD type")
	}
	if normalizer.IsComplex(def) {
		ct := root.CreateElement("xs:complexType")
		ct.CreateAttr("name", name)
		if description, ok := def.StringValue("description"); ok {
			documentation(ct, description)
		}
		return w.complexContent(ct, def, pointer)
	}
	st := root.CreateElement("xs:simpleType")
	st.CreateAttr("name", name)
	if description, ok := def.StringValue("description"); ok {
		documentation(st, description)
	}
	return w.restriction(st, def, pointer)
}

// element writes an xs:element for a property. Global elements carry no occurrence bounds.
func (w *writer) element(parent *etree.Element, name string, schema *schemadoc.Object, pointer string, required, global bool) error {
	content, contentPointer := schema, pointer
	minOccurs, maxOccurs := 1, 1
	if !required {
		minOccurs = 0
	}
	if typ, _ := normalizer.SchemaType(schema); typ == datamodel.FieldTypeArray {
		items, ok := schema.Object(schemadoc.KeywordItems)
		if !ok {
			return unsupported(schemadoc.KeywordItems, pointer, "arrays need a single items schema")
		}
		if global {
			return unsupported("type", pointer, "a global element cannot repeat")
		}
		content, contentPointer = items, schemadoc.MakePointer(pointer, schemadoc.KeywordItems)
		if required {
			if minItems, ok := schema.Int("minItems"); ok {
				minOccurs = minItems
			}
		}
		maxOccurs = datamodel.MaxOccursUnbounded
		if maxItems, ok := schema.Int("maxItems"); ok {
			maxOccurs = maxItems
		}
	}

	el := parent.CreateElement("xs:element")
	el.CreateAttr("name", name)
	_, nillable := normalizer.SchemaType(content)

	var inline func(*etree.Element) error
	typeName, err := w.typeReference(content, contentPointer)
	if err != nil {
		return err
	}
	if typeName != "" {
		el.CreateAttr("type", typeName)
	} else {
		inline = func(el *etree.Element) error { return w.anonymousType(el, content, contentPointer) }
	}

	if !global {
		if minOccurs != 1 {
			el.CreateAttr("minOccurs", strconv.Itoa(minOccurs))
		}
		switch {
		case maxOccurs == datamodel.MaxOccursUnbounded:
			el.CreateAttr("maxOccurs", unbounded)
		case maxOccurs != 1:
			el.CreateAttr("maxOccurs", strconv.Itoa(maxOccurs))
		}
	}
	if nillable {
		el.CreateAttr("nillable", "true")
	}

	// the root description is already the schema's documentation
	description, ok := schema.StringValue("description")
	if !ok {
		description, ok = content.StringValue("description")
	}
	if ok && pointer != schemadoc.RootPointer {
		documentation(el, description)
	}
	if inline != nil {
		return inline(el)
	}
	return nil
}

// typeReference returns the value of the "type" attribute for content, or "" when the type
// has to be written inline.
func (w *writer) typeReference(content *schemadoc.Object, pointer string) (string, error) {
	if ref, ok := content.StringValue("$ref"); ok {
		name, isDef := normalizer.DefinitionName(ref)
		if !isDef || hasFacets(content) {
			return "", nil
		}
		if _, _, err := w.analyzer.ResolveRef(ref); err != nil {
			if convErr, ok := datamodel.AsConversionError(err); ok {
				convErr.WithDetail("referencedFrom", pointer)
			}
			return "", err
		}
		return name, nil
	}
	if normalizer.IsComplex(content) || hasFacets(content) {
		return "", nil
	}
	typ, _ := normalizer.SchemaType(content)
	format, _ := content.StringValue("format")
	return "xs:" + builtinName(typ, format), nil
}

func (w *writer) anonymousType(el *etree.Element, content *schemadoc.Object, pointer string) error {
	if ref, ok := content.StringValue("$ref"); ok {
		if _, isDef := normalizer.DefinitionName(ref); isDef {
			// a reference with facets restricts the referenced simple type
			st := el.CreateElement("xs:simpleType")
			return w.restriction(st, content, pointer)
		}
		target, targetPointer, err := w.analyzer.ResolveSchema(content, pointer)
		if err != nil {
			return err
		}
		if w.inlining[targetPointer] {
			return unsupported("$ref", pointer, "recursive references must point to a definition")
		}
		w.inlining[targetPointer] = true
		defer delete(w.inlining, targetPointer)
		if typeName, err := w.typeReference(target, targetPointer); err != nil || typeName != "" {
			if err == nil {
				el.CreateAttr("type", typeName)
			}
			return err
		}
		return w.anonymousType(el, target, targetPointer)
	}

	if normalizer.IsComplex(content) {
		return w.complexContent(el.CreateElement("xs:complexType"), content, pointer)
	}
	return w.restriction(el.CreateElement("xs:simpleType"), content, pointer)
}

type member struct {
	name     string
	schema   *schemadoc.Object
	pointer  string
	required bool
}

// members collects the properties of schema, merging allOf branches into a property union.
func (w *writer) members(schema *schemadoc.Object, pointer string) ([]member, error) {
	var out []member
	seen := make(map[string]string)
	add := func(source *schemadoc.Object, base string, combination string) error {
		required := make(map[string]bool)
		for _, name := range source.Strings("required") {
			required[name] = true
		}
		props, _ := source.Object(schemadoc.KeywordProperties)
		for _, name := range props.Keys() {
			sub, ok := props.Object(name)
			if !ok {
				continue
			}
			propPointer := schemadoc.MakePointer(base, schemadoc.KeywordProperties, name)
			if other, dup := seen[name]; dup {
				return unsupported(combination, propPointer, fmt.Sprintf("property %q is also declared at %s", name, other))
			}
			seen[name] = propPointer
			out = append(out, member{name: name, schema: sub, pointer: propPointer, required: required[name]})
		}
		return nil
	}

	for _, key := range []string{"minProperties", "maxProperties"} {
		if schema.Has(key) {
			return nil, unsupported(key, pointer, "property count restrictions have no XSD facet")
		}
	}
	if schema.Has(string(datamodel.CombinationAnyOf)) {
		return nil, unsupported(string(datamodel.CombinationAnyOf), pointer, "anyOf has no XSD equivalent")
	}
	if err := add(schema, pointer, schemadoc.KeywordProperties); err != nil {
		return nil, err
	}

	branches, _ := schema.Array(string(datamodel.CombinationAllOf))
	for i, value := range branches {
		branchPointer := schemadoc.MakePointer(pointer, string(datamodel.CombinationAllOf), strconv.Itoa(i))
		branch, ok := value.(*schemadoc.Object)
		if !ok {
			return nil, unsupported(string(datamodel.CombinationAllOf), branchPointer, "boolean schemas are not supported")
		}
		resolved, resolvedPointer, err := w.analyzer.ResolveSchema(branch, branchPointer)
		if err != nil {
			return nil, err
		}
		if !normalizer.IsComplex(resolved) {
			return nil, unsupported(string(datamodel.CombinationAllOf), branchPointer, "only object branches can be merged")
		}
		if _, nested := normalizer.RootCombination(resolved); nested {
			return nil, unsupported(string(datamodel.CombinationAllOf), branchPointer, "allOf branches cannot combine further")
		}
		if err := add(resolved, resolvedPointer, string(datamodel.CombinationAllOf)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// complexContent writes the sequence, choice and attributes of an object schema.
func (w *writer) complexContent(ct *etree.Element, schema *schemadoc.Object, pointer string) error {
	members, err := w.members(schema, pointer)
	if err != nil {
		return err
	}
	var elements, attributes []member
	for _, m := range members {
		if isAttribute(m.schema) {
			attributes = append(attributes, m)
		} else {
			elements = append(elements, m)
		}
	}

	container := ct
	if len(elements) > 0 {
		container = ct.CreateElement("xs:sequence")
		for _, m := range elements {
			if err := w.element(container, m.name, m.schema, m.pointer, m.required, false); err != nil {
				return err
			}
		}
	}
	if branches, ok := schema.Array(string(datamodel.CombinationOneOf)); ok {
		if err := w.choice(container.CreateElement("xs:choice"), branches, schemadoc.MakePointer(pointer, string(datamodel.CombinationOneOf))); err != nil {
			return err
		}
	}
	for _, m := range attributes {
		if err := w.attribute(ct, m); err != nil {
			return err
		}
	}
	return nil
}

// choice writes one alternative per oneOf branch: a single element, or a sequence when the
// branch declares several properties.
func (w *writer) choice(choice *etree.Element, branches []any, base string) error {
	for i, value := range branches {
		branchPointer := schemadoc.MakePointer(base, strconv.Itoa(i))
		branch, ok := value.(*schemadoc.Object)
		if !ok {
			return unsupported(string(datamodel.CombinationOneOf), branchPointer, "boolean schemas are not supported")
		}
		resolved, resolvedPointer, err := w.analyzer.ResolveSchema(branch, branchPointer)
		if err != nil {
			return err
		}
		if !normalizer.IsComplex(resolved) {
			return unsupported(string(datamodel.CombinationOneOf), branchPointer, "choice branches must be objects")
		}
		if _, nested := normalizer.RootCombination(resolved); nested {
			return unsupported(string(datamodel.CombinationOneOf), branchPointer, "choice branches cannot combine further")
		}
		members, err := w.members(resolved, resolvedPointer)
		if err != nil {
			return err
		}
		container := choice
		if len(members) != 1 {
			container = choice.CreateElement("xs:sequence")
		}
		for _, m := range members {
			if isAttribute(m.schema) {
				return unsupported(AttributeMarker, m.pointer, "attributes cannot be part of a choice")
			}
			if err := w.element(container, m.name, m.schema, m.pointer, m.required, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) attribute(ct *etree.Element, m member) error {
	content, contentPointer := m.schema, m.pointer
	if typ, _ := normalizer.SchemaType(content); typ == datamodel.FieldTypeArray {
		return unsupported("type", m.pointer, "attributes cannot repeat")
	}
	resolved, _, err := w.analyzer.ResolveSchema(content, contentPointer)
	if err != nil {
		return err
	}
	if normalizer.IsComplex(resolved) {
		return unsupported(AttributeMarker, m.pointer, "attributes must have a simple type")
	}

	attr := ct.CreateElement("xs:attribute")
	attr.CreateAttr("name", m.name)
	typeName, err := w.typeReference(content, contentPointer)
	if err != nil {
		return err
	}
	if typeName != "" {
		attr.CreateAttr("type", typeName)
	}
	if m.required {
		attr.CreateAttr("use", "required")
	}
	if description, ok := content.StringValue("description"); ok {
		documentation(attr, description)
	}
	if typeName == "" {
		return w.anonymousType(attr, content, contentPointer)
	}
	return nil
}

// restriction writes an xs:restriction with one facet per restriction keyword, in the order
// the keywords are declared.
func (w *writer) restriction(st *etree.Element, schema *schemadoc.Object, pointer string) error {
	base := ""
	if ref, ok := schema.StringValue("$ref"); ok {
		name, isDef := normalizer.DefinitionName(ref)
		if !isDef {
			return unsupported("$ref", pointer, "restricted types must reference a definition")
		}
		target, _, err := w.analyzer.ResolveRef(ref)
		if err != nil {
			return err
		}
		if normalizer.IsComplex(target) {
			return unsupported("$ref", pointer, "facets cannot restrict a complex type")
		}
		base = name
	} else {
		typ, _ := normalizer.SchemaType(schema)
		format, _ := schema.StringValue("format")
		base = "xs:" + builtinName(typ, format)
	}

	restriction := st.CreateElement("xs:restriction")
	restriction.CreateAttr("base", base)

	var err error
	schema.Each(func(key string, value any) {
		if err != nil {
			return
		}
		switch key {
		case "enum":
			values, _ := value.([]any)
			for _, v := range values {
				if v == nil {
					continue
				}
				restriction.CreateElement("xs:enumeration").CreateAttr("value", literal(v))
			}
		case "pattern":
			restriction.CreateElement("xs:pattern").CreateAttr("value", xsdPattern(literal(value)))
		case "multipleOf":
			digits, ok := fractionDigits(value)
			if !ok {
				err = unsupported(key, pointer, "only powers of ten map to xs:fractionDigits")
				return
			}
			restriction.CreateElement("xs:fractionDigits").CreateAttr("value", strconv.Itoa(digits))
		default:
			if facet, ok := keywordFacets[key]; ok {
				restriction.CreateElement("xs:"+facet).CreateAttr("value", literal(value))
			}
		}
	})
	return err
}

func documentation(parent *etree.Element, text string) {
	parent.CreateElement("xs:annotation").CreateElement("xs:documentation").SetText(text)
}

func isAttribute(schema *schemadoc.Object) bool {
	marker, _ := schema.StringValue(AttributeMarker)
	return marker == AttributeMarkerValue
}

func unsupported(keyword, pointer, message string) *datamodel.SchemaConversionError {
	return datamodel.NewUnsupportedConstructError(keyword, pointer, message)
}
