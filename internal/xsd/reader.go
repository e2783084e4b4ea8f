package xsd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// ReadOptions controls XSD to JSON Schema conversion.
type ReadOptions struct {
	// SchemaID is written as "$id" when set.
	SchemaID string
	// Dialect is written as "$schema". Defaults to DefaultDialect.
	Dialect string
}

type reader struct {
	// prefixes bound to the XML Schema namespace on xs:schema
	prefixes map[string]bool
	// simple holds the named simple types, used to type facet values of restrictions.
	simple map[string]*etree.Element
}

// XsdToJsonSchema converts the XSD read from r into a JSON Schema document. Global elements
// become root properties and named types become "$defs" entries.
func XsdToJsonSchema(r io.Reader, opts ReadOptions) (*schemadoc.Object, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, datamodel.NewInvalidSchemaError("xsd is not well-formed XML", err).
			WithCode(datamodel.ErrCodeXsdToJsonSchemaConvert)
	}
	root := doc.Root()
	if root == nil || root.Tag != "schema" || root.NamespaceURI() != Namespace {
		return nil, datamodel.NewInvalidSchemaError("document root is not an xs:schema element", nil).
			WithCode(datamodel.ErrCodeXsdToJsonSchemaConvert)
	}

	rd := &reader{prefixes: make(map[string]bool), simple: make(map[string]*etree.Element)}
	for _, attr := range root.Attr {
		if attr.Value != Namespace {
			continue
		}
		switch {
		case attr.Space == "xmlns":
			rd.prefixes[attr.Key] = true
		case attr.Space == "" && attr.Key == "xmlns":
			rd.prefixes[""] = true
		}
	}
	for _, child := range root.ChildElements() {
		if isXs(child, "simpleType") {
			rd.simple[child.SelectAttrValue("name", "")] = child
		}
	}

	if opts.Dialect == "" {
		opts.Dialect = DefaultDialect
	}
	out := schemadoc.NewObject()
	out.Set("$schema", opts.Dialect)
	if opts.SchemaID != "" {
		out.Set("$id", opts.SchemaID)
	}
	out.Set("type", string(datamodel.FieldTypeObject))

	props := schemadoc.NewObject()
	defs := schemadoc.NewObject()
	for _, child := range root.ChildElements() {
		if child.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(child.Tag, schemadoc.RootPointer, "unexpected element outside the XML Schema namespace")
		}
		switch child.Tag {
		case "annotation":
			if text, ok := documentationText(child); ok {
				out.Set("description", text)
			}
		case "element":
			name := child.SelectAttrValue("name", "")
			pointer := schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordProperties, name)
			schema, _, err := rd.element(child, pointer)
			if err != nil {
				return nil, err
			}
			props.Set(name, schema)
		case "complexType", "simpleType":
			name := child.SelectAttrValue("name", "")
			pointer := schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordDefs, name)
			if name == "" {
				return nil, xsdUnsupported(child.Tag, pointer, "global types must be named")
			}
			var schema *schemadoc.Object
			var err error
			if child.Tag == "complexType" {
				schema, err = rd.complexType(child, pointer)
			} else {
				schema, err = rd.simpleType(child, pointer)
			}
			if err != nil {
				return nil, err
			}
			defs.Set(name, schema)
		default:
			return nil, xsdUnsupported(child.Tag, schemadoc.RootPointer, "unsupported top-level declaration")
		}
	}

	if props.Len() > 0 {
		out.Set(schemadoc.KeywordProperties, props)
	}
	if defs.Len() > 0 {
		out.Set(schemadoc.KeywordDefs, defs)
	}
	return out, nil
}

// XsdToJsonSchemaText converts the XSD read from r and serializes the result with indentation.
func XsdToJsonSchemaText(r io.Reader, opts ReadOptions) (string, error) {
	doc, err := XsdToJsonSchema(r, opts)
	if err != nil {
		return "", err
	}
	raw, err := schemadoc.MarshalIndent(doc)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return string(raw), nil
}

// element converts an xs:element and reports whether it is required.
func (rd *reader) element(el *etree.Element, pointer string) (*schemadoc.Object, bool, error) {
	for _, attr := range el.Attr {
		switch attr.Key {
		case "ref", "substitutionGroup", "abstract", "fixed", "block", "final", "form":
			return nil, false, xsdUnsupported(attr.Key, pointer, "unsupported element attribute")
		}
	}
	if el.SelectAttrValue("name", "") == "" {
		return nil, false, xsdUnsupported("element", pointer, "elements must be named")
	}

	minOccurs, err := occurs(el, "minOccurs", pointer)
	if err != nil {
		return nil, false, err
	}
	maxOccurs, err := occurs(el, "maxOccurs", pointer)
	if err != nil {
		return nil, false, err
	}
	isArray := maxOccurs != 1
	contentPointer := pointer
	if isArray {
		contentPointer = schemadoc.MakePointer(pointer, schemadoc.KeywordItems)
	}

	content, err := rd.elementContent(el, contentPointer)
	if err != nil {
		return nil, false, err
	}
	if nillable, _ := strconv.ParseBool(el.SelectAttrValue("nillable", "false")); nillable {
		typ, ok := content.Get("type")
		name, isString := typ.(string)
		if !ok || !isString {
			return nil, false, xsdUnsupported("nillable", pointer, "only elements with a built-in or inline type can be nillable")
		}
		content.Set("type", []any{name, string(datamodel.FieldTypeNull)})
	}
	if defaultValue := el.SelectAttr("default"); defaultValue != nil {
		typ, _ := content.StringValue("type")
		content.Set("default", typedValue(defaultValue.Value, datamodel.FieldType(typ)))
	}

	if !isArray {
		return content, minOccurs > 0, nil
	}
	array := schemadoc.NewObject()
	array.Set("type", string(datamodel.FieldTypeArray))
	if minOccurs > 1 {
		array.Set("minItems", minOccurs)
	}
	if maxOccurs != datamodel.MaxOccursUnbounded {
		array.Set("maxItems", maxOccurs)
	}
	if description, ok := content.StringValue("description"); ok {
		content.Delete("description")
		array.Set("description", description)
	}
	array.Set(schemadoc.KeywordItems, content)
	return array, minOccurs > 0, nil
}

// elementContent converts the type of an element or attribute.
func (rd *reader) elementContent(el *etree.Element, pointer string) (*schemadoc.Object, error) {
	var description string
	var inline *schemadoc.Object
	for _, child := range el.ChildElements() {
		if child.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(child.Tag, pointer, "unexpected element outside the XML Schema namespace")
		}
		var err error
		switch child.Tag {
		case "annotation":
			description, _ = documentationText(child)
		case "complexType":
			inline, err = rd.complexType(child, pointer)
		case "simpleType":
			inline, err = rd.simpleType(child, pointer)
		default:
			return nil, xsdUnsupported(child.Tag, pointer, "unsupported element content")
		}
		if err != nil {
			return nil, err
		}
	}

	content := schemadoc.NewObject()
	switch {
	case inline != nil:
		content = inline
	case el.SelectAttr("type") != nil:
		typeName := el.SelectAttrValue("type", "")
		if b, ok := rd.builtin(typeName); ok {
			content.Set("type", string(b.typ))
			if b.format != "" {
				content.Set("format", b.format)
			}
		} else if local, err := rd.userType(typeName, pointer); err != nil {
			return nil, err
		} else {
			content.Set("$ref", schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordDefs, local))
		}
	default:
		content.Set("type", string(datamodel.FieldTypeString))
	}

	if description != "" {
		return withDescription(content, description), nil
	}
	return content, nil
}

func (rd *reader) complexType(ct *etree.Element, pointer string) (*schemadoc.Object, error) {
	for _, attr := range ct.Attr {
		switch attr.Key {
		case "abstract", "mixed", "block", "final":
			return nil, xsdUnsupported(attr.Key, pointer, "unsupported complexType attribute")
		}
	}

	out := schemadoc.NewObject()
	props := schemadoc.NewObject()
	var required []any
	var oneOf []any

	for _, child := range ct.ChildElements() {
		if child.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(child.Tag, pointer, "unexpected element outside the XML Schema namespace")
		}
		var err error
		switch child.Tag {
		case "annotation":
			if text, ok := documentationText(child); ok {
				out.Set("description", text)
			}
		case "sequence", "all":
			oneOf, err = rd.particles(child, pointer, props, &required, oneOf)
		case "choice":
			if oneOf != nil {
				return nil, xsdUnsupported("choice", pointer, "a type can hold one choice")
			}
			oneOf, err = rd.choice(child, pointer)
		case "attribute":
			name := child.SelectAttrValue("name", "")
			attrPointer := schemadoc.MakePointer(pointer, schemadoc.KeywordProperties, name)
			var schema *schemadoc.Object
			schema, err = rd.attribute(child, attrPointer)
			if err == nil {
				props.Set(name, schema)
				if child.SelectAttrValue("use", "optional") == "required" {
					required = append(required, name)
				}
			}
		default:
			return nil, xsdUnsupported(child.Tag, pointer, "unsupported complexType content")
		}
		if err != nil {
			return nil, err
		}
	}

	// a type made of a single choice stays a bare combination
	if props.Len() > 0 || oneOf == nil {
		out.Set("type", string(datamodel.FieldTypeObject))
	}
	if props.Len() > 0 {
		out.Set(schemadoc.KeywordProperties, props)
	}
	if len(required) > 0 {
		out.Set("required", required)
	}
	if oneOf != nil {
		out.Set(string(datamodel.CombinationOneOf), oneOf)
	}
	return reorderDescription(out), nil
}

// particles reads the elements of a sequence into props. Nested sequences are flattened and a
// nested choice becomes the type's oneOf.
func (rd *reader) particles(seq *etree.Element, pointer string, props *schemadoc.Object, required *[]any, oneOf []any) ([]any, error) {
	if err := singleOccurrence(seq, pointer); err != nil {
		return nil, err
	}
	for _, child := range seq.ChildElements() {
		if child.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(child.Tag, pointer, "unexpected element outside the XML Schema namespace")
		}
		switch child.Tag {
		case "annotation":
		case "element":
			name := child.SelectAttrValue("name", "")
			propPointer := schemadoc.MakePointer(pointer, schemadoc.KeywordProperties, name)
			if props.Has(name) {
				return nil, xsdUnsupported("element", propPointer, "duplicate element name")
			}
			schema, isRequired, err := rd.element(child, propPointer)
			if err != nil {
				return nil, err
			}
			props.Set(name, schema)
			if isRequired {
				*required = append(*required, name)
			}
		case "sequence":
			var err error
			if oneOf, err = rd.particles(child, pointer, props, required, oneOf); err != nil {
				return nil, err
			}
		case "choice":
			if oneOf != nil {
				return nil, xsdUnsupported("choice", pointer, "a type can hold one choice")
			}
			var err error
			if oneOf, err = rd.choice(child, pointer); err != nil {
				return nil, err
			}
		default:
			return nil, xsdUnsupported(child.Tag, pointer, "unsupported sequence content")
		}
	}
	return oneOf, nil
}

// choice converts each alternative into a oneOf branch.
func (rd *reader) choice(choice *etree.Element, pointer string) ([]any, error) {
	if err := singleOccurrence(choice, pointer); err != nil {
		return nil, err
	}
	branches := make([]any, 0)
	for _, child := range choice.ChildElements() {
		if child.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(child.Tag, pointer, "unexpected element outside the XML Schema namespace")
		}
		if child.Tag == "annotation" {
			continue
		}
		branchPointer := schemadoc.MakePointer(pointer, string(datamodel.CombinationOneOf), strconv.Itoa(len(branches)))
		props := schemadoc.NewObject()
		var required []any
		switch child.Tag {
		case "element":
			name := child.SelectAttrValue("name", "")
			schema, isRequired, err := rd.element(child, schemadoc.MakePointer(branchPointer, schemadoc.KeywordProperties, name))
			if err != nil {
				return nil, err
			}
			props.Set(name, schema)
			if isRequired {
				required = append(required, name)
			}
		case "sequence":
			nested, err := rd.particles(child, branchPointer, props, &required, nil)
			if err != nil {
				return nil, err
			}
			if nested != nil {
				return nil, xsdUnsupported("choice", branchPointer, "choices cannot nest")
			}
		default:
			return nil, xsdUnsupported(child.Tag, branchPointer, "unsupported choice content")
		}

		branch := schemadoc.NewObject()
		branch.Set(schemadoc.KeywordProperties, props)
		if len(required) > 0 {
			branch.Set("required", required)
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

func (rd *reader) attribute(attr *etree.Element, pointer string) (*schemadoc.Object, error) {
	for _, a := range attr.Attr {
		switch a.Key {
		case "ref", "fixed", "form":
			return nil, xsdUnsupported(a.Key, pointer, "unsupported attribute declaration")
		}
	}
	content, err := rd.elementContent(attr, pointer)
	if err != nil {
		return nil, err
	}
	if _, complex := content.Object(schemadoc.KeywordProperties); complex {
		return nil, xsdUnsupported("attribute", pointer, "attributes must have a simple type")
	}
	if defaultValue := attr.SelectAttr("default"); defaultValue != nil {
		typ, _ := content.StringValue("type")
		content.Set("default", typedValue(defaultValue.Value, datamodel.FieldType(typ)))
	}
	content.Set(AttributeMarker, AttributeMarkerValue)
	return content, nil
}

func (rd *reader) simpleType(st *etree.Element, pointer string) (*schemadoc.Object, error) {
	out := schemadoc.NewObject()
	var restriction *etree.Element
	for _, child := range st.ChildElements() {
		if child.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(child.Tag, pointer, "unexpected element outside the XML Schema namespace")
		}
		switch child.Tag {
		case "annotation":
			if text, ok := documentationText(child); ok {
				out.Set("description", text)
			}
		case "restriction":
			restriction = child
		default:
			// xs:list and xs:union
			return nil, xsdUnsupported(child.Tag, pointer, "unsupported simpleType derivation")
		}
	}
	if restriction == nil {
		return nil, xsdUnsupported("simpleType", pointer, "simple types must be restrictions")
	}

	base := restriction.SelectAttrValue("base", "")
	typ, err := rd.baseType(base, pointer, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	if b, ok := rd.builtin(base); ok {
		out.Set("type", string(b.typ))
		if b.format != "" {
			out.Set("format", b.format)
		}
	} else {
		local, err := rd.userType(base, pointer)
		if err != nil {
			return nil, err
		}
		out.Set("$ref", schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordDefs, local))
	}

	var enum []any
	for _, facet := range restriction.ChildElements() {
		if facet.NamespaceURI() != Namespace {
			return nil, xsdUnsupported(facet.Tag, pointer, "unexpected element outside the XML Schema namespace")
		}
		value := facet.SelectAttrValue("value", "")
		switch facet.Tag {
		case "annotation":
		case "enumeration":
			enum = append(enum, typedValue(value, typ))
			if len(enum) == 1 {
				out.Set("enum", enum)
			}
		case "pattern":
			out.Set("pattern", jsonPattern(value))
		case "length":
			n, err := facetInt(facet, pointer)
			if err != nil {
				return nil, err
			}
			out.Set("minLength", n)
			out.Set("maxLength", n)
		case "minLength", "maxLength":
			n, err := facetInt(facet, pointer)
			if err != nil {
				return nil, err
			}
			out.Set(facet.Tag, n)
		case "fractionDigits":
			n, err := facetInt(facet, pointer)
			if err != nil {
				return nil, err
			}
			out.Set("multipleOf", multipleOf(n))
		default:
			keyword, ok := facetKeywords[facet.Tag]
			if !ok {
				return nil, xsdUnsupported(facet.Tag, pointer, "unsupported facet")
			}
			out.Set(keyword, typedValue(value, typ))
		}
	}
	if enum != nil {
		out.Set("enum", enum)
	}
	return reorderDescription(out), nil
}

// baseType follows restriction bases through named simple types to a built-in type.
func (rd *reader) baseType(base, pointer string, seen map[string]bool) (datamodel.FieldType, error) {
	if b, ok := rd.builtin(base); ok {
		return b.typ, nil
	}
	local, err := rd.userType(base, pointer)
	if err != nil {
		return "", err
	}
	st, ok := rd.simple[local]
	if !ok {
		return "", xsdUnsupported("restriction", pointer, fmt.Sprintf("base %q is not a simple type", base))
	}
	if seen[local] {
		return "", xsdUnsupported("restriction", pointer, "circular restriction")
	}
	seen[local] = true
	var restriction *etree.Element
	for _, child := range st.ChildElements() {
		if isXs(child, "restriction") {
			restriction = child
		}
	}
	if restriction == nil {
		return "", xsdUnsupported("simpleType", pointer, "simple types must be restrictions")
	}
	return rd.baseType(restriction.SelectAttrValue("base", ""), pointer, seen)
}

// builtin resolves a QName in the XML Schema namespace.
func (rd *reader) builtin(qname string) (builtin, bool) {
	prefix, local := splitQName(qname)
	if !rd.prefixes[prefix] {
		return builtin{}, false
	}
	if b, ok := builtinTypes[local]; ok {
		return b, true
	}
	return builtin{typ: datamodel.FieldTypeString}, true
}

// userType returns the local name of a reference to a named type.
func (rd *reader) userType(qname, pointer string) (string, error) {
	_, local := splitQName(qname)
	if local == "" {
		return "", xsdUnsupported("type", pointer, "empty type name")
	}
	return local, nil
}

func splitQName(qname string) (string, string) {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}

func occurs(el *etree.Element, attr, pointer string) (int, error) {
	value := el.SelectAttrValue(attr, "1")
	if value == unbounded {
		return datamodel.MaxOccursUnbounded, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, xsdUnsupported(attr, pointer, fmt.Sprintf("invalid value %q", value))
	}
	return n, nil
}

// singleOccurrence rejects repeated model groups, which have no JSON Schema equivalent.
func singleOccurrence(group *etree.Element, pointer string) error {
	for _, attr := range []string{"minOccurs", "maxOccurs"} {
		if value := group.SelectAttrValue(attr, "1"); value != "1" {
			return xsdUnsupported(attr, pointer, fmt.Sprintf("repeated xs:%s is not supported", group.Tag))
		}
	}
	return nil
}

func facetInt(facet *etree.Element, pointer string) (int, error) {
	value := facet.SelectAttrValue("value", "")
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, xsdUnsupported(facet.Tag, pointer, fmt.Sprintf("invalid value %q", value))
	}
	return n, nil
}

func documentationText(annotation *etree.Element) (string, bool) {
	for _, child := range annotation.ChildElements() {
		if isXs(child, "documentation") {
			return strings.TrimSpace(child.Text()), true
		}
	}
	return "", false
}

func isXs(el *etree.Element, local string) bool {
	return el.Tag == local && el.NamespaceURI() == Namespace
}

// withDescription returns content with description placed after the type keywords.
func withDescription(content *schemadoc.Object, description string) *schemadoc.Object {
	content.Set("description", description)
	return reorderDescription(content)
}

// reorderDescription moves "description" right after "type", where the JSON builder writes it.
func reorderDescription(schema *schemadoc.Object) *schemadoc.Object {
	description, ok := schema.StringValue("description")
	if !ok {
		return schema
	}
	out := schemadoc.NewObject()
	if typ, ok := schema.Get("type"); ok {
		out.Set("type", typ)
	}
	out.Set("description", description)
	schema.Each(func(key string, value any) {
		if !out.Has(key) {
			out.Set(key, value)
		}
	})
	return out
}

func xsdUnsupported(keyword, pointer, message string) *datamodel.SchemaConversionError {
	return datamodel.NewUnsupportedConstructError(keyword, pointer, message).
		WithCode(datamodel.ErrCodeXsdToJsonSchemaConvert)
}
