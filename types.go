package datamodel

import (
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/datamodel/schemadoc"
)

// ObjectKind tells how a node's content is expressed.
type ObjectKind string

const (
	ObjectKindField       ObjectKind = "field"
	ObjectKindReference   ObjectKind = "reference"
	ObjectKindCombination ObjectKind = "combination"
)

// FieldType is the displayed type of a node. Combination nodes carry their combination kind.
type FieldType string

const (
	FieldTypeObject  FieldType = "object"
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
	FieldTypeNull    FieldType = "null"
	FieldTypeOneOf   FieldType = FieldType(CombinationOneOf)
	FieldTypeAllOf   FieldType = FieldType(CombinationAllOf)
	FieldTypeAnyOf   FieldType = FieldType(CombinationAnyOf)
)

// IsCombination reports whether the field type names a combination kind.
func (f FieldType) IsCombination() bool {
	return CombinationKind(f).Valid()
}

// IsPrimitive reports whether the field type is a scalar JSON type.
func (f FieldType) IsPrimitive() bool {
	switch f {
	case FieldTypeString, FieldTypeInteger, FieldTypeNumber, FieldTypeBoolean, FieldTypeNull:
		return true
	}
	return false
}

// CombinationKind is one of the JSON Schema combination keywords.
type CombinationKind string

const (
	CombinationOneOf CombinationKind = "oneOf"
	CombinationAllOf CombinationKind = "allOf"
	CombinationAnyOf CombinationKind = "anyOf"
)

// CombinationKinds lists the combination keywords in lookup order.
var CombinationKinds = []CombinationKind{CombinationAllOf, CombinationAnyOf, CombinationOneOf}

// Valid reports whether k is a known combination keyword.
func (k CombinationKind) Valid() bool {
	switch k {
	case CombinationOneOf, CombinationAllOf, CombinationAnyOf:
		return true
	}
	return false
}

// ArrayRestrictionKeys are restrictions that belong to the array rather than its items.
var ArrayRestrictionKeys = []string{"minItems", "maxItems", "uniqueItems"}

// RestrictionKeys are the keywords kept in UiSchemaNode.Restrictions.
var RestrictionKeys = []string{
	"minLength", "maxLength", "pattern", "format",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "multipleOf",
	"minItems", "maxItems", "uniqueItems",
	"minProperties", "maxProperties",
}

// IsRestrictionKey reports whether key is kept in UiSchemaNode.Restrictions.
func IsRestrictionKey(key string) bool {
	for _, k := range RestrictionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsArrayRestrictionKey reports whether key restricts the array itself.
func IsArrayRestrictionKey(key string) bool {
	for _, k := range ArrayRestrictionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// UiSchemaNode is one addressable construct of the editable schema graph.
type UiSchemaNode struct {
	Pointer           string            `json:"pointer"`
	ObjectKind        ObjectKind        `json:"objectKind"`
	FieldType         FieldType         `json:"fieldType,omitempty"`
	Reference         string            `json:"reference,omitempty"`
	Children          []string          `json:"children"`
	IsArray           bool              `json:"isArray"`
	IsRequired        bool              `json:"isRequired"`
	IsNillable        bool              `json:"isNillable"`
	IsCombinationItem bool              `json:"isCombinationItem"`
	ImplicitType      bool              `json:"implicitType"`
	Restrictions      *schemadoc.Object `json:"restrictions"`
	Enum              []any             `json:"enum,omitempty"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description,omitempty"`
	// Custom holds keywords with no dedicated field, written back verbatim.
	Custom *schemadoc.Object `json:"custom"`
	// ItemsCustom is Custom for the items schema of an array node.
	ItemsCustom *schemadoc.Object `json:"itemsCustom,omitempty"`
}

// NewUiSchemaNode returns a field node with no content at pointer.
func NewUiSchemaNode(pointer string) *UiSchemaNode {
	return &UiSchemaNode{
		Pointer:      pointer,
		ObjectKind:   ObjectKindField,
		Children:     []string{},
		ImplicitType: true,
		Restrictions: schemadoc.NewObject(),
		Custom:       schemadoc.NewObject(),
	}
}

// Clone returns a deep copy of the node.
func (n *UiSchemaNode) Clone() *UiSchemaNode {
	out := *n
	out.Children = append([]string{}, n.Children...)
	out.Restrictions = cloneOrEmpty(n.Restrictions)
	out.Custom = cloneOrEmpty(n.Custom)
	if n.ItemsCustom != nil {
		out.ItemsCustom = n.ItemsCustom.Clone()
	}
	if n.Enum != nil {
		out.Enum = make([]any, len(n.Enum))
		for i, v := range n.Enum {
			out.Enum[i] = schemadoc.CloneValue(v)
		}
	}
	return &out
}

func cloneOrEmpty(obj *schemadoc.Object) *schemadoc.Object {
	if obj == nil || obj.OrderedMap == nil {
		return schemadoc.NewObject()
	}
	return obj.Clone()
}

// Name returns the unescaped last pointer segment.
func (n *UiSchemaNode) Name() string {
	_, name := schemadoc.SplitPointer(n.Pointer)
	return name
}

// ContentBase is the pointer under which the node's children live. Array nodes keep their
// content under "items".
func (n *UiSchemaNode) ContentBase() string {
	if n.IsArray {
		return schemadoc.MakePointer(n.Pointer, schemadoc.KeywordItems)
	}
	return n.Pointer
}

// HasChild reports whether pointer is one of the node's children.
func (n *UiSchemaNode) HasChild(pointer string) bool {
	for _, child := range n.Children {
		if child == pointer {
			return true
		}
	}
	return false
}

// UiSchema is the pointer-keyed node arena. Children are ordered pointer lists on each node;
// references are plain pointers that may dangle.
type UiSchema struct {
	nodes map[string]*UiSchemaNode
	order []string
}

// NewUiSchema builds an arena from nodes. Later nodes replace earlier ones with the same pointer.
func NewUiSchema(nodes ...*UiSchemaNode) *UiSchema {
	s := &UiSchema{nodes: make(map[string]*UiSchemaNode, len(nodes))}
	for _, node := range nodes {
		s.Put(node)
	}
	return s
}

// Node returns the node at pointer, or nil.
func (s *UiSchema) Node(pointer string) *UiSchemaNode {
	if s == nil {
		return nil
	}
	return s.nodes[pointer]
}

// Has reports whether a node exists at pointer.
func (s *UiSchema) Has(pointer string) bool {
	return s.Node(pointer) != nil
}

// Root returns the root node.
func (s *UiSchema) Root() *UiSchemaNode {
	return s.Node(schemadoc.RootPointer)
}

// Len returns the number of nodes.
func (s *UiSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Nodes returns the nodes in insertion order.
func (s *UiSchema) Nodes() []*UiSchemaNode {
	if s == nil {
		return nil
	}
	out := make([]*UiSchemaNode, 0, len(s.order))
	for _, pointer := range s.order {
		out = append(out, s.nodes[pointer])
	}
	return out
}

// Pointers returns all pointers in insertion order.
func (s *UiSchema) Pointers() []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s.order...)
}

// Put inserts node or replaces the node with the same pointer in place.
func (s *UiSchema) Put(node *UiSchemaNode) {
	if _, exists := s.nodes[node.Pointer]; !exists {
		s.order = append(s.order, node.Pointer)
	}
	s.nodes[node.Pointer] = node
}

// Remove drops the node at pointer. Parent children lists are left to the caller.
func (s *UiSchema) Remove(pointer string) {
	if _, exists := s.nodes[pointer]; !exists {
		return
	}
	delete(s.nodes, pointer)
	for i, p := range s.order {
		if p == pointer {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Parent returns the node listing pointer among its children.
func (s *UiSchema) Parent(pointer string) *UiSchemaNode {
	for _, p := range s.order {
		if s.nodes[p].HasChild(pointer) {
			return s.nodes[p]
		}
	}
	return nil
}

// Descendants returns the pointers reachable from pointer through children lists, depth-first.
func (s *UiSchema) Descendants(pointer string) []string {
	var out []string
	node := s.Node(pointer)
	if node == nil {
		return nil
	}
	for _, child := range node.Children {
		out = append(out, child)
		out = append(out, s.Descendants(child)...)
	}
	return out
}

// Clone deep-copies the arena.
func (s *UiSchema) Clone() *UiSchema {
	out := &UiSchema{nodes: make(map[string]*UiSchemaNode, s.Len())}
	for _, node := range s.Nodes() {
		out.Put(node.Clone())
	}
	return out
}

// MarshalJSON encodes the arena as a node list.
func (s *UiSchema) MarshalJSON() ([]byte, error) {
	nodes := s.Nodes()
	if nodes == nil {
		nodes = []*UiSchemaNode{}
	}
	return json.Marshal(nodes)
}

// UnmarshalJSON decodes a node list.
func (s *UiSchema) UnmarshalJSON(data []byte) error {
	var nodes []*UiSchemaNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("decode ui schema: %w", err)
	}
	*s = *NewUiSchema(nodes...)
	return nil
}

// XsdValueType is the value type of a metadata field as seen by XML consumers.
type XsdValueType string

const (
	XsdValueTypeString   XsdValueType = "String"
	XsdValueTypeInteger  XsdValueType = "Integer"
	XsdValueTypeInt      XsdValueType = "Int"
	XsdValueTypeLong     XsdValueType = "Long"
	XsdValueTypeDecimal  XsdValueType = "Decimal"
	XsdValueTypeDouble   XsdValueType = "Double"
	XsdValueTypeBoolean  XsdValueType = "Boolean"
	XsdValueTypeDate     XsdValueType = "Date"
	XsdValueTypeDateTime XsdValueType = "DateTime"
	XsdValueTypeTime     XsdValueType = "Time"
	XsdValueTypeAnyURI   XsdValueType = "AnyURI"
)

// MaxOccursUnbounded is the MaxOccurs value for repeating fields without maxItems.
const MaxOccursUnbounded = 99999

// MetadataModelField is one bindable leaf of a data model.
type MetadataModelField struct {
	DataBindingName   string       `json:"dataBindingName"`
	JsonSchemaPointer string       `json:"jsonSchemaPointer"`
	XmlSchemaXPath    string       `json:"xmlSchemaXPath"`
	MinOccurs         int          `json:"minOccurs"`
	MaxOccurs         int          `json:"maxOccurs"`
	XsdValueType      XsdValueType `json:"xsdValueType"`
	IsReadOnly        bool         `json:"isReadOnly"`
}

// ModelMetadata is the derived metadata document written next to a schema.
type ModelMetadata struct {
	ModelName string               `json:"modelName"`
	Fields    []MetadataModelField `json:"fields"`
}

// DataBindingNames returns the binding names of all fields.
func (m *ModelMetadata) DataBindingNames() []string {
	out := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		out = append(out, f.DataBindingName)
	}
	return out
}
