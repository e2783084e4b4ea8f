package uischema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// Editor applies graph operations to a UiSchema. Every operation works on a copy; a pointer
// that is not in the collection leaves the input unchanged and it is returned as is.
type Editor struct{}

var _ datamodel.SchemaEditor = (*Editor)(nil)

// deletedBranchPrefix names the parked last segment of references into a deleted combination
// branch. Branch segments are always numeric.
const deletedBranchPrefix = "deleted-"

// NewEditor creates an Editor.
func NewEditor() *Editor {
	return &Editor{}
}

// AddProperty adds a property below parentPointer. A name already used by a sibling gets a
// numeric suffix. Returns the new pointer.
func (e *Editor) AddProperty(ui *datamodel.UiSchema, parentPointer, name string, props *datamodel.UiSchemaNode) (*datamodel.UiSchema, string) {
	parent := ui.Node(parentPointer)
	if parent == nil || parent.ObjectKind != datamodel.ObjectKindField || name == "" {
		return ui, ""
	}

	out := ui.Clone()
	parent = out.Node(parentPointer)
	pointer := uniquePointer(out, schemadoc.MakePointer(parent.ContentBase(), schemadoc.KeywordProperties), name)

	node := templateNode(props, pointer)
	out.Put(node)
	insertChild(parent, pointer)
	if parent.FieldType != datamodel.FieldTypeObject {
		parent.FieldType = datamodel.FieldTypeObject
		parent.Restrictions = keepArrayRestrictions(parent)
		parent.Enum = nil
	}
	return out, pointer
}

// AddDefinition adds a root-level definition. Returns the new pointer.
func (e *Editor) AddDefinition(ui *datamodel.UiSchema, name string, props *datamodel.UiSchemaNode) (*datamodel.UiSchema, string) {
	if ui.Root() == nil || name == "" {
		return ui, ""
	}

	out := ui.Clone()
	root := out.Root()
	pointer := uniquePointer(out, definitionsBase(root), name)

	node := templateNode(props, pointer)
	node.IsRequired = false
	out.Put(node)
	insertChild(root, pointer)
	return out, pointer
}

// AddCombinationItem appends a branch to the combination node at pointer.
func (e *Editor) AddCombinationItem(ui *datamodel.UiSchema, pointer string, props *datamodel.UiSchemaNode) (*datamodel.UiSchema, string) {
	node := ui.Node(pointer)
	if node == nil || node.ObjectKind != datamodel.ObjectKindCombination {
		return ui, ""
	}

	out := ui.Clone()
	node = out.Node(pointer)
	base := schemadoc.MakePointer(node.ContentBase(), string(node.FieldType))
	index := 0
	for _, child := range node.Children {
		if strings.HasPrefix(child, base+"/") {
			index++
		}
	}
	itemPointer := schemadoc.MakePointer(base, strconv.Itoa(index))
	for out.Has(itemPointer) {
		index++
		itemPointer = schemadoc.MakePointer(base, strconv.Itoa(index))
	}

	item := templateNode(props, itemPointer)
	item.IsCombinationItem = true
	item.IsRequired = false
	out.Put(item)
	node.Children = append(node.Children, itemPointer)
	return out, itemPointer
}

// RenameNode gives the node at pointer a new last segment. Descendant pointers and every
// reference to the node or its descendants are rewritten with it, or nothing changes.
func (e *Editor) RenameNode(ui *datamodel.UiSchema, pointer, newName string) (*datamodel.UiSchema, string) {
	node := ui.Node(pointer)
	if node == nil || pointer == schemadoc.RootPointer || node.IsCombinationItem || newName == "" {
		return ui, ""
	}
	newPointer := schemadoc.ReplaceLastSegment(pointer, newName)
	if newPointer == pointer {
		return ui, pointer
	}
	if ui.Has(newPointer) {
		return ui, pointer
	}

	out, ok := rewrite(ui, prefixRewriter(pointer, newPointer))
	if !ok {
		return ui, pointer
	}
	return out, newPointer
}

// DeleteNode removes the node at pointer with its descendants and detaches it from its parent.
// References to the removed nodes are left dangling.
func (e *Editor) DeleteNode(ui *datamodel.UiSchema, pointer string) *datamodel.UiSchema {
	if !ui.Has(pointer) || pointer == schemadoc.RootPointer {
		return ui
	}

	out := ui.Clone()
	removeSubtree(out, pointer)
	parent := out.Parent(pointer)
	if parent == nil {
		return out
	}
	parent.Children = removeString(parent.Children, pointer)
	if parent.ObjectKind == datamodel.ObjectKindCombination {
		return renumberBranches(detachReferences(out, pointer), parent.Pointer)
	}
	return out
}

// detachReferences moves references into the removed branch at pointer onto a segment that no
// branch can take, so renumbering the remaining branches leaves them dangling.
func detachReferences(ui *datamodel.UiSchema, pointer string) *datamodel.UiSchema {
	_, index := schemadoc.SplitPointer(pointer)
	parked := schemadoc.ReplaceLastSegment(pointer, deletedBranchPrefix+index)
	out, ok := rewrite(ui, prefixRewriter(pointer, parked))
	if !ok {
		return ui
	}
	return out
}

// SetReference turns the node at pointer into a reference to target. The node's own children
// are dropped; the target's type is copied for display.
func (e *Editor) SetReference(ui *datamodel.UiSchema, pointer, target string) *datamodel.UiSchema {
	node := ui.Node(pointer)
	targetNode := ui.Node(target)
	if node == nil || targetNode == nil || pointer == schemadoc.RootPointer || schemadoc.HasPrefix(target, pointer) {
		return ui
	}

	out := ui.Clone()
	node = out.Node(pointer)
	removeChildren(out, node)
	node.ObjectKind = datamodel.ObjectKindReference
	node.Reference = target
	node.FieldType = targetNode.FieldType
	node.ImplicitType = true
	node.IsNillable = false
	node.Enum = nil
	node.Restrictions = keepArrayRestrictions(node)
	return out
}

// SetType changes the node's type. Combination kinds make it a combination node; the array
// type toggles the array flag instead.
func (e *Editor) SetType(ui *datamodel.UiSchema, pointer string, fieldType datamodel.FieldType) *datamodel.UiSchema {
	node := ui.Node(pointer)
	if node == nil || fieldType == "" {
		return ui
	}
	if fieldType == datamodel.FieldTypeArray {
		if node.IsArray {
			return ui
		}
		return e.ToggleArray(ui, pointer)
	}

	out := ui.Clone()
	node = out.Node(pointer)
	node.Reference = ""
	node.Enum = nil
	node.Restrictions = keepArrayRestrictions(node)

	if fieldType.IsCombination() {
		if node.ObjectKind != datamodel.ObjectKindCombination {
			removeChildren(out, node)
		} else if node.FieldType != fieldType {
			return e.SetCombinationKind(out, pointer, datamodel.CombinationKind(fieldType))
		}
		node.ObjectKind = datamodel.ObjectKindCombination
		node.FieldType = fieldType
		node.ImplicitType = true
		return out
	}

	if node.ObjectKind == datamodel.ObjectKindCombination || fieldType != datamodel.FieldTypeObject {
		removeChildren(out, node)
	}
	node.ObjectKind = datamodel.ObjectKindField
	node.FieldType = fieldType
	node.ImplicitType = false
	return out
}

// SetCombinationKind switches the combination keyword of the node at pointer. The branch
// pointers are renamed with it.
func (e *Editor) SetCombinationKind(ui *datamodel.UiSchema, pointer string, kind datamodel.CombinationKind) *datamodel.UiSchema {
	node := ui.Node(pointer)
	if node == nil || node.ObjectKind != datamodel.ObjectKindCombination || !kind.Valid() {
		return ui
	}
	if node.FieldType == datamodel.FieldType(kind) {
		return ui
	}

	from := schemadoc.MakePointer(node.ContentBase(), string(node.FieldType))
	to := schemadoc.MakePointer(node.ContentBase(), string(kind))
	out, ok := rewrite(ui, prefixRewriter(from, to))
	if !ok {
		return ui
	}
	out.Node(pointer).FieldType = datamodel.FieldType(kind)
	return out
}

// ReorderSiblings swaps two children of the same parent.
func (e *Editor) ReorderSiblings(ui *datamodel.UiSchema, pointerA, pointerB string) *datamodel.UiSchema {
	if !ui.Has(pointerA) || !ui.Has(pointerB) || pointerA == pointerB {
		return ui
	}
	parent := ui.Parent(pointerA)
	if parent == nil || !parent.HasChild(pointerB) {
		return ui
	}

	out := ui.Clone()
	parent = out.Node(parent.Pointer)
	i, j := indexOf(parent.Children, pointerA), indexOf(parent.Children, pointerB)
	parent.Children[i], parent.Children[j] = parent.Children[j], parent.Children[i]
	if parent.ObjectKind == datamodel.ObjectKindCombination {
		return renumberBranches(out, parent.Pointer)
	}
	return out
}

// SetRestriction sets one restriction keyword. A nil value removes it.
func (e *Editor) SetRestriction(ui *datamodel.UiSchema, pointer, key string, value any) *datamodel.UiSchema {
	if !ui.Has(pointer) || !datamodel.IsRestrictionKey(key) {
		return ui
	}
	out := ui.Clone()
	node := out.Node(pointer)
	if value == nil {
		node.Restrictions.Delete(key)
	} else {
		node.Restrictions.Set(key, value)
	}
	return out
}

// SetRestrictions replaces all restrictions. Keys that are not restriction keywords and nil
// values are ignored.
func (e *Editor) SetRestrictions(ui *datamodel.UiSchema, pointer string, restrictions map[string]any) *datamodel.UiSchema {
	if !ui.Has(pointer) {
		return ui
	}
	out := ui.Clone()
	node := out.Node(pointer)
	node.Restrictions = schemadoc.NewObject()
	for _, key := range datamodel.RestrictionKeys {
		if value, ok := restrictions[key]; ok && value != nil {
			node.Restrictions.Set(key, value)
		}
	}
	return out
}

// AddEnum replaces oldValue with value, or appends value when oldValue is nil or absent.
// Values already present are not added twice.
func (e *Editor) AddEnum(ui *datamodel.UiSchema, pointer string, value, oldValue any) *datamodel.UiSchema {
	node := ui.Node(pointer)
	if node == nil || value == nil {
		return ui
	}
	existing := enumIndex(node.Enum, value)
	oldIndex := -1
	if oldValue != nil {
		oldIndex = enumIndex(node.Enum, oldValue)
	}
	if existing >= 0 && existing != oldIndex {
		return ui
	}

	out := ui.Clone()
	node = out.Node(pointer)
	if oldIndex >= 0 {
		node.Enum[oldIndex] = value
	} else {
		node.Enum = append(node.Enum, value)
	}
	return out
}

// DeleteEnum removes value from the node's enum.
func (e *Editor) DeleteEnum(ui *datamodel.UiSchema, pointer string, value any) *datamodel.UiSchema {
	node := ui.Node(pointer)
	if node == nil || enumIndex(node.Enum, value) < 0 {
		return ui
	}
	out := ui.Clone()
	node = out.Node(pointer)
	kept := make([]any, 0, len(node.Enum))
	for _, v := range node.Enum {
		if !schemadoc.Equal(v, value) {
			kept = append(kept, v)
		}
	}
	node.Enum = kept
	if len(kept) == 0 {
		node.Enum = nil
	}
	return out
}

// SetTitle sets the node title.
func (e *Editor) SetTitle(ui *datamodel.UiSchema, pointer, title string) *datamodel.UiSchema {
	return e.update(ui, pointer, func(node *datamodel.UiSchemaNode) { node.Title = title })
}

// SetDescription sets the node description.
func (e *Editor) SetDescription(ui *datamodel.UiSchema, pointer, description string) *datamodel.UiSchema {
	return e.update(ui, pointer, func(node *datamodel.UiSchemaNode) { node.Description = description })
}

// SetRequired marks a property as required. Only properties can be required.
func (e *Editor) SetRequired(ui *datamodel.UiSchema, pointer string, required bool) *datamodel.UiSchema {
	if ContainerKeyword(pointer) != schemadoc.KeywordProperties {
		return ui
	}
	return e.update(ui, pointer, func(node *datamodel.UiSchemaNode) { node.IsRequired = required })
}

// ToggleArray switches the node between a single value and an array of it. The node's content
// moves between pointer and pointer/items.
func (e *Editor) ToggleArray(ui *datamodel.UiSchema, pointer string) *datamodel.UiSchema {
	node := ui.Node(pointer)
	if node == nil || pointer == schemadoc.RootPointer {
		return ui
	}

	itemsBase := schemadoc.MakePointer(pointer, schemadoc.KeywordItems)
	var fn func(string) string
	if node.IsArray {
		fn = func(p string) string {
			if strings.HasPrefix(p, itemsBase+"/") {
				return pointer + p[len(itemsBase):]
			}
			return p
		}
	} else {
		fn = func(p string) string {
			if strings.HasPrefix(p, pointer+"/") {
				return itemsBase + p[len(pointer):]
			}
			return p
		}
	}

	out, ok := rewrite(ui, fn)
	if !ok {
		return ui
	}
	node = out.Node(pointer)
	if node.IsArray {
		node.IsArray = false
		restrictions := schemadoc.NewObject()
		node.Restrictions.Each(func(key string, value any) {
			if !datamodel.IsArrayRestrictionKey(key) {
				restrictions.Set(key, value)
			}
		})
		node.Restrictions = restrictions
		node.ItemsCustom.Each(func(key string, value any) {
			if !node.Custom.Has(key) {
				node.Custom.Set(key, value)
			}
		})
		node.ItemsCustom = nil
	} else {
		node.IsArray = true
		node.ItemsCustom = schemadoc.NewObject()
	}
	return out
}

// PromoteToType moves the content of the node at pointer into a new definition named after
// the node and makes the node reference it. Returns the definition pointer.
func (e *Editor) PromoteToType(ui *datamodel.UiSchema, pointer string) (*datamodel.UiSchema, string) {
	node := ui.Node(pointer)
	if node == nil || ui.Root() == nil || pointer == schemadoc.RootPointer ||
		node.ObjectKind == datamodel.ObjectKindReference || ContainerKeyword(pointer) != schemadoc.KeywordProperties {
		return ui, ""
	}

	defPointer := uniquePointer(ui, definitionsBase(ui.Root()), node.Name())
	contentBase := node.ContentBase()
	out, ok := rewrite(ui, func(p string) string {
		if strings.HasPrefix(p, contentBase+"/") {
			return defPointer + p[len(contentBase):]
		}
		return p
	})
	if !ok {
		return ui, ""
	}

	property := out.Node(pointer)
	def := property.Clone()
	def.Pointer = defPointer
	def.IsArray = false
	def.IsRequired = false
	def.IsCombinationItem = false
	def.Title = ""
	def.Description = ""
	def.Restrictions = schemadoc.NewObject()
	property.Restrictions.Each(func(key string, value any) {
		if !property.IsArray || !datamodel.IsArrayRestrictionKey(key) {
			def.Restrictions.Set(key, value)
		}
	})
	if property.IsArray {
		def.Custom = property.ItemsCustom.Clone()
		if def.Custom == nil {
			def.Custom = schemadoc.NewObject()
		}
		def.ItemsCustom = nil
	} else {
		def.Custom = schemadoc.NewObject()
	}

	property.ObjectKind = datamodel.ObjectKindReference
	property.Reference = defPointer
	property.Children = []string{}
	property.ImplicitType = true
	property.IsNillable = false
	property.Enum = nil
	property.Restrictions = keepArrayRestrictions(property)
	if property.IsArray {
		property.ItemsCustom = schemadoc.NewObject()
	} else {
		def.Custom = property.Custom
		property.Custom = schemadoc.NewObject()
	}

	out.Put(def)
	insertChild(out.Root(), defPointer)
	return out, defPointer
}

func (e *Editor) update(ui *datamodel.UiSchema, pointer string, fn func(node *datamodel.UiSchemaNode)) *datamodel.UiSchema {
	if !ui.Has(pointer) {
		return ui
	}
	out := ui.Clone()
	fn(out.Node(pointer))
	return out
}

// rewrite copies ui with fn applied to every node pointer, child pointer and reference. ok is
// false when two nodes would end up sharing a pointer.
func rewrite(ui *datamodel.UiSchema, fn func(string) string) (*datamodel.UiSchema, bool) {
	out := datamodel.NewUiSchema()
	for _, node := range ui.Nodes() {
		n := node.Clone()
		n.Pointer = fn(n.Pointer)
		for i, child := range n.Children {
			n.Children[i] = fn(child)
		}
		if n.Reference != "" {
			n.Reference = fn(n.Reference)
		}
		if out.Has(n.Pointer) {
			return ui, false
		}
		out.Put(n)
	}
	return out, true
}

func prefixRewriter(from, to string) func(string) string {
	return func(p string) string {
		rewritten, _ := schemadoc.ReplacePrefix(p, from, to)
		return rewritten
	}
}

// renumberBranches makes the branch pointers of a combination match their positions. Misplaced
// branches are parked under temporary segments first so that swapped indexes never collide.
func renumberBranches(ui *datamodel.UiSchema, pointer string) *datamodel.UiSchema {
	node := ui.Node(pointer)
	base := schemadoc.MakePointer(node.ContentBase(), string(node.FieldType))

	out := ui
	var ok bool
	for i, child := range node.Children {
		if child == schemadoc.MakePointer(base, strconv.Itoa(i)) {
			continue
		}
		if out, ok = rewrite(out, prefixRewriter(child, schemadoc.MakePointer(base, "_"+strconv.Itoa(i)))); !ok {
			return ui
		}
	}
	for i, child := range out.Node(pointer).Children {
		if !strings.HasPrefix(child, base+"/_") {
			continue
		}
		if out, ok = rewrite(out, prefixRewriter(child, schemadoc.MakePointer(base, strconv.Itoa(i)))); !ok {
			return ui
		}
	}
	return out
}

func templateNode(props *datamodel.UiSchemaNode, pointer string) *datamodel.UiSchemaNode {
	var node *datamodel.UiSchemaNode
	if props == nil {
		node = datamodel.NewUiSchemaNode(pointer)
		node.FieldType = datamodel.FieldTypeString
		node.ImplicitType = false
	} else {
		node = props.Clone()
		node.Pointer = pointer
	}
	node.Children = []string{}
	node.IsCombinationItem = false
	if node.IsArray && node.ItemsCustom == nil {
		node.ItemsCustom = schemadoc.NewObject()
	}
	return node
}

// uniquePointer returns base/name, or base/nameN with the smallest N that is free.
// definitionsBase is the container of root definitions: "definitions" when the document
// already uses it, "$defs" otherwise.
func definitionsBase(root *datamodel.UiSchemaNode) string {
	for _, child := range root.Children {
		if ContainerKeyword(child) == schemadoc.KeywordDefinitions {
			return schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordDefinitions)
		}
	}
	return schemadoc.MakePointer(schemadoc.RootPointer, schemadoc.KeywordDefs)
}

func uniquePointer(ui *datamodel.UiSchema, base, name string) string {
	pointer := schemadoc.MakePointer(base, name)
	for i := 1; ui.Has(pointer); i++ {
		pointer = schemadoc.MakePointer(base, fmt.Sprintf("%s%d", name, i))
	}
	return pointer
}

// insertChild adds pointer after the last sibling held by the same keyword. Properties come
// before definitions when no such sibling exists.
func insertChild(parent *datamodel.UiSchemaNode, pointer string) {
	keyword := ContainerKeyword(pointer)
	at := -1
	for i, child := range parent.Children {
		if ContainerKeyword(child) == keyword {
			at = i
		}
	}
	if at < 0 {
		if keyword == schemadoc.KeywordDefs || keyword == schemadoc.KeywordDefinitions {
			at = len(parent.Children) - 1
		} else {
			for i, child := range parent.Children {
				k := ContainerKeyword(child)
				if k == schemadoc.KeywordDefs || k == schemadoc.KeywordDefinitions {
					break
				}
				at = i
			}
		}
	}
	parent.Children = append(parent.Children, "")
	copy(parent.Children[at+2:], parent.Children[at+1:])
	parent.Children[at+1] = pointer
}

func removeSubtree(ui *datamodel.UiSchema, pointer string) {
	for _, descendant := range ui.Descendants(pointer) {
		ui.Remove(descendant)
	}
	ui.Remove(pointer)
}

func removeChildren(ui *datamodel.UiSchema, node *datamodel.UiSchemaNode) {
	for _, child := range node.Children {
		removeSubtree(ui, child)
	}
	node.Children = []string{}
}

func keepArrayRestrictions(node *datamodel.UiSchemaNode) *schemadoc.Object {
	kept := schemadoc.NewObject()
	if !node.IsArray {
		return kept
	}
	node.Restrictions.Each(func(key string, value any) {
		if datamodel.IsArrayRestrictionKey(key) {
			kept.Set(key, value)
		}
	})
	return kept
}

func removeString(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != value {
			out = append(out, item)
		}
	}
	return out
}

func indexOf(list []string, value string) int {
	for i, item := range list {
		if item == value {
			return i
		}
	}
	return -1
}

func enumIndex(values []any, value any) int {
	for i, v := range values {
		if schemadoc.Equal(v, value) {
			return i
		}
	}
	return -1
}
