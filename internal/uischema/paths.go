package uischema

import (
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// BindingPaths returns the dot paths of the leaf properties reachable from the root. References
// are followed into their targets; definitions are only reached that way. Combination branches
// add no path segment.
func BindingPaths(ui *datamodel.UiSchema) []string {
	root := ui.Root()
	if root == nil {
		return nil
	}
	p := &pathCollector{ui: ui, stack: make(map[string]bool)}
	p.content(root, "")
	return p.paths
}

type pathCollector struct {
	ui    *datamodel.UiSchema
	stack map[string]bool
	paths []string
}

func (p *pathCollector) content(node *datamodel.UiSchemaNode, prefix string) {
	target := p.resolve(node)
	if target == nil || p.stack[target.Pointer] {
		return
	}
	p.stack[target.Pointer] = true
	defer delete(p.stack, target.Pointer)

	for _, pointer := range target.Children {
		child := p.ui.Node(pointer)
		if child == nil {
			continue
		}
		keyword := ContainerKeyword(pointer)
		switch {
		case keyword == schemadoc.KeywordProperties:
			p.property(child, joinPath(prefix, child.Name()))
		case datamodel.CombinationKind(keyword).Valid():
			p.content(child, prefix)
		}
	}
}

func (p *pathCollector) property(node *datamodel.UiSchemaNode, path string) {
	target := p.resolve(node)
	if target == nil || !isComplex(target) {
		p.paths = append(p.paths, path)
		return
	}
	p.content(node, path)
}

// resolve follows references to the node that holds the content. Nil for dangling references
// and reference cycles.
func (p *pathCollector) resolve(node *datamodel.UiSchemaNode) *datamodel.UiSchemaNode {
	seen := make(map[string]bool)
	for node != nil && node.ObjectKind == datamodel.ObjectKindReference {
		if seen[node.Pointer] {
			return nil
		}
		seen[node.Pointer] = true
		node = p.ui.Node(node.Reference)
	}
	return node
}

func isComplex(node *datamodel.UiSchemaNode) bool {
	return node.ObjectKind == datamodel.ObjectKindCombination || node.FieldType == datamodel.FieldTypeObject
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
