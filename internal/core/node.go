package core

import "strings"

// Node is one element of an XML record.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Attr returns the value of an attribute or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// Child returns the first child element with the given name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// IsLeaf reports whether the element has no child elements.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Values returns the attributes and the trimmed text of all leaf children
// as one flat map. Leaf children win over attributes of the same name.
func (n *Node) Values() map[string]string {
	m := make(map[string]string, len(n.Attrs)+len(n.Children))
	for k, v := range n.Attrs {
		m[k] = v
	}
	for _, c := range n.Children {
		if c.IsLeaf() {
			m[c.Name] = strings.TrimSpace(c.Text)
		}
	}
	return m
}
