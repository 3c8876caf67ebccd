// Package dom defines the capability surface the capture layer records
// through. Browser globals (document, window, history) are reached only via
// the Page interface, so every watcher can run against a real page bridge or
// an in-memory fake without change.
package dom

import "strings"

// NodeKind identifies a node's DOM class.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
	CommentNode
)

// Node is one node of the observed document tree. The capture layer never
// owns nodes; it holds them only for the duration of a callback, and any
// longer-lived association (the identity registry) is weak.
type Node struct {
	Kind  NodeKind
	Tag   string // lowercase tag name for elements
	Attrs map[string]string
	Text  string // character data for text/comment nodes

	// Live form-control state, meaningful for input/textarea/select.
	Value         string
	Checked       bool
	SelectedIndex int
	Options       []string // select option labels, index-aligned

	parent   *Node
	children []*Node
}

// NewElement creates an element node with the given lowercase tag.
func NewElement(tag string, attrs map[string]string) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Node{Kind: ElementNode, Tag: strings.ToLower(tag), Attrs: attrs}
}

// NewText creates a text node.
func NewText(text string) *Node {
	return &Node{Kind: TextNode, Text: text}
}

// NewComment creates a comment node.
func NewComment(text string) *Node {
	return &Node{Kind: CommentNode, Text: text}
}

// Parent returns the node's parent, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in document order. The returned
// slice is the live backing array; callers must not mutate it.
func (n *Node) Children() []*Node { return n.children }

// Attr returns the named attribute value for element nodes.
func (n *Node) Attr(name string) (string, bool) {
	if n.Kind != ElementNode || n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// ID returns the element's id attribute, or "".
func (n *Node) ID() string {
	v, _ := n.Attr("id")
	return v
}

// Classes returns the element's class tokens in declaration order.
func (n *Node) Classes() []string {
	v, ok := n.Attr("class")
	if !ok || v == "" {
		return nil
	}
	return strings.Fields(v)
}

// TextContent returns the concatenated text of the node and its subtree.
func (n *Node) TextContent() string {
	var b strings.Builder
	n.appendText(&b)
	return b.String()
}

func (n *Node) appendText(b *strings.Builder) {
	if n.Kind == TextNode {
		b.WriteString(n.Text)
		return
	}
	for _, c := range n.children {
		c.appendText(b)
	}
}

// AppendChild attaches child as the last child of n.
func (n *Node) AppendChild(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
}

// InsertBefore attaches child immediately before ref, or appends when ref is
// nil or not a child of n.
func (n *Node) InsertBefore(child, ref *Node) {
	child.parent = n
	for i, c := range n.children {
		if c == ref {
			n.children = append(n.children[:i], append([]*Node{child}, n.children[i:]...)...)
			return
		}
	}
	n.children = append(n.children, child)
}

// RemoveChild detaches child from n. It is a no-op when child is not a
// child of n.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// IsFormControl reports whether the element is an input, textarea or select.
func (n *Node) IsFormControl() bool {
	if n.Kind != ElementNode {
		return false
	}
	switch n.Tag {
	case "input", "textarea", "select":
		return true
	}
	return false
}
