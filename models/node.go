package models

// NodeKind identifies the DOM node class of a SerializedNode.
type NodeKind string

const (
	NodeElement NodeKind = "element"
	NodeText    NodeKind = "text"
	NodeComment NodeKind = "comment"
)

// SerializedNode is the transmission shape of one DOM node and, for
// elements, its subtree in document order. A node excluded by the redaction
// policy contributes neither itself nor any descendant.
type SerializedNode struct {
	Kind     NodeKind          `json:"kind"`
	ID       int               `json:"id"`
	Name     string            `json:"name,omitempty"` // lowercase tag for elements
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*SerializedNode `json:"children,omitempty"`

	// Value is character data for text/comment nodes and the live
	// (possibly masked) control value for form elements.
	Value         string `json:"value,omitempty"`
	SelectedIndex *int   `json:"selectedIndex,omitempty"`
}

// Walk visits n and every descendant in document order. It stops early when
// fn returns false for any node.
func (n *SerializedNode) Walk(fn func(*SerializedNode) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}
