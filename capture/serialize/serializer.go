// Package serialize converts live DOM subtrees into their transmission
// shape.
package serialize

import (
	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/identity"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/models"
)

// Serializer turns nodes into SerializedNode trees, assigning identifiers
// through the registry and redacting live form values through the policy.
type Serializer struct {
	registry *identity.Registry
	policy   *privacy.Policy
}

// NewSerializer creates a serializer bound to one session's registry and
// policy.
func NewSerializer(registry *identity.Registry, policy *privacy.Policy) *Serializer {
	return &Serializer{registry: registry, policy: policy}
}

// Serialize converts a node and its subtree in document order. It returns
// nil when the node is excluded; the caller treats nil as "contributes
// nothing". Attribute values are captured verbatim; only the live value of
// form controls goes through the masking path, the same path live input
// events use. Recursion has no depth limit beyond the tree's own.
func (s *Serializer) Serialize(n *dom.Node) *models.SerializedNode {
	if n == nil || s.policy.IsExcluded(n) {
		return nil
	}
	return s.serialize(n)
}

// serialize assumes ancestors were already cleared of exclusion and checks
// only the node itself, so a full-tree walk stays linear.
func (s *Serializer) serialize(n *dom.Node) *models.SerializedNode {
	switch n.Kind {
	case dom.TextNode:
		return &models.SerializedNode{
			Kind:  models.NodeText,
			ID:    s.registry.IDOf(n),
			Value: n.Text,
		}
	case dom.CommentNode:
		return &models.SerializedNode{
			Kind:  models.NodeComment,
			ID:    s.registry.IDOf(n),
			Value: n.Text,
		}
	}

	out := &models.SerializedNode{
		Kind: models.NodeElement,
		ID:   s.registry.IDOf(n),
		Name: n.Tag,
	}
	if len(n.Attrs) > 0 {
		attrs := make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		out.Attrs = attrs
	}

	if n.IsFormControl() {
		out.Value = s.controlValue(n)
		if n.Tag == "select" {
			idx := n.SelectedIndex
			out.SelectedIndex = &idx
		}
	}

	for _, child := range n.Children() {
		if s.policy.IsExcludedSelf(child) {
			continue
		}
		if sc := s.serialize(child); sc != nil {
			out.Children = append(out.Children, sc)
		}
	}
	return out
}

// controlValue captures a form control's live value through the masking
// path.
func (s *Serializer) controlValue(n *dom.Node) string {
	v := n.Value
	if n.Tag == "select" {
		if n.SelectedIndex >= 0 && n.SelectedIndex < len(n.Options) {
			v = n.Options[n.SelectedIndex]
		}
	}
	if v == "" {
		return ""
	}
	if s.policy.ShouldMask(n) {
		return privacy.MaskValue(v)
	}
	return v
}
