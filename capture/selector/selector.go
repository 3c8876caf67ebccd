// Package selector derives a best-effort CSS-like path for an element.
// The result is a heuristic, not a guaranteed-unique selector: replay must
// tolerate it resolving to zero or multiple elements.
package selector

import (
	"fmt"
	"strings"

	"github.com/uxtrace/uxtrace/capture/dom"
)

// maxDepth bounds how many ancestor levels contribute to a path.
const maxDepth = 5

// maxClassTokens bounds how many class tokens one level carries.
const maxClassTokens = 2

// Of computes the element's selector path. An element with an id resolves
// to "#id" immediately; ids are assumed page-unique. Otherwise the path
// walks toward the root collecting tag, up to two classes, and an
// nth-of-type disambiguator when same-tag siblings exist.
func Of(el *dom.Node) string {
	if el == nil || el.Kind != dom.ElementNode {
		return ""
	}
	if id := el.ID(); id != "" {
		return "#" + id
	}

	var parts []string
	for cur := el; cur != nil && cur.Kind == dom.ElementNode && len(parts) < maxDepth; cur = cur.Parent() {
		if id := cur.ID(); id != "" && cur != el {
			// An ancestor id anchors the path; nothing above it can
			// disambiguate further.
			parts = append(parts, "#"+id)
			break
		}
		parts = append(parts, levelToken(cur))
	}

	// Collected leaf-first; join root-first.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func levelToken(el *dom.Node) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(el.Tag))

	classes := el.Classes()
	if len(classes) > maxClassTokens {
		classes = classes[:maxClassTokens]
	}
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(c)
	}

	if idx, total := typePosition(el); total > 1 {
		fmt.Fprintf(&b, ":nth-of-type(%d)", idx)
	}
	return b.String()
}

// typePosition returns the element's 1-based position among same-tag
// siblings and the count of those siblings.
func typePosition(el *dom.Node) (int, int) {
	parent := el.Parent()
	if parent == nil {
		return 1, 1
	}
	idx, total := 0, 0
	for _, sib := range parent.Children() {
		if sib.Kind == dom.ElementNode && sib.Tag == el.Tag {
			total++
			if sib == el {
				idx = total
			}
		}
	}
	if idx == 0 {
		idx, total = 1, 1
	}
	return idx, total
}
