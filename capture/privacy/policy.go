// Package privacy decides what the capture layer may record. Masking
// redacts a value while keeping the event; exclusion suppresses every event
// for an element, its subtree, or a whole page.
package privacy

import (
	"regexp"
	"strings"

	"github.com/uxtrace/uxtrace/capture/dom"
)

// MaskChar is the character masked values are composed of.
const MaskChar = '*'

// maskLengthCap bounds how much of a value's length a masked capture may
// leak. Leaking length up to the cap is an accepted trade-off.
const maskLengthCap = 20

// Config drives the redaction policy.
type Config struct {
	// MaskAllInputs masks every captured form value unconditionally.
	MaskAllInputs bool

	// DisableSensitiveMasking turns off the heuristics that mask values
	// whose element type, autocomplete, name, id or placeholder marks
	// them as sensitive. The zero value keeps them on, so a partially
	// filled Config still redacts passwords.
	DisableSensitiveMasking bool

	// MaskAttribute is the attribute that forces masking on one element.
	MaskAttribute string

	// ExcludeAttribute opts an element and its whole subtree out of
	// capture entirely.
	ExcludeAttribute string

	// ExcludePages lists URL patterns on which no recording happens.
	// A pattern containing '*' is a wildcard match, anything else is a
	// substring match.
	ExcludePages []string
}

// DefaultConfig returns the default policy configuration.
func DefaultConfig() Config {
	return Config{
		MaskAttribute:    "data-ux-mask",
		ExcludeAttribute: "data-ux-exclude",
	}
}

// sensitiveTypes are input type / autocomplete values that always count as
// sensitive.
var sensitiveTypes = map[string]bool{
	"password":         true,
	"email":            true,
	"tel":              true,
	"cc-number":        true,
	"cc-exp":           true,
	"cc-csc":           true,
	"cc-name":          true,
	"current-password": true,
	"new-password":     true,
	"one-time-code":    true,
}

// sensitivePattern matches name/id/placeholder fragments that suggest a
// sensitive field. Checked case-insensitively.
var sensitivePattern = regexp.MustCompile(`(?i)(pass(word)?|pwd|secret|token|ssn|social.?security|credit|card.?number|cvv|cvc|pin\b|account|routing|iban|swift|phone|mobile|email|birth|dob)`)

// Policy is the redaction and exclusion rule set. Construct with
// NewPolicy; a zero Config still masks sensitive fields.
type Policy struct {
	cfg          Config
	pagePatterns []*regexp.Regexp
	pageLiterals []string
}

// NewPolicy compiles a policy from configuration.
func NewPolicy(cfg Config) *Policy {
	p := &Policy{cfg: cfg}
	for _, pat := range cfg.ExcludePages {
		if pat == "" {
			continue
		}
		if strings.Contains(pat, "*") {
			quoted := regexp.QuoteMeta(pat)
			quoted = strings.ReplaceAll(quoted, `\*`, ".*")
			if re, err := regexp.Compile("^" + quoted + "$"); err == nil {
				p.pagePatterns = append(p.pagePatterns, re)
				continue
			}
		}
		p.pageLiterals = append(p.pageLiterals, pat)
	}
	return p
}

// ShouldMask reports whether the element's captured value must be redacted.
// Evaluation order, first match wins: mask-all, explicit mask attribute,
// sensitive type/autocomplete or name/id/placeholder pattern.
func (p *Policy) ShouldMask(el *dom.Node) bool {
	if el == nil || el.Kind != dom.ElementNode {
		return false
	}
	if p.cfg.MaskAllInputs {
		return true
	}
	if p.cfg.MaskAttribute != "" {
		if _, ok := el.Attr(p.cfg.MaskAttribute); ok {
			return true
		}
	}
	if p.cfg.DisableSensitiveMasking {
		return false
	}
	if t, ok := el.Attr("type"); ok && sensitiveTypes[strings.ToLower(t)] {
		return true
	}
	if ac, ok := el.Attr("autocomplete"); ok && sensitiveTypes[strings.ToLower(ac)] {
		return true
	}
	for _, attr := range []string{"name", "id", "placeholder"} {
		if v, ok := el.Attr(attr); ok && sensitivePattern.MatchString(v) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether the element or any ancestor carries the
// exclusion attribute. Exclusion is authoritative: an excluded subtree
// yields zero events of any kind.
func (p *Policy) IsExcluded(n *dom.Node) bool {
	if p.cfg.ExcludeAttribute == "" {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent() {
		if _, ok := cur.Attr(p.cfg.ExcludeAttribute); ok {
			return true
		}
	}
	return false
}

// IsExcludedSelf checks only the node itself for the exclusion attribute.
// Tree walks that have already cleared the ancestors use it to stay linear.
func (p *Policy) IsExcludedSelf(n *dom.Node) bool {
	if p.cfg.ExcludeAttribute == "" || n == nil {
		return false
	}
	_, ok := n.Attr(p.cfg.ExcludeAttribute)
	return ok
}

// IsExcludedPage reports whether the URL matches an excluded-page pattern.
func (p *Policy) IsExcludedPage(url string) bool {
	for _, lit := range p.pageLiterals {
		if strings.Contains(url, lit) {
			return true
		}
	}
	for _, re := range p.pagePatterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// MaskValue replaces v with a fixed-character string of length
// min(len(v), 20). Applying it twice yields the same result.
func MaskValue(v string) string {
	n := len([]rune(v))
	if n > maskLengthCap {
		n = maskLengthCap
	}
	return strings.Repeat(string(MaskChar), n)
}
