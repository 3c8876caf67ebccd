package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uxtrace/uxtrace/capture/dom"
)

func input(attrs map[string]string) *dom.Node {
	return dom.NewElement("input", attrs)
}

func TestShouldMask(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		el   *dom.Node
		want bool
	}{
		{
			name: "mask all inputs wins over everything",
			cfg:  Config{MaskAllInputs: true},
			el:   input(map[string]string{"type": "text", "name": "city"}),
			want: true,
		},
		{
			name: "explicit mask attribute",
			cfg:  DefaultConfig(),
			el:   input(map[string]string{"type": "text", "data-ux-mask": ""}),
			want: true,
		},
		{
			name: "password type",
			cfg:  DefaultConfig(),
			el:   input(map[string]string{"type": "password"}),
			want: true,
		},
		{
			name: "autocomplete cc-number",
			cfg:  DefaultConfig(),
			el:   input(map[string]string{"type": "text", "autocomplete": "cc-number"}),
			want: true,
		},
		{
			name: "sensitive name fragment",
			cfg:  DefaultConfig(),
			el:   input(map[string]string{"type": "text", "name": "user_password_confirm"}),
			want: true,
		},
		{
			name: "sensitive placeholder fragment case-insensitive",
			cfg:  DefaultConfig(),
			el:   input(map[string]string{"type": "text", "placeholder": "Credit Card"}),
			want: true,
		},
		{
			name: "plain text field",
			cfg:  DefaultConfig(),
			el:   input(map[string]string{"type": "text", "name": "city"}),
			want: false,
		},
		{
			name: "heuristics explicitly disabled",
			cfg:  Config{DisableSensitiveMasking: true, MaskAttribute: "data-ux-mask"},
			el:   input(map[string]string{"type": "password"}),
			want: false,
		},
		{
			name: "zero config still masks passwords",
			cfg:  Config{},
			el:   input(map[string]string{"type": "password"}),
			want: true,
		},
		{
			name: "nil node",
			cfg:  DefaultConfig(),
			el:   nil,
			want: false,
		},
		{
			name: "text node never masked",
			cfg:  Config{MaskAllInputs: true},
			el:   dom.NewText("hello"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(tt.cfg)
			assert.Equal(t, tt.want, p.ShouldMask(tt.el))
		})
	}
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", MaskValue(""))
	assert.Equal(t, "*****", MaskValue("hello"))
	assert.Equal(t, strings.Repeat("*", 20), MaskValue(strings.Repeat("x", 300)))

	// Idempotent: masking a masked value changes nothing.
	masked := MaskValue("some secret value over twenty chars")
	assert.Equal(t, masked, MaskValue(masked))

	// Rune-based, not byte-based.
	assert.Equal(t, "***", MaskValue("日本語"))
}

func TestIsExcluded(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	root := dom.NewElement("div", nil)
	excluded := dom.NewElement("div", map[string]string{"data-ux-exclude": ""})
	child := dom.NewElement("span", nil)
	grandchild := dom.NewText("secret")
	root.AppendChild(excluded)
	excluded.AppendChild(child)
	child.AppendChild(grandchild)

	sibling := dom.NewElement("p", nil)
	root.AppendChild(sibling)

	assert.True(t, p.IsExcluded(excluded))
	assert.True(t, p.IsExcluded(child), "exclusion covers descendants")
	assert.True(t, p.IsExcluded(grandchild))
	assert.False(t, p.IsExcluded(root))
	assert.False(t, p.IsExcluded(sibling))

	assert.True(t, p.IsExcludedSelf(excluded))
	assert.False(t, p.IsExcludedSelf(child), "self check ignores ancestors")
}

func TestIsExcludedPage(t *testing.T) {
	p := NewPolicy(Config{ExcludePages: []string{"/admin", "https://*.internal.example.com/*"}})

	assert.True(t, p.IsExcludedPage("https://example.com/admin/users"))
	assert.True(t, p.IsExcludedPage("https://ops.internal.example.com/dash"))
	assert.False(t, p.IsExcludedPage("https://example.com/checkout"))

	none := NewPolicy(Config{})
	assert.False(t, none.IsExcludedPage("https://example.com/admin"))
}
