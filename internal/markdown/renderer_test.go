package markdown

import (
	"strings"
	"testing"
)

func TestRenderer_Render(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Heading with ID",
			input:    "## Build steps",
			expected: "<h2 id=\"build-steps\">Build steps</h2>",
		},
		{
			name:     "GFM Table",
			input:    "| Ext | Lang |\n|---|---|\n| rs | rust |",
			expected: "<table>",
		},
		{
			name:     "GFM Task List",
			input:    "- [x] saved",
			expected: "<input checked=\"\" disabled=\"\" type=\"checkbox\"",
		},
		{
			name:     "Highlighted code uses classes",
			input:    "```go\nfunc main() {}\n```",
			expected: "class=\"chroma\"",
		},
		{
			name:     "Empty Input",
			input:    "",
			expected: "",
		},
		{
			name:     "Hard wraps",
			input:    "one\ntwo",
			expected: "one<br />",
		},
	}

	renderer := NewRenderer(ThemeLight)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := renderer.Render([]byte(tt.input))
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got := string(output); !strings.Contains(got, tt.expected) {
				t.Errorf("Render() = %v, want substring %v", got, tt.expected)
			}
		})
	}
}

func TestRenderer_EscapesRawHTML(t *testing.T) {
	out, err := NewRenderer(ThemeLight).Render([]byte("<script>alert(1)</script>"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(string(out), "<script>") {
		t.Errorf("raw HTML leaked into preview: %s", out)
	}
}

func TestRenderer_Stylesheet(t *testing.T) {
	for _, theme := range []Theme{ThemeLight, ThemeDark} {
		r := NewRenderer(theme)
		css, err := r.Stylesheet()
		if err != nil {
			t.Fatalf("Stylesheet(%s) error = %v", r.StyleName(), err)
		}
		if !strings.Contains(css, ".chroma") {
			t.Errorf("Stylesheet(%s) missing .chroma rules", r.StyleName())
		}
	}
}
