// Package markdown renders Markdown documents to HTML for preview.
package markdown

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Theme selects the code highlighting palette. It follows the editor theme.
type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
)

func (t Theme) style() string {
	if t == ThemeDark {
		return "github-dark"
	}
	return "github"
}

// Renderer converts Markdown to HTML. Raw HTML in the source is escaped:
// previewed files come from a remote drive and are not trusted.
type Renderer struct {
	md    goldmark.Markdown
	theme Theme
}

// NewRenderer creates a renderer with GFM and fenced-code highlighting.
func NewRenderer(theme Theme) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(theme.style()),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	return &Renderer{md: md, theme: theme}
}

// Render converts source to HTML.
func (r *Renderer) Render(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// Stylesheet returns the CSS for the highlighting classes emitted by Render.
func (r *Renderer) Stylesheet() (string, error) {
	style := styles.Get(r.theme.style())
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("write highlight css: %w", err)
	}
	return buf.String(), nil
}

// StyleName is the chroma style in use.
func (r *Renderer) StyleName() string {
	return r.theme.style()
}
