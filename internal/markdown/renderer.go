// Package markdown renders a constrained markdown grammar (bold, italic,
// blockquote, lists, links, smart quotes) into the string form a chat
// surface understands.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// anchorPattern matches <a href="URL">label</a>; goldmark keeps inline HTML
// as raw nodes, so anchors are reduced before parsing.
var anchorPattern = regexp.MustCompile(`(?i)<a\s+href="([^"]*)"[^>]*>.*?</a>`)

// Renderer converts markdown with a fixed override table. It holds no
// per-call state and is safe for concurrent use.
type Renderer struct {
	cfg    Config
	engine goldmark.Markdown
}

// New builds a Renderer for cfg.
func New(cfg Config) *Renderer {
	var exts []goldmark.Extender
	if cfg.Tables {
		exts = append(exts, extension.Table)
	}
	if cfg.SmartQuotes {
		exts = append(exts, extension.NewTypographer(
			extension.WithTypographicSubstitutions(typographicQuotes()),
		))
	}

	var parserOpts []parser.Option
	if cfg.HeadingIDs {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}

	overrides := &nodeRenderer{cfg: cfg}
	engine := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(overrides, 100)),
		),
	)
	overrides.sub = engine.Renderer()

	return &Renderer{cfg: cfg, engine: engine}
}

// Config returns a copy of the renderer's override table.
func (r *Renderer) Config() Config {
	return r.cfg
}

// Render converts text. Unbalanced or malformed markup is not detected; the
// engine's best-effort output is returned as is.
func (r *Renderer) Render(text string) (string, error) {
	if r.cfg.Links == LinkURL {
		text = anchorPattern.ReplaceAllString(text, "$1")
	}
	var buf bytes.Buffer
	if err := r.engine.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	return buf.String(), nil
}

// RenderOr is Render with a fallback: on error the input is returned unchanged.
func (r *Renderer) RenderOr(text string) string {
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

func typographicQuotes() map[extension.TypographicPunctuation][]byte {
	return map[extension.TypographicPunctuation][]byte{
		extension.LeftSingleQuote:  []byte("‘"),
		extension.RightSingleQuote: []byte("’"),
		extension.LeftDoubleQuote:  []byte("“"),
		extension.RightDoubleQuote: []byte("”"),
		extension.Apostrophe:       []byte("’"),
		extension.EnDash:           []byte("–"),
		extension.EmDash:           []byte("—"),
		extension.Ellipsis:         []byte("…"),
		extension.LeftAngleQuote:   []byte("«"),
		extension.RightAngleQuote:  []byte("»"),
	}
}
