package markdown

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// nodeRenderer overrides the HTML renderer for the constructs a Config
// replaces. Kinds it does not register fall through to goldmark's HTML.
type nodeRenderer struct {
	cfg Config
	sub renderer.Renderer // full engine renderer, used to render list items in isolation
}

func (r *nodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	if r.cfg.Strong.Replace || r.cfg.Emphasis.Replace {
		reg.Register(ast.KindEmphasis, r.renderEmphasis)
	}
	if r.cfg.Blockquote.Replace {
		reg.Register(ast.KindBlockquote, r.wrap(r.cfg.Blockquote))
	}
	if r.cfg.Paragraph.Replace {
		reg.Register(ast.KindParagraph, r.renderParagraph)
	}
	if r.cfg.PlainLists {
		reg.Register(ast.KindList, r.renderList)
		reg.Register(ast.KindListItem, r.wrap(r.cfg.ListItem))
		reg.Register(ast.KindTextBlock, r.renderTextBlock)
	}
	if r.cfg.PlainText {
		reg.Register(ast.KindText, r.renderText)
	}
	if r.cfg.Links == LinkURL {
		reg.Register(ast.KindLink, r.renderLink)
		reg.Register(ast.KindAutoLink, r.renderAutoLink)
	}
}

func (r *nodeRenderer) wrap(rule Rule) renderer.NodeRendererFunc {
	return func(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			_, _ = w.WriteString(rule.Prefix)
		} else {
			_, _ = w.WriteString(rule.Suffix)
		}
		return ast.WalkContinue, nil
	}
}

func (r *nodeRenderer) renderEmphasis(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Emphasis)
	rule := r.cfg.Emphasis
	tag := "em"
	if n.Level == 2 {
		rule = r.cfg.Strong
		tag = "strong"
	}
	switch {
	case rule.Replace && entering:
		_, _ = w.WriteString(rule.Prefix)
	case rule.Replace:
		_, _ = w.WriteString(rule.Suffix)
	case entering:
		_, _ = w.WriteString("<" + tag + ">")
	default:
		_, _ = w.WriteString("</" + tag + ">")
	}
	return ast.WalkContinue, nil
}

// renderParagraph drops the block tags. goldmark trims trailing blanks from
// a paragraph's last line; they are copied back from the source so inline
// text keeps its spacing when the next block follows directly.
func (r *nodeRenderer) renderParagraph(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(r.cfg.Paragraph.Prefix)
		return ast.WalkContinue, nil
	}
	if lines := node.Lines(); lines.Len() > 0 {
		last := lines.At(lines.Len() - 1)
		for i := last.Stop; i < len(source) && (source[i] == ' ' || source[i] == '\t'); i++ {
			_ = w.WriteByte(source[i])
		}
	}
	_, _ = w.WriteString(r.cfg.Paragraph.Suffix)
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) renderTextBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

// renderList renders the items on their own, then rebuilds the list from the
// rendered bodies: one item per line, numbered or dashed.
func (r *nodeRenderer) renderList(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.List)

	var body bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := r.sub.Render(&body, source, c); err != nil {
			return ast.WalkStop, err
		}
	}

	if n.PreviousSibling() != nil {
		_ = w.WriteByte('\n')
	}
	_, _ = w.WriteString(rebuildList(body.String(), n.IsOrdered()))
	return ast.WalkSkipChildren, nil
}

func rebuildList(body string, ordered bool) string {
	body = strings.TrimPrefix(body, "\n")
	items := strings.Split(body, "\n")

	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if ordered {
			sb.WriteString(strconv.Itoa(i+1) + ". ")
		} else {
			sb.WriteString("- ")
		}
		sb.WriteString(item)
	}
	return sb.String()
}

func (r *nodeRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	value := n.Segment.Value(source)
	if !n.IsRaw() {
		value = util.UnescapePunctuations(value)
		value = util.ResolveNumericReferences(value)
		value = util.ResolveEntityNames(value)
	}
	_, _ = w.Write(value)
	if n.HardLineBreak() || n.SoftLineBreak() {
		_ = w.WriteByte('\n')
	}
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) renderLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.Write(node.(*ast.Link).Destination)
	}
	return ast.WalkSkipChildren, nil
}

func (r *nodeRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.Write(node.(*ast.AutoLink).URL(source))
	}
	return ast.WalkSkipChildren, nil
}
