package format

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"chatfmt/internal/domain"
	"chatfmt/internal/markdown"
)

// columnGap is the padding added after the widest cell of a column.
const columnGap = 3

// Text formats responses for plain consoles: markup is stripped and
// attachments are laid out as an aligned table.
type Text struct {
	opts Options
	md   *markdown.Renderer
}

func NewText(opts Options) *Text {
	return &Text{
		opts: opts.withDefaults(),
		md:   markdown.New(markdown.Strip()),
	}
}

func (p *Text) Name() string { return "text" }

func (p *Text) Handle(ctx context.Context, resp domain.Response) {
	defer p.opts.Metrics.ObserveRender(time.Now())
	p.opts.Metrics.Responses.WithLabelValues(p.Name()).Inc()

	var out string
	switch {
	case resp.HasFile():
		out = p.fileNotice(resp)
	case resp.Message != "":
		rendered, err := p.md.Render(resp.Message)
		if err != nil {
			p.opts.Logger.Warn("markdown render failed, sending raw text", "pipeline", p.Name(), "err", err)
			rendered = resp.Message
		}
		out = rendered
	case resp.HasAttachments():
		out = AsciiTable(AttachmentRows(resp.Attachments))
	}
	if strings.TrimSpace(out) == "" {
		out = NoResults
	}

	p.opts.Logger.Debug("sending response", "pipeline", p.Name(), "len", len(out))
	p.opts.send(ctx, p.Name(), resp, out, false)
}

// fileNotice tells the user where the file was left. The file is kept.
func (p *Text) fileNotice(resp domain.Response) string {
	path, err := filepath.Abs(resp.FilePath)
	if err == nil {
		if real, rerr := filepath.EvalSymlinks(path); rerr == nil {
			path = real
		} else {
			p.opts.Logger.Warn("cannot resolve file path", "path", path, "err", rerr)
		}
	} else {
		path = resp.FilePath
	}
	p.opts.Logger.Debug("file downloaded", "path", path)

	var sb strings.Builder
	if resp.Message != "" {
		sb.WriteString(resp.Message + "\n")
	}
	sb.WriteString("File downloaded and available " + path)
	if resp.InitialComment != "" {
		sb.WriteString("\n" + resp.InitialComment + "\n")
	}
	return sb.String()
}

// sortedFields orders fields by title; untitled fields go last and ties keep
// their original order.
func sortedFields(fields []domain.Field) []domain.Field {
	out := make([]domain.Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Title, out[j].Title
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})
	return out
}

// AttachmentRows flattens attachments into newline separated rows with
// tab separated cells: a heading line per attachment, one "title\tvalue"
// row per field, then a blank line.
func AttachmentRows(attachments []domain.Attachment) string {
	var sb strings.Builder
	for _, a := range attachments {
		if a.Pretext != "" {
			sb.WriteString(a.Pretext + "\n")
		}
		switch {
		case a.Title != "" && a.Text != "":
			sb.WriteString(a.Title + ": " + a.Text + "\n")
		case a.Title != "":
			sb.WriteString(a.Title + "\n")
		case a.Text != "":
			sb.WriteString(a.Text + "\n")
		}
		for _, f := range sortedFields(a.Fields) {
			sb.WriteString(f.Title + "\t" + f.Value + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// AsciiTable aligns tab separated cells into fixed-width columns. A column
// is as wide as its widest cell plus three spaces; the last cell of each row
// is not padded.
func AsciiTable(input string) string {
	rows := strings.Split(input, "\n")
	cells := make([][]string, len(rows))

	var widths []int
	for i, row := range rows {
		cells[i] = strings.Split(row, "\t")
		for j, cell := range cells[i] {
			n := utf8.RuneCountInString(cell)
			if j >= len(widths) {
				widths = append(widths, n)
			} else if n > widths[j] {
				widths[j] = n
			}
		}
	}

	var sb strings.Builder
	for i, row := range cells {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j, cell := range row {
			if j == len(row)-1 {
				sb.WriteString(cell)
				continue
			}
			sb.WriteString(padRight(cell, widths[j]+columnGap))
		}
	}
	return sb.String()
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
