package format

import (
	"context"
	"strings"
	"time"

	"chatfmt/internal/domain"
	"chatfmt/internal/extract"
	"chatfmt/internal/markdown"
)

// Web formats responses as HTML for the browser chat surface.
type Web struct {
	opts Options
	md   *markdown.Renderer
}

func NewWeb(opts Options) *Web {
	return &Web{
		opts: opts.withDefaults(),
		md:   markdown.New(markdown.Web()),
	}
}

func (p *Web) Name() string { return "web" }

func (p *Web) Handle(ctx context.Context, resp domain.Response) {
	defer p.opts.Metrics.ObserveRender(time.Now())
	p.opts.Metrics.Responses.WithLabelValues(p.Name()).Inc()

	var md string
	switch {
	case resp.Message != "":
		md = resp.Message
	case resp.HasFile():
		removeFile(p.opts.Logger, resp.FilePath)
		p.opts.Logger.Debug("uploading file is not supported", "pipeline", p.Name(), "file", resp.FileName)
		md = "Uploading file is not supported for " + p.Name() + " adapter."
	case resp.HasAttachments():
		md = AttachmentsMarkdown(resp.Attachments)
	}
	if strings.TrimSpace(md) == "" {
		md = NoResults
	}

	out, err := p.md.Render(md)
	if err != nil {
		p.opts.Logger.Warn("markdown render failed, sending raw text", "pipeline", p.Name(), "err", err)
		out = md
	}
	p.opts.Logger.Debug("sending response", "pipeline", p.Name(), "len", len(out))
	p.opts.send(ctx, p.Name(), resp, out, false)
}

// AttachmentsMarkdown builds one markdown document from attachments:
// pretext paragraph, title heading, text paragraph, field tables and image.
// Fields are sorted by title and taken two at a time; a pair of short fields
// shares a two-column table, anything else gets a table of its own.
func AttachmentsMarkdown(attachments []domain.Attachment) string {
	var sb strings.Builder
	for _, a := range attachments {
		if a.Pretext != "" {
			sb.WriteString(a.Pretext + "\n\n")
		}
		if a.Title != "" {
			sb.WriteString("### " + a.Title + "\n\n")
		}
		if a.Text != "" {
			sb.WriteString(a.Text + "\n\n")
		}

		fields := sortedFields(a.Fields)
		for i := 0; i < len(fields); i += 2 {
			first := fields[i]
			if i+1 == len(fields) {
				writeFieldTable(&sb, first)
				break
			}
			second := fields[i+1]
			if first.Short && second.Short {
				writeFieldTable(&sb, first, second)
			} else {
				writeFieldTable(&sb, first)
				writeFieldTable(&sb, second)
			}
		}

		if img := extract.Image(a); img != "" {
			sb.WriteString("![Image](" + img + ")\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeFieldTable(sb *strings.Builder, fields ...domain.Field) {
	titles := make([]string, len(fields))
	rule := make([]string, len(fields))
	values := make([]string, len(fields))
	for i, f := range fields {
		titles[i] = f.Title
		rule[i] = "---"
		values[i] = f.Value
	}
	sb.WriteString("| " + strings.Join(titles, " | ") + " |\n")
	sb.WriteString("| " + strings.Join(rule, " | ") + " |\n")
	sb.WriteString("| " + strings.Join(values, " | ") + " |\n\n")
}
