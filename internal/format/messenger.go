package format

import (
	"context"
	"time"

	"chatfmt/internal/batch"
	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
	"chatfmt/internal/extract"
	"chatfmt/internal/markdown"
)

// placeholderSubtitle fills an element that has neither image nor subtitle;
// the template requires one of them.
const placeholderSubtitle = "..."

// MessengerMessage is the body of a Send API message: either text or a
// template attachment.
type MessengerMessage struct {
	Text       string              `json:"text,omitempty"`
	Attachment *TemplateAttachment `json:"attachment,omitempty"`
}

type TemplateAttachment struct {
	Type    string          `json:"type"`
	Payload TemplatePayload `json:"payload"`
}

type TemplatePayload struct {
	TemplateType string    `json:"template_type"`
	Elements     []Element `json:"elements"`
}

// Element is one card of a generic template carousel.
type Element struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	ItemURL  string `json:"item_url,omitempty"`
}

// BuildElement derives a carousel card from an attachment.
func BuildElement(a domain.Attachment) Element {
	el := Element{
		Title:    extract.Title(a),
		ImageURL: extract.Image(a),
		ItemURL:  extract.ContentURL(a),
	}
	el.Subtitle = extract.FieldSummary(a, extract.BodyText(a))
	if el.ImageURL == "" && el.Subtitle == "" {
		el.Subtitle = placeholderSubtitle
	}
	return el
}

// Carousel wraps attachments into one generic template message.
func Carousel(attachments []domain.Attachment) MessengerMessage {
	elements := make([]Element, 0, len(attachments))
	for _, a := range attachments {
		elements = append(elements, BuildElement(a))
	}
	return MessengerMessage{Attachment: &TemplateAttachment{
		Type: "template",
		Payload: TemplatePayload{
			TemplateType: "generic",
			Elements:     elements,
		},
	}}
}

// Messenger formats responses for Facebook Messenger as fb.message events:
// stripped text split into segments, or generic template carousels.
type Messenger struct {
	opts Options
	md   *markdown.Renderer
}

func NewMessenger(opts Options) *Messenger {
	return &Messenger{
		opts: opts.withDefaults(),
		md:   markdown.New(markdown.Strip()),
	}
}

func (p *Messenger) Name() string { return "fb" }

func (p *Messenger) Handle(ctx context.Context, resp domain.Response) {
	defer p.opts.Metrics.ObserveRender(time.Now())
	p.opts.Metrics.Responses.WithLabelValues(p.Name()).Inc()

	switch {
	case resp.Message != "":
		p.sendMessage(resp, resp.Message)
	case resp.HasFile():
		removeFile(p.opts.Logger, resp.FilePath)
		p.opts.Logger.Debug("uploading file is not supported", "pipeline", p.Name(), "file", resp.FileName)
		p.sendMessage(resp, "Uploading file is not supported for '"+p.Name()+"' adapter.")
	case resp.HasAttachments():
		for _, chunk := range batch.Chunk(resp.Attachments, p.opts.Limits.CarouselElements) {
			p.sendData(resp, Carousel(chunk))
		}
	default:
		p.opts.invalid(p.Name())
	}
}

// sendMessage renders text and sends it in order, one message per segment
// once the rendered text reaches the segment limit.
func (p *Messenger) sendMessage(resp domain.Response, text string) {
	rendered, err := p.md.Render(text)
	if err != nil {
		p.opts.Logger.Warn("markdown render failed, sending raw text", "pipeline", p.Name(), "err", err)
		rendered = text
	}
	for _, segment := range batch.SplitText(rendered, p.opts.Limits.MessageSegment) {
		p.sendData(resp, MessengerMessage{Text: segment})
	}
}

func (p *Messenger) sendData(resp domain.Response, msg MessengerMessage) {
	p.opts.Logger.Debug("sending data", "pipeline", p.Name(), "template", msg.Attachment != nil)
	p.opts.emit("format.fb", bus.EventMessengerMessage, map[string]any{
		"envelope": resp.Envelope(),
		"message":  msg,
	})
	p.opts.Metrics.ChunksSent.WithLabelValues(p.Name()).Inc()
}
