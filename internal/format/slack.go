package format

import (
	"context"
	"sync"
	"time"

	"chatfmt/internal/batch"
	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
	"chatfmt/internal/markdown"
	"chatfmt/internal/upload"
)

// Slack formats responses for Slack: messages are rendered to Slack markup
// and replied, attachments pass through unchanged in chunks, files are
// uploaded.
type Slack struct {
	opts     Options
	md       *markdown.Renderer
	uploader Uploader
	uploads  sync.WaitGroup
}

// NewSlack builds the Slack pipeline. uploader may be nil, in which case
// file responses are discarded with an error log.
func NewSlack(uploader Uploader, opts Options) *Slack {
	return &Slack{
		opts:     opts.withDefaults(),
		md:       markdown.New(markdown.Chat()),
		uploader: uploader,
	}
}

func (p *Slack) Name() string { return "slack" }

func (p *Slack) Handle(ctx context.Context, resp domain.Response) {
	defer p.opts.Metrics.ObserveRender(time.Now())
	p.opts.Metrics.Responses.WithLabelValues(p.Name()).Inc()

	switch {
	case resp.HasFile():
		p.upload(ctx, resp)
	case resp.Message != "":
		text, err := p.md.Render(resp.Message)
		if err != nil {
			p.opts.Logger.Warn("markdown render failed, sending raw text", "pipeline", p.Name(), "err", err)
			text = resp.Message
		}
		p.opts.Logger.Debug("sending simple message", "pipeline", p.Name(), "len", len(text))
		p.opts.send(ctx, p.Name(), resp, text, true)
	case resp.HasAttachments():
		p.sendAttachments(resp)
	default:
		p.opts.invalid(p.Name())
	}
}

// sendAttachments emits one slack.attachment event per chunk. Events are
// emitted in order, but the channel posting them may not preserve it.
func (p *Slack) sendAttachments(resp domain.Response) {
	env := resp.Envelope()
	for _, chunk := range batch.Chunk(resp.Attachments, p.opts.Limits.SlackAttachments) {
		p.opts.Logger.Debug("sending attachments", "pipeline", p.Name(), "count", len(chunk))
		p.opts.emit("format.slack", bus.EventSlackAttachment, map[string]any{
			"envelope":    env,
			"attachments": chunk,
		})
		p.opts.Metrics.ChunksSent.WithLabelValues(p.Name()).Inc()
	}
}

// upload sends the file in the background. The file is removed once the
// single attempt finishes, whatever its outcome.
func (p *Slack) upload(ctx context.Context, resp domain.Response) {
	comment := resp.InitialComment
	if comment == "" {
		comment = resp.Message
	}
	f := upload.File{
		Path:           resp.FilePath,
		Name:           resp.FileName,
		Title:          resp.FileName,
		Channel:        resp.Envelope().Room,
		InitialComment: comment,
	}

	if p.uploader == nil {
		p.opts.Logger.Error("file upload unavailable: no uploader configured", "file", f.Name)
		removeFile(p.opts.Logger, f.Path)
		return
	}

	p.opts.Logger.Debug("uploading file", "pipeline", p.Name(), "file", f.Name, "channel", f.Channel)
	p.opts.Metrics.Uploads.Inc()

	p.uploads.Add(1)
	go func() {
		defer p.uploads.Done()
		err := p.uploader.Upload(context.WithoutCancel(ctx), f)
		removeFile(p.opts.Logger, f.Path)
		if err != nil {
			p.opts.Metrics.UploadFailures.Inc()
			p.opts.Logger.Error("slack upload failed", "file", f.Name, "err", err)
			return
		}
		p.opts.Logger.Debug("slack upload finished", "file", f.Path)
	}()
}

// Wait blocks until in-flight uploads have finished.
func (p *Slack) Wait() {
	p.uploads.Wait()
}
