// Package format turns an adapter-agnostic domain.Response into the output a
// specific chat platform can display.
//
// Each platform is one Pipeline with its own markdown override table and
// batching limits. Pipelines never return errors: malformed input, failed
// uploads and failed deliveries are logged and absorbed.
package format

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
	"chatfmt/internal/metrics"
	"chatfmt/internal/upload"
)

// NoResults is sent by the text and web pipelines when there is nothing to show.
const NoResults = "No results found"

// Pipeline formats and delivers one response for one platform.
type Pipeline interface {
	Name() string
	Handle(ctx context.Context, resp domain.Response)
}

// Emitter publishes platform events consumed by delivery channels.
type Emitter interface {
	Emit(event bus.Event)
}

// Uploader sends a local file to the platform.
type Uploader interface {
	Upload(ctx context.Context, f upload.File) error
}

// Limits are the per-platform batching limits.
type Limits struct {
	CarouselElements int // elements per messenger carousel
	SlackAttachments int // attachments per slack.attachment event
	MessageSegment   int // characters per messenger text message
}

// DefaultLimits returns the platform limits.
func DefaultLimits() Limits {
	return Limits{CarouselElements: 10, SlackAttachments: 50, MessageSegment: 300}
}

// Options carries the collaborators shared by all pipelines.
type Options struct {
	Logger  *slog.Logger
	Events  Emitter
	Metrics *metrics.MetricsCollector
	Limits  Limits
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Collector
	}
	def := DefaultLimits()
	if o.Limits.CarouselElements <= 0 {
		o.Limits.CarouselElements = def.CarouselElements
	}
	if o.Limits.SlackAttachments <= 0 {
		o.Limits.SlackAttachments = def.SlackAttachments
	}
	if o.Limits.MessageSegment <= 0 {
		o.Limits.MessageSegment = def.MessageSegment
	}
	return o
}

var errNoResponder = errors.New("response has no responder")

// emit publishes an event if an emitter is configured.
func (o Options) emit(source, eventType string, payload map[string]any) {
	if o.Events == nil {
		o.Logger.Warn("no event emitter configured; event dropped", "event", eventType)
		return
	}
	o.Events.Emit(bus.Event{Type: eventType, Source: source, Payload: payload})
}

// send delivers text through the response's responder, as a reply when
// reply is set.
func (o Options) send(ctx context.Context, pipeline string, resp domain.Response, text string, reply bool) {
	err := errNoResponder
	if resp.Responder != nil {
		if reply {
			err = resp.Responder.Reply(ctx, text)
		} else {
			err = resp.Responder.Send(ctx, text)
		}
	}
	if err != nil {
		o.Logger.Error("delivery failed", "pipeline", pipeline, "room", resp.Envelope().Room, "err", err)
		return
	}
	o.Metrics.ChunksSent.WithLabelValues(pipeline).Inc()
}

// invalid records a response with neither message nor attachments.
func (o Options) invalid(pipeline string) {
	o.Metrics.InvalidResponses.Inc()
	o.Logger.Warn("invalid response: no message or attachments found, nothing will be delivered",
		"pipeline", pipeline)
}

// removeFile deletes a temporary file handed over with a response.
func removeFile(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("cannot remove temporary file", "path", path, "err", err)
	}
}
