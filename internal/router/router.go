// Package router selects the formatting pipeline for a platform and wires
// it to the event bus.
package router

import (
	"context"
	"log/slog"
	"strings"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
	"chatfmt/internal/format"
)

// FallbackPipeline handles adapters nothing else claims.
const FallbackPipeline = "text"

// EventSource is the subscription half of bus.EventBus.
type EventSource interface {
	On(eventType string, handler bus.EventHandler) string
	Off(eventType, handlerID string)
}

// Config configures a Router.
type Config struct {
	Pipelines             []format.Pipeline
	Aliases               map[string]string // extra adapter name -> pipeline name
	MentionPrefixAdapters []string          // pipelines whose inbound text gets the bot name prefixed
	BotName               string
	Logger                *slog.Logger
}

// Router maps adapter names to pipelines. Lookups are case-insensitive and
// keep no state between calls.
type Router struct {
	pipelines map[string]format.Pipeline
	aliases   map[string]string
	mention   map[string]bool
	botName   string
	logger    *slog.Logger
}

func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Router{
		pipelines: make(map[string]format.Pipeline, len(cfg.Pipelines)),
		aliases:   make(map[string]string, len(cfg.Aliases)),
		mention:   make(map[string]bool, len(cfg.MentionPrefixAdapters)),
		botName:   cfg.BotName,
		logger:    cfg.Logger,
	}
	for _, p := range cfg.Pipelines {
		r.pipelines[strings.ToLower(p.Name())] = p
	}
	for alias, target := range cfg.Aliases {
		r.aliases[strings.ToLower(alias)] = strings.ToLower(target)
	}
	for _, name := range cfg.MentionPrefixAdapters {
		r.mention[strings.ToLower(name)] = true
	}
	return r
}

// Resolve returns the pipeline for adapter, falling back to the text
// pipeline for unknown or empty names. It returns nil only when no
// fallback pipeline is registered.
func (r *Router) Resolve(adapter string) format.Pipeline {
	name := strings.ToLower(strings.TrimSpace(adapter))
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	if p, ok := r.pipelines[name]; ok {
		return p
	}
	r.logger.Debug("falling back to text formatter", "adapter", adapter)
	return r.pipelines[FallbackPipeline]
}

// Dispatch formats and delivers resp with the pipeline selected for adapter.
func (r *Router) Dispatch(ctx context.Context, adapter string, resp domain.Response) {
	p := r.Resolve(adapter)
	if p == nil {
		r.logger.Error("no pipeline available", "adapter", adapter)
		return
	}
	r.logger.Debug("dispatching response", "adapter", adapter, "pipeline", p.Name())
	p.Handle(ctx, resp)
}

// Listen dispatches every formatter.response event with adapter until the
// returned function is called. An event may name its own adapter in the
// "adapter" payload key.
func (r *Router) Listen(ctx context.Context, events EventSource, adapter string) (stop func()) {
	id := events.On(bus.EventFormatterResponse, func(e bus.Event) {
		resp, ok := e.Payload["response"].(domain.Response)
		if !ok {
			r.logger.Warn("formatter event without a response payload", "source", e.Source)
			return
		}
		target := adapter
		if override, _ := e.Payload["adapter"].(string); override != "" {
			target = override
		}
		r.Dispatch(ctx, target, resp)
	})
	return func() { events.Off(bus.EventFormatterResponse, id) }
}

// Middleware returns the inbound hook for adapter. On platforms without
// explicit mentions it prefixes the bot name so command parsing sees the
// message as addressed to the bot; elsewhere it is a no-op.
func (r *Router) Middleware(adapter string) domain.Middleware {
	prefix := r.MentionPrefix(adapter)
	return func(msg *domain.InboundMessage) {
		if prefix {
			msg.Content = r.botName + " " + msg.Content
		}
	}
}

// InboundMiddleware is Middleware keyed by each message's own channel, for
// buses shared by several channels.
func (r *Router) InboundMiddleware() domain.Middleware {
	return func(msg *domain.InboundMessage) {
		r.Middleware(msg.Channel)(msg)
	}
}

// MentionPrefix reports whether inbound text on adapter gets the bot name
// prefixed.
func (r *Router) MentionPrefix(adapter string) bool {
	p := r.Resolve(adapter)
	return p != nil && r.mention[strings.ToLower(p.Name())]
}
