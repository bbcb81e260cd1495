package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
)

const (
	defaultConcurrency = 3
	defaultRateBurst   = 5
	defaultRatePerMin  = 30.0
	defaultSampleCards = 3
	maxSampleCards     = 100
)

// version is set by the build system. Default fallback.
var version = "0.1.0"

// SetVersion sets the version string reported by the version and status commands.
func SetVersion(v string) {
	version = v
}

// Version returns the version string.
func Version() string { return version }

// Emitter publishes events on the event bus.
type Emitter interface {
	Emit(event bus.Event)
}

// Handler consumes inbound messages and answers the ones addressed to the bot.
type Handler struct {
	bus         domain.MessageBus
	events      Emitter
	botName     string
	pipelines   []string
	logger      *slog.Logger
	concurrency int
	limiter     *RateLimiter
	started     time.Time
}

// HandlerConfig holds the handler's dependencies.
type HandlerConfig struct {
	Bus         domain.MessageBus
	Events      Emitter
	BotName     string
	Pipelines   []string // reported by the status command
	Logger      *slog.Logger
	Concurrency int // max parallel messages (default 3)
	Limiter     *RateLimiter
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(defaultRateBurst, defaultRatePerMin)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		bus:         cfg.Bus,
		events:      cfg.Events,
		botName:     cfg.BotName,
		pipelines:   cfg.Pipelines,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		limiter:     cfg.Limiter,
		started:     time.Now(),
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
func (h *Handler) Run(ctx context.Context) {
	h.logger.Info("command handler started", "bot", h.botName, "concurrency", h.concurrency)

	sem := make(chan struct{}, h.concurrency)
	inbound := h.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("command handler stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				h.logger.Info("inbound channel closed, command handler stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				h.Handle(ctx, m)
			}(msg)
		}
	}
}

// Handle answers msg if it is addressed to the bot and reports whether it did.
func (h *Handler) Handle(ctx context.Context, msg domain.InboundMessage) bool {
	cmd := Parse(msg.Content, h.botName)
	if cmd == nil {
		h.logger.Debug("message not addressed to bot", "channel", msg.Channel, "sender", msg.SenderID)
		return false
	}
	if msg.Responder == nil {
		h.logger.Warn("command without responder dropped", "channel", msg.Channel, "command", cmd.Name)
		return false
	}
	if !h.limiter.Allow(msg.Channel + ":" + msg.ChatID) {
		h.logger.Warn("rate limited", "channel", msg.Channel, "chat", msg.ChatID)
		return false
	}

	h.logger.Debug("handling command", "channel", msg.Channel, "sender", msg.SenderID, "command", cmd.Name)

	resp := h.respond(cmd)
	resp.Responder = msg.Responder
	h.events.Emit(bus.Event{
		Type:   bus.EventFormatterResponse,
		Source: "command",
		Payload: map[string]any{
			"response": resp,
			"adapter":  msg.Channel,
		},
	})
	return true
}

func (h *Handler) respond(cmd *Command) domain.Response {
	switch cmd.Name {
	case "", "help":
		return domain.Response{Message: h.helpText()}

	case "ping":
		return domain.Response{Message: "PONG"}

	case "uptime":
		return domain.Response{Message: fmt.Sprintf("Uptime: %s", h.uptime())}

	case "version":
		return domain.Response{Message: fmt.Sprintf("%s v%s (%s/%s, Go %s)", h.botName, version, runtime.GOOS, runtime.GOARCH, runtime.Version())}

	case "status":
		return domain.Response{Attachments: []domain.Attachment{h.statusCard()}}

	case "format":
		if cmd.Args == "" {
			return domain.Response{Message: "Usage: `" + h.botName + " format <markdown>`"}
		}
		return domain.Response{Message: cmd.Args}

	case "card":
		return domain.Response{Attachments: []domain.Attachment{parseCard(cmd.Args)}}

	case "sample":
		n := defaultSampleCards
		if cmd.Args != "" {
			v, err := strconv.Atoi(cmd.Args)
			if err != nil || v < 0 {
				return domain.Response{Message: "Usage: `" + h.botName + " sample [count]`"}
			}
			n = min(v, maxSampleCards)
		}
		return domain.Response{Attachments: sampleCards(n)}

	default:
		return domain.Response{Message: fmt.Sprintf("Sorry, I don't know `%s`. Try `%s help`.", cmd.Name, h.botName)}
	}
}

func (h *Handler) uptime() time.Duration {
	return time.Since(h.started).Round(time.Second)
}

func (h *Handler) helpText() string {
	b := h.botName
	return "**" + b + " commands**\n\n" +
		"* `" + b + " help` show this help\n" +
		"* `" + b + " ping` reply PONG\n" +
		"* `" + b + " uptime` show uptime\n" +
		"* `" + b + " version` show version info\n" +
		"* `" + b + " status` show a status card\n" +
		"* `" + b + " format <markdown>` render markdown for this chat\n" +
		"* `" + b + " card <title> | <text> [| <link>]` show one card\n" +
		"* `" + b + " sample [count]` show sample cards"
}

func (h *Handler) statusCard() domain.Attachment {
	return domain.Attachment{
		Title: h.botName + " status",
		Color: "good",
		Fields: []domain.Field{
			{Title: "Version", Value: version, Short: true},
			{Title: "Uptime", Value: h.uptime().String(), Short: true},
			{Title: "Pipelines", Value: strings.Join(h.pipelines, ", ")},
			{Title: "Runtime", Value: fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())},
		},
	}
}

// parseCard reads "title | text | link"; missing parts stay empty.
func parseCard(args string) domain.Attachment {
	parts := strings.SplitN(args, "|", 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	a := domain.Attachment{Title: parts[0]}
	if len(parts) > 1 {
		a.Text = parts[1]
	}
	if len(parts) > 2 {
		a.TitleLink = parts[2]
	}
	return a
}

func sampleCards(n int) []domain.Attachment {
	cards := make([]domain.Attachment, 0, n)
	for i := 1; i <= n; i++ {
		cards = append(cards, domain.Attachment{
			Title:     fmt.Sprintf("Sample %d", i),
			TitleLink: fmt.Sprintf("https://example.com/samples/%d", i),
			Text:      fmt.Sprintf("This is sample card number %d.", i),
			Fields: []domain.Field{
				{Title: "index", Value: strconv.Itoa(i), Short: true},
				{Title: "of", Value: strconv.Itoa(n), Short: true},
			},
		})
	}
	return cards
}
