package command

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type nopResponder struct{}

func (nopResponder) Send(ctx context.Context, text string) error  { return nil }
func (nopResponder) Reply(ctx context.Context, text string) error { return nil }
func (nopResponder) Envelope() domain.Envelope                    { return domain.Envelope{Room: "C1"} }

type eventLog struct {
	mu     sync.Mutex
	events []bus.Event
}

func (l *eventLog) Emit(e bus.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []bus.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bus.Event(nil), l.events...)
}

func newTestHandler(events Emitter) *Handler {
	return NewHandler(HandlerConfig{
		Bus:       bus.New(10, testLogger()),
		Events:    events,
		BotName:   "chatfmt",
		Pipelines: []string{"slack", "fb", "text", "web"},
		Logger:    testLogger(),
		Limiter:   NewRateLimiter(100, 600),
	})
}

func handle(t *testing.T, text string) domain.Response {
	t.Helper()
	log := &eventLog{}
	h := newTestHandler(log)
	if !h.Handle(context.Background(), domain.InboundMessage{Channel: "slack", ChatID: "C1", Content: text, Responder: nopResponder{}}) {
		t.Fatalf("Handle(%q) not handled", text)
	}
	events := log.all()
	if len(events) != 1 || events[0].Type != bus.EventFormatterResponse {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Payload["adapter"] != "slack" {
		t.Errorf("adapter = %v", events[0].Payload["adapter"])
	}
	resp, ok := events[0].Payload["response"].(domain.Response)
	if !ok {
		t.Fatalf("payload response = %T", events[0].Payload["response"])
	}
	if resp.Responder == nil {
		t.Error("response lost its responder")
	}
	return resp
}

func TestHandle_Commands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"chatfmt ping", "PONG"},
		{"chatfmt", "**chatfmt commands**"},
		{"chatfmt help", "`chatfmt format <markdown>`"},
		{"chatfmt uptime", "Uptime: "},
		{"chatfmt version", "chatfmt v" + Version()},
		{"chatfmt format *hi* there", "*hi* there"},
		{"chatfmt format", "Usage: `chatfmt format <markdown>`"},
		{"chatfmt sample x", "Usage: `chatfmt sample [count]`"},
		{"chatfmt dance", "Sorry, I don't know `dance`."},
	}
	for _, tt := range tests {
		resp := handle(t, tt.text)
		if !strings.Contains(resp.Message, tt.want) {
			t.Errorf("%q: message = %q, want it to contain %q", tt.text, resp.Message, tt.want)
		}
	}
}

func TestHandle_Status(t *testing.T) {
	resp := handle(t, "chatfmt status")
	if len(resp.Attachments) != 1 {
		t.Fatalf("attachments = %+v", resp.Attachments)
	}
	card := resp.Attachments[0]
	if card.Title != "chatfmt status" {
		t.Errorf("title = %q", card.Title)
	}
	var pipelines string
	for _, f := range card.Fields {
		if f.Title == "Pipelines" {
			pipelines = f.Value
		}
	}
	if pipelines != "slack, fb, text, web" {
		t.Errorf("pipelines = %q", pipelines)
	}
}

func TestHandle_Card(t *testing.T) {
	resp := handle(t, "chatfmt card Deploy | v2 is live | https://example.com/d")
	want := domain.Attachment{Title: "Deploy", Text: "v2 is live", TitleLink: "https://example.com/d"}
	if len(resp.Attachments) != 1 || resp.Attachments[0].Title != want.Title ||
		resp.Attachments[0].Text != want.Text || resp.Attachments[0].TitleLink != want.TitleLink {
		t.Errorf("attachments = %+v", resp.Attachments)
	}
}

func TestHandle_Sample(t *testing.T) {
	if resp := handle(t, "chatfmt sample"); len(resp.Attachments) != defaultSampleCards {
		t.Errorf("default sample = %d cards", len(resp.Attachments))
	}
	if resp := handle(t, "chatfmt sample 12"); len(resp.Attachments) != 12 {
		t.Errorf("sample 12 = %d cards", len(resp.Attachments))
	}
	if resp := handle(t, "chatfmt sample 1000"); len(resp.Attachments) != maxSampleCards {
		t.Errorf("sample 1000 = %d cards", len(resp.Attachments))
	}
	resp := handle(t, "chatfmt sample 0")
	if resp.Attachments == nil || len(resp.Attachments) != 0 {
		t.Errorf("sample 0 = %#v, want empty non-nil", resp.Attachments)
	}
}

func TestHandle_Ignored(t *testing.T) {
	log := &eventLog{}
	h := newTestHandler(log)

	if h.Handle(context.Background(), domain.InboundMessage{Content: "just chatting", Responder: nopResponder{}}) {
		t.Error("unaddressed message handled")
	}
	if h.Handle(context.Background(), domain.InboundMessage{Content: "chatfmt ping"}) {
		t.Error("message without responder handled")
	}
	if n := len(log.all()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestHandle_RateLimited(t *testing.T) {
	log := &eventLog{}
	h := NewHandler(HandlerConfig{
		Bus:     bus.New(1, testLogger()),
		Events:  log,
		BotName: "chatfmt",
		Logger:  testLogger(),
		Limiter: NewRateLimiter(1, 1),
	})
	msg := domain.InboundMessage{Channel: "web", ChatID: "s1", Content: "chatfmt ping", Responder: nopResponder{}}
	if !h.Handle(context.Background(), msg) {
		t.Fatal("first message refused")
	}
	if h.Handle(context.Background(), msg) {
		t.Error("second message should be rate limited")
	}
}

func TestRun_ConsumesBus(t *testing.T) {
	log := &eventLog{}
	mb := bus.New(10, testLogger())
	h := NewHandler(HandlerConfig{Bus: mb, Events: log, BotName: "chatfmt", Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	mb.Publish(domain.InboundMessage{Channel: "cli", Content: "chatfmt ping", Responder: nopResponder{}})

	deadline := time.After(2 * time.Second)
	for len(log.all()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no response emitted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
