package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/config"
	"chatfmt/internal/domain"
	"chatfmt/internal/format"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// graphServer records every Send API request body.
type graphServer struct {
	mu     sync.Mutex
	bodies []sendRequest
	tokens []string
	status int
}

func (g *graphServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/me/messages" {
		http.NotFound(w, r)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.bodies = append(g.bodies, req)
	g.tokens = append(g.tokens, r.URL.Query().Get("access_token"))
	status := g.status
	g.mu.Unlock()
	if status != 0 {
		http.Error(w, `{"error":{"message":"bad"}}`, status)
		return
	}
	w.Write([]byte(`{"recipient_id":"1","message_id":"m"}`))
}

func (g *graphServer) requests() []sendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sendRequest(nil), g.bodies...)
}

func newTestMessenger(t *testing.T, events EventSource, cfg config.MessengerConfig) (*Messenger, *graphServer) {
	t.Helper()
	g := &graphServer{}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	cfg.GraphAPI = srv.URL
	if cfg.PageToken == "" {
		cfg.PageToken = "page-token"
	}
	m := NewMessenger(MessengerChannelConfig{
		Config: cfg,
		Events: events,
		Logger: testLogger(),
		Client: srv.Client(),
	})
	return m, g
}

func TestMessenger_Deliver(t *testing.T) {
	m, g := newTestMessenger(t, nil, config.MessengerConfig{})

	msg := format.Carousel([]domain.Attachment{{Title: "Card", Text: "body"}})
	if err := m.Deliver(context.Background(), "user-1", msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	reqs := g.requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Recipient.ID != "user-1" {
		t.Errorf("recipient = %q", reqs[0].Recipient.ID)
	}
	if reqs[0].Message.Attachment == nil || reqs[0].Message.Attachment.Payload.TemplateType != "generic" {
		t.Errorf("message = %+v, want generic template", reqs[0].Message)
	}
	if g.tokens[0] != "page-token" {
		t.Errorf("access_token = %q", g.tokens[0])
	}
}

func TestMessenger_DeliverErrors(t *testing.T) {
	m, g := newTestMessenger(t, nil, config.MessengerConfig{})

	if err := m.Deliver(context.Background(), "", format.MessengerMessage{Text: "x"}); err == nil {
		t.Error("expected error for empty recipient")
	}

	g.mu.Lock()
	g.status = http.StatusBadRequest
	g.mu.Unlock()
	err := m.Deliver(context.Background(), "user-1", format.MessengerMessage{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want API 400", err)
	}
}

func TestMessenger_DeliversEvents(t *testing.T) {
	events := bus.NewEventBus(testLogger())
	m, g := newTestMessenger(t, events, config.MessengerConfig{})
	if err := m.Start(context.Background(), bus.New(10, testLogger())); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events.Emit(bus.Event{Type: bus.EventMessengerMessage, Payload: map[string]any{
		"envelope": domain.Envelope{Room: "user-2"},
		"message":  format.MessengerMessage{Text: "hello"},
	}})

	reqs := g.requests()
	if len(reqs) != 1 || reqs[0].Message.Text != "hello" || reqs[0].Recipient.ID != "user-2" {
		t.Fatalf("requests = %+v", reqs)
	}

	// After Stop the handler is gone.
	m.Stop()
	events.Emit(bus.Event{Type: bus.EventMessengerMessage, Payload: map[string]any{
		"envelope": domain.Envelope{Room: "user-2"},
		"message":  format.MessengerMessage{Text: "again"},
	}})
	if n := len(g.requests()); n != 1 {
		t.Errorf("requests after Stop = %d, want 1", n)
	}
}

func TestMessenger_Verification(t *testing.T) {
	m, _ := newTestMessenger(t, nil, config.MessengerConfig{VerifyToken: "secret"})

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"ok", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=other&hub.verify_token=secret&hub.challenge=42", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook/messenger?"+tt.query, nil)
			w := httptest.NewRecorder()
			m.Handler().ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

const webhookBody = `{"object":"page","entry":[{"id":"p","time":1,"messaging":[
 {"sender":{"id":"u1"},"recipient":{"id":"p"},"message":{"mid":"a","text":"status"}},
 {"sender":{"id":"p"},"recipient":{"id":"u1"},"message":{"mid":"b","text":"echo","is_echo":true}}
]}]}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	io.WriteString(mac, body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestMessenger_IncomingPublishes(t *testing.T) {
	m, g := newTestMessenger(t, nil, config.MessengerConfig{AppSecret: "app"})
	mb := bus.New(10, testLogger())
	defer mb.Close()
	if err := m.Start(context.Background(), mb); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook/messenger", strings.NewReader(webhookBody))
	req.Header.Set("X-Hub-Signature-256", sign("app", webhookBody))
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}

	select {
	case msg := <-mb.Subscribe():
		if msg.Channel != "fb" || msg.SenderID != "u1" || msg.Content != "status" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.Responder == nil || msg.Responder.Envelope().Room != "u1" {
			t.Fatalf("responder envelope = %+v", msg.Responder)
		}
		if err := msg.Responder.Send(context.Background(), "pong"); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if reqs := g.requests(); len(reqs) != 1 || reqs[0].Message.Text != "pong" {
			t.Errorf("requests = %+v", reqs)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message published")
	}

	select {
	case msg := <-mb.Subscribe():
		t.Errorf("echo should be dropped, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMessenger_IncomingBadSignature(t *testing.T) {
	m, _ := newTestMessenger(t, nil, config.MessengerConfig{AppSecret: "app"})

	req := httptest.NewRequest(http.MethodPost, "/webhook/messenger", strings.NewReader(webhookBody))
	req.Header.Set("X-Hub-Signature-256", sign("other", webhookBody))
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestMessenger_IncomingNotPage(t *testing.T) {
	m, _ := newTestMessenger(t, nil, config.MessengerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/messenger", strings.NewReader(`{"object":"user"}`))
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
