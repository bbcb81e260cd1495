package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/config"
	"chatfmt/internal/domain"
	"chatfmt/internal/format"
)

const (
	defaultGraphAPI         = "https://graph.facebook.com/v21.0"
	defaultMessengerWebhook = "/webhook/messenger"
)

// EventSource is the subscription half of bus.EventBus.
type EventSource interface {
	On(eventType string, handler bus.EventHandler) string
	Off(eventType, handlerID string)
}

// Messenger implements domain.Channel for the Messenger Platform: inbound
// messages arrive on a webhook, outbound ones go through the Graph Send API.
type Messenger struct {
	cfg    config.MessengerConfig
	events EventSource
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
	mux    *http.ServeMux

	mu        sync.Mutex
	handlerID string
}

type MessengerChannelConfig struct {
	Config config.MessengerConfig
	Events EventSource
	Logger *slog.Logger
	Client *http.Client
}

func NewMessenger(cfg MessengerChannelConfig) *Messenger {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Config.GraphAPI == "" {
		cfg.Config.GraphAPI = defaultGraphAPI
	}
	if cfg.Config.WebhookPath == "" {
		cfg.Config.WebhookPath = defaultMessengerWebhook
	}
	m := &Messenger{
		cfg:    cfg.Config,
		events: cfg.Events,
		logger: cfg.Logger,
		client: cfg.Client,
	}
	m.mux = http.NewServeMux()
	m.mux.HandleFunc("GET "+m.cfg.WebhookPath, m.handleVerification)
	m.mux.HandleFunc("POST "+m.cfg.WebhookPath, m.handleIncoming)
	return m
}

func (m *Messenger) Name() string { return "fb" }

// Start registers the fb.message delivery handler. The webhook is served by
// whoever mounts Handler.
func (m *Messenger) Start(ctx context.Context, mb domain.MessageBus) error {
	m.bus = mb

	if m.events != nil {
		id := m.events.On(bus.EventMessengerMessage, func(e bus.Event) {
			m.deliverEvent(ctx, e)
		})
		m.mu.Lock()
		m.handlerID = id
		m.mu.Unlock()
	}

	m.logger.Info("messenger channel ready", "webhook", m.cfg.WebhookPath)
	return nil
}

func (m *Messenger) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events != nil && m.handlerID != "" {
		m.events.Off(bus.EventMessengerMessage, m.handlerID)
		m.handlerID = ""
	}
	return nil
}

// Handler returns the HTTP handler for the webhook (to be mounted on the main mux).
func (m *Messenger) Handler() http.Handler { return m.mux }

// WebhookPath is where Handler expects to be mounted.
func (m *Messenger) WebhookPath() string { return m.cfg.WebhookPath }

func (m *Messenger) deliverEvent(ctx context.Context, e bus.Event) {
	env, _ := e.Payload["envelope"].(domain.Envelope)
	msg, ok := e.Payload["message"].(format.MessengerMessage)
	if !ok {
		m.logger.Warn("messenger event without message", "source", e.Source)
		return
	}
	if err := m.Deliver(ctx, env.Room, msg); err != nil {
		m.logger.Error("messenger send failed", "err", err, "recipient", env.Room)
	}
}

// Deliver posts one message to a recipient through the Send API.
func (m *Messenger) Deliver(ctx context.Context, recipient string, msg format.MessengerMessage) error {
	if recipient == "" {
		return fmt.Errorf("messenger: no recipient")
	}

	payload := sendRequest{
		Recipient:     sendRecipient{ID: recipient},
		MessagingType: "RESPONSE",
		Message:       msg,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	endpoint := m.cfg.GraphAPI + "/me/messages?access_token=" + url.QueryEscape(m.cfg.PageToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("messenger API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- Webhook handlers ---

func (m *Messenger) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == m.cfg.VerifyToken {
		m.logger.Info("messenger webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	m.logger.Warn("messenger webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (m *Messenger) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if m.cfg.AppSecret != "" && !m.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		m.logger.Warn("messenger invalid signature")
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	var payload fbPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		m.logger.Warn("messenger bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}
	if payload.Object != "page" {
		http.Error(rw, "Not found", http.StatusNotFound)
		return
	}

	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil || ev.Message.IsEcho || ev.Message.Text == "" {
				continue
			}
			m.logger.Debug("messenger message received", "sender", ev.Sender.ID, "text_len", len(ev.Message.Text))
			if m.bus == nil {
				continue
			}
			m.bus.Publish(domain.InboundMessage{
				Channel:   "fb",
				ChatID:    ev.Sender.ID,
				SenderID:  ev.Sender.ID,
				Content:   ev.Message.Text,
				Timestamp: time.Now(),
				Responder: &messengerResponder{m: m, env: domain.Envelope{Room: ev.Sender.ID, User: ev.Sender.ID}},
			})
		}
	}

	// The platform retries anything that is not a 200.
	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, "EVENT_RECEIVED")
}

// verifySignature checks the X-Hub-Signature-256 header.
func (m *Messenger) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(m.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// messengerResponder sends plain text straight back to the sender.
type messengerResponder struct {
	m   *Messenger
	env domain.Envelope
}

func (r *messengerResponder) Send(ctx context.Context, text string) error {
	return r.m.Deliver(ctx, r.env.Room, format.MessengerMessage{Text: text})
}

func (r *messengerResponder) Reply(ctx context.Context, text string) error {
	return r.Send(ctx, text)
}

func (r *messengerResponder) Envelope() domain.Envelope { return r.env }

// --- Send API and webhook payload types ---

type sendRequest struct {
	Recipient     sendRecipient           `json:"recipient"`
	MessagingType string                  `json:"messaging_type"`
	Message       format.MessengerMessage `json:"message"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

type fbPayload struct {
	Object string    `json:"object"`
	Entry  []fbEntry `json:"entry"`
}

type fbEntry struct {
	ID        string             `json:"id"`
	Time      int64              `json:"time"`
	Messaging []fbMessagingEvent `json:"messaging"`
}

type fbMessagingEvent struct {
	Sender    fbParty    `json:"sender"`
	Recipient fbParty    `json:"recipient"`
	Timestamp int64      `json:"timestamp"`
	Message   *fbMessage `json:"message,omitempty"`
}

type fbParty struct {
	ID string `json:"id"`
}

type fbMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}
