package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/config"
	"chatfmt/internal/domain"

	"github.com/google/uuid"
)

const (
	maxFormSize       = 1 << 20 // 1MB
	maxBodySize       = 1 << 20
	requestTimeout    = 30 * time.Second
	sessionCookieName = "chatfmt_session"
	sessionMaxAge     = 86400 * 30 // 30 days
)

// Formatter dispatches a response through the pipeline for adapter.
type Formatter interface {
	Dispatch(ctx context.Context, adapter string, resp domain.Response)
}

// Web implements domain.Channel for the HTTP API. It serves the formatting
// endpoint, the chat endpoints feeding the inbound bus, and status.
type Web struct {
	host      string
	port      int
	bus       domain.MessageBus
	logger    *slog.Logger
	server    *http.Server
	mux       *http.ServeMux
	version   string
	cfg       *config.Config
	formatter Formatter
	events    EventSource
	adapter   string
	started   time.Time

	// Pending responses keyed by session ID
	pendingResponses   map[string]chan string
	pendingResponsesMu sync.Mutex
}

type WebConfig struct {
	Host    string
	Port    int
	Logger  *slog.Logger
	Config  *config.Config
	Version string

	// Formatter and Events back POST /api/format. Adapter is used when a
	// request names none.
	Formatter Formatter
	Events    EventSource
	Adapter   string

	MetricsPath string
	Metrics     http.Handler

	// Mounts are extra handlers served under their path pattern, such as
	// the Messenger webhook.
	Mounts map[string]http.Handler
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Adapter == "" {
		cfg.Adapter = "web"
	}
	w := &Web{
		host:             cfg.Host,
		port:             cfg.Port,
		logger:           cfg.Logger,
		version:          cfg.Version,
		cfg:              cfg.Config,
		formatter:        cfg.Formatter,
		events:           cfg.Events,
		adapter:          cfg.Adapter,
		started:          time.Now(),
		pendingResponses: make(map[string]chan string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/format", w.handleFormat)
	mux.HandleFunc("GET /api/config", w.handleGetConfig)
	mux.HandleFunc("POST /chat/send", w.handleSend)
	mux.HandleFunc("POST /chat/clear", w.handleClear)
	mux.HandleFunc("GET /status", w.handleStatus)
	mux.HandleFunc("GET /ws", w.handleWebSocket)
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, cfg.Metrics)
	}
	for pattern, h := range cfg.Mounts {
		mux.Handle(pattern, h)
	}
	w.mux = mux
	return w
}

func (w *Web) Name() string { return "web" }

// SetBus attaches the inbound bus without starting the server.
func (w *Web) SetBus(bus domain.MessageBus) { w.bus = bus }

// Handler returns the API mux.
func (w *Web) Handler() http.Handler { return w.mux }

// Start serves the API and blocks until ctx is cancelled.
func (w *Web) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus

	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:              addr,
		Handler:           w.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.logger.Info("web API started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

// --- POST /api/format ---

type formatRequest struct {
	Adapter  string          `json:"adapter"`
	Room     string          `json:"room"`
	User     string          `json:"user"`
	Response domain.Response `json:"response"`
}

type formatResult struct {
	Adapter string      `json:"adapter"`
	Room    string      `json:"room"`
	Sent    []string    `json:"sent"`
	Replies []string    `json:"replies"`
	Events  []bus.Event `json:"events"`
}

// handleFormat runs one response through a pipeline and reports everything
// it produced: plain text sent or replied, and emitted platform events.
func (w *Web) handleFormat(rw http.ResponseWriter, r *http.Request) {
	if w.formatter == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "formatter not configured"})
		return
	}

	var req formatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Adapter == "" {
		req.Adapter = w.adapter
	}
	if req.Room == "" {
		req.Room = uuid.NewString()
	}

	capture := &CaptureResponder{Env: domain.Envelope{Room: req.Room, User: req.User}}
	res := formatResult{Adapter: req.Adapter, Room: req.Room, Sent: []string{}, Replies: []string{}, Events: []bus.Event{}}

	var mu sync.Mutex
	if w.events != nil {
		id := w.events.On("*", func(e bus.Event) {
			env, _ := e.Payload["envelope"].(domain.Envelope)
			if env.Room != req.Room {
				return
			}
			mu.Lock()
			res.Events = append(res.Events, e)
			mu.Unlock()
		})
		defer w.events.Off("*", id)
	}

	resp := req.Response
	resp.Responder = capture
	w.formatter.Dispatch(r.Context(), req.Adapter, resp)

	mu.Lock()
	defer mu.Unlock()
	res.Sent = append(res.Sent, capture.Sent()...)
	res.Replies = append(res.Replies, capture.Replies()...)
	writeJSON(rw, http.StatusOK, res)
}

// --- POST /chat/send ---

// getOrCreateSession returns a persistent session ID from cookies.
// If no session exists, creates a new one and sets the cookie.
func (w *Web) getOrCreateSession(r *http.Request, rw http.ResponseWriter) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sessionID := "web_" + uuid.NewString()
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.logger.Debug("new web session created", "session", sessionID)
	return sessionID
}

func (w *Web) handleSend(rw http.ResponseWriter, r *http.Request) {
	// Support both application/x-www-form-urlencoded and multipart/form-data
	_ = r.ParseMultipartForm(maxFormSize)
	message := r.FormValue("message")
	if message == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "empty message"})
		return
	}
	if w.bus == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "bus not attached"})
		return
	}

	sessionID := w.getOrCreateSession(r, rw)

	responseCh := make(chan string, 1)
	w.pendingResponsesMu.Lock()
	// If a previous request is still pending, cancel it
	if oldCh, exists := w.pendingResponses[sessionID]; exists {
		close(oldCh)
	}
	w.pendingResponses[sessionID] = responseCh
	w.pendingResponsesMu.Unlock()

	defer func() {
		w.pendingResponsesMu.Lock()
		// Only delete if it's still our channel (not replaced by another request)
		if ch, ok := w.pendingResponses[sessionID]; ok && ch == responseCh {
			delete(w.pendingResponses, sessionID)
		}
		w.pendingResponsesMu.Unlock()
	}()

	w.bus.Publish(domain.InboundMessage{
		Channel:   "web",
		ChatID:    sessionID,
		SenderID:  "web_user",
		Content:   message,
		Timestamp: time.Now(),
		Responder: &webResponder{w: w, env: domain.Envelope{Room: sessionID, User: "web_user"}},
	})

	// Wait for response, also respect client disconnect via r.Context()
	timeout := time.NewTimer(requestTimeout)
	defer timeout.Stop()

	select {
	case resp, ok := <-responseCh:
		if ok {
			writeJSON(rw, http.StatusOK, map[string]string{"content": resp})
		} else {
			writeJSON(rw, http.StatusConflict, map[string]string{"error": "Superseded by new request"})
		}
	case <-timeout.C:
		writeJSON(rw, http.StatusGatewayTimeout, map[string]string{"error": "Request timed out"})
	case <-r.Context().Done():
		w.logger.Debug("web client disconnected", "session", sessionID)
	}
}

// deliver hands text to the request waiting on session, if any.
func (w *Web) deliver(session, text string) error {
	w.pendingResponsesMu.Lock()
	defer w.pendingResponsesMu.Unlock()
	ch, ok := w.pendingResponses[session]
	if !ok {
		return fmt.Errorf("web session %s: no pending request", session)
	}
	select {
	case ch <- text:
	default:
		w.logger.Debug("web session already answered", "session", session)
	}
	return nil
}

func (w *Web) handleClear(rw http.ResponseWriter, r *http.Request) {
	// Clear session by setting an expired cookie; the next request creates a new one
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(rw, http.StatusOK, map[string]string{"status": "session cleared"})
}

// --- GET /status, GET /api/config ---

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": w.version,
		"adapter": w.adapter,
		"uptime":  time.Since(w.started).Round(time.Second).String(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (w *Web) handleGetConfig(rw http.ResponseWriter, r *http.Request) {
	if w.cfg == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not loaded"})
		return
	}
	writeJSON(rw, http.StatusOK, config.Sanitize(w.cfg))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

// webResponder answers the /chat/send request of one session.
type webResponder struct {
	w   *Web
	env domain.Envelope
}

func (r *webResponder) Send(ctx context.Context, text string) error {
	return r.w.deliver(r.env.Room, text)
}

func (r *webResponder) Reply(ctx context.Context, text string) error {
	return r.w.deliver(r.env.Room, text)
}

func (r *webResponder) Envelope() domain.Envelope { return r.env }

// CaptureResponder records every text it is asked to deliver.
type CaptureResponder struct {
	Env domain.Envelope

	mu      sync.Mutex
	sent    []string
	replies []string
}

func (c *CaptureResponder) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *CaptureResponder) Reply(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

func (c *CaptureResponder) Envelope() domain.Envelope { return c.Env }

func (c *CaptureResponder) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *CaptureResponder) Replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}
