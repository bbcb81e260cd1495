package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSMessage is the JSON protocol spoken on GET /ws.
type WSMessage struct {
	Type    string     `json:"type"` // "message" | "status" | "event"
	Content string     `json:"content,omitempty"`
	Room    string     `json:"room,omitempty"`
	Event   *bus.Event `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the API binds to localhost by default
	},
}

// wsClient is one connected socket watching a room.
type wsClient struct {
	conn *websocket.Conn
	room string
	mu   sync.Mutex
}

func (c *wsClient) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWebSocket streams every event addressed to ?room= and turns
// incoming "message" frames into inbound chat messages for that room.
func (w *Web) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		room = "ws_" + uuid.NewString()
	}
	client := &wsClient{conn: conn, room: room}

	if w.events != nil {
		id := w.events.On("*", func(e bus.Event) {
			env, _ := e.Payload["envelope"].(domain.Envelope)
			if env.Room != room {
				return
			}
			if err := client.send(WSMessage{Type: "event", Room: room, Event: &e}); err != nil {
				w.logger.Debug("websocket write failed", "room", room, "err", err)
			}
		})
		defer w.events.Off("*", id)
	}

	w.logger.Info("websocket client connected", "room", room)
	defer func() {
		conn.Close()
		w.logger.Info("websocket client disconnected", "room", room)
	}()

	client.send(WSMessage{Type: "status", Content: "connected", Room: room})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Error("websocket read error", "room", room, "err", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn("invalid websocket message", "room", room, "err", err)
			continue
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}
		if w.bus == nil {
			client.send(WSMessage{Type: "status", Content: "bus not attached", Room: room})
			continue
		}
		w.bus.Publish(domain.InboundMessage{
			Channel:   "web",
			ChatID:    room,
			SenderID:  "ws_user",
			Content:   msg.Content,
			Timestamp: time.Now(),
			Responder: &wsResponder{client: client, env: domain.Envelope{Room: room, User: "ws_user"}},
		})
	}
}

// wsResponder writes plain text back to the socket a message came from.
type wsResponder struct {
	client *wsClient
	env    domain.Envelope
}

func (r *wsResponder) Send(ctx context.Context, text string) error {
	return r.client.send(WSMessage{Type: "message", Content: text, Room: r.env.Room})
}

func (r *wsResponder) Reply(ctx context.Context, text string) error {
	return r.Send(ctx, text)
}

func (r *wsResponder) Envelope() domain.Envelope { return r.env }
