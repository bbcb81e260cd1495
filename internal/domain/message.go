package domain

import "time"

type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Timestamp time.Time
	Responder Responder // replies go back through the originating channel
}

// Middleware rewrites an inbound message before it reaches subscribers.
type Middleware func(msg *InboundMessage)
