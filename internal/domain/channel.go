package domain

import "context"

// Channel is a chat surface (Slack, Messenger, CLI, Web).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
