package domain

// MessageBus carries inbound chat messages from channels to the bot.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Use(mw Middleware)
	Close()
}
