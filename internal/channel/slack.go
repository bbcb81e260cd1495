package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// slackPoster is the part of the Web API the channel posts through.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack implements domain.Channel for Slack using Socket Mode. It also
// delivers the slack.attachment events produced by the slack pipeline.
type Slack struct {
	client  *slack.Client
	poster  slackPoster
	socket  *socketmode.Client
	events  EventSource
	bus     domain.MessageBus
	logger  *slog.Logger
	botName string
	botUID  string // the bot's own user ID, to avoid replying to self

	mu        sync.Mutex
	handlerID string
}

// SlackConfig configures the Slack channel. Client is shared with the file
// uploader; Poster overrides it for posting only. Mentions of the bot are
// rewritten to BotName.
type SlackConfig struct {
	Client  *slack.Client
	Poster  slackPoster
	Events  EventSource
	BotName string
	Logger  *slog.Logger
}

// NewSlackClient builds the Web API client for a bot and app token pair.
func NewSlackClient(botToken, appToken string) *slack.Client {
	return slack.New(botToken, slack.OptionAppLevelToken(appToken))
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	s := &Slack{
		client:  cfg.Client,
		poster:  cfg.Poster,
		events:  cfg.Events,
		botName: cfg.BotName,
		logger:  cfg.Logger,
	}
	if s.poster == nil && s.client != nil {
		s.poster = s.client
	}
	return s
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and begins listening for events.
// It blocks until ctx is cancelled or the socket fails.
func (s *Slack) Start(ctx context.Context, mb domain.MessageBus) error {
	s.bus = mb
	if s.client == nil {
		return fmt.Errorf("slack: no client configured")
	}

	authResp, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	s.listenAttachments(ctx)

	socketClient := socketmode.New(s.client)
	s.socket = socketClient

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)

			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleSlashCommand(cmd)

			default:
				// Acknowledge unknown events to prevent Socket Mode disconnection.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil && s.handlerID != "" {
		s.events.Off(bus.EventSlackAttachment, s.handlerID)
		s.handlerID = ""
	}
	return nil
}

// listenAttachments posts every slack.attachment event to its room.
func (s *Slack) listenAttachments(ctx context.Context) {
	if s.events == nil {
		return
	}
	id := s.events.On(bus.EventSlackAttachment, func(e bus.Event) {
		env, _ := e.Payload["envelope"].(domain.Envelope)
		attachments, _ := e.Payload["attachments"].([]domain.Attachment)
		if err := s.PostAttachments(ctx, env.Room, attachments); err != nil {
			s.logger.Error("slack attachment post failed", "channel", env.Room, "err", err)
		}
	})
	s.mu.Lock()
	s.handlerID = id
	s.mu.Unlock()
}

// PostAttachments posts one message carrying attachments. An empty batch
// posts nothing.
func (s *Slack) PostAttachments(ctx context.Context, channelID string, attachments []domain.Attachment) error {
	if len(attachments) == 0 {
		s.logger.Debug("no slack attachments to post", "channel", channelID)
		return nil
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel for attachments")
	}
	if s.poster == nil {
		return fmt.Errorf("slack: no client configured")
	}
	_, _, err := s.poster.PostMessageContext(ctx, channelID,
		slack.MsgOptionAttachments(toSlackAttachments(attachments)...),
		slack.MsgOptionAsUser(true),
	)
	return err
}

// PostText posts text, split at slackMaxMsgLen on line boundaries where possible.
func (s *Slack) PostText(ctx context.Context, channelID, text string) error {
	if s.poster == nil {
		return fmt.Errorf("slack: no client configured")
	}
	for _, chunk := range splitSlackMessage(text, slackMaxMsgLen) {
		_, _, err := s.poster.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionAsUser(true),
		)
		if err != nil {
			return fmt.Errorf("slack post: %w", err)
		}
	}
	return nil
}

func toSlackAttachments(in []domain.Attachment) []slack.Attachment {
	out := make([]slack.Attachment, 0, len(in))
	for _, a := range in {
		sa := slack.Attachment{
			Color:      a.Color,
			Fallback:   a.Fallback,
			AuthorName: a.AuthorName,
			AuthorLink: a.AuthorLink,
			AuthorIcon: a.AuthorIcon,
			Title:      a.Title,
			TitleLink:  a.TitleLink,
			Pretext:    a.Pretext,
			Text:       a.Text,
			ImageURL:   a.ImageURL,
			ThumbURL:   a.ThumbURL,
			Footer:     a.Footer,
			FooterIcon: a.FooterIcon,
		}
		for _, f := range a.Fields {
			sa.Fields = append(sa.Fields, slack.AttachmentField{Title: f.Title, Value: f.Value, Short: f.Short})
		}
		out = append(out, sa)
	}
	return out
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Ignore bot's own messages and message_changed subtypes.
		if ev.User == s.botUID || ev.User == "" || ev.SubType != "" {
			return
		}
		// Mentions also arrive as app_mention.
		if s.botUID != "" && strings.Contains(ev.Text, "<@"+s.botUID+">") {
			return
		}
		s.logger.Debug("slack message received", "user", ev.User, "channel", ev.Channel, "content_len", len(ev.Text))
		s.publish(ev.Channel, ev.User, ev.Text)

	case *slackevents.AppMentionEvent:
		s.logger.Debug("slack mention received", "user", ev.User, "channel", ev.Channel)
		s.publish(ev.Channel, ev.User, ev.Text)
	}
}

func (s *Slack) handleSlashCommand(cmd slack.SlashCommand) {
	content := strings.TrimSpace(cmd.Command + " " + cmd.Text)
	s.logger.Debug("slack slash command", "command", cmd.Command, "user", cmd.UserID, "channel", cmd.ChannelID)
	s.publish(cmd.ChannelID, cmd.UserID, content)
}

// publish hands an inbound message to the bus with the bot's own mention
// replaced by its name.
func (s *Slack) publish(channelID, userID, text string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.InboundMessage{
		Channel:   "slack",
		ChatID:    channelID,
		SenderID:  userID,
		Content:   replaceBotMention(text, s.botUID, s.botName),
		Timestamp: time.Now(),
		Responder: &slackResponder{s: s, env: domain.Envelope{Room: channelID, User: userID}},
	})
}

func replaceBotMention(text, botUID, botName string) string {
	if botUID == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUID+">", botName))
}

// slackResponder posts to the channel a message came from. Replies mention
// the user.
type slackResponder struct {
	s   *Slack
	env domain.Envelope
}

func (r *slackResponder) Send(ctx context.Context, text string) error {
	return r.s.PostText(ctx, r.env.Room, text)
}

func (r *slackResponder) Reply(ctx context.Context, text string) error {
	if r.env.User != "" {
		text = "<@" + r.env.User + "> " + text
	}
	return r.s.PostText(ctx, r.env.Room, text)
}

func (r *slackResponder) Envelope() domain.Envelope { return r.env }

func splitSlackMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
