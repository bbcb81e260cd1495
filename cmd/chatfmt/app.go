package main

import (
	"chatfmt/internal/bus"
	"chatfmt/internal/channel"
	"chatfmt/internal/config"
	"chatfmt/internal/format"
	"chatfmt/internal/metrics"
	"chatfmt/internal/router"
	"chatfmt/internal/upload"

	"github.com/slack-go/slack"
)

// app holds the formatting core shared by render and serve.
type app struct {
	cfg         *config.Config
	events      *bus.EventBus
	slack       *format.Slack
	router      *router.Router
	slackClient *slack.Client // nil without a bot token
}

func newApp(cfg *config.Config, events *bus.EventBus) *app {
	a := &app{cfg: cfg, events: events}

	var uploader format.Uploader
	if sc := cfg.Channels.Slack; sc.BotToken != "" {
		a.slackClient = channel.NewSlackClient(sc.BotToken, sc.AppToken)
		uploader = upload.NewSlack(a.slackClient, logger)
	}

	opts := format.Options{
		Logger:  logger,
		Events:  events,
		Metrics: metrics.Collector,
		Limits: format.Limits{
			CarouselElements: cfg.Limits.CarouselElements,
			SlackAttachments: cfg.Limits.SlackAttachments,
			MessageSegment:   cfg.Limits.MessageSegment,
		},
	}
	a.slack = format.NewSlack(uploader, opts)
	a.router = router.New(router.Config{
		Pipelines: []format.Pipeline{
			a.slack,
			format.NewMessenger(opts),
			format.NewText(opts),
			format.NewWeb(opts),
		},
		Aliases:               cfg.Router.Aliases,
		MentionPrefixAdapters: cfg.Router.MentionPrefixAdapters,
		BotName:               cfg.General.BotName,
		Logger:                logger,
	})
	return a
}
