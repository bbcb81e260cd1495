package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/channel"
	"chatfmt/internal/command"
	"chatfmt/internal/config"
	"chatfmt/internal/domain"
	"chatfmt/internal/metrics"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var noCLI bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the enabled channels and the formatter",
		Long: "Starts the event bus, the router, the command handler and every enabled\n" +
			"channel (Slack, Messenger, Web API, CLI). Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noCLI {
				cfg.Channels.CLI.Enabled = false
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().BoolVar(&noCLI, "no-cli", false, "do not read chat messages from stdin")
	return cmd
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus(logger)
	a := newApp(cfg, events)

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(100, logger)
	messageBus.Use(a.router.InboundMiddleware())

	stopListen := a.router.Listen(ctx, events, cfg.General.Adapter)

	handler := command.NewHandler(command.HandlerConfig{
		Bus:       messageBus,
		Events:    events,
		BotName:   cfg.General.BotName,
		Pipelines: config.Pipelines,
		Logger:    logger,
	})
	go handler.Run(ctx)

	var channels []domain.Channel
	start := func(ch domain.Channel, onExit func()) {
		channels = append(channels, ch)
		go func() {
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
			if onExit != nil {
				onExit()
			}
		}()
		logger.Info("channel enabled", "channel", ch.Name())
	}

	if cfg.Channels.Slack.Enabled {
		start(channel.NewSlack(channel.SlackConfig{
			Client:  a.slackClient,
			Events:  events,
			BotName: cfg.General.BotName,
			Logger:  logger,
		}), nil)
	}

	mounts := map[string]http.Handler{}
	if cfg.Channels.Messenger.Enabled {
		m := channel.NewMessenger(channel.MessengerChannelConfig{
			Config: cfg.Channels.Messenger,
			Events: events,
			Logger: logger,
		})
		mounts[m.WebhookPath()] = m.Handler()
		if !cfg.Channels.Web.Enabled {
			logger.Warn("messenger webhook is served by the web channel, which is disabled")
		}
		start(m, nil)
	}

	if cfg.Channels.Web.Enabled {
		webCfg := channel.WebConfig{
			Host:      cfg.Channels.Web.Host,
			Port:      cfg.Channels.Web.Port,
			Logger:    logger,
			Config:    cfg,
			Version:   version,
			Formatter: a.router,
			Events:    events,
			Adapter:   cfg.General.Adapter,
			Mounts:    mounts,
		}
		if cfg.Metrics.Enabled {
			webCfg.Metrics = metrics.Collector.Handler()
			webCfg.MetricsPath = cfg.Metrics.Endpoint
		}
		start(channel.NewWeb(webCfg), nil)
	}

	if cfg.Channels.CLI.Enabled {
		// Leaving the REPL stops the whole process.
		start(channel.NewCLI(channel.CLIConfig{Logger: logger, BotName: cfg.General.BotName}), stop)
	}

	if len(channels) == 0 {
		logger.Warn("no channels enabled; only formatter.response events will be handled")
	}

	logger.Info("chatfmt started. Press Ctrl+C to stop.", "adapter", cfg.General.Adapter)

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		stopListen()
		a.slack.Wait()
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}
