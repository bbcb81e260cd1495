package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			BotName:       "chatfmt",
			Adapter:       "text",
			LogLevel:      "info",
			LogMaxSizeMB:  50,
			LogMaxBackups: 5,
			LogMaxAgeDays: 14,
		},
		Router: RouterConfig{
			Aliases: map[string]string{
				"messenger": "fb",
				"facebook":  "fb",
				"shell":     "text",
			},
			MentionPrefixAdapters: []string{"fb", "web"},
		},
		Limits: LimitsConfig{
			CarouselElements: 10,
			SlackAttachments: 50,
			MessageSegment:   300,
		},
		Channels: ChannelsConfig{
			Messenger: MessengerConfig{
				WebhookPath: "/webhook/messenger",
				GraphAPI:    "https://graph.facebook.com/v21.0",
			},
			Web: WebConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8080,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
