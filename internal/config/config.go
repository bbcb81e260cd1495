package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for chatfmt.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Router   RouterConfig   `json:"router" yaml:"router"`
	Limits   LimitsConfig   `json:"limits" yaml:"limits"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	BotName       string `json:"botName" yaml:"botName"`
	Adapter       string `json:"adapter" yaml:"adapter"` // pipeline used for formatter.response events
	LogLevel      string `json:"logLevel" yaml:"logLevel"`
	LogFile       string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional rotating log file
	LogMaxSizeMB  int    `json:"logMaxSizeMB,omitempty" yaml:"logMaxSizeMB,omitempty"`
	LogMaxBackups int    `json:"logMaxBackups,omitempty" yaml:"logMaxBackups,omitempty"`
	LogMaxAgeDays int    `json:"logMaxAgeDays,omitempty" yaml:"logMaxAgeDays,omitempty"`
	LogCompress   bool   `json:"logCompress,omitempty" yaml:"logCompress,omitempty"`
}

// RouterConfig configures adapter lookup and inbound rewriting.
type RouterConfig struct {
	Aliases               map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty"` // extra name -> pipeline
	MentionPrefixAdapters []string          `json:"mentionPrefixAdapters" yaml:"mentionPrefixAdapters"`
}

// LimitsConfig holds per-platform batching limits.
type LimitsConfig struct {
	CarouselElements int `json:"carouselElements" yaml:"carouselElements"`
	SlackAttachments int `json:"slackAttachments" yaml:"slackAttachments"`
	MessageSegment   int `json:"messageSegment" yaml:"messageSegment"`
}

type ChannelsConfig struct {
	Slack     SlackConfig     `json:"slack" yaml:"slack"`
	Messenger MessengerConfig `json:"messenger" yaml:"messenger"`
	Web       WebConfig       `json:"web" yaml:"web"`
	CLI       CLIConfig       `json:"cli" yaml:"cli"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"botToken" yaml:"botToken"`
	AppToken string `json:"appToken" yaml:"appToken"` // required for Socket Mode
}

type MessengerConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	PageToken   string `json:"pageToken,omitempty" yaml:"pageToken,omitempty"`
	AppSecret   string `json:"appSecret,omitempty" yaml:"appSecret,omitempty"`
	VerifyToken string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty"`
	WebhookPath string `json:"webhookPath,omitempty" yaml:"webhookPath,omitempty"`
	GraphAPI    string `json:"graphApi,omitempty" yaml:"graphApi,omitempty"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// MetricsConfig configures the Prometheus endpoint on the web channel.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// Pipelines are the recognised pipeline names.
var Pipelines = []string{"slack", "fb", "text", "web"}

// DefaultConfigDir returns the default config directory (~/.chatfmt).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatfmt"
	}
	return filepath.Join(home, ".chatfmt")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as JSON, or as YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.General.BotName) == "" {
		errs = append(errs, "general.botName must not be empty")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.LogFile != "" && (cfg.General.LogMaxSizeMB < 1 || cfg.General.LogMaxBackups < 1 || cfg.General.LogMaxAgeDays < 1) {
		errs = append(errs, "general.logMaxSizeMB, logMaxBackups and logMaxAgeDays must be >= 1 when logFile is set")
	}

	for alias, target := range cfg.Router.Aliases {
		if !isPipeline(target) {
			errs = append(errs, fmt.Sprintf("router.aliases.%s references unknown pipeline: %s", alias, target))
		}
	}

	if cfg.Limits.CarouselElements < 1 {
		errs = append(errs, "limits.carouselElements must be >= 1")
	}
	if cfg.Limits.SlackAttachments < 1 {
		errs = append(errs, "limits.slackAttachments must be >= 1")
	}
	if cfg.Limits.MessageSegment < 1 {
		errs = append(errs, "limits.messageSegment must be >= 1")
	}

	if cfg.Channels.Slack.Enabled && (cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "") {
		errs = append(errs, "channels.slack: botToken and appToken are required when enabled")
	}
	if cfg.Channels.Messenger.Enabled && (cfg.Channels.Messenger.PageToken == "" || cfg.Channels.Messenger.VerifyToken == "") {
		errs = append(errs, "channels.messenger: pageToken and verifyToken are required when enabled")
	}
	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isPipeline(name string) bool {
	for _, p := range Pipelines {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
