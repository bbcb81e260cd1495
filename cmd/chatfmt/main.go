package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"chatfmt/internal/command"
	"chatfmt/internal/config"
	"chatfmt/internal/logging"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	logCloser  io.Closer = nopCloser{}
	configPath string // overridable via --config flag
	logLevel   string // overridable via --log-level flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	command.SetVersion(version)

	root := &cobra.Command{
		Use:   "chatfmt",
		Short: "chatfmt: chat response formatter",
		Long: "chatfmt turns one adapter-agnostic response (message, attachments, file)\n" +
			"into what Slack, Messenger, a terminal or a web page can display.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file, .json or .yaml (default: ~/.chatfmt/config.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(initCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	err := root.Execute()
	logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist, and switches the global logger to the configured handler.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if _, statErr := os.Stat(cfgPath); !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Debug("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	if err := setupLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) error {
	l, closer, err := logging.New(os.Stderr, logging.Options{
		Level:      cfg.General.LogLevel,
		File:       cfg.General.LogFile,
		MaxSizeMB:  cfg.General.LogMaxSizeMB,
		MaxBackups: cfg.General.LogMaxBackups,
		MaxAgeDays: cfg.General.LogMaxAgeDays,
		Compress:   cfg.General.LogCompress,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logCloser.Close()
	logger, logCloser = l, closer
	slog.SetDefault(logger)
	return nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatfmt v%s\n", version)
		},
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
