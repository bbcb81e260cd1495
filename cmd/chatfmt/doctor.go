package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"chatfmt/internal/config"
	"chatfmt/internal/markdown"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the configuration",
		Long: `Verifies that the configuration loads, that enabled channels have their
credentials, that the web port is free and that the log file is writable.
Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.OutOrStdout(), resolveConfigPath())
		},
	}
}

type doctorReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func runDoctor(out io.Writer, cfgPath string) error {
	r := &doctorReport{out: out}
	fmt.Fprintf(out, "chatfmt doctor v%s\n", version)
	fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	// 1. Config file exists and loads
	cfg := config.Defaults()
	if _, err := os.Stat(cfgPath); err != nil {
		r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
	} else if loaded, err := config.Load(cfgPath); err != nil {
		r.fail("Config validation", err.Error())
		return r.summary()
	} else {
		r.pass("Config file", cfgPath)
		cfg = loaded
	}

	// 2. Renderers build
	renderersOK := true
	for name, preset := range map[string]markdown.Config{"chat": markdown.Chat(), "strip": markdown.Strip(), "web": markdown.Web()} {
		if _, err := markdown.New(preset).Render("**ok**"); err != nil {
			r.fail("Renderer: "+name, err.Error())
			renderersOK = false
		}
	}
	if renderersOK {
		r.pass("Renderers", "chat, strip, web")
	}

	// 3. Channels
	if sc := cfg.Channels.Slack; sc.Enabled {
		switch {
		case !strings.HasPrefix(sc.BotToken, "xoxb-"):
			r.warn("Slack", "bot token does not look like xoxb-…")
		case !strings.HasPrefix(sc.AppToken, "xapp-"):
			r.warn("Slack", "app token does not look like xapp-… (needed for Socket Mode)")
		default:
			r.pass("Slack", "tokens configured")
		}
	}
	if mc := cfg.Channels.Messenger; mc.Enabled {
		if !cfg.Channels.Web.Enabled {
			r.fail("Messenger", "webhook needs channels.web.enabled")
		} else if mc.AppSecret == "" {
			r.warn("Messenger", "no appSecret: webhook signatures are not checked")
		} else {
			r.pass("Messenger", "webhook at "+mc.WebhookPath)
		}
	}

	// 4. Web port
	if cfg.Channels.Web.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Channels.Web.Host, cfg.Channels.Web.Port)
		if err := checkPort(addr); err != nil {
			r.warn("Web port", fmt.Sprintf("%s may be in use: %v", addr, err))
		} else {
			r.pass("Web port", addr+" available")
		}
	}

	// 5. Log file writable
	if cfg.General.LogFile != "" {
		logFile := config.ExpandPath(cfg.General.LogFile)
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", logFile)
		}
	}

	return r.summary()
}

func (r *doctorReport) summary() error {
	fmt.Fprintf(r.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
