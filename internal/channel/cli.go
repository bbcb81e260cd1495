package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"chatfmt/internal/domain"
)

const cliPrompt = "You> "

// CLI implements domain.Channel for interactive terminal chat. It is also
// the Responder for the messages it publishes.
type CLI struct {
	bus     domain.MessageBus
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	botName string

	outMu sync.Mutex
}

type CLIConfig struct {
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
	BotName string
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.BotName == "" {
		cfg.BotName = "chatfmt"
	}
	return &CLI{
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
		botName: cfg.BotName,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until input ends, the user
// quits or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	c.write(fmt.Sprintf("%s CLI. Address the bot as %q. Type /quit to exit.\n%s", c.botName, c.botName, cliPrompt))

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err // nil on EOF
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				c.write(cliPrompt)
				continue
			}
			if line == "/quit" || line == "/exit" || line == "/q" {
				c.logger.Info("user requested quit")
				return nil
			}
			c.bus.Publish(domain.InboundMessage{
				Channel:   "cli",
				ChatID:    "direct",
				SenderID:  "user",
				Content:   line,
				Timestamp: time.Now(),
				Responder: c,
			})
		}
	}
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(ctx context.Context, text string) error {
	return c.write(fmt.Sprintf("--- %s ---\n%s\n%s\n%s", c.botName, text, strings.Repeat("-", len(c.botName)+8), cliPrompt))
}

func (c *CLI) Reply(ctx context.Context, text string) error {
	return c.Send(ctx, text)
}

func (c *CLI) Envelope() domain.Envelope {
	return domain.Envelope{Room: "direct", User: "user"}
}

func (c *CLI) write(s string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := io.WriteString(c.out, s)
	return err
}
