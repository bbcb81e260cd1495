package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatfmt/internal/bus"
	"chatfmt/internal/channel"
	"chatfmt/internal/domain"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type renderOutput struct {
	Adapter string      `json:"adapter"`
	Sent    []string    `json:"sent"`
	Replies []string    `json:"replies"`
	Events  []bus.Event `json:"events"`
}

func renderCmd() *cobra.Command {
	var (
		adapter string
		file    string
		room    string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Format one response and print what each platform would receive",
		Long: "Reads a response (message, attachments, filePath/fileName, initial_comment)\n" +
			"as JSON or YAML from --file or stdin, dispatches it through the pipeline for\n" +
			"--adapter and prints the delivered text and emitted events as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if adapter == "" {
				adapter = cfg.General.Adapter
			}

			resp, err := readResponse(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			events := bus.NewEventBusWithHistory(logger, 1000)
			a := newApp(cfg, events)

			capture := &channel.CaptureResponder{Env: domain.Envelope{Room: room, User: "cli"}}
			resp.Responder = capture

			start := time.Now()
			a.router.Dispatch(context.Background(), adapter, resp)
			a.slack.Wait()
			logger.Debug("rendered", "adapter", adapter, "elapsed", time.Since(start))

			out := renderOutput{
				Adapter: adapter,
				Sent:    capture.Sent(),
				Replies: capture.Replies(),
				Events:  events.Replay("*", time.Time{}),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&adapter, "adapter", "a", "", "adapter name (default: general.adapter)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "response file, .json or .yaml (default: stdin)")
	cmd.Flags().StringVar(&room, "room", "render", "room placed in the response envelope")
	return cmd
}

// readResponse decodes a response from path, or from in when path is empty.
// Files are decoded by extension; stdin is tried as JSON first, then YAML.
func readResponse(in io.Reader, path string) (domain.Response, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(in)
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp domain.Response
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".yaml" || ext == ".yml":
		err = yaml.Unmarshal(data, &resp)
	case ext == ".json":
		err = json.Unmarshal(data, &resp)
	default:
		if err = json.Unmarshal(data, &resp); err != nil {
			resp = domain.Response{}
			err = yaml.Unmarshal(data, &resp)
		}
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("parse response: %w", err)
	}
	return resp, nil
}
