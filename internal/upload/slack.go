// Package upload sends local files to a chat platform's file API.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/slack-go/slack"
)

// File is one local file bound for a conversation.
type File struct {
	Path           string
	Name           string
	Channel        string
	Title          string
	InitialComment string
}

// FileAPI is the part of *slack.Client the uploader needs.
type FileAPI interface {
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Slack uploads files through the Slack Web API. The bot token lives in
// the client. Uploads are attempted once.
type Slack struct {
	api    FileAPI
	logger *slog.Logger
}

// NewSlack wraps a Slack API client.
func NewSlack(api FileAPI, logger *slog.Logger) *Slack {
	return &Slack{api: api, logger: logger}
}

// NewSlackWithToken builds the client from a bot token.
func NewSlackWithToken(botToken string, logger *slog.Logger) *Slack {
	return NewSlack(slack.New(botToken), logger)
}

// Upload streams f.Path to f.Channel. The local file is left in place.
func (s *Slack) Upload(ctx context.Context, f File) error {
	if f.Channel == "" {
		return fmt.Errorf("upload %s: no destination channel", f.Path)
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("upload open: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("upload stat: %w", err)
	}

	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	title := f.Title
	if title == "" {
		title = name
	}

	summary, err := s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:         fh,
		FileSize:       int(info.Size()),
		Filename:       name,
		Title:          title,
		InitialComment: f.InitialComment,
		Channel:        f.Channel,
	})
	if err != nil {
		return fmt.Errorf("slack upload %s: %w", name, err)
	}

	s.logger.Debug("slack file uploaded", "file", name, "id", summary.ID, "channel", f.Channel, "bytes", info.Size())
	return nil
}
