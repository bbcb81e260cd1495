package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"

	"chatfmt/internal/bus"
	"chatfmt/internal/domain"
)

type fakePoster struct {
	mu       sync.Mutex
	channels []string
	calls    int
	err      error
}

func (f *fakePoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.channels = append(f.channels, channelID)
	return channelID, "1", f.err
}

func TestToSlackAttachments(t *testing.T) {
	in := []domain.Attachment{{
		Title:     "Build",
		TitleLink: "https://ci/1",
		Color:     "good",
		Fields:    []domain.Field{{Title: "status", Value: "ok", Short: true}},
	}}
	out := toSlackAttachments(in)
	if len(out) != 1 {
		t.Fatalf("len = %d", len(out))
	}
	a := out[0]
	if a.Title != "Build" || a.TitleLink != "https://ci/1" || a.Color != "good" {
		t.Errorf("attachment = %+v", a)
	}
	if len(a.Fields) != 1 || a.Fields[0].Title != "status" || !a.Fields[0].Short {
		t.Errorf("fields = %+v", a.Fields)
	}
}

func TestSlack_PostAttachments(t *testing.T) {
	p := &fakePoster{}
	s := NewSlack(SlackConfig{Poster: p, Logger: testLogger()})

	if err := s.PostAttachments(context.Background(), "C1", nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if p.calls != 0 {
		t.Errorf("empty batch posted %d messages", p.calls)
	}

	if err := s.PostAttachments(context.Background(), "C1", []domain.Attachment{{Title: "a"}}); err != nil {
		t.Fatalf("PostAttachments: %v", err)
	}
	if p.calls != 1 || p.channels[0] != "C1" {
		t.Errorf("calls = %d, channels = %v", p.calls, p.channels)
	}

	if err := s.PostAttachments(context.Background(), "", []domain.Attachment{{Title: "a"}}); err == nil {
		t.Error("expected error without channel")
	}
}

func TestSlack_AttachmentEvents(t *testing.T) {
	p := &fakePoster{}
	events := bus.NewEventBus(testLogger())
	s := NewSlack(SlackConfig{Poster: p, Events: events, Logger: testLogger()})
	s.listenAttachments(context.Background())

	emit := func() {
		events.Emit(bus.Event{Type: bus.EventSlackAttachment, Payload: map[string]any{
			"envelope":    domain.Envelope{Room: "C7"},
			"attachments": []domain.Attachment{{Title: "x"}},
		}})
	}
	emit()
	if p.calls != 1 || p.channels[0] != "C7" {
		t.Fatalf("calls = %d, channels = %v", p.calls, p.channels)
	}

	s.Stop()
	emit()
	if p.calls != 1 {
		t.Errorf("calls after Stop = %d, want 1", p.calls)
	}
}

func TestSlack_PostTextSplits(t *testing.T) {
	p := &fakePoster{}
	s := NewSlack(SlackConfig{Poster: p, Logger: testLogger()})

	long := strings.Repeat("a", slackMaxMsgLen) + "b"
	if err := s.PostText(context.Background(), "C1", long); err != nil {
		t.Fatalf("PostText: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}

	p.err = errors.New("rate limited")
	if err := s.PostText(context.Background(), "C1", "hi"); err == nil {
		t.Error("expected post error")
	}
}

func TestSlack_StartWithoutClient(t *testing.T) {
	s := NewSlack(SlackConfig{Logger: testLogger()})
	if err := s.Start(context.Background(), bus.New(1, testLogger())); err == nil {
		t.Error("expected error without client")
	}
}

func TestSlack_PublishRewritesMention(t *testing.T) {
	p := &fakePoster{}
	mb := bus.New(1, testLogger())
	defer mb.Close()
	s := NewSlack(SlackConfig{Poster: p, BotName: "chatfmt", Logger: testLogger()})
	s.bus = mb
	s.botUID = "UBOT"

	s.publish("C1", "U1", "<@UBOT> status")
	msg := <-mb.Subscribe()
	if msg.Content != "chatfmt status" || msg.Channel != "slack" || msg.ChatID != "C1" {
		t.Errorf("msg = %+v", msg)
	}

	if err := msg.Responder.Reply(context.Background(), "ok"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if p.calls != 1 || p.channels[0] != "C1" {
		t.Errorf("calls = %d, channels = %v", p.calls, p.channels)
	}
}

func TestSplitSlackMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want int
	}{
		{"short", "hello", 10, 1},
		{"exact", "0123456789", 10, 1},
		{"hard cut", "0123456789abc", 10, 2},
		{"newline cut", "012345\n789abcdef", 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSlackMessage(tt.in, tt.max)
			if len(got) != tt.want {
				t.Errorf("chunks = %q, want %d", got, tt.want)
			}
			if strings.Join(got, "") != tt.in {
				t.Errorf("chunks do not reassemble: %q", got)
			}
		})
	}
}
