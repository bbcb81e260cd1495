package domain

import "context"

// Envelope identifies where a response should be delivered.
type Envelope struct {
	Room string `json:"room"`           // channel, chat or recipient ID
	User string `json:"user,omitempty"` // user that triggered the response
}

// Responder delivers plain text back to the conversation a response belongs to.
type Responder interface {
	Send(ctx context.Context, text string) error
	Reply(ctx context.Context, text string) error
	Envelope() Envelope
}

// Response is the adapter-agnostic description handed to the formatter.
//
// A nil Attachments slice means the field was absent; a non-nil empty slice
// means attachments were requested but there are none.
type Response struct {
	Message        string       `json:"message,omitempty" yaml:"message,omitempty"`
	Attachments    []Attachment `json:"attachments" yaml:"attachments"`
	FilePath       string       `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	FileName       string       `json:"fileName,omitempty" yaml:"fileName,omitempty"`
	InitialComment string       `json:"initial_comment,omitempty" yaml:"initial_comment,omitempty"`

	Responder Responder `json:"-" yaml:"-"`
}

// HasAttachments reports whether the attachments field was present at all.
func (r Response) HasAttachments() bool {
	return r.Attachments != nil
}

// HasFile reports whether the response points at a local file to deliver.
func (r Response) HasFile() bool {
	return r.FilePath != "" && r.FileName != ""
}

// Envelope returns the responder's envelope, or the zero Envelope.
func (r Response) Envelope() Envelope {
	if r.Responder == nil {
		return Envelope{}
	}
	return r.Responder.Envelope()
}
