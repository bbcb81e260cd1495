// Package extract derives display values from an attachment: title, body
// text, image, content link and a one-line field summary. Every lookup is an
// ordered list of sources; the first non-empty source wins.
package extract

import (
	"strings"
	"unicode/utf8"

	"chatfmt/internal/domain"
)

const (
	// TruncateAt is the length from which a value is shortened.
	TruncateAt = 80
	// truncateKeep is how many characters survive before the ellipsis.
	truncateKeep = 75
	ellipsis     = "..."
)

type source struct {
	name  string
	value func(a domain.Attachment) string
}

func firstField(a domain.Attachment) (domain.Field, bool) {
	if len(a.Fields) == 0 {
		return domain.Field{}, false
	}
	return a.Fields[0], true
}

var titleSources = []source{
	{"title", func(a domain.Attachment) string { return a.Title }},
	{"text", func(a domain.Attachment) string { return a.Text }},
	{"field.title", func(a domain.Attachment) string {
		f, _ := firstField(a)
		return f.Title
	}},
	{"field.value", func(a domain.Attachment) string {
		f, _ := firstField(a)
		return f.Value
	}},
}

var imageSources = []source{
	{"image_url", func(a domain.Attachment) string { return a.ImageURL }},
	{"thumb_url", func(a domain.Attachment) string { return a.ThumbURL }},
	{"author_icon", func(a domain.Attachment) string { return a.AuthorIcon }},
	{"footer_icon", func(a domain.Attachment) string { return a.FooterIcon }},
}

func first(a domain.Attachment, sources []source) string {
	for _, s := range sources {
		if v := s.value(a); v != "" {
			return v
		}
	}
	return ""
}

// Truncate shortens s to its first 75 characters plus "..." once it has 80
// or more characters.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) < TruncateAt {
		return s
	}
	runes := []rune(s)
	return string(runes[:truncateKeep]) + ellipsis
}

// Title returns the attachment's title, falling back to its text and then to
// the first field's title or value.
func Title(a domain.Attachment) string {
	return Truncate(first(a, titleSources))
}

// Image returns the first of image_url, thumb_url, author_icon and
// footer_icon that is set, or "".
func Image(a domain.Attachment) string {
	return first(a, imageSources)
}

// BodyText joins pretext and text with a single space, falling back to the
// attachment's fallback string when both are empty.
func BodyText(a domain.Attachment) string {
	body := a.Pretext
	if a.Text != "" {
		if body != "" {
			body += " "
		}
		body += a.Text
	}
	if body == "" {
		body = a.Fallback
	}
	return Truncate(body)
}

// ContentURL returns title_link, else the value of the last field titled
// "url" or "urls". A "urls" value is a ", " separated list; its first entry
// is used.
func ContentURL(a domain.Attachment) string {
	if a.TitleLink != "" {
		return a.TitleLink
	}
	var found string
	for _, f := range a.Fields {
		switch strings.ToLower(f.Title) {
		case "url":
			found = f.Value
		case "urls":
			found, _, _ = strings.Cut(f.Value, ", ")
		}
	}
	return found
}

// FieldSummary appends "{title}: {value}" for every field to existing,
// separated by ", ". Fields whose title and value are both empty are
// skipped. existing of 80 characters or more is returned unchanged.
func FieldSummary(a domain.Attachment, existing string) string {
	if utf8.RuneCountInString(existing) >= TruncateAt {
		return existing
	}
	parts := make([]string, 0, len(a.Fields))
	if existing != "" {
		parts = append(parts, existing)
	}
	for _, f := range a.Fields {
		if f.Title == "" && f.Value == "" {
			continue
		}
		parts = append(parts, f.Title+": "+f.Value)
	}
	return Truncate(strings.Join(parts, ", "))
}
