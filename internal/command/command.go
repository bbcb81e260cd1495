// Package command answers chat messages addressed to the bot. Every answer
// is a domain.Response published as a formatter.response event, so it
// reaches the user through the formatting pipeline of the channel it came
// from.
package command

import (
	"strings"
	"unicode"
)

// Command is a message addressed to the bot.
type Command struct {
	Name string // lower-cased first word after the bot name
	Args string // everything after the name, inner newlines kept
	Raw  string // original full text
}

// Parse returns the command in text when text is addressed to botName:
// "name cmd", "@name cmd", "/name cmd", "name: cmd" or "name, cmd", the
// name matched case-insensitively. It returns nil otherwise.
func Parse(text, botName string) *Command {
	raw := text
	text = strings.TrimSpace(text)
	if botName == "" {
		return nil
	}

	text = strings.TrimLeft(text, "@/")
	if len(text) < len(botName) || !strings.EqualFold(text[:len(botName)], botName) {
		return nil
	}
	rest := text[len(botName):]
	if rest != "" {
		r := rune(rest[0])
		if r != ':' && r != ',' && !unicode.IsSpace(r) {
			return nil // "chatfmtx" is not addressed to "chatfmt"
		}
		rest = strings.TrimLeft(rest, ":,")
	}
	rest = strings.TrimSpace(rest)

	name, args, _ := strings.Cut(rest, " ")
	if i := strings.IndexAny(name, "\n\t"); i >= 0 {
		name, args = name[:i], rest[i+1:]
	}
	return &Command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
		Raw:  raw,
	}
}
