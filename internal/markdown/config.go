package markdown

// Rule describes how one markdown construct is written.
// The zero Rule keeps the engine's native HTML output.
type Rule struct {
	Replace bool
	Prefix  string
	Suffix  string
}

// Wrap returns a Rule that drops the native tags and surrounds the
// construct's rendered body with prefix and suffix.
func Wrap(prefix, suffix string) Rule {
	return Rule{Replace: true, Prefix: prefix, Suffix: suffix}
}

// LinkMode selects how links are written.
type LinkMode int

const (
	LinkNative LinkMode = iota // <a href="...">label</a>
	LinkURL                    // bare destination, label discarded
)

// Config is the override table of a Renderer. It is copied into the
// renderer at construction and never changes afterwards.
type Config struct {
	Strong     Rule
	Emphasis   Rule
	Blockquote Rule
	Paragraph  Rule
	ListItem   Rule

	// PlainLists rebuilds lists as "1. "/"- " prefixed lines instead of <ol>/<ul>.
	PlainLists bool
	// PlainText writes text without HTML escaping.
	PlainText bool

	Links       LinkMode
	SmartQuotes bool
	Tables      bool
	HeadingIDs  bool
}

// Chat is the override table for slash-command chat platforms that speak
// their own lightweight markup.
func Chat() Config {
	return Config{
		Strong:      Wrap("*", "*"),
		Emphasis:    Wrap("`", "`"),
		Blockquote:  Wrap("```", "```"),
		Paragraph:   Wrap("", ""),
		ListItem:    Wrap("\n", ""),
		PlainLists:  true,
		PlainText:   true,
		Links:       LinkURL,
		SmartQuotes: true,
	}
}

// Strip is the override table for surfaces without any markup: messenger
// templates and plain consoles.
func Strip() Config {
	return Config{
		Strong:      Wrap("'", "'"),
		Emphasis:    Wrap("'", "'"),
		Blockquote:  Wrap("\n", ""),
		Paragraph:   Wrap("", ""),
		ListItem:    Wrap("\n", ""),
		PlainLists:  true,
		PlainText:   true,
		SmartQuotes: true,
	}
}

// Web keeps native HTML for everything and enables GFM tables.
func Web() Config {
	return Config{
		SmartQuotes: true,
		Tables:      true,
		HeadingIDs:  true,
	}
}
