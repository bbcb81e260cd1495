package markdown

import (
	"strings"
	"sync"
	"testing"
)

func mustRender(t *testing.T, r *Renderer, in string) string {
	t.Helper()
	out, err := r.Render(in)
	if err != nil {
		t.Fatalf("Render(%q): %v", in, err)
	}
	return out
}

func TestRender_InlineAndBlockquote(t *testing.T) {
	in := "**strong**, *highlight*, \n>blockquote"

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"strip", Strip(), "'strong', 'highlight', \nblockquote"},
		{"chat", Chat(), "*strong*, `highlight`, ```blockquote```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustRender(t, New(tt.cfg), in)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_ListsRoundTrip(t *testing.T) {
	inputs := []string{"1. One\n2. Two", "- One\n- Two"}
	for _, cfg := range []Config{Chat(), Strip()} {
		r := New(cfg)
		for _, in := range inputs {
			got := mustRender(t, r, in)
			if got != in {
				t.Errorf("Render(%q) = %q, want unchanged", in, got)
			}
			if again := mustRender(t, r, got); again != got {
				t.Errorf("second pass changed %q to %q", got, again)
			}
		}
	}
}

func TestRender_ListAfterParagraph(t *testing.T) {
	got := mustRender(t, New(Strip()), "Steps:\n\n1. One\n2. Two")
	want := "Steps:\n1. One\n2. Two"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_ChatLinks(t *testing.T) {
	r := New(Chat())
	tests := []struct {
		in, want string
	}{
		{`see <a href="https://example.com/a">the docs</a>`, "see https://example.com/a"},
		{"see [the docs](https://example.com/b)", "see https://example.com/b"},
		{"<https://example.com/c>", "https://example.com/c"},
	}
	for _, tt := range tests {
		if got := mustRender(t, r, tt.in); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender_SmartQuotes(t *testing.T) {
	got := mustRender(t, New(Strip()), `"It's about time."`)
	want := "“It’s about time.”"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got = mustRender(t, New(Web()), `"It's about time."`)
	want = "<p>“It’s about time.”</p>\n"
	if got != want {
		t.Errorf("web: got %q, want %q", got, want)
	}
}

func TestRender_PlainTextIsNotEscaped(t *testing.T) {
	got := mustRender(t, New(Strip()), `a < b & c \* d`)
	want := "a < b & c * d"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_WebNative(t *testing.T) {
	r := New(Web())

	got := mustRender(t, r, "### App Crash")
	if got != "<h3 id=\"app-crash\">App Crash</h3>\n" {
		t.Errorf("heading: got %q", got)
	}

	got = mustRender(t, r, "**bold** *it*")
	if got != "<p><strong>bold</strong> <em>it</em></p>\n" {
		t.Errorf("inline: got %q", got)
	}

	got = mustRender(t, r, "| Status |\n| --- |\n| Open |\n")
	if !strings.Contains(got, "<table>") || !strings.Contains(got, "<td>Open</td>") {
		t.Errorf("table not rendered: %q", got)
	}

	got = mustRender(t, r, "![Image](https://example.com/i.png)")
	if got != "<p><img src=\"https://example.com/i.png\" alt=\"Image\"></p>\n" {
		t.Errorf("image: got %q", got)
	}
}

func TestRender_ConfigIsolation(t *testing.T) {
	chat := New(Chat())
	strip := New(Strip())

	cfg := chat.Config()
	cfg.Strong = Wrap("#", "#")

	if got := mustRender(t, chat, "**x**"); got != "*x*" {
		t.Errorf("chat renderer affected by config copy: %q", got)
	}
	if got := mustRender(t, strip, "**x**"); got != "'x'" {
		t.Errorf("strip renderer: %q", got)
	}
}

func TestRender_Concurrent(t *testing.T) {
	r := New(Chat())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Render("**a** *b*")
			if err != nil || out != "*a* `b`" {
				t.Errorf("got %q, %v", out, err)
			}
		}()
	}
	wg.Wait()
}

func TestRebuildList(t *testing.T) {
	if got := rebuildList("\nOne\nTwo", true); got != "1. One\n2. Two" {
		t.Errorf("ordered: %q", got)
	}
	if got := rebuildList("\nOne\nTwo", false); got != "- One\n- Two" {
		t.Errorf("unordered: %q", got)
	}
}
