package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// defaultWidth is used when the output is not a terminal.
const defaultWidth = 80

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or defaultWidth when it cannot be read.
func Width(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// NewRenderer returns a function that renders bot messages as markdown using glamour,
// wrapped to width. It falls back to plain text if the renderer cannot be built.
func NewRenderer(width int) func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(s string) (string, error) { return s, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// RendererFor returns a markdown renderer when out is a terminal and nil otherwise,
// so piped output stays plain.
func RendererFor(out io.Writer) func(string) (string, error) {
	f, ok := out.(*os.File)
	if !ok || !IsTerminal(f) {
		return nil
	}
	return NewRenderer(Width(f))
}
