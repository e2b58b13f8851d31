package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the flujos banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`   __ _       _           `, "#34d399"},
		{`  / _| |_   _(_) ___  ___ `, "#2dd4bf"},
		{` | |_| | | | | |/ _ \/ __|`, "#22d3ee"},
		{` |  _| | |_| | | (_) \__ \`, "#38bdf8"},
		{` |_| |_|\__,_/ |\___/|___/`, "#60a5fa"},
		{`          |__/            `, "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String("v"+strings.TrimSpace(version)).Faint())
}

// Prompt returns the styled input prompt for the user side of a chat.
func Prompt(usuario string) string {
	p := termenv.ColorProfile()
	return termenv.String(usuario + "> ").Foreground(p.Color("#a78bfa")).Bold().String()
}

// System formats an engine notice, e.g. a flow that started or finished.
func System(format string, args ...any) string {
	return termenv.String(">>> " + fmt.Sprintf(format, args...)).Faint().String()
}
