package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// DefaultWidth is the wrap width used when the terminal size is unknown.
const DefaultWidth = 100

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or DefaultWidth.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return DefaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// NewRenderer returns a function that renders markdown answers using glamour.
// Output that is not a terminal gets the text back unchanged, so answers can be
// piped without escape codes.
func NewRenderer(out *os.File) func(string) (string, error) {
	if !IsTerminal(out) {
		return PlainRenderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(Width(out)-4),
	)
	if err != nil {
		return PlainRenderer
	}
	return func(markdown string) (string, error) {
		rendered, err := r.Render(markdown)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(rendered, "\n") + "\n", nil
	}
}

// NewStyledRenderer renders with a fixed glamour style ("dark", "light", "notty").
func NewStyledRenderer(style string, width int) (func(string) (string, error), error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// PlainRenderer returns the answer as is, newline terminated.
func PlainRenderer(text string) (string, error) {
	if strings.HasSuffix(text, "\n") {
		return text, nil
	}
	return text + "\n", nil
}
