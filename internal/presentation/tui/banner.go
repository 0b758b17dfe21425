package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"  _                 _      _ _ ", "#34d399"},
	{" | |_ ___ _ __   __| |_ __(_) |", "#2dd4bf"},
	{" | __/ _ \\ '_ \\ / _` | '__| | |", "#22d3ee"},
	{" | ||  __/ | | | (_| | |  | | |", "#38bdf8"},
	{"  \\__\\___|_| |_|\\__,_|_|  |_|_|", "#60a5fa"},
}

// PrintBanner writes the chat banner with the version and session to w.
// Colors are dropped when w is not a color terminal.
func PrintBanner(w io.Writer, version, sessionID string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	meta := fmt.Sprintf("  v%s  session %s  (type 'exit' to quit)", strings.TrimSpace(version), sessionID)
	fmt.Fprintln(w, out.String(meta).Faint())
	fmt.Fprintln(w)
}
