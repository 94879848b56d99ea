package app

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles renders terminal output. Colors degrade to plain text when w is not a TTY.
type styles struct {
	label lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		label: r.NewStyle().Bold(true).Width(10),
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s styles) field(label, value string) string {
	return s.label.Render(label) + " " + value
}

func (s styles) mark(pass bool) string {
	if pass {
		return s.ok.Render("[OK]")
	}
	return s.fail.Render("[FAIL]")
}
