package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/server"
)

var (
	colorError   = lipgloss.Color("#EF4444")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorMuted   = lipgloss.Color("#6B7280")
)

// styles renders CLI output for one writer.
type styles struct {
	Header    lipgloss.Style
	Caret     lipgloss.Style
	Candidate lipgloss.Style
	Muted     lipgloss.Style
	OK        lipgloss.Style
	Failed    lipgloss.Style
}

// newStyles builds styles for w. mode is auto, always or never; auto
// colorizes only when w is a terminal.
func newStyles(w io.Writer, mode string) (*styles, error) {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case "auto":
	case "always":
		r.SetColorProfile(termenv.ANSI256)
	case "never":
		r.SetColorProfile(termenv.Ascii)
	default:
		return nil, fmt.Errorf("invalid --color %q: want auto, always or never", mode)
	}

	return &styles{
		Header:    r.NewStyle().Foreground(colorError).Bold(true),
		Caret:     r.NewStyle().Foreground(colorError),
		Candidate: r.NewStyle().Foreground(colorWarning),
		Muted:     r.NewStyle().Foreground(colorMuted),
		OK:        r.NewStyle().Foreground(colorSuccess).Bold(true),
		Failed:    r.NewStyle().Foreground(colorError).Bold(true),
	}, nil
}

// printDiagnostics writes every diagnostic carried by err. Errors that are
// not diagnostics print as a single header line.
func (s *styles) printDiagnostics(w io.Writer, err error) int {
	ds := compiler.Diagnostics(err)
	if len(ds) == 0 {
		fmt.Fprintln(w, s.Header.Render(err.Error()))
		return 1
	}
	for _, d := range ds {
		s.printDiagnostic(w, d)
	}
	return len(ds)
}

func (s *styles) printDiagnostic(w io.Writer, d *compiler.Diagnostic) {
	lines := strings.Split(strings.TrimRight(d.Format(), "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case i == 0:
			line = s.Header.Render(line)
		case strings.HasPrefix(line, "candidate:"):
			line = s.Candidate.Render(line)
		case strings.HasPrefix(line, "token:"), strings.HasPrefix(line, "see:"):
			line = s.Muted.Render(line)
		case i == 2 && strings.HasPrefix(trimmed, "^"):
			line = line[:len(line)-len(trimmed)] + s.Caret.Render(trimmed)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

// printRemoteDiagnostic writes a diagnostic returned by kuri serve, which
// arrives already formatted.
func (s *styles) printRemoteDiagnostic(w io.Writer, d server.Diagnostic) {
	text := d.Formatted
	if text == "" {
		text = fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Kind, d.Message)
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		if i == 0 {
			line = s.Header.Render(line)
		} else if strings.HasPrefix(line, "candidate:") {
			line = s.Candidate.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}
