// Package replui holds the lipgloss styles for the REPL and CLI's
// terminal output, adapted from wippyai-wasm-runtime/cmd/run's
// interactive function browser. The REPL itself is a line-oriented
// reader (spec §6.5), not a Bubble Tea TUI, so only the styling is
// reused here, not the model/update/view machinery.
package replui

import "github.com/charmbracelet/lipgloss"

var (
	Prompt = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D56F4")).
		Bold(true)

	Result = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	Err = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF6B6B"))

	Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666"))
)

// PS1 renders the primary prompt string.
func PS1() string { return Prompt.Render("koa> ") }
