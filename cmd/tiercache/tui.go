package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

var (
	hasTTY = isatty.IsTerminal(os.Stdout.Fd())

	tableBorderColor    = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}
	tableBorderStyle    = lipgloss.NewStyle().Foreground(tableBorderColor)
	messageOKColor      = lipgloss.AdaptiveColor{Light: "#009900", Dark: "#00FF00"}
	messageOKStyle      = lipgloss.NewStyle().Foreground(messageOKColor)
	messageTextColor    = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	messageTextStyle    = lipgloss.NewStyle().Foreground(messageTextColor)
	messageWarningColor = lipgloss.AdaptiveColor{Light: "#990000", Dark: "#FF0000"}
	messageWarningStyle = lipgloss.NewStyle().Foreground(messageWarningColor)
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		Rows(rows...).
		String()
}

func showTable(headers []string, rows [][]string) {
	fmt.Println(renderTable(headers, rows))
}

func showSuccess(msg string, args ...any) {
	fmt.Println(messageOKStyle.Render(" ✓ ") + messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

func showWarning(msg string, args ...any) {
	fmt.Println(messageWarningStyle.Render(" ✕ ") + messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

func showError(msg string, args ...any) {
	fmt.Fprintln(os.Stderr, messageWarningStyle.Render(" ⚠ ")+messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

// confirm asks a yes/no question. Without a terminal it returns def.
func confirm(title string, def bool) (bool, error) {
	if !hasTTY {
		return def, nil
	}
	answer := def
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&answer).
		Run()
	return answer, err
}

// withSpinner runs action behind a spinner when stdout is a terminal.
func withSpinner(ctx context.Context, title string, action func()) error {
	if !hasTTY {
		action()
		return nil
	}
	return spinner.New().Context(ctx).Title(title).Action(action).Run()
}
