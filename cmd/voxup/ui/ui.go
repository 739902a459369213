// Package ui renders operator-facing terminal output: styled messages,
// aligned key-value blocks, tables, and the provisioning checklist.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette, muted and dark-terminal friendly.
var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	AccentStyle  = lipgloss.NewStyle().Foreground(purple)
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	WarnStyle    = lipgloss.NewStyle().Foreground(yellow)
	MutedStyle   = lipgloss.NewStyle().Foreground(dim)
	FaintStyle   = lipgloss.NewStyle().Foreground(faint)
	LabelStyle   = lipgloss.NewStyle().Foreground(dim)
)

// Inline helpers return styled text without newlines.

func Accent(s string) string  { return AccentStyle.Render(s) }
func Muted(s string) string   { return MutedStyle.Render(s) }
func Success(s string) string { return SuccessStyle.Render(s) }

func Bool(v bool) string {
	if v {
		return SuccessStyle.Render("yes")
	}
	return ErrorStyle.Render("no")
}

// Message helpers prefix a status glyph; single line, no trailing newline.

func SuccessMsg(format string, a ...any) string {
	return SuccessStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func WarnMsg(format string, a ...any) string {
	return WarnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func InfoMsg(format string, a ...any) string {
	return AccentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

// Pair is one row of a KeyValues block. Use KV to construct.
type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders aligned "key:  value" lines with a trailing newline.
func KeyValues(indent string, pairs ...Pair) string {
	width := 0
	for _, p := range pairs {
		if len(p.key) > width {
			width = len(p.key)
		}
	}

	var sb strings.Builder
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", width+1, p.key+":")
		sb.WriteString(indent + LabelStyle.Render(label) + " " + p.value + "\n")
	}
	return sb.String()
}

// Table renders rows with rounded borders and alternating row shading.
func Table(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(purple).
		Bold(true).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}
