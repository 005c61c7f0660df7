// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders timingoracle progress and results for a terminal or a
// script.
//
// Every Console call honours the personality level: PersonalityFull draws
// colors and boxes, PersonalityMinimal plain lines with icons, and
// PersonalityMachine stable "KEY: value" lines.
package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Console
// =============================================================================

// Console writes styled output. Results and progress go to Out, warnings
// and errors in machine mode go to Err.
//
// # Thread Safety
//
// Safe for concurrent use; each call writes whole lines under a mutex.
type Console struct {
	out   io.Writer
	err   io.Writer
	level PersonalityLevel
	mu    sync.Mutex
}

// NewConsole creates a Console. A nil errw sends everything to out.
func NewConsole(out, errw io.Writer, level PersonalityLevel) *Console {
	if errw == nil {
		errw = out
	}
	return &Console{out: out, err: errw, level: level}
}

// Level returns the personality level.
func (c *Console) Level() PersonalityLevel {
	return c.level
}

// Machine reports whether output is for scripts.
func (c *Console) Machine() bool {
	return c.level == PersonalityMachine
}

func (c *Console) printf(w io.Writer, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

// Title prints a styled title
func (c *Console) Title(text string) {
	if c.Machine() {
		return
	}
	c.printf(c.out, "%s\n", Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (c *Console) Success(text string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.out, "OK: %s\n", text)
	case PersonalityMinimal:
		c.printf(c.out, "%s %s\n", IconSuccess.Render(), text)
	default:
		c.printf(c.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (c *Console) Warning(text string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.err, "WARN: %s\n", text)
	case PersonalityMinimal:
		c.printf(c.out, "%s %s\n", IconWarning.Render(), text)
	default:
		c.printf(c.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (c *Console) Error(text string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		c.printf(c.out, "%s %s\n", IconError.Render(), text)
	default:
		c.printf(c.out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (c *Console) Info(text string) {
	if c.Machine() {
		c.printf(c.out, "%s\n", text)
		return
	}
	c.printf(c.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text
func (c *Console) Muted(text string) {
	if c.Machine() {
		return
	}
	c.printf(c.out, "%s\n", Styles.Muted.Render(text))
}

// KeyValues prints labelled values, one per line. Machine mode upper-cases
// the keys and replaces spaces with underscores.
func (c *Console) KeyValues(pairs [][2]string) {
	var b strings.Builder
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	for _, p := range pairs {
		if c.Machine() {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(strings.ReplaceAll(p[0], " ", "_")), p[1])
			continue
		}
		fmt.Fprintf(&b, "  %s  %s\n", Styles.Muted.Render(fmt.Sprintf("%-*s", width, p[0])), p[1])
	}
	c.printf(c.out, "%s", b.String())
}

// Box prints text in a rounded box
func (c *Console) Box(title, content string) {
	c.box(Styles.Box, Styles.Title, title, content)
}

// WarningBox prints text in a warning-styled box
func (c *Console) WarningBox(title, content string) {
	c.box(Styles.WarningBox, Styles.Warning.Bold(true), title, content)
}

// ErrorBox prints text in an error-styled box
func (c *Console) ErrorBox(title, content string) {
	c.box(Styles.ErrorBox, Styles.Error.Bold(true), title, content)
}

func (c *Console) box(style, titleStyle lipgloss.Style, title, content string) {
	switch c.level {
	case PersonalityMachine:
		c.printf(c.out, "%s: %s\n", strings.ToUpper(title), strings.ReplaceAll(content, "\n", "; "))
	case PersonalityMinimal:
		c.printf(c.out, "%s\n%s\n", title, content)
	default:
		c.printf(c.out, "%s\n", style.Width(60).Render(titleStyle.Render(title)+"\n"+content))
	}
}

// ProgressBar renders a simple progress bar
func ProgressBar(level PersonalityLevel, current, total, width int) string {
	if level == PersonalityMachine || total <= 0 {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := float64(current) / float64(total)
	filled := min(int(pct*float64(width)), width)
	empty := width - filled

	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
