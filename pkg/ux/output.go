// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output for the relforge CLI.
//
// Everything here is presentation. Structured diagnostics go through
// pkg/logging; ux prints the short human summary of what happened.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output destinations. Replaced in tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// Palette
var (
	ColorBright  = lipgloss.Color("#2CD7C7") // highlights
	ColorPrimary = lipgloss.Color("#20B9B4") // titles
	ColorDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate   = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Key       lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorBright).Bold(true),
	Key:       lipgloss.NewStyle().Foreground(ColorPrimary).Width(14),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDeep).
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

// Icon provides status icons
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

// Title prints a styled title
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Stdout, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stdout, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Stdout, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(Stdout, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message to stderr
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stderr, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Stderr, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(Stderr, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message to stderr
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stderr, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Stderr, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(Stderr, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(Stdout, text)
		return
	}
	fmt.Fprintf(Stdout, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Step prints a pipeline stage marker, e.g. "→ configure  cmake -S . -B build/Release".
func Step(stage, detail string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stdout, "STEP %s: %s\n", stage, detail)
		return
	}
	fmt.Fprintf(Stdout, "%s %s %s\n", IconArrow.Render(), Styles.Bold.Render(stage), Styles.Muted.Render(detail))
}

// KeyValue prints aligned "key value" rows in order.
func KeyValue(rows [][2]string) {
	for _, r := range rows {
		if GetPersonality().Level == PersonalityMachine {
			fmt.Fprintf(Stdout, "%s=%s\n", r[0], r[1])
			continue
		}
		fmt.Fprintf(Stdout, "%s %s\n", Styles.Key.Render(r[0]), r[1])
	}
}

// Box prints text in a rounded box
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stdout, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(Stdout, Styles.Box.Width(64).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints text in a warning-styled box on stderr
func WarningBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stderr, "WARN %s: %s\n", title, content)
		return
	}
	fmt.Fprintln(Stderr, Styles.WarningBox.Width(64).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}

// Fatal prints a failure box with an optional hint on stderr
func Fatal(title string, err error, hint string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stderr, "ERROR %s: %v\n", title, err)
		return
	}
	body := err.Error()
	if hint != "" && GetPersonality().ShowHints {
		body += "\n\n" + Styles.Muted.Render(hint)
	}
	fmt.Fprintln(Stderr, Styles.ErrorBox.Width(64).Render(Styles.Error.Bold(true).Render(title)+"\n"+body))
}

// AssetStatus prints one release asset with its status
func AssetStatus(path string, status Icon, reason string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Stdout, "%s\t%s\t%s\n", status, path, reason)
	case PersonalityMinimal:
		fmt.Fprintf(Stdout, "%s %s\n", status.Render(), path)
	default:
		if reason != "" {
			fmt.Fprintf(Stdout, "%s %s %s\n", status.Render(), path, Styles.Muted.Render("("+reason+")"))
		} else {
			fmt.Fprintf(Stdout, "%s %s\n", status.Render(), path)
		}
	}
}

// Summary prints uploaded/missing/failed counts
func Summary(uploaded, missing, failed int) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Stdout, "SUMMARY: uploaded=%d missing=%d failed=%d\n", uploaded, missing, failed)
		return
	}
	fmt.Fprintf(Stdout, "\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", uploaded)), Styles.Muted.Render("uploaded"),
		Styles.Warning.Render(fmt.Sprintf("%d", missing)), Styles.Muted.Render("missing"),
		Styles.Error.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
	)
}

// Table prints rows under a header with columns padded to the widest cell.
func Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			if w := lipgloss.Width(r[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return style.Render(strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(Stdout, strings.Join(header, "\t"))
		for _, r := range rows {
			fmt.Fprintln(Stdout, strings.Join(r, "\t"))
		}
		return
	}
	fmt.Fprintln(Stdout, line(header, Styles.Bold))
	for _, r := range rows {
		fmt.Fprintln(Stdout, line(r, lipgloss.NewStyle()))
	}
}
