// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the cgeval CLI.
//
// Every user-facing line is an emoji-prefixed status line. The personality
// level decides whether the line is colored (full), left plain (minimal) or
// rewritten as a "LEVEL: text" record (machine).
package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

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
	Box       lipgloss.Style
	ErrorBox  lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
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
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Status is the emoji that prefixes a console line.
type Status string

const (
	StatusStart    Status = "🚀"
	StatusSearch   Status = "🔍"
	StatusStats    Status = "📊"
	StatusLink     Status = "🔗"
	StatusTool     Status = "🔧"
	StatusLab      Status = "🔬"
	StatusNote     Status = "📝"
	StatusPass     Status = "✅"
	StatusFail     Status = "❌"
	StatusWarn     Status = "⚠️ "
	StatusSkip     Status = "⏭️ "
	StatusDone     Status = "🎉"
	StatusDatabase Status = "🗄️ "
)

// machineLabel is the prefix used for a status in machine mode.
func (s Status) machineLabel() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	case StatusWarn:
		return "WARN"
	case StatusSkip:
		return "SKIP"
	case StatusDone:
		return "DONE"
	default:
		return "INFO"
	}
}

func (s Status) style() lipgloss.Style {
	switch s {
	case StatusPass, StatusDone:
		return Styles.Success
	case StatusFail:
		return Styles.Error
	case StatusWarn:
		return Styles.Warning
	case StatusSkip:
		return Styles.Muted
	case StatusStart:
		return Styles.Title
	default:
		return lipgloss.NewStyle()
	}
}

// RuleWidth is the width of the "=====" separator lines.
const RuleWidth = 50

// Printer writes status lines to a writer.
//
// # Thread Safety
//
// Printer is safe for concurrent use; each call writes whole lines.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	level PersonalityLevel
}

// NewPrinter creates a Printer that writes to w at the given level.
func NewPrinter(w io.Writer, level PersonalityLevel) *Printer {
	return &Printer{w: w, level: level}
}

// Level returns the personality level of the printer.
func (p *Printer) Level() PersonalityLevel {
	return p.level
}

// Status prints a single emoji-prefixed line.
func (p *Printer) Status(s Status, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	var line string
	switch p.level {
	case PersonalityMachine:
		line = fmt.Sprintf("%s: %s", s.machineLabel(), text)
	case PersonalityMinimal:
		line = fmt.Sprintf("%s %s", s, text)
	default:
		line = fmt.Sprintf("%s %s", s, s.style().Render(text))
	}
	p.println(line)
}

// Detail prints an indented continuation line under a status line.
func (p *Printer) Detail(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.level == PersonalityMachine {
		p.println("  " + text)
		return
	}
	p.println("   " + text)
}

// KeyValue prints an aligned "• key: value" line.
func (p *Printer) KeyValue(key string, value any) {
	if p.level == PersonalityMachine {
		p.println(fmt.Sprintf("  %s=%v", key, value))
		return
	}
	p.println(fmt.Sprintf("   • %s: %v", key, value))
}

// Rule prints a separator line.
func (p *Printer) Rule() {
	if p.level == PersonalityMachine {
		return
	}
	p.println(strings.Repeat("=", RuleWidth))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	if p.level == PersonalityMachine {
		return
	}
	p.println("")
}

// Title prints a styled title.
func (p *Printer) Title(text string) {
	switch p.level {
	case PersonalityMachine:
		return
	case PersonalityMinimal:
		p.println(text)
	default:
		p.println(Styles.Title.Render(text))
	}
}

// Block prints a titled block of free text, such as a model's answer.
func (p *Printer) Block(title, content string) {
	switch p.level {
	case PersonalityMachine:
		p.println(fmt.Sprintf("BEGIN %s", title))
		p.println(content)
		p.println(fmt.Sprintf("END %s", title))
	case PersonalityMinimal:
		p.println(strings.Repeat("=", RuleWidth+10))
		p.println(title)
		p.println(strings.Repeat("=", RuleWidth+10))
		p.println(content)
		p.println(strings.Repeat("=", RuleWidth+10))
	default:
		p.println(Styles.Box.Width(RuleWidth + 10).Render(Styles.Title.Render(title) + "\n" + content))
	}
}

// Raw writes text verbatim, followed by a newline.
func (p *Printer) Raw(text string) {
	p.println(text)
}

func (p *Printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}
