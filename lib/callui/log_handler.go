// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package callui

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg carries a log record to the status line.
type logRecordMsg struct {
	summary string
	level   slog.Level
}

// logFadeMsg clears the status line unless a newer record replaced it.
type logFadeMsg struct{ sequence int }

// logFadeDelay is how long a record stays on the status line.
const logFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that shows records on the TUI status
// line. Writing to stderr would corrupt the alt-screen display.
//
// Handlers derived with WithAttrs and WithGroup share the program
// pointer, so one SetProgram call covers all of them.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	groups  []string
}

var _ slog.Handler = (*LogHandler)(nil)

// NewLogHandler creates a handler for records at or above level.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives records.
func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

// Handle sends the record to the program, or drops it when no program
// is set.
func (handler *LogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{summary: handler.summarize(record), level: record.Level})
	return nil
}

// summarize renders "message (key=value, ...)" with handler attrs
// first.
func (handler *LogHandler) summarize(record slog.Record) string {
	prefix := strings.Join(handler.groups, ".")
	if prefix != "" {
		prefix += "."
	}

	var parts []string
	for _, attr := range handler.attrs {
		parts = append(parts, attr.Key+"="+attr.Value.String())
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, prefix+attr.Key+"="+attr.Value.String())
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(handler.groups, ".")
	qualified := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		if prefix != "" {
			attr.Key = prefix + "." + attr.Key
		}
		qualified = append(qualified, attr)
	}
	return &LogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   append(append([]slog.Attr(nil), handler.attrs...), qualified...),
		groups:  append([]string(nil), handler.groups...),
	}
}

func (handler *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	return &LogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   append([]slog.Attr(nil), handler.attrs...),
		groups:  append(append([]string(nil), handler.groups...), name),
	}
}
