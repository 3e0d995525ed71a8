package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Event IDs written to the Windows event log, one per severity.
const (
	eventIDInfo    uint32 = 1
	eventIDWarning uint32 = 2
	eventIDError   uint32 = 3
)

// eventSink is the subset of *eventlog.Log used by EventLogHandler.
type eventSink interface {
	Info(eid uint32, msg string) error
	Warning(eid uint32, msg string) error
	Error(eid uint32, msg string) error
}

// EventLogHandler is a slog.Handler that writes records to the Windows event log.
// Debug records are written as informational events.
type EventLogHandler struct {
	sink   eventSink
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewEventLogHandler creates a handler writing to sink.
func NewEventLogHandler(sink eventSink, level slog.Leveler) *EventLogHandler {
	return &EventLogHandler{sink: sink, level: level}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, nil, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.groups, a)
		return true
	})

	msg := b.String()
	switch {
	case r.Level >= slog.LevelError:
		return h.sink.Error(eventIDError, msg)
	case r.Level >= slog.LevelWarn:
		return h.sink.Warning(eventIDWarning, msg)
	default:
		return h.sink.Info(eventIDInfo, msg)
	}
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attributes are qualified by the groups open at the time they are added.
	merged := slices.Clone(h.attrs)
	for _, a := range attrs {
		if len(h.groups) > 0 {
			a.Key = strings.Join(h.groups, ".") + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &EventLogHandler{sink: h.sink, level: h.level, attrs: merged, groups: h.groups}
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string{}, h.groups...), name)
	return &EventLogHandler{sink: h.sink, level: h.level, attrs: h.attrs, groups: groups}
}

func writeAttr(b *strings.Builder, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, append(slices.Clone(groups), a.Key), ga)
		}
		return
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}
