// Package notify delivers operator alerts about pool activity.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelAlert Level = "alert"
)

// Notification is a short operator message with structured details.
type Notification struct {
	Level  Level
	Title  string
	Fields map[string]string
}

// Sink delivers notifications. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// sortedFields returns Fields in a stable order for rendering.
func (n Notification) sortedFields() []string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text renders the notification as plain text.
func (n Notification) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(n.Level)), n.Title)
	for _, k := range n.sortedFields() {
		fmt.Fprintf(&b, "\n%s: %s", k, n.Fields[k])
	}
	return b.String()
}

// HTML renders the notification for Telegram and e-mail bodies.
func (n Notification) HTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(n.Title))
	for _, k := range n.sortedFields() {
		fmt.Fprintf(&b, "\n%s: <code>%s</code>", html.EscapeString(k), html.EscapeString(n.Fields[k]))
	}
	return b.String()
}

// LogSink writes notifications to the global zap logger.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, n Notification) error {
	fields := make([]zap.Field, 0, len(n.Fields)+1)
	fields = append(fields, zap.String("level", string(n.Level)))
	for _, k := range n.sortedFields() {
		fields = append(fields, zap.String(k, n.Fields[k]))
	}
	switch n.Level {
	case LevelAlert:
		zap.L().Error(n.Title, fields...)
	case LevelWarn:
		zap.L().Warn(n.Title, fields...)
	default:
		zap.L().Info(n.Title, fields...)
	}
	return nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			zap.L().Warn("Notification delivery failed", zap.String("title", n.Title), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MinLevel drops notifications below a level before they reach Sink.
type MinLevel struct {
	Sink  Sink
	Level Level
}

func rank(l Level) int {
	switch l {
	case LevelAlert:
		return 2
	case LevelWarn:
		return 1
	}
	return 0
}

func (f MinLevel) Notify(ctx context.Context, n Notification) error {
	if rank(n.Level) < rank(f.Level) {
		return nil
	}
	return f.Sink.Notify(ctx, n)
}
