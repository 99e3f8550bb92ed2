// Package logging sets up the process logger. Every record passes through
// a redacting handler so patient identifiers never reach a log sink.
package logging

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
)

// Init installs the default logger: tint output via stylelog, wrapped in
// the redacting handler.
func Init(level slog.Level) {
	stylelog.InitDefault(
		&tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	slog.SetDefault(slog.New(NewRedactingHandler(slog.Default().Handler())))
}

// ParseLevel maps a config level name to a slog level. debug forces
// LevelDebug.
func ParseLevel(name string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const redacted = "[REDACTED]"

var (
	redactions = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/=-]+`),
		regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	}
	// At least ten digits, optionally separated.
	phoneNumber = regexp.MustCompile(`\+?\d(?:[\s().-]*\d){9,}`)
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	digitRun    = regexp.MustCompile(`\b\d{9,}\b`)
)

// Redact masks e-mail addresses, phone numbers, bearer tokens and long
// digit runs in s. Dates are left alone.
func Redact(s string) string {
	for _, re := range redactions {
		s = re.ReplaceAllString(s, redacted)
	}
	s = phoneNumber.ReplaceAllStringFunc(s, func(match string) string {
		if isoDate.MatchString(match) {
			return match
		}
		return redacted
	})
	return digitRun.ReplaceAllString(s, redacted)
}

// RedactingHandler masks PII in messages and string attributes before
// passing records on.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(clean)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

// opaqueKeys hold generated identifiers whose digit runs are not PII.
var opaqueKeys = map[string]bool{
	"correlation_id": true,
	"request_id":     true,
}

func redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	if opaqueKeys[a.Key] {
		return slog.Attr{Key: a.Key, Value: v}
	}
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = redactAttr(g)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
		return slog.Attr{Key: a.Key, Value: v}
	default:
		return slog.Attr{Key: a.Key, Value: v}
	}
}
