package telemetry

import (
	"context"
	"github.com/rs/zerolog"
	"log/slog"
)

// ZeroHandler writes slog records through a zerolog logger, so the library keeps
// its *slog.Logger API while the daemon gets zerolog output.
type ZeroHandler struct {
	zl     zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

func NewZeroHandler(zl zerolog.Logger) *ZeroHandler {
	return &ZeroHandler{zl: zl}
}

// NewZeroLogger is a shortcut for slog.New(NewZeroHandler(zl)).
func NewZeroLogger(zl zerolog.Logger) *slog.Logger {
	return slog.New(NewZeroHandler(zl))
}

func zeroLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func (h *ZeroHandler) Enabled(_ context.Context, l slog.Level) bool {
	return zeroLevel(l) >= h.zl.GetLevel() && zeroLevel(l) >= zerolog.GlobalLevel()
}

func (h *ZeroHandler) Handle(_ context.Context, r slog.Record) error {
	ev := h.zl.WithLevel(zeroLevel(r.Level))
	if ev == nil {
		return nil
	}
	if !r.Time.IsZero() {
		ev = ev.Time(zerolog.TimestampFieldName, r.Time)
	}
	for _, a := range h.attrs {
		appendAttr(ev, "", a)
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(ev, prefix, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *ZeroHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.prefix(), attrs)...)
	return &next
}

func (h *ZeroHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func (h *ZeroHandler) prefix() string {
	var p string
	for _, g := range h.groups {
		p += g + "."
	}
	return p
}

// qualify fixes the group prefix of attrs added by WithAttrs at the time they were added.
func qualify(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}

func appendAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		ev.Str(key, v.String())
	case slog.KindInt64:
		ev.Int64(key, v.Int64())
	case slog.KindUint64:
		ev.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, v.Float64())
	case slog.KindBool:
		ev.Bool(key, v.Bool())
	case slog.KindDuration:
		ev.Dur(key, v.Duration())
	case slog.KindTime:
		ev.Time(key, v.Time())
	case slog.KindGroup:
		if a.Key != "" {
			prefix = key + "."
		}
		for _, ga := range v.Group() {
			appendAttr(ev, prefix, ga)
		}
	default:
		if err, ok := v.Any().(error); ok {
			ev.AnErr(key, err)
			return
		}
		ev.Interface(key, v.Any())
	}
}

var _ slog.Handler = (*ZeroHandler)(nil)

