package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// LineHandler renders records as "time | LEVEL | message key=value" lines.
type LineHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	attrs    []slog.Attr
	group    string
	logLevel slog.Leveler
}

func NewLineHandler(w io.Writer, level slog.Leveler) *LineHandler {
	if w == nil {
		w = os.Stdout
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &LineHandler{
		mu:       &sync.Mutex{},
		writer:   w,
		logLevel: level,
	}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel.Level()
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString(level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString(level)
	case r.Level >= slog.LevelInfo:
		level = color.BlueString(level)
	default:
		level = color.MagentaString(level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		color.CyanString(r.Message),
	)

	for _, attr := range h.attrs {
		b.WriteString(h.formatAttr(attr))
	}
	r.Attrs(func(attr slog.Attr) bool {
		b.WriteString(h.formatAttr(attr))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *LineHandler) formatAttr(attr slog.Attr) string {
	key := attr.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return color.CyanString(fmt.Sprintf(" %s=%v", key, attr.Value))
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &LineHandler{
		mu:       h.mu,
		writer:   h.writer,
		attrs:    newAttrs,
		group:    h.group,
		logLevel: h.logLevel,
	}
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &LineHandler{
		mu:       h.mu,
		writer:   h.writer,
		attrs:    h.attrs,
		group:    group,
		logLevel: h.logLevel,
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Init installs a LineHandler as the default slog logger.
func Init(w io.Writer, level slog.Level) *slog.Logger {
	l := slog.New(NewLineHandler(w, level))
	slog.SetDefault(l)
	slog.Debug("Logger initialized")
	return l
}

func Debug(msg string, v ...any) {
	slog.Debug(msg, v...)
}

func DebugF(msg string, v ...any) {
	slog.Debug(fmt.Sprintf(msg, v...))
}

func Info(msg string, v ...any) {
	slog.Info(msg, v...)
}

func InfoF(msg string, v ...any) {
	slog.Info(fmt.Sprintf(msg, v...))
}

func Warn(msg string, v ...any) {
	slog.Warn(msg, v...)
}

func WarnF(msg string, v ...any) {
	slog.Warn(fmt.Sprintf(msg, v...))
}

func Error(msg string, v ...any) {
	slog.Error(msg, v...)
}

func ErrorF(msg string, v ...any) {
	slog.Error(fmt.Sprintf(msg, v...))
}

// RedactToken keeps the first four characters of a credential.
func RedactToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
