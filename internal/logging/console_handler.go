package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders compact single-line records for interactive use.
// Job/dataset fields are pulled forward into a subject prefix; remaining
// attributes trail as key=value pairs.
type consoleHandler struct {
	mu     sync.Mutex
	writer io.Writer
	level  *slog.LevelVar
	attrs  []slog.Attr
	groups []string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	return &consoleHandler{writer: w, level: lvl}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	pairs := map[string]string{}
	keys := make([]string, 0, record.NumAttrs()+len(h.attrs))
	collect := func(attr slog.Attr) {
		key := strings.Join(append(append([]string{}, h.groups...), attr.Key), ".")
		if _, seen := pairs[key]; !seen {
			keys = append(keys, key)
		}
		pairs[key] = attr.Value.String()
	}
	for _, attr := range h.attrs {
		collect(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		collect(attr)
		return true
	})

	subject := formatSubject(pairs[FieldComponent], pairs[FieldJobID], pairs[FieldAlgorithm])
	trailing := make([]string, 0, len(keys))
	sort.Strings(keys)
	for _, key := range keys {
		switch key {
		case FieldComponent, FieldJobID, FieldAlgorithm:
			continue
		}
		trailing = append(trailing, key+"="+pairs[key])
	}

	var b strings.Builder
	b.WriteString(timestamp.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	if subject != "" {
		b.WriteByte(' ')
		b.WriteString(subject)
	}
	b.WriteByte(' ')
	b.WriteString(record.Message)
	if len(trailing) > 0 {
		b.WriteString("  ")
		b.WriteString(strings.Join(trailing, " "))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := &consoleHandler{
		writer: h.writer,
		level:  h.level,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := &consoleHandler{
		writer: h.writer,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
	return clone
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

func formatSubject(component, jobID, algorithm string) string {
	parts := make([]string, 0, 2)
	if component != "" {
		parts = append(parts, "["+component+"]")
	}
	switch {
	case jobID != "" && algorithm != "":
		parts = append(parts, fmt.Sprintf("job %s (%s)", shortID(jobID), algorithm))
	case jobID != "":
		parts = append(parts, "job "+shortID(jobID))
	case algorithm != "":
		parts = append(parts, algorithm)
	}
	return strings.Join(parts, " ")
}

// shortID trims UUIDs to their first group for console readability.
func shortID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}
