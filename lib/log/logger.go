// Package log provides the console handler all glscale binaries log
// through.
package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

type LogHandler struct {
	subHandler slog.Handler
	out        io.Writer
	colour     bool
	buffer     *bytes.Buffer
	mu         *sync.Mutex
}

const (
	reset = "\033[0m"

	cyan        = 36
	lightGray   = 37
	darkGray    = 90
	lightRed    = 91
	lightYellow = 93
)

func colorize(enabled bool, colorCode int, v string) string {
	if !enabled {
		return v
	}
	return fmt.Sprintf("\033[%sm%s%s", strconv.Itoa(colorCode), v, reset)
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.subHandler.Enabled(ctx, level)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.subHandler = h.subHandler.WithAttrs(attrs)
	return &n
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	n := *h
	n.subHandler = h.subHandler.WithGroup(name)
	return &n
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + " "

	switch {
	case r.Level >= slog.LevelError:
		level = colorize(h.colour, lightRed, level)
	case r.Level >= slog.LevelWarn:
		level = colorize(h.colour, lightYellow, level)
	case r.Level >= slog.LevelInfo:
		level = colorize(h.colour, cyan, level)
	default:
		level = colorize(h.colour, darkGray, level)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	attrs, err := h.parseAttributes(ctx, r)
	if err != nil {
		return err
	}

	var line strings.Builder
	line.WriteString(colorize(h.colour, lightGray, r.Time.Format("15:04:05.000 ")))
	line.WriteString(level)
	if attrs["module"] != nil {
		line.WriteString(colorize(h.colour, lightGray, fmt.Sprintf("[%s] ", attrs["module"])))
	}
	line.WriteString(r.Message)
	line.WriteByte('\n')
	_, err = io.WriteString(h.out, line.String())
	return err
}

// parseAttributes renders the record with the JSON handler to collect
// the attributes added through WithAttrs as well. Must hold h.mu.
func (h *LogHandler) parseAttributes(ctx context.Context, r slog.Record) (map[string]any, error) {
	defer h.buffer.Reset()
	if err := h.subHandler.Handle(ctx, r); err != nil {
		return nil, fmt.Errorf("error when calling inner handler's Handle: %w", err)
	}

	var attrs map[string]any
	err := json.Unmarshal(h.buffer.Bytes(), &attrs)
	if err != nil {
		return nil, fmt.Errorf("error when unmarshaling inner handler's Handle result: %w", err)
	}
	return attrs, nil
}

// NewHandler logs to stdout with colours
func NewHandler(opts *slog.HandlerOptions) *LogHandler {
	return NewWriterHandler(os.Stdout, true, opts)
}

func NewWriterHandler(out io.Writer, colour bool, opts *slog.HandlerOptions) *LogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	b := &bytes.Buffer{}
	return &LogHandler{
		buffer: b,
		out:    out,
		colour: colour,
		subHandler: slog.NewJSONHandler(b, &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   opts.AddSource,
			ReplaceAttr: opts.ReplaceAttr,
		}),
		mu: &sync.Mutex{},
	}
}

// ParseLevel accepts debug, info, warn and error
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Setup installs the console handler as the default logger
func Setup(level string) error {
	l := slog.LevelInfo
	if level != "" {
		var err error
		l, err = ParseLevel(level)
		if err != nil {
			return err
		}
	}
	slog.SetDefault(slog.New(NewHandler(&slog.HandlerOptions{Level: l})))
	return nil
}
