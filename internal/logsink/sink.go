// Package logsink is an asynchronous slog backend.
//
// Producers format records on their own goroutine and hand the line to a
// buffered channel; a single consumer goroutine writes lines to the console
// and, optionally, to a log file that is truncated once it reaches its line
// limit. Producers never block on I/O: when the buffer is full the line is
// dropped and counted.
//
// Level changes travel through the same channel, so lines queued before a
// change are filtered by the level that was current when they were logged.
package logsink

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LevelWarning is the slog level rendered as WARNING.
const LevelWarning = slog.LevelWarn

const (
	// DefaultBuffer is the channel capacity between producers and the consumer.
	DefaultBuffer = 1024

	// DefaultMaxLines is the file size, in lines, that triggers truncation.
	DefaultMaxLines = 1000
)

// ParseLevel maps debug, info, warning (or warn) and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (want debug, info, warning or error)", s)
	}
}

// Sink owns the consumer goroutine.
type Sink struct {
	level    *slog.LevelVar
	console  io.Writer
	filePath string
	maxLines int
	buffer   int

	mu     sync.RWMutex
	closed bool
	lines  chan entry
	done   chan struct{}

	dropped atomic.Int64

	file      *os.File
	fileLines int
}

// Option configures a Sink.
type Option func(*Sink)

// WithConsole sets the console writer. Defaults to os.Stderr; nil disables it.
func WithConsole(w io.Writer) Option {
	return func(s *Sink) {
		s.console = w
	}
}

// WithFile also writes to path, truncating it on open and whenever it
// reaches the line limit.
func WithFile(path string) Option {
	return func(s *Sink) {
		s.filePath = path
	}
}

// WithLevel sets the initial minimum level.
func WithLevel(l slog.Level) Option {
	return func(s *Sink) {
		s.level.Set(l)
	}
}

// WithMaxLines sets the file truncation threshold.
func WithMaxLines(n int) Option {
	return func(s *Sink) {
		s.maxLines = n
	}
}

// WithBuffer sets the channel capacity.
func WithBuffer(n int) Option {
	return func(s *Sink) {
		s.buffer = n
	}
}

// New opens the sink's outputs and starts the consumer goroutine.
func New(opts ...Option) (*Sink, error) {
	s := &Sink{
		level:    new(slog.LevelVar),
		console:  os.Stderr,
		maxLines: DefaultMaxLines,
		buffer:   DefaultBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.filePath != "" {
		f, err := os.OpenFile(s.filePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		s.file = f
	}

	s.lines = make(chan entry, s.buffer)
	s.done = make(chan struct{})
	go s.consume(s.level.Level())
	return s, nil
}

// Handler returns a text handler that feeds this sink.
func (s *Sink) Handler() slog.Handler {
	return &handler{
		s: s,
		build: func(w io.Writer) slog.Handler {
			return slog.NewTextHandler(w, &slog.HandlerOptions{ReplaceAttr: renameLevel})
		},
	}
}

// Logger returns a logger over Handler.
func (s *Sink) Logger() *slog.Logger {
	return slog.New(s.Handler())
}

// SetLevel changes the minimum level for every handler of this sink. The
// change takes effect in order with the lines already queued and is
// announced at info level.
func (s *Sink) SetLevel(l slog.Level) {
	s.send(entry{level: l, setLevel: true})
	s.level.Set(l)
}

// Level returns the current minimum level.
func (s *Sink) Level() slog.Level {
	return s.level.Level()
}

// Enabled reports whether records at l are accepted by the sink's handlers.
func (s *Sink) Enabled(_ context.Context, l slog.Level) bool {
	return l >= s.level.Level()
}

// Dropped returns how many lines were discarded because the buffer was full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting lines, drains the buffer and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.lines)
	s.mu.Unlock()

	<-s.done
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// entry is either a formatted line or a level change.
type entry struct {
	level    slog.Level
	line     []byte
	setLevel bool
}

func (s *Sink) enqueue(e entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.lines <- e:
	default:
		s.dropped.Add(1)
	}
}

// send queues e without dropping it.
func (s *Sink) send(e entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.lines <- e
}

func (s *Sink) consume(level slog.Level) {
	defer close(s.done)

	var fileBuf *bufio.Writer
	if s.file != nil {
		fileBuf = bufio.NewWriter(s.file)
	}

	for e := range s.lines {
		if e.setLevel {
			level = e.level
			if slog.LevelInfo < level {
				continue
			}
			e = entry{level: slog.LevelInfo, line: levelChangedLine(level)}
		}
		if e.level < level {
			continue
		}
		if s.console != nil {
			s.console.Write(e.line)
		}
		if fileBuf != nil {
			s.writeFile(fileBuf, e.line)
		}
	}
	if fileBuf != nil {
		fileBuf.Flush()
	}
}

func (s *Sink) writeFile(w *bufio.Writer, line []byte) {
	if s.maxLines > 0 && s.fileLines >= s.maxLines {
		w.Flush()
		if err := s.file.Truncate(0); err == nil {
			s.file.Seek(0, io.SeekStart)
		}
		s.fileLines = 0
	}
	w.Write(line)
	s.fileLines++
	if len(s.lines) == 0 {
		w.Flush()
	}
}

// handler formats each record into its own buffer and queues the line with
// the record's level.
type handler struct {
	s     *Sink
	build func(io.Writer) slog.Handler
}

func (h *handler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.s.Enabled(ctx, l)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	if err := h.build(&buf).Handle(ctx, r); err != nil {
		return err
	}
	h.s.enqueue(entry{level: r.Level, line: buf.Bytes()})
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	build := h.build
	return &handler{s: h.s, build: func(w io.Writer) slog.Handler {
		return build(w).WithAttrs(attrs)
	}}
}

func (h *handler) WithGroup(name string) slog.Handler {
	build := h.build
	return &handler{s: h.s, build: func(w io.Writer) slog.Handler {
		return build(w).WithGroup(name)
	}}
}

func levelChangedLine(l slog.Level) []byte {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: renameLevel})
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "Log level changed to: "+levelName(l), 0)
	h.Handle(context.Background(), r)
	return buf.Bytes()
}

func levelName(l slog.Level) string {
	if l == LevelWarning {
		return "WARNING"
	}
	return l.String()
}

func renameLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok && l == LevelWarning {
			a.Value = slog.StringValue("WARNING")
		}
	}
	return a
}
