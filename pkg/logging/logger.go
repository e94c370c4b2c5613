// Package logging is the structured logger every component shares. It wraps
// slog with leveled helpers, per-component child loggers and an optional
// buffered queue so request paths do not block on the sink.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// LogLevel orders severities. The values line up with slog levels so the
// handler can gate on them directly.
type LogLevel int

const (
	LevelTrace LogLevel = iota - 1
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       LogLevel `json:"level"`
	Format      string   `json:"format"`       // "json" or "text"
	Output      string   `json:"output"`       // "stdout", "stderr", or a file path
	EnableFile  bool     `json:"enable_file"`  // also copy output into FilePath
	FilePath    string   `json:"file_path"`    // log file path
	MaxSize     int64    `json:"max_size"`     // max log file size in MB
	MaxBackups  int      `json:"max_backups"`  // number of backup files to keep
	MaxAge      int      `json:"max_age"`      // max age of log files in days
	EnableAsync bool     `json:"enable_async"` // buffer writes off the request path
}

// DefaultLogConfig returns the production defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       LevelInfo,
		Format:      "json",
		Output:      "stdout",
		EnableFile:  false,
		FilePath:    "/var/log/venue-rails/app.log",
		MaxSize:     100,
		MaxBackups:  5,
		MaxAge:      30,
		EnableAsync: true,
	}
}

// queueDepth bounds the async buffer. A full buffer degrades to a
// synchronous write instead of dropping the line.
const queueDepth = 1024

// record is one log line in flight between the caller and the sink.
type record struct {
	level  LogLevel
	msg    string
	err    string
	caller string
	comp   string
	fields []Field
}

// Logger fans log records into an slog handler, optionally through a
// buffering goroutine. Create one per process and hand out component views
// with WithComponent.
type Logger struct {
	cfg  LogConfig
	out  *slog.Logger
	file *os.File

	queue chan record
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewLogger builds a logger from cfg. With EnableAsync set, records pass
// through a buffered channel and a single writer goroutine; Close drains it.
func NewLogger(cfg LogConfig) (*Logger, error) {
	writer, file, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       slog.Level(cfg.Level),
		ReplaceAttr: renameLevel,
	}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	l := &Logger{cfg: cfg, out: slog.New(handler), file: file}
	if cfg.EnableAsync {
		l.queue = make(chan record, queueDepth)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for rec := range l.queue {
				l.write(rec)
			}
		}()
	}
	return l, nil
}

// newWriter resolves the configured sink. EnableFile tees the chosen output
// into FilePath as well, so a container can log to stdout and keep a local
// copy for the box.
func newWriter(cfg LogConfig) (io.Writer, *os.File, error) {
	var base io.Writer
	switch cfg.Output {
	case "", "stdout":
		base = os.Stdout
	case "stderr":
		base = os.Stderr
	default:
		f, err := openLogFile(cfg.Output)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}

	if cfg.EnableFile && cfg.FilePath != "" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return io.MultiWriter(base, f), f, nil
	}
	return base, nil, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// renameLevel prints our level names instead of slog's offset notation.
func renameLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lv, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LogLevel(lv).String())
	}
	return a
}

// Close stops the writer goroutine after draining queued records, then
// closes the log file if one is open. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		if l.queue != nil {
			l.mu.Lock()
			l.closed = true
			close(l.queue)
			l.mu.Unlock()
			l.wg.Wait()
		}
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// WithComponent returns a view of the logger that stamps every record with
// the component name.
func (l *Logger) WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{root: l, name: component}
}

// ComponentLogger is a named view over the shared logger.
type ComponentLogger struct {
	root *Logger
	name string
}

func (l *Logger) Trace(msg string, fields ...Field) { l.emit("", LevelTrace, msg, nil, fields) }
func (l *Logger) Debug(msg string, fields ...Field) { l.emit("", LevelDebug, msg, nil, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit("", LevelInfo, msg, nil, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit("", LevelWarn, msg, nil, fields) }

func (l *Logger) Error(msg string, err error, fields ...Field) {
	l.emit("", LevelError, msg, err, fields)
}

// Fatal logs the record, flushes and exits the process.
func (l *Logger) Fatal(msg string, err error, fields ...Field) {
	l.emit("", LevelFatal, msg, err, fields)
	_ = l.Close()
	os.Exit(1)
}

func (c *ComponentLogger) Trace(msg string, fields ...Field) {
	c.root.emit(c.name, LevelTrace, msg, nil, fields)
}

func (c *ComponentLogger) Debug(msg string, fields ...Field) {
	c.root.emit(c.name, LevelDebug, msg, nil, fields)
}

func (c *ComponentLogger) Info(msg string, fields ...Field) {
	c.root.emit(c.name, LevelInfo, msg, nil, fields)
}

func (c *ComponentLogger) Warn(msg string, fields ...Field) {
	c.root.emit(c.name, LevelWarn, msg, nil, fields)
}

func (c *ComponentLogger) Error(msg string, err error, fields ...Field) {
	c.root.emit(c.name, LevelError, msg, err, fields)
}

func (c *ComponentLogger) Fatal(msg string, err error, fields ...Field) {
	c.root.emit(c.name, LevelFatal, msg, err, fields)
	_ = c.root.Close()
	os.Exit(1)
}

// emit gates on the configured level, captures the call site for warnings
// and worse, and hands the record to the sink. It sits exactly one frame
// below the public helpers; the caller skip depends on that.
func (l *Logger) emit(comp string, level LogLevel, msg string, err error, fields []Field) {
	if level < l.cfg.Level {
		return
	}
	rec := record{level: level, msg: msg, comp: comp, fields: fields}
	if err != nil {
		rec.err = err.Error()
	}
	if level >= LevelWarn {
		if _, file, line, ok := runtime.Caller(2); ok {
			rec.caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	l.dispatch(rec)
}

// dispatch queues the record when async logging is on. After Close, or when
// the buffer is full, it falls back to writing inline.
func (l *Logger) dispatch(rec record) {
	if l.queue == nil {
		l.write(rec)
		return
	}
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		l.write(rec)
		return
	}
	select {
	case l.queue <- rec:
		l.mu.RUnlock()
	default:
		l.mu.RUnlock()
		l.write(rec)
	}
}

func (l *Logger) write(rec record) {
	attrs := make([]slog.Attr, 0, len(rec.fields)+3)
	if rec.comp != "" {
		attrs = append(attrs, slog.String("component", rec.comp))
	}
	if rec.err != "" {
		attrs = append(attrs, slog.String("error", rec.err))
	}
	if rec.caller != "" {
		attrs = append(attrs, slog.String("caller", rec.caller))
	}
	for _, f := range rec.fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.out.LogAttrs(context.Background(), slog.Level(rec.level), rec.msg, attrs...)
}

// Field is one structured key/value pair on a log record.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field  { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error wraps an error into the conventional "error" field.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}
