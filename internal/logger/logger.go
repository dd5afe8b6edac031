package logger

import (
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Level represents logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var charmLevels = map[Level]charmlog.Level{
	DEBUG: charmlog.DebugLevel,
	INFO:  charmlog.InfoLevel,
	WARN:  charmlog.WarnLevel,
	ERROR: charmlog.ErrorLevel,
	FATAL: charmlog.FatalLevel,
}

const timeFormat = "2006-01-02 15:04:05.000"

// Logger provides structured logging capabilities
type Logger struct {
	level     Level
	format    string // "text" or "json"
	component string
	base      *charmlog.Logger
	log       *charmlog.Logger
}

// Fields represents structured logging fields
type Fields map[string]interface{}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(level, format string, component string) {
	once.Do(func() {
		defaultLogger = New(level, format, component)
	})
}

// New creates a new logger instance writing to stdout
func New(levelStr, format, component string) *Logger {
	return NewWithWriter(os.Stdout, levelStr, format, component)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, levelStr, format, component string) *Logger {
	level := parseLevel(levelStr)

	base := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmLevels[level],
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
	})
	if format == "json" {
		base.SetFormatter(charmlog.JSONFormatter)
	} else {
		format = "text"
		base.SetFormatter(charmlog.TextFormatter)
	}

	return newFromBase(base, level, format, component)
}

func newFromBase(base *charmlog.Logger, level Level, format, component string) *Logger {
	l := base
	if component != "" {
		l = base.With("component", component)
	}
	return &Logger{
		level:     level,
		format:    format,
		component: component,
		base:      base,
		log:       l,
	}
}

// WithComponent creates a new logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	return newFromBase(l.base, l.level, l.format, component)
}

// Component returns the component name attached to every entry
func (l *Logger) Component() string {
	return l.component
}

// SetOutput redirects this logger's output
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
	l.log.SetOutput(w)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log.Debug(msg, keyvals(mergeFields(fields...))...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log.Info(msg, keyvals(mergeFields(fields...))...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log.Warn(msg, keyvals(mergeFields(fields...))...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log.Error(msg, keyvals(mergeFields(fields...))...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.log.Fatal(msg, keyvals(mergeFields(fields...))...)
}

// parseLevel converts string to Level
func parseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// mergeFields combines multiple Fields maps
func mergeFields(fields ...Fields) Fields {
	if len(fields) == 0 {
		return Fields{}
	}

	result := Fields{}
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}

// keyvals flattens fields into sorted key/value pairs
func keyvals(f Fields) []interface{} {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		v := f[k]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		kv = append(kv, k, v)
	}
	return kv
}

// Default logger convenience functions
func Debug(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Debug(msg, fields...)
	} else {
		log.Printf("[DEBUG] %s", msg)
	}
}

func Info(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Info(msg, fields...)
	} else {
		log.Printf("[INFO] %s", msg)
	}
}

func Warn(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Warn(msg, fields...)
	} else {
		log.Printf("[WARN] %s", msg)
	}
}

func Error(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Error(msg, fields...)
	} else {
		log.Printf("[ERROR] %s", msg)
	}
}

func Fatal(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Fatal(msg, fields...)
	} else {
		log.Fatalf("[FATAL] %s", msg)
	}
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger
}

// Or returns the default logger scoped to component, or a fresh text logger
// when Init has not been called
func Or(component string) *Logger {
	if defaultLogger == nil {
		return New("info", "text", component)
	}
	return defaultLogger.WithComponent(component)
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return NewWithWriter(io.Discard, "fatal", "text", "")
}
