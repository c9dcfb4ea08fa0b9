package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	tintOnce sync.Once
	tints    map[LogLevel]*color.Color
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
	})
}

// parseLevel resolves the DEBUG and LOG_LEVEL values into a level.
// DEBUG wins when it holds a truthy value.
func parseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initTints enables colored level tags only when stderr is a terminal.
// Container log collectors get plain text.
func initTints() {
	tintOnce.Do(func() {
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			return
		}
		tints = map[LogLevel]*color.Color{
			LevelDebug: color.New(color.FgWhite, color.Italic),
			LevelInfo:  color.New(color.FgHiGreen),
			LevelWarn:  color.New(color.FgYellow),
			LevelError: color.New(color.FgHiRed, color.Bold),
		}
		for _, c := range tints {
			c.EnableColor()
		}
	})
}

func tag(level LogLevel, label string) string {
	initTints()
	if c, ok := tints[level]; ok {
		return c.Sprint(label)
	}
	return label
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf(tag(LevelDebug, "[DEBUG]")+" "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf(tag(LevelInfo, "[INFO]")+" "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf(tag(LevelWarn, "[WARN]")+" "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf(tag(LevelError, "[ERROR]")+" "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf(tag(LevelError, "[FATAL]")+" "+format, args...)
}

// Printf is a pass-through to log.Printf for messages that should always print
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Scoped returns a logger that prefixes every message with a fixed scope,
// used to tie together the lines emitted by one pipeline.
func Scoped(scope string) *ScopedLogger {
	return &ScopedLogger{prefix: "[" + scope + "] "}
}

// ScopedLogger prefixes messages with a scope tag.
type ScopedLogger struct {
	prefix string
}

// Debug logs a scoped debug message.
func (l *ScopedLogger) Debug(format string, args ...interface{}) {
	Debug(l.prefix+format, args...)
}

// Info logs a scoped info message.
func (l *ScopedLogger) Info(format string, args ...interface{}) {
	Info(l.prefix+format, args...)
}

// Warn logs a scoped warning.
func (l *ScopedLogger) Warn(format string, args ...interface{}) {
	Warn(l.prefix+format, args...)
}

// Error logs a scoped error.
func (l *ScopedLogger) Error(format string, args ...interface{}) {
	Error(l.prefix+format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
