// Package logger is the process-wide structured logger. Entries are JSON
// objects written by logrus; key/value pairs passed to the package helpers
// become fields, and values that look like email addresses are masked unless
// redaction is switched off.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var logrusLevels = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// Logger wraps a logrus logger with PII redaction of field values.
type Logger struct {
	mu        sync.RWMutex
	base      *logrus.Logger
	redactPII bool
}

// New builds a Logger writing JSON lines to out.
func New(out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "msg",
		},
	})
	return &Logger{base: base, redactPII: true}
}

var defaultLogger = New(os.Stderr)

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.SetLevel(l) }

// SetLevelFromString accepts debug, info, warn or error. Unknown values leave
// the level untouched and return false.
func SetLevelFromString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		SetLevel(DEBUG)
	case "info":
		SetLevel(INFO)
	case "warn", "warning":
		SetLevel(WARN)
	case "error":
		SetLevel(ERROR)
	default:
		return false
	}
	return true
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.SetRedactPII(r) }

// SetOutput redirects the default logger.
func SetOutput(w io.Writer) { defaultLogger.base.SetOutput(w) }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.Log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.Log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.Log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.Log(ERROR, msg, fields...) }

func (l *Logger) SetLevel(level Level) {
	if lv, ok := logrusLevels[level]; ok {
		l.base.SetLevel(lv)
	}
}

func (l *Logger) SetRedactPII(r bool) {
	l.mu.Lock()
	l.redactPII = r
	l.mu.Unlock()
}

// Log writes msg at level with fields given as alternating keys and values.
// A trailing key without a value is dropped.
func (l *Logger) Log(level Level, msg string, fields ...interface{}) {
	lv, ok := logrusLevels[level]
	if !ok || !l.base.IsLevelEnabled(lv) {
		return
	}
	l.base.WithFields(l.fields(fields)).Log(lv, msg)
}

func (l *Logger) fields(kv []interface{}) logrus.Fields {
	l.mu.RLock()
	redact := l.redactPII
	l.mu.RUnlock()

	out := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		val := kv[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		if redact {
			if s, ok := val.(string); ok {
				val = redactPIIValue(key, s)
			}
		}
		out[key] = val
	}
	return out
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "recipient") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
