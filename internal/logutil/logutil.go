// Package logutil writes structured JSON log lines through the standard logger.
package logutil

import (
	"encoding/json"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

const (
	levelDebug int32 = iota
	levelInfo
	levelWarn
	levelError
)

var minLevel atomic.Int32

func init() {
	minLevel.Store(levelInfo)
}

// SetLevel sets the lowest level written: debug, info, warn or error.
// Unknown names leave the level unchanged.
func SetLevel(name string) {
	if lvl, ok := parseLevel(name); ok {
		minLevel.Store(lvl)
	}
}

func parseLevel(name string) (int32, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return levelDebug, true
	case "info":
		return levelInfo, true
	case "warn", "warning":
		return levelWarn, true
	case "error":
		return levelError, true
	}
	return 0, false
}

// Debug logs a structured debug message.
func Debug(msg string, fields map[string]interface{}) {
	logJSON(levelDebug, "debug", msg, fields)
}

// Info logs a structured info message.
func Info(msg string, fields map[string]interface{}) {
	logJSON(levelInfo, "info", msg, fields)
}

// Warn logs a structured warning, used for recoverable stream problems.
func Warn(msg string, fields map[string]interface{}) {
	logJSON(levelWarn, "warn", msg, fields)
}

// Error logs a structured error message including the error string.
func Error(msg string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logJSON(levelError, "error", msg, fields)
}

// Logger returns a *log.Logger whose lines become warn entries tagged with
// component. Packages that take a plain logger (the stream orchestrator, the
// session manager, the event bus) are handed one of these.
func Logger(component string) *log.Logger {
	return log.New(componentWriter{component: component}, "", 0)
}

type componentWriter struct {
	component string
}

func (w componentWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	logJSON(levelWarn, "warn", msg, map[string]interface{}{"component": w.component})
	return len(p), nil
}

func logJSON(lvl int32, level, msg string, fields map[string]interface{}) {
	if lvl < minLevel.Load() {
		return
	}
	entry := map[string]interface{}{
		"level":     level,
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		entry[k] = v
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		log.Printf("%s: %+v", msg, fields)
		return
	}
	log.Printf("%s", payload)
}
