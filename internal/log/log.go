// Package applog is a minimal leveled logger: three levels (error, warning,
// info), a bracketed "[timestamp]-[component]: message" line format, ANSI
// color on the default stderr sink, and an optional uncolored file sink.
package applog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	mu sync.Mutex

	infoEnabled  = true
	warnEnabled  = true
	errorEnabled = true

	fileSink io.Writer // nil until SetLogFile is called

	errorColor = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	infoColor  = color.New(color.FgWhite)
)

// SetLevels toggles which levels are emitted. All three default to enabled.
func SetLevels(info, warning, errLevel bool) {
	mu.Lock()
	defer mu.Unlock()
	infoEnabled, warnEnabled, errorEnabled = info, warning, errLevel
}

// SetLogFile redirects every emitted line, uncolored, to path instead of
// stderr, appending if it already exists. Matches the CLI's -l/--log flag.
func SetLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("applog: open log file: %w", err)
	}
	mu.Lock()
	fileSink = f
	mu.Unlock()
	return nil
}

func format(component, message string) string {
	return fmt.Sprintf("[%s]-[%s]: %s", time.Now().Format(timeLayout), component, message)
}

func emit(enabled bool, c *color.Color, component, message string) {
	if !enabled {
		return
	}
	line := format(component, message)
	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		fmt.Fprintln(fileSink, line)
		return
	}
	c.Fprintln(os.Stderr, line)
}

// Error logs a fatal-to-the-operation condition: a dropped connection, a
// rejected configuration, an unrecoverable socket error.
func Error(component, message string) {
	emit(errorEnabled, errorColor, component, message)
}

// Warning logs a recoverable condition: a failed health probe, a request
// rejected by policy.
func Warning(component, message string) {
	emit(warnEnabled, warnColor, component, message)
}

// Info logs routine lifecycle and traffic events: link state transitions,
// server start/stop, accepted connections.
func Info(component, message string) {
	emit(infoEnabled, infoColor, component, message)
}
