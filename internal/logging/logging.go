package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

// LogLevel represents the severity of a log entry.
type LogLevel int

const (
	DEBUG LogLevel = -1
	INFO  LogLevel = 0
	WARN  LogLevel = 1
	ERROR LogLevel = 2
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	mu       sync.Mutex
	out      io.Writer
	logFile  *os.File
	logPath  string
	minLevel = INFO
)

// InitLogger opens (or creates) the log file under the XDG state home
// (~/.local/state/<appName>/<appName>.log) and returns its absolute path.
func InitLogger(appName string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	rel := filepath.Join(appName, appName+".log")
	p, err := xdg.StateFile(rel)
	if err != nil {
		return "", fmt.Errorf("logging: resolve state path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("logging: create log dir: %w", err)
	}

	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("logging: open log file: %w", err)
	}

	closeFileLocked()
	logFile = f
	out = f
	logPath = p
	return p, nil
}

// SetOutput sends log lines to w instead of the log file. A nil w disables
// logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	out = w
	logPath = ""
}

// SetLevel drops entries below level.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
}

// Close releases the log file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	out = nil
	return err
}

func closeFileLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Log writes a structured line. Safe to call from any goroutine.
// If no output is configured the entry is silently dropped.
func Log(level LogLevel, scriptName, message string) {
	mu.Lock()
	defer mu.Unlock()

	if out == nil || level < minLevel {
		return
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s [%s] script=%q %s\n", ts, level, scriptName, message)
	_, _ = io.WriteString(out, line)
}

// Logf is Log with a format string.
func Logf(level LogLevel, scriptName, format string, args ...any) {
	Log(level, scriptName, fmt.Sprintf(format, args...))
}

// Path returns the resolved log file path (empty when logging to a writer
// or not initialised).
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}
