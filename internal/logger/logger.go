package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

var (
	mu          sync.Mutex
	debugLogger *log.Logger

	DebugEnabled = false

	logFile *os.File
)

// DefaultPath returns the log file location under the XDG state directory.
func DefaultPath() string {
	return filepath.Join(xdg.StateHome, "btget", "btget.log")
}

// InitLogging sets up logging based on configuration. Nothing is written
// unless debugMode is set.
func InitLogging(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	if DebugEnabled && logPath != "" {
		logDir := filepath.Dir(logPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
		debugLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	}

	return nil
}

// SetOutput sends log lines to w, enabling debug output. Used when the
// caller wants logs on a stream instead of a file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = w != nil
	if w == nil {
		debugLogger = nil
		return
	}

	debugLogger = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	debugLogger = nil
	DebugEnabled = false
}

func printf(level, format string, v ...any) {
	mu.Lock()
	l := debugLogger
	enabled := DebugEnabled
	mu.Unlock()

	if enabled && l != nil {
		l.Output(3, level+" "+fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...any) {
	printf("[INFO]", format, v...)
}

// Errorf logs an error message to the file if debug mode is enabled.
func Errorf(format string, v ...any) {
	printf("[ERROR]", format, v...)
}

func Debugf(format string, v ...any) {
	printf("[DEBUG]", format, v...)
}

func Warnf(format string, v ...any) {
	printf("[WARNING]", format, v...)
}
