package helpers

import (
	"fmt"
	"os"
	"sync"
	"time"

	"sjsage522/feedharvester/logger"
)

// LoggerInterface defines the interface for failure journals
type LoggerInterface interface {
	LogError(component string, err error)
}

// Logger appends failures to a file so that lost batches can be replayed by hand
type Logger struct {
	mu        sync.Mutex
	errorFile string
}

// NewLogger creates a new logger instance
func NewLogger(errorFile string) *Logger {
	return &Logger{
		errorFile: errorFile,
	}
}

// LogError logs an error to the file with component name and timestamp
func (l *Logger) LogError(component string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		logger.Warn("failed to open error log %s: %v", l.errorFile, fileErr)
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, component, err.Error())
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) LogError(component string, err error) {}
