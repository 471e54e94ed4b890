package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"visionguard/internal/config"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides leveled logging (info/warning/error) to rotating files and stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	files      map[string]*lumberjack.Logger
	logDir     string
	maxSizeMB  int
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		logDir:    config.LogDirectory,
		maxSizeMB: config.LogMaxSizeMB,
		files:     make(map[string]*lumberjack.Logger),
	}

	logger.setupLoggers()
	return logger
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers() {
	infoWriter := io.MultiWriter(os.Stdout, l.openLogFile("info.log"))
	warningWriter := io.MultiWriter(os.Stdout, l.openLogFile("warning.log"))
	errorWriter := io.MultiWriter(os.Stderr, l.openLogFile("error.log"))

	l.infoLog = log.New(infoWriter, "ℹ️  INFO    ", log.Ldate|log.Ltime|log.Lshortfile)
	l.warningLog = log.New(warningWriter, "⚠️  WARNING ", log.Ldate|log.Ltime|log.Lshortfile)
	l.errorLog = log.New(errorWriter, "❌ ERROR   ", log.Ldate|log.Ltime|log.Lshortfile)
}

// openLogFile returns a size-rotated writer for a log file in the log directory.
func (l *Logger) openLogFile(filename string) *lumberjack.Logger {
	maxSize := l.maxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(l.logDir, filename),
		MaxSize:    maxSize,
		MaxBackups: 3,
		MaxAge:     28,
	}
	l.files[filename] = file
	return file
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Output(2, fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, ok := l.files[fileName]
	if !ok {
		l.errorLog.Printf("Unknown log file: %s", fileName)
		return
	}

	// Close releases the handle; the next write reopens the file.
	if err := file.Close(); err != nil {
		l.errorLog.Printf("Error closing file: %v", err)
		return
	}
	if err := os.Truncate(file.Filename, 0); err != nil && !os.IsNotExist(err) {
		l.errorLog.Printf("Error truncating file: %v", err)
		return
	}

	l.infoLog.Printf("File %s has been cleared.", fileName)
}

// Close flushes and closes all log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	for _, file := range l.files {
		err = multierr.Append(err, file.Close())
	}
	return err
}
