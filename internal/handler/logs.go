package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"visionguard/internal/config"
	"visionguard/internal/logger"
)

// LogLevels are the log files exposed over HTTP.
var LogLevels = []string{"info", "warning", "error"}

// ShowLogsHandler serves <level>.log as text/plain.
func ShowLogsHandler(cfg *config.Config, level string) http.HandlerFunc {
	filename := level + ".log"
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := filepath.Join(cfg.LogDirectory, filename)

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Log file not found: " + filename))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}

// ClearLogsHandler truncates <level>.log. Only POST is accepted.
func ClearLogsHandler(logger *logger.Logger, level string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		logger.CleanLogs(level + ".log")
		w.WriteHeader(http.StatusNoContent)
	}
}
