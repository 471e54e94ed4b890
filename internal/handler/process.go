package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"visionguard/internal/config"
	"visionguard/internal/logger"
	"visionguard/internal/service/runner"

	"github.com/samber/lo"
)

// AllowedExtensions are the accepted upload formats.
var AllowedExtensions = []string{".mp4", ".avi", ".mov"}

// ProcessVideoHandler accepts a multipart "file" upload, stores it in a new run
// directory and queues the run. It answers 202 with the queued run.
func ProcessVideoHandler(manager *runner.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadMB<<20)

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "No file uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !lo.Contains(AllowedExtensions, ext) {
			http.Error(w, fmt.Sprintf("Unsupported file type %q", ext), http.StatusBadRequest)
			return
		}

		run, err := manager.NewRun(filepath.Base(header.Filename))
		if err != nil {
			logger.Error("Error creating run: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if err := saveUpload(file, run.InputPath); err != nil {
			logger.Error("Error saving upload for run %s: %v", run.ID, err)
			os.RemoveAll(run.RunDir)
			http.Error(w, "Unable to store upload", http.StatusInternalServerError)
			return
		}

		response := *run
		if err := manager.Submit(run); err != nil {
			if errors.Is(err, runner.ErrQueueFull) {
				http.Error(w, "Processing queue is full, try again later", http.StatusServiceUnavailable)
				return
			}
			logger.Error("Error submitting run %s: %v", run.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Accepted %s as run %s", header.Filename, run.ID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
