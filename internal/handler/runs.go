package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"visionguard/internal/dto"
	"visionguard/internal/evidence"
	"visionguard/internal/logger"
	"visionguard/internal/model"
	"visionguard/internal/repository"
	"visionguard/internal/service/runner"

	"github.com/samber/lo"
)

// ListRunsHandler returns a paginated list of runs, newest first.
func ListRunsHandler(runRepo repository.RunRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.RunFilters{
			Status: model.RunStatus(q.Get("status")),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		runs, err := runRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying runs from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := runRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting runs: %v", err)
			totalCount = len(runs)
		}

		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, logger, http.StatusOK, dto.RunsData{
			Runs:        runs,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// RunStatusHandler returns one run selected by the "id" query parameter.
func RunStatusHandler(runRepo repository.RunRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, runRepo, logger)
		if !ok {
			return
		}
		writeJSON(w, logger, http.StatusOK, run)
	}
}

// RunEvidenceHandler lists a run's evidence frames in chronological order.
// Files on disk that were never indexed are listed without object names.
func RunEvidenceHandler(runRepo repository.RunRepository, evidenceRepo repository.EvidenceRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, runRepo, logger)
		if !ok {
			return
		}

		indexed, err := evidenceRepo.GetByRunID(run.ID)
		if err != nil {
			logger.Error("Error querying evidence for run %s: %v", run.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		byName := make(map[string]dto.EvidenceInfo, len(indexed))
		for _, ev := range indexed {
			objects := lo.Uniq(lo.Map(ev.Objects, func(obj model.EvidenceObject, _ int) string {
				return obj.ObjectName
			}))
			byName[ev.Filename] = runner.EvidenceInfo(run.ID, ev.Filename, ev.TimestampMs, objects)
		}

		files, err := evidence.List(run.RunDir)
		if err != nil {
			logger.Error("Error listing evidence for run %s: %v", run.ID, err)
		}
		for _, name := range files {
			if _, ok := byName[name]; ok {
				continue
			}
			ts, _ := evidence.ParseFilename(name)
			byName[name] = runner.EvidenceInfo(run.ID, name, ts, []string{})
		}

		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		data := dto.EvidenceData{RunID: run.ID, Evidence: make([]dto.EvidenceInfo, 0, len(names))}
		for _, name := range names {
			data.Evidence = append(data.Evidence, byName[name])
		}
		if run.Status == model.RunCompleted {
			data.VideoURL = runner.EvidenceURL(run.ID, filepath.Base(run.OutputPath))
		}

		writeJSON(w, logger, http.StatusOK, data)
	}
}

// DeleteRunHandler removes a finished run from disk and database.
func DeleteRunHandler(runRepo repository.RunRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		run, ok := lookupRun(w, r, runRepo, logger)
		if !ok {
			return
		}
		if !run.Status.Done() {
			http.Error(w, "Run is still in progress", http.StatusConflict)
			return
		}

		if err := os.RemoveAll(run.RunDir); err != nil {
			logger.Error("Failed to delete run directory %s: %v", run.RunDir, err)
		}
		if err := runRepo.Delete(run.ID); err != nil {
			logger.Error("Failed to delete run %s from database: %v", run.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Deleted run: %s", run.ID)
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "deleted", "id": run.ID})
	}
}

func lookupRun(w http.ResponseWriter, r *http.Request, runRepo repository.RunRepository, logger *logger.Logger) (*model.Run, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Run id required", http.StatusBadRequest)
		return nil, false
	}

	run, err := runRepo.GetByID(id)
	if err != nil {
		logger.Error("Error loading run %s: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
