package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"visionguard/internal/config"
	"visionguard/internal/dto"
	"visionguard/internal/logger"
	"visionguard/internal/model"
	"visionguard/internal/pipeline"
	"visionguard/internal/repository/sqlite"
	"visionguard/internal/service/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// Test Setup Helpers
// ========================================

// waitingProcessor holds every run until the manager is stopped.
type waitingProcessor struct{}

func (waitingProcessor) RunObserved(ctx context.Context, input, runDir string, obs pipeline.Observer) (pipeline.Result, error) {
	<-ctx.Done()
	return pipeline.Result{}, ctx.Err()
}

type nopHub struct{}

func (nopHub) Broadcast(dto.RunEvent) {}

type testEnv struct {
	cfg      *config.Config
	log      *logger.Logger
	runs     *sqlite.RunRepository
	evidence *sqlite.EvidenceRepository
	runsDir  string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Password:      "secret",
		RunsDirectory: filepath.Join(dir, "alerts"),
		LogDirectory:  filepath.Join(dir, "logs"),
		MaxUploadMB:   1,
		RunWorkers:    1,
		RunQueueSize:  4,
		OutputName:    "processed_video.mp4",
		ObjectClasses: "43:knife,76:scissors",
	}

	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewLogger(cfg)
	t.Cleanup(func() { log.Close() })

	return &testEnv{
		cfg:      cfg,
		log:      log,
		runs:     sqlite.NewRunRepository(db),
		evidence: sqlite.NewEvidenceRepository(db),
		runsDir:  cfg.RunsDirectory,
	}
}

func (e *testEnv) newManager(t *testing.T) *runner.Manager {
	t.Helper()

	manager := runner.NewManager(waitingProcessor{}, e.runs, nopHub{}, e.cfg, e.log)
	t.Cleanup(manager.Stop)
	return manager
}

// insertRun stores a run with its directory.
func (e *testEnv) insertRun(t *testing.T, id string, status model.RunStatus, created time.Time) *model.Run {
	t.Helper()

	dir := runner.RunDir(e.runsDir, id)
	require.NoError(t, os.MkdirAll(dir, 0755))

	run := &model.Run{
		ID:         id,
		InputName:  "clip.mp4",
		InputPath:  filepath.Join(dir, runner.InputName),
		RunDir:     dir,
		OutputPath: filepath.Join(dir, "processed_video.mp4"),
		Status:     status,
		CreatedAt:  created,
	}
	require.NoError(t, e.runs.Insert(run))
	return run
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// ========================================
// Upload Tests
// ========================================

func TestProcessVideoHandler_Accepted(t *testing.T) {
	env := setupTestEnv(t)
	handler := ProcessVideoHandler(env.newManager(t), env.cfg, env.log)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, uploadRequest(t, "clip.MP4", []byte("not really a video")))

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunQueued, run.Status)
	assert.Equal(t, "clip.MP4", run.InputName)

	stored, err := os.ReadFile(run.InputPath)
	require.NoError(t, err)
	assert.Equal(t, "not really a video", string(stored))
	assert.Equal(t, runner.RunDir(env.runsDir, run.ID), run.RunDir)

	persisted, err := env.runs.GetByID(run.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
}

func TestProcessVideoHandler_Rejected(t *testing.T) {
	env := setupTestEnv(t)
	handler := ProcessVideoHandler(env.newManager(t), env.cfg, env.log)

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"wrong method", httptest.NewRequest(http.MethodGet, "/process", nil), http.StatusMethodNotAllowed},
		{"missing file", httptest.NewRequest(http.MethodPost, "/process", strings.NewReader("")), http.StatusBadRequest},
		{"unsupported extension", uploadRequest(t, "notes.txt", []byte("hello")), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, tt.req)
			assert.Equal(t, tt.code, rr.Code)
		})
	}

	entries, _ := os.ReadDir(env.runsDir)
	assert.Empty(t, entries, "rejected uploads do not allocate runs")
}

func TestProcessVideoHandler_TooLarge(t *testing.T) {
	env := setupTestEnv(t)
	handler := ProcessVideoHandler(env.newManager(t), env.cfg, env.log)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, uploadRequest(t, "big.mp4", bytes.Repeat([]byte{1}, 2<<20)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// ========================================
// Run Listing Tests
// ========================================

func TestListRunsHandler_Pagination(t *testing.T) {
	env := setupTestEnv(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.insertRun(t, "a", model.RunCompleted, base)
	env.insertRun(t, "b", model.RunFailed, base.Add(time.Minute))
	env.insertRun(t, "c", model.RunCompleted, base.Add(2*time.Minute))

	handler := ListRunsHandler(env.runs, env.log)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs?page=2&limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var data dto.RunsData
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	assert.Equal(t, 3, data.Length)
	assert.Equal(t, 2, data.TotalPages)
	assert.Equal(t, 2, data.CurrentPage)
	require.Len(t, data.Runs, 1)
	assert.Equal(t, "a", data.Runs[0].ID, "newest first")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs?status=completed", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	assert.Equal(t, 2, data.Length)
	assert.Equal(t, 24, data.Limit)
}

func TestListRunsHandler_Empty(t *testing.T) {
	env := setupTestEnv(t)

	rr := httptest.NewRecorder()
	ListRunsHandler(env.runs, env.log).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"runs":[]`)
}

func TestRunStatusHandler(t *testing.T) {
	env := setupTestEnv(t)
	env.insertRun(t, "known", model.RunProcessing, time.Now())
	handler := RunStatusHandler(env.runs, env.log)

	tests := []struct {
		query string
		code  int
	}{
		{"", http.StatusBadRequest},
		{"?id=unknown", http.StatusNotFound},
		{"?id=known", http.StatusOK},
	}

	for _, tt := range tests {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/status"+tt.query, nil))
		assert.Equal(t, tt.code, rr.Code, tt.query)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/status?id=known", nil))
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunProcessing, run.Status)
}

// ========================================
// Evidence Tests
// ========================================

func TestRunEvidenceHandler_MergesIndexAndDisk(t *testing.T) {
	env := setupTestEnv(t)
	run := env.insertRun(t, "done", model.RunCompleted, time.Now())

	for _, name := range []string{"alert_0000000040.jpg", "alert_0000005040.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(run.RunDir, name), []byte("jpeg"), 0644))
	}
	_, err := env.evidence.Insert(&model.Evidence{
		RunID:       run.ID,
		Filename:    "alert_0000005040.jpg",
		FilePath:    filepath.Join(run.RunDir, "alert_0000005040.jpg"),
		TimestampMs: 5040,
		Objects: []model.EvidenceObject{
			{ClassID: 43, ObjectName: "knife", Confidence: 0.9},
			{ClassID: 43, ObjectName: "knife", Confidence: 0.7},
		},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	RunEvidenceHandler(env.runs, env.evidence, env.log).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/evidence?id=done", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var data struct {
		RunID    string `json:"runId"`
		VideoURL string `json:"videoUrl"`
		Evidence []struct {
			Name     string   `json:"name"`
			URL      string   `json:"url"`
			Position string   `json:"position"`
			Objects  []string `json:"objects"`
		} `json:"evidence"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))

	assert.Equal(t, "/runs/process_done/processed_video.mp4", data.VideoURL)
	require.Len(t, data.Evidence, 2)
	assert.Equal(t, "alert_0000000040.jpg", data.Evidence[0].Name)
	assert.Empty(t, data.Evidence[0].Objects)
	assert.Equal(t, "00:00:00.040", data.Evidence[0].Position)
	assert.Equal(t, "/runs/process_done/alert_0000005040.jpg", data.Evidence[1].URL)
	assert.Equal(t, []string{"knife"}, data.Evidence[1].Objects)
}

func TestRunEvidenceHandler_NoVideoUntilCompleted(t *testing.T) {
	env := setupTestEnv(t)
	env.insertRun(t, "busy", model.RunProcessing, time.Now())

	rr := httptest.NewRecorder()
	RunEvidenceHandler(env.runs, env.evidence, env.log).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/evidence?id=busy", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var data dto.EvidenceData
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	assert.Empty(t, data.VideoURL)
	assert.Empty(t, data.Evidence)
}

// ========================================
// Delete Tests
// ========================================

func TestDeleteRunHandler(t *testing.T) {
	env := setupTestEnv(t)
	busy := env.insertRun(t, "busy", model.RunProcessing, time.Now())
	done := env.insertRun(t, "done", model.RunCompleted, time.Now())
	handler := DeleteRunHandler(env.runs, env.log)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/delete?id=done", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/runs/delete?id=busy", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.DirExists(t, busy.RunDir)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/runs/delete?id=done", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NoDirExists(t, done.RunDir)

	run, err := env.runs.GetByID("done")
	require.NoError(t, err)
	assert.Nil(t, run)
}

// ========================================
// Auth Tests
// ========================================

func TestLoginHandler(t *testing.T) {
	env := setupTestEnv(t)
	handler := LoginHandler(env.cfg, env.log)

	login := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"password": {password}}
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := login("wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())

	rr = login("secret")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookie, cookies[0].Name)
	assert.Equal(t, "true", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogoutHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	LogoutHandler(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

// ========================================
// Helper Function Tests
// ========================================

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"1", 0, 1},
		{"", 5, 5},
		{"abc", 10, 10},
		{"0", 7, 7},
		{"-3", 2, 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, atoiDefault(tt.input, tt.def), "atoiDefault(%q, %d)", tt.input, tt.def)
	}
}
