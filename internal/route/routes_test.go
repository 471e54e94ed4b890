package route

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"visionguard/internal/config"
	"visionguard/internal/logger"
	"visionguard/internal/repository/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Password:      "secret",
		RunsDirectory: filepath.Join(dir, "alerts"),
		LogDirectory:  filepath.Join(dir, "logs"),
	}

	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewLogger(cfg)
	t.Cleanup(func() { log.Close() })

	router := SetupRoutes(Dependencies{
		Config:       cfg,
		Logger:       log,
		RunRepo:      sqlite.NewRunRepository(db),
		EvidenceRepo: sqlite.NewEvidenceRepository(db),
	})
	return router, cfg
}

func get(router http.Handler, path string, authenticated bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authenticated {
		req.AddCookie(&http.Cookie{Name: "authenticated", Value: "true"})
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSetupRoutes_RunArtifacts(t *testing.T) {
	router, cfg := setupRouter(t)

	runDir := filepath.Join(cfg.RunsDirectory, "process_abc")
	require.NoError(t, os.MkdirAll(runDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "alert_0000000040.jpg"), []byte("jpeg"), 0644))

	rr := get(router, "/runs/process_abc/alert_0000000040.jpg", true)
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Equal(t, "jpeg", string(body))

	rr = get(router, "/runs/process_abc/alert_0000000040.jpg", false)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestSetupRoutes_API(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/runs", false).Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/runs", true).Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/api/runs/status?id=missing", true).Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/no-such-page", true).Code)
}
