package route

import (
	"net/http"
	"os"
	"path/filepath"

	"visionguard/internal/config"
	"visionguard/internal/handler"
	"visionguard/internal/logger"
	"visionguard/internal/middleware"
	"visionguard/internal/repository"
	"visionguard/internal/service/runner"
	"visionguard/internal/service/websocket"
)

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// Dependencies groups what the HTTP layer needs.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	Manager      *runner.Manager
	Hub          *websocket.HubService
	RunRepo      repository.RunRepository
	EvidenceRepo repository.EvidenceRepository
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(deps Dependencies) http.Handler {
	cfg, logger := deps.Config, deps.Logger
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
	mux.Handle("/runs/", http.StripPrefix("/runs/", http.FileServer(http.Dir(cfg.RunsDirectory))))

	// Processing
	mux.HandleFunc("/process", handler.ProcessVideoHandler(deps.Manager, cfg, logger))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, logger))
	mux.HandleFunc("/api/runs", handler.ListRunsHandler(deps.RunRepo, logger))
	mux.HandleFunc("/api/runs/status", handler.RunStatusHandler(deps.RunRepo, logger))
	mux.HandleFunc("/api/runs/evidence", handler.RunEvidenceHandler(deps.RunRepo, deps.EvidenceRepo, logger))
	mux.HandleFunc("/api/runs/delete", handler.DeleteRunHandler(deps.RunRepo, logger))

	// Log endpoints
	for _, level := range handler.LogLevels {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, level))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	// Apply middleware
	return middleware.AuthMiddleware(mux)
}
