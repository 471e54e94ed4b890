package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visionguard/internal/config"
	"visionguard/internal/cooldown"
	"visionguard/internal/detection"
	"visionguard/internal/logger"
	"visionguard/internal/notify"
	"visionguard/internal/pipeline"
	"visionguard/internal/repository"
	"visionguard/internal/repository/sqlite"
	"visionguard/internal/route"
	"visionguard/internal/service/ai"
	"visionguard/internal/service/runner"
	"visionguard/internal/service/websocket"
	"visionguard/internal/video"

	"go.uber.org/multierr"
)

type App struct {
	config       *config.Config
	logger       *logger.Logger
	db           *sqlite.DB
	runRepo      *sqlite.RunRepository
	evidenceRepo *sqlite.EvidenceRepository
	detector     detection.Detector
	notifier     notify.Multi
	hubService   *websocket.HubService
	manager      *runner.Manager
}

// NewApp wires configuration, storage, the detector and the run manager.
func NewApp(cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, err
	}
	runRepo := sqlite.NewRunRepository(db)
	evidenceRepo := sqlite.NewEvidenceRepository(db)

	p, detector, notifier, err := NewPipeline(cfg, log, evidenceRepo)
	if err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	hub := websocket.NewHubService(log)
	manager := runner.NewManager(p, runRepo, hub, cfg, log)

	return &App{
		config:       cfg,
		logger:       log,
		db:           db,
		runRepo:      runRepo,
		evidenceRepo: evidenceRepo,
		detector:     detector,
		notifier:     notifier,
		hubService:   hub,
		manager:      manager,
	}, nil
}

// NewPipeline builds the detector, notifiers and pipeline from configuration.
// evidenceRepo may be nil when no index is kept.
func NewPipeline(cfg *config.Config, log *logger.Logger, evidenceRepo repository.EvidenceRepository) (*pipeline.Pipeline, detection.Detector, notify.Multi, error) {
	policy, err := cfg.ClassifierPolicy()
	if err != nil {
		return nil, nil, nil, err
	}
	labels, err := cfg.Labels()
	if err != nil {
		return nil, nil, nil, err
	}
	timeSource, err := cooldown.ParseTimeSource(cfg.CooldownClock)
	if err != nil {
		return nil, nil, nil, err
	}

	detector, err := ai.NewDetectorService(cfg, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load detector: %w", err)
	}

	notifier := NewNotifier(cfg, log)

	p, err := pipeline.New(pipeline.Options{
		Policy:       policy,
		Labels:       labels,
		Cooldown:     cfg.AlertCooldown,
		TimeSource:   timeSource,
		FallbackFPS:  cfg.FallbackFPS,
		OutputName:   cfg.OutputName,
		ShowCooldown: cfg.ShowCooldown,
		Banner:       true,

		NotifyTimeout: cfg.NotifyTimeout,
	}, pipeline.Deps{
		Detector: detector,
		Open:     video.OpenCapture,
		Encoders: &video.FFmpegFactory{
			Path:   cfg.EncoderPath,
			Codec:  cfg.EncoderCodec,
			Preset: cfg.EncoderPreset,
			Logger: log,
		},
		Notifier: notifier,
		Evidence: evidenceRepo,
		Logger:   log,
	})
	if err != nil {
		detector.Close()
		notifier.Close()
		return nil, nil, nil, err
	}
	return p, detector, notifier, nil
}

// NewNotifier returns the notifiers enabled in configuration. An unreachable
// MQTT broker is logged and skipped.
func NewNotifier(cfg *config.Config, log *logger.Logger) notify.Multi {
	var notifiers notify.Multi

	if cfg.SMTPHost != "" && len(cfg.SMTPTo) > 0 {
		smtpNotifier := notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPTo)
		if cfg.NotifyTimeout > 0 {
			smtpNotifier.Timeout = cfg.NotifyTimeout
		}
		notifiers = append(notifiers, smtpNotifier)
		log.Info("📧 Email alerts enabled for %d recipient(s)", len(cfg.SMTPTo))
	}

	if cfg.MQTTBroker != "" {
		mqttNotifier, err := notify.NewMQTTNotifier(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			log.Warning("MQTT alerts disabled: %v", err)
		} else {
			notifiers = append(notifiers, mqttNotifier)
			log.Info("📡 MQTT alerts enabled on %s", cfg.MQTTTopic)
		}
	}

	return notifiers
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down.
func (a *App) Run() error {
	go a.hubService.Run()

	router := route.SetupRoutes(route.Dependencies{
		Config:       a.config,
		Logger:       a.logger,
		Manager:      a.manager,
		Hub:          a.hubService,
		RunRepo:      a.runRepo,
		EvidenceRepo: a.evidenceRepo,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 VisionGuard Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📁 Runs: %s\n", a.config.RunsDirectory)
	fmt.Printf("🤖 AI Model: %s\n", a.config.ModelPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = server.Shutdown(shutdownCtx)
		cancel()
	}

	return multierr.Append(err, a.Close())
}

// Close stops the workers and releases every resource.
func (a *App) Close() error {
	a.manager.Stop()
	a.hubService.Stop()

	return multierr.Combine(
		a.detector.Close(),
		a.notifier.Close(),
		a.db.Close(),
		a.logger.Close(),
	)
}
