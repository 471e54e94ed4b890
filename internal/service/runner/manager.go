package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"visionguard/internal/config"
	"visionguard/internal/detection"
	"visionguard/internal/dto"
	"visionguard/internal/evidence"
	"visionguard/internal/logger"
	"visionguard/internal/model"
	"visionguard/internal/pipeline"
	"visionguard/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	// InputName is the file name an uploaded video is stored under inside its run directory.
	InputName = "original_video.mp4"
	// progressEvery is how many frames pass between persisted progress updates.
	progressEvery = 30
)

// ErrQueueFull is returned by Submit when no worker slot is available.
var ErrQueueFull = errors.New("run queue is full")

// Processor executes one run.
type Processor interface {
	RunObserved(ctx context.Context, input, runDir string, obs pipeline.Observer) (pipeline.Result, error)
}

// Broadcaster publishes run events to viewers.
type Broadcaster interface {
	Broadcast(event dto.RunEvent)
}

// Manager runs queued videos on a fixed pool of workers.
type Manager struct {
	processor Processor
	runRepo   repository.RunRepository
	hub       Broadcaster
	logger    *logger.Logger

	runsDir    string
	outputName string
	labels     detection.ClassMap

	processingQueue chan *model.Run
	numWorkers      int

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager starts config.RunWorkers workers.
func NewManager(processor Processor, runRepo repository.RunRepository, hub Broadcaster, config *config.Config, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		processor:       processor,
		runRepo:         runRepo,
		hub:             hub,
		logger:          logger,
		runsDir:         config.RunsDirectory,
		outputName:      config.OutputName,
		numWorkers:      max(config.RunWorkers, 1),
		processingQueue: make(chan *model.Run, max(config.RunQueueSize, 1)),
		ctx:             ctx,
		cancel:          cancel,
	}
	if manager.outputName == "" {
		manager.outputName = "processed_video.mp4"
	}
	if labels, err := config.Labels(); err == nil {
		manager.labels = labels
	} else {
		manager.labels = detection.COCO()
	}

	for i := 0; i < manager.numWorkers; i++ {
		manager.wg.Add(1)
		go manager.processingWorker(i)
	}

	manager.logger.Info("🎬 Run manager started with %d worker(s)", manager.numWorkers)
	return manager
}

// NewRunID returns <yyyymmdd_hhmmss_ffffff>_<8 hex chars>, which sorts by creation time.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("%s_%06d_%s", now.Format("20060102_150405"), now.Nanosecond()/1000, uuid.NewString()[:8])
}

// RunDir returns the directory of a run.
func RunDir(runsDir, runID string) string {
	return filepath.Join(runsDir, pipeline.RunDirPrefix+runID)
}

// EvidenceURL is where the static file server exposes a run artifact.
func EvidenceURL(runID, filename string) string {
	return path.Join("/runs", pipeline.RunDirPrefix+runID, filename)
}

// NewRun allocates a run and its directory. The caller stores the input at run.InputPath.
func (m *Manager) NewRun(inputName string) (*model.Run, error) {
	id := NewRunID(time.Now())
	dir := RunDir(m.runsDir, id)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	return &model.Run{
		ID:         id,
		InputName:  inputName,
		InputPath:  filepath.Join(dir, InputName),
		RunDir:     dir,
		OutputPath: filepath.Join(dir, m.outputName),
		Status:     model.RunQueued,
		CreatedAt:  time.Now(),
	}, nil
}

// Submit records the run and queues it. A full queue marks the run failed.
// The run must not be modified by the caller after a successful Submit.
func (m *Manager) Submit(run *model.Run) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("run manager is stopped")
	}

	if err := m.runRepo.Insert(run); err != nil {
		return err
	}

	// Published before enqueueing: once queued, a worker owns run.
	m.publishStatus(run)

	select {
	case m.processingQueue <- run:
		m.logger.Info("📹 Run %s queued (%s)", run.ID, run.InputName)
		return nil
	default:
		run.Status = model.RunFailed
		run.Error = ErrQueueFull.Error()
		if err := m.runRepo.Finish(run); err != nil {
			m.logger.Error("Error updating run %s: %v", run.ID, err)
		}
		m.logger.Warning("⚠️  Run queue full - rejecting %s", run.ID)
		return ErrQueueFull
	}
}

// Stop stops accepting runs, cancels active ones and waits for the workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.processingQueue)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("🛑 All run workers stopped")
}

// Drain stops accepting runs and waits for every queued run to finish.
func (m *Manager) Drain() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.processingQueue)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.cancel()
}

func (m *Manager) processingWorker(workerID int) {
	defer m.wg.Done()

	m.logger.Info("🔧 Run worker %d started", workerID)

	for run := range m.processingQueue {
		if m.ctx.Err() != nil {
			m.finish(run, pipeline.Result{}, m.ctx.Err())
			continue
		}
		m.process(run)
	}

	m.logger.Info("🔧 Run worker %d stopped", workerID)
}

func (m *Manager) process(run *model.Run) {
	run.Status = model.RunProcessing
	if err := m.runRepo.UpdateStatus(run.ID, run.Status, ""); err != nil {
		m.logger.Error("Error updating run %s: %v", run.ID, err)
	}
	m.publishStatus(run)

	obs := &runObserver{manager: m, run: run}
	result, err := m.processor.RunObserved(m.ctx, run.InputPath, run.RunDir, obs)
	m.finish(run, result, err)
}

func (m *Manager) finish(run *model.Run, result pipeline.Result, err error) {
	run.Frames = result.Frames
	run.Alerts = result.Alerts
	run.Status = model.RunCompleted
	run.Error = ""
	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()
		m.logger.Error("Run %s failed: %v", run.ID, err)
	} else {
		m.logger.Info("✅ Run %s completed: %d frames, %d alerts, %d evidence", run.ID, result.Frames, result.Alerts, len(result.Evidence))
	}

	if err := m.runRepo.Finish(run); err != nil {
		m.logger.Error("Error updating run %s: %v", run.ID, err)
	}
	m.publishStatus(run)
}

func (m *Manager) publishStatus(run *model.Run) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast(dto.RunEvent{
		Type:   "status",
		RunID:  run.ID,
		Status: run.Status,
		Frames: run.Frames,
		Alerts: run.Alerts,
		Error:  run.Error,
	})
}

// runObserver keeps the stored run record current while the pipeline runs.
type runObserver struct {
	manager *Manager
	run     *model.Run
}

func (o *runObserver) OnStart(rc pipeline.RunContext) {
	o.manager.logger.Info("Run %s: %dx%d @ %.2f fps", rc.RunID, rc.Width, rc.Height, rc.FrameRate)
}

func (o *runObserver) OnFrame(frames, alerts int) {
	o.run.Frames, o.run.Alerts = frames, alerts
	if frames%progressEvery != 0 {
		return
	}
	if err := o.manager.runRepo.UpdateProgress(o.run.ID, frames, alerts); err != nil {
		o.manager.logger.Error("Error updating run %s: %v", o.run.ID, err)
	}
	o.manager.publishStatus(o.run)
}

func (o *runObserver) OnAlert(record evidence.Record) {
	if o.manager.hub == nil {
		return
	}

	names := lo.Uniq(lo.Map(record.Objects, func(obj detection.Detection, _ int) string {
		return o.manager.labels.Name(obj.ClassID)
	}))
	info := EvidenceInfo(o.run.ID, filepath.Base(record.Path), record.TimestampMs, names)

	o.manager.hub.Broadcast(dto.RunEvent{
		Type:     "alert",
		RunID:    o.run.ID,
		Status:   o.run.Status,
		Evidence: &info,
	})
}

// EvidenceInfo describes an evidence frame for clients.
func EvidenceInfo(runID, filename string, tsMs int64, objects []string) dto.EvidenceInfo {
	return dto.EvidenceInfo{
		Name:        filename,
		RunID:       runID,
		URL:         EvidenceURL(runID, filename),
		TimestampMs: tsMs,
		Position:    time.UnixMilli(tsMs).UTC(),
		Objects:     objects,
	}
}
