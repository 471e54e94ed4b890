// Package pipeline drives one run: decode, detect, classify, gate alerts,
// persist evidence, annotate and stream frames into the encoder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"visionguard/internal/annotate"
	"visionguard/internal/classifier"
	"visionguard/internal/cooldown"
	"visionguard/internal/detection"
	"visionguard/internal/evidence"
	"visionguard/internal/logger"
	"visionguard/internal/notify"
	"visionguard/internal/repository"
	"visionguard/internal/video"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// RunDirPrefix prefixes every run directory name.
const RunDirPrefix = "process_"

const notifyGrace = time.Second

// Options tune a Pipeline.
type Options struct {
	Policy       classifier.Policy
	Labels       detection.ClassMap
	Cooldown     time.Duration
	TimeSource   cooldown.TimeSource
	FallbackFPS  float64
	OutputName   string
	ShowCooldown bool
	Banner       bool
	// NotifyTimeout bounds each notification and the wait for pending ones at teardown.
	NotifyTimeout time.Duration
}

// Deps are the collaborators of a Pipeline. Notifier, Evidence and Clock are optional.
type Deps struct {
	Detector detection.Detector
	Open     video.SourceOpener
	Encoders video.EncoderFactory
	Notifier notify.Notifier
	Evidence repository.EvidenceRepository
	Clock    clock.Clock
	Logger   *logger.Logger
}

// RunContext is fixed when the source is opened.
type RunContext struct {
	RunID       string
	Width       int
	Height      int
	FrameRate   float64
	OutputPath  string
	EvidenceDir string
}

// Result summarises a run. It is returned even when the run fails.
type Result struct {
	RunID             string   `json:"run_id"`
	Frames            int      `json:"frames"`
	Alerts            int      `json:"alerts"`
	Evidence          []string `json:"evidence"`
	OutputPath        string   `json:"output_path"`
	DetectionFailures int      `json:"detection_failures"`
	EvidenceFailures  int      `json:"evidence_failures"`
}

// Observer receives run events. Calls happen on the pipeline goroutine.
type Observer interface {
	OnStart(rc RunContext)
	OnFrame(frames, alerts int)
	OnAlert(record evidence.Record)
}

// Pipeline processes videos. It holds no per-run state and may be shared.
type Pipeline struct {
	opts      Options
	deps      Deps
	annotator *annotate.Annotator
}

// New validates opts and deps.
func New(opts Options, deps Deps) (*Pipeline, error) {
	if deps.Detector == nil || deps.Open == nil || deps.Encoders == nil || deps.Logger == nil {
		return nil, fmt.Errorf("pipeline requires a detector, source opener, encoder factory and logger")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown must not be negative")
	}
	if opts.TimeSource == "" {
		opts.TimeSource = cooldown.MediaTime
	}
	if opts.FallbackFPS <= 0 {
		opts.FallbackFPS = 30
	}
	if opts.OutputName == "" {
		opts.OutputName = "processed_video.mp4"
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	if opts.Labels == nil {
		opts.Labels = detection.COCO().Merge(opts.Policy.ObjectClasses)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &Pipeline{
		opts:      opts,
		deps:      deps,
		annotator: annotate.New(opts.Labels, opts.Policy.BaseThreshold),
	}, nil
}

// RunIDFromDir recovers the run id from a run directory path.
func RunIDFromDir(runDir string) string {
	return strings.TrimPrefix(filepath.Base(runDir), RunDirPrefix)
}

// Run processes input and writes the output video and evidence into runDir.
func (p *Pipeline) Run(ctx context.Context, input, runDir string) (Result, error) {
	return p.RunObserved(ctx, input, runDir, nil)
}

// RunObserved is Run with progress reported to obs, which may be nil.
func (p *Pipeline) RunObserved(ctx context.Context, input, runDir string, obs Observer) (res Result, err error) {
	log := p.deps.Logger
	res.RunID = RunIDFromDir(runDir)

	// Registered first so it runs after the encoder and source are released.
	var notifications sync.WaitGroup
	notifyCtx, cancelNotify := context.WithCancel(ctx)
	defer p.awaitNotifications(&notifications, cancelNotify, res.RunID)

	src, err := p.deps.Open(input)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to release source: %w", cerr))
		}
	}()

	rc, err := p.runContext(src, res.RunID, runDir)
	if err != nil {
		return res, err
	}
	res.OutputPath = rc.OutputPath

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return res, fmt.Errorf("%w: failed to create run directory: %v", ErrEncoderLaunch, err)
	}

	enc, err := p.deps.Encoders.NewEncoder(ctx, video.EncoderSpec{
		OutputPath: rc.OutputPath,
		Width:      rc.Width,
		Height:     rc.Height,
		FPS:        rc.FrameRate,
	})
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrEncoderLaunch, err)
	}

	defer func() {
		if cerr := enc.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %v", ErrEncoderExit, cerr))
		}
	}()

	log.Info("Run %s started: %dx%d @ %.2f fps -> %s", rc.RunID, rc.Width, rc.Height, rc.FrameRate, rc.OutputPath)
	if obs != nil {
		obs.OnStart(rc)
	}

	controller := cooldown.New(p.opts.Cooldown)
	timeline := cooldown.NewTimeline(p.opts.TimeSource, p.deps.Clock)
	writer := evidence.NewWriter(rc.EvidenceDir, rc.RunID, p.opts.Labels, p.deps.Evidence, log)

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}

		tsMs, rerr := src.Read(&frame)
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				log.Warning("Run %s: stopping at unreadable frame %d: %v", rc.RunID, res.Frames+1, rerr)
			}
			break
		}
		res.Frames++
		ts := int64(math.Round(tsMs))

		dets, derr := p.deps.Detector.Detect(frame)
		if derr != nil {
			res.DetectionFailures++
			log.Warning("Run %s frame %d: %v: %v", rc.RunID, res.Frames, ErrDetection, derr)
			dets = nil
		}

		classified := classifier.Classify(dets, p.opts.Policy)
		now := timeline.Now(tsMs)

		if classified.HasAlert() && controller.ShouldAlert(now) {
			record, perr := writer.Persist(ts, frame, classified.AlertObjects)
			if perr != nil {
				res.EvidenceFailures++
				log.Error("Run %s frame %d: %v: %v", rc.RunID, res.Frames, ErrEvidencePersist, perr)
			} else {
				res.Evidence = append(res.Evidence, record.Path)
				if obs != nil {
					obs.OnAlert(record)
				}
			}
			controller.RecordAlert(now)
			res.Alerts++
			p.notify(notifyCtx, &notifications, rc.RunID, ts, record, classified.AlertObjects)
		}

		data, aerr := p.render(frame, classified, controller.Remaining(now), rc)
		if aerr != nil {
			return res, fmt.Errorf("%w: frame %d: %v", ErrRender, res.Frames, aerr)
		}
		if werr := enc.Write(data); werr != nil {
			log.Error("Run %s: encoder rejected frame %d: %v", rc.RunID, res.Frames, werr)
			return res, fmt.Errorf("%w: frame %d: %v", ErrEncoderWrite, res.Frames, werr)
		}

		if obs != nil {
			obs.OnFrame(res.Frames, res.Alerts)
		}
	}

	log.Info("Run %s finished: %d frames, %d alerts", rc.RunID, res.Frames, res.Alerts)
	return res, nil
}

func (p *Pipeline) runContext(src video.Source, runID, runDir string) (RunContext, error) {
	width, height := src.Width(), src.Height()
	if width <= 0 || height <= 0 {
		return RunContext{}, fmt.Errorf("%w: invalid frame size %dx%d", ErrSourceOpen, width, height)
	}

	fps := src.FPS()
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		p.deps.Logger.Warning("Run %s: source reports %v fps, using %.2f", runID, fps, p.opts.FallbackFPS)
		fps = p.opts.FallbackFPS
	}

	return RunContext{
		RunID:       runID,
		Width:       width,
		Height:      height,
		FrameRate:   fps,
		OutputPath:  filepath.Join(runDir, p.opts.OutputName),
		EvidenceDir: runDir,
	}, nil
}

// render annotates a copy of frame and returns its bgr24 bytes at the run's frame size.
func (p *Pipeline) render(frame gocv.Mat, classified classifier.ClassifiedFrame, remaining time.Duration, rc RunContext) ([]byte, error) {
	out, err := p.annotator.Annotate(frame, classified, annotate.Overlay{
		ShowCooldown:      p.opts.ShowCooldown,
		CooldownRemaining: remaining,
		Banner:            p.opts.Banner,
	})
	if err != nil {
		return nil, err
	}
	defer out.Close()

	if out.Cols() != rc.Width || out.Rows() != rc.Height {
		resized := gocv.NewMat()
		defer resized.Close()
		if err := gocv.Resize(out, &resized, image.Pt(rc.Width, rc.Height), 0, 0, gocv.InterpolationLinear); err != nil {
			return nil, fmt.Errorf("failed to resize frame to %dx%d: %w", rc.Width, rc.Height, err)
		}
		return resized.ToBytes(), nil
	}
	return out.ToBytes(), nil
}

func (p *Pipeline) notify(ctx context.Context, wg *sync.WaitGroup, runID string, ts int64, record evidence.Record, objects []detection.Detection) {
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, p.opts.Labels.Name(obj.ClassID))
	}

	alert := notify.Alert{
		RunID:        runID,
		TimestampMs:  ts,
		Objects:      names,
		EvidencePath: record.Path,
		Time:         p.deps.Clock.Now(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		nctx, cancel := context.WithTimeout(ctx, p.opts.NotifyTimeout)
		defer cancel()
		if err := p.deps.Notifier.Notify(nctx, alert); err != nil {
			p.deps.Logger.Warning("Run %s: alert notification failed: %v", runID, err)
		}
	}()
}

// awaitNotifications waits up to NotifyTimeout for pending notifications, then
// cancels them. A notifier that ignores its context is abandoned.
func (p *Pipeline) awaitNotifications(wg *sync.WaitGroup, cancel context.CancelFunc, runID string) {
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.opts.NotifyTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	// Cancelled notifiers get a short grace period to return.
	cancel()
	select {
	case <-done:
	case <-time.After(notifyGrace):
		p.deps.Logger.Warning("Run %s: abandoning notifications still pending after %s", runID, p.opts.NotifyTimeout)
	}
}
