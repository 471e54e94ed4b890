package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"visionguard/internal/logger"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/multierr"
)

// stderrTail is how many encoder stderr lines are kept for error reports.
const stderrTail = 5

// Encoder consumes raw BGR frames of a fixed size.
type Encoder interface {
	Write(frame []byte) error
	// Close signals end of input and waits for the encoder to finish.
	Close() error
}

// EncoderSpec describes the stream handed to an encoder.
type EncoderSpec struct {
	OutputPath string
	Width      int
	Height     int
	FPS        float64
}

// FrameSize returns the byte length of one bgr24 frame.
func (s EncoderSpec) FrameSize() int {
	return s.Width * s.Height * 3
}

// EncoderFactory launches encoders.
type EncoderFactory interface {
	NewEncoder(ctx context.Context, spec EncoderSpec) (Encoder, error)
}

// FFmpegFactory launches ffmpeg processes that read raw frames on stdin.
type FFmpegFactory struct {
	Path   string // ffmpeg binary, looked up in PATH when relative
	Codec  string
	Preset string
	Logger *logger.Logger
}

// Command builds the ffmpeg invocation for spec without starting it.
func (f *FFmpegFactory) Command(ctx context.Context, spec EncoderSpec) *exec.Cmd {
	stream := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "bgr24",
		"s":         fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"framerate": strconv.FormatFloat(spec.FPS, 'f', -1, 64),
	})

	outArgs := ffmpeg.KwArgs{
		"vcodec":   orDefault(f.Codec, "libx264"),
		"pix_fmt":  "yuv420p",
		"loglevel": "error",
	}
	if f.Preset != "" {
		outArgs["preset"] = f.Preset
	}

	stream = stream.Output(spec.OutputPath, outArgs)
	stream.Context = ctx
	cmd := stream.OverWriteOutput().Compile()

	if f.Path != "" && f.Path != "ffmpeg" {
		cmd.Path, cmd.Err = exec.LookPath(f.Path)
		cmd.Args[0] = f.Path
	}
	return cmd
}

// NewEncoder starts ffmpeg. The process is killed if ctx is cancelled.
func (f *FFmpegFactory) NewEncoder(ctx context.Context, spec EncoderSpec) (Encoder, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", spec.Width, spec.Height)
	}

	cmd := f.Command(ctx, spec)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get ffmpeg stdin: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get ffmpeg stderr: %w", err)
	}

	if f.Logger != nil {
		f.Logger.Info("Starting encoder: %s", strings.Join(cmd.Args, " "))
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start ffmpeg: %w", err)
	}

	enc := &FFmpegEncoder{
		cmd:        cmd,
		stdin:      stdin,
		frameSize:  spec.FrameSize(),
		logger:     f.Logger,
		stderrDone: make(chan struct{}),
	}
	go enc.logStderr(stderr)
	return enc, nil
}

// FFmpegEncoder writes frames to a running ffmpeg process.
type FFmpegEncoder struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	frameSize int
	logger    *logger.Logger

	stderrDone chan struct{}
	mu         sync.Mutex
	tail       []string

	closeOnce sync.Once
	closeErr  error
}

// Write blocks until ffmpeg has accepted the whole frame.
func (e *FFmpegEncoder) Write(frame []byte) error {
	if len(frame) != e.frameSize {
		return fmt.Errorf("frame is %d bytes, encoder expects %d", len(frame), e.frameSize)
	}
	if _, err := e.stdin.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close closes stdin and reaps the process. A non-zero exit is reported with
// the last lines ffmpeg wrote to stderr.
func (e *FFmpegEncoder) Close() error {
	e.closeOnce.Do(func() {
		var err error
		if cerr := e.stdin.Close(); cerr != nil && !errors.Is(cerr, io.ErrClosedPipe) {
			err = multierr.Append(err, fmt.Errorf("failed to close ffmpeg stdin: %w", cerr))
		}

		// Wait closes the stderr pipe, so drain it first.
		<-e.stderrDone
		if werr := e.cmd.Wait(); werr != nil {
			err = multierr.Append(err, fmt.Errorf("ffmpeg exited: %w%s", werr, e.stderrSummary()))
		}
		e.closeErr = err
	})
	return e.closeErr
}

func (e *FFmpegEncoder) logStderr(stderr io.Reader) {
	defer close(e.stderrDone)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		e.mu.Lock()
		e.tail = append(e.tail, line)
		if len(e.tail) > stderrTail {
			e.tail = e.tail[1:]
		}
		e.mu.Unlock()

		if e.logger != nil {
			e.logger.Warning("ffmpeg: %s", line)
		}
	}
}

func (e *FFmpegEncoder) stderrSummary() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tail) == 0 {
		return ""
	}
	return ": " + strings.Join(e.tail, "; ")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
