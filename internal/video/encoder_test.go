package video

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(args []string, value string) int {
	for i, arg := range args {
		if arg == value {
			return i
		}
	}
	return -1
}

func TestFFmpegFactory_Command(t *testing.T) {
	factory := &FFmpegFactory{Codec: "libx264", Preset: "veryfast"}
	spec := EncoderSpec{OutputPath: "/runs/out.mp4", Width: 64, Height: 48, FPS: 29.97}

	cmd := factory.Command(context.Background(), spec)
	args := cmd.Args[1:]
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-f rawvideo")
	assert.Contains(t, joined, "-pix_fmt bgr24")
	assert.Contains(t, joined, "-s 64x48")
	assert.Contains(t, joined, "-framerate 29.97")
	assert.Contains(t, joined, "-vcodec libx264")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
	assert.Contains(t, joined, "-preset veryfast")
	assert.Contains(t, args, "-y")

	input := indexOf(args, "-i")
	require.GreaterOrEqual(t, input, 0)
	assert.Equal(t, "pipe:", args[input+1])
	assert.Less(t, input, indexOf(args, "/runs/out.mp4"))
}

func TestFFmpegFactory_CustomPath(t *testing.T) {
	factory := &FFmpegFactory{Path: filepath.Join(t.TempDir(), "missing-ffmpeg")}

	cmd := factory.Command(context.Background(), EncoderSpec{OutputPath: "out.mp4", Width: 2, Height: 2, FPS: 1})
	assert.Error(t, cmd.Err)

	_, err := factory.NewEncoder(context.Background(), EncoderSpec{OutputPath: "out.mp4", Width: 2, Height: 2, FPS: 1})
	assert.Error(t, err)
}

func TestFFmpegFactory_RejectsEmptyFrames(t *testing.T) {
	_, err := (&FFmpegFactory{}).NewEncoder(context.Background(), EncoderSpec{OutputPath: "out.mp4", FPS: 30})
	assert.Error(t, err)
}

func TestFFmpegEncoder_EncodesFrames(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	spec := EncoderSpec{OutputPath: filepath.Join(t.TempDir(), "processed_video.mp4"), Width: 64, Height: 48, FPS: 10}
	enc, err := (&FFmpegFactory{Preset: "ultrafast"}).NewEncoder(context.Background(), spec)
	require.NoError(t, err)

	frame := make([]byte, spec.FrameSize())
	for i := 0; i < 10; i++ {
		require.NoError(t, enc.Write(frame))
	}
	assert.Error(t, enc.Write(frame[:10]), "short frame")

	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close(), "close is idempotent")

	info, err := os.Stat(spec.OutputPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestFFmpegEncoder_NonZeroExit(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	// A directory that does not exist makes ffmpeg fail when opening the output.
	spec := EncoderSpec{OutputPath: filepath.Join(t.TempDir(), "missing", "out.mp4"), Width: 16, Height: 16, FPS: 5}
	enc, err := (&FFmpegFactory{}).NewEncoder(context.Background(), spec)
	require.NoError(t, err)

	// Writes may or may not fail depending on how quickly ffmpeg exits.
	_ = enc.Write(make([]byte, spec.FrameSize()))
	assert.Error(t, enc.Close())
}
