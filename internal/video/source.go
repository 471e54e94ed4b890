// Package video adapts frame sources and the external encoder process.
package video

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"
)

// Source yields decoded frames in presentation order.
type Source interface {
	Width() int
	Height() int
	FPS() float64
	// Read decodes the next frame into dst and returns its timestamp in milliseconds.
	// It returns io.EOF when no further frame can be read.
	Read(dst *gocv.Mat) (float64, error)
	Close() error
}

// SourceOpener opens a Source for an input path.
type SourceOpener func(path string) (Source, error)

// CaptureSource reads frames from a video file with OpenCV.
type CaptureSource struct {
	capture *gocv.VideoCapture
	path    string
}

// OpenCapture opens a video file. It fails when the file cannot be decoded.
func OpenCapture(path string) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}
	return &CaptureSource{capture: capture, path: path}, nil
}

func (s *CaptureSource) Width() int {
	return int(s.capture.Get(gocv.VideoCaptureFrameWidth))
}

func (s *CaptureSource) Height() int {
	return int(s.capture.Get(gocv.VideoCaptureFrameHeight))
}

func (s *CaptureSource) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Read implements Source. A failed read is treated as end of stream.
func (s *CaptureSource) Read(dst *gocv.Mat) (float64, error) {
	if ok := s.capture.Read(dst); !ok || dst.Empty() {
		return 0, io.EOF
	}
	return s.capture.Get(gocv.VideoCapturePosMsec), nil
}

func (s *CaptureSource) Close() error {
	return s.capture.Close()
}
