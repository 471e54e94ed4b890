// Package evidence persists the raw frames that triggered an alert.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"visionguard/internal/detection"
	"visionguard/internal/logger"
	"visionguard/internal/model"
	"visionguard/internal/repository"

	"gocv.io/x/gocv"
)

const (
	filePrefix = "alert_"
	fileExt    = ".jpg"
)

// Record describes one persisted evidence frame.
type Record struct {
	TimestampMs int64                 `json:"timestamp_ms"`
	Path        string                `json:"path"`
	Objects     []detection.Detection `json:"objects"`
}

// Filename returns the evidence file name for a media timestamp. The timestamp is
// zero-padded to ten digits so lexicographic order matches chronological order.
func Filename(tsMs int64) string {
	if tsMs < 0 {
		tsMs = 0
	}
	return fmt.Sprintf("%s%010d%s", filePrefix, tsMs, fileExt)
}

// ParseFilename extracts the timestamp from a name produced by Filename.
func ParseFilename(name string) (int64, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileExt) {
		return 0, fmt.Errorf("not an evidence file: %s", name)
	}

	digits := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileExt)
	if len(digits) < 10 {
		return 0, fmt.Errorf("invalid evidence timestamp: %s", name)
	}
	ts, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || ts < 0 {
		return 0, fmt.Errorf("invalid evidence timestamp: %s", name)
	}
	return ts, nil
}

// List returns the evidence file names in dir, in chronological order.
// A missing directory yields an empty list.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := ParseFilename(entry.Name()); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Writer stores evidence frames of one run and optionally indexes them.
type Writer struct {
	dir    string
	runID  string
	labels detection.ClassMap
	repo   repository.EvidenceRepository
	logger *logger.Logger
}

// NewWriter creates a Writer for dir. repo may be nil when no index is kept.
func NewWriter(dir, runID string, labels detection.ClassMap, repo repository.EvidenceRepository, logger *logger.Logger) *Writer {
	return &Writer{
		dir:    dir,
		runID:  runID,
		labels: labels,
		repo:   repo,
		logger: logger,
	}
}

// Dir returns the evidence directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Persist JPEG-encodes the unannotated frame and stores it under its timestamp.
func (w *Writer) Persist(tsMs int64, raw gocv.Mat, objects []detection.Detection) (Record, error) {
	if raw.Empty() {
		return Record{}, fmt.Errorf("failed to encode evidence: empty frame")
	}

	buf, err := gocv.IMEncode(".jpg", raw)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode evidence: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return w.Write(tsMs, data, objects)
}

// Write stores already encoded JPEG bytes. Index failures are logged, not returned.
func (w *Writer) Write(tsMs int64, jpeg []byte, objects []detection.Detection) (Record, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return Record{}, fmt.Errorf("failed to create evidence directory: %w", err)
	}

	filename := Filename(tsMs)
	fullpath := filepath.Join(w.dir, filename)

	if err := os.WriteFile(fullpath, jpeg, 0644); err != nil {
		return Record{}, fmt.Errorf("failed to write evidence %s: %w", filename, err)
	}

	record := Record{TimestampMs: max(tsMs, 0), Path: fullpath, Objects: objects}
	w.index(record, filename, int64(len(jpeg)))
	return record, nil
}

func (w *Writer) index(record Record, filename string, size int64) {
	if w.repo == nil {
		return
	}

	ev := &model.Evidence{
		RunID:       w.runID,
		Filename:    filename,
		FilePath:    record.Path,
		TimestampMs: record.TimestampMs,
		FileSize:    size,
		Objects:     ToModelObjects(w.labels, record.Objects),
	}

	if _, err := w.repo.Insert(ev); err != nil && w.logger != nil {
		w.logger.Error("Error indexing evidence %s: %v", filename, err)
	}
}

// ToModelObjects converts detections to their stored form.
func ToModelObjects(labels detection.ClassMap, objects []detection.Detection) []model.EvidenceObject {
	out := make([]model.EvidenceObject, 0, len(objects))
	for _, obj := range objects {
		out = append(out, model.EvidenceObject{
			ClassID:    obj.ClassID,
			ObjectName: labels.Name(obj.ClassID),
			Confidence: obj.Confidence,
			X1:         obj.Box.X1,
			Y1:         obj.Box.Y1,
			X2:         obj.Box.X2,
			Y2:         obj.Box.Y2,
		})
	}
	return out
}
