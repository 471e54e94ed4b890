package model

import "time"

// Evidence represents a persisted alert frame.
type Evidence struct {
	ID          int64            `json:"id"`
	RunID       string           `json:"run_id"`
	Filename    string           `json:"filename"`
	FilePath    string           `json:"filepath"`
	TimestampMs int64            `json:"timestamp_ms"`
	FileSize    int64            `json:"filesize"`
	CreatedAt   time.Time        `json:"created_at"`
	Objects     []EvidenceObject `json:"objects,omitempty"`
}

// EvidenceObject is an alert-worthy detection captured in an evidence frame.
type EvidenceObject struct {
	ID         int64   `json:"id"`
	EvidenceID int64   `json:"evidence_id"`
	ClassID    int     `json:"class_id"`
	ObjectName string  `json:"object_name"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}
