package model

import "time"

// RunStatus is the lifecycle state of a processing run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Done reports whether the run reached a terminal state.
func (s RunStatus) Done() bool {
	return s == RunCompleted || s == RunFailed
}

// Run represents one pipeline execution over one uploaded video.
type Run struct {
	ID         string    `json:"id"`
	InputName  string    `json:"input_name"`
	InputPath  string    `json:"input_path"`
	RunDir     string    `json:"run_dir"`
	OutputPath string    `json:"output_path"`
	Status     RunStatus `json:"status"`
	Frames     int       `json:"frames"`
	Alerts     int       `json:"alerts"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
