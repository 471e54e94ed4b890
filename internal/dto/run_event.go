package dto

import "visionguard/internal/model"

// RunEvent is pushed to websocket viewers when a run changes state or raises an alert.
type RunEvent struct {
	Type     string          `json:"type"` // "status" or "alert"
	RunID    string          `json:"runId"`
	Status   model.RunStatus `json:"status,omitempty"`
	Frames   int             `json:"frames,omitempty"`
	Alerts   int             `json:"alerts,omitempty"`
	Error    string          `json:"error,omitempty"`
	Evidence *EvidenceInfo   `json:"evidence,omitempty"`
}
