package dto

import "visionguard/internal/model"

// RunsData is the paginated run listing returned by /api/runs.
type RunsData struct {
	Runs        []model.Run `json:"runs"`
	Length      int         `json:"length"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Limit       int         `json:"limit"`
}

// EvidenceData lists the evidence of one run.
type EvidenceData struct {
	RunID    string         `json:"runId"`
	VideoURL string         `json:"videoUrl,omitempty"`
	Evidence []EvidenceInfo `json:"evidence"`
}
