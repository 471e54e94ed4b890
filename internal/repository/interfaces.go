package repository

import (
	"visionguard/internal/dto"
	"visionguard/internal/model"
)

// RunRepository defines the interface for run data operations.
type RunRepository interface {
	// Create operations
	Insert(run *model.Run) error

	// Update operations
	UpdateStatus(id string, status model.RunStatus, errMsg string) error
	UpdateProgress(id string, frames, alerts int) error
	Finish(run *model.Run) error

	// Read operations
	GetByID(id string) (*model.Run, error)
	GetAll(filter *dto.RunFilters) ([]model.Run, error)
	GetTotalCount(filter *dto.RunFilters) (int, error)

	// Delete operations
	Delete(id string) error
}

// EvidenceRepository defines the interface for evidence data operations.
type EvidenceRepository interface {
	// Create operations
	Insert(ev *model.Evidence) (int64, error)

	// Read operations
	GetByRunID(runID string) ([]model.Evidence, error)
	GetByFilename(runID, filename string) (*model.Evidence, error)
	Exists(runID, filename string) (bool, error)
	GetObjectNamesByEvidenceID(evidenceID int64) ([]string, error)
	CountByRunID(runID string) (int, error)

	// Delete operations
	DeleteByRunID(runID string) error
}
