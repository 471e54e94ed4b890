// RunFilters describe user-provided filters to narrow the run list.
package dto

import (
	"time"

	"visionguard/internal/model"
)

type RunFilters struct {
	Status      model.RunStatus
	CreatedFrom time.Time
	CreatedTo   time.Time
	Limit       int
	Offset      int
}
