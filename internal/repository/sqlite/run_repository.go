package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"visionguard/internal/dto"
	"visionguard/internal/model"
)

// RunRepository implements repository.RunRepository for SQLite.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, input_name, input_path, run_dir, output_path, status, frames, alerts, error, created_at, finished_at`

// Insert adds a new run record to the database.
func (r *RunRepository) Insert(run *model.Run) error {
	r.db.Lock()
	defer r.db.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := r.db.Conn().Exec(`
		INSERT INTO runs (id, input_name, input_path, run_dir, output_path, status, frames, alerts, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.InputName, run.InputPath, run.RunDir, run.OutputPath, run.Status, run.Frames, run.Alerts, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and error message of a run.
func (r *RunRepository) UpdateStatus(id string, status model.RunStatus, errMsg string) error {
	return r.exec(`UPDATE runs SET status = ?, error = ? WHERE id = ?`, status, errMsg, id)
}

// UpdateProgress records the frame and alert counters of a running run.
func (r *RunRepository) UpdateProgress(id string, frames, alerts int) error {
	return r.exec(`UPDATE runs SET frames = ?, alerts = ? WHERE id = ?`, frames, alerts, id)
}

// Finish stores the terminal state of a run.
func (r *RunRepository) Finish(run *model.Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	return r.exec(`
		UPDATE runs SET status = ?, frames = ?, alerts = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Frames, run.Alerts, run.Error, run.FinishedAt, run.ID)
}

func (r *RunRepository) exec(query string, args ...interface{}) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update run: %w", sql.ErrNoRows)
	}
	return nil
}

// GetByID retrieves a run by its ID. It returns nil when the run does not exist.
func (r *RunRepository) GetByID(id string) (*model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetAll retrieves runs based on filter criteria, newest first.
func (r *RunRepository) GetAll(filter *dto.RunFilters) ([]model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildRunFilter(filter)
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1` + where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetTotalCount returns the number of runs matching the filter, ignoring pagination.
func (r *RunRepository) GetTotalCount(filter *dto.RunFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildRunFilter(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM runs WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Delete removes a run and, through cascading, its evidence records.
func (r *RunRepository) Delete(id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

func buildRunFilter(filter *dto.RunFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	query := ""
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.CreatedFrom.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.CreatedTo)
	}
	return query, args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*model.Run, error) {
	var run model.Run
	var finished sql.NullTime
	err := s.Scan(&run.ID, &run.InputName, &run.InputPath, &run.RunDir, &run.OutputPath,
		&run.Status, &run.Frames, &run.Alerts, &run.Error, &run.CreatedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}
