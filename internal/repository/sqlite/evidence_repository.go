package sqlite

import (
	"database/sql"
	"fmt"

	"visionguard/internal/model"
)

// EvidenceRepository implements repository.EvidenceRepository for SQLite.
type EvidenceRepository struct {
	db *DB
}

// NewEvidenceRepository creates a new SQLite evidence repository.
func NewEvidenceRepository(db *DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// Insert stores an evidence record together with its objects in one transaction.
func (r *EvidenceRepository) Insert(ev *model.Evidence) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO evidence (run_id, filename, filepath, timestamp_ms, filesize)
		VALUES (?, ?, ?, ?, ?)
	`, ev.RunID, ev.Filename, ev.FilePath, ev.TimestampMs, ev.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert evidence: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get evidence id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO evidence_objects (evidence_id, class_id, object_name, confidence, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range ev.Objects {
		obj := &ev.Objects[i]
		res, err := stmt.Exec(id, obj.ClassID, obj.ObjectName, obj.Confidence, obj.X1, obj.Y1, obj.X2, obj.Y2)
		if err != nil {
			return 0, fmt.Errorf("failed to insert evidence object: %w", err)
		}
		obj.EvidenceID = id
		obj.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	ev.ID = id
	return id, nil
}

// GetByRunID retrieves all evidence for a run in timestamp order, objects included.
func (r *EvidenceRepository) GetByRunID(runID string) ([]model.Evidence, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, run_id, filename, filepath, timestamp_ms, filesize, created_at
		FROM evidence WHERE run_id = ?
		ORDER BY timestamp_ms ASC, filename ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}

	var items []model.Evidence
	for rows.Next() {
		var ev model.Evidence
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Filename, &ev.FilePath, &ev.TimestampMs, &ev.FileSize, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		items = append(items, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The single connection must be free before the nested object queries.
	for i := range items {
		objects, err := r.objectsByEvidenceID(items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Objects = objects
	}
	return items, nil
}

// GetByFilename retrieves one evidence record. It returns nil when none exists.
func (r *EvidenceRepository) GetByFilename(runID, filename string) (*model.Evidence, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var ev model.Evidence
	err := r.db.Conn().QueryRow(`
		SELECT id, run_id, filename, filepath, timestamp_ms, filesize, created_at
		FROM evidence WHERE run_id = ? AND filename = ?
	`, runID, filename).Scan(&ev.ID, &ev.RunID, &ev.Filename, &ev.FilePath, &ev.TimestampMs, &ev.FileSize, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence: %w", err)
	}

	ev.Objects, err = r.objectsByEvidenceID(ev.ID)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Exists checks if an evidence record with the given filename exists for a run.
func (r *EvidenceRepository) Exists(runID, filename string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM evidence WHERE run_id = ? AND filename = ?`, runID, filename).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check evidence existence: %w", err)
	}
	return count > 0, nil
}

// CountByRunID returns the number of evidence frames stored for a run.
func (r *EvidenceRepository) CountByRunID(runID string) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM evidence WHERE run_id = ?`, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count evidence: %w", err)
	}
	return count, nil
}

// GetObjectNamesByEvidenceID retrieves the distinct object names of an evidence frame.
func (r *EvidenceRepository) GetObjectNamesByEvidenceID(evidenceID int64) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT DISTINCT object_name FROM evidence_objects
		WHERE evidence_id = ? ORDER BY object_name
	`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query object names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan object name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteByRunID removes all evidence records of a run.
func (r *EvidenceRepository) DeleteByRunID(runID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM evidence WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	return nil
}

// objectsByEvidenceID expects the caller to hold the read lock.
func (r *EvidenceRepository) objectsByEvidenceID(evidenceID int64) ([]model.EvidenceObject, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, evidence_id, class_id, object_name, confidence, x1, y1, x2, y2
		FROM evidence_objects WHERE evidence_id = ? ORDER BY id
	`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence objects: %w", err)
	}
	defer rows.Close()

	var objects []model.EvidenceObject
	for rows.Next() {
		var obj model.EvidenceObject
		if err := rows.Scan(&obj.ID, &obj.EvidenceID, &obj.ClassID, &obj.ObjectName, &obj.Confidence, &obj.X1, &obj.Y1, &obj.X2, &obj.Y2); err != nil {
			return nil, fmt.Errorf("failed to scan evidence object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}
