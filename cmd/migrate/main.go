package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"visionguard/internal/evidence"
	"visionguard/internal/model"
	"visionguard/internal/pipeline"
	"visionguard/internal/repository/sqlite"
	"visionguard/internal/service/runner"
)

func main() {
	runsDir := flag.String("runs", filepath.Join("static", "alerts"), "Directory containing process_* run directories")
	dbPath := flag.String("db", filepath.Join("data", "visionguard.db"), "Database path")
	outputName := flag.String("output", "processed_video.mp4", "Annotated video file name inside each run")
	flag.Parse()

	fmt.Printf("Indexing runs from %s into database %s\n", *runsDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	runRepo := sqlite.NewRunRepository(db)
	evidenceRepo := sqlite.NewEvidenceRepository(db)

	entries, err := os.ReadDir(*runsDir)
	if err != nil {
		log.Fatalf("Failed to read runs directory: %v", err)
	}

	var runsAdded, evidenceAdded, skipped int
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), pipeline.RunDirPrefix) {
			continue
		}

		runDir := filepath.Join(*runsDir, entry.Name())
		runID := pipeline.RunIDFromDir(runDir)

		existing, err := runRepo.GetByID(runID)
		if err != nil {
			log.Printf("⚠️  Skipping run %s: %v", runID, err)
			skipped++
			continue
		}
		if existing == nil {
			run, err := recoverRun(runDir, runID, *outputName)
			if err != nil {
				log.Printf("⚠️  Skipping run %s: %v", runID, err)
				skipped++
				continue
			}
			if err := runRepo.Insert(run); err != nil {
				log.Printf("⚠️  Failed to insert run %s: %v", runID, err)
				skipped++
				continue
			}
			runsAdded++
		}

		names, err := evidence.List(runDir)
		if err != nil {
			log.Printf("⚠️  Failed to list evidence for %s: %v", runID, err)
			skipped++
			continue
		}

		for _, name := range names {
			exists, err := evidenceRepo.Exists(runID, name)
			if err != nil || exists {
				continue
			}

			ts, _ := evidence.ParseFilename(name)
			path := filepath.Join(runDir, name)
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("⚠️  Failed to get info for %s: %v", path, err)
				skipped++
				continue
			}

			if _, err := evidenceRepo.Insert(&model.Evidence{
				RunID:       runID,
				Filename:    name,
				FilePath:    path,
				TimestampMs: ts,
				FileSize:    info.Size(),
				CreatedAt:   info.ModTime(),
			}); err != nil {
				log.Printf("⚠️  Failed to insert %s: %v", path, err)
				skipped++
				continue
			}
			evidenceAdded++
		}

		if existing == nil {
			if err := finishRecovered(runRepo, evidenceRepo, runDir, runID, *outputName); err != nil {
				log.Printf("⚠️  Failed to finish run %s: %v", runID, err)
			}
		}
	}

	fmt.Printf("✅ Indexed %d new run(s) and %d evidence frame(s)\n", runsAdded, evidenceAdded)
	if skipped > 0 {
		fmt.Printf("⚠️  Skipped %d entries (invalid format or errors)\n", skipped)
	}

	total, err := runRepo.GetTotalCount(nil)
	if err == nil {
		fmt.Printf("\n📊 Database Statistics:\n")
		fmt.Printf("   Total runs: %d\n", total)
	}
}

func finishRecovered(runRepo *sqlite.RunRepository, evidenceRepo *sqlite.EvidenceRepository, runDir, runID, outputName string) error {
	run, err := recoverRun(runDir, runID, outputName)
	if err != nil {
		return err
	}
	if run.Alerts, err = evidenceRepo.CountByRunID(runID); err != nil {
		return err
	}
	return runRepo.Finish(run)
}

// recoverRun rebuilds a run record from what is left on disk. Runs without an
// output video are recorded as failed.
func recoverRun(runDir, runID, outputName string) (*model.Run, error) {
	info, err := os.Stat(runDir)
	if err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:         runID,
		InputName:  runner.InputName,
		InputPath:  filepath.Join(runDir, runner.InputName),
		RunDir:     runDir,
		OutputPath: filepath.Join(runDir, outputName),
		Status:     model.RunCompleted,
		CreatedAt:  info.ModTime(),
		FinishedAt: info.ModTime(),
	}

	if _, err := os.Stat(run.OutputPath); errors.Is(err, os.ErrNotExist) {
		run.Status = model.RunFailed
		run.Error = "output video missing"
	}
	return run, nil
}
