// Package main is the visionguard command line tool.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"visionguard/internal/app"
	"visionguard/internal/config"
	"visionguard/internal/logger"
	"visionguard/internal/pipeline"
	"visionguard/internal/service/runner"
)

const (
	flagInput    = "input"
	flagAlertDir = "alert_dir"
	flagPolicy   = "policy"
	flagCooldown = "cooldown"
)

func main() {
	a := &cli.App{
		Name:  "visionguard",
		Usage: "detect sharp objects near people in recorded video",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "process one video and write the annotated output and alert frames",
				UsageText: "visionguard run --input <video> [--alert_dir <dir>]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagInput,
						Usage:    "path to the input video",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagAlertDir,
						Usage: "directory for the output video and evidence frames (default: a new run directory under RUNS_DIR)",
					},
					&cli.StringFlag{
						Name:  flagPolicy,
						Usage: "relevance policy: zone, iou or threshold (overrides POLICY)",
					},
					&cli.DurationFlag{
						Name:  flagCooldown,
						Usage: "minimum time between alerts (overrides ALERT_COOLDOWN)",
					},
				},
				Action: RunAction,
			},
			{
				Name:  "serve",
				Usage: "start the web server",
				Action: func(c *cli.Context) error {
					application, err := app.NewApp(config.Load())
					if err != nil {
						return err
					}
					return application.Run()
				},
			},
		},
	}

	if err := a.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// RunAction runs the pipeline once and prints the result as JSON.
func RunAction(c *cli.Context) (err error) {
	cfg := config.Load()
	if policy := c.String(flagPolicy); policy != "" {
		cfg.Policy = policy
	}
	if c.IsSet(flagCooldown) {
		cfg.AlertCooldown = c.Duration(flagCooldown)
	}

	runDir := c.String(flagAlertDir)
	if runDir == "" {
		runDir = runner.RunDir(cfg.RunsDirectory, runner.NewRunID(time.Now()))
	}
	runDir, err = filepath.Abs(runDir)
	if err != nil {
		return err
	}

	appLogger := logger.NewLogger(cfg)
	defer func() {
		err = multierr.Append(err, appLogger.Close())
	}()

	p, detector, notifier, err := app.NewPipeline(cfg, appLogger, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, detector.Close(), notifier.Close())
	}()

	result, err := p.Run(c.Context, c.String(flagInput), runDir)
	if err != nil {
		return fmt.Errorf("run %s failed: %w", pipeline.RunIDFromDir(runDir), err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
