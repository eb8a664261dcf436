package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/pipeline"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run the full analysis for one invoice and print the report",
		ArgsUsage: "<invoice>",
		Flags: append(loginFlags(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the report to a file instead of stdout"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("an invoice file is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.NewTextLogger(cfg.LogLevel, os.Stderr)

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			runs := pipeline.NewRuns(a.orchestrator(), cfg.Runs, logger)
			id, events := runs.Stream(ctx, path, credentials(cmd, cfg))
			logger.WithField("run_id", id).Debug("run started")

			var final models.ProgressEvent
			for {
				select {
				case <-ctx.Done():
					runs.Evict(id)
					return ctx.Err()
				case ev, open := <-events:
					if !open {
						return finish(cmd, final)
					}
					if ev.Step == pipeline.StepComplete {
						final = ev
						continue
					}
					fmt.Fprintf(os.Stderr, "[%s] %-11s %s\n", ev.Status, ev.Step, ev.Message)
				}
			}
		},
	}
}

func finish(cmd *cli.Command, final models.ProgressEvent) error {
	switch final.Status {
	case models.StatusComplete:
	case models.StatusError:
		return errors.New(final.Message)
	default:
		return errors.New("run ended without a result")
	}
	if final.AnalysisID != "" {
		fmt.Fprintf(os.Stderr, "analysis stored as %s\n", final.AnalysisID)
	}

	out := cmd.String("out")
	if out == "" {
		return writeReport(os.Stdout, final.Report)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()
	return writeReport(f, final.Report)
}
