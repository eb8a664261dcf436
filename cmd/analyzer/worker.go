package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/kafka"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/processor"
)

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Consume analysis requests from Kafka and publish progress",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.LogLevel)

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			// closed after the consumers and workers have stopped
			defer a.Close()

			publisher, err := kafka.NewPublisher(cfg.Kafka, logger)
			if err != nil {
				return err
			}
			defer publisher.Close()

			var steps processor.StepWriter
			if a.influx != nil {
				steps = a.influx
			}
			proc := processor.NewProcessor(a.orchestrator(), publisher, steps, cfg.Processor, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return proc.Run(gctx) })

			logger.WithField("consumers", cfg.Kafka.ConsumerCount).Info("starting Kafka consumers")
			for i := 0; i < cfg.Kafka.ConsumerCount; i++ {
				consumer, err := kafka.NewConsumer(fmt.Sprintf("consumer-%d", i), cfg.Kafka, proc.Submit, logger)
				if err != nil {
					return fmt.Errorf("create consumer %d: %w", i, err)
				}
				g.Go(func() error {
					defer consumer.Close()
					err := consumer.Consume(gctx)
					logger.WithField("consumer", i).Info("consumer stopped")
					return err
				})
			}

			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
			g.Go(func() error {
				logger.WithField("addr", cfg.Metrics.Addr).Info("serving metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics listener: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			logger.Info("shutdown complete")
			return err
		},
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
