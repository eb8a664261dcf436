// Package processor runs queued analysis requests on a fixed worker pool.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/pipeline"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("processing queue is full")

// Progress publishes run progress.
type Progress interface {
	Sink(runID string) pipeline.ProgressSink
	Publish(ev models.ProgressEvent) error
}

// StepWriter stores aggregated step outcomes.
type StepWriter interface {
	WriteStepCounts(ctx context.Context, counts []models.StepCount, timestamp time.Time) error
}

// Processor processes incoming analysis requests
type Processor struct {
	runner   pipeline.Runner
	progress Progress
	config   config.ProcessorConfig
	queue    chan models.AnalysisRequest
	steps    *stepAggregator
	logger   logging.Logger
}

// NewProcessor creates a new processor. progress and writer may be nil.
func NewProcessor(runner pipeline.Runner, progress Progress, writer StepWriter, cfg config.ProcessorConfig, logger logging.Logger) *Processor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Processor{
		runner:   runner,
		progress: progress,
		config:   cfg,
		queue:    make(chan models.AnalysisRequest, cfg.QueueSize),
		logger:   logger,
	}
	if cfg.EnableAggregations && writer != nil {
		p.steps = newStepAggregator(writer, logger)
	}
	return p
}

// Submit queues a request without blocking.
func (p *Processor) Submit(_ context.Context, req models.AnalysisRequest) error {
	select {
	case p.queue <- req:
		return nil
	default:
		p.logger.WithField("request_id", req.ID).Warn("processing queue is full, dropping request")
		return ErrQueueFull
	}
}

// Run starts the workers and the aggregation flusher and blocks until ctx is
// done. Pending step counts are flushed before it returns.
func (p *Processor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.WorkerCount; i++ {
		g.Go(func() error {
			p.worker(gctx, i)
			return nil
		})
	}
	if p.steps != nil {
		g.Go(func() error {
			p.steps.periodicFlush(gctx, p.config.FlushInterval)
			return nil
		})
	}
	err := g.Wait()

	if p.steps != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		p.steps.flush(flushCtx)
	}
	return err
}

func (p *Processor) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.queue:
			p.process(ctx, id, req)
		}
	}
}

func (p *Processor) process(ctx context.Context, worker int, req models.AnalysisRequest) {
	log := p.logger.WithFields(logging.Fields{"worker": worker, "run_id": req.ID})
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	sinks := pipeline.MultiSink{pipeline.LogSink{Logger: p.logger}}
	if p.progress != nil {
		sinks = append(sinks, p.progress.Sink(req.ID))
	}
	if p.steps != nil {
		sinks = append(sinks, p.steps)
	}

	res, err := p.runner.RunWithSink(ctx, req.InvoicePath, req.Credentials, sinks)
	final := models.ProgressEvent{
		RunID:      req.ID,
		Step:       pipeline.StepComplete,
		Status:     models.StatusComplete,
		Message:    "analysis complete",
		Report:     res.Report,
		AnalysisID: res.AnalysisID,
	}
	if err != nil {
		final.Status = models.StatusError
		final.Message = err.Error()
		log.WithError(err).Warn("analysis failed")
	} else {
		log.WithField("analysis_id", res.AnalysisID).Info("analysis complete")
	}

	if p.progress == nil {
		return
	}
	if err := p.progress.Publish(final); err != nil {
		log.WithError(err).Error("failed to publish final event")
	}
}

type stepKey struct {
	step   string
	status string
}

// stepAggregator counts step outcomes between flushes
type stepAggregator struct {
	writer StepWriter
	logger logging.Logger
	counts map[stepKey]int
	mutex  sync.Mutex
}

func newStepAggregator(writer StepWriter, logger logging.Logger) *stepAggregator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &stepAggregator{
		writer: writer,
		logger: logger,
		counts: make(map[stepKey]int),
	}
}

// Emit counts terminal transitions; "started" is not an outcome.
func (a *stepAggregator) Emit(step, status, _ string) {
	if status == models.StatusStarted {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.counts[stepKey{step: step, status: status}]++
}

func (a *stepAggregator) snapshot() []models.StepCount {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if len(a.counts) == 0 {
		return nil
	}
	out := make([]models.StepCount, 0, len(a.counts))
	for k, n := range a.counts {
		out = append(out, models.StepCount{Step: k.step, Status: k.status, Count: n})
	}
	a.counts = make(map[stepKey]int)
	return out
}

func (a *stepAggregator) restore(counts []models.StepCount) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for _, c := range counts {
		a.counts[stepKey{step: c.Step, status: c.Status}] += c.Count
	}
}

// flush writes the current counts. The write happens outside the lock; on
// failure the counts are merged back for the next flush.
func (a *stepAggregator) flush(ctx context.Context) {
	counts := a.snapshot()
	if len(counts) == 0 {
		return
	}
	if err := a.writer.WriteStepCounts(ctx, counts, time.Now().UTC()); err != nil {
		a.logger.WithError(err).Error("error writing step counts")
		a.restore(counts)
	}
}

func (a *stepAggregator) periodicFlush(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}
