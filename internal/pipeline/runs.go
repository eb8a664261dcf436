package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// Runner is what Runs drives in the background.
type Runner interface {
	RunWithSink(ctx context.Context, invoicePath string, creds *models.Credentials, sink ProgressSink) (Result, error)
}

// StepComplete is the step of the terminal event of a background run.
const StepComplete = "complete"

// Runs tracks background runs by id. Each run streams its progress over a
// buffered channel; a listener that does not drain it within the listener
// timeout is abandoned, and the run is evicted. The channel is closed after
// the terminal event.
type Runs struct {
	runner  Runner
	timeout time.Duration
	buffer  int
	logger  logging.Logger

	mu   sync.Mutex
	runs map[string]chan models.ProgressEvent
}

// NewRuns creates a run manager.
func NewRuns(runner Runner, cfg config.RunsConfig, logger logging.Logger) *Runs {
	if cfg.ListenerTimeout <= 0 {
		cfg.ListenerTimeout = 5 * time.Minute
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runs{
		runner:  runner,
		timeout: cfg.ListenerTimeout,
		buffer:  cfg.BufferSize,
		logger:  logger,
		runs:    make(map[string]chan models.ProgressEvent),
	}
}

// NewRunID returns a 12 character hex id.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Start registers a run and executes it in its own goroutine. The run is
// detached from ctx cancellation; abandon the listener to give it up.
func (r *Runs) Start(ctx context.Context, invoicePath string, creds *models.Credentials) string {
	id, _ := r.Stream(ctx, invoicePath, creds)
	return id
}

// Stream is Start for a caller that listens itself. The returned channel is
// valid even if the run finishes and is evicted before the caller reads it.
func (r *Runs) Stream(ctx context.Context, invoicePath string, creds *models.Credentials) (string, <-chan models.ProgressEvent) {
	id := NewRunID()
	events := make(chan models.ProgressEvent, r.buffer)

	r.mu.Lock()
	r.runs[id] = events
	r.mu.Unlock()
	metrics.RunsActive.Inc()

	go r.execute(context.WithoutCancel(ctx), id, events, invoicePath, creds)
	return id, events
}

// Events returns the progress stream of a run.
func (r *Runs) Events(id string) (<-chan models.ProgressEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.runs[id]
	return ch, ok
}

// Evict forgets a run. It reports whether the run was registered.
func (r *Runs) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return false
	}
	delete(r.runs, id)
	metrics.RunsActive.Dec()
	return true
}

// Active is the number of registered runs.
func (r *Runs) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

type channelSink struct {
	id        string
	events    chan<- models.ProgressEvent
	timeout   time.Duration
	abandoned bool
	onAbandon func()
}

func (s *channelSink) send(ev models.ProgressEvent) {
	if s.abandoned {
		return
	}
	ev.RunID = s.id
	ev.Time = time.Now().UTC()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.events <- ev:
	case <-timer.C:
		s.abandoned = true
		s.onAbandon()
	}
}

func (s *channelSink) Emit(step, status, message string) {
	s.send(models.ProgressEvent{Step: step, Status: status, Message: message})
}

func (r *Runs) execute(ctx context.Context, id string, events chan models.ProgressEvent, invoicePath string, creds *models.Credentials) {
	log := r.logger.WithField("run_id", id)
	sink := &channelSink{
		id:      id,
		events:  events,
		timeout: r.timeout,
		onAbandon: func() {
			log.Warn("progress listener abandoned, evicting run")
			r.Evict(id)
		},
	}
	defer func() {
		close(events)
		r.Evict(id)
	}()

	res, err := r.runner.RunWithSink(ctx, invoicePath, creds, sink)
	final := models.ProgressEvent{Step: StepComplete, Status: models.StatusComplete, Report: res.Report, AnalysisID: res.AnalysisID}
	if err != nil {
		final.Status = models.StatusError
		final.Message = err.Error()
		log.WithError(err).Warn("run failed")
	} else {
		log.WithField("analysis_id", res.AnalysisID).Info("run complete")
	}
	sink.send(final)
}
