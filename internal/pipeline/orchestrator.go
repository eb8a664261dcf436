// Package pipeline runs the fixed-order analysis and manages background runs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/report"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tools"
)

// Persister stores a finished analysis and returns its id.
type Persister interface {
	PersistAnalysis(ctx context.Context, a models.Analysis) (string, error)
}

// Result of a deterministic run. AnalysisID is empty when nothing was persisted.
type Result struct {
	Report     string
	AnalysisID string
	State      *tools.State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the default progress sink.
func WithSink(s ProgressSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithPersister enables the persist step.
func WithPersister(p Persister) Option {
	return func(o *Orchestrator) { o.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs invoice, consumption, tariffs, community, report and
// persist in that order. Only the invoice step is fatal.
type Orchestrator struct {
	registry  *tools.Registry
	sink      ProgressSink
	persister Persister
	logger    logging.Logger
	now       func() time.Time
}

// New creates an Orchestrator over the given tools.
func New(registry *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.sink == nil {
		o.sink = NopSink{}
	}
	return o
}

// Run analyzes one invoice, reporting progress to the default sink.
func (o *Orchestrator) Run(ctx context.Context, invoicePath string, creds *models.Credentials) (Result, error) {
	return o.RunWithSink(ctx, invoicePath, creds, o.sink)
}

type stepper struct {
	sink ProgressSink
}

func (s stepper) emit(step, status, message string) {
	metrics.StepOutcomes.WithLabelValues(step, status).Inc()
	s.sink.Emit(step, status, message)
}

// RunWithSink is Run with an explicit progress sink.
func (o *Orchestrator) RunWithSink(ctx context.Context, invoicePath string, creds *models.Credentials, sink ProgressSink) (Result, error) {
	if sink == nil {
		sink = NopSink{}
	}
	s := stepper{sink: sink}
	state := tools.NewState()
	log := o.logger.WithField("invoice", invoicePath)

	s.emit(StepInvoice, models.StatusStarted, "analyzing invoice")
	res, err := o.registry.Call(ctx, tools.FetchInvoice, map[string]any{"file_path": invoicePath}, state)
	if err != nil {
		s.emit(StepInvoice, models.StatusError, err.Error())
		return Result{State: state}, fmt.Errorf("invoice: %w", err)
	}
	inv, _ := state.Invoice()
	s.emit(StepInvoice, models.StatusDone, fmt.Sprintf("%s, %.2f ct/kWh, %.0f kWh", inv.Supplier, inv.EnergyPriceCtKWh, inv.AnnualKWh))

	if creds.Empty() {
		s.emit(StepConsumption, models.StatusSkipped, "no portal credentials given")
	} else {
		s.emit(StepConsumption, models.StatusStarted, "fetching smart meter data")
		args := map[string]any{"email": creds.Email, "password": creds.Password}
		if creds.MeteringPointID != "" {
			args["zaehlpunkt"] = creds.MeteringPointID
		}
		if res, err = o.registry.Call(ctx, tools.FetchConsumption, args, state); err != nil {
			s.emit(StepConsumption, models.StatusError, err.Error())
			log.WithError(err).Warn("continuing with invoice consumption")
		} else {
			s.emit(StepConsumption, models.StatusDone, res.Text)
		}
	}

	kwh := state.EffectiveKWh()
	log.WithField("annual_kwh", kwh).Info("effective consumption chosen")

	s.emit(StepTariffs, models.StatusStarted, "comparing tariffs")
	if res, err = o.registry.Call(ctx, tools.CompareTariffs, map[string]any{"jahresverbrauch_kwh": kwh}, state); err != nil {
		s.emit(StepTariffs, models.StatusError, err.Error())
	} else {
		s.emit(StepTariffs, models.StatusDone, res.Text)
	}

	s.emit(StepCommunity, models.StatusStarted, "computing energy community advantage")
	if res, err = o.registry.Call(ctx, tools.ComputeCommunityAdvantage, map[string]any{"jahresverbrauch_kwh": kwh}, state); err != nil {
		state.Set(tools.ComputeCommunityAdvantage, models.CommunityComparison{AnnualKWh: kwh, CurrentPriceCtKWh: inv.EnergyPriceCtKWh})
		s.emit(StepCommunity, models.StatusError, err.Error())
	} else {
		s.emit(StepCommunity, models.StatusDone, res.Text)
	}

	s.emit(StepReport, models.StatusStarted, "writing report")
	text := o.renderReport(ctx, state)
	s.emit(StepReport, models.StatusDone, "report ready")

	out := Result{Report: text, State: state}
	if o.persister == nil {
		s.emit(StepPersist, models.StatusSkipped, "no store configured")
		return out, nil
	}
	s.emit(StepPersist, models.StatusStarted, "saving analysis")
	id, err := o.persister.PersistAnalysis(ctx, BuildAnalysis(uuid.NewString(), o.now(), state))
	if err != nil {
		s.emit(StepPersist, models.StatusError, err.Error())
		log.WithError(err).Warn("analysis not saved")
		return out, nil
	}
	out.AnalysisID = id
	s.emit(StepPersist, models.StatusDone, id)
	return out, nil
}

// renderReport goes through the report tool and renders directly if that fails.
func (o *Orchestrator) renderReport(ctx context.Context, state *tools.State) string {
	if _, err := o.registry.Call(ctx, tools.GenerateReport, nil, state); err == nil {
		if text, ok := state.Report(); ok {
			return text
		}
	}
	in, _ := tools.ReportInput(state)
	text := report.Render(in)
	state.Set(tools.GenerateReport, text)
	return text
}

// BuildAnalysis summarizes a run for storage.
func BuildAnalysis(id string, at time.Time, state *tools.State) models.Analysis {
	in, _ := tools.ReportInput(state)
	text, _ := state.Report()
	return models.Analysis{
		ID:                  id,
		CreatedAt:           at.UTC(),
		Invoice:             in.Invoice,
		EffectiveKWh:        in.AnnualKWh(),
		CurrentCostEUR:      in.CurrentCostEUR(),
		Series:              in.Series,
		Tariffs:             in.Tariffs,
		Community:           in.Community,
		TariffSavingsEUR:    in.TariffSavingsEUR(),
		CommunitySavingsEUR: in.CommunitySavingsEUR(),
		TotalSavingsEUR:     in.TotalSavingsEUR(),
		Report:              text,
	}
}
