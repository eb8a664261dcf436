package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/community"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/invoice"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tariff"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tools"
)

type event struct{ step, status string }

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Emit(step, status, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{step, status})
}

type consumptionFunc func(context.Context, models.Credentials) (models.ConsumptionSeries, error)

func (f consumptionFunc) FetchConsumption(ctx context.Context, c models.Credentials) (models.ConsumptionSeries, error) {
	return f(ctx, c)
}

type tariffFunc func(context.Context, tariff.Query) models.TariffComparison

func (f tariffFunc) Compare(ctx context.Context, q tariff.Query) models.TariffComparison {
	return f(ctx, q)
}

type persisterFunc func(context.Context, models.Analysis) (string, error)

func (f persisterFunc) PersistAnalysis(ctx context.Context, a models.Analysis) (string, error) {
	return f(ctx, a)
}

func writeInvoice(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const invoiceJSON = `{"lieferant":"Wien Energie","energiepreis_ct_kwh":30,"grundgebuehr_eur_monat":5,"jahresverbrauch_kwh":3000,"plz":"1100"}`

func series(total float64) models.ConsumptionSeries {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.ConsumptionSeries{
		MeteringPointID: "AT001",
		From:            from,
		To:              from.AddDate(0, 0, 30),
		Readings:        []models.ConsumptionReading{{Timestamp: from, KWh: total}},
	}
}

// registry leaves a collaborator unset when its func is nil.
func registry(cons consumptionFunc, tar tariffFunc) *tools.Registry {
	deps := tools.Deps{
		Invoices:  invoice.NewLLMExtractor(nil, nil, nil),
		Community: community.NewAdvisor(nil),
	}
	if cons != nil {
		deps.Consumption = cons
	}
	if tar != nil {
		deps.Tariffs = tar
	}
	return tools.NewDefaultRegistry(deps)
}

func cheapCatalog(_ context.Context, q tariff.Query) models.TariffComparison {
	return models.TariffComparison{
		Baseline:     tariff.Baseline(q),
		PostalCode:   q.PostalCode,
		AnnualKWh:    q.AnnualKWh,
		Alternatives: []models.Tariff{{Provider: "Cheap", Product: "Fix", AnnualCostEUR: q.AnnualKWh * 0.2}},
	}
}

func TestRunFullPipeline(t *testing.T) {
	var gotQuery tariff.Query
	tar := func(ctx context.Context, q tariff.Query) models.TariffComparison {
		gotQuery = q
		return cheapCatalog(ctx, q)
	}
	cons := func(_ context.Context, c models.Credentials) (models.ConsumptionSeries, error) {
		assert.Equal(t, "me@example.org", c.Email)
		return series(900), nil
	}
	var stored models.Analysis
	persist := func(_ context.Context, a models.Analysis) (string, error) {
		stored = a
		return a.ID, nil
	}

	rec := &recorder{}
	o := New(registry(cons, tar), WithSink(rec), WithPersister(persisterFunc(persist)))
	res, err := o.Run(context.Background(), writeInvoice(t, invoiceJSON), &models.Credentials{Email: "me@example.org", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, []event{
		{StepInvoice, models.StatusStarted}, {StepInvoice, models.StatusDone},
		{StepConsumption, models.StatusStarted}, {StepConsumption, models.StatusDone},
		{StepTariffs, models.StatusStarted}, {StepTariffs, models.StatusDone},
		{StepCommunity, models.StatusStarted}, {StepCommunity, models.StatusDone},
		{StepReport, models.StatusStarted}, {StepReport, models.StatusDone},
		{StepPersist, models.StatusStarted}, {StepPersist, models.StatusDone},
	}, rec.events)

	assert.InDelta(t, 10950, gotQuery.AnnualKWh, 1e-9, "meter projection is the effective consumption")
	assert.Contains(t, res.Report, "### Smart meter data")
	assert.Contains(t, res.Report, "## Tariff comparison")
	assert.NotEmpty(t, res.AnalysisID)
	assert.Equal(t, res.AnalysisID, stored.ID)
	assert.InDelta(t, 10950, stored.EffectiveKWh, 1e-9)
	assert.Equal(t, res.Report, stored.Report)
	assert.Greater(t, stored.TotalSavingsEUR, 0.0)
}

func TestRunInvoiceFailureIsFatal(t *testing.T) {
	rec := &recorder{}
	o := New(registry(nil, cheapCatalog), WithSink(rec))
	_, err := o.Run(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)
	assert.Equal(t, []event{{StepInvoice, models.StatusStarted}, {StepInvoice, models.StatusError}}, rec.events)
}

func TestRunToleratesPartialFailures(t *testing.T) {
	cons := func(context.Context, models.Credentials) (models.ConsumptionSeries, error) {
		return models.ConsumptionSeries{}, errors.New("portal unreachable")
	}
	tar := func(context.Context, tariff.Query) models.TariffComparison {
		panic("catalog client bug")
	}
	persist := func(context.Context, models.Analysis) (string, error) { return "", errors.New("store down") }

	rec := &recorder{}
	path := writeInvoice(t, `{"lieferant":"X","energiepreis_ct_kwh":0,"jahresverbrauch_kwh":3000,"plz":"1100"}`)
	o := New(registry(cons, tar), WithSink(rec), WithPersister(persisterFunc(persist)))
	res, err := o.Run(context.Background(), path, &models.Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)

	assert.Equal(t, []event{
		{StepInvoice, models.StatusStarted}, {StepInvoice, models.StatusDone},
		{StepConsumption, models.StatusStarted}, {StepConsumption, models.StatusError},
		{StepTariffs, models.StatusStarted}, {StepTariffs, models.StatusError},
		{StepCommunity, models.StatusStarted}, {StepCommunity, models.StatusError},
		{StepReport, models.StatusStarted}, {StepReport, models.StatusDone},
		{StepPersist, models.StatusStarted}, {StepPersist, models.StatusError},
	}, rec.events)
	assert.Contains(t, res.Report, "**Annual consumption:** 3,000 kWh")
	assert.Empty(t, res.AnalysisID)

	cmp, ok := res.State.Community()
	require.True(t, ok, "failed community step leaves an empty comparison")
	assert.Empty(t, cmp.Results)
}

func TestRunSkipsConsumptionWithoutCredentials(t *testing.T) {
	rec := &recorder{}
	o := New(registry(nil, cheapCatalog), WithSink(rec))
	res, err := o.Run(context.Background(), writeInvoice(t, invoiceJSON), &models.Credentials{Email: "only"})
	require.NoError(t, err)
	assert.Contains(t, rec.events, event{StepConsumption, models.StatusSkipped})
	assert.Contains(t, rec.events, event{StepPersist, models.StatusSkipped})
	assert.NotContains(t, res.Report, "Smart meter data")
}

type runnerFunc func(ctx context.Context, path string, creds *models.Credentials, sink ProgressSink) (Result, error)

func (f runnerFunc) RunWithSink(ctx context.Context, path string, creds *models.Credentials, sink ProgressSink) (Result, error) {
	return f(ctx, path, creds, sink)
}

func TestRunsStreamsProgressAndCleansUp(t *testing.T) {
	o := New(registry(nil, cheapCatalog))
	runs := NewRuns(o, config.RunsConfig{ListenerTimeout: time.Second, BufferSize: 4}, nil)

	id := runs.Start(context.Background(), writeInvoice(t, invoiceJSON), nil)
	assert.Len(t, id, 12)
	events, ok := runs.Events(id)
	require.True(t, ok)

	var got []models.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, StepComplete, last.Step)
	assert.Equal(t, models.StatusComplete, last.Status)
	assert.Contains(t, last.Report, "# Energy savings report")
	for _, ev := range got {
		assert.Equal(t, id, ev.RunID)
	}
	assert.Eventually(t, func() bool { return runs.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, runs.Evict(id))
}

func TestRunsReportsFailure(t *testing.T) {
	runs := NewRuns(New(registry(nil, cheapCatalog)), config.RunsConfig{BufferSize: 8}, nil)
	id, events := runs.Stream(context.Background(), "/does/not/exist.json", nil)

	var last models.ProgressEvent
	for ev := range events {
		last = ev
	}
	assert.Equal(t, id, last.RunID)
	assert.Equal(t, StepComplete, last.Step)
	assert.Equal(t, models.StatusError, last.Status)
	assert.Contains(t, last.Message, "invoice")
}

func TestRunsAbandonsSlowListener(t *testing.T) {
	finished := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, _ string, _ *models.Credentials, sink ProgressSink) (Result, error) {
		defer close(finished)
		for i := 0; i < 5; i++ {
			sink.Emit(StepInvoice, models.StatusStarted, "tick")
		}
		return Result{Report: "r"}, nil
	})
	runs := NewRuns(runner, config.RunsConfig{ListenerTimeout: 20 * time.Millisecond, BufferSize: 1}, nil)

	id := runs.Start(context.Background(), "x", nil)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after the listener was abandoned")
	}
	assert.Eventually(t, func() bool { return runs.Active() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := runs.Events(id)
	assert.False(t, ok)
}

func TestRunsStartIsDetachedFromCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	runner := runnerFunc(func(ctx context.Context, _ string, _ *models.Credentials, _ ProgressSink) (Result, error) {
		done <- ctx.Err()
		return Result{}, nil
	})
	runs := NewRuns(runner, config.RunsConfig{BufferSize: 1}, nil)
	cancel()
	runs.Start(ctx, "x", nil)
	assert.NoError(t, <-done)
}
