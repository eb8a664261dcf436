package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/community"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/invoice"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tariff"
)

type fakeConsumption struct {
	series models.ConsumptionSeries
	err    error
	got    []models.Credentials
}

func (f *fakeConsumption) FetchConsumption(_ context.Context, creds models.Credentials) (models.ConsumptionSeries, error) {
	f.got = append(f.got, creds)
	return f.series, f.err
}

type fakeTariffs struct {
	alternatives []models.Tariff
	got          []tariff.Query
}

func (f *fakeTariffs) Compare(_ context.Context, q tariff.Query) models.TariffComparison {
	f.got = append(f.got, q)
	return models.TariffComparison{
		Baseline:     tariff.Baseline(q),
		Alternatives: f.alternatives,
		PostalCode:   q.PostalCode,
		AnnualKWh:    q.AnnualKWh,
	}
}

func writeInvoice(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"lieferant": "Wien Energie",
		"energiepreis_ct_kwh": 30,
		"grundgebuehr_eur_monat": 5,
		"jahresverbrauch_kwh": 3000,
		"plz": "1100",
		"zaehlpunkt": "AT001"
	}`), 0o600))
	return path
}

func thirtyDays(total float64) models.ConsumptionSeries {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.ConsumptionSeries{
		MeteringPointID: "AT002",
		From:            from,
		To:              from.AddDate(0, 0, 30),
		Readings:        []models.ConsumptionReading{{Timestamp: from, KWh: total}},
	}
}

func newTestRegistry(cons *fakeConsumption, tar *fakeTariffs) *Registry {
	return NewDefaultRegistry(Deps{
		Invoices:    invoice.NewLLMExtractor(nil, nil, nil),
		Consumption: cons,
		Tariffs:     tar,
		Community:   community.NewAdvisor(nil),
		Credentials: models.Credentials{Email: "cfg@example.org", Password: "cfg-secret"},
	})
}

func TestRegistryContract(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&Tool{Name: "echo", Handler: func(_ context.Context, args map[string]any, _ *State) (Result, error) {
		return Result{Text: "ok", Value: args["v"]}, nil
	}}))
	assert.ErrorIs(t, r.Register(&Tool{Name: "echo", Handler: func(context.Context, map[string]any, *State) (Result, error) { return Result{}, nil }}), ErrToolAlreadyRegistered)
	assert.ErrorIs(t, r.Register(&Tool{Name: "x"}), ErrToolHandlerNil)
	assert.ErrorIs(t, r.Register(&Tool{}), ErrToolNameEmpty)

	state := NewState()
	res, err := r.Call(context.Background(), "echo", map[string]any{"v": 42}, state)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	v, ok := state.Get("echo")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, err = r.Call(context.Background(), "nope", nil, state)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Equal(t, "operation nope failed: tool not found: nope", r.Invoke(context.Background(), "nope", nil, state))
}

func TestCallAndInvokeRecoverPanics(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(&Tool{Name: "boom", Handler: func(context.Context, map[string]any, *State) (Result, error) {
		panic("kaputt")
	}})
	r.MustRegister(&Tool{Name: "fail", Handler: func(context.Context, map[string]any, *State) (Result, error) {
		return Result{}, errors.New("portal down")
	}})

	assert.Equal(t, "operation boom failed: kaputt", r.Invoke(context.Background(), "boom", nil, NewState()))

	_, err := r.Call(context.Background(), "boom", nil, NewState())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaputt", pe.Value)
	assert.Equal(t, "operation fail failed: portal down", r.Invoke(context.Background(), "fail", nil, NewState()))
}

func TestDefaultRegistryNames(t *testing.T) {
	r := newTestRegistry(&fakeConsumption{}, &fakeTariffs{})
	assert.Equal(t, []string{
		CompareTariffs, ComputeCommunityAdvantage, FetchConsumption, FetchInvoice, GenerateReport,
	}, r.Names())
}

func TestFetchInvoiceAliasesAndFailures(t *testing.T) {
	r := newTestRegistry(&fakeConsumption{}, &fakeTariffs{})
	state := NewState()

	text := r.Invoke(context.Background(), FetchInvoice, map[string]any{"invoice_path": writeInvoice(t)}, state)
	assert.True(t, strings.HasPrefix(text, "Invoice analyzed:"), text)
	inv, ok := state.Invoice()
	require.True(t, ok)
	assert.Equal(t, "1100", inv.PostalCode)

	text = r.Invoke(context.Background(), FetchInvoice, map[string]any{}, state)
	assert.Equal(t, "operation fetch_invoice failed: missing argument: file_path", text)
}

func TestCompareTariffsFallsBackToState(t *testing.T) {
	tar := &fakeTariffs{alternatives: []models.Tariff{{Provider: "Cheap", Product: "Fix", AnnualCostEUR: 700}}}
	cons := &fakeConsumption{series: thirtyDays(900)}
	r := newTestRegistry(cons, tar)
	state := NewState()
	ctx := context.Background()

	r.Invoke(ctx, FetchInvoice, map[string]any{"file_path": writeInvoice(t)}, state)
	text := r.Invoke(ctx, CompareTariffs, nil, state)
	assert.Contains(t, text, "Best: Cheap (Fix) at 700.00 EUR/year")
	require.Len(t, tar.got, 1)
	assert.Equal(t, tariff.Query{PostalCode: "1100", AnnualKWh: 3000, Supplier: "Wien Energie", EnergyPriceCtKWh: 30, MonthlyFeeEUR: 5}, tar.got[0])

	r.Invoke(ctx, FetchConsumption, nil, state)
	r.Invoke(ctx, CompareTariffs, map[string]any{
		"postal_code":         "1010",
		"energiepreis_ct_kwh": 28.0,
		"energiepreis":        "27,5",
		"grundgebuehr":        4,
	}, state)
	require.Len(t, tar.got, 2)
	assert.Equal(t, "1010", tar.got[1].PostalCode)
	assert.InDelta(t, 10950, tar.got[1].AnnualKWh, 1e-9, "meter projection wins over invoice")
	assert.InDelta(t, 27.5, tar.got[1].EnergyPriceCtKWh, 1e-9, "energiepreis precedes energiepreis_ct_kwh")
	assert.InDelta(t, 4, tar.got[1].MonthlyFeeEUR, 1e-9)

	cmp, ok := state.Tariffs()
	require.True(t, ok)
	assert.Equal(t, "1010", cmp.PostalCode)
}

func TestCompareTariffsWithoutAlternatives(t *testing.T) {
	r := newTestRegistry(&fakeConsumption{}, &fakeTariffs{})
	text := r.Invoke(context.Background(), CompareTariffs, map[string]any{"plz": "1010", "jahresverbrauch_kwh": 2000, "energiepreis": 25}, NewState())
	assert.Equal(t, "Tariff comparison: no cheaper alternatives found.", text)
}

func TestFetchConsumptionCredentials(t *testing.T) {
	cons := &fakeConsumption{series: thirtyDays(900)}
	r := newTestRegistry(cons, &fakeTariffs{})
	state := NewState()
	ctx := context.Background()

	text := r.Invoke(ctx, FetchConsumption, map[string]any{"username": "me@example.org", "password": "pw", "metering_point": "AT009"}, state)
	assert.Contains(t, text, "projected annual consumption: 10950 kWh")
	assert.Equal(t, models.Credentials{Email: "me@example.org", Password: "pw", MeteringPointID: "AT009"}, cons.got[0])

	r.Invoke(ctx, FetchInvoice, map[string]any{"file_path": writeInvoice(t)}, state)
	r.Invoke(ctx, FetchConsumption, map[string]any{"email": "only@example.org"}, state)
	assert.Equal(t, models.Credentials{Email: "cfg@example.org", Password: "cfg-secret", MeteringPointID: "AT001"}, cons.got[1],
		"half a login falls back to the configured one, metering point from the invoice")

	cons.err = errors.New("portal unreachable")
	text = r.Invoke(ctx, FetchConsumption, nil, state)
	assert.Equal(t, "operation fetch_consumption failed: portal unreachable", text)
}

func TestCommunityAndReport(t *testing.T) {
	r := newTestRegistry(&fakeConsumption{}, &fakeTariffs{})
	state := NewState()
	ctx := context.Background()

	text := r.Invoke(ctx, GenerateReport, nil, state)
	assert.Equal(t, "operation generate_report failed: "+ErrNoInvoice.Error(), text)

	text = r.Invoke(ctx, ComputeCommunityAdvantage, nil, state)
	assert.Contains(t, text, "operation compute_community_advantage failed")

	r.Invoke(ctx, FetchInvoice, map[string]any{"file_path": writeInvoice(t)}, state)
	text = r.Invoke(ctx, ComputeCommunityAdvantage, nil, state)
	assert.Equal(t, "Community advantage computed: 7Energy saves 222.75 EUR/year, paid back in 5.4 months", text)

	text = r.Invoke(ctx, ComputeCommunityAdvantage, map[string]any{"aktueller_energiepreis_ct_kwh": 10}, state)
	assert.Contains(t, text, "no energy community is cheaper than 10.00 ct/kWh")

	text = r.Invoke(ctx, GenerateReport, nil, state)
	assert.True(t, strings.HasPrefix(text, "Report created:\n\n# Energy savings report"), text)
	report, ok := state.Report()
	require.True(t, ok)
	assert.Contains(t, report, "## Energy communities")
}

func TestMissingCollaborators(t *testing.T) {
	r := NewDefaultRegistry(Deps{})
	text := r.Invoke(context.Background(), CompareTariffs, nil, NewState())
	assert.Equal(t, "operation compare_tariffs failed: tariff lookup not configured", text)
}
