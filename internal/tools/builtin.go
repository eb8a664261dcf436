package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/aliases"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/invoice"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/report"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tariff"
)

// Tool names
const (
	FetchInvoice              = "fetch_invoice"
	FetchConsumption          = "fetch_consumption"
	CompareTariffs            = "compare_tariffs"
	ComputeCommunityAdvantage = "compute_community_advantage"
	GenerateReport            = "generate_report"
)

// ConsumptionSource reads smart meter data for one login.
type ConsumptionSource interface {
	FetchConsumption(ctx context.Context, creds models.Credentials) (models.ConsumptionSeries, error)
}

// TariffComparer compares the current tariff with the catalog. It never fails.
type TariffComparer interface {
	Compare(ctx context.Context, q tariff.Query) models.TariffComparison
}

// CommunityAdvisor projects energy community savings.
type CommunityAdvisor interface {
	Compare(annualKWh, currentPriceCtKWh float64, meteringPoint string) (models.CommunityComparison, error)
}

// Deps are the collaborators of the built-in tools. A nil collaborator makes
// its tool fail with ErrNotConfigured.
type Deps struct {
	Invoices    invoice.Extractor
	Consumption ConsumptionSource
	Tariffs     TariffComparer
	Community   CommunityAdvisor
	// Credentials are used when a call does not carry its own login.
	Credentials models.Credentials
	Logger      logging.Logger
}

// NewDefaultRegistry registers the five analysis tools.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry(deps.Logger)
	r.MustRegister(&Tool{
		Name:        FetchInvoice,
		Description: "Read an electricity invoice (image, text or JSON) and extract supplier, prices, consumption and postal code.",
		Arguments:   `{"file_path": "path to the invoice"}`,
		Progress:    "analyzing invoice",
		Handler:     deps.fetchInvoice,
	})
	r.MustRegister(&Tool{
		Name:        FetchConsumption,
		Description: "Log in to the smart meter portal and load the last 90 days of quarter-hour readings.",
		Arguments:   `{"email": "...", "password": "...", "zaehlpunkt": "optional metering point"}`,
		Progress:    "fetching smart meter data",
		Handler:     deps.fetchConsumption,
	})
	r.MustRegister(&Tool{
		Name:        CompareTariffs,
		Description: "Compare the current tariff with the public tariff catalog. Omitted values are taken from the invoice.",
		Arguments:   `{"plz": "postal code", "jahresverbrauch_kwh": 0, "aktueller_lieferant": "...", "aktueller_energiepreis": 0, "aktuelle_grundgebuehr": 0}`,
		Progress:    "comparing tariffs",
		Handler:     deps.compareTariffs,
	})
	r.MustRegister(&Tool{
		Name:        ComputeCommunityAdvantage,
		Description: "Project the savings of joining an energy community. Omitted values are taken from the invoice.",
		Arguments:   `{"jahresverbrauch_kwh": 0, "aktueller_energiepreis_ct_kwh": 0}`,
		Progress:    "computing energy community advantage",
		Handler:     deps.computeCommunity,
	})
	r.MustRegister(&Tool{
		Name:        GenerateReport,
		Description: "Write the savings report from everything gathered so far. Needs an invoice.",
		Arguments:   `{}`,
		Progress:    "writing savings report",
		Handler:     generateReport,
	})
	return r
}

func (d Deps) fetchInvoice(ctx context.Context, args map[string]any, _ *State) (Result, error) {
	if d.Invoices == nil {
		return Result{}, fmt.Errorf("invoice extraction %w", ErrNotConfigured)
	}
	path, ok := aliases.FilePath.String(args)
	if !ok {
		return Result{}, fmt.Errorf("%w: file_path", ErrMissingArg)
	}
	inv, err := invoice.ExtractFile(ctx, d.Invoices, path)
	if err != nil {
		return Result{}, err
	}
	data, _ := json.MarshalIndent(inv, "", "  ")
	return Result{Text: "Invoice analyzed:\n" + string(data), Value: inv}, nil
}

// credentials takes the login from args and falls back to the configured one
// as a whole, so a half-given login is never mixed with the default.
func (d Deps) credentials(args map[string]any, state *State) models.Credentials {
	creds := models.Credentials{
		Email:    aliases.Email.StringOr(args, ""),
		Password: aliases.Password.StringOr(args, ""),
	}
	if creds.Empty() {
		creds = d.Credentials
	}
	creds.MeteringPointID = aliases.MeteringPoint.StringOr(args, creds.MeteringPointID)
	if creds.MeteringPointID == "" {
		if inv, ok := state.Invoice(); ok {
			creds.MeteringPointID = inv.MeteringPointID
		}
	}
	return creds
}

func (d Deps) fetchConsumption(ctx context.Context, args map[string]any, state *State) (Result, error) {
	if d.Consumption == nil {
		return Result{}, fmt.Errorf("smart meter portal %w", ErrNotConfigured)
	}
	creds := d.credentials(args, state)
	if creds.Empty() {
		return Result{}, fmt.Errorf("%w: email and password", ErrMissingArg)
	}
	series, err := d.Consumption.FetchConsumption(ctx, creds)
	if err != nil {
		return Result{}, err
	}
	text := fmt.Sprintf("Smart meter data loaded: %d readings, %d days, projected annual consumption: %.0f kWh, baseline load: %.0f W",
		len(series.Readings), series.Days(), series.AnnualizedKWh(), series.BaselineLoadWatts())
	return Result{Text: text, Value: series}, nil
}

func (d Deps) compareTariffs(ctx context.Context, args map[string]any, state *State) (Result, error) {
	if d.Tariffs == nil {
		return Result{}, fmt.Errorf("tariff lookup %w", ErrNotConfigured)
	}
	inv, _ := state.Invoice()
	q := tariff.Query{
		PostalCode:       aliases.PostalCode.StringOr(args, inv.PostalCode),
		AnnualKWh:        aliases.AnnualKWh.FloatOr(args, state.EffectiveKWh()),
		Supplier:         aliases.Supplier.StringOr(args, inv.Supplier),
		EnergyPriceCtKWh: aliases.TariffPrice.FloatOr(args, inv.EnergyPriceCtKWh),
		MonthlyFeeEUR:    aliases.MonthlyFee.FloatOr(args, inv.MonthlyFeeEUR),
	}
	cmp := d.Tariffs.Compare(ctx, q)

	best, ok := cmp.Best()
	if !ok {
		return Result{Text: "Tariff comparison: no cheaper alternatives found.", Value: cmp}, nil
	}
	text := fmt.Sprintf("Tariff comparison: %d alternatives found. Best: %s (%s) at %.2f EUR/year. Savings: %.2f EUR/year",
		len(cmp.Alternatives), best.Provider, best.Product, best.AnnualCostEUR, cmp.MaxSavingsEUR())
	return Result{Text: text, Value: cmp}, nil
}

func (d Deps) computeCommunity(_ context.Context, args map[string]any, state *State) (Result, error) {
	if d.Community == nil {
		return Result{}, fmt.Errorf("community advisor %w", ErrNotConfigured)
	}
	inv, _ := state.Invoice()
	kwh := aliases.AnnualKWh.FloatOr(args, state.EffectiveKWh())
	price := aliases.CommunityPrice.FloatOr(args, inv.EnergyPriceCtKWh)

	mp := inv.MeteringPointID
	if series, ok := state.Series(); ok && series.MeteringPointID != "" {
		mp = series.MeteringPointID
	}

	cmp, err := d.Community.Compare(kwh, price, mp)
	if err != nil {
		return Result{}, err
	}
	best, ok := cmp.Best()
	if !ok {
		return Result{Text: fmt.Sprintf("Community advantage: no energy community is cheaper than %.2f ct/kWh.", price), Value: cmp}, nil
	}
	text := fmt.Sprintf("Community advantage computed: %s saves %.2f EUR/year", best.Option.Name, best.SavingsEUR)
	if best.Option.OneTimeCostEUR > 0 {
		text += fmt.Sprintf(", paid back in %.1f months", best.AmortizationMonths)
	}
	return Result{Text: text, Value: cmp}, nil
}

func generateReport(_ context.Context, _ map[string]any, state *State) (Result, error) {
	in, err := ReportInput(state)
	if err != nil {
		return Result{}, err
	}
	text := report.Render(in)
	return Result{Text: "Report created:\n\n" + text, Value: text}, nil
}

// ReportInput collects the report sections available in state.
func ReportInput(state *State) (report.Input, error) {
	inv, ok := state.Invoice()
	if !ok {
		return report.Input{}, ErrNoInvoice
	}
	in := report.Input{Invoice: inv}
	in.Series, _ = state.Series()
	in.Tariffs, _ = state.Tariffs()
	in.Community, _ = state.Community()
	return in, nil
}
