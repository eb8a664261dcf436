// Package report renders the savings report as markdown.
package report

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// Input collects everything a report can show. Only Invoice is required.
type Input struct {
	Invoice   models.Invoice
	Series    *models.ConsumptionSeries
	Tariffs   *models.TariffComparison
	Community *models.CommunityComparison
}

// AnnualKWh is the meter projection when available, otherwise the invoice value.
func (in Input) AnnualKWh() float64 {
	return models.EffectiveKWh(in.Invoice, in.Series)
}

// CurrentCostEUR is energy plus base fee at the effective consumption.
func (in Input) CurrentCostEUR() float64 {
	return in.Invoice.AnnualCostEUR(in.AnnualKWh())
}

func (in Input) TariffSavingsEUR() float64 {
	if in.Tariffs == nil {
		return 0
	}
	return in.Tariffs.MaxSavingsEUR()
}

func (in Input) CommunitySavingsEUR() float64 {
	if in.Community == nil {
		return 0
	}
	return in.Community.SavingsEUR()
}

// TotalSavingsEUR adds the best tariff switch and the best community option.
func (in Input) TotalSavingsEUR() float64 {
	return in.TariffSavingsEUR() + in.CommunitySavingsEUR()
}

type writer struct {
	sb strings.Builder
	p  *message.Printer
}

func (w *writer) line(format string, args ...any) {
	w.sb.WriteString(w.p.Sprintf(format, args...))
	w.sb.WriteByte('\n')
}

func (w *writer) blank() {
	w.sb.WriteByte('\n')
}

func signed(v float64) string {
	if v > 0 {
		return "+"
	}
	return ""
}

// Render builds the markdown report. It never fails; missing sections are left out.
func Render(in Input) string {
	w := &writer{p: message.NewPrinter(language.English)}
	inv := in.Invoice

	w.line("# Energy savings report")
	w.blank()
	w.line("I went through your invoice and the public tariff data. Here is what I found.")
	w.blank()

	w.line("## Your current situation")
	w.blank()
	w.line("- **Supplier:** %s", inv.Supplier)
	if inv.Product != "" {
		w.line("- **Tariff:** %s", inv.Product)
	}
	w.line("- **Energy price:** %.2f ct/kWh", inv.EnergyPriceCtKWh)
	w.line("- **Base fee:** %.2f EUR/month", inv.MonthlyFeeEUR)
	w.line("- **Annual consumption:** %.0f kWh", in.AnnualKWh())
	w.line("- **Current annual cost (energy + base fee):** %.2f EUR", in.CurrentCostEUR())
	if inv.GridCostsEUR != nil && *inv.GridCostsEUR > 0 {
		grid := *inv.GridCostsEUR
		if in.Tariffs != nil && in.Tariffs.GridOperator != "" {
			w.line("- **Grid costs:** %.2f EUR/year (%s, regulated)", grid, in.Tariffs.GridOperator)
		} else {
			w.line("- **Grid costs:** %.2f EUR/year (regulated)", grid)
		}
		w.line("- **Total including grid:** %.2f EUR/year", in.CurrentCostEUR()+grid)
	}
	w.blank()

	if s := in.Series; s != nil && len(s.Readings) > 0 {
		w.line("### Smart meter data")
		w.blank()
		w.line("I analyzed %d readings over %d days.", len(s.Readings), s.Days())
		w.line("Projected annual consumption: **%.0f kWh**", s.AnnualizedKWh())
		if base := s.BaselineLoadWatts(); base > 0 {
			w.line("Baseline load: **%.0f W**. That is what your household draws at minimum, day and night.", base)
		}
		if peak := s.PeakLoadWatts(); peak > 0 {
			w.line("Peak load: **%.1f kW** in a single quarter hour.", peak/1000)
		}
		w.blank()
	}

	if tc := in.Tariffs; tc != nil {
		renderTariffs(w, *tc)
	}
	if cc := in.Community; cc != nil && len(cc.Results) > 0 {
		renderCommunity(w, inv, *cc)
	}

	w.line("## Total savings")
	w.blank()
	if total := in.TotalSavingsEUR(); total > 0 {
		w.line("**You can save up to %.2f EUR per year.**", total)
		w.blank()
		w.line("That is **%.2f EUR per month**, or %.2f EUR per day.", total/12, total/365)
		w.line("Over 5 years: **%.2f EUR**.", total*5)
	} else {
		w.line("Your current setup is already well optimized.")
	}
	w.blank()

	w.line("## Next steps")
	w.blank()
	step := 1
	if tc := in.Tariffs; tc != nil && tc.MaxSavingsEUR() > 0 {
		if best, ok := tc.Best(); ok {
			w.line("%d. **Check a tariff switch**: move to %s (%s). Switching online takes five minutes and the old contract is cancelled for you.", step, best.Provider, best.Product)
			step++
		}
	}
	if cc := in.Community; cc != nil {
		if best, ok := cc.Best(); ok {
			w.line("%d. **Join %s**: sign up at %s, then enable data sharing at your grid operator.", step, best.Option.Name, best.Option.URL)
			step++
		}
	}
	if step == 1 {
		w.line("Nothing to do. Enjoy your cheap electricity!")
	}
	w.blank()
	w.line("---")
	w.blank()
	w.line("Figures are estimates based on your invoice and current public offers.")

	return w.sb.String()
}

func renderTariffs(w *writer, tc models.TariffComparison) {
	w.line("## Tariff comparison")
	w.blank()
	if len(tc.Alternatives) == 0 {
		w.line("The tariff catalog was not available. Try again later or compare manually at tarifkalkulator.e-control.at.")
		w.blank()
		return
	}

	w.line("I found %d tariffs for postal code %s:", len(tc.Alternatives), tc.PostalCode)
	w.blank()
	w.line("| # | Supplier | Tariff | ct/kWh | Fee/month | Annual cost | Savings |")
	w.line("|---|----------|--------|--------|-----------|-------------|---------|")
	for i, t := range tc.Alternatives {
		name := t.Provider
		if t.Green {
			name += " (green)"
		}
		savings := tc.Baseline.AnnualCostEUR - t.AnnualCostEUR
		w.line("| %d | %s | %s | %.2f | %.2f EUR | %.2f EUR | **%s%.2f EUR** |",
			i+1, name, t.Product, t.EnergyPriceCtKWh, t.MonthlyFeeEUR, t.AnnualCostEUR, signed(savings), savings)
	}
	w.blank()

	best, ok := tc.Best()
	switch {
	case ok && tc.MaxSavingsEUR() > 0:
		w.line("Best tariff: **%s, %s** saves you **%.2f EUR per year**, %.2f EUR less every month.",
			best.Provider, best.Product, tc.MaxSavingsEUR(), tc.MaxSavingsEUR()/12)
	case ok:
		w.line("Your current tariff is already a good deal.")
	}
	w.blank()
}

func renderCommunity(w *writer, inv models.Invoice, cc models.CommunityComparison) {
	w.line("## Energy communities")
	w.blank()
	w.line("Your current energy price: **%.2f ct/kWh**", inv.EnergyPriceCtKWh)
	w.blank()

	best, ok := cc.Best()
	if !ok {
		w.line("No energy community is cheaper at your current energy price. That happens when your tariff is already very cheap.")
		w.blank()
		return
	}

	w.line("| # | Community | ct/kWh | Share | Savings/year | One-time cost |")
	w.line("|---|-----------|--------|-------|--------------|---------------|")
	for i, r := range cc.Results {
		savings := w.p.Sprintf("%.2f EUR", r.SavingsEUR)
		if r.Profitable() {
			savings = "**+" + savings + "**"
		}
		oneTime := "-"
		if r.Option.OneTimeCostEUR > 0 {
			oneTime = w.p.Sprintf("%.0f EUR", r.Option.OneTimeCostEUR)
		}
		name := r.Option.Name
		if r.Option.URL != "" {
			name = "[" + name + "](" + r.Option.URL + ")"
		}
		w.line("| %d | %s | %.2f | %.0f%% | %s | %s |", i+1, name, r.Option.PriceCtKWh, r.Option.SupplyShare*100, savings, oneTime)
	}
	w.blank()

	w.line("Best option: **%s** saves you **%.2f EUR per year** at a %.0f%% supply share.",
		best.Option.Name, best.SavingsEUR, best.Option.SupplyShare*100)
	if best.Option.OneTimeCostEUR > 0 && best.PaysBack() {
		w.line("One-time cost: %.0f EUR, paid back within **%.1f months**.", best.Option.OneTimeCostEUR, best.AmortizationMonths)
	}
	w.blank()

	if len(cc.Steps) > 0 {
		w.line("### How to join")
		w.blank()
		for _, s := range cc.Steps {
			w.line("%d. **%s**: %s", s.Number, s.Title, s.Description)
		}
		w.blank()
	}
}
