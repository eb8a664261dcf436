package community

import (
	"fmt"
	"sort"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// Calculate projects one option. Only the energy share is compared; the
// monthly fee stays with the current supplier either way.
func Calculate(option models.CommunityOption, annualKWh, currentPriceCtKWh float64) models.CommunityResult {
	without := annualKWh * currentPriceCtKWh / 100
	communityKWh := annualKWh * option.SupplyShare
	restKWh := annualKWh * (1 - option.SupplyShare)
	with := communityKWh*option.PriceCtKWh/100 + restKWh*currentPriceCtKWh/100
	savings := without - with

	var months float64
	if savings > 0 {
		months = option.OneTimeCostEUR / (savings / 12)
	}

	return models.CommunityResult{
		Option:             option,
		AnnualKWh:          annualKWh,
		CurrentPriceCtKWh:  currentPriceCtKWh,
		CostWithoutEUR:     without,
		CostWithEUR:        with,
		SavingsEUR:         savings,
		AmortizationMonths: months,
	}
}

// Advisor compares a catalog of community options.
type Advisor struct {
	options []models.CommunityOption
}

// NewAdvisor uses the given options, or the built-in catalog when empty.
func NewAdvisor(options []models.CommunityOption) *Advisor {
	if len(options) == 0 {
		options = DefaultCatalog()
	}
	return &Advisor{options: options}
}

// Options returns the catalog in use.
func (a *Advisor) Options() []models.CommunityOption {
	out := make([]models.CommunityOption, len(a.options))
	copy(out, a.options)
	return out
}

// Compare projects every option, best savings first. Join steps are attached
// for the best profitable option.
func (a *Advisor) Compare(annualKWh, currentPriceCtKWh float64, meteringPoint string) (models.CommunityComparison, error) {
	if annualKWh <= 0 {
		return models.CommunityComparison{}, fmt.Errorf("annual consumption must be positive, got %.0f kWh", annualKWh)
	}
	if currentPriceCtKWh <= 0 {
		return models.CommunityComparison{}, fmt.Errorf("current energy price must be positive, got %.2f ct/kWh", currentPriceCtKWh)
	}

	results := make([]models.CommunityResult, 0, len(a.options))
	for _, o := range a.options {
		results = append(results, Calculate(o, annualKWh, currentPriceCtKWh))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SavingsEUR > results[j].SavingsEUR
	})

	cmp := models.CommunityComparison{
		AnnualKWh:         annualKWh,
		CurrentPriceCtKWh: currentPriceCtKWh,
		Results:           results,
	}
	if best, ok := cmp.Best(); ok {
		cmp.Steps = JoinSteps(best.Option, meteringPoint)
	}
	return cmp, nil
}

// JoinSteps lists the signup steps; the metering point step is prefilled when known.
func JoinSteps(option models.CommunityOption, meteringPoint string) []models.JoinStep {
	steps := []models.JoinStep{
		{
			Number:      1,
			Title:       "Join the association",
			Description: fmt.Sprintf("Register online with %s. This takes about five minutes.", option.Name),
			URL:         option.URL,
		},
		{
			Number:      2,
			Title:       "Enable data sharing at the grid operator",
			Description: fmt.Sprintf("In your grid operator's customer portal, allow %s to receive your quarter-hour values.", option.Name),
		},
		{
			Number:      3,
			Title:       "Register the metering point",
			Description: fmt.Sprintf("Enter your metering point number at %s. It is printed on your invoice and starts with AT00.", option.Name),
			Automatable: true,
		},
		{
			Number:      4,
			Title:       "Keep your current supplier",
			Description: "Your current supplier keeps delivering the remaining share. The community only covers part of your consumption.",
		},
		{
			Number:      5,
			Title:       "Wait for allocation",
			Description: "You will be assigned to a generation plant. This can take a few weeks.",
		},
	}
	if meteringPoint != "" {
		steps[2].Prefill = meteringPoint
		steps[2].Description += " Your number: " + meteringPoint
	}
	return steps
}
