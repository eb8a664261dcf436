package models

// CommunityOption describes an energy community (BEG) offer.
type CommunityOption struct {
	Name           string   `json:"name" koanf:"name"`
	PriceCtKWh     float64  `json:"price_ct_kwh" koanf:"price_ct_kwh"`
	SupplyShare    float64  `json:"supply_share" koanf:"supply_share"`
	OneTimeCostEUR float64  `json:"one_time_cost_eur" koanf:"one_time_cost_eur"`
	URL            string   `json:"url,omitempty" koanf:"url"`
	Region         string   `json:"region,omitempty" koanf:"region"`
	Notes          []string `json:"notes,omitempty" koanf:"notes"`
}

// CommunityResult is the projected effect of joining one option.
type CommunityResult struct {
	Option             CommunityOption `json:"option"`
	AnnualKWh          float64         `json:"annual_kwh"`
	CurrentPriceCtKWh  float64         `json:"current_price_ct_kwh"`
	CostWithoutEUR     float64         `json:"cost_without_eur"`
	CostWithEUR        float64         `json:"cost_with_eur"`
	SavingsEUR         float64         `json:"savings_eur"`
	AmortizationMonths float64         `json:"amortization_months"`
}

// Profitable reports whether joining saves money against the current energy price.
func (r CommunityResult) Profitable() bool {
	return r.SavingsEUR > 0
}

// PaysBack reports whether the one-time cost is ever recovered. AmortizationMonths
// is only meaningful when it does.
func (r CommunityResult) PaysBack() bool {
	return r.SavingsEUR > 0
}

// JoinStep is one step of the signup walk-through.
type JoinStep struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Automatable bool   `json:"automatable"`
	Prefill     string `json:"prefill,omitempty"`
}

// CommunityComparison lists the options ordered by savings, best first.
type CommunityComparison struct {
	AnnualKWh         float64           `json:"annual_kwh"`
	CurrentPriceCtKWh float64           `json:"current_price_ct_kwh"`
	Results           []CommunityResult `json:"results"`
	Steps             []JoinStep        `json:"steps,omitempty"`
}

// Best returns the option with the largest savings, if any is profitable.
func (c CommunityComparison) Best() (CommunityResult, bool) {
	for _, r := range c.Results {
		if r.Profitable() {
			return r, true
		}
	}
	return CommunityResult{}, false
}

// SavingsEUR is the savings of the best profitable option, 0 otherwise.
func (c CommunityComparison) SavingsEUR() float64 {
	best, ok := c.Best()
	if !ok {
		return 0
	}
	return best.SavingsEUR
}
