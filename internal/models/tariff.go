package models

// Tariff sources
const (
	SourceInvoice = "invoice"
	SourceCatalog = "e-control"
)

// Tariff is one electricity product with gross prices.
type Tariff struct {
	Provider         string  `json:"provider"`
	Product          string  `json:"product"`
	EnergyPriceCtKWh float64 `json:"energy_price_ct_kwh"`
	MonthlyFeeEUR    float64 `json:"monthly_fee_eur"`
	AnnualCostEUR    float64 `json:"annual_cost_eur"`
	Green            bool    `json:"green"`
	Source           string  `json:"source"`
}

// TariffComparison is the current tariff next to the cheapest alternatives.
type TariffComparison struct {
	Baseline     Tariff   `json:"baseline"`
	Alternatives []Tariff `json:"alternatives"`
	PostalCode   string   `json:"postal_code"`
	AnnualKWh    float64  `json:"annual_kwh"`
	GridOperator string   `json:"grid_operator,omitempty"`
}

// Best returns the cheapest alternative, or false when there is none.
func (c TariffComparison) Best() (Tariff, bool) {
	if len(c.Alternatives) == 0 {
		return Tariff{}, false
	}
	best := c.Alternatives[0]
	for _, t := range c.Alternatives[1:] {
		if t.AnnualCostEUR < best.AnnualCostEUR {
			best = t
		}
	}
	return best, true
}

// MaxSavingsEUR is the yearly difference between the baseline and the best alternative.
func (c TariffComparison) MaxSavingsEUR() float64 {
	best, ok := c.Best()
	if !ok {
		return 0
	}
	return c.Baseline.AnnualCostEUR - best.AnnualCostEUR
}
