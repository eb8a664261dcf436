package models

// Invoice holds the fields extracted from a household electricity bill.
// Prices are gross (VAT included).
type Invoice struct {
	Supplier         string   `json:"supplier"`
	Product          string   `json:"product,omitempty"`
	EnergyPriceCtKWh float64  `json:"energy_price_ct_kwh"`
	MonthlyFeeEUR    float64  `json:"monthly_fee_eur"`
	AnnualKWh        float64  `json:"annual_kwh"`
	PostalCode       string   `json:"postal_code"`
	MeteringPointID  string   `json:"metering_point_id,omitempty"`
	GridCostsEUR     *float64 `json:"grid_costs_eur_year,omitempty"`
}

// AnnualCostEUR is the energy plus fee cost for the given consumption.
func (i Invoice) AnnualCostEUR(kwh float64) float64 {
	return kwh*i.EnergyPriceCtKWh/100 + i.MonthlyFeeEUR*12
}

// Credentials for the smart meter portal. Never logged or persisted.
type Credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	MeteringPointID string `json:"metering_point_id,omitempty"`
}

// Empty reports whether no usable login was given.
func (c *Credentials) Empty() bool {
	return c == nil || c.Email == "" || c.Password == ""
}
