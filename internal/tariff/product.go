package tariff

import (
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// RatedProduct is the subset of a catalog product we read.
type RatedProduct struct {
	BrandName      string `json:"brandName"`
	SupplierName   string `json:"supplierName"`
	ProductName    string `json:"productName"`
	RateZoningType string `json:"rateZoningType"`
	Costs          struct {
		EnergyRateTotal float64 `json:"energyRateTotal"`
		BaseRate        float64 `json:"baseRate"`
	} `json:"calculatedProductEnergyCosts"`
	Properties []struct {
		Name string `json:"propName"`
	} `json:"productProperties"`
}

// ParseProduct converts a catalog product into a gross tariff. Dynamic
// (COMPLEX) products and products without a positive annual cost are dropped.
//
// energyRateTotal is net cents for the whole consumption, baseRate is net
// cents per year.
func ParseProduct(p RatedProduct, annualKWh, grossFactor float64) (models.Tariff, bool) {
	if p.RateZoningType == "COMPLEX" {
		return models.Tariff{}, false
	}

	provider := p.BrandName
	if provider == "" {
		provider = p.SupplierName
	}
	if provider == "" {
		provider = "Unknown"
	}

	var price float64
	if annualKWh > 0 && p.Costs.EnergyRateTotal > 0 {
		price = p.Costs.EnergyRateTotal / annualKWh * grossFactor
	}
	fee := p.Costs.BaseRate / 100 / 12 * grossFactor
	annual := annualKWh*price/100 + fee*12
	if annual <= 0 {
		return models.Tariff{}, false
	}

	green := false
	for _, prop := range p.Properties {
		if prop.Name == "CERTIFIED_GREEN_POWER" {
			green = true
			break
		}
	}

	return models.Tariff{
		Provider:         provider,
		Product:          p.ProductName,
		EnergyPriceCtKWh: round2(price),
		MonthlyFeeEUR:    round2(fee),
		AnnualCostEUR:    round2(annual),
		Green:            green,
		Source:           models.SourceCatalog,
	}, true
}
