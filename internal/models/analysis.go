package models

import "time"

// Progress statuses
const (
	StatusStarted  = "started"
	StatusDone     = "done"
	StatusError    = "error"
	StatusSkipped  = "skipped"
	StatusComplete = "complete"
)

// ProgressEvent reports a pipeline step transition.
type ProgressEvent struct {
	RunID      string    `json:"run_id,omitempty"`
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Report     string    `json:"report,omitempty"`
	AnalysisID string    `json:"analysis_id,omitempty"`
	Time       time.Time `json:"time"`
}

// StepCount is the number of times a step ended in a status within a flush window.
type StepCount struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// AnalysisRequest asks the worker to analyze an invoice file.
type AnalysisRequest struct {
	ID          string       `json:"id"`
	InvoicePath string       `json:"invoice_path"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// Analysis is the persisted summary of one completed run.
type Analysis struct {
	ID                  string               `json:"id"`
	CreatedAt           time.Time            `json:"created_at"`
	Invoice             Invoice              `json:"invoice"`
	EffectiveKWh        float64              `json:"effective_kwh"`
	CurrentCostEUR      float64              `json:"current_cost_eur"`
	Series              *ConsumptionSeries   `json:"series,omitempty"`
	Tariffs             *TariffComparison    `json:"tariffs,omitempty"`
	Community           *CommunityComparison `json:"community,omitempty"`
	TariffSavingsEUR    float64              `json:"tariff_savings_eur"`
	CommunitySavingsEUR float64              `json:"community_savings_eur"`
	TotalSavingsEUR     float64              `json:"total_savings_eur"`
	Report              string               `json:"report"`
}

// EffectiveKWh picks the meter projection when it is positive, else the invoice value.
func EffectiveKWh(inv Invoice, series *ConsumptionSeries) float64 {
	if series != nil {
		if projected := series.AnnualizedKWh(); projected > 0 {
			return projected
		}
	}
	return inv.AnnualKWh
}
