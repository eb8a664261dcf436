package tools

import (
	"sort"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// State is the run state: the last structured result of every tool, keyed
// by tool name. It belongs to the goroutine driving one run and is not
// safe for concurrent use.
type State struct {
	values map[string]any
}

// NewState returns an empty state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Set stores v under name.
func (s *State) Set(name string, v any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[name] = v
}

// Get returns the value stored under name.
func (s *State) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names lists the stored results in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len is the number of stored results.
func (s *State) Len() int {
	return len(s.values)
}

// Invoice returns the extracted invoice, if the invoice step succeeded.
func (s *State) Invoice() (models.Invoice, bool) {
	v, ok := s.values[FetchInvoice].(models.Invoice)
	return v, ok
}

// Series returns a copy of the fetched smart meter series.
func (s *State) Series() (*models.ConsumptionSeries, bool) {
	v, ok := s.values[FetchConsumption].(models.ConsumptionSeries)
	if !ok {
		return nil, false
	}
	return &v, true
}

// Tariffs returns a copy of the tariff comparison.
func (s *State) Tariffs() (*models.TariffComparison, bool) {
	v, ok := s.values[CompareTariffs].(models.TariffComparison)
	if !ok {
		return nil, false
	}
	return &v, true
}

// Community returns a copy of the energy community comparison.
func (s *State) Community() (*models.CommunityComparison, bool) {
	v, ok := s.values[ComputeCommunityAdvantage].(models.CommunityComparison)
	if !ok {
		return nil, false
	}
	return &v, true
}

// Report returns the last generated report text.
func (s *State) Report() (string, bool) {
	v, ok := s.values[GenerateReport].(string)
	return v, ok
}

// EffectiveKWh is the meter projection if positive, else the invoice consumption.
func (s *State) EffectiveKWh() float64 {
	inv, _ := s.Invoice()
	series, _ := s.Series()
	return models.EffectiveKWh(inv, series)
}
