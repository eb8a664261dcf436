package models

import (
	"math"
	"sort"
	"time"
)

// MeteringPoint identifies one meter of a business partner at the portal.
type MeteringPoint struct {
	BusinessPartnerID string `json:"business_partner_id"`
	MeteringPointID   string `json:"metering_point_id"`
}

// ConsumptionReading represents a single quarter-hour reading
type ConsumptionReading struct {
	Timestamp time.Time `json:"timestamp"`
	KWh       float64   `json:"kwh"`
}

// ConsumptionSeries is an ordered set of readings for one metering point.
// All derived values are recomputed from Readings on every call.
type ConsumptionSeries struct {
	MeteringPointID string               `json:"metering_point_id"`
	From            time.Time            `json:"from"`
	To              time.Time            `json:"to"`
	Readings        []ConsumptionReading `json:"readings"`
}

// TotalKWh sums all readings.
func (s ConsumptionSeries) TotalKWh() float64 {
	var total float64
	for _, r := range s.Readings {
		total += r.KWh
	}
	return total
}

// Days is the number of whole days between From and To.
func (s ConsumptionSeries) Days() int {
	if s.From.IsZero() || s.To.IsZero() || !s.To.After(s.From) {
		return 0
	}
	return int(math.Floor(s.To.Sub(s.From).Hours() / 24))
}

// AnnualizedKWh projects the total to 365 days, 0 when the period is empty.
func (s ConsumptionSeries) AnnualizedKWh() float64 {
	days := s.Days()
	if days <= 0 {
		return 0
	}
	return s.TotalKWh() / float64(days) * 365
}

// BaselineLoadWatts estimates the standby load from the smallest quarter-hour value.
func (s ConsumptionSeries) BaselineLoadWatts() float64 {
	if len(s.Readings) == 0 {
		return 0
	}
	lowest := s.Readings[0].KWh
	for _, r := range s.Readings[1:] {
		if r.KWh < lowest {
			lowest = r.KWh
		}
	}
	return lowest * 4 * 1000
}

// PeakLoadWatts is the largest quarter-hour value as average power.
func (s ConsumptionSeries) PeakLoadWatts() float64 {
	var highest float64
	for _, r := range s.Readings {
		if r.KWh > highest {
			highest = r.KWh
		}
	}
	return highest * 4 * 1000
}

// Sorted returns the readings in chronological order without touching the receiver.
func (s ConsumptionSeries) Sorted() []ConsumptionReading {
	out := make([]ConsumptionReading, len(s.Readings))
	copy(out, s.Readings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
