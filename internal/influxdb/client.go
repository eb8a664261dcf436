package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// Measurements written by the client.
const (
	MeasurementAnalysis    = "energy_analysis"
	MeasurementConsumption = "energy_consumption"
	MeasurementStepCounts  = "pipeline_step_counts"
)

// pointWriter is the subset of api.WriteAPIBlocking the client uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Client represents an InfluxDB v2 client
type Client struct {
	client influxdb2.Client
	writer pointWriter
	logger logging.Logger
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg config.InfluxDBConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB at %s: %w", cfg.URL, err)
	}

	logger.WithFields(logging.Fields{"url": cfg.URL, "org": cfg.Org, "bucket": cfg.Bucket}).Info("connected to InfluxDB")
	return &Client{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}, nil
}

func newWithWriter(w pointWriter) *Client {
	return &Client{writer: w, logger: logging.Discard()}
}

// PersistAnalysis writes the summary of one analysis and, when present, its
// meter readings. The analysis id is generated when empty and returned.
func (c *Client) PersistAnalysis(ctx context.Context, a models.Analysis) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	at := a.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tags := map[string]string{
		"analysis_id": a.ID,
		"supplier":    a.Invoice.Supplier,
		"postal_code": a.Invoice.PostalCode,
	}
	fields := map[string]interface{}{
		"effective_kwh":         a.EffectiveKWh,
		"energy_price_ct_kwh":   a.Invoice.EnergyPriceCtKWh,
		"monthly_fee_eur":       a.Invoice.MonthlyFeeEUR,
		"current_cost_eur":      a.CurrentCostEUR,
		"tariff_savings_eur":    a.TariffSavingsEUR,
		"community_savings_eur": a.CommunitySavingsEUR,
		"total_savings_eur":     a.TotalSavingsEUR,
		"report":                a.Report,
	}
	if a.Tariffs != nil {
		tags["grid_operator"] = a.Tariffs.GridOperator
		if best, ok := a.Tariffs.Best(); ok {
			fields["best_tariff"] = best.Provider + " " + best.Product
			fields["best_tariff_cost_eur"] = best.AnnualCostEUR
		}
	}
	if a.Community != nil {
		if best, ok := a.Community.Best(); ok {
			fields["best_community"] = best.Option.Name
			fields["community_amortization_months"] = best.AmortizationMonths
		}
	}

	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	if err := c.writer.WritePoint(ctx, write.NewPoint(MeasurementAnalysis, tags, fields, at)); err != nil {
		return "", fmt.Errorf("write analysis %s: %w", a.ID, err)
	}

	if a.Series != nil && len(a.Series.Readings) > 0 {
		if err := c.WriteReadings(ctx, a.ID, *a.Series); err != nil {
			return a.ID, err
		}
	}

	c.logger.WithFields(logging.Fields{"analysis_id": a.ID, "total_savings_eur": a.TotalSavingsEUR}).Info("analysis persisted")
	return a.ID, nil
}

// WriteReadings writes quarter-hour readings tagged with their metering point.
func (c *Client) WriteReadings(ctx context.Context, analysisID string, series models.ConsumptionSeries) error {
	points := make([]*write.Point, 0, len(series.Readings))
	for _, r := range series.Readings {
		points = append(points, write.NewPoint(
			MeasurementConsumption,
			map[string]string{
				"metering_point_id": series.MeteringPointID,
				"analysis_id":       analysisID,
			},
			map[string]interface{}{
				"consumption_kwh": r.KWh,
			},
			r.Timestamp,
		))
	}
	if len(points) == 0 {
		return nil
	}
	if err := c.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d readings: %w", len(points), err)
	}
	return nil
}

// WriteStepCounts writes aggregated pipeline step outcomes
func (c *Client) WriteStepCounts(ctx context.Context, counts []models.StepCount, timestamp time.Time) error {
	if len(counts) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(counts))
	for _, count := range counts {
		points = append(points, write.NewPoint(
			MeasurementStepCounts,
			map[string]string{
				"step":   count.Step,
				"status": count.Status,
			},
			map[string]interface{}{
				"count": count.Count,
			},
			timestamp,
		))
	}
	if err := c.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write step counts: %w", err)
	}
	return nil
}

// Close closes the InfluxDB client
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
