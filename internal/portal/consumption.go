package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// DefaultWindow is the look-back used when no start is given.
const DefaultWindow = 90 * 24 * time.Hour

// Reader reads metering points and quarter-hour series through an authenticated Client.
type Reader struct {
	client *Client
	logger logging.Logger
	now    func() time.Time
}

// NewReader wraps client.
func NewReader(client *Client) *Reader {
	return &Reader{client: client, logger: client.logger, now: time.Now}
}

type contract struct {
	BusinessPartner string `json:"geschaeftspartner"`
	MeteringPoints  []struct {
		Number string `json:"zaehlpunktnummer"`
	} `json:"zaehlpunkte"`
}

// ListMeteringPoints returns every metering point of the account.
func (r *Reader) ListMeteringPoints(ctx context.Context) ([]models.MeteringPoint, error) {
	var contracts []contract
	if err := r.client.GetJSON(ctx, r.client.endpoints.APIURL, "zaehlpunkte", nil, &contracts); err != nil {
		return nil, err
	}
	var points []models.MeteringPoint
	for _, c := range contracts {
		for _, mp := range c.MeteringPoints {
			if mp.Number == "" {
				continue
			}
			points = append(points, models.MeteringPoint{
				BusinessPartnerID: c.BusinessPartner,
				MeteringPointID:   mp.Number,
			})
		}
	}
	if len(points) == 0 {
		return nil, ErrNoMeteringPoint
	}
	return points, nil
}

// SelectMeteringPoint returns the point with the wanted id, or the first one.
func SelectMeteringPoint(points []models.MeteringPoint, wanted string) (models.MeteringPoint, error) {
	if len(points) == 0 {
		return models.MeteringPoint{}, ErrNoMeteringPoint
	}
	if wanted != "" {
		for _, p := range points {
			if p.MeteringPointID == wanted {
				return p, nil
			}
		}
	}
	return points[0], nil
}

// FetchSeries fetches quarter-hour readings. A zero to means now and a zero
// from means 90 days before to.
func (r *Reader) FetchSeries(ctx context.Context, mp models.MeteringPoint, from, to time.Time) (models.ConsumptionSeries, error) {
	if to.IsZero() {
		to = r.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}

	query := url.Values{
		"geschaeftspartner": {mp.BusinessPartnerID},
		"zaehlpunktnummer":  {mp.MeteringPointID},
		"rolle":             {"V002"},
		"zeitpunktVon":      {from.UTC().Format("2006-01-02") + "T00:00:00.000Z"},
		"zeitpunktBis":      {to.UTC().Format("2006-01-02") + "T23:59:59.999Z"},
		"aggregat":          {"NONE"},
	}

	var raw json.RawMessage
	if err := r.client.GetJSON(ctx, r.client.endpoints.SeriesURL, "user/messwerte/bewegungsdaten", query, &raw); err != nil {
		return models.ConsumptionSeries{}, err
	}

	readings, skipped, err := ParseReadings(raw)
	if err != nil {
		return models.ConsumptionSeries{}, &ProtocolShapeError{Step: "series", Detail: err.Error()}
	}
	r.logger.WithFields(logging.Fields{
		"metering_point": mp.MeteringPointID,
		"readings":       len(readings),
		"skipped":        skipped,
	}).Info("fetched consumption series")
	if skipped > 0 {
		r.logger.WithField("skipped", skipped).Debug("dropped malformed readings")
	}

	return models.ConsumptionSeries{
		MeteringPointID: mp.MeteringPointID,
		From:            from,
		To:              to,
		Readings:        readings,
	}, nil
}

// FetchConsumption lists the metering points, picks the wanted one and fetches the default window.
func (r *Reader) FetchConsumption(ctx context.Context, wanted string) (models.ConsumptionSeries, error) {
	points, err := r.ListMeteringPoints(ctx)
	if err != nil {
		return models.ConsumptionSeries{}, err
	}
	mp, err := SelectMeteringPoint(points, wanted)
	if err != nil {
		return models.ConsumptionSeries{}, err
	}
	return r.FetchSeries(ctx, mp, time.Time{}, time.Time{})
}

type rawValue struct {
	From  string          `json:"zeitpunktVon"`
	Value json.RawMessage `json:"wert"`
}

type rawDay struct {
	Values  []json.RawMessage `json:"values"`
	WPIList []json.RawMessage `json:"wpiList"`
}

// ParseReadings accepts {"values":[...]} or a list of days each holding
// "values" or "wpiList". Entries without a timestamp or numeric value are
// skipped and counted.
func ParseReadings(data []byte) ([]models.ConsumptionReading, int, error) {
	trimmed := strings.TrimSpace(string(data))
	var entries []json.RawMessage

	switch {
	case strings.HasPrefix(trimmed, "{"):
		var obj struct {
			Values []json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, 0, fmt.Errorf("decode series object: %w", err)
		}
		entries = obj.Values
	case strings.HasPrefix(trimmed, "["):
		var days []rawDay
		if err := json.Unmarshal(data, &days); err != nil {
			return nil, 0, fmt.Errorf("decode series list: %w", err)
		}
		for _, d := range days {
			if d.Values != nil {
				entries = append(entries, d.Values...)
			} else {
				entries = append(entries, d.WPIList...)
			}
		}
	case trimmed == "" || trimmed == "null":
		return nil, 0, nil
	default:
		return nil, 0, fmt.Errorf("series is neither object nor list")
	}

	readings := make([]models.ConsumptionReading, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		reading, ok := parseReading(entry)
		if !ok {
			skipped++
			continue
		}
		readings = append(readings, reading)
	}
	return readings, skipped, nil
}

func parseReading(entry json.RawMessage) (models.ConsumptionReading, bool) {
	var v rawValue
	if err := json.Unmarshal(entry, &v); err != nil || v.From == "" || len(v.Value) == 0 {
		return models.ConsumptionReading{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, v.From)
	if err != nil {
		return models.ConsumptionReading{}, false
	}
	kwh, ok := parseNumber(v.Value)
	if !ok {
		return models.ConsumptionReading{}, false
	}
	return models.ConsumptionReading{Timestamp: ts, KWh: kwh}, true
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	if strings.TrimSpace(string(raw)) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
