package tariff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// DefaultGrossFactor converts net catalog prices to gross (20% VAT).
const DefaultGrossFactor = 1.2

// NoOperatorError means the catalog knows no grid operator for a postal code.
type NoOperatorError struct {
	PostalCode string
}

func (e *NoOperatorError) Error() string {
	return fmt.Sprintf("no grid operator found for postal code %s", e.PostalCode)
}

func (e *NoOperatorError) Unwrap() error {
	return models.ErrNoData
}

// GridOperator identifies the grid area a rate query is priced for. The ids
// are kept as the catalog sends them and echoed back verbatim.
type GridOperator struct {
	ID         json.RawMessage `json:"id"`
	GridAreaID json.RawMessage `json:"gridAreaId"`
	Name       string          `json:"name"`
}

// RateQuery is one request against the rate calculator.
type RateQuery struct {
	PostalCode       string
	AnnualKWh        float64
	EnergyPriceCtKWh float64
	MonthlyFeeEUR    float64
	Operator         GridOperator
}

// Query is the input of a full comparison.
type Query struct {
	PostalCode       string
	AnnualKWh        float64
	Supplier         string
	EnergyPriceCtKWh float64
	MonthlyFeeEUR    float64
}

// Client talks to the public tariff calculator.
type Client struct {
	fetcher     *fetch.Fetcher
	baseURL     string
	pageURL     string
	topN        int
	grossFactor float64
	logger      logging.Logger
}

// NewClient creates a catalog client. The fetcher's HTTP client should carry
// a cookie jar so the session cookie from the landing page is replayed.
func NewClient(cfg config.TariffConfig, fetcher *fetch.Fetcher, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	factor := cfg.GrossVAT
	if factor <= 0 {
		factor = DefaultGrossFactor
	}
	return &Client{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		pageURL:     cfg.PageURL,
		topN:        topN,
		grossFactor: factor,
		logger:      logger,
	}
}

// NewClientFromConfig creates a catalog client over its own cookie-carrying
// HTTP client, so the landing page session is replayed on the API calls.
func NewClientFromConfig(cfg config.TariffConfig, policy fetch.Policy, logger logging.Logger) (*Client, error) {
	hc, err := fetch.NewSessionClient(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, fetch.New(hc, policy, logger), logger), nil
}

// primeSession loads the landing page once to obtain session cookies. Best effort.
func (c *Client) primeSession(ctx context.Context) {
	if c.pageURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL, nil)
	if err != nil {
		return
	}
	resp, err := c.fetcher.Client().Do(req)
	if err != nil {
		c.logger.WithError(err).Debug("tariff landing page not reachable")
		return
	}
	resp.Body.Close()
}

// ResolveGridOperator returns the first grid operator serving the postal code.
func (c *Client) ResolveGridOperator(ctx context.Context, postalCode string) (GridOperator, error) {
	resp, err := c.fetcher.Get(ctx, c.baseURL+"/rate-calculator/grid-operators", fetch.Options{
		Query: url.Values{"zipCode": {postalCode}, "energyType": {"POWER"}},
	})
	if err != nil {
		return GridOperator{}, fmt.Errorf("resolve grid operator: %w", err)
	}
	var body struct {
		GridOperators []GridOperator `json:"gridOperators"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return GridOperator{}, err
	}
	if len(body.GridOperators) == 0 {
		return GridOperator{}, &NoOperatorError{PostalCode: postalCode}
	}
	op := body.GridOperators[0]
	c.logger.WithFields(logging.Fields{
		"postal_code":   postalCode,
		"grid_operator": op.Name,
	}).Info("resolved grid operator")
	return op, nil
}

type ratePayload struct {
	CustomerGroup             string            `json:"customerGroup"`
	EnergyType                string            `json:"energyType"`
	ZipCode                   string            `json:"zipCode"`
	GridOperatorID            json.RawMessage   `json:"gridOperatorId"`
	GridAreaID                json.RawMessage   `json:"gridAreaId"`
	MoveHome                  bool              `json:"moveHome"`
	IncludeSwitchingDiscounts bool              `json:"includeSwitchingDiscounts"`
	FirstMeterOptions         firstMeterOptions `json:"firstMeterOptions"`
	ComparisonOptions         comparisonOptions `json:"comparisonOptions"`
	PriceView                 string            `json:"priceView"`
	ReferencePeriod           string            `json:"referencePeriod"`
	SearchPriceModel          string            `json:"searchPriceModel"`
}

type firstMeterOptions struct {
	StandardConsumption      int                      `json:"standardConsumption"`
	SmartMeterRequestOptions smartMeterRequestOptions `json:"smartMeterRequestOptions"`
}

type smartMeterRequestOptions struct {
	SmartMeterSearch bool `json:"smartMeterSearch"`
}

type comparisonOptions struct {
	ManualEntry    bool    `json:"manualEntry"`
	MainBaseRate   float64 `json:"mainBaseRate"`
	MainEnergyRate float64 `json:"mainEnergyRate"`
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// FetchRates posts the rate query and returns the parsed fixed-price products.
func (c *Client) FetchRates(ctx context.Context, q RateQuery) ([]models.Tariff, error) {
	payload := ratePayload{
		CustomerGroup:             "HOME",
		EnergyType:                "POWER",
		ZipCode:                   q.PostalCode,
		GridOperatorID:            orNull(q.Operator.ID),
		GridAreaID:                orNull(q.Operator.GridAreaID),
		IncludeSwitchingDiscounts: true,
		FirstMeterOptions: firstMeterOptions{
			StandardConsumption: int(q.AnnualKWh),
		},
		ComparisonOptions: comparisonOptions{
			ManualEntry:    true,
			MainBaseRate:   q.MonthlyFeeEUR,
			MainEnergyRate: q.EnergyPriceCtKWh,
		},
		PriceView:        "EUR_PER_YEAR",
		ReferencePeriod:  "ONE_YEAR",
		SearchPriceModel: "CLASSIC",
	}

	resp, err := c.fetcher.Post(ctx, c.baseURL+"/rate-calculator/energy-type/POWER/rate", fetch.Options{
		Query: url.Values{"isSmartMeter": {"false"}},
		JSON:  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}

	products, err := decodeProducts(resp.Body)
	if err != nil {
		return nil, err
	}

	tariffs := make([]models.Tariff, 0, len(products))
	for _, p := range products {
		if t, ok := ParseProduct(p, q.AnnualKWh, c.grossFactor); ok {
			tariffs = append(tariffs, t)
		}
	}
	c.logger.WithFields(logging.Fields{
		"products": len(products),
		"usable":   len(tariffs),
	}).Info("fetched tariff catalog")
	return tariffs, nil
}

func decodeProducts(body []byte) ([]RatedProduct, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var products []RatedProduct
		if err := json.Unmarshal(body, &products); err != nil {
			return nil, fmt.Errorf("decode rated products: %w", err)
		}
		return products, nil
	}
	var wrapped struct {
		RatedProducts []RatedProduct `json:"ratedProducts"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode rated products: %w", err)
	}
	return wrapped.RatedProducts, nil
}

// Baseline builds the current tariff from invoice values.
func Baseline(q Query) models.Tariff {
	return models.Tariff{
		Provider:         q.Supplier,
		Product:          "Current tariff",
		EnergyPriceCtKWh: q.EnergyPriceCtKWh,
		MonthlyFeeEUR:    q.MonthlyFeeEUR,
		AnnualCostEUR:    q.AnnualKWh*q.EnergyPriceCtKWh/100 + q.MonthlyFeeEUR*12,
		Source:           models.SourceInvoice,
	}
}

// Compare never fails: any lookup problem leaves only the baseline.
func (c *Client) Compare(ctx context.Context, q Query) models.TariffComparison {
	comparison := models.TariffComparison{
		Baseline:   Baseline(q),
		PostalCode: q.PostalCode,
		AnnualKWh:  q.AnnualKWh,
	}
	log := c.logger.WithFields(logging.Fields{"postal_code": q.PostalCode, "annual_kwh": q.AnnualKWh})

	c.primeSession(ctx)
	op, err := c.ResolveGridOperator(ctx, q.PostalCode)
	if err != nil {
		if IsNoData(err) {
			log.WithError(err).Info("tariff comparison limited to current tariff")
		} else {
			log.WithError(err).Warn("tariff comparison limited to current tariff")
		}
		return comparison
	}
	comparison.GridOperator = op.Name

	tariffs, err := c.FetchRates(ctx, RateQuery{
		PostalCode:       q.PostalCode,
		AnnualKWh:        q.AnnualKWh,
		EnergyPriceCtKWh: q.EnergyPriceCtKWh,
		MonthlyFeeEUR:    q.MonthlyFeeEUR,
		Operator:         op,
	})
	if err != nil {
		log.WithError(err).Warn("tariff comparison limited to current tariff")
		return comparison
	}

	comparison.Alternatives = TopN(tariffs, c.topN)
	return comparison
}

// TopN sorts by annual cost ascending and keeps at most n entries.
func TopN(tariffs []models.Tariff, n int) []models.Tariff {
	out := make([]models.Tariff, 0, len(tariffs))
	for _, t := range tariffs {
		if t.AnnualCostEUR > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnnualCostEUR < out[j].AnnualCostEUR
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// IsNoData reports whether err means the catalog had nothing for the input.
func IsNoData(err error) bool {
	return errors.Is(err, models.ErrNoData)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
