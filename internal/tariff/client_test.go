package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

func product(brand string, energyNetCents, baseNetCentsYear float64) map[string]any {
	return map[string]any{
		"brandName":   brand,
		"productName": brand + " Classic",
		"calculatedProductEnergyCosts": map[string]any{
			"energyRateTotal": energyNetCents,
			"baseRate":        baseNetCentsYear,
		},
	}
}

type fakeCatalog struct {
	srv          *httptest.Server
	operators    string
	rates        any
	rateStatus   int
	pageHits     atomic.Int32
	rateRequests atomic.Int32
	// grid-operator requests that arrived without the landing page cookie
	missingCookie atomic.Int32
	lastPayload   map[string]any
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	fc := &fakeCatalog{
		operators:  `{"gridOperators":[{"id":42,"gridAreaId":"GA-7","name":"Wiener Netze GmbH"},{"id":1,"gridAreaId":"x","name":"Other"}]}`,
		rateStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/tarifkalkulator", func(w http.ResponseWriter, r *http.Request) {
		fc.pageHits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "j1", Path: "/"})
	})
	mux.HandleFunc("/rc/rate-calculator/grid-operators", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POWER", r.URL.Query().Get("energyType"))
		if cookie, err := r.Cookie("JSESSIONID"); err != nil || cookie.Value != "j1" {
			fc.missingCookie.Add(1)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, fc.operators)
	})
	mux.HandleFunc("/rc/rate-calculator/energy-type/POWER/rate", func(w http.ResponseWriter, r *http.Request) {
		fc.rateRequests.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "false", r.URL.Query().Get("isSmartMeter"))
		if cookie, err := r.Cookie("JSESSIONID"); assert.NoError(t, err) {
			assert.Equal(t, "j1", cookie.Value)
		}
		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fc.lastPayload = payload

		if fc.rateStatus != http.StatusOK {
			w.WriteHeader(fc.rateStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(fc.rates)
	})
	fc.srv = httptest.NewServer(mux)
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCatalog) client(t *testing.T) *Client {
	c, err := NewClientFromConfig(config.TariffConfig{
		BaseURL: fc.srv.URL + "/rc/",
		PageURL: fc.srv.URL + "/tarifkalkulator",
		TopN:    5,
		Timeout: 5 * time.Second,
	}, fetch.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}, nil)
	require.NoError(t, err)
	return c
}

func defaultQuery() Query {
	return Query{PostalCode: "1010", AnnualKWh: 3000, Supplier: "Wien Energie", EnergyPriceCtKWh: 30, MonthlyFeeEUR: 5}
}

func TestParseProduct(t *testing.T) {
	var p RatedProduct
	require.NoError(t, json.Unmarshal([]byte(`{
		"supplierName":"Supplier GmbH","productName":"Green Fix",
		"calculatedProductEnergyCosts":{"energyRateTotal":75000,"baseRate":3600},
		"productProperties":[{"propName":"CERTIFIED_GREEN_POWER"}]}`), &p))

	tariff, ok := ParseProduct(p, 3000, 1.2)
	require.True(t, ok)
	assert.Equal(t, "Supplier GmbH", tariff.Provider)
	assert.Equal(t, "Green Fix", tariff.Product)
	assert.InDelta(t, 30.0, tariff.EnergyPriceCtKWh, 1e-9)
	assert.InDelta(t, 3.6, tariff.MonthlyFeeEUR, 1e-9)
	assert.InDelta(t, 943.2, tariff.AnnualCostEUR, 1e-9)
	assert.True(t, tariff.Green)
	assert.Equal(t, models.SourceCatalog, tariff.Source)

	t.Run("dynamic products are skipped", func(t *testing.T) {
		p.RateZoningType = "COMPLEX"
		_, ok := ParseProduct(p, 3000, 1.2)
		assert.False(t, ok)
	})

	t.Run("zero cost is dropped", func(t *testing.T) {
		_, ok := ParseProduct(RatedProduct{BrandName: "Free"}, 3000, 1.2)
		assert.False(t, ok)
	})

	t.Run("unknown provider", func(t *testing.T) {
		var anon RatedProduct
		anon.Costs.BaseRate = 1200
		tariff, ok := ParseProduct(anon, 0, 1.2)
		require.True(t, ok)
		assert.Equal(t, "Unknown", tariff.Provider)
		assert.Zero(t, tariff.EnergyPriceCtKWh)
	})
}

func TestCompareSortsAndTruncates(t *testing.T) {
	fc := newFakeCatalog(t)
	complexProduct := product("Spot", 10000, 1000)
	complexProduct["rateZoningType"] = "COMPLEX"
	fc.rates = map[string]any{"ratedProducts": []any{
		product("F", 90000, 0),
		product("A", 60000, 0),
		complexProduct,
		product("C", 70000, 0),
		product("Zero", 0, 0),
		product("B", 65000, 0),
		product("E", 80000, 0),
		product("D", 75000, 0),
	}}

	cmp := fc.client(t).Compare(context.Background(), defaultQuery())

	assert.Equal(t, "Wiener Netze GmbH", cmp.GridOperator)
	require.Len(t, cmp.Alternatives, 5)
	var names []string
	for i, alt := range cmp.Alternatives {
		names = append(names, alt.Provider)
		if i > 0 {
			assert.LessOrEqual(t, cmp.Alternatives[i-1].AnnualCostEUR, alt.AnnualCostEUR)
		}
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, names)

	assert.Equal(t, "Wien Energie", cmp.Baseline.Provider)
	assert.Equal(t, models.SourceInvoice, cmp.Baseline.Source)
	assert.InDelta(t, 960, cmp.Baseline.AnnualCostEUR, 1e-9)
	assert.InDelta(t, 960-720, cmp.MaxSavingsEUR(), 1e-9)
	assert.Equal(t, int32(1), fc.pageHits.Load())
	assert.Zero(t, fc.missingCookie.Load())

	assert.Equal(t, "1010", fc.lastPayload["zipCode"])
	assert.Equal(t, float64(42), fc.lastPayload["gridOperatorId"])
	assert.Equal(t, "GA-7", fc.lastPayload["gridAreaId"])
	assert.Equal(t, "CLASSIC", fc.lastPayload["searchPriceModel"])
	meter := fc.lastPayload["firstMeterOptions"].(map[string]any)
	assert.Equal(t, float64(3000), meter["standardConsumption"])
	manual := fc.lastPayload["comparisonOptions"].(map[string]any)
	assert.Equal(t, true, manual["manualEntry"])
	assert.Equal(t, float64(30), manual["mainEnergyRate"])
	assert.Equal(t, float64(5), manual["mainBaseRate"])
}

func TestCompareReplaysLandingPageCookie(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.rates = []any{product("A", 60000, 1200)}
	cfg := config.TariffConfig{
		BaseURL: fc.srv.URL + "/rc/",
		PageURL: fc.srv.URL + "/tarifkalkulator",
		Timeout: 5 * time.Second,
	}
	policy := fetch.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}

	withoutJar := NewClient(cfg, fetch.New(&http.Client{Timeout: cfg.Timeout}, policy, nil), nil)
	cmp := withoutJar.Compare(context.Background(), defaultQuery())
	assert.Empty(t, cmp.Alternatives)
	assert.Equal(t, int32(1), fc.missingCookie.Load())

	c, err := NewClientFromConfig(cfg, policy, nil)
	require.NoError(t, err)
	cmp = c.Compare(context.Background(), defaultQuery())
	require.Len(t, cmp.Alternatives, 1)
	assert.Equal(t, "Wiener Netze GmbH", cmp.GridOperator)
	assert.Equal(t, int32(1), fc.missingCookie.Load(), "no further request without cookie")
}

func TestCompareAcceptsBareList(t *testing.T) {
	fc := newFakeCatalog(t)
	fc.rates = []any{product("A", 60000, 1200)}

	cmp := fc.client(t).Compare(context.Background(), defaultQuery())
	require.Len(t, cmp.Alternatives, 1)
}

func TestCompareNeverFails(t *testing.T) {
	t.Run("no operator", func(t *testing.T) {
		fc := newFakeCatalog(t)
		fc.operators = `{"gridOperators":[]}`

		c := fc.client(t)
		cmp := c.Compare(context.Background(), defaultQuery())
		assert.Empty(t, cmp.Alternatives)
		assert.InDelta(t, 960, cmp.Baseline.AnnualCostEUR, 1e-9)
		assert.Zero(t, fc.rateRequests.Load())

		_, err := c.ResolveGridOperator(context.Background(), "9999")
		var noOp *NoOperatorError
		require.ErrorAs(t, err, &noOp)
		assert.True(t, IsNoData(err))
	})

	t.Run("catalog down", func(t *testing.T) {
		fc := newFakeCatalog(t)
		fc.rateStatus = http.StatusServiceUnavailable

		cmp := fc.client(t).Compare(context.Background(), defaultQuery())
		assert.Empty(t, cmp.Alternatives)
		assert.Equal(t, "Wien Energie", cmp.Baseline.Provider)
		assert.Equal(t, int32(3), fc.rateRequests.Load())
	})

	t.Run("catalog rejects query", func(t *testing.T) {
		fc := newFakeCatalog(t)
		fc.rateStatus = http.StatusBadRequest

		cmp := fc.client(t).Compare(context.Background(), defaultQuery())
		assert.Empty(t, cmp.Alternatives)
		assert.Equal(t, int32(1), fc.rateRequests.Load())
	})
}

func TestTopN(t *testing.T) {
	in := []models.Tariff{{AnnualCostEUR: 3}, {AnnualCostEUR: 1}, {AnnualCostEUR: 0}, {AnnualCostEUR: 2}}
	out := TopN(in, 2)
	require.Len(t, out, 2)
	assert.InDelta(t, 1, out[0].AnnualCostEUR, 1e-9)
	assert.InDelta(t, 2, out[1].AnnualCostEUR, 1e-9)
	assert.InDelta(t, 3, in[0].AnnualCostEUR, 1e-9, "input is not reordered")
}
