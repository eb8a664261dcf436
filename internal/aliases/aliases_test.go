package aliases

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstKeyWins(t *testing.T) {
	args := map[string]any{
		"energiepreis_ct_kwh":    21.0,
		"energiepreis":           19.5,
		"aktueller_energiepreis": nil,
	}
	price, ok := TariffPrice.Float(args)
	assert.True(t, ok)
	assert.InDelta(t, 19.5, price, 1e-9, "energiepreis precedes energiepreis_ct_kwh")

	price, ok = CommunityPrice.Float(args)
	assert.True(t, ok)
	assert.InDelta(t, 21, price, 1e-9, "energiepreis_ct_kwh precedes energiepreis for communities")
}

func TestFloatConversions(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(3.5), 3.5, true},
		{3, 3, true},
		{json.Number("3200"), 3200, true},
		{"31,35", 31.35, true},
		{"19.68 ct", 19.68, true},
		{"12,00 €", 12, true},
		{"n/a", 0, false},
		{"", 0, false},
		{true, 0, false},
	}
	for _, tc := range cases {
		got, ok := ToFloat(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, "%v", tc.in)
	}
}

func TestFallbacks(t *testing.T) {
	args := map[string]any{"plz": "", "zip": 1010.0, "lieferant": "Wien Energie"}

	assert.Equal(t, "1010", PostalCode.StringOr(args, "9999"), "empty strings are skipped")
	assert.Equal(t, "Wien Energie", Supplier.StringOr(args, "x"))
	assert.Equal(t, "fallback", FilePath.StringOr(args, "fallback"))
	assert.InDelta(t, 7.5, MonthlyFee.FloatOr(args, 7.5), 1e-9)

	_, ok := Email.Lookup(args)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	n := Normalize(map[string]any{"Tarif Name": "Optima", " PLZ ": "1010"})
	assert.Equal(t, "Optima", n["tarif_name"])
	assert.Equal(t, "1010", n["plz"])
}
