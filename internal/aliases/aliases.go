// Package aliases resolves loosely named arguments. Language models and
// invoice extractors vary their field names, so every logical field has an
// ordered list of accepted keys and the first present key wins.
package aliases

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Keys is an ordered list of accepted names for one field.
type Keys []string

// Tool argument names.
var (
	FilePath       = Keys{"file_path", "path", "invoice_path"}
	Email          = Keys{"email", "username"}
	Password       = Keys{"password"}
	MeteringPoint  = Keys{"zaehlpunkt", "metering_point"}
	PostalCode     = Keys{"plz", "postal_code", "zip"}
	AnnualKWh      = Keys{"jahresverbrauch_kwh", "annual_consumption_kwh", "verbrauch_kwh"}
	Supplier       = Keys{"aktueller_lieferant", "lieferant", "supplier"}
	TariffPrice    = Keys{"aktueller_energiepreis", "energiepreis", "energiepreis_ct_kwh"}
	CommunityPrice = Keys{"aktueller_energiepreis_ct_kwh", "energiepreis_ct_kwh", "energiepreis", "aktueller_energiepreis"}
	MonthlyFee     = Keys{"aktuelle_grundgebuehr", "grundgebuehr", "grundgebuehr_eur_monat"}
)

// Invoice field names as returned by extraction models.
var (
	InvoiceSupplier = Keys{"lieferant", "supplier", "anbieter", "versorger", "stromlieferant"}
	InvoiceProduct  = Keys{"tarif_name", "tarif", "tarifname", "tariff", "produkt", "product"}
	InvoicePrice    = Keys{
		"energiepreis_ct_kwh", "energiepreis", "preis_ct_kwh", "preis",
		"arbeitspreis", "arbeitspreis_ct_kwh", "cent_pro_kwh", "ct_kwh",
		"energy_price", "energy_price_ct_kwh", "strompreis",
	}
	InvoiceFee = Keys{
		"grundgebuehr_eur_monat", "grundgebuehr", "grundgebühr", "grundpauschale",
		"base_fee", "monthly_fee_eur", "pauschale", "grundpreis",
	}
	InvoiceKWh = Keys{
		"jahresverbrauch_kwh", "jahresverbrauch", "verbrauch_kwh", "verbrauch",
		"annual_consumption", "annual_kwh", "consumption", "kwh",
	}
	InvoicePostalCode    = Keys{"plz", "postleitzahl", "zip", "postal_code"}
	InvoiceMeteringPoint = Keys{"zaehlpunkt", "zaehlpunktnummer", "metering_point_id", "meter_id", "zaehler"}
	InvoiceGridCosts     = Keys{"netzkosten_eur_jahr", "netzkosten", "netzgebühr", "netzentgelt", "grid_costs_eur_year"}
)

// Lookup returns the value of the first key present with a non-null value.
func (k Keys) Lookup(args map[string]any) (any, bool) {
	for _, key := range k {
		if v, ok := args[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first key that holds a non-empty string or a number.
func (k Keys) String(args map[string]any) (string, bool) {
	for _, key := range k {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := toString(v); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Float returns the first key that holds a usable number. Strings such as
// "31,35" or "19.68 ct" are accepted.
func (k Keys) Float(args map[string]any) (float64, bool) {
	for _, key := range k {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := ToFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// StringOr is String with a fallback.
func (k Keys) StringOr(args map[string]any, fallback string) string {
	if s, ok := k.String(args); ok {
		return s
	}
	return fallback
}

// FloatOr is Float with a fallback.
func (k Keys) FloatOr(args map[string]any, fallback float64) float64 {
	if f, ok := k.Float(args); ok {
		return f
	}
	return fallback
}

// Normalize lowercases keys and replaces spaces with underscores.
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")] = v
	}
	return out
}

// ToFloat converts JSON-ish numbers and numeric strings.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumeric(n)
	}
	return 0, false
}

var numericReplacer = strings.NewReplacer(",", ".", "€", "", "EUR", "", "ct", "", "kWh", "", " ", "")

func parseNumeric(s string) (float64, bool) {
	s = numericReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	}
	return "", false
}
