package invoice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/aliases"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// UnknownSupplier is used when no supplier name was found.
const UnknownSupplier = "Unknown"

// ParseJSONReply finds a JSON object in a model reply: the whole text, then
// any fenced code block, then the span from the first '{' to the last '}'.
func ParseJSONReply(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	var out map[string]any
	if json.Unmarshal([]byte(text), &out) == nil && out != nil {
		return out, nil
	}

	if strings.Contains(text, "```") {
		for _, block := range strings.Split(text, "```") {
			block = strings.TrimSpace(block)
			block = strings.TrimSpace(strings.TrimPrefix(block, "json"))
			out = nil
			if json.Unmarshal([]byte(block), &out) == nil && out != nil {
				return out, nil
			}
		}
	}

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start != -1 && end > start {
		out = nil
		if json.Unmarshal([]byte(text[start:end+1]), &out) == nil && out != nil {
			return out, nil
		}
	}

	if len(text) > 200 {
		text = text[:200]
	}
	return nil, fmt.Errorf("no JSON object in model reply: %q", text)
}

// Normalize maps loosely named fields onto an Invoice.
func Normalize(raw map[string]any) models.Invoice {
	fields := aliases.Normalize(raw)

	inv := models.Invoice{
		Supplier:         aliases.InvoiceSupplier.StringOr(fields, UnknownSupplier),
		Product:          aliases.InvoiceProduct.StringOr(fields, ""),
		EnergyPriceCtKWh: aliases.InvoicePrice.FloatOr(fields, 0),
		MonthlyFeeEUR:    aliases.InvoiceFee.FloatOr(fields, 0),
		AnnualKWh:        aliases.InvoiceKWh.FloatOr(fields, 0),
		PostalCode:       aliases.InvoicePostalCode.StringOr(fields, ""),
		MeteringPointID:  aliases.InvoiceMeteringPoint.StringOr(fields, ""),
	}
	if grid, ok := aliases.InvoiceGridCosts.Float(fields); ok && grid > 0 {
		inv.GridCostsEUR = &grid
	}
	return inv
}
