package community

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// SevenEnergy is the built-in community offer: 15.15 ct/kWh gross covering
// half the consumption, with a one-time deposit of 100 EUR.
var SevenEnergy = models.CommunityOption{
	Name:           "7Energy",
	PriceCtKWh:     15.15,
	SupplyShare:    0.5,
	OneTimeCostEUR: 100,
	URL:            "https://www.7energy.at",
	Region:         "AT",
}

// DefaultCatalog returns the built-in options.
func DefaultCatalog() []models.CommunityOption {
	return []models.CommunityOption{SevenEnergy}
}

type catalogFile struct {
	Options []models.CommunityOption `koanf:"options"`
}

// LoadCatalog reads options from a YAML file:
//
//	options:
//	  - name: 7Energy
//	    price_ct_kwh: 15.15
//	    supply_share: 0.5
//	    one_time_cost_eur: 100
//
// An empty path or a missing file yields the built-in catalog.
func LoadCatalog(path string) ([]models.CommunityOption, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultCatalog(), nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load community catalog %s: %w", path, err)
	}
	var cf catalogFile
	if err := k.Unmarshal("", &cf); err != nil {
		return nil, fmt.Errorf("decode community catalog %s: %w", path, err)
	}

	options := make([]models.CommunityOption, 0, len(cf.Options))
	for i, o := range cf.Options {
		if o.Name == "" {
			return nil, fmt.Errorf("community catalog %s: option %d has no name", path, i+1)
		}
		if o.SupplyShare < 0 || o.SupplyShare > 1 {
			return nil, fmt.Errorf("community catalog %s: %s supply_share must be within 0..1", path, o.Name)
		}
		options = append(options, o)
	}
	if len(options) == 0 {
		return DefaultCatalog(), nil
	}
	return options, nil
}
