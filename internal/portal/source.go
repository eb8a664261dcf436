package portal

import (
	"context"
	"errors"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// ErrNoCredentials is returned when neither the caller nor the configuration supplied a login.
var ErrNoCredentials = errors.New("no portal credentials")

// Source fetches consumption with a fresh session per call, since a Client
// is bound to one login and cannot be reused after a failure.
type Source struct {
	endpoints Endpoints
	opts      []Option
}

// NewSource creates a Source for the given portal.
func NewSource(endpoints Endpoints, opts ...Option) *Source {
	return &Source{endpoints: endpoints, opts: opts}
}

// SourceFromConfig creates a Source for the configured portal.
func SourceFromConfig(cfg config.PortalConfig, logger logging.Logger, policy fetch.Policy) *Source {
	return NewSource(EndpointsFromConfig(cfg), WithLogger(logger), WithRetryPolicy(policy), WithTimeout(cfg.Timeout))
}

// FetchConsumption logs in with creds and reads the default window of the
// wanted metering point, or the first one.
func (s *Source) FetchConsumption(ctx context.Context, creds models.Credentials) (models.ConsumptionSeries, error) {
	if creds.Empty() {
		return models.ConsumptionSeries{}, ErrNoCredentials
	}
	client, err := NewClient(s.endpoints, creds.Email, creds.Password, s.opts...)
	if err != nil {
		return models.ConsumptionSeries{}, err
	}
	defer client.Close()
	return NewReader(client).FetchConsumption(ctx, creds.MeteringPointID)
}
