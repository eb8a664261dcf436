package portal

import (
	"fmt"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// ErrNoMeteringPoint is returned when the account lists no metering point.
var ErrNoMeteringPoint = fmt.Errorf("no metering point found for this account: %w", models.ErrNoData)

// ProtocolShapeError means a portal page or document did not have the expected structure.
type ProtocolShapeError struct {
	Step   string
	Detail string
}

func (e *ProtocolShapeError) Error() string {
	return fmt.Sprintf("portal %s: unexpected response: %s", e.Step, e.Detail)
}

// AuthenticationFailedError means the portal rejected the login or the code exchange.
type AuthenticationFailedError struct {
	Step   string
	Detail string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("portal %s: authentication failed: %s", e.Step, e.Detail)
}
