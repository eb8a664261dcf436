package pipeline

import (
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// Steps
const (
	StepInvoice     = "invoice"
	StepConsumption = "consumption"
	StepTariffs     = "tariffs"
	StepCommunity   = "community"
	StepReport      = "report"
	StepPersist     = "persist"
)

// ProgressSink receives step transitions. Emit must not block for long; it is fire-and-forget.
type ProgressSink interface {
	Emit(step, status, message string)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(step, status, message string)

func (f SinkFunc) Emit(step, status, message string) { f(step, status, message) }

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Emit(string, string, string) {}

// LogSink writes events to a logger.
type LogSink struct {
	Logger logging.Logger
}

func (s LogSink) Emit(step, status, message string) {
	entry := s.Logger.WithFields(logging.Fields{"step": step, "status": status})
	if status == models.StatusError {
		entry.Warn(message)
		return
	}
	entry.Info(message)
}

// MultiSink fans out to every sink in order.
type MultiSink []ProgressSink

func (m MultiSink) Emit(step, status, message string) {
	for _, s := range m {
		if s != nil {
			s.Emit(step, status, message)
		}
	}
}
