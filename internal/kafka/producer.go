package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/pipeline"
)

// Publisher writes progress events to the progress topic, keyed by run id so
// that one run stays on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logging.Logger
	now      func() time.Time
}

// NewPublisher connects a synchronous producer.
func NewPublisher(cfg config.KafkaConfig, logger logging.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create progress producer: %w", err)
	}
	return newPublisher(producer, cfg.ProgressTopic, logger), nil
}

func newPublisher(producer sarama.SyncProducer, topic string, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{producer: producer, topic: topic, logger: logger, now: time.Now}
}

// Publish sends one event.
func (p *Publisher) Publish(ev models.ProgressEvent) error {
	if ev.Time.IsZero() {
		ev.Time = p.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.RunID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish progress for run %s: %w", ev.RunID, err)
	}
	return nil
}

// Sink returns a progress sink for one run. Publish failures are logged and
// dropped.
func (p *Publisher) Sink(runID string) pipeline.ProgressSink {
	return &RunSink{publisher: p, runID: runID}
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// RunSink publishes the step transitions of one run.
type RunSink struct {
	publisher *Publisher
	runID     string
}

func (s *RunSink) Emit(step, status, message string) {
	err := s.publisher.Publish(models.ProgressEvent{
		RunID:   s.runID,
		Step:    step,
		Status:  status,
		Message: message,
	})
	if err != nil {
		s.publisher.logger.WithError(err).WithFields(logging.Fields{"run_id": s.runID, "step": step}).Warn("progress event dropped")
	}
}
