package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
)

// RequestHandler accepts one decoded analysis request. It should hand the
// request off quickly; the message is marked once it returns.
type RequestHandler func(ctx context.Context, req models.AnalysisRequest) error

// Consumer reads analysis requests from a consumer group
type Consumer struct {
	id       string
	config   config.KafkaConfig
	consumer sarama.ConsumerGroup
	handler  RequestHandler
	logger   logging.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(id string, cfg config.KafkaConfig, handler RequestHandler, logger logging.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(id, cfg, client, handler, logger), nil
}

func newConsumer(id string, cfg config.KafkaConfig, group sarama.ConsumerGroup, handler RequestHandler, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Consumer{
		id:       id,
		config:   cfg,
		consumer: group,
		handler:  handler,
		logger:   logger,
	}
}

// Consume joins the group and blocks until ctx is cancelled or the group fails.
func (c *Consumer) Consume(ctx context.Context) error {
	errorChan := make(chan error, 1)
	go func() {
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).WithField("consumer", c.id).Error("consumer group error")
			select {
			case errorChan <- err:
			default:
			}
		}
	}()

	handler := &consumerGroupHandler{consumer: c}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errorChan:
			return err
		default:
			if err := c.consumer.Consume(ctx, []string{c.config.RequestTopic}, handler); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				return err
			}
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// DecodeRequest parses a request message. A missing id is generated.
func DecodeRequest(value []byte) (models.AnalysisRequest, error) {
	var req models.AnalysisRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return req, fmt.Errorf("decode analysis request: %w", err)
	}
	req.InvoicePath = strings.TrimSpace(req.InvoicePath)
	if req.InvoicePath == "" {
		return req, errors.New("analysis request without invoice_path")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return req, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			log := h.consumer.logger.WithFields(logging.Fields{
				"consumer":  h.consumer.id,
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})

			req, err := DecodeRequest(message.Value)
			if err != nil {
				log.WithError(err).Warn("dropping malformed request")
				session.MarkMessage(message, "")
				continue
			}
			if err := h.consumer.handler(ctx, req); err != nil {
				log.WithError(err).WithField("request_id", req.ID).Error("request rejected")
			}
			session.MarkMessage(message, "")
		}
	}
}
