package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice-svc/middleware"
	"backoffice-svc/models"
	"backoffice-svc/reconciler"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func InitConsumer(broker string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer([]string{broker}, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartConsumer bridges provider events delivered over the broker into
// the reconciliation engine. Delivery is at-least-once with no ordering
// guarantee, same as the HTTP webhook path.
func StartConsumer(consumer sarama.Consumer, topic string, engine *reconciler.Engine, logger *zap.Logger) error {
	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	logger.Info("Kafka consumer started", zap.String("topic", topic))

	for {
		select {
		case message := <-partitionConsumer.Messages():
			if err := handleMessage(message, engine, logger); err != nil {
				logger.Error("Failed to handle message", zap.Error(err))
			}
		case err := <-partitionConsumer.Errors():
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessage(message *sarama.ConsumerMessage, engine *reconciler.Engine, logger *zap.Logger) error {
	// Extract trace context from Kafka message headers
	var propagator propagation.TextMapPropagator = otel.GetTextMapPropagator()
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx := propagator.Extract(context.Background(), carrier)

	var tracer trace.Tracer = otel.Tracer("backoffice-service")
	ctx, span := tracer.Start(ctx, "ProcessProviderEvent")
	defer span.End()

	traceID := ""
	if span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	kind, ok := models.EventKindForType(event.Type)
	if !ok {
		// Skip event types this service does not reconcile
		return nil
	}

	span.SetAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("event.id", event.ID),
	)

	logger.Info("Received provider event",
		zap.String("trace_id", traceID),
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID),
	)

	outcome, err := engine.Process(ctx, kind, &event)
	if err != nil {
		span.RecordError(err)
		if reconciler.IsPermanent(err) {
			// Permanent failures are logged and dropped: replaying the
			// message would fail the same way forever.
			middleware.RecordWebhookEvent(string(kind), "rejected")
			logger.Error("Dropping unprocessable provider event",
				zap.String("trace_id", traceID),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			return nil
		}
		middleware.RecordWebhookEvent(string(kind), "failed")
		return fmt.Errorf("failed to reconcile provider event: %w", err)
	}

	if outcome.Duplicate {
		middleware.RecordWebhookEvent(string(kind), "duplicate")
	} else {
		middleware.RecordWebhookEvent(string(kind), "processed")
	}
	return nil
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {
	// Not needed for extraction
}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
