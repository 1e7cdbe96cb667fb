package repository

import (
	"context"

	"TradePulse/internal/domain/models"
	domrepo "TradePulse/internal/domain/repository"
	pkgkafka "TradePulse/pkg/kafka"
)

// KafkaDecisionPublisher emits the decision audit trail (entries, exits,
// rotations) to Kafka, keyed by symbol so per-symbol ordering is preserved.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaDecisionPublisher creates the decision publisher.
func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) domrepo.DecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, ev models.DecisionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), map[string]interface{}{
		"type":     ev.Type,
		"symbol":   ev.Symbol,
		"reason":   ev.Reason,
		"side":     string(ev.Side),
		"ev":       ev.EV,
		"tier":     string(ev.Tier),
		"leverage": ev.Leverage,
		"notional": ev.Notional,
		"t":        ev.Timestamp.UnixMilli(),
	})
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
