// Package kafka publishes run notifications.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/config"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// RunPublisher announces imported runs on the run topic.
// It implements pipeline.Publisher.
type RunPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewRunPublisher creates a producer for the configured run topic. Messages
// are keyed by model so every run of one model lands on the same partition.
func NewRunPublisher(cfg *config.Config, logger *slog.Logger) *RunPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRunTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &RunPublisher{writer: w, logger: logger}
}

// Publish writes one RunImported event.
func (p *RunPublisher) Publish(ctx context.Context, event domain.RunImported) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", event.Run, err)
	}
	p.logger.Debug("run published", "run", event.Run, "id", event.ID)
	return nil
}

func (p *RunPublisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(event domain.RunImported) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Model),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "run", Value: []byte(event.Run)},
			{Key: "imported_at", Value: []byte(event.ImportedAt.Format(time.RFC3339))},
		},
	}, nil
}
