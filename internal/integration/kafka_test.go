//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/adapter/kafka"
	"github.com/couchcryptid/nwp-forecast-service/internal/config"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRunTopic = "test-forecast-runs"

// TestRunPublisher verifies a RunImported event round-trips through a real
// broker with its key and headers.
func TestRunPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRunTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaRunTopic: testRunTopic}
	publisher := kafka.NewRunPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	run, err := domain.ParseRun("2024050106")
	require.NoError(t, err)
	event := domain.NewRunImported("icon-eu", run, 1200, 40, 27, true)
	require.NoError(t, publisher.Publish(ctx, event))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testRunTopic,
		GroupID:     fmt.Sprintf("test-runs-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from run topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "icon-eu", string(msg.Key))
	assert.Equal(t, event.ID, headers["event_id"])
	assert.Equal(t, "2024050106", headers["run"])
	_, err = time.Parse(time.RFC3339, headers["imported_at"])
	assert.NoError(t, err, "imported_at should be valid RFC3339")

	var got domain.RunImported
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, 1200, got.Records)
	assert.True(t, got.Partial)
}
