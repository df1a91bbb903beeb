//go:build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/messaging"
)

// setupRabbitMQ starts a RabbitMQ container and returns its AMQP URL.
func setupRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	return amqpURL
}

func TestIntegration_AMQPPublisher(t *testing.T) {
	amqpURL := setupRabbitMQ(t)

	conn, err := messaging.NewConnection(amqpURL, "progression.events", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, conn.IsConnected())

	// Bind a throwaway queue to badge events only.
	ch := conn.Channel()
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "badge.*", conn.Exchange(), false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	publisher := messaging.NewAMQPPublisher(conn, messaging.AMQPPublisherConfig{PublishTimeout: 5 * time.Second}, nil)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.Publish(shared.NewXPCreditedEvent("u1", 10, 10, "quiz", at)))
	require.NoError(t, publisher.Publish(shared.NewBadgeEarnedEvent("u1", "quiz-20", "Quizzer", 20, 20, 1, at)))

	select {
	case d := <-deliveries:
		assert.Equal(t, "badge.earned", d.RoutingKey)
		assert.Equal(t, "application/json", d.ContentType)
		assert.Equal(t, amqp.Persistent, d.DeliveryMode)

		var env shared.EventEnvelope
		require.NoError(t, json.Unmarshal(d.Body, &env))
		assert.Equal(t, d.MessageId, env.ID)
		assert.Equal(t, shared.EventBadgeEarned, env.Type)
		assert.Equal(t, "u1", env.AggregateID)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for badge event")
	}

	select {
	case d := <-deliveries:
		t.Fatalf("unexpected delivery %s", d.RoutingKey)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := messaging.NewConnection("amqp://invalid:5672", "progression.events", nil)
	assert.Error(t, err)
}
