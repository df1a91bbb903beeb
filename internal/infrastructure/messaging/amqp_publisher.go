package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/google/uuid"

	"github.com/brainbites/progression-engine/config"
	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AMQP PUBLISHER
// ══════════════════════════════════════════════════════════════════════════════

// Broker is the outbound side of a message broker.
type Broker interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
}

// AMQPPublisherConfig configures the publisher.
type AMQPPublisherConfig struct {
	PublishTimeout time.Duration

	// Circuit breaker: open after Threshold consecutive failures, probe
	// again after OpenTimeout.
	Threshold   int
	OpenTimeout time.Duration
}

// AMQPPublisherConfigFrom maps the broker configuration.
func AMQPPublisherConfigFrom(cfg config.BrokerConfig) AMQPPublisherConfig {
	return AMQPPublisherConfig{
		PublishTimeout: cfg.PublishTimeout,
		Threshold:      cfg.CircuitBreakerThreshold,
		OpenTimeout:    cfg.CircuitBreakerTimeout,
	}
}

// AMQPPublisher serializes domain events into envelopes and sends them to
// the broker, routed by event type.
type AMQPPublisher struct {
	broker  Broker
	breaker circuitbreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	log     *logger.Logger
}

// NewAMQPPublisher creates a publisher over broker.
func NewAMQPPublisher(broker Broker, cfg AMQPPublisherConfig, log *logger.Logger) *AMQPPublisher {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	p := &AMQPPublisher{
		broker:  broker,
		timeout: cfg.PublishTimeout,
		log:     log.With(logger.Component("amqp_publisher")),
	}
	threshold := cfg.Threshold
	p.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= threshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			p.log.Warn("broker circuit breaker state change",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return p
}

// Publish implements shared.EventPublisher.
func (p *AMQPPublisher) Publish(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.PublishContext(ctx, event)
}

// PublishContext sends one event, failing fast while the circuit is open.
func (p *AMQPPublisher) PublishContext(ctx context.Context, event shared.Event) error {
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.broker.Publish(ctx, string(env.Type), env.ID, body)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}

	p.log.Debug("event published",
		logger.String("event_type", string(env.Type)),
		logger.String("event_id", env.ID),
		logger.UserID(env.AggregateID),
	)
	return nil
}

var _ shared.EventPublisher = (*AMQPPublisher)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// BROKER FORWARDER
// ══════════════════════════════════════════════════════════════════════════════

// BrokerForwarder relays every event of the in-process bus to the broker
// while the events.broker feature is enabled.
type BrokerForwarder struct {
	publisher shared.EventPublisher
	features  *config.FeatureFlags
	log       *logger.Logger
}

// NewBrokerForwarder creates a forwarder.
func NewBrokerForwarder(publisher shared.EventPublisher, features *config.FeatureFlags, log *logger.Logger) *BrokerForwarder {
	if log == nil {
		log = logger.Nop()
	}
	return &BrokerForwarder{
		publisher: publisher,
		features:  features,
		log:       log.With(logger.Component("broker_forwarder")),
	}
}

// Register subscribes the forwarder to every event type.
func (f *BrokerForwarder) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(f.Handle)
}

// Handle forwards one event. Broker failures are logged and swallowed; the
// state change they describe is already committed.
func (f *BrokerForwarder) Handle(event shared.Event) error {
	if !f.features.IsEnabled(config.FeatureEventsBroker, config.ForUser(event.AggregateID())) {
		return nil
	}
	if err := f.publisher.Publish(event); err != nil {
		f.log.Warn("failed to forward event to broker",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}
	return nil
}
