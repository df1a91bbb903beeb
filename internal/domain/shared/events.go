// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened to a user's progression.
const (
	// User lifecycle events
	EventUserRegistered EventType = "user.registered"
	EventUserDeleted    EventType = "user.deleted"

	// Lives events
	EventLifeLost         EventType = "lives.lost"
	EventLivesRegenerated EventType = "lives.regenerated"
	EventLifePurchased    EventType = "lives.purchased"

	// XP events
	EventXPCredited EventType = "xp.credited"
	EventXPDebited  EventType = "xp.debited"

	// Streak events
	EventDayStreakUpdated         EventType = "streak.day_updated"
	EventDayStreakBroken          EventType = "streak.day_broken"
	EventCorrectnessStreakUpdated EventType = "streak.correctness_updated"

	// Activity events
	EventCardRead EventType = "activity.card_read"

	// Badge events
	EventBadgeEarned EventType = "badge.earned"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// User Events
// ═══════════════════════════════════════════════════════════════════════════

// UserRegisteredEvent is emitted when a progression record is created.
type UserRegisteredEvent struct {
	BaseEvent
	TimeZone string `json:"time_zone"`
	Lives    int    `json:"lives"`
}

// Payload implements Event interface.
func (e UserRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"time_zone": e.TimeZone,
		"lives":     e.Lives,
	}
}

// NewUserRegisteredEvent creates a new UserRegisteredEvent.
func NewUserRegisteredEvent(userID, timeZone string, lives int, at time.Time) UserRegisteredEvent {
	return UserRegisteredEvent{
		BaseEvent: NewBaseEvent(EventUserRegistered, userID, at),
		TimeZone:  timeZone,
		Lives:     lives,
	}
}

// UserDeletedEvent is emitted when all of a user's progression data is removed.
type UserDeletedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e UserDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewUserDeletedEvent creates a new UserDeletedEvent.
func NewUserDeletedEvent(userID string, at time.Time) UserDeletedEvent {
	return UserDeletedEvent{BaseEvent: NewBaseEvent(EventUserDeleted, userID, at)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Lives Events
// ═══════════════════════════════════════════════════════════════════════════

// LifeLostEvent is emitted when a user spends a life.
type LifeLostEvent struct {
	BaseEvent
	LivesLeft    int  `json:"lives_left"`
	TimerStarted bool `json:"timer_started"`
}

// Payload implements Event interface.
func (e LifeLostEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lives_left":    e.LivesLeft,
		"timer_started": e.TimerStarted,
	}
}

// NewLifeLostEvent creates a new LifeLostEvent.
func NewLifeLostEvent(userID string, livesLeft int, timerStarted bool, at time.Time) LifeLostEvent {
	return LifeLostEvent{
		BaseEvent:    NewBaseEvent(EventLifeLost, userID, at),
		LivesLeft:    livesLeft,
		TimerStarted: timerStarted,
	}
}

// LivesRegeneratedEvent is emitted when elapsed time restores lives.
type LivesRegeneratedEvent struct {
	BaseEvent
	Restored int    `json:"restored"`
	Lives    int    `json:"lives"`
	Policy   string `json:"policy"`
}

// Payload implements Event interface.
func (e LivesRegeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"restored": e.Restored,
		"lives":    e.Lives,
		"policy":   e.Policy,
	}
}

// NewLivesRegeneratedEvent creates a new LivesRegeneratedEvent.
func NewLivesRegeneratedEvent(userID string, restored, lives int, policy string, at time.Time) LivesRegeneratedEvent {
	return LivesRegeneratedEvent{
		BaseEvent: NewBaseEvent(EventLivesRegenerated, userID, at),
		Restored:  restored,
		Lives:     lives,
		Policy:    policy,
	}
}

// LifePurchasedEvent is emitted when a life is bought with XP.
type LifePurchasedEvent struct {
	BaseEvent
	Cost      int `json:"cost"`
	Lives     int `json:"lives"`
	XPBalance int `json:"xp_balance"`
}

// Payload implements Event interface.
func (e LifePurchasedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"cost":       e.Cost,
		"lives":      e.Lives,
		"xp_balance": e.XPBalance,
	}
}

// NewLifePurchasedEvent creates a new LifePurchasedEvent.
func NewLifePurchasedEvent(userID string, cost, lives, balance int, at time.Time) LifePurchasedEvent {
	return LifePurchasedEvent{
		BaseEvent: NewBaseEvent(EventLifePurchased, userID, at),
		Cost:      cost,
		Lives:     lives,
		XPBalance: balance,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Events
// ═══════════════════════════════════════════════════════════════════════════

// XPChangedEvent is emitted for both credits and debits; Type tells them apart.
type XPChangedEvent struct {
	BaseEvent
	Amount  int    `json:"amount"`
	Balance int    `json:"balance"`
	Reason  string `json:"reason"`
}

// Payload implements Event interface.
func (e XPChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":  e.Amount,
		"balance": e.Balance,
		"reason":  e.Reason,
	}
}

// NewXPCreditedEvent creates an XP credit event.
func NewXPCreditedEvent(userID string, amount, balance int, reason string, at time.Time) XPChangedEvent {
	return XPChangedEvent{
		BaseEvent: NewBaseEvent(EventXPCredited, userID, at),
		Amount:    amount,
		Balance:   balance,
		Reason:    reason,
	}
}

// NewXPDebitedEvent creates an XP debit event.
func NewXPDebitedEvent(userID string, amount, balance int, reason string, at time.Time) XPChangedEvent {
	return XPChangedEvent{
		BaseEvent: NewBaseEvent(EventXPDebited, userID, at),
		Amount:    amount,
		Balance:   balance,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// DayStreakUpdatedEvent is emitted when the day streak moves.
type DayStreakUpdatedEvent struct {
	BaseEvent
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Payload implements Event interface.
func (e DayStreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"current": e.Current,
		"longest": e.Longest,
	}
}

// NewDayStreakUpdatedEvent creates a new DayStreakUpdatedEvent.
func NewDayStreakUpdatedEvent(userID string, current, longest int, at time.Time) DayStreakUpdatedEvent {
	return DayStreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventDayStreakUpdated, userID, at),
		Current:   current,
		Longest:   longest,
	}
}

// DayStreakBrokenEvent is emitted when a gap of more than one day resets the streak.
type DayStreakBrokenEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
}

// Payload implements Event interface.
func (e DayStreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_streak": e.PreviousStreak,
	}
}

// NewDayStreakBrokenEvent creates a new DayStreakBrokenEvent.
func NewDayStreakBrokenEvent(userID string, previous int, at time.Time) DayStreakBrokenEvent {
	return DayStreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventDayStreakBroken, userID, at),
		PreviousStreak: previous,
	}
}

// CorrectnessStreakUpdatedEvent is emitted after every scored quiz round.
type CorrectnessStreakUpdatedEvent struct {
	BaseEvent
	Count   int  `json:"count"`
	Max     int  `json:"max"`
	Perfect bool `json:"perfect"`
}

// Payload implements Event interface.
func (e CorrectnessStreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"count":   e.Count,
		"max":     e.Max,
		"perfect": e.Perfect,
	}
}

// NewCorrectnessStreakUpdatedEvent creates a new CorrectnessStreakUpdatedEvent.
func NewCorrectnessStreakUpdatedEvent(userID string, count, max int, perfect bool, at time.Time) CorrectnessStreakUpdatedEvent {
	return CorrectnessStreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventCorrectnessStreakUpdated, userID, at),
		Count:     count,
		Max:       max,
		Perfect:   perfect,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity and Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// CardReadEvent is emitted when a user's read-card counter grows.
type CardReadEvent struct {
	BaseEvent
	ReadCards int `json:"read_cards"`
}

// Payload implements Event interface.
func (e CardReadEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"read_cards": e.ReadCards,
	}
}

// NewCardReadEvent creates a new CardReadEvent.
func NewCardReadEvent(userID string, readCards int, at time.Time) CardReadEvent {
	return CardReadEvent{
		BaseEvent: NewBaseEvent(EventCardRead, userID, at),
		ReadCards: readCards,
	}
}

// BadgeEarnedEvent is emitted exactly once per (user, badge).
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID    string `json:"badge_id"`
	BadgeName  string `json:"badge_name"`
	Progress   int    `json:"progress"`
	Threshold  int    `json:"threshold"`
	BadgeCount int    `json:"badge_count"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":    e.BadgeID,
		"badge_name":  e.BadgeName,
		"progress":    e.Progress,
		"threshold":   e.Threshold,
		"badge_count": e.BadgeCount,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, badgeID, badgeName string, progress, threshold, badgeCount int, at time.Time) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent:  NewBaseEvent(EventBadgeEarned, userID, at),
		BadgeID:    badgeID,
		BadgeName:  badgeName,
		Progress:   progress,
		Threshold:  threshold,
		BadgeCount: badgeCount,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes the event payload into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if be, ok := event.(interface{ Base() BaseEvent }); ok {
		env.Version = be.Base().Version
		env.CorrelationID = be.Base().CorrelationID
	}
	return env, nil
}

// Base exposes the embedded BaseEvent to envelope builders.
func (e BaseEvent) Base() BaseEvent {
	return e
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
