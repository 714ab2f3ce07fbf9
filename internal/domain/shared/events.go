// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Daily streak events
	EventStreakStarted   EventType = "streak.started"
	EventStreakContinued EventType = "streak.continued"
	EventStreakFrozen    EventType = "streak.frozen"
	EventStreakLost      EventType = "streak.lost"
	EventStreakRepaired  EventType = "streak.repaired"

	// Risk state events (raised by the periodic sweep)
	EventStateChanged EventType = "streak.state_changed"

	// Correct-answer streak events
	EventAnswerStreakExtended EventType = "answer_streak.extended"
	EventAnswerStreakShielded EventType = "answer_streak.shielded"
	EventAnswerStreakReset    EventType = "answer_streak.reset"

	// Milestone events
	EventMilestoneAchieved EventType = "milestone.achieved"

	// Protection shop events
	EventItemGranted EventType = "protection.item_granted"
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

// EventHandler processes a published event.
type EventHandler interface {
	// Handle processes the event. Returning an error marks the delivery
	// as failed; the bus decides whether to retry.
	Handle(ctx context.Context, event Event) error

	// Name returns the handler name for logging.
	Name() string
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, event Event) error
}

// Handle implements EventHandler.
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f.Fn(ctx, event)
}

// Name implements EventHandler.
func (f EventHandlerFunc) Name() string {
	return f.HandlerName
}

// EventPublisher publishes domain events to interested subscribers.
type EventPublisher interface {
	Publish(event Event) error
}

// EventBus combines publishing with subscription management.
type EventBus interface {
	EventPublisher
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
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

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
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
// Daily Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakStartedEvent is emitted when a user's first (or fresh) streak day is recorded.
type StreakStartedEvent struct {
	BaseEvent
	UserID int64 `json:"user_id"`
}

// Payload implements Event interface.
func (e StreakStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"user_id": e.UserID}
}

// NewStreakStartedEvent creates a new StreakStartedEvent.
func NewStreakStartedEvent(userID UserID) StreakStartedEvent {
	return StreakStartedEvent{
		BaseEvent: NewBaseEvent(EventStreakStarted, userID.String()),
		UserID:    userID.Int64(),
	}
}

// StreakContinuedEvent is emitted when a daily streak grows by one day.
type StreakContinuedEvent struct {
	BaseEvent
	UserID  int64 `json:"user_id"`
	Current int   `json:"current"`
	Max     int   `json:"max"`
}

// Payload implements Event interface.
func (e StreakContinuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"current": e.Current,
		"max":     e.Max,
	}
}

// NewStreakContinuedEvent creates a new StreakContinuedEvent.
func NewStreakContinuedEvent(userID UserID, current, max int) StreakContinuedEvent {
	return StreakContinuedEvent{
		BaseEvent: NewBaseEvent(EventStreakContinued, userID.String()),
		UserID:    userID.Int64(),
		Current:   current,
		Max:       max,
	}
}

// StreakFrozenEvent is emitted when freezes automatically cover missed days.
type StreakFrozenEvent struct {
	BaseEvent
	UserID      int64 `json:"user_id"`
	DaysCovered int   `json:"days_covered"`
	StreakSaved int   `json:"streak_saved"`
	FreezesLeft int   `json:"freezes_left"`
}

// Payload implements Event interface.
func (e StreakFrozenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"days_covered": e.DaysCovered,
		"streak_saved": e.StreakSaved,
		"freezes_left": e.FreezesLeft,
	}
}

// NewStreakFrozenEvent creates a new StreakFrozenEvent.
func NewStreakFrozenEvent(userID UserID, daysCovered, streakSaved, freezesLeft int) StreakFrozenEvent {
	return StreakFrozenEvent{
		BaseEvent:   NewBaseEvent(EventStreakFrozen, userID.String()),
		UserID:      userID.Int64(),
		DaysCovered: daysCovered,
		StreakSaved: streakSaved,
		FreezesLeft: freezesLeft,
	}
}

// StreakLostEvent is emitted when a daily streak breaks, either by an
// activity arriving after an uncovered gap or by the periodic sweep.
type StreakLostEvent struct {
	BaseEvent
	UserID     int64 `json:"user_id"`
	LostValue  int   `json:"lost_value"`
	DaysMissed int   `json:"days_missed"`
	BySweep    bool  `json:"by_sweep"`
}

// Payload implements Event interface.
func (e StreakLostEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"lost_value":  e.LostValue,
		"days_missed": e.DaysMissed,
		"by_sweep":    e.BySweep,
	}
}

// NewStreakLostEvent creates a new StreakLostEvent.
func NewStreakLostEvent(userID UserID, lostValue, daysMissed int, bySweep bool) StreakLostEvent {
	return StreakLostEvent{
		BaseEvent:  NewBaseEvent(EventStreakLost, userID.String()),
		UserID:     userID.Int64(),
		LostValue:  lostValue,
		DaysMissed: daysMissed,
		BySweep:    bySweep,
	}
}

// StreakRepairedEvent is emitted when a paid repair restores a lost streak.
type StreakRepairedEvent struct {
	BaseEvent
	UserID   int64 `json:"user_id"`
	Restored int   `json:"restored"`
}

// Payload implements Event interface.
func (e StreakRepairedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"restored": e.Restored,
	}
}

// NewStreakRepairedEvent creates a new StreakRepairedEvent.
func NewStreakRepairedEvent(userID UserID, restored int) StreakRepairedEvent {
	return StreakRepairedEvent{
		BaseEvent: NewBaseEvent(EventStreakRepaired, userID.String()),
		UserID:    userID.Int64(),
		Restored:  restored,
	}
}

// StateChangedEvent is emitted by the State Monitor sweep when a ledger
// crosses a risk boundary. Downstream reminder dispatch consumes it.
type StateChangedEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	Current  int    `json:"current"`
}

// Payload implements Event interface.
func (e StateChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_state": e.OldState,
		"new_state": e.NewState,
		"current":   e.Current,
	}
}

// NewStateChangedEvent creates a new StateChangedEvent.
func NewStateChangedEvent(userID UserID, oldState, newState string, current int) StateChangedEvent {
	return StateChangedEvent{
		BaseEvent: NewBaseEvent(EventStateChanged, userID.String()),
		UserID:    userID.Int64(),
		OldState:  oldState,
		NewState:  newState,
		Current:   current,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Correct-Answer Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// AnswerStreakShieldedEvent is emitted when an error shield absorbs a wrong answer.
type AnswerStreakShieldedEvent struct {
	BaseEvent
	UserID      int64 `json:"user_id"`
	StreakSaved int   `json:"streak_saved"`
	ShieldsLeft int   `json:"shields_left"`
}

// Payload implements Event interface.
func (e AnswerStreakShieldedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"streak_saved": e.StreakSaved,
		"shields_left": e.ShieldsLeft,
	}
}

// NewAnswerStreakShieldedEvent creates a new AnswerStreakShieldedEvent.
func NewAnswerStreakShieldedEvent(userID UserID, streakSaved, shieldsLeft int) AnswerStreakShieldedEvent {
	return AnswerStreakShieldedEvent{
		BaseEvent:   NewBaseEvent(EventAnswerStreakShielded, userID.String()),
		UserID:      userID.Int64(),
		StreakSaved: streakSaved,
		ShieldsLeft: shieldsLeft,
	}
}

// AnswerStreakResetEvent is emitted when a wrong answer resets the correct streak.
type AnswerStreakResetEvent struct {
	BaseEvent
	UserID    int64 `json:"user_id"`
	LostValue int   `json:"lost_value"`
}

// Payload implements Event interface.
func (e AnswerStreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"lost_value": e.LostValue,
	}
}

// NewAnswerStreakResetEvent creates a new AnswerStreakResetEvent.
func NewAnswerStreakResetEvent(userID UserID, lostValue int) AnswerStreakResetEvent {
	return AnswerStreakResetEvent{
		BaseEvent: NewBaseEvent(EventAnswerStreakReset, userID.String()),
		UserID:    userID.Int64(),
		LostValue: lostValue,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestone Events
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneAchievedEvent is emitted exactly once per (user, type, value)
// when the Milestone Engine grants a new record.
type MilestoneAchievedEvent struct {
	BaseEvent
	UserID        int64  `json:"user_id"`
	MilestoneType string `json:"milestone_type"`
	Value         int    `json:"value"`
	Reward        string `json:"reward"`
}

// Payload implements Event interface.
func (e MilestoneAchievedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"milestone_type": e.MilestoneType,
		"value":          e.Value,
		"reward":         e.Reward,
	}
}

// NewMilestoneAchievedEvent creates a new MilestoneAchievedEvent.
func NewMilestoneAchievedEvent(userID UserID, milestoneType string, value int, reward string) MilestoneAchievedEvent {
	return MilestoneAchievedEvent{
		BaseEvent:     NewBaseEvent(EventMilestoneAchieved, userID.String()),
		UserID:        userID.Int64(),
		MilestoneType: milestoneType,
		Value:         value,
		Reward:        reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Protection Shop Events
// ═══════════════════════════════════════════════════════════════════════════

// ItemGrantedEvent is emitted when the shop credits protection items
// after a confirmed purchase or a milestone reward.
type ItemGrantedEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
	NewTotal int    `json:"new_total"`
}

// Payload implements Event interface.
func (e ItemGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"kind":      e.Kind,
		"quantity":  e.Quantity,
		"new_total": e.NewTotal,
	}
}

// NewItemGrantedEvent creates a new ItemGrantedEvent.
func NewItemGrantedEvent(userID UserID, kind string, quantity, newTotal int) ItemGrantedEvent {
	return ItemGrantedEvent{
		BaseEvent: NewBaseEvent(EventItemGranted, userID.String()),
		UserID:    userID.Int64(),
		Kind:      kind,
		Quantity:  quantity,
		NewTotal:  newTotal,
	}
}
