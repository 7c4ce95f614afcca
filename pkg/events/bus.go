// Package events is a small typed in-process event bus for cross-service reactions.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event is anything published on the bus.
type Event interface {
	EventName() string
}

// Handler reacts to an event. Errors are logged, never propagated to the publisher.
type Handler func(ctx context.Context, event Event) error

const (
	NameRoleChanged        = "user.role_changed"
	NameUserDeactivated    = "user.deactivated"
	NameAppointmentChanged = "appointment.changed"
	NameEvaluationSaved    = "evaluation.saved"
	NameContentChanged     = "content.changed"
)

// RoleChanged is emitted after an administrator changes a user's role.
type RoleChanged struct {
	UserID  string
	OldRole string
	NewRole string
}

func (RoleChanged) EventName() string { return NameRoleChanged }

// UserDeactivated is emitted when an account is soft-deleted.
type UserDeactivated struct {
	UserID string
}

func (UserDeactivated) EventName() string { return NameUserDeactivated }

// AppointmentChanged is emitted after any persisted appointment write.
type AppointmentChanged struct {
	AppointmentID string
	TutorID       string
	TuteeID       string
	From          string
	To            string
	Actor         string
	Deleted       bool
}

func (AppointmentChanged) EventName() string { return NameAppointmentChanged }

// EvaluationSaved is emitted after scores or a survey are stored.
type EvaluationSaved struct {
	AppointmentID string
	TutorID       string
	TuteeID       string
}

func (EvaluationSaved) EventName() string { return NameEvaluationSaved }

// ContentChanged covers announcements, events and profiles.
type ContentChanged struct {
	Table string
	ID    string
	Op    string
}

func (ContentChanged) EventName() string { return NameContentChanged }

// Bus dispatches events synchronously to subscribers in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{handlers: make(map[string][]Handler), logger: logger}
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish invokes every handler for event. A nil bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil || event == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Warn("event handler failed", zap.String("event", event.EventName()), zap.Error(err))
		}
	}
}
