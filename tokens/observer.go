package tokens

import (
	"time"

	"go.uber.org/zap"
)

// EventType identifies a slot lifecycle event.
type EventType string

const (
	// EventAcquired fires when a slot obtains a token where it had none,
	// or where the previous one had already expired.
	EventAcquired EventType = "acquired"

	// EventRefreshed fires when a slot replaces a still-valid token with
	// a fresh one.
	EventRefreshed EventType = "refreshed"

	// EventWarning fires at most once per threshold crossing when a
	// still-valid token could not be refreshed past its warning point.
	EventWarning EventType = "warning"

	// EventExpired fires when a token passes its expiry without a
	// successful refresh.
	EventExpired EventType = "expired"

	// EventProviderUnavailable fires when an acquisition attempt fails.
	EventProviderUnavailable EventType = "provider_unavailable"
)

// Event is a structured slot lifecycle notification. The manager never
// formats or routes events itself; it only hands them to the Observer.
type Event struct {
	Type EventType
	Slot string
	At   time.Time

	// ExpiresAt is set for acquired and refreshed events.
	ExpiresAt time.Time

	// Err is set for provider_unavailable events.
	Err error
}

// Observer receives slot lifecycle events. Implementations must not
// block: events are emitted from the refresh scheduler.
type Observer interface {
	OnEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// OnEvent calls the underlying function.
func (f ObserverFunc) OnEvent(event Event) {
	f(event)
}

// NewZapObserver returns an Observer that logs lifecycle events through
// the given zap logger. Warnings and expiries log at warn level,
// provider failures at error level, the rest at info.
func NewZapObserver(logger *zap.Logger) Observer {
	return ObserverFunc(func(event Event) {
		fields := []zap.Field{
			zap.String("slot", event.Slot),
		}
		if !event.ExpiresAt.IsZero() {
			fields = append(fields, zap.Time("expires_at", event.ExpiresAt))
		}
		if event.Err != nil {
			fields = append(fields, zap.Error(event.Err))
		}

		switch event.Type {
		case EventWarning, EventExpired:
			logger.Warn(string(event.Type), fields...)
		case EventProviderUnavailable:
			logger.Error(string(event.Type), fields...)
		default:
			logger.Info(string(event.Type), fields...)
		}
	})
}
