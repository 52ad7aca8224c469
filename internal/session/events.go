//go:build unix

package session

import (
	"time"
)

// EventType captures high level lifecycle notifications emitted by the
// controllers and the orchestrator.
type EventType string

const (
	EventTypeAuthStarting  EventType = "auth_starting"
	EventTypeAuthSucceeded EventType = "auth_succeeded"
	EventTypeAuthFailed    EventType = "auth_failed"
	EventTypeAuthSignaled  EventType = "auth_signaled"
	EventTypeInputDropped  EventType = "input_dropped"
	EventTypeSaverStarting EventType = "saver_starting"
	EventTypeSaverStopped  EventType = "saver_stopped"
	EventTypeSaverCrashed  EventType = "saver_crashed"
	EventTypeError         EventType = "error"
	EventTypeAnomaly       EventType = "anomaly"
)

// Event represents a single lifecycle notification. Slot is the saver slot
// index, or AuthSlot for the authentication child.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Slot      int
	Attempt   string
	Message   string
	Signal    int // negative terminating signal number, 0 otherwise
	Err       error
}

// AuthSlot marks events about the single authentication slot.
const AuthSlot = -1

// sendEvent publishes without ever blocking the decision loop; a slow or
// absent consumer loses notifications, never keystrokes.
func sendEvent(events chan<- Event, t EventType, slot int, attempt, message string, signal int, err error) {
	if events == nil {
		return
	}
	evt := Event{
		Timestamp: time.Now(),
		Type:      t,
		Slot:      slot,
		Attempt:   attempt,
		Message:   message,
		Signal:    signal,
		Err:       err,
	}
	select {
	case events <- evt:
	default:
	}
}
