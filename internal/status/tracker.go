package status

import (
	"time"

	"github.com/fahad7169/chatd/internal/bus"
)

// Tracker applies monotonic status transitions and publishes a bus event
// for every real advance. It holds no state of its own; the authoritative
// status lives on the message being advanced.
type Tracker struct {
	bus *bus.Bus
}

// NewTracker creates a tracker. bus may be nil in tests.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{bus: b}
}

// Advance attempts to move a message's status forward. Returns the
// resulting status and whether it changed. Backward or repeated requests
// are idempotent no-ops and publish nothing.
func (t *Tracker) Advance(roomID, messageID string, cur, next Status) (Status, bool) {
	result, moved := Advance(cur, next)
	if moved && t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind:      bus.KindMessageStatusChanged,
			Timestamp: time.Now(),
			Payload: Change{
				RoomID:    roomID,
				MessageID: messageID,
				From:      cur,
				To:        result,
			},
		})
	}
	return result, moved
}

// Change is the payload for message status change events.
type Change struct {
	RoomID    string
	MessageID string
	From      Status
	To        Status
}
