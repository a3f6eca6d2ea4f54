package bus

import "time"

// Event kinds published by the sync core. Namespaces group related kinds so
// subscribers can filter with a prefix ("message." etc).
const (
	KindAuthChanged          = "session.auth_changed"
	KindRoomUpdated          = "room.updated"
	KindMessageUpserted      = "message.upserted"
	KindMessageStatusChanged = "message.status_changed"
	KindMessageSendAck       = "message.send_ack"
	KindMessageSendFailed    = "message.send_failed"
	KindNotifyPushed         = "notify.pushed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
