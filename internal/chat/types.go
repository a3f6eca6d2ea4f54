package chat

import (
	"time"

	"github.com/fahad7169/chatd/internal/status"
)

// Room represents a two-party conversation.
type Room struct {
	RoomID            string        `json:"roomId"`
	Participants      []string      `json:"participants"`
	ParticipantsData  []Profile     `json:"participantsData,omitempty"`
	LastMessage       string        `json:"lastMessage,omitempty"`
	LastMessageTo     string        `json:"lastMessageTo,omitempty"`
	LastMessageStatus status.Status `json:"lastMessageStatus,omitempty"`
	LastUpdated       string        `json:"lastUpdated,omitempty"`
}

// UnreadFor reports whether the room shows as unread for the given user:
// the last message is addressed to them and has not been seen.
func (r *Room) UnreadFor(uid string) bool {
	return r.LastMessageTo == uid && r.LastMessageStatus != status.Seen
}

// Hydrated reports whether participant profiles have been resolved.
func (r *Room) Hydrated() bool {
	return len(r.ParticipantsData) > 0
}

// Message represents a single chat message.
//
// ID starts as a locally generated id on optimistic send and is rebound to
// the store-assigned id once the write is acknowledged. SentAt is the
// internal sortable instant; Timestamp carries the legacy wire encoding of
// the same instant and is preserved verbatim for stored-data compatibility.
type Message struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"room,omitempty"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Body      string        `json:"message"`
	Status    status.Status `json:"status"`
	SentAt    time.Time     `json:"sentAt"`
	Timestamp string        `json:"timestamp"`
}

// InboundFor reports whether the message is addressed to the given user.
func (m *Message) InboundFor(uid string) bool {
	return m.To == uid
}

// Profile represents a user's hydrated display data.
type Profile struct {
	UserID      string `json:"userId"`
	Username    string `json:"username,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ProfilePic  string `json:"profilePic,omitempty"`
	PushToken   string `json:"pushToken,omitempty"`
}
