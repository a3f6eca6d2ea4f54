package remote

import (
	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/status"
)

// Decoding is deliberately tolerant: stored documents were written by
// several client generations and fields may be absent or mistyped. A bad
// field decodes to its zero value; decoding never fails.

// DecodeRoom converts a room document into a Room. The document id is the
// room id.
func DecodeRoom(d Doc) chat.Room {
	return chat.Room{
		RoomID:            d.ID,
		Participants:      stringSlice(d.Fields[FieldParticipants]),
		LastMessage:       str(d.Fields[FieldLastMessage]),
		LastMessageTo:     str(d.Fields[FieldLastMessageTo]),
		LastMessageStatus: status.Status(str(d.Fields[FieldLastMessageStatus])),
		LastUpdated:       str(d.Fields[FieldLastUpdated]),
	}
}

// DecodeMessage converts a message document into a Message. The document
// id is the authoritative message id; the wire timestamp is parsed into
// the internal sortable instant.
func DecodeMessage(roomID string, d Doc) chat.Message {
	wire := str(d.Fields[FieldTimestamp])
	sentAt, _ := chat.ParseWireTime(wire)
	return chat.Message{
		ID:        d.ID,
		RoomID:    roomID,
		From:      str(d.Fields[FieldFrom]),
		To:        str(d.Fields[FieldTo]),
		Body:      str(d.Fields[FieldBody]),
		Status:    status.Status(str(d.Fields[FieldStatus])),
		SentAt:    sentAt,
		Timestamp: wire,
	}
}

// EncodeMessage produces the field map for a new message document. The
// status written is the wire status, not the local optimistic one: the
// stored record for an acknowledged send is "sent".
func EncodeMessage(m chat.Message) map[string]any {
	return map[string]any{
		FieldFrom:      m.From,
		FieldTo:        m.To,
		FieldBody:      m.Body,
		FieldStatus:    string(status.Sent),
		FieldTimestamp: m.Timestamp,
	}
}

// EncodeRoomUpsert produces the merge-upsert field map written to the room
// document after every outbound message.
func EncodeRoomUpsert(m chat.Message) map[string]any {
	return map[string]any{
		FieldParticipants:      []string{m.From, m.To},
		FieldLastMessage:       m.Body,
		FieldLastMessageTo:     m.To,
		FieldLastMessageStatus: string(status.Unread),
		FieldLastUpdated:       m.Timestamp,
	}
}

// DecodeProfile converts a user document into a Profile.
func DecodeProfile(d Doc) chat.Profile {
	p := chat.Profile{
		UserID:      str(d.Fields[FieldUserID]),
		Username:    str(d.Fields[FieldUsername]),
		PhoneNumber: str(d.Fields[FieldPhoneNumber]),
		ProfilePic:  str(d.Fields[FieldProfilePic]),
		PushToken:   str(d.Fields[FieldPushToken]),
	}
	if p.UserID == "" {
		p.UserID = d.ID
	}
	return p
}

// EncodeProfile produces the field map for a user document.
func EncodeProfile(p chat.Profile) map[string]any {
	return map[string]any{
		FieldUserID:      p.UserID,
		FieldUsername:    p.Username,
		FieldPhoneNumber: p.PhoneNumber,
		FieldProfilePic:  p.ProfilePic,
		FieldPushToken:   p.PushToken,
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		return out
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
