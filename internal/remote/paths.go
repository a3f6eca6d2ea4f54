package remote

import "strings"

// Collection and field names are a wire contract shared with existing
// stored data; none of these may change.
const (
	CollectionRooms = "chats"
	CollectionUsers = "users"

	FieldParticipants      = "participants"
	FieldLastMessage       = "lastMessage"
	FieldLastMessageTo     = "lastMessageTo"
	FieldLastMessageStatus = "lastMessageStatus"
	FieldLastUpdated       = "lastUpdated"

	FieldMessageID = "messageId"
	FieldFrom      = "from"
	FieldTo        = "to"
	FieldBody      = "message"
	FieldStatus    = "status"
	FieldTimestamp = "timestamp"

	FieldUserID      = "userId"
	FieldUsername    = "username"
	FieldPhoneNumber = "phoneNumber"
	FieldProfilePic  = "profilePic"
	FieldPushToken   = "pushToken"
)

// RoomPath returns the document path for a room: chats/{roomId}.
func RoomPath(roomID string) string {
	return CollectionRooms + "/" + roomID
}

// MessagesCollection returns the sub-collection path for a room's
// messages: chats/{roomId}/messages.
func MessagesCollection(roomID string) string {
	return RoomPath(roomID) + "/messages"
}

// MessagePath returns the document path for one message:
// chats/{roomId}/messages/{messageId}.
func MessagePath(roomID, messageID string) string {
	return MessagesCollection(roomID) + "/" + messageID
}

// UserPath returns the document path for a user profile: users/{userId}.
func UserPath(uid string) string {
	return CollectionUsers + "/" + uid
}

// splitPath splits a document path into its collection and document id.
func splitPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
