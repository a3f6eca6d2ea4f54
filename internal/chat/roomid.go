package chat

// roomIDDelimiter joins the two participant ids. Existing room documents
// were created with this delimiter, so it cannot change.
const roomIDDelimiter = "-"

// RoomID derives the stable id for the room between two users: the ids
// sorted ascending and joined. RoomID(a, b) == RoomID(b, a).
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + roomIDDelimiter + b
}

// RoomIDFromParticipants derives the room id from a participant list.
// Only the first two entries are considered; rooms are two-party.
func RoomIDFromParticipants(participants []string) string {
	switch len(participants) {
	case 0:
		return ""
	case 1:
		return participants[0]
	default:
		return RoomID(participants[0], participants[1])
	}
}

// OtherParticipant returns the participant that is not uid, or "" if the
// list does not contain another user.
func OtherParticipant(participants []string, uid string) string {
	for _, p := range participants {
		if p != uid && p != "" {
			return p
		}
	}
	return ""
}
