package status

// Status represents a message's position in the delivery lifecycle.
type Status string

const (
	Pending   Status = "pending"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Seen      Status = "seen"

	// Unread is the room-level initial lastMessageStatus written on send.
	// It ranks with Sent: a later delivered/seen update still advances it.
	Unread Status = "unread"
)

// rank orders the lifecycle. Unknown statuses rank below pending so a
// snapshot carrying a valid status always wins over garbage.
var rank = map[Status]int{
	Pending:   0,
	Sent:      1,
	Unread:    1,
	Delivered: 2,
	Seen:      3,
}

// Rank returns the position of s in the lifecycle, or -1 for unknown values.
func Rank(s Status) int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

// Advance returns the later of cur and next, and whether the status moved.
// A status never regresses: requesting an earlier or equal stage is a no-op.
func Advance(cur, next Status) (Status, bool) {
	if Rank(next) > Rank(cur) {
		return next, true
	}
	return cur, false
}
