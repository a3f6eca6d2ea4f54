package reconcile

import (
	"sort"

	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/status"
)

// MergeMessages merges a room's current message list with a full snapshot
// of that room's message sub-collection. Returns the merged list and the
// entries that are genuinely new to the client (snapshot messages that did
// not match anything local); the engine runs delivery side effects on
// those.
//
// Rules:
//   - Matched by id: the snapshot is authoritative for every field except
//     status, which only ever advances (mergeMessage).
//   - Snapshot-only entries first try to rebind a local pending message
//     with the same logical identity (optimistic send whose acknowledgment
//     the client missed); the rebound entry keeps its list position under
//     the permanent id.
//   - Remaining snapshot-only entries are appended in snapshot order.
//   - The result carries no duplicate ids (first occurrence wins).
func MergeMessages(local, snapshot []chat.Message) (merged, added []chat.Message) {
	bySnapshotID := make(map[string]chat.Message, len(snapshot))
	for _, m := range snapshot {
		bySnapshotID[m.ID] = m
	}

	merged = make([]chat.Message, 0, len(local)+len(snapshot))
	matched := make(map[string]bool, len(snapshot))
	for _, lm := range local {
		if sm, ok := bySnapshotID[lm.ID]; ok {
			merged = append(merged, mergeMessage(lm, sm))
			matched[sm.ID] = true
		} else {
			merged = append(merged, lm)
		}
	}

	for _, sm := range snapshot {
		if matched[sm.ID] {
			continue
		}
		if i, ok := findPendingTwin(merged, sm); ok {
			merged[i] = mergeMessage(merged[i], sm)
			continue
		}
		merged = append(merged, sm)
		added = append(added, sm)
	}

	return dedupeMessages(merged), added
}

// mergeMessage adopts every snapshot field onto a locally known message,
// except that status is monotonic: a snapshot can advance it but never
// regress it.
func mergeMessage(local, snap chat.Message) chat.Message {
	out := snap
	out.Status, _ = status.Advance(local.Status, snap.Status)
	if snap.RoomID == "" {
		out.RoomID = local.RoomID
	}
	if snap.Timestamp == "" {
		out.Timestamp = local.Timestamp
		out.SentAt = local.SentAt
	}
	return out
}

// findPendingTwin locates a local optimistic (still pending) message that
// is the same logical message as the snapshot entry: same sender,
// recipient, body and wire timestamp. This is how a temporary local id is
// reconciled with the store-assigned id when the snapshot for a send
// arrives before, or instead of, the write acknowledgment.
func findPendingTwin(msgs []chat.Message, snap chat.Message) (int, bool) {
	for i, m := range msgs {
		if m.Status != status.Pending {
			continue
		}
		if m.From == snap.From && m.To == snap.To && m.Body == snap.Body && m.Timestamp == snap.Timestamp {
			return i, true
		}
	}
	return 0, false
}

func dedupeMessages(msgs []chat.Message) []chat.Message {
	out := msgs[:0:0]
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

// SortMessages orders messages for display: ascending by sent time, stable
// so equal or unparsable timestamps keep their merge order.
func SortMessages(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.IsZero() || out[j].SentAt.IsZero() {
			return false
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}
