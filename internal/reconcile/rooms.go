// Package reconcile holds the pure merge algorithms that combine
// locally-held state with snapshots pushed by the live subscriptions. The
// functions here perform no I/O; the sync engine owns side effects.
package reconcile

import (
	"sort"

	"github.com/fahad7169/chatd/internal/chat"
)

// MergeRooms merges the current room list with a full subscription
// snapshot. The merge is a union: rooms known locally but absent from the
// snapshot are retained, because a partial or early snapshot must never
// silently drop rooms the client already knows about. For rooms present in
// both, the snapshot wins field by field but fields it does not carry keep
// their local value (see mergeRoom).
func MergeRooms(local, snapshot []chat.Room) []chat.Room {
	bySnapshotID := make(map[string]chat.Room, len(snapshot))
	for _, r := range snapshot {
		bySnapshotID[r.RoomID] = r
	}

	merged := make([]chat.Room, 0, len(local)+len(snapshot))
	seen := make(map[string]bool, len(local))
	for _, lr := range local {
		if sr, ok := bySnapshotID[lr.RoomID]; ok {
			merged = append(merged, mergeRoom(lr, sr))
		} else {
			merged = append(merged, lr)
		}
		seen[lr.RoomID] = true
	}
	for _, sr := range snapshot {
		if !seen[sr.RoomID] {
			merged = append(merged, sr)
		}
	}
	return merged
}

// mergeRoom applies the field-precedence rule for a room present in both
// the local list and the snapshot: every field the snapshot carries
// overwrites the local value, and fields absent from the snapshot (zero
// valued after decoding) keep the local value. ParticipantsData is the
// field this matters for in practice: hydrated profiles are client-side
// state the server never re-sends.
func mergeRoom(local, snap chat.Room) chat.Room {
	out := snap
	out.RoomID = local.RoomID
	if len(snap.ParticipantsData) == 0 {
		out.ParticipantsData = local.ParticipantsData
	}
	if len(snap.Participants) == 0 {
		out.Participants = local.Participants
	}
	if snap.LastMessage == "" {
		out.LastMessage = local.LastMessage
	}
	if snap.LastMessageTo == "" {
		out.LastMessageTo = local.LastMessageTo
	}
	if snap.LastMessageStatus == "" {
		out.LastMessageStatus = local.LastMessageStatus
	}
	if snap.LastUpdated == "" {
		out.LastUpdated = local.LastUpdated
	}
	return out
}

// DedupeRooms removes rooms with a duplicate id, keeping the first
// occurrence. Run after hydration, immediately before commit.
func DedupeRooms(rooms []chat.Room) []chat.Room {
	out := rooms[:0:0]
	seen := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		if r.RoomID == "" || seen[r.RoomID] {
			continue
		}
		seen[r.RoomID] = true
		out = append(out, r)
	}
	return out
}

// SortRooms orders rooms for display: most recently updated first.
// Unparsable timestamps compare equal, so the sort is best-effort and the
// original order is preserved among them (stable).
func SortRooms(rooms []chat.Room) []chat.Room {
	out := make([]chat.Room, len(rooms))
	copy(out, rooms)
	sort.SliceStable(out, func(i, j int) bool {
		ti, iok := chat.ParseWireTime(out[i].LastUpdated)
		tj, jok := chat.ParseWireTime(out[j].LastUpdated)
		if !iok || !jok {
			return false
		}
		return ti.After(tj)
	})
	return out
}
