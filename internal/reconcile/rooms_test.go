package reconcile

import (
	"testing"
	"time"

	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/status"
)

func room(id string, participants ...string) chat.Room {
	return chat.Room{RoomID: id, Participants: participants}
}

func TestMergeRoomsUnion(t *testing.T) {
	local := []chat.Room{room("a-b", "a", "b"), room("a-c", "a", "c")}
	snapshot := []chat.Room{room("a-b", "a", "b"), room("a-d", "a", "d")}

	merged := MergeRooms(local, snapshot)
	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	ids := map[string]bool{}
	for _, r := range merged {
		ids[r.RoomID] = true
	}
	for _, want := range []string{"a-b", "a-c", "a-d"} {
		if !ids[want] {
			t.Errorf("missing room %s", want)
		}
	}
}

func TestMergeRoomsNeverSubtractive(t *testing.T) {
	local := []chat.Room{room("a-b", "a", "b"), room("a-c", "a", "c")}

	merged := MergeRooms(local, nil)
	if len(merged) != 2 {
		t.Fatalf("empty snapshot dropped rooms: len = %d", len(merged))
	}
}

func TestMergeRoomsIdempotent(t *testing.T) {
	local := []chat.Room{room("a-b", "a", "b")}
	snapshot := []chat.Room{{RoomID: "a-b", Participants: []string{"a", "b"}, LastMessage: "hi"}}

	once := MergeRooms(local, snapshot)
	twice := MergeRooms(once, snapshot)
	if len(twice) != 1 {
		t.Fatalf("len = %d, want 1", len(twice))
	}
	if twice[0].LastMessage != "hi" {
		t.Errorf("lastMessage = %q", twice[0].LastMessage)
	}
}

func TestMergeRoomsKeepsHydratedProfiles(t *testing.T) {
	local := []chat.Room{{
		RoomID:           "a-b",
		Participants:     []string{"a", "b"},
		ParticipantsData: []chat.Profile{{UserID: "b", Username: "Bea"}},
		LastMessage:      "old",
	}}
	snapshot := []chat.Room{{
		RoomID:       "a-b",
		Participants: []string{"a", "b"},
		LastMessage:  "new",
	}}

	merged := MergeRooms(local, snapshot)
	if merged[0].LastMessage != "new" {
		t.Errorf("snapshot field should win, got %q", merged[0].LastMessage)
	}
	if len(merged[0].ParticipantsData) != 1 || merged[0].ParticipantsData[0].Username != "Bea" {
		t.Errorf("hydrated profiles lost: %+v", merged[0].ParticipantsData)
	}
}

func TestMergeRoomsSnapshotZeroFieldsKeepLocal(t *testing.T) {
	local := []chat.Room{{
		RoomID:            "a-b",
		Participants:      []string{"a", "b"},
		LastMessageTo:     "a",
		LastMessageStatus: status.Delivered,
		LastUpdated:       "03/07/2024, 02:05:09 PM",
	}}
	snapshot := []chat.Room{{RoomID: "a-b"}}

	merged := MergeRooms(local, snapshot)
	got := merged[0]
	if got.LastMessageTo != "a" || got.LastMessageStatus != status.Delivered || got.LastUpdated == "" {
		t.Errorf("zero snapshot fields clobbered local: %+v", got)
	}
	if len(got.Participants) != 2 {
		t.Errorf("participants lost: %v", got.Participants)
	}
}

func TestDedupeRooms(t *testing.T) {
	in := []chat.Room{
		{RoomID: "a-b", LastMessage: "first"},
		{RoomID: ""},
		{RoomID: "a-b", LastMessage: "second"},
		{RoomID: "a-c"},
	}
	out := DedupeRooms(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].RoomID != "a-b" || out[0].LastMessage != "first" {
		t.Errorf("first occurrence should win: %+v", out[0])
	}
}

func TestSortRoomsRecentFirst(t *testing.T) {
	t1 := chat.FormatWireTime(time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC))
	t2 := chat.FormatWireTime(time.Date(2024, 3, 7, 11, 0, 0, 0, time.UTC))

	in := []chat.Room{
		{RoomID: "old", LastUpdated: t1},
		{RoomID: "new", LastUpdated: t2},
		{RoomID: "unparsable", LastUpdated: "not a time"},
	}
	out := SortRooms(in)
	if out[0].RoomID != "new" || out[1].RoomID != "old" {
		t.Errorf("order = %s, %s", out[0].RoomID, out[1].RoomID)
	}
	if in[0].RoomID != "old" {
		t.Error("input slice mutated")
	}
}
