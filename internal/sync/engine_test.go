package sync

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fahad7169/chatd/internal/bus"
	"github.com/fahad7169/chatd/internal/cache"
	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/identity"
	"github.com/fahad7169/chatd/internal/notify"
	"github.com/fahad7169/chatd/internal/outbox"
	"github.com/fahad7169/chatd/internal/remote"
	"github.com/fahad7169/chatd/internal/status"
)

type engineFixture struct {
	engine   *Engine
	store    *remote.Memory
	gate     *identity.Static
	notifier *notify.Recorded
	bus      *bus.Bus
}

func newFixture(t *testing.T, uid string, db *cache.DB) *engineFixture {
	t.Helper()
	store := remote.NewMemory()
	b := bus.New()
	gate := identity.NewStatic(uid)
	recorded := &notify.Recorded{}
	tracker := status.NewTracker(b)

	engine := NewEngine(Params{
		Gate:     gate,
		Store:    store,
		Cache:    db,
		Notifier: recorded,
		Sender:   outbox.NewSender(store, b, nil),
		Tracker:  tracker,
		Bus:      b,
	})
	t.Cleanup(func() {
		engine.Stop()
		_ = store.Close()
	})
	return &engineFixture{engine: engine, store: store, gate: gate, notifier: recorded, bus: b}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seedRoom(t *testing.T, store *remote.Memory, a, b string) string {
	t.Helper()
	ctx := context.Background()
	roomID := chat.RoomID(a, b)
	at := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	if err := store.Upsert(ctx, remote.RoomPath(roomID), map[string]any{
		remote.FieldParticipants: []string{a, b},
		remote.FieldLastUpdated:  chat.FormatWireTime(at),
	}, false); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return roomID
}

func seedProfile(t *testing.T, store *remote.Memory, uid, username, token string) {
	t.Helper()
	if err := store.Upsert(context.Background(), remote.UserPath(uid), map[string]any{
		remote.FieldUserID:    uid,
		remote.FieldUsername:  username,
		remote.FieldPushToken: token,
	}, false); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func seedInbound(t *testing.T, store *remote.Memory, roomID, id, from, to, body string, at time.Time) {
	t.Helper()
	if err := store.Upsert(context.Background(), remote.MessagePath(roomID, id), map[string]any{
		remote.FieldFrom:      from,
		remote.FieldTo:        to,
		remote.FieldBody:      body,
		remote.FieldStatus:    string(status.Sent),
		remote.FieldTimestamp: chat.FormatWireTime(at),
	}, false); err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func TestEngineFollowsRoomFeed(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userB", "Bea", "")
	roomID := seedRoom(t, f.store, "userA", "userB")

	f.engine.Start(context.Background())

	waitFor(t, "room to appear", func() bool {
		rooms := f.engine.Rooms()
		return len(rooms) == 1 && rooms[0].RoomID == roomID
	})
	waitFor(t, "hydration", func() bool {
		rooms := f.engine.Rooms()
		return rooms[0].Hydrated() && rooms[0].ParticipantsData[0].Username == "Bea"
	})
	waitFor(t, "message feed", func() bool {
		return f.engine.SubscriptionCount() == 2
	})
}

func TestEngineInboundDeliveredOnce(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userA", "Al", "tok-a")
	seedProfile(t, f.store, "userB", "Bea", "tok-b")
	roomID := seedRoom(t, f.store, "userA", "userB")
	f.engine.Start(context.Background())
	waitFor(t, "message feed", func() bool { return f.engine.SubscriptionCount() == 2 })

	at := time.Date(2024, 3, 7, 10, 5, 0, 0, time.UTC)
	seedInbound(t, f.store, roomID, "m1", "userB", "userA", "hello", at)

	waitFor(t, "delivered locally", func() bool {
		msgs := f.engine.Messages(roomID)
		return len(msgs) == 1 && msgs[0].Status == status.Delivered
	})
	waitFor(t, "delivered remotely", func() bool {
		doc, ok, _ := f.store.Get(context.Background(), remote.MessagePath(roomID, "m1"))
		return ok && doc.Fields[remote.FieldStatus] == string(status.Delivered)
	})
	waitFor(t, "notification", func() bool { return len(f.notifier.Calls()) == 1 })

	push := f.notifier.Calls()[0]
	if push.Token != "tok-a" {
		t.Errorf("token = %q, want tok-a", push.Token)
	}
	if push.Title != "Bea" || push.Body != "hello" {
		t.Errorf("push = %+v", push)
	}

	// A second inbound message notifies again, but the first never re-fires
	// even though every snapshot replays the full collection.
	seedInbound(t, f.store, roomID, "m2", "userB", "userA", "again", at.Add(time.Minute))
	waitFor(t, "second message", func() bool { return len(f.engine.Messages(roomID)) == 2 })
	waitFor(t, "second notification", func() bool { return len(f.notifier.Calls()) == 2 })

	time.Sleep(50 * time.Millisecond)
	if n := len(f.notifier.Calls()); n != 2 {
		t.Errorf("notification count = %d, want 2", n)
	}
}

func TestEngineFocusedRoomSkipsNotification(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userA", "Al", "tok-a")
	seedProfile(t, f.store, "userB", "Bea", "")
	roomID := seedRoom(t, f.store, "userA", "userB")
	f.engine.Start(context.Background())
	waitFor(t, "message feed", func() bool { return f.engine.SubscriptionCount() == 2 })

	f.engine.SetFocus(roomID)

	at := time.Date(2024, 3, 7, 10, 5, 0, 0, time.UTC)
	seedInbound(t, f.store, roomID, "m1", "userB", "userA", "hello", at)

	waitFor(t, "delivered locally", func() bool {
		msgs := f.engine.Messages(roomID)
		return len(msgs) == 1 && status.Rank(msgs[0].Status) >= status.Rank(status.Delivered)
	})
	if n := len(f.notifier.Calls()); n != 0 {
		t.Errorf("focused room produced %d notifications", n)
	}
}

func TestEngineSetFocusSeenSweep(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userA", "Al", "")
	seedProfile(t, f.store, "userB", "Bea", "")
	roomID := seedRoom(t, f.store, "userA", "userB")

	at := time.Date(2024, 3, 7, 10, 5, 0, 0, time.UTC)
	ctx := context.Background()
	_ = f.store.Upsert(ctx, remote.RoomPath(roomID), map[string]any{
		remote.FieldLastMessage:       "hello",
		remote.FieldLastMessageTo:     "userA",
		remote.FieldLastMessageStatus: string(status.Unread),
	}, true)
	seedInbound(t, f.store, roomID, "m1", "userB", "userA", "hello", at)

	f.engine.Start(context.Background())
	waitFor(t, "inbound message", func() bool {
		msgs := f.engine.Messages(roomID)
		return len(msgs) == 1 && status.Rank(msgs[0].Status) >= status.Rank(status.Delivered)
	})

	f.engine.SetFocus(roomID)

	waitFor(t, "message seen", func() bool {
		return f.engine.Messages(roomID)[0].Status == status.Seen
	})
	doc, _, _ := f.store.Get(ctx, remote.MessagePath(roomID, "m1"))
	if doc.Fields[remote.FieldStatus] != string(status.Seen) {
		t.Errorf("remote message status = %v", doc.Fields[remote.FieldStatus])
	}
	room, _, _ := f.store.Get(ctx, remote.RoomPath(roomID))
	if room.Fields[remote.FieldLastMessageStatus] != string(status.Seen) {
		t.Errorf("remote room status = %v", room.Fields[remote.FieldLastMessageStatus])
	}
	waitFor(t, "room unread cleared", func() bool {
		rooms := f.engine.Rooms()
		return len(rooms) == 1 && !rooms[0].UnreadFor("userA")
	})

	// Focusing again has nothing left to sweep.
	f.engine.SetFocus(roomID)
	if got := f.engine.Messages(roomID)[0].Status; got != status.Seen {
		t.Errorf("status after re-focus = %q", got)
	}
}

func TestEngineOptimisticSend(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userB", "Bea", "")
	f.engine.Start(context.Background())
	waitFor(t, "auth", func() bool { return f.engine.SubscriptionCount() >= 1 })

	sent, err := f.engine.Send(context.Background(), "userB", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.HasPrefix(sent.ID, "local-") {
		t.Errorf("returned message still has optimistic id %q", sent.ID)
	}
	if sent.Status != status.Sent {
		t.Errorf("status = %q, want sent", sent.Status)
	}

	roomID := chat.RoomID("userA", "userB")
	msgs := f.engine.Messages(roomID)
	if len(msgs) != 1 || msgs[0].ID != sent.ID {
		t.Fatalf("messages = %+v", msgs)
	}

	doc, ok, _ := f.store.Get(context.Background(), remote.MessagePath(roomID, sent.ID))
	if !ok || doc.Fields[remote.FieldBody] != "hello" {
		t.Errorf("message doc = ok=%v %+v", ok, doc.Fields)
	}
	room, ok, _ := f.store.Get(context.Background(), remote.RoomPath(roomID))
	if !ok || room.Fields[remote.FieldLastMessage] != "hello" {
		t.Errorf("room doc = ok=%v %+v", ok, room.Fields)
	}

	// The snapshot echo of the write must not duplicate the message.
	waitFor(t, "send feed", func() bool { return f.engine.SubscriptionCount() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := len(f.engine.Messages(roomID)); got != 1 {
		t.Errorf("message count after echo = %d, want 1", got)
	}
}

func TestEngineSendValidation(t *testing.T) {
	f := newFixture(t, "", nil)
	f.engine.Start(context.Background())

	if _, err := f.engine.Send(context.Background(), "userB", "hi"); err == nil {
		t.Error("send while signed out should fail")
	}

	f.gate.SignInAs("userA")
	waitFor(t, "sign in", func() bool { return f.engine.SubscriptionCount() >= 1 })
	if _, err := f.engine.Send(context.Background(), "userB", "   "); err == nil {
		t.Error("blank body should fail")
	}
}

func TestEngineColdStartFromCache(t *testing.T) {
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	roomID := chat.RoomID("userA", "userB")
	if err := db.Save(
		[]chat.Room{{RoomID: roomID, Participants: []string{"userA", "userB"}}},
		map[string][]chat.Message{roomID: {{ID: "m1", RoomID: roomID, From: "userB", To: "userA", Body: "hi", Status: status.Seen}}},
	); err != nil {
		t.Fatalf("save: %v", err)
	}

	f := newFixture(t, "", db)
	f.engine.Start(context.Background())

	rooms := f.engine.Rooms()
	if len(rooms) != 1 || rooms[0].RoomID != roomID {
		t.Fatalf("rooms = %+v", rooms)
	}
	msgs := f.engine.Messages(roomID)
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestEngineProfileBootstrap(t *testing.T) {
	store := remote.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	gate := identity.NewStatic("userA")
	engine := NewEngine(Params{
		Gate:         gate,
		Store:        store,
		Sender:       outbox.NewSender(store, nil, nil),
		Tracker:      status.NewTracker(nil),
		LocalProfile: chat.Profile{Username: "Al", PhoneNumber: "+15550001"},
	})
	t.Cleanup(engine.Stop)

	engine.Start(context.Background())

	waitFor(t, "profile document", func() bool {
		doc, ok, _ := store.Get(context.Background(), remote.UserPath("userA"))
		return ok && doc.Fields[remote.FieldUsername] == "Al" && doc.Fields[remote.FieldUserID] == "userA"
	})

	doc, _, _ := store.Get(context.Background(), remote.UserPath("userA"))
	if pic, _ := doc.Fields[remote.FieldProfilePic].(string); pic == "" {
		t.Error("bootstrap should fill a default profile picture")
	}
}

func TestEngineProfileBootstrapIdempotent(t *testing.T) {
	store := remote.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	seedProfile(t, store, "userA", "Existing", "tok")

	gate := identity.NewStatic("userA")
	engine := NewEngine(Params{
		Gate:         gate,
		Store:        store,
		Sender:       outbox.NewSender(store, nil, nil),
		Tracker:      status.NewTracker(nil),
		LocalProfile: chat.Profile{Username: "Al"},
	})
	t.Cleanup(engine.Stop)

	engine.Start(context.Background())
	waitFor(t, "room feed", func() bool { return engine.SubscriptionCount() >= 1 })

	doc, _, _ := store.Get(context.Background(), remote.UserPath("userA"))
	if doc.Fields[remote.FieldUsername] != "Existing" {
		t.Errorf("existing profile overwritten: %+v", doc.Fields)
	}
}

func TestEngineStopReleasesEverything(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userB", "Bea", "")
	seedRoom(t, f.store, "userA", "userB")
	f.engine.Start(context.Background())
	waitFor(t, "feeds open", func() bool { return f.engine.SubscriptionCount() == 2 })

	f.engine.Stop()

	if got := f.engine.SubscriptionCount(); got != 0 {
		t.Errorf("engine subscriptions after stop = %d", got)
	}
	if got := f.store.SubscriptionCount(); got != 0 {
		t.Errorf("store subscriptions after stop = %d", got)
	}
}

func TestEngineSignOutStopsFeeds(t *testing.T) {
	f := newFixture(t, "userA", nil)
	seedProfile(t, f.store, "userB", "Bea", "")
	seedRoom(t, f.store, "userA", "userB")
	f.engine.Start(context.Background())
	waitFor(t, "feeds open", func() bool { return f.engine.SubscriptionCount() == 2 })

	f.gate.SignOut()

	waitFor(t, "feeds closed", func() bool { return f.engine.SubscriptionCount() == 0 })
}
