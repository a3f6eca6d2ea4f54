// Package sync hosts the engine that owns the authoritative client state:
// the room list and the per-room message lists. Every live snapshot, send,
// and focus change funnels through it; the pure merge rules live in
// internal/reconcile.
package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fahad7169/chatd/internal/bus"
	"github.com/fahad7169/chatd/internal/cache"
	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/identity"
	"github.com/fahad7169/chatd/internal/notify"
	"github.com/fahad7169/chatd/internal/outbox"
	"github.com/fahad7169/chatd/internal/reconcile"
	"github.com/fahad7169/chatd/internal/remote"
	"github.com/fahad7169/chatd/internal/status"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// localIDPrefix marks optimistic ids so they are never mistaken for
// store-assigned ones.
const localIDPrefix = "local-"

// defaultProfilePic is written on first profile creation when the local
// user configured no picture, matching what existing user documents hold.
const defaultProfilePic = "https://hancockogundiyapartners.com/wp-content/uploads/2019/07/dummy-profile-pic-300x300.jpg"

// Params collects the engine's collaborators.
type Params struct {
	Gate     identity.Gate
	Store    remote.Store
	Cache    *cache.DB // optional; nil disables the mirror
	Notifier notify.Notifier
	Sender   *outbox.Sender
	Tracker  *status.Tracker
	Bus      *bus.Bus
	Logger   *zap.Logger

	// LocalProfile, when set, is upserted to users/{uid} on sign-in if no
	// profile document exists yet.
	LocalProfile chat.Profile
}

// Engine reconciles local and remote chat state for one signed-in user.
type Engine struct {
	gate     identity.Gate
	store    remote.Store
	cache    *cache.DB
	notifier notify.Notifier
	sender   *outbox.Sender
	tracker  *status.Tracker
	bus      *bus.Bus
	logger   *zap.Logger
	profile  chat.Profile

	mu       sync.RWMutex
	uid      string
	rooms    []chat.Room
	messages map[string][]chat.Message
	focused  string
	notified map[string]bool

	ctx        context.Context
	cancel     context.CancelFunc
	unsubAuth  func()
	roomCancel func()
	msgCancels map[string]func()
	wg         sync.WaitGroup
}

// NewEngine creates an engine. Start must be called before use.
func NewEngine(p Params) *Engine {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gate:       p.Gate,
		store:      p.Store,
		cache:      p.Cache,
		notifier:   p.Notifier,
		sender:     p.Sender,
		tracker:    p.Tracker,
		bus:        p.Bus,
		logger:     logger,
		profile:    p.LocalProfile,
		messages:   make(map[string][]chat.Message),
		notified:   make(map[string]bool),
		msgCancels: make(map[string]func()),
	}
}

// Start seeds state from the cache mirror and begins following the
// identity gate. The room feed opens once a user is signed in.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.seedFromCache()
	e.unsubAuth = e.gate.OnAuthStateChanged(e.handleAuthChange)
}

// Stop releases the auth watch and every live subscription.
func (e *Engine) Stop() {
	if e.unsubAuth != nil {
		e.unsubAuth()
		e.unsubAuth = nil
	}
	e.stopFeeds()
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// SubscriptionCount returns the number of live remote subscriptions (room
// feed plus one per room's messages). Zero after Stop.
func (e *Engine) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.msgCancels)
	if e.roomCancel != nil {
		n++
	}
	return n
}

// Rooms returns the current room list ordered most recently updated first.
func (e *Engine) Rooms() []chat.Room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return reconcile.SortRooms(e.rooms)
}

// Messages returns a room's messages in display order.
func (e *Engine) Messages(roomID string) []chat.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return reconcile.SortMessages(e.messages[roomID])
}

// seedFromCache populates in-memory state from the last persisted
// snapshot. Any cache failure is a cache miss.
func (e *Engine) seedFromCache() {
	if e.cache == nil {
		return
	}
	rooms, messages, err := e.cache.Load()
	if err != nil {
		e.logger.Warn("cache load failed, starting empty", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.rooms = rooms
	if messages != nil {
		e.messages = messages
	}
	e.mu.Unlock()
	e.logger.Info("state seeded from cache",
		zap.Int("rooms", len(rooms)), zap.Int("room_message_lists", len(messages)))
}

func (e *Engine) handleAuthChange(uid string) {
	e.mu.Lock()
	prev := e.uid
	e.uid = uid
	e.mu.Unlock()
	if uid == prev {
		return
	}

	e.publish(bus.KindAuthChanged, map[string]string{"uid": uid})
	e.stopFeeds()
	if uid == "" {
		e.logger.Info("signed out, feeds stopped")
		return
	}

	e.logger.Info("auth established", zap.String("uid", uid))
	if e.profile.UserID != "" || e.profile.Username != "" {
		e.ensureProfile(uid)
	}
	e.startRoomFeed(uid)
}

// ensureProfile writes the local user document if it does not exist yet,
// so other clients can hydrate this user.
func (e *Engine) ensureProfile(uid string) {
	_, ok, err := e.store.Get(e.ctx, remote.UserPath(uid))
	if err != nil {
		e.logger.Warn("profile lookup failed", zap.Error(err))
		return
	}
	if ok {
		return
	}
	p := e.profile
	p.UserID = uid
	if p.ProfilePic == "" {
		p.ProfilePic = defaultProfilePic
	}
	if err := e.store.Upsert(e.ctx, remote.UserPath(uid), remote.EncodeProfile(p), true); err != nil {
		e.logger.Warn("profile bootstrap failed", zap.Error(err))
	}
}

func (e *Engine) startRoomFeed(uid string) {
	ch, cancel, err := e.store.Subscribe(e.ctx, remote.RoomsFor(uid))
	if err != nil {
		e.logger.Error("open room feed", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.roomCancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for snap := range ch {
			e.applyRoomSnapshot(snap)
		}
	}()
}

func (e *Engine) stopFeeds() {
	e.mu.Lock()
	roomCancel := e.roomCancel
	e.roomCancel = nil
	cancels := e.msgCancels
	e.msgCancels = make(map[string]func())
	e.mu.Unlock()

	if roomCancel != nil {
		roomCancel()
	}
	for _, cancel := range cancels {
		cancel()
	}
}

// applyRoomSnapshot runs one atomic room merge step: union-merge the
// snapshot, hydrate participant data for rooms missing it, dedupe, commit,
// persist. A hydration failure skips that room's hydration only; it is
// retried on the next snapshot.
func (e *Engine) applyRoomSnapshot(snap remote.Snapshot) {
	incoming := make([]chat.Room, 0, len(snap.Docs))
	for _, d := range snap.Docs {
		incoming = append(incoming, remote.DecodeRoom(d))
	}

	e.mu.RLock()
	current := e.rooms
	uid := e.uid
	e.mu.RUnlock()

	merged := reconcile.MergeRooms(current, incoming)
	for i := range merged {
		if merged[i].Hydrated() {
			continue
		}
		data, err := e.hydrateParticipants(merged[i].Participants, uid)
		if err != nil {
			e.logger.Warn("participant hydration failed",
				zap.String("room", merged[i].RoomID), zap.Error(err))
			continue
		}
		merged[i].ParticipantsData = data
	}
	final := reconcile.DedupeRooms(merged)

	e.mu.Lock()
	e.rooms = final
	e.mu.Unlock()

	e.persist()
	e.publish(bus.KindRoomUpdated, map[string]string{"rooms": fmt.Sprint(len(final))})

	for _, r := range final {
		e.ensureMessageFeed(r.RoomID)
	}
}

// hydrateParticipants fetches profile records for every participant except
// the local user, preserving participant order.
func (e *Engine) hydrateParticipants(participants []string, uid string) ([]chat.Profile, error) {
	var out []chat.Profile
	for _, p := range participants {
		if p == uid || p == "" {
			continue
		}
		doc, ok, err := e.store.Get(e.ctx, remote.UserPath(p))
		if err != nil {
			return nil, fmt.Errorf("fetch profile %s: %w", p, err)
		}
		if !ok {
			return nil, fmt.Errorf("profile %s not found", p)
		}
		out = append(out, remote.DecodeProfile(doc))
	}
	return out, nil
}

// ensureMessageFeed opens the live message subscription for a room if one
// is not already running.
func (e *Engine) ensureMessageFeed(roomID string) {
	e.mu.Lock()
	if _, ok := e.msgCancels[roomID]; ok || roomID == "" {
		e.mu.Unlock()
		return
	}
	// Reserve the slot before subscribing so a concurrent caller skips.
	e.msgCancels[roomID] = func() {}
	e.mu.Unlock()

	ch, cancel, err := e.store.Subscribe(e.ctx, remote.MessagesIn(roomID))
	if err != nil {
		e.logger.Error("open message feed", zap.String("room", roomID), zap.Error(err))
		e.mu.Lock()
		delete(e.msgCancels, roomID)
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	if _, ok := e.msgCancels[roomID]; !ok {
		// Feeds were torn down while subscribing.
		e.mu.Unlock()
		cancel()
		return
	}
	e.msgCancels[roomID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for snap := range ch {
			e.applyMessageSnapshot(roomID, snap)
		}
	}()
}

// applyMessageSnapshot runs one atomic message merge step for a room and
// the delivery side effects for genuinely new inbound messages.
func (e *Engine) applyMessageSnapshot(roomID string, snap remote.Snapshot) {
	incoming := make([]chat.Message, 0, len(snap.Docs))
	for _, d := range snap.Docs {
		incoming = append(incoming, remote.DecodeMessage(roomID, d))
	}

	e.mu.Lock()
	merged, added := reconcile.MergeMessages(e.messages[roomID], incoming)
	e.messages[roomID] = merged
	uid := e.uid
	focused := e.focused == roomID
	e.mu.Unlock()

	for _, m := range added {
		if m.Status != status.Sent || !m.InboundFor(uid) {
			continue
		}
		e.markDelivered(roomID, m, focused)
	}

	e.persist()
	e.publish(bus.KindMessageUpserted, map[string]string{"room": roomID})
}

// markDelivered handles one inbound delivery event: best-effort
// at-most-once notification when the room is not on screen, then the
// remote delivered transition. The snapshot echo confirms it; the local
// copy advances as soon as the write succeeds.
func (e *Engine) markDelivered(roomID string, m chat.Message, focused bool) {
	if !focused && e.notifier != nil {
		e.mu.Lock()
		first := !e.notified[m.ID]
		e.notified[m.ID] = true
		e.mu.Unlock()
		if first {
			e.pushNotification(m)
		}
	}

	if err := e.store.UpdateFields(e.ctx, remote.MessagePath(roomID, m.ID),
		map[string]any{remote.FieldStatus: string(status.Delivered)}); err != nil {
		e.logger.Warn("delivered update failed",
			zap.String("room", roomID), zap.String("msg_id", m.ID), zap.Error(err))
		return
	}
	e.advanceLocal(roomID, m.ID, status.Delivered)
}

// pushNotification sends a fire-and-forget push for an inbound message:
// recipient token from the recipient's user document, title from the
// sender's profile.
func (e *Engine) pushNotification(m chat.Message) {
	recipient, ok, err := e.store.Get(e.ctx, remote.UserPath(m.To))
	if err != nil || !ok {
		e.logger.Warn("notification skipped, recipient profile unavailable",
			zap.String("to", m.To), zap.Error(err))
		return
	}
	token := remote.DecodeProfile(recipient).PushToken
	if token == "" {
		return
	}
	title := m.From
	if doc, ok, err := e.store.Get(e.ctx, remote.UserPath(m.From)); err == nil && ok {
		if name := remote.DecodeProfile(doc).Username; name != "" {
			title = name
		}
	}
	if err := e.notifier.SendPush(e.ctx, token, title, m.Body,
		map[string]string{"from": m.From, "room": m.RoomID}); err != nil {
		e.logger.Warn("push failed", zap.String("msg_id", m.ID), zap.Error(err))
		return
	}
	e.publish(bus.KindNotifyPushed, map[string]string{"msg_id": m.ID})
}

// advanceLocal moves a message's in-memory status forward through the
// tracker. No-op when the message is gone or already at or past next.
func (e *Engine) advanceLocal(roomID, messageID string, next status.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.messages[roomID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		msgs[i].Status, _ = e.tracker.Advance(roomID, messageID, msgs[i].Status, next)
		return
	}
}

// Send performs an optimistic send to another user: the message appears
// locally as pending at once, then is rebound to the store-assigned id
// with status sent when the write is acknowledged. On failure it stays
// pending; no automatic retry.
func (e *Engine) Send(ctx context.Context, to, body string) (chat.Message, error) {
	e.mu.RLock()
	uid := e.uid
	e.mu.RUnlock()
	if uid == "" {
		return chat.Message{}, fmt.Errorf("not signed in")
	}
	if strings.TrimSpace(body) == "" {
		return chat.Message{}, fmt.Errorf("empty message")
	}

	now := time.Now()
	msg := chat.Message{
		ID:        localIDPrefix + uuid.NewString(),
		RoomID:    chat.RoomID(uid, to),
		From:      uid,
		To:        to,
		Body:      body,
		Status:    status.Pending,
		SentAt:    now,
		Timestamp: chat.FormatWireTime(now),
	}

	e.mu.Lock()
	e.messages[msg.RoomID] = append(e.messages[msg.RoomID], msg)
	e.mu.Unlock()
	e.persist()
	e.publish(bus.KindMessageUpserted, map[string]string{"room": msg.RoomID})

	id, err := e.sender.Send(ctx, msg)
	if err != nil {
		// The pending entry stays; the sender already published the
		// failure event.
		return msg, err
	}

	e.rebind(msg.RoomID, msg.ID, id)
	e.ensureMessageFeed(msg.RoomID)
	e.persist()
	e.publish(bus.KindMessageUpserted, map[string]string{"room": msg.RoomID})

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.messages[msg.RoomID] {
		if m.ID == id {
			return m, nil
		}
	}
	return msg, nil
}

// rebind replaces a local optimistic id with the store-assigned one and
// advances the message to sent. If a snapshot already performed the
// rebinding (the echo raced the acknowledgment), this is a no-op.
func (e *Engine) rebind(roomID, localID, serverID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.messages[roomID]
	for i := range msgs {
		if msgs[i].ID != localID {
			continue
		}
		msgs[i].ID = serverID
		msgs[i].Status, _ = e.tracker.Advance(roomID, serverID, msgs[i].Status, status.Sent)
		return
	}
}

// SetFocus marks a room as on-screen and runs the seen sweep: every
// inbound message not yet seen is transitioned remotely and locally, and
// the room's last-message status follows. Repeating the call is a no-op.
func (e *Engine) SetFocus(roomID string) {
	e.mu.Lock()
	e.focused = roomID
	uid := e.uid
	var unseen []chat.Message
	for _, m := range e.messages[roomID] {
		if m.InboundFor(uid) && status.Rank(m.Status) >= status.Rank(status.Sent) && m.Status != status.Seen {
			unseen = append(unseen, m)
		}
	}
	var room *chat.Room
	for i := range e.rooms {
		if e.rooms[i].RoomID == roomID {
			room = &e.rooms[i]
			break
		}
	}
	roomNeedsSeen := room != nil && room.LastMessageTo == uid && room.LastMessageStatus != status.Seen
	e.mu.Unlock()

	changed := false
	for _, m := range unseen {
		if err := e.store.UpdateFields(e.ctx, remote.MessagePath(roomID, m.ID),
			map[string]any{remote.FieldStatus: string(status.Seen)}); err != nil {
			e.logger.Warn("seen update failed",
				zap.String("room", roomID), zap.String("msg_id", m.ID), zap.Error(err))
			continue
		}
		e.advanceLocal(roomID, m.ID, status.Seen)
		changed = true
	}

	if roomNeedsSeen && len(unseen) > 0 {
		if err := e.store.UpdateFields(e.ctx, remote.RoomPath(roomID),
			map[string]any{remote.FieldLastMessageStatus: string(status.Seen)}); err != nil {
			e.logger.Warn("room seen update failed", zap.String("room", roomID), zap.Error(err))
		} else {
			e.mu.Lock()
			for i := range e.rooms {
				if e.rooms[i].RoomID == roomID {
					e.rooms[i].LastMessageStatus = status.Seen
				}
			}
			e.mu.Unlock()
			changed = true
		}
	}

	if changed {
		e.persist()
		e.publish(bus.KindRoomUpdated, map[string]string{"room": roomID})
	}
}

// Blur clears the focused room.
func (e *Engine) Blur() {
	e.mu.Lock()
	e.focused = ""
	e.mu.Unlock()
}

// persist mirrors the current state to the local cache. Failures degrade
// to live-only behavior.
func (e *Engine) persist() {
	if e.cache == nil {
		return
	}
	e.mu.RLock()
	rooms := make([]chat.Room, len(e.rooms))
	copy(rooms, e.rooms)
	messages := make(map[string][]chat.Message, len(e.messages))
	for k, v := range e.messages {
		msgs := make([]chat.Message, len(v))
		copy(msgs, v)
		messages[k] = msgs
	}
	e.mu.RUnlock()

	if err := e.cache.Save(rooms, messages); err != nil {
		e.logger.Warn("cache save failed", zap.Error(err))
	}
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
