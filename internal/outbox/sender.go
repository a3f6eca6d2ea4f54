// Package outbox implements the remote half of an optimistic send: the
// engine shows the message locally as pending, the sender performs the
// remote writes and reports back the store-assigned id.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/fahad7169/chatd/internal/bus"
	"github.com/fahad7169/chatd/internal/chat"
	"github.com/fahad7169/chatd/internal/remote"
	"go.uber.org/zap"
)

// Sender performs the remote writes for one outbound message.
type Sender struct {
	store  remote.Store
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSender creates an outbox sender.
func NewSender(store remote.Store, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{store: store, bus: b, logger: logger}
}

// Send writes the message document and the room metadata, returning the
// store-assigned message id. Three writes happen, in order:
//
//  1. add the message document (wire status "sent"),
//  2. stamp the assigned id back onto the document (legacy messageId field),
//  3. merge-upsert the room document so the room exists after the first
//     message and its last-message fields move. The upsert is field-level:
//     concurrent status updates on the room are not clobbered.
//
// On failure the caller's optimistic message stays pending; no retry is
// attempted here.
func (s *Sender) Send(ctx context.Context, msg chat.Message) (string, error) {
	id, err := s.store.Add(ctx, remote.MessagesCollection(msg.RoomID), remote.EncodeMessage(msg))
	if err != nil {
		s.publishFailure(msg, err)
		return "", fmt.Errorf("add message: %w", err)
	}

	if err := s.store.UpdateFields(ctx, remote.MessagePath(msg.RoomID, id),
		map[string]any{remote.FieldMessageID: id}); err != nil {
		// The message document exists; the id stamp is best-effort
		// bookkeeping older clients read.
		s.logger.Warn("stamp message id", zap.String("msg_id", id), zap.Error(err))
	}

	if err := s.store.Upsert(ctx, remote.RoomPath(msg.RoomID), remote.EncodeRoomUpsert(msg), true); err != nil {
		s.publishFailure(msg, err)
		return "", fmt.Errorf("upsert room: %w", err)
	}

	s.logger.Info("message sent",
		zap.String("room", msg.RoomID),
		zap.String("client_msg_id", msg.ID),
		zap.String("server_msg_id", id))
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageSendAck,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"room":          msg.RoomID,
				"client_msg_id": msg.ID,
				"server_msg_id": id,
			},
		})
	}
	return id, nil
}

func (s *Sender) publishFailure(msg chat.Message, err error) {
	s.logger.Error("failed to send message",
		zap.String("room", msg.RoomID),
		zap.String("client_msg_id", msg.ID),
		zap.Error(err))
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageSendFailed,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"room":          msg.RoomID,
				"client_msg_id": msg.ID,
				"error":         err.Error(),
			},
		})
	}
}
