package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clicktochat/chatd/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service dispatches inbound frames to their handlers. Handlers always run
// with the authenticated user id bound to the connection; ids carried in
// frame payloads never identify the actor.
type Service struct {
	log      *zap.Logger
	sessions *session.Registry
	store    MessageStore
	users    UserDirectory
	notifier NotificationSender
	metrics  *Metrics

	nowFn func() time.Time
	newID func() string
}

// Options carries the service's optional dependencies. A nil Notifier
// disables push fallback; a nil Metrics disables instrumentation.
type Options struct {
	Notifier NotificationSender
	Metrics  *Metrics
}

// NewService wires the dispatcher's dependencies.
func NewService(log *zap.Logger, sessions *session.Registry, store MessageStore, users UserDirectory, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:      log,
		sessions: sessions,
		store:    store,
		users:    users,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		nowFn:    time.Now,
		newID:    uuid.NewString,
	}
}

// HandleFrame executes the handler for one decoded frame. A returned error
// is local to the frame: the caller reports it to the originating connection
// only and keeps the connection alive.
func (s *Service) HandleFrame(ctx context.Context, senderID string, req Request) error {
	switch req.Type {
	case RequestCreate:
		return s.createMessage(ctx, senderID, *req.Create)
	case RequestUpdate:
		return s.updateMessage(ctx, senderID, *req.Update)
	case RequestTyping:
		return s.relayTyping(senderID, req.ReceiverID, ResponseUserTyping)
	case RequestStopTyping:
		return s.relayTyping(senderID, req.ReceiverID, ResponseUserStopTyping)
	case RequestMessageSeen:
		return s.markSeen(ctx, senderID, *req.Seen)
	default:
		return &frameError{code: CodeInvalidFrame, msg: fmt.Sprintf("unsupported frame type %q", req.Type)}
	}
}

func (s *Service) createMessage(ctx context.Context, senderID string, req CreateMessageRequest) error {
	now := s.nowFn().UnixMilli()
	msg := Message{
		ID:         s.newID(),
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
		ImageURL:   req.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.deliver(Response{Type: ResponseCreateMessage, Message: &msg}, senderID, req.ReceiverID)

	if err := s.store.Insert(ctx, msg); err != nil {
		s.log.Error("insert message", zap.String("message_id", msg.ID), zap.Error(err))
		return &frameError{code: CodeStoreFailed, msg: "message could not be persisted"}
	}

	s.maybeNotify(ctx, msg)
	return nil
}

// maybeNotify sends a push to the receiver's device when the receiver has no
// live session. Every unresolvable step is a silent skip, never an error for
// the sender's frame.
func (s *Service) maybeNotify(ctx context.Context, msg Message) {
	if s.notifier == nil {
		return
	}
	if _, online := s.sessions.Lookup(msg.ReceiverID); online {
		return
	}
	receiver, err := s.users.FindByID(ctx, msg.ReceiverID)
	if err != nil || receiver.DeviceToken == "" {
		s.metrics.RecordNotification("skipped")
		return
	}
	sender, err := s.users.FindByID(ctx, msg.SenderID)
	if err != nil {
		s.metrics.RecordNotification("skipped")
		return
	}

	title := fmt.Sprintf("%s sent you a message", sender.DisplayName)
	data := map[string]string{
		"senderId":  msg.SenderID,
		"messageId": msg.ID,
		"message":   msg.Body,
	}
	if err := s.notifier.Send(ctx, receiver.DeviceToken, title, msg.Body, data); err != nil {
		s.log.Warn("send notification", zap.String("receiver_id", msg.ReceiverID), zap.Error(err))
		s.metrics.RecordNotification("error")
		return
	}
	s.metrics.RecordNotification("sent")
}

func (s *Service) updateMessage(ctx context.Context, senderID string, req UpdateMessageRequest) error {
	msg, err := s.store.FindByID(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return &frameError{code: CodeMessageNotFound, msg: fmt.Sprintf("message %s not found", req.MessageID)}
		}
		s.log.Error("load message", zap.String("message_id", req.MessageID), zap.Error(err))
		return &frameError{code: CodeStoreFailed, msg: "message could not be loaded"}
	}

	updated := msg
	if req.Body != nil {
		updated.Body = *req.Body
	}
	now := s.nowFn().UnixMilli()
	if now < msg.UpdatedAt {
		// updatedAt never moves backwards, even across clock steps.
		now = msg.UpdatedAt
	}
	updated.UpdatedAt = now

	s.deliver(Response{Type: ResponseUpdateMessage, Message: &updated}, senderID, msg.ReceiverID)

	if err := s.store.Update(ctx, updated); err != nil {
		s.log.Error("update message", zap.String("message_id", updated.ID), zap.Error(err))
		return &frameError{code: CodeStoreFailed, msg: "message could not be persisted"}
	}
	return nil
}

func (s *Service) relayTyping(senderID, receiverID, respType string) error {
	// Receiver only; the sender knows they are typing.
	s.deliver(Response{Type: respType, SenderID: senderID}, receiverID)
	return nil
}

// markSeen flags the listed messages and tells each affected message's
// original author that their messages were read. confirmerID is the
// authenticated user confirming receipt.
func (s *Service) markSeen(ctx context.Context, confirmerID string, req MessageSeenRequest) error {
	if len(req.Messages) == 0 {
		return nil
	}

	if err := s.store.MarkSeen(ctx, req.Messages); err != nil {
		s.log.Error("mark seen", zap.Strings("message_ids", req.Messages), zap.Error(err))
		return &frameError{code: CodeStoreFailed, msg: "messages could not be marked seen"}
	}

	msgs, err := s.store.FindByIDs(ctx, req.Messages)
	if err != nil {
		s.log.Error("load seen messages", zap.Strings("message_ids", req.Messages), zap.Error(err))
		return &frameError{code: CodeStoreFailed, msg: "seen messages could not be loaded"}
	}

	byAuthor := make(map[string][]Message)
	for _, msg := range msgs {
		msg.Seen = true
		byAuthor[msg.SenderID] = append(byAuthor[msg.SenderID], msg)
	}
	for authorID, seen := range byAuthor {
		s.deliver(Response{Type: ResponseSeenMessages, MessagesSeen: seen}, authorID)
	}

	s.log.Debug("messages marked seen",
		zap.String("confirmer_id", confirmerID),
		zap.Int("count", len(msgs)))
	return nil
}

// deliver fans a frame out to every listed user that currently holds a live
// session. Missing sessions are skipped; failed writes are logged and counted
// but never propagate into the triggering handler.
func (s *Service) deliver(resp Response, userIDs ...string) {
	payload, err := resp.Encode()
	if err != nil {
		s.log.Error("encode frame", zap.String("type", resp.Type), zap.Error(err))
		return
	}
	for _, userID := range userIDs {
		conn, ok := s.sessions.Lookup(userID)
		if !ok {
			continue
		}
		if err := conn.Send(payload); err != nil {
			s.log.Debug("drop delivery",
				zap.String("user_id", userID),
				zap.String("type", resp.Type),
				zap.Error(err))
			s.metrics.RecordDeliveryDropped()
		}
	}
}
