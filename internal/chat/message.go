// Package chat implements the message relay core: it decodes protocol frames,
// executes the matching handler, fans events out to whichever of sender and
// receiver currently hold a live session, persists message state, and falls
// back to a push notification when the receiver is offline.
package chat

import (
	"context"
	"errors"
)

var (
	// ErrMessageNotFound means the referenced message id does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrUserNotFound means the user directory holds no such user.
	ErrUserNotFound = errors.New("user not found")
)

// Message is the durable chat record. Field names and epoch-millisecond
// timestamps match the wire format clients already speak.
type Message struct {
	ID         string `json:"id" bson:"_id"`
	SenderID   string `json:"senderId" bson:"senderId"`
	ReceiverID string `json:"receiverId" bson:"receiverId"`
	Body       string `json:"message" bson:"message"`
	ImageURL   string `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	CreatedAt  int64  `json:"createdAtTimestamp" bson:"createdAtTimestamp"`
	UpdatedAt  int64  `json:"updatedAtTimestamp" bson:"updatedAtTimestamp"`
	Seen       bool   `json:"seen" bson:"seen"`
}

// MessageStore is the durable owner of messages.
type MessageStore interface {
	Insert(ctx context.Context, msg Message) error
	Update(ctx context.Context, msg Message) error
	// FindByID returns ErrMessageNotFound when the id is unknown.
	FindByID(ctx context.Context, id string) (Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]Message, error)
	MarkSeen(ctx context.Context, ids []string) error
	ListByChat(ctx context.Context, userA, userB string) ([]Message, error)
}

// User is the slice of a user record the relay needs: a display name for
// notification titles and a device token for push targeting.
type User struct {
	ID          string
	DisplayName string
	DeviceToken string
}

// UserDirectory resolves user records. FindByID returns ErrUserNotFound when
// the id is unknown.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (User, error)
}

// NotificationSender dispatches a push notification to a device.
type NotificationSender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}
