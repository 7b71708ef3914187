// Package mongostore backs the relay's message store and user directory with
// MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/clicktochat/chatd/internal/chat"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "messages"
	usersCollection    = "users"
)

// Store owns the Mongo client and exposes the two collections the relay
// consumes: Messages implements chat.MessageStore, Users implements
// chat.UserDirectory.
type Store struct {
	client   *mongo.Client
	Messages *Messages
	Users    *Users
}

// Dial connects to Mongo and verifies the connection with a ping.
func Dial(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:   client,
		Messages: &Messages{col: db.Collection(messagesCollection)},
		Users:    &Users{col: db.Collection(usersCollection)},
	}, nil
}

// Close tears down the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Messages is the message collection.
type Messages struct {
	col *mongo.Collection
}

// Insert stores a new message record.
func (m *Messages) Insert(ctx context.Context, msg chat.Message) error {
	if _, err := m.col.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

// Update replaces the stored record for the message's id.
func (m *Messages) Update(ctx context.Context, msg chat.Message) error {
	if _, err := m.col.ReplaceOne(ctx, bson.M{"_id": msg.ID}, msg); err != nil {
		return fmt.Errorf("update message %s: %w", msg.ID, err)
	}
	return nil
}

// FindByID loads one message, mapping a missing document to
// chat.ErrMessageNotFound.
func (m *Messages) FindByID(ctx context.Context, id string) (chat.Message, error) {
	var msg chat.Message
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("find message %s: %w", id, err)
	}
	return msg, nil
}

// FindByIDs loads the listed messages, newest first. Unknown ids are simply
// absent from the result.
func (m *Messages) FindByIDs(ctx context.Context, ids []string) ([]chat.Message, error) {
	cursor, err := m.col.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "createdAtTimestamp", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	var msgs []chat.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// MarkSeen flags the listed messages as seen.
func (m *Messages) MarkSeen(ctx context.Context, ids []string) error {
	_, err := m.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"seen": true}},
	)
	if err != nil {
		return fmt.Errorf("mark messages seen: %w", err)
	}
	return nil
}

// ListByChat returns every message exchanged between the two users, newest
// first.
func (m *Messages) ListByChat(ctx context.Context, userA, userB string) ([]chat.Message, error) {
	participants := []string{userA, userB}
	cursor, err := m.col.Find(ctx,
		bson.M{
			"senderId":   bson.M{"$in": participants},
			"receiverId": bson.M{"$in": participants},
		},
		options.Find().SetSort(bson.D{{Key: "createdAtTimestamp", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	var msgs []chat.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode chat messages: %w", err)
	}
	return msgs, nil
}

// Users is the user collection. The relay only reads the fields it needs; the
// account service owns the rest of the document.
type Users struct {
	col *mongo.Collection
}

type userDoc struct {
	ID       string `bson:"_id"`
	Username string `bson:"username"`
	FCMToken string `bson:"fcmToken,omitempty"`
}

// FindByID resolves a user's display name and device token, mapping a
// missing document to chat.ErrUserNotFound.
func (u *Users) FindByID(ctx context.Context, id string) (chat.User, error) {
	var doc userDoc
	err := u.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.User{}, chat.ErrUserNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return chat.User{
		ID:          doc.ID,
		DisplayName: doc.Username,
		DeviceToken: doc.FCMToken,
	}, nil
}
