// Package session tracks the single live connection held by each connected
// user. The registry is the sole owner of its entries: a connection never
// outlives its registry entry without being closed.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/clicktochat/chatd/internal/socketkey"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyConnected means the user already holds a live session.
	ErrAlreadyConnected = errors.New("user already connected")
	// ErrInvalidKey covers a missing, mismatched or expired socket key.
	ErrInvalidKey = errors.New("invalid socket key")
)

// Conn is the transport handle the registry owns. Send must be safe to call
// from any goroutine and must fail softly once the connection is closed.
type Conn interface {
	Send(payload []byte) error
	Close() error
}

// Registry maps a user id to its live connection and guards the map against
// concurrent joins, lookups and leaves.
type Registry struct {
	keys *socketkey.Issuer
	log  *zap.Logger

	mu    sync.Mutex
	conns map[string]Conn
}

// NewRegistry builds a registry that validates joins against the key issuer.
func NewRegistry(keys *socketkey.Issuer, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		keys:  keys,
		log:   log,
		conns: make(map[string]Conn),
	}
}

// Join registers the connection for the user after validating the one-time
// key. The already-connected check runs before key consumption so a duplicate
// join does not burn the legitimate key. The whole check-consume-insert
// sequence holds the registry lock, so two concurrent joins for the same user
// cannot both succeed.
func (r *Registry) Join(userID, key string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[userID]; ok {
		return ErrAlreadyConnected
	}
	if err := r.keys.Consume(userID, key); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	r.conns[userID] = conn
	return nil
}

// Lookup returns the user's live connection, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	r.mu.Unlock()
	return conn, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Leave removes the user's session and closes its connection. Calling it when
// no session exists is a no-op.
func (r *Registry) Leave(userID string) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	delete(r.conns, userID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		r.log.Debug("close on leave", zap.String("user_id", userID), zap.Error(err))
	}
}

// CloseAll tears down every live session. Used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for userID, conn := range conns {
		if err := conn.Close(); err != nil {
			r.log.Debug("close on shutdown", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
