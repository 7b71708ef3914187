// Package socketkey issues the one-time keys that authorize opening a chat
// socket. A key is bound to a single user, expires after a fixed TTL, and is
// deleted on its first consumption attempt whether or not that attempt
// succeeds.
package socketkey

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoKey means no key is currently stored for the user.
	ErrNoKey = errors.New("no socket key issued")
	// ErrKeyMismatch means the presented key differs from the stored one.
	ErrKeyMismatch = errors.New("socket key mismatch")
	// ErrKeyExpired means the stored key's TTL has elapsed.
	ErrKeyExpired = errors.New("socket key expired")
)

type entry struct {
	id        string
	expiresAt time.Time
}

// Issuer hands out and validates one-time socket keys. At most one key is
// active per user; issuing again overwrites the previous one.
type Issuer struct {
	ttl       time.Duration
	log       *zap.Logger
	nowFn     func() time.Time
	sweepOnce sync.Once

	mu   sync.Mutex
	keys map[string]entry
}

// NewIssuer builds an issuer with the given key TTL.
func NewIssuer(ttl time.Duration, log *zap.Logger) *Issuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{
		ttl:   ttl,
		log:   log,
		nowFn: time.Now,
		keys:  make(map[string]entry),
	}
}

// Issue generates a fresh key for the user, replacing any previous one, and
// returns its id.
func (i *Issuer) Issue(userID string) string {
	key := uuid.NewString()

	i.mu.Lock()
	i.keys[userID] = entry{
		id:        key,
		expiresAt: i.nowFn().Add(i.ttl),
	}
	i.mu.Unlock()

	return key
}

// Consume validates the presented key for the user. The stored entry is
// removed regardless of the outcome; a key gets exactly one attempt.
func (i *Issuer) Consume(userID, presented string) error {
	i.mu.Lock()
	stored, ok := i.keys[userID]
	delete(i.keys, userID)
	i.mu.Unlock()

	if !ok {
		return ErrNoKey
	}
	if stored.id != presented {
		return ErrKeyMismatch
	}
	if !i.nowFn().Before(stored.expiresAt) {
		return ErrKeyExpired
	}
	return nil
}

// StartSweeper launches a periodic sweep that drops expired entries. Expiry
// is already enforced on Consume; the sweep only bounds the map for users who
// mint a key and never connect.
func (i *Issuer) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	i.sweepOnce.Do(func() {
		ticker := time.NewTicker(interval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					i.sweep(i.nowFn())
				}
			}
		}()
	})
}

func (i *Issuer) sweep(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for userID, e := range i.keys {
		if !now.Before(e.expiresAt) {
			delete(i.keys, userID)
			i.log.Debug("swept expired socket key", zap.String("user_id", userID))
		}
	}
}
