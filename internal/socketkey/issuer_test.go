package socketkey

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestIssueAndConsume(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	key := issuer.Issue("alice")
	if key == "" {
		t.Fatal("expected non-empty key")
	}

	if err := issuer.Consume("alice", key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConsumeIsOneTime(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	key := issuer.Issue("alice")
	if err := issuer.Consume("alice", key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := issuer.Consume("alice", key); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey on second consume, got %v", err)
	}
}

func TestFailedConsumeBurnsKey(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	key := issuer.Issue("alice")
	if err := issuer.Consume("alice", "wrong"); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	// The mismatch attempt removed the entry; the real key is gone too.
	if err := issuer.Consume("alice", key); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey after burned key, got %v", err)
	}
}

func TestReissueInvalidatesPreviousKey(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	first := issuer.Issue("alice")
	second := issuer.Issue("alice")

	if err := issuer.Consume("alice", first); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch for stale key, got %v", err)
	}
	// The failed attempt consumed the entry, so even the new key is gone.
	if err := issuer.Consume("alice", second); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestConsumeExpiredKey(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	now := time.Now()
	issuer.nowFn = func() time.Time { return now }
	key := issuer.Issue("alice")

	issuer.nowFn = func() time.Time { return now.Add(10*time.Minute + time.Second) }
	if err := issuer.Consume("alice", key); !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("expected ErrKeyExpired, got %v", err)
	}
	if err := issuer.Consume("alice", key); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey after expiry consumed the entry, got %v", err)
	}
}

func TestIssueDoesNotAffectOtherUsers(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	aliceKey := issuer.Issue("alice")
	issuer.Issue("bob")

	if err := issuer.Consume("alice", aliceKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSweepDropsOnlyExpiredEntries(t *testing.T) {
	issuer := NewIssuer(10*time.Minute, zaptest.NewLogger(t))

	now := time.Now()
	issuer.nowFn = func() time.Time { return now }
	issuer.Issue("stale")

	issuer.nowFn = func() time.Time { return now.Add(5 * time.Minute) }
	fresh := issuer.Issue("fresh")

	issuer.sweep(now.Add(11 * time.Minute))

	issuer.mu.Lock()
	_, staleOK := issuer.keys["stale"]
	_, freshOK := issuer.keys["fresh"]
	issuer.mu.Unlock()

	if staleOK {
		t.Fatal("expected stale entry swept")
	}
	if !freshOK {
		t.Fatal("expected fresh entry kept")
	}

	issuer.nowFn = func() time.Time { return now.Add(6 * time.Minute) }
	if err := issuer.Consume("fresh", fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
