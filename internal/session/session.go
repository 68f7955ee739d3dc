// Package session persists simulation pity state between calls.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xtding233/gacha-ledger/internal/gacha"
)

// Key identifies one simulated pity lineage.
type Key struct {
	Scope      string `json:"scope"`
	BannerType string `json:"bannerType"`
}

// Session is the stored pity state of a key. Version is 0 for a session that was
// never saved and grows by one on every successful Save.
type Session struct {
	Key       Key             `json:"key"`
	ID        uuid.UUID       `json:"id"`
	State     gacha.PityState `json:"state"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ErrVersionConflict means another writer saved the session first.
var ErrVersionConflict = errors.New("session version conflict")

// UsageRetention is how many days of usage counters are kept, today included.
const UsageRetention = 2

// Store persists sessions, daily usage counters and the scopes seen so far.
type Store interface {
	// Load returns the session of key, or a fresh one. Unreadable stored state
	// also yields a fresh state, keeping the stored version for the next Save.
	Load(ctx context.Context, key Key) (Session, error)
	// Save writes s if the stored version still equals s.Version and returns the
	// stored session. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, s Session) (Session, error)
	// IncrUsage adds one to the counter of (day, key) unless it already reached
	// limit (0 means no limit), and returns the resulting count.
	IncrUsage(ctx context.Context, day string, key Key, limit int) (int, bool, error)
	TouchScope(ctx context.Context, scope string) error
	Scopes(ctx context.Context) ([]string, error)
	Close() error
}

// Day formats t as a usage counter day.
func Day(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// oldestKept is the first day still retained when today is day.
func oldestKept(day string) string {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, -(UsageRetention - 1)).Format(time.DateOnly)
}

func fresh(key Key) Session {
	return Session{Key: key, ID: uuid.New()}
}
