package dispatch

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
)

// ProcessedSet remembers envelope ids a group has already handled so a
// redelivered entry can be acked without repeating its side effect. Markers
// older than the TTL are pruned.
type ProcessedSet struct {
	db  *pebblestore.DB
	ttl time.Duration
}

// NewProcessedSet returns a set with the given TTL (default 24h).
func NewProcessedSet(db *pebblestore.DB, ttl time.Duration) *ProcessedSet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProcessedSet{db: db, ttl: ttl}
}

// Seen reports whether group already handled eventID within the TTL.
func (p *ProcessedSet) Seen(group, eventID string) bool {
	if p == nil || eventID == "" {
		return false
	}
	raw, err := p.db.Get(doneKey(group, eventID))
	if err != nil || len(raw) < 8 {
		return false
	}
	at := int64(binary.BigEndian.Uint64(raw))
	return now().UnixMilli()-at < p.ttl.Milliseconds()
}

// Mark records eventID as handled by group.
func (p *ProcessedSet) Mark(ctx context.Context, group, eventID string) error {
	if p == nil || eventID == "" {
		return nil
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(now().UnixMilli()))
	return p.db.Update(ctx, func(b *pebble.Batch) error {
		return b.Set(doneKey(group, eventID), v[:], nil)
	})
}

// Prune deletes markers of group older than the TTL and returns how many.
func (p *ProcessedSet) Prune(ctx context.Context, group string) (int, error) {
	cutoff := now().UnixMilli() - p.ttl.Milliseconds()
	var stale [][]byte
	err := p.db.ScanPrefix(donePrefix(group), func(k, v []byte) bool {
		if len(v) >= 8 && int64(binary.BigEndian.Uint64(v)) <= cutoff {
			stale = append(stale, append([]byte(nil), k...))
		}
		return true
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}
	err = p.db.Update(ctx, func(b *pebble.Batch) error {
		for _, k := range stale {
			if err := b.Delete(k, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}
