package dispatch

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
)

// now is swapped in tests.
var now = time.Now

// cleanupScanned runs between the expiry scan and the deletes; tests use it
// to land a heartbeat in that window.
var cleanupScanned = func() {}

// ConsumerRegistry tracks live consumers per group through heartbeats with a
// TTL. A consumer without a heartbeat inside the TTL is considered dead and
// its pending entries become claimable.
type ConsumerRegistry struct {
	db  *pebblestore.DB
	ttl time.Duration

	// mu serializes read-modify-write of consumer records.
	mu sync.Mutex
}

// Consumer is one registered group member.
type Consumer struct {
	ID            string            `json:"id"`
	Group         string            `json:"group"`
	RegisteredMs  int64             `json:"registered_ms"`
	LastHeartbeat int64             `json:"last_heartbeat_ms"`
	ExpiresAtMs   int64             `json:"expires_at_ms"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewConsumerRegistry returns a registry with the given TTL (default 15s).
func NewConsumerRegistry(db *pebblestore.DB, ttl time.Duration) *ConsumerRegistry {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &ConsumerRegistry{db: db, ttl: ttl}
}

// TTL returns the heartbeat TTL.
func (cr *ConsumerRegistry) TTL() time.Duration { return cr.ttl }

// Register adds or refreshes a consumer, keeping its first registration time.
func (cr *ConsumerRegistry) Register(ctx context.Context, group, consumerID string, metadata map[string]string) (*Consumer, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	nowMs := now().UnixMilli()
	c := &Consumer{
		ID:            consumerID,
		Group:         group,
		RegisteredMs:  nowMs,
		LastHeartbeat: nowMs,
		ExpiresAtMs:   nowMs + cr.ttl.Milliseconds(),
		Metadata:      metadata,
	}
	old, err := cr.Get(group, consumerID)
	if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return nil, err
	}
	if old != nil {
		c.RegisteredMs = old.RegisteredMs
		if metadata == nil {
			c.Metadata = old.Metadata
		}
	}
	if err := cr.write(ctx, c, old); err != nil {
		return nil, err
	}
	return c, nil
}

// Heartbeat extends the consumer's TTL, registering it if unknown, and
// returns the new expiry in ms.
func (cr *ConsumerRegistry) Heartbeat(ctx context.Context, group, consumerID string) (int64, error) {
	c, err := cr.Register(ctx, group, consumerID, nil)
	if err != nil {
		return 0, fmt.Errorf("heartbeat %s/%s: %w", group, consumerID, err)
	}
	return c.ExpiresAtMs, nil
}

func (cr *ConsumerRegistry) write(ctx context.Context, c *Consumer, old *Consumer) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal consumer: %w", err)
	}
	return cr.db.Update(ctx, func(b *pebble.Batch) error {
		if old != nil && old.ExpiresAtMs != c.ExpiresAtMs {
			if err := b.Delete(consumerIdxKey(c.Group, old.ExpiresAtMs, c.ID), nil); err != nil {
				return err
			}
		}
		if err := b.Set(consumerKey(c.Group, c.ID), raw, nil); err != nil {
			return err
		}
		return b.Set(consumerIdxKey(c.Group, c.ExpiresAtMs, c.ID), []byte(c.ID), nil)
	})
}

// Unregister removes a consumer. Unknown consumers are ignored.
func (cr *ConsumerRegistry) Unregister(ctx context.Context, group, consumerID string) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	c, err := cr.Get(group, consumerID)
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return cr.remove(ctx, c)
}

func (cr *ConsumerRegistry) remove(ctx context.Context, c *Consumer) error {
	group, consumerID := c.Group, c.ID
	return cr.db.Update(ctx, func(b *pebble.Batch) error {
		if err := b.Delete(consumerKey(group, consumerID), nil); err != nil {
			return err
		}
		return b.Delete(consumerIdxKey(group, c.ExpiresAtMs, consumerID), nil)
	})
}

// Get loads one consumer; unknown consumers return pebblestore.ErrNotFound.
func (cr *ConsumerRegistry) Get(group, consumerID string) (*Consumer, error) {
	raw, err := cr.db.Get(consumerKey(group, consumerID))
	if err != nil {
		return nil, err
	}
	var c Consumer
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("unmarshal consumer: %w", err)
	}
	return &c, nil
}

// List returns the group's consumers, live or not.
func (cr *ConsumerRegistry) List(group string) ([]Consumer, error) {
	var out []Consumer
	err := cr.db.ScanPrefix(consumerPrefix(group), func(_, v []byte) bool {
		var c Consumer
		if json.Unmarshal(v, &c) == nil {
			out = append(out, c)
		}
		return true
	})
	return out, err
}

// IsActive reports whether the consumer heartbeated within the TTL.
func (cr *ConsumerRegistry) IsActive(group, consumerID string) bool {
	c, err := cr.Get(group, consumerID)
	if err != nil {
		return false
	}
	return c.ExpiresAtMs > now().UnixMilli()
}

// CleanupExpired removes up to limit consumers whose TTL has passed. Each
// record is reloaded before deletion so a heartbeat that arrived after the
// scan keeps its consumer.
func (cr *ConsumerRegistry) CleanupExpired(ctx context.Context, group string, limit int) (int, error) {
	prefix := consumerIdxPrefix(group)
	nowMs := now().UnixMilli()
	var expired []string
	err := cr.db.ScanPrefix(prefix, func(k, _ []byte) bool {
		if len(k) < len(prefix)+8 {
			return true
		}
		if int64(binary.BigEndian.Uint64(k[len(prefix):len(prefix)+8])) > nowMs {
			return false
		}
		expired = append(expired, string(k[len(prefix)+8:]))
		return limit <= 0 || len(expired) < limit
	})
	if err != nil {
		return 0, err
	}
	cleanupScanned()
	n := 0
	for _, id := range expired {
		ok, err := cr.removeIfExpired(ctx, group, id, nowMs)
		if err != nil || !ok {
			continue
		}
		n++
	}
	return n, nil
}

func (cr *ConsumerRegistry) removeIfExpired(ctx context.Context, group, consumerID string, nowMs int64) (bool, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	c, err := cr.Get(group, consumerID)
	if err != nil {
		return false, err
	}
	if c.ExpiresAtMs > nowMs {
		return false, nil
	}
	return true, cr.remove(ctx, c)
}
