package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
)

var (
	// ErrGroupExists is returned by CreateGroup when the group is already there.
	ErrGroupExists = errors.New("eventlog: group already exists")
	// ErrNoGroup is returned when reading or acking through an unknown group.
	ErrNoGroup = errors.New("eventlog: no such group")
)

type groupState struct {
	LastDelivered ID    `json:"last_delivered"`
	CreatedMs     int64 `json:"created_ms"`
}

type pendingState struct {
	Consumer   string `json:"consumer"`
	Deliveries int    `json:"deliveries"`
	LastMs     int64  `json:"last_ms"`
}

// GroupInfo summarizes a reader group.
type GroupInfo struct {
	Name          string `json:"name"`
	LastDelivered ID     `json:"last_delivered"`
	Pending       int    `json:"pending"`
	CreatedMs     int64  `json:"created_ms"`
}

// PendingEntry is a delivered but unacknowledged entry.
type PendingEntry struct {
	ID         ID     `json:"id"`
	Consumer   string `json:"consumer"`
	Deliveries int    `json:"deliveries"`
	LastMs     int64  `json:"last_ms"`
}

// Idle returns how long the entry has waited since its last delivery.
func (p PendingEntry) Idle(nowMs int64) time.Duration {
	return time.Duration(nowMs-p.LastMs) * time.Millisecond
}

// Delivery is an entry handed to a consumer together with its delivery count.
type Delivery struct {
	Entry
	Deliveries int
}

// CreateGroup creates a reader group. With fromBeginning the group starts
// before the first entry, otherwise after the current tail.
func (l *Log) CreateGroup(ctx context.Context, group string, fromBeginning bool) error {
	if err := validateName(group); err != nil {
		return err
	}
	l.mu.Lock()
	exists, tail := l.exists, l.lastSeq
	l.mu.Unlock()
	if !exists {
		return fmt.Errorf("%s: %w", l.stream, ErrNoStream)
	}

	l.gmu.Lock()
	defer l.gmu.Unlock()
	ok, err := l.db.Has(KeyGroup(l.stream, group))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s/%s: %w", l.stream, group, ErrGroupExists)
	}
	st := groupState{CreatedMs: nowMs()}
	if !fromBeginning {
		st.LastDelivered = ID(tail)
	}
	raw, _ := json.Marshal(st)
	return l.db.Update(ctx, func(b *pebble.Batch) error {
		return b.Set(KeyGroup(l.stream, group), raw, nil)
	})
}

func (l *Log) loadGroup(group string) (groupState, error) {
	var st groupState
	raw, err := l.db.Get(KeyGroup(l.stream, group))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return st, fmt.Errorf("%s/%s: %w", l.stream, group, ErrNoGroup)
	}
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("group %s: %w", group, ErrCorrupt)
	}
	return st, nil
}

// ReadGroup delivers up to count never-delivered entries to consumer, records
// them in the group's pending list and advances the group position.
func (l *Log) ReadGroup(ctx context.Context, group, consumer string, count int) ([]Entry, error) {
	if count <= 0 {
		count = 1
	}
	l.gmu.Lock()
	defer l.gmu.Unlock()

	st, err := l.loadGroup(group)
	if err != nil {
		return nil, err
	}
	entries, err := l.Range(st.LastDelivered, count)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	now := nowMs()
	pe, _ := json.Marshal(pendingState{Consumer: consumer, Deliveries: 1, LastMs: now})
	st.LastDelivered = entries[len(entries)-1].ID
	gs, _ := json.Marshal(st)
	err = l.db.Update(ctx, func(b *pebble.Batch) error {
		for _, e := range entries {
			if err := b.Set(KeyPending(l.stream, group, e.ID), pe, nil); err != nil {
				return err
			}
		}
		return b.Set(KeyGroup(l.stream, group), gs, nil)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Ack removes ids from the group's pending list and returns how many were
// actually pending.
func (l *Log) Ack(ctx context.Context, group string, ids ...ID) (int, error) {
	l.gmu.Lock()
	defer l.gmu.Unlock()
	if _, err := l.loadGroup(group); err != nil {
		return 0, err
	}
	acked := 0
	seen := make(map[ID]struct{}, len(ids))
	err := l.db.Update(ctx, func(b *pebble.Batch) error {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			k := KeyPending(l.stream, group, id)
			ok, err := l.db.Has(k)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := b.Delete(k, nil); err != nil {
				return err
			}
			acked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return acked, nil
}

// Pending lists the group's unacknowledged entries in id order.
func (l *Log) Pending(group string) ([]PendingEntry, error) {
	if _, err := l.loadGroup(group); err != nil {
		return nil, err
	}
	return l.scanPending(group)
}

func (l *Log) scanPending(group string) ([]PendingEntry, error) {
	prefix := KeyPendingPrefix(l.stream, group)
	var out []PendingEntry
	var decodeErr error
	err := l.db.ScanPrefix(prefix, func(k, v []byte) bool {
		if len(k) != len(prefix)+seqKeyLength {
			return true
		}
		var ps pendingState
		if err := json.Unmarshal(v, &ps); err != nil {
			decodeErr = fmt.Errorf("pending %s/%s: %w", l.stream, group, ErrCorrupt)
			return false
		}
		out = append(out, PendingEntry{ID: idFromKeySuffix(k), Consumer: ps.Consumer, Deliveries: ps.Deliveries, LastMs: ps.LastMs})
		return true
	})
	if err == nil {
		err = decodeErr
	}
	return out, err
}

// Claim transfers ownership of up to count pending entries idle for at least
// minIdle to consumer. When eligible is non-nil it must also accept the entry.
// Each claim counts as a new delivery. Pending entries whose log entry is
// gone are dropped from the list.
func (l *Log) Claim(ctx context.Context, group, consumer string, minIdle time.Duration, count int, eligible func(PendingEntry) bool) ([]Delivery, error) {
	l.gmu.Lock()
	defer l.gmu.Unlock()
	if _, err := l.loadGroup(group); err != nil {
		return nil, err
	}
	pending, err := l.scanPending(group)
	if err != nil {
		return nil, err
	}
	now := nowMs()
	var out []Delivery
	err = l.db.Update(ctx, func(b *pebble.Batch) error {
		for _, p := range pending {
			if count > 0 && len(out) >= count {
				break
			}
			if p.Idle(now) < minIdle {
				continue
			}
			if eligible != nil && !eligible(p) {
				continue
			}
			k := KeyPending(l.stream, group, p.ID)
			e, err := l.Get(p.ID)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
				if err := b.Delete(k, nil); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			ps := pendingState{Consumer: consumer, Deliveries: p.Deliveries + 1, LastMs: now}
			raw, _ := json.Marshal(ps)
			if err := b.Set(k, raw, nil); err != nil {
				return err
			}
			out = append(out, Delivery{Entry: e, Deliveries: ps.Deliveries})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Groups lists every reader group of the stream with its pending count.
func (l *Log) Groups() ([]GroupInfo, error) {
	prefix := KeyGroupPrefix(l.stream)
	var out []GroupInfo
	err := l.db.ScanPrefix(prefix, func(k, v []byte) bool {
		var st groupState
		if json.Unmarshal(v, &st) != nil {
			return true
		}
		out = append(out, GroupInfo{Name: string(k[len(prefix):]), LastDelivered: st.LastDelivered, CreatedMs: st.CreatedMs})
		return true
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		p, err := l.scanPending(out[i].Name)
		if err != nil {
			return nil, err
		}
		out[i].Pending = len(p)
	}
	return out, nil
}
