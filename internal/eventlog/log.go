package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
)

var (
	// ErrNoStream is returned by group operations on a stream that has never
	// been appended to.
	ErrNoStream = errors.New("eventlog: stream does not exist")
	// ErrNotFound is returned when an entry id is absent.
	ErrNotFound = errors.New("eventlog: entry not found")
	// ErrEmptyRecord rejects appends without fields.
	ErrEmptyRecord = errors.New("eventlog: record has no fields")
)

// nowMs is swapped in tests to control idle time.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Log is one append-only stream plus its reader groups.
type Log struct {
	db     *pebblestore.DB
	stream string

	mu        sync.Mutex
	lastSeq   uint64
	createdMs int64
	exists    bool
	notifyCh  chan struct{}

	// gmu serializes reader group state and PEL mutations.
	gmu sync.Mutex
}

func openLog(db *pebblestore.DB, stream string) (*Log, error) {
	l := &Log{db: db, stream: stream, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyStreamMeta(stream))
	switch {
	case err == nil && len(meta) >= 16:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
		l.createdMs = int64(binary.BigEndian.Uint64(meta[8:16]))
		l.exists = true
	case err == nil:
		return nil, fmt.Errorf("stream %s: %w", stream, ErrCorrupt)
	case !errors.Is(err, pebblestore.ErrNotFound):
		return nil, err
	}
	return l, nil
}

// Stream returns the stream key.
func (l *Log) Stream() string { return l.stream }

// Exists reports whether anything was ever appended to the stream.
func (l *Log) Exists() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exists
}

// LastID returns the id of the newest entry, or 0 for an empty stream.
func (l *Log) LastID() ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ID(l.lastSeq)
}

// Append writes the records as one atomic batch and returns their ids. The
// first append creates the stream.
func (l *Log) Append(ctx context.Context, records ...map[string]string) ([]ID, error) {
	if len(records) == 0 {
		return nil, nil
	}
	for _, r := range records {
		if len(r) == 0 {
			return nil, ErrEmptyRecord
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := nowMs()
	created := l.createdMs
	if !l.exists {
		created = now
	}
	ids := make([]ID, len(records))
	next := l.lastSeq
	err := l.db.Update(ctx, func(b *pebble.Batch) error {
		for i, r := range records {
			next++
			ids[i] = ID(next)
			if err := b.Set(KeyEntry(l.stream, ids[i]), encodeEntry(now, r), nil); err != nil {
				return err
			}
		}
		var meta [16]byte
		binary.BigEndian.PutUint64(meta[:8], next)
		binary.BigEndian.PutUint64(meta[8:], uint64(created))
		if err := b.Set(KeyStreamMeta(l.stream), meta[:], nil); err != nil {
			return err
		}
		if !l.exists {
			return b.Set(KeyStreamIndex(l.stream), nil, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.lastSeq = next
	l.createdMs = created
	l.exists = true

	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return ids, nil
}

// Get loads one entry by id.
func (l *Log) Get(id ID) (Entry, error) {
	raw, err := l.db.Get(KeyEntry(l.stream, id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	ts, fields, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: id, TimeMs: ts, Fields: fields}, nil
}
