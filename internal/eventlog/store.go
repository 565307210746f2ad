package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
)

// ErrInvalidName rejects stream or group names the key layout cannot hold.
var ErrInvalidName = errors.New("eventlog: invalid name")

// Store hands out one shared *Log per stream so appenders and blocked readers
// see the same notify channel.
type Store struct {
	db *pebblestore.DB

	mu   sync.Mutex
	logs map[string]*Log
}

// NewStore wraps db.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, logs: make(map[string]*Log)}
}

// Log returns the stream handle, loading its metadata on first use. Opening a
// stream does not create it; only Append does.
func (s *Store) Log(stream string) (*Log, error) {
	if err := validateName(stream); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[stream]; ok {
		return l, nil
	}
	l, err := openLog(s.db, stream)
	if err != nil {
		return nil, err
	}
	s.logs[stream] = l
	return l, nil
}

// Peek returns the stream handle for read-only callers. A stream that has
// never been appended to is opened but not cached, so looking up arbitrary
// names does not pin memory. Its handle is never woken by WaitForAppend.
func (s *Store) Peek(stream string) (*Log, error) {
	if err := validateName(stream); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[stream]; ok {
		return l, nil
	}
	l, err := openLog(s.db, stream)
	if err != nil {
		return nil, err
	}
	if l.Exists() {
		s.logs[stream] = l
	}
	return l, nil
}

func (s *Store) cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// Streams lists every stream that has at least one append.
func (s *Store) Streams() ([]string, error) {
	var out []string
	err := s.db.ScanPrefix(streamIdx, func(k, _ []byte) bool {
		out = append(out, string(k[len(streamIdx):]))
		return true
	})
	return out, err
}

func validateName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Append adds one record to stream, creating the stream if needed.
func (s *Store) Append(ctx context.Context, stream string, fields map[string]string) (ID, error) {
	l, err := s.Log(stream)
	if err != nil {
		return 0, err
	}
	ids, err := l.Append(ctx, fields)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}
