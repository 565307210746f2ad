package eventlog

import (
	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
)

// Range returns up to limit entries with id > after, in append order. A zero
// limit means no limit. Entries failing their checksum are skipped.
func (l *Log) Range(after ID, limit int) ([]Entry, error) {
	prefix := KeyEntryPrefix(l.stream)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyEntry(l.stream, after+1),
		UpperBound: pebblestore.PrefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	entries := make([]Entry, 0, max(1, limit))
	for iter.First(); iter.Valid() && (limit == 0 || len(entries) < limit); iter.Next() {
		key := iter.Key()
		if len(key) != len(prefix)+seqKeyLength {
			continue
		}
		ts, fields, err := decodeEntry(iter.Value())
		if err != nil {
			continue
		}
		entries = append(entries, Entry{ID: idFromKeySuffix(key), TimeMs: ts, Fields: fields})
	}
	return entries, iter.Error()
}
