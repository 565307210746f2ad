package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sort"
	"strconv"
)

// ErrCorrupt is returned when a stored entry fails its checksum or framing.
var ErrCorrupt = errors.New("eventlog: corrupt entry")

// ID identifies an entry inside one stream. IDs are assigned in append order
// starting at 1; zero means "before the first entry".
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Entry is one flat string-to-string record as stored in a stream.
type Entry struct {
	ID     ID
	TimeMs int64
	Fields map[string]string
}

// Record encoding:
//
//	ts_ms(8B BE) | uvarint nfields | (uvarint klen | key | uvarint vlen | value)* | crc32c
//
// Keys are written sorted so identical field sets encode identically.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeEntry(tsMs int64, fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	size := 8 + binary.MaxVarintLen64 + 4
	for k, v := range fields {
		keys = append(keys, k)
		size += len(k) + len(v) + 2*binary.MaxVarintLen32
	}
	sort.Strings(keys)

	out := make([]byte, 0, size)
	out = appendBE8(out, uint64(tsMs))
	out = binary.AppendUvarint(out, uint64(len(keys)))
	for _, k := range keys {
		v := fields[k]
		out = binary.AppendUvarint(out, uint64(len(k)))
		out = append(out, k...)
		out = binary.AppendUvarint(out, uint64(len(v)))
		out = append(out, v...)
	}
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

func decodeEntry(b []byte) (int64, map[string]string, error) {
	if len(b) < 8+1+4 {
		return 0, nil, ErrCorrupt
	}
	body := b[:len(b)-4]
	if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return 0, nil, ErrCorrupt
	}
	ts := int64(binary.BigEndian.Uint64(body[:8]))
	rest := body[8:]

	n, w := binary.Uvarint(rest)
	if w <= 0 {
		return 0, nil, ErrCorrupt
	}
	rest = rest[w:]
	fields := make(map[string]string, n)
	next := func() (string, bool) {
		l, w := binary.Uvarint(rest)
		if w <= 0 || uint64(len(rest)-w) < l {
			return "", false
		}
		s := string(rest[w : w+int(l)])
		rest = rest[w+int(l):]
		return s, true
	}
	for i := uint64(0); i < n; i++ {
		k, ok := next()
		if !ok {
			return 0, nil, ErrCorrupt
		}
		v, ok := next()
		if !ok {
			return 0, nil, ErrCorrupt
		}
		fields[k] = v
	}
	if len(rest) != 0 {
		return 0, nil, ErrCorrupt
	}
	return ts, fields, nil
}
