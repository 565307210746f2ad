package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
//   - log/{stream}/m                      stream metadata (lastSeq, createdMs)
//   - log/{stream}/e/{seq_be8}            entries
//   - log/{stream}/g/{group}              reader group state
//   - log/{stream}/p/{group}/{seq_be8}    pending entries list
//   - idx/streams/{stream}                stream index

var (
	sep          = byte('/')
	logPrefix    = []byte("log/")
	streamIdx    = []byte("idx/streams/")
	metaSuffix   = []byte("/m")
	entrySeg     = []byte("/e/")
	groupSeg     = []byte("/g/")
	pendingSeg   = []byte("/p/")
	seqKeyLength = 8
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func streamBase(stream string, extra int) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+extra)
	k = append(k, logPrefix...)
	return append(k, stream...)
}

// KeyStreamMeta builds the stream metadata key.
func KeyStreamMeta(stream string) []byte {
	return append(streamBase(stream, 2), metaSuffix...)
}

// KeyEntryPrefix returns the prefix shared by all entries of a stream.
func KeyEntryPrefix(stream string) []byte {
	return append(streamBase(stream, 3+seqKeyLength), entrySeg...)
}

// KeyEntry builds the entry key with a big-endian sequence for proper ordering.
func KeyEntry(stream string, id ID) []byte {
	return appendBE8(KeyEntryPrefix(stream), uint64(id))
}

// KeyGroupPrefix returns the prefix of all group records of a stream.
func KeyGroupPrefix(stream string) []byte {
	return append(streamBase(stream, 3), groupSeg...)
}

// KeyGroup builds the reader group state key.
func KeyGroup(stream, group string) []byte {
	return append(KeyGroupPrefix(stream), group...)
}

// KeyPendingPrefix returns the prefix of a group's pending entries list.
func KeyPendingPrefix(stream, group string) []byte {
	k := append(streamBase(stream, 4+len(group)+seqKeyLength), pendingSeg...)
	k = append(k, group...)
	return append(k, sep)
}

// KeyPending builds the pending entry key for one delivered entry.
func KeyPending(stream, group string, id ID) []byte {
	return appendBE8(KeyPendingPrefix(stream, group), uint64(id))
}

// KeyStreamIndex builds the index key used to enumerate streams.
func KeyStreamIndex(stream string) []byte {
	k := make([]byte, 0, len(streamIdx)+len(stream))
	k = append(k, streamIdx...)
	return append(k, stream...)
}

func idFromKeySuffix(key []byte) ID {
	if len(key) < seqKeyLength {
		return 0
	}
	return ID(binary.BigEndian.Uint64(key[len(key)-seqKeyLength:]))
}
