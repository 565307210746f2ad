package dispatch

import "encoding/binary"

// Pebble keys owned by the dispatcher:
//   - dsp/cons/{group}/{consumer}                 consumer record (JSON)
//   - dsp/considx/{group}/{expires_be8}{consumer} expiry index
//   - dsp/done/{group}/{event_id}                 processed marker (ms BE8)

const (
	prefixConsumer    = "dsp/cons/"
	prefixConsumerIdx = "dsp/considx/"
	prefixDone        = "dsp/done/"
)

func consumerPrefix(group string) []byte {
	return []byte(prefixConsumer + group + "/")
}

func consumerKey(group, consumer string) []byte {
	return append(consumerPrefix(group), consumer...)
}

func consumerIdxPrefix(group string) []byte {
	return []byte(prefixConsumerIdx + group + "/")
}

func consumerIdxKey(group string, expiresMs int64, consumer string) []byte {
	k := consumerIdxPrefix(group)
	k = binary.BigEndian.AppendUint64(k, uint64(expiresMs))
	return append(k, consumer...)
}

func donePrefix(group string) []byte {
	return []byte(prefixDone + group + "/")
}

func doneKey(group, eventID string) []byte {
	return append(donePrefix(group), eventID...)
}
