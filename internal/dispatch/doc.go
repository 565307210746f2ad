// Package dispatch consumes catalog streams through reader groups and runs
// the registered handlers.
//
// A Container owns one poller per Registration, a bounded worker pool, a
// heartbeat loop for its consumers and a claim reaper. Delivery is
// at-least-once: an entry is acked after its handler returns nil or reports
// events.ErrMalformed, and stays pending otherwise. The reaper claims idle
// pending entries from consumers whose heartbeat expired, and this consumer's
// own idle entries that are not in flight, and redelivers them. Entries that
// exceed the delivery limit are copied to "<stream>:dlq" and acked.
//
// An optional ProcessedSet records handled envelope ids per group so a
// redelivery after a lost ack does not repeat the side effect.
package dispatch
