// Package eventlog implements durable append-only streams with reader groups
// on top of Pebble.
//
// # Model
//
// A stream is a sequence of flat string-to-string records addressed by a
// monotonically increasing ID. A stream exists once anything was appended to
// it. Reader groups track a delivery position per stream; every entry handed
// to a group member stays in the group's pending list until acknowledged, and
// idle pending entries can be claimed by another member.
//
// Keys:
//   - log/{stream}/m                      (lastSeq, createdMs)
//   - log/{stream}/e/{seq_be8}            entries
//   - log/{stream}/g/{group}              group position
//   - log/{stream}/p/{group}/{seq_be8}    pending entries list
//   - idx/streams/{stream}                stream index
//
// Usage
//
//	s := NewStore(db)
//	l, _ := s.Log("stream:edu:chapter-completed")
//	ids, _ := l.Append(ctx, map[string]string{"type": "CHAPTER_COMPLETED"})
//	_ = l.CreateGroup(ctx, "group:progress-service", true)
//	entries, _ := l.ReadGroup(ctx, "group:progress-service", "progress-service:1", 10)
//	_, _ = l.Ack(ctx, "group:progress-service", entries[0].ID)
//	woke := l.WaitForAppend(ctx, 2*time.Second)
package eventlog
