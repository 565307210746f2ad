// Package events defines the platform event catalog, the wire envelope, the
// typed payloads and the publisher.
//
// Every logical event maps to exactly one stream, "stream:edu:<suffix>". An
// envelope is flattened to a string map before it is appended; its data field
// carries the payload as a JSON object string so any consumer can decode it
// without the other fields.
package events
