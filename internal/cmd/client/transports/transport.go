package transports

import "context"

// Entry is one log record as returned by the dead-letter and tail endpoints.
type Entry struct {
	ID     string            `json:"id"`
	TimeMs int64             `json:"timeMs"`
	Fields map[string]string `json:"fields"`
}

// PendingItem is one delivered but unacknowledged entry of a group.
type PendingItem struct {
	ID         string `json:"id"`
	Consumer   string `json:"consumer"`
	Deliveries int    `json:"deliveries"`
	IdleMs     int64  `json:"idleMs"`
}

// GroupInfo summarizes a reader group on a stream.
type GroupInfo struct {
	Name          string `json:"name"`
	LastDelivered uint64 `json:"last_delivered"`
	Pending       int    `json:"pending"`
	CreatedMs     int64  `json:"created_ms"`
}

// StreamInfo describes one stream and its groups.
type StreamInfo struct {
	Stream string      `json:"stream"`
	LastID string      `json:"lastId"`
	Groups []GroupInfo `json:"groups"`
}

// PublishResult is the server's answer to a publish.
type PublishResult struct {
	RecordID string `json:"recordId"`
	Stream   string `json:"stream"`
}

// PendingRequest selects a group's pending list. Stream wins over Type and
// Group over Service.
type PendingRequest struct {
	Stream  string
	Type    string
	Group   string
	Service string
}

// TailRequest describes a tail of one stream without a reader group.
type TailRequest struct {
	Stream string
	Type   string
	From   string
	Limit  int
}

// Announcement is the body of a new announcement.
type Announcement struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	TargetAudience string `json:"targetAudience,omitempty"`
}

// AnnounceResult carries the stored announcement and the queued event id.
type AnnounceResult struct {
	Announcement struct {
		ID int64 `json:"id"`
		Announcement
	} `json:"announcement"`
	EventID string `json:"eventId"`
}

// EventsTransport abstracts how the CLI reaches the event log.
type EventsTransport interface {
	Publish(ctx context.Context, eventType, source string, data []byte) (PublishResult, error)
	Streams(ctx context.Context) ([]StreamInfo, error)
	Pending(ctx context.Context, req PendingRequest) ([]PendingItem, error)
	DeadLetters(ctx context.Context, stream, eventType string, limit int) ([]Entry, error)
	Tail(ctx context.Context, req TailRequest, onEntry func(Entry) error) error
	Announce(ctx context.Context, a Announcement) (AnnounceResult, error)
}
