package eventlog

import (
	"context"
	"io"
	"time"
)

// EventRecord is a single journal entry. Implementations are immutable.
type EventRecord interface {
	// Offset is the position of the record within its topic
	Offset() int64

	// Topic is the partition the record belongs to
	Topic() string

	// Payload returns a copy of the encoded event
	Payload() []byte

	// Timestamp is when the record was created
	Timestamp() time.Time

	// Headers returns a copy of the record metadata
	Headers() map[string]string
}

// EventLog defines topic-scoped append-only storage.
// Each topic has its own independent offset sequence starting from 0.
type EventLog interface {
	io.Closer

	// AppendToTopic appends record to topic.
	// The offset is assigned by the log and set on the returned record.
	AppendToTopic(ctx context.Context, topic string, record EventRecord) (EventRecord, error)

	// ReadFromTopic reads up to maxCount records of topic starting at startOffset.
	ReadFromTopic(ctx context.Context, topic string, startOffset int64, maxCount int) ([]EventRecord, error)

	// GetTopicEndOffset returns the next append position of topic.
	GetTopicEndOffset(ctx context.Context, topic string) (int64, error)

	// ReplayTopic streams the records of topic starting at startOffset.
	// Both channels are closed once every record is sent or ctx is cancelled.
	ReplayTopic(ctx context.Context, topic string, startOffset int64) (<-chan EventRecord, <-chan error)

	// Topics returns the names of all topics in ascending order.
	Topics(ctx context.Context) ([]string, error)

	// Compact applies the retention policy of the log.
	// Offsets of retained records do not change.
	Compact(ctx context.Context) error

	// GetStatistics returns aggregate statistics about the log.
	GetStatistics(ctx context.Context) (EventLogStatistics, error)
}

// EventLogStatistics provides aggregate statistics about the event log
type EventLogStatistics struct {
	TotalEvents int64            `json:"total_events"` // Records currently retained across all topics
	TopicCounts map[string]int64 `json:"topic_counts"` // Records currently retained per topic
	TopicCount  int              `json:"topic_count"`  // Number of distinct topics
}
