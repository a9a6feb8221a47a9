// Package eventlog implements the in-memory controller journal.
package eventlog

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/eventlog"
)

var (
	// ErrNegativeOffset is returned when a negative offset is provided
	ErrNegativeOffset = errors.New("offset cannot be negative")
	// ErrNegativeMaxCount is returned when a negative max count is provided
	ErrNegativeMaxCount = errors.New("max count cannot be negative")
	// ErrNilRecord is returned when a nil record is provided
	ErrNilRecord = errors.New("record cannot be nil")
	// ErrClosed is returned by operations on a closed log
	ErrClosed = errors.New("event log is closed")
	// ErrNegativeRetention is returned for a negative retention limit
	ErrNegativeRetention = errors.New("retention cannot be negative")
)

// Config controls retention of the in-memory log.
type Config struct {
	// MaxRecordsPerTopic is the number of newest records Compact keeps per
	// topic. Zero keeps everything.
	MaxRecordsPerTopic int
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.MaxRecordsPerTopic < 0 {
		return ErrNegativeRetention
	}
	return nil
}

// InMemoryEventLog implements the eventlog.EventLog interface using in-memory topic-partitioned storage.
// Each topic has its own independent event sequence and offset counter starting from 0.
// It is safe for concurrent use.
type InMemoryEventLog struct {
	mu                sync.RWMutex
	config            Config
	eventsByTopic     map[string][]*eventlog.Record // topic -> retained records, ascending offsets
	nextOffsetByTopic map[string]int64              // topic -> next offset
	closed            bool
}

// NewInMemoryEventLog creates a log that retains every record.
func NewInMemoryEventLog() *InMemoryEventLog {
	log, _ := NewInMemoryEventLogWithConfig(Config{})
	return log
}

// NewInMemoryEventLogWithConfig creates a log with a retention policy.
func NewInMemoryEventLogWithConfig(config Config) (*InMemoryEventLog, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &InMemoryEventLog{
		config:            config,
		eventsByTopic:     make(map[string][]*eventlog.Record),
		nextOffsetByTopic: make(map[string]int64),
	}, nil
}

// AppendToTopic appends a new record to a specific topic.
// The offset is assigned by the log per topic and set on the returned record.
func (log *InMemoryEventLog) AppendToTopic(ctx context.Context, topic string, record eventlog.EventRecord) (eventlog.EventRecord, error) {
	if record == nil {
		return nil, ErrNilRecord
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	if log.closed {
		return nil, ErrClosed
	}

	currentOffset := log.nextOffsetByTopic[topic]

	// Store our own Record type so later reads never reach into caller memory
	var stored *eventlog.Record
	if r, ok := record.(*eventlog.Record); ok && r.Topic() == topic {
		stored = r.WithOffset(currentOffset)
	} else {
		stored = eventlog.NewRecordWithHeaders(topic, record.Payload(), record.Headers()).WithOffset(currentOffset)
	}

	log.eventsByTopic[topic] = append(log.eventsByTopic[topic], stored)
	log.nextOffsetByTopic[topic]++

	return stored, nil
}

// ReadFromTopic reads records from a specific topic starting at a given offset, up to a max count.
// Reading from an offset that was compacted away starts at the oldest retained record.
func (log *InMemoryEventLog) ReadFromTopic(ctx context.Context, topic string, startOffset int64, maxCount int) ([]eventlog.EventRecord, error) {
	if startOffset < 0 {
		return nil, ErrNegativeOffset
	}
	if maxCount < 0 {
		return nil, ErrNegativeMaxCount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	if log.closed {
		return nil, ErrClosed
	}

	results := make([]eventlog.EventRecord, 0)
	if maxCount == 0 {
		return results, nil
	}

	for _, record := range log.from(topic, startOffset) {
		results = append(results, record)
		if len(results) >= maxCount {
			break
		}
	}
	return results, nil
}

// GetTopicEndOffset gets the current end offset for a specific topic (next append position).
func (log *InMemoryEventLog) GetTopicEndOffset(ctx context.Context, topic string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	if log.closed {
		return 0, ErrClosed
	}
	return log.nextOffsetByTopic[topic], nil
}

// ReplayTopic replays records from a specific topic starting at a given offset via a channel.
// The channels are closed when all records are sent or the context is cancelled.
func (log *InMemoryEventLog) ReplayTopic(ctx context.Context, topic string, startOffset int64) (<-chan eventlog.EventRecord, <-chan error) {
	recordChan := make(chan eventlog.EventRecord)
	errChan := make(chan error, 1)

	go func() {
		defer close(recordChan)
		defer close(errChan)

		if startOffset < 0 {
			errChan <- ErrNegativeOffset
			return
		}

		// Snapshot so the lock is not held while the consumer is slow
		log.mu.RLock()
		if log.closed {
			log.mu.RUnlock()
			errChan <- ErrClosed
			return
		}
		snapshot := slices.Clone(log.from(topic, startOffset))
		log.mu.RUnlock()

		for _, record := range snapshot {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case recordChan <- record:
			}
		}
	}()

	return recordChan, errChan
}

// Topics returns the names of all topics in ascending order.
func (log *InMemoryEventLog) Topics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	if log.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(log.nextOffsetByTopic)), nil
}

// Compact trims every topic to the newest MaxRecordsPerTopic records.
func (log *InMemoryEventLog) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	if log.closed {
		return ErrClosed
	}

	limit := log.config.MaxRecordsPerTopic
	if limit == 0 {
		return nil
	}
	for topic, records := range log.eventsByTopic {
		if excess := len(records) - limit; excess > 0 {
			log.eventsByTopic[topic] = slices.Clone(records[excess:])
		}
	}
	return nil
}

// GetStatistics returns overall statistics about the event log.
func (log *InMemoryEventLog) GetStatistics(ctx context.Context) (eventlog.EventLogStatistics, error) {
	if err := ctx.Err(); err != nil {
		return eventlog.EventLogStatistics{}, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	if log.closed {
		return eventlog.EventLogStatistics{}, ErrClosed
	}

	stats := eventlog.EventLogStatistics{
		TopicCounts: make(map[string]int64, len(log.eventsByTopic)),
		TopicCount:  len(log.nextOffsetByTopic),
	}
	for topic, records := range log.eventsByTopic {
		stats.TopicCounts[topic] = int64(len(records))
		stats.TotalEvents += int64(len(records))
	}
	return stats, nil
}

// Close releases all records. Later operations fail with ErrClosed.
func (log *InMemoryEventLog) Close() error {
	log.mu.Lock()
	defer log.mu.Unlock()

	if log.closed {
		return nil
	}

	log.eventsByTopic = make(map[string][]*eventlog.Record)
	log.nextOffsetByTopic = make(map[string]int64)
	log.closed = true
	return nil
}

// from returns the retained records of topic with offset >= start.
// Callers must hold the lock.
func (log *InMemoryEventLog) from(topic string, start int64) []*eventlog.Record {
	records := log.eventsByTopic[topic]
	i, _ := slices.BinarySearchFunc(records, start, func(r *eventlog.Record, target int64) int {
		switch {
		case r.Offset() < target:
			return -1
		case r.Offset() > target:
			return 1
		default:
			return 0
		}
	})
	return records[i:]
}

// Verify that InMemoryEventLog implements the EventLog interface at compile time
var _ eventlog.EventLog = (*InMemoryEventLog)(nil)
