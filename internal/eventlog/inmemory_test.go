package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/eventlog"
)

// TestEventLog_AppendToTopic tests appending records to specific topics
func TestEventLog_AppendToTopic(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	ctx := context.Background()

	result1, err := log.AppendToTopic(ctx, "node.1", eventlog.NewRecord("node.1", []byte("e1")))
	if err != nil {
		t.Fatalf("Expected no error appending to node.1, got: %v", err)
	}
	if result1.Offset() != 0 {
		t.Errorf("Expected first node.1 record offset 0, got %d", result1.Offset())
	}

	result2, err := log.AppendToTopic(ctx, "node.1", eventlog.NewRecord("node.1", []byte("e2")))
	if err != nil {
		t.Fatalf("Expected no error appending to node.1, got: %v", err)
	}
	if result2.Offset() != 1 {
		t.Errorf("Expected second node.1 record offset 1, got %d", result2.Offset())
	}

	// Independent offset sequence per topic
	result3, err := log.AppendToTopic(ctx, "node.2", eventlog.NewRecord("node.2", []byte("e3")))
	if err != nil {
		t.Fatalf("Expected no error appending to node.2, got: %v", err)
	}
	if result3.Offset() != 0 {
		t.Errorf("Expected first node.2 record offset 0, got %d", result3.Offset())
	}
}

// TestEventLog_AppendUsesTargetTopic verifies a record built for another topic is re-homed
func TestEventLog_AppendUsesTargetTopic(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	stored, err := log.AppendToTopic(context.Background(), "node.9", eventlog.NewRecord("elsewhere", []byte("x")))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if stored.Topic() != "node.9" {
		t.Errorf("Expected topic node.9, got %s", stored.Topic())
	}
}

// TestEventLog_ReadFromTopic tests reading records from specific topics
func TestEventLog_ReadFromTopic(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	ctx := context.Background()
	for _, rec := range []struct{ topic, payload string }{
		{"node.1", "A0"}, {"node.1", "A1"}, {"node.2", "B0"}, {"node.1", "A2"},
	} {
		if _, err := log.AppendToTopic(ctx, rec.topic, eventlog.NewRecord(rec.topic, []byte(rec.payload))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	results, err := log.ReadFromTopic(ctx, "node.1", 1, 10)
	if err != nil {
		t.Fatalf("Error reading from node.1: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 records from node.1, got %d", len(results))
	}
	if string(results[0].Payload()) != "A1" || string(results[1].Payload()) != "A2" {
		t.Errorf("Unexpected payloads %q, %q", results[0].Payload(), results[1].Payload())
	}

	limited, err := log.ReadFromTopic(ctx, "node.1", 0, 1)
	if err != nil {
		t.Fatalf("Error reading from node.1: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected maxCount to limit results to 1, got %d", len(limited))
	}

	missing, err := log.ReadFromTopic(ctx, "node.7", 0, 10)
	if err != nil {
		t.Fatalf("Error reading from unknown topic: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Expected no records for unknown topic, got %d", len(missing))
	}

	zero, err := log.ReadFromTopic(ctx, "node.1", 0, 0)
	if err != nil || len(zero) != 0 {
		t.Errorf("Expected empty result for maxCount 0, got %d records, err %v", len(zero), err)
	}
}

// TestEventLog_InvalidArguments covers argument validation
func TestEventLog_InvalidArguments(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	ctx := context.Background()

	if _, err := log.AppendToTopic(ctx, "node.1", nil); !errors.Is(err, ErrNilRecord) {
		t.Errorf("Expected ErrNilRecord, got %v", err)
	}
	if _, err := log.ReadFromTopic(ctx, "node.1", -1, 10); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("Expected ErrNegativeOffset, got %v", err)
	}
	if _, err := log.ReadFromTopic(ctx, "node.1", 0, -1); !errors.Is(err, ErrNegativeMaxCount) {
		t.Errorf("Expected ErrNegativeMaxCount, got %v", err)
	}

	_, errChan := log.ReplayTopic(ctx, "node.1", -1)
	if err := <-errChan; !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("Expected ErrNegativeOffset from replay, got %v", err)
	}

	if _, err := NewInMemoryEventLogWithConfig(Config{MaxRecordsPerTopic: -1}); !errors.Is(err, ErrNegativeRetention) {
		t.Errorf("Expected ErrNegativeRetention, got %v", err)
	}
}

// TestEventLog_ReplayTopic streams records in offset order
func TestEventLog_ReplayTopic(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := log.AppendToTopic(ctx, "node.3", eventlog.NewRecord("node.3", []byte{byte(i)})); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	recordChan, errChan := log.ReplayTopic(ctx, "node.3", 2)
	var offsets []int64
	for record := range recordChan {
		offsets = append(offsets, record.Offset())
	}
	if err := <-errChan; err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if fmt.Sprint(offsets) != "[2 3 4]" {
		t.Errorf("Expected offsets [2 3 4], got %v", offsets)
	}
}

// TestEventLog_ReplayCancellation stops the stream on context cancellation
func TestEventLog_ReplayCancellation(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	for i := 0; i < 3; i++ {
		log.AppendToTopic(context.Background(), "node.3", eventlog.NewRecord("node.3", nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	recordChan, errChan := log.ReplayTopic(ctx, "node.3", 0)
	<-recordChan
	cancel()

	for range recordChan {
	}
	if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("Expected nil or context.Canceled, got %v", err)
	}
}

// TestEventLog_CompactKeepsNewest verifies retention without renumbering
func TestEventLog_CompactKeepsNewest(t *testing.T) {
	log, err := NewInMemoryEventLogWithConfig(Config{MaxRecordsPerTopic: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		log.AppendToTopic(ctx, "node.1", eventlog.NewRecord("node.1", []byte{byte(i)}))
	}
	log.AppendToTopic(ctx, "node.2", eventlog.NewRecord("node.2", nil))

	if err := log.Compact(ctx); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	records, err := log.ReadFromTopic(ctx, "node.1", 0, 10)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 2 || records[0].Offset() != 3 || records[1].Offset() != 4 {
		t.Fatalf("Expected offsets 3 and 4 after compaction, got %d records", len(records))
	}

	end, _ := log.GetTopicEndOffset(ctx, "node.1")
	if end != 5 {
		t.Errorf("Expected end offset to stay 5, got %d", end)
	}

	stats, err := log.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalEvents != 3 || stats.TopicCounts["node.1"] != 2 || stats.TopicCount != 2 {
		t.Errorf("Unexpected statistics %+v", stats)
	}
}

// TestEventLog_Topics lists topics in order
func TestEventLog_Topics(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	ctx := context.Background()
	for _, topic := range []string{"node.3", "node.1", "node.2", "node.1"} {
		log.AppendToTopic(ctx, topic, eventlog.NewRecord(topic, nil))
	}

	topics, err := log.Topics(ctx)
	if err != nil {
		t.Fatalf("Topics failed: %v", err)
	}
	if fmt.Sprint(topics) != "[node.1 node.2 node.3]" {
		t.Errorf("Unexpected topics %v", topics)
	}
}

// TestEventLog_ConcurrentAppends_ShouldHaveUniqueOffsets checks the log under parallel writers
func TestEventLog_ConcurrentAppends_ShouldHaveUniqueOffsets(t *testing.T) {
	log := NewInMemoryEventLog()
	defer log.Close()

	ctx := context.Background()
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r, err := log.AppendToTopic(ctx, "node.1", eventlog.NewRecord("node.1", nil))
				if err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
				mu.Lock()
				seen[r.Offset()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != writers*perWriter {
		t.Errorf("Expected %d unique offsets, got %d", writers*perWriter, len(seen))
	}
}

// TestEventLog_Close makes later operations fail
func TestEventLog_Close(t *testing.T) {
	log := NewInMemoryEventLog()
	ctx := context.Background()
	log.AppendToTopic(ctx, "node.1", eventlog.NewRecord("node.1", nil))

	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close should be idempotent, got %v", err)
	}

	if _, err := log.AppendToTopic(ctx, "node.1", eventlog.NewRecord("node.1", nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on append, got %v", err)
	}
	if _, err := log.GetStatistics(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on statistics, got %v", err)
	}
	_, errChan := log.ReplayTopic(ctx, "node.1", 0)
	if err := <-errChan; !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on replay, got %v", err)
	}
}
