package eventlog

import (
	"maps"
	"time"
)

// Record implements the EventRecord interface.
type Record struct {
	offset    int64
	topic     string
	payload   []byte
	timestamp time.Time
	headers   map[string]string
}

// NewRecord creates a record for topic. The offset is assigned on append.
func NewRecord(topic string, payload []byte) *Record {
	return NewRecordWithHeaders(topic, payload, nil)
}

// NewRecordWithHeaders creates a record carrying headers.
// Payload and headers are copied.
func NewRecordWithHeaders(topic string, payload []byte, headers map[string]string) *Record {
	var p []byte
	if payload != nil {
		p = make([]byte, len(payload))
		copy(p, payload)
	}
	h := make(map[string]string, len(headers))
	maps.Copy(h, headers)

	return &Record{
		topic:     topic,
		payload:   p,
		timestamp: time.Now().UTC(),
		headers:   h,
	}
}

// WithOffset returns a copy of the record placed at offset.
func (r *Record) WithOffset(offset int64) *Record {
	return &Record{
		offset:    offset,
		topic:     r.topic,
		payload:   r.payload,
		timestamp: r.timestamp,
		headers:   r.headers,
	}
}

func (r *Record) Offset() int64 {
	return r.offset
}

func (r *Record) Topic() string {
	return r.topic
}

func (r *Record) Payload() []byte {
	if r.payload == nil {
		return nil
	}
	result := make([]byte, len(r.payload))
	copy(result, r.payload)
	return result
}

func (r *Record) Timestamp() time.Time {
	return r.timestamp
}

func (r *Record) Headers() map[string]string {
	return maps.Clone(r.headers)
}

// Header returns a single header value without copying the map.
func (r *Record) Header(key string) string {
	return r.headers[key]
}

// Verify that Record implements the EventRecord interface at compile time
var _ EventRecord = (*Record)(nil)
