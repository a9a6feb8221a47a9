package eventlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/wire"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/eventlog"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// Record headers written for every journaled drone event
const (
	HeaderKind       = "kind"
	HeaderNode       = "node"
	HeaderPacketType = "packet_type"
	HeaderSession    = "session"
)

const topicPrefix = "node."

// ErrNotNodeTopic is returned when a topic name does not belong to a node.
var ErrNotNodeTopic = errors.New("not a node topic")

// NodeTopic is the journal topic holding the events of node id.
func NodeTopic(id packet.NodeID) string {
	return topicPrefix + strconv.Itoa(int(id))
}

// ParseNodeTopic is the inverse of NodeTopic.
func ParseNodeTopic(topic string) (packet.NodeID, error) {
	rest, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotNodeTopic, topic)
	}
	id, err := strconv.ParseUint(rest, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNodeTopic, topic)
	}
	return packet.NodeID(id), nil
}

// NewEventRecord encodes ev as a record for the topic of its node.
// The packet travels in the payload; headers allow filtering without decoding.
func NewEventRecord(ev controller.Event) (*eventlog.Record, error) {
	payload, err := wire.Marshal(ev.Packet)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}

	headers := map[string]string{
		HeaderKind:       ev.Kind.String(),
		HeaderNode:       strconv.Itoa(int(ev.NodeID)),
		HeaderPacketType: ev.Packet.Type().String(),
		HeaderSession:    strconv.FormatUint(ev.Packet.SessionID, 10),
	}
	return eventlog.NewRecordWithHeaders(NodeTopic(ev.NodeID), payload, headers), nil
}

// DecodeEventRecord turns a journal record back into the event it was built from.
func DecodeEventRecord(r eventlog.EventRecord) (controller.Event, error) {
	headers := r.Headers()

	kind, err := controller.ParseEventKind(headers[HeaderKind])
	if err != nil {
		return controller.Event{}, err
	}
	node, err := strconv.ParseUint(headers[HeaderNode], 10, 8)
	if err != nil {
		return controller.Event{}, fmt.Errorf("invalid node header %q: %w", headers[HeaderNode], err)
	}
	p, err := wire.Unmarshal(r.Payload())
	if err != nil {
		return controller.Event{}, fmt.Errorf("failed to decode record %s/%d: %w", r.Topic(), r.Offset(), err)
	}

	return controller.Event{Kind: kind, NodeID: packet.NodeID(node), Packet: p}, nil
}
