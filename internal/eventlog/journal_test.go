package eventlog

import (
	"context"
	"testing"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTopic(t *testing.T) {
	assert.Equal(t, "node.12", NodeTopic(12))

	id, err := ParseNodeTopic("node.255")
	require.NoError(t, err)
	assert.Equal(t, packet.NodeID(255), id)

	for _, bad := range []string{"orders", "node.", "node.256", "node.x"} {
		_, err := ParseNodeTopic(bad)
		assert.ErrorIs(t, err, ErrNotNodeTopic, bad)
	}
}

func TestEventRecord_RoundTrip(t *testing.T) {
	nack := packet.NewNack(packet.NewHeader(1, 2, 1), 42, &packet.Nack{Kind: packet.Dropped()})
	ev := controller.Event{Kind: controller.PacketSent, NodeID: 2, Packet: nack}

	record, err := NewEventRecord(ev)
	require.NoError(t, err)
	assert.Equal(t, "node.2", record.Topic())
	assert.Equal(t, "packet_sent", record.Header(HeaderKind))
	assert.Equal(t, "nack", record.Header(HeaderPacketType))
	assert.Equal(t, "42", record.Header(HeaderSession))

	log := NewInMemoryEventLog()
	defer log.Close()
	stored, err := log.AppendToTopic(context.Background(), record.Topic(), record)
	require.NoError(t, err)

	decoded, err := DecodeEventRecord(stored)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestNewEventRecord_RequiresPacket(t *testing.T) {
	_, err := NewEventRecord(controller.Event{Kind: controller.PacketDropped, NodeID: 1})
	assert.Error(t, err)
}
