package routing

import (
	"testing"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNack_ReversesPrefixIncludingFaultHop(t *testing.T) {
	orig := fragment(t, 2, 1, 2, 3, 4, 5)

	nack, err := BuildNack(orig, 2, packet.Dropped())
	require.NoError(t, err)

	assert.Equal(t, []packet.NodeID{3, 2, 1}, nack.RoutingHeader.Hops)
	assert.Equal(t, 1, nack.RoutingHeader.HopIndex)

	// First step moves toward the originator
	next, ok := nack.RoutingHeader.CurrentHop()
	require.True(t, ok)
	assert.Equal(t, packet.NodeID(2), next)

	body, ok := nack.Body.(*packet.Nack)
	require.True(t, ok)
	assert.Equal(t, packet.Dropped(), body.Kind)
	assert.Equal(t, uint64(3), body.FragmentIndex, "fragment index copied from fragment")
	assert.Equal(t, orig.SessionID, nack.SessionID)

	// Original untouched
	assert.Equal(t, []packet.NodeID{1, 2, 3, 4, 5}, orig.RoutingHeader.Hops)
}

func TestBuildNack_NonFragmentHasZeroIndex(t *testing.T) {
	orig := packet.NewAck(packet.NewHeader(1, 1, 2, 3), 7, &packet.Ack{FragmentIndex: 9})

	nack, err := BuildNack(orig, 1, packet.ErrorInRouting(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nack.Body.(*packet.Nack).FragmentIndex)
	assert.Equal(t, []packet.NodeID{2, 1}, nack.RoutingHeader.Hops)
}

func TestBuildNack_ClampsOutOfRangeFault(t *testing.T) {
	orig := fragment(t, 5, 1, 2, 3)

	nack, err := BuildNack(orig, 5, packet.UnexpectedRecipient(3))
	require.NoError(t, err)
	assert.Equal(t, []packet.NodeID{3, 2, 1}, nack.RoutingHeader.Hops)
}

func TestBuildNack_NoReturnPath(t *testing.T) {
	orig := fragment(t, 0, 1, 2)

	_, err := BuildNack(orig, 0, packet.Dropped())
	assert.ErrorIs(t, err, ErrNoReturnPath)

	empty := packet.NewAck(packet.SourceRoutingHeader{}, 1, &packet.Ack{})
	_, err = BuildNack(empty, 0, packet.Dropped())
	assert.ErrorIs(t, err, ErrNoReturnPath)
}

func TestNackFor(t *testing.T) {
	orig := fragment(t, 1, 1, 2, 7)

	_, verr := Validate(orig, 2, neighborSet{1: true})
	require.Error(t, verr)

	rerr := verr.(*Error)
	nack, err := NackFor(orig, rerr)
	require.NoError(t, err)
	assert.Equal(t, []packet.NodeID{2, 1}, nack.RoutingHeader.Hops)
	assert.Equal(t, packet.ErrorInRouting(7), nack.Body.(*packet.Nack).Kind)
}
