package peerlink

import (
	"fmt"
	"sync/atomic"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
)

// ChannelLink implements peerlink.Link by pushing into the neighbor's inbound queue.
// Closing the link does not close the neighbor's queue; other neighbors may
// still be delivering into it.
type ChannelLink struct {
	peer   packet.NodeID
	inbox  *Queue[*packet.Packet]
	closed atomic.Bool
}

// NewChannelLink creates a link delivering to peer through inbox.
func NewChannelLink(peer packet.NodeID, inbox *Queue[*packet.Packet]) *ChannelLink {
	return &ChannelLink{
		peer:  peer,
		inbox: inbox,
	}
}

// Peer returns the id of the neighbor this link delivers to
func (l *ChannelLink) Peer() packet.NodeID {
	return l.peer
}

// Send pushes p into the neighbor's inbound queue
func (l *ChannelLink) Send(p *packet.Packet) error {
	if p == nil {
		return fmt.Errorf("cannot send nil packet to node %d", l.peer)
	}
	if l.closed.Load() {
		return fmt.Errorf("%w: link to node %d is closed", peerlink.ErrUnreachable, l.peer)
	}
	if err := l.inbox.Push(p); err != nil {
		return fmt.Errorf("%w: node %d: %v", peerlink.ErrUnreachable, l.peer, err)
	}
	return nil
}

// State reports whether the link still accepts packets
func (l *ChannelLink) State() peerlink.LinkState {
	if l.closed.Load() {
		return peerlink.LinkClosed
	}
	return peerlink.LinkOpen
}

// Close releases the link. Safe to call multiple times.
func (l *ChannelLink) Close() error {
	l.closed.Store(true)
	return nil
}

// Verify that ChannelLink implements the Link interface at compile time
var _ peerlink.Link = (*ChannelLink)(nil)
