package peerlink

import (
	"errors"
	"io"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// ErrUnreachable is returned by Send once the neighbor can no longer be reached.
var ErrUnreachable = errors.New("neighbor unreachable")

// LinkState represents the state of an outbound link
type LinkState int

const (
	LinkOpen LinkState = iota
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkOpen:
		return "Open"
	case LinkClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Link is the outbound send capability toward one neighbor.
//
// Packets sent over the same Link are delivered in submission order. Send
// never blocks on the receiver. After Close, every Send fails with an error
// wrapping ErrUnreachable; closing a Link is how the loss of a neighbor is
// signaled.
type Link interface {
	io.Closer

	// Peer returns the id of the neighbor this link delivers to.
	Peer() packet.NodeID

	// Send hands p to the neighbor. Ownership of p passes to the receiver.
	Send(p *packet.Packet) error

	// State reports whether the link still accepts packets.
	State() LinkState
}
