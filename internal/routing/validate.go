// Package routing classifies inbound packets and builds the NACKs sent back
// when a packet cannot make progress.
package routing

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

var (
	// ErrUnexpectedRecipient is matched by routing errors for packets addressed to another node
	ErrUnexpectedRecipient = errors.New("unexpected recipient")
	// ErrDestinationIsDrone is matched by routing errors for paths ending on this node
	ErrDestinationIsDrone = errors.New("destination is drone")
	// ErrNextHopUnknown is matched by routing errors for next hops that are not neighbors
	ErrNextHopUnknown = errors.New("next hop is not a neighbor")
)

// NeighborSet answers neighbor membership queries.
type NeighborSet interface {
	Contains(id packet.NodeID) bool
}

// NextHop is the outcome of a successful validation.
type NextHop struct {
	// ID is the neighbor the packet moves to. Unset for broadcasts.
	ID packet.NodeID

	// Broadcast marks flood requests, which carry no committed next hop
	// and are handed to the flood engine instead of being forwarded.
	Broadcast bool
}

// Error is a routing failure. It is always recoverable: the caller turns it
// into a NACK carrying Kind.
type Error struct {
	Kind packet.NackKind

	// HopIndex is the position of the fault in the original path
	HopIndex int
}

func (e *Error) Error() string {
	return fmt.Sprintf("routing error at hop %d: %s", e.HopIndex, e.Kind)
}

// Unwrap maps the NACK kind onto a sentinel so callers can use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Kind.Type {
	case packet.NackUnexpectedRecipient:
		return ErrUnexpectedRecipient
	case packet.NackDestinationIsDrone:
		return ErrDestinationIsDrone
	case packet.NackErrorInRouting:
		return ErrNextHopUnknown
	default:
		return nil
	}
}

// Validate decides whether p, received by self, can move to a neighbor.
//
// Checks, in order:
//   - the current hop must be self, else UnexpectedRecipient(self)
//   - self must not be the last hop, else DestinationIsDrone
//   - the next hop must be a neighbor, else ErrorInRouting(next)
//
// Flood requests skip all checks and come back as a Broadcast.
func Validate(p *packet.Packet, self packet.NodeID, neighbors NeighborSet) (NextHop, error) {
	if p.Type() == packet.TypeFloodRequest {
		return NextHop{Broadcast: true}, nil
	}

	h := p.RoutingHeader
	current, ok := h.CurrentHop()
	if !ok || current != self {
		return NextHop{}, &Error{Kind: packet.UnexpectedRecipient(self), HopIndex: h.HopIndex}
	}

	if h.IsLastHop() {
		return NextHop{}, &Error{Kind: packet.DestinationIsDrone(), HopIndex: h.HopIndex}
	}

	next, _ := h.NextHop()
	if !neighbors.Contains(next) {
		return NextHop{}, &Error{Kind: packet.ErrorInRouting(next), HopIndex: h.HopIndex}
	}

	return NextHop{ID: next}, nil
}
