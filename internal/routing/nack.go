package routing

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// ErrNoReturnPath is returned when the reversed path has no hop to send back to.
var ErrNoReturnPath = errors.New("no return path")

// BuildNack builds the NACK for orig failing at position faultHopIndex.
//
// The NACK path is orig's hops[0..faultHopIndex] (inclusive) reversed, with
// the cursor on index 1: index 0 is the node reporting the fault, index 1 the
// hop it received the packet from. A fault index past the end of the path is
// clamped to the last hop.
func BuildNack(orig *packet.Packet, faultHopIndex int, kind packet.NackKind) (*packet.Packet, error) {
	hops := orig.RoutingHeader.Hops
	if faultHopIndex >= len(hops) {
		faultHopIndex = len(hops) - 1
	}
	if faultHopIndex < 1 {
		return nil, fmt.Errorf("%w: fault at hop %d of %v", ErrNoReturnPath, faultHopIndex, hops)
	}

	header := packet.NewReversedHeader(hops[:faultHopIndex+1])
	nack := &packet.Nack{
		FragmentIndex: orig.FragmentIndex(),
		Kind:          kind,
	}
	return packet.NewNack(header, orig.SessionID, nack), nil
}

// NackFor builds the NACK for a routing error returned by Validate.
func NackFor(orig *packet.Packet, err *Error) (*packet.Packet, error) {
	return BuildNack(orig, err.HopIndex, err.Kind)
}
