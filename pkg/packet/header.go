package packet

import (
	"fmt"
	"slices"
)

// SourceRoutingHeader is the sender-chosen path of a packet plus a cursor into it.
// While a packet is live, 0 <= HopIndex < len(Hops).
type SourceRoutingHeader struct {
	HopIndex int
	Hops     []NodeID
}

// NewHeader returns a header positioned at hopIndex along hops.
func NewHeader(hopIndex int, hops ...NodeID) SourceRoutingHeader {
	return SourceRoutingHeader{HopIndex: hopIndex, Hops: slices.Clone(hops)}
}

// NewReversedHeader returns a header over hops in reverse order, positioned at
// index 1: position 0 is the node building the header, index 1 is the first
// hop back toward the start of hops.
func NewReversedHeader(hops []NodeID) SourceRoutingHeader {
	reversed := slices.Clone(hops)
	slices.Reverse(reversed)
	return SourceRoutingHeader{HopIndex: 1, Hops: reversed}
}

// Valid reports whether the cursor points inside the path.
func (h SourceRoutingHeader) Valid() bool {
	return h.HopIndex >= 0 && h.HopIndex < len(h.Hops)
}

// CurrentHop returns the node the packet is addressed to at this position.
func (h SourceRoutingHeader) CurrentHop() (NodeID, bool) {
	if !h.Valid() {
		return 0, false
	}
	return h.Hops[h.HopIndex], true
}

// NextHop returns the node after the current position.
func (h SourceRoutingHeader) NextHop() (NodeID, bool) {
	next := h.HopIndex + 1
	if next < 0 || next >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[next], true
}

// IsLastHop reports whether the cursor sits on the final node of the path.
func (h SourceRoutingHeader) IsLastHop() bool {
	return h.HopIndex+1 == len(h.Hops)
}

// Destination returns the final node of the path.
func (h SourceRoutingHeader) Destination() (NodeID, bool) {
	if len(h.Hops) == 0 {
		return 0, false
	}
	return h.Hops[len(h.Hops)-1], true
}

// Advance moves the cursor one hop forward.
func (h *SourceRoutingHeader) Advance() {
	h.HopIndex++
}

// Clone returns a copy that shares no memory with h.
func (h SourceRoutingHeader) Clone() SourceRoutingHeader {
	return SourceRoutingHeader{HopIndex: h.HopIndex, Hops: slices.Clone(h.Hops)}
}

func (h SourceRoutingHeader) String() string {
	return fmt.Sprintf("hops=%v hop_index=%d", h.Hops, h.HopIndex)
}
