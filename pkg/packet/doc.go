// Package packet defines the traffic exchanged between mesh nodes.
//
// Every Packet carries a SourceRoutingHeader: the full path chosen by the
// sender plus a cursor (HopIndex) marking the node currently holding the
// packet. A node forwards by advancing the cursor and handing the packet to
// Hops[HopIndex]. Replies (acks, nacks and flood responses) travel along a
// reversed copy of the path built with NewReversedHeader.
//
// Body variants:
//   - Fragment: a slice of application payload, subject to simulated loss
//   - Ack / Nack: delivery feedback; Nack carries a NackKind
//   - FloodRequest / FloodResponse: topology discovery
//
// Example:
//
//	frag, _ := packet.NewFragmentFromString(0, 1, "hello")
//	p := packet.NewFragment(packet.NewHeader(1, 1, 2, 3), 42, frag)
//	next, _ := p.RoutingHeader.CurrentHop() // 2
package packet
