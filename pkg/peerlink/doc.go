// Package peerlink defines the outbound send capability a node holds for each
// neighbor.
//
// A node never talks to a neighbor directly: it holds one Link per neighbor
// and calls Send. The transport behind a Link is not prescribed. The in-process
// implementation in internal/peerlink delivers into the neighbor's unbounded
// inbound queue; tests substitute recording doubles.
//
// Example usage:
//
//	link := peerlink.NewChannelLink(2, inboxOfNode2)
//	if err := link.Send(p); errors.Is(err, peerlink.ErrUnreachable) {
//		// neighbor 2 is gone
//	}
package peerlink
