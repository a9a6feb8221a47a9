package neighbortable

import (
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
)

// NeighborTable maps neighbor ids to the outbound link toward each neighbor.
// The key set is exactly the set of neighbors the owning node can currently reach.
//
// Implementations are owned by a single node goroutine and are not required
// to be safe for concurrent use.
type NeighborTable interface {
	// Add inserts or replaces the link toward id. A replaced link is closed.
	Add(id packet.NodeID, link peerlink.Link)

	// Remove deletes the entry for id and closes its link.
	// It reports whether an entry existed.
	Remove(id packet.NodeID) bool

	// Contains reports whether id is a current neighbor.
	Contains(id packet.NodeID) bool

	// IDs returns the neighbor ids in ascending order.
	IDs() []packet.NodeID

	// Len returns the number of neighbors.
	Len() int

	// Send delivers p to neighbor id. It fails with peerlink.ErrUnreachable
	// when id is not a neighbor or its link is closed.
	Send(id packet.NodeID, p *packet.Packet) error

	// Clear closes and removes every link, returning the ids that were removed.
	Clear() []packet.NodeID
}
