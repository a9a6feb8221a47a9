package neighbortable

import (
	"fmt"
	"maps"
	"slices"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/neighbortable"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
)

// Table implements neighbortable.NeighborTable with a plain map.
// It is confined to the owning node goroutine and takes no locks.
type Table struct {
	links map[packet.NodeID]peerlink.Link
}

// New creates a table seeded with initial. The map is copied.
func New(initial map[packet.NodeID]peerlink.Link) *Table {
	links := make(map[packet.NodeID]peerlink.Link, len(initial))
	for id, link := range initial {
		if link != nil {
			links[id] = link
		}
	}
	return &Table{links: links}
}

// Add inserts or replaces the link toward id
func (t *Table) Add(id packet.NodeID, link peerlink.Link) {
	if link == nil {
		return
	}
	if old, ok := t.links[id]; ok && old != link {
		_ = old.Close()
	}
	t.links[id] = link
}

// Remove deletes the entry for id and closes its link
func (t *Table) Remove(id packet.NodeID) bool {
	link, ok := t.links[id]
	if !ok {
		return false
	}
	delete(t.links, id)
	_ = link.Close()
	return true
}

// Contains reports whether id is a current neighbor
func (t *Table) Contains(id packet.NodeID) bool {
	_, ok := t.links[id]
	return ok
}

// IDs returns the neighbor ids in ascending order
func (t *Table) IDs() []packet.NodeID {
	return slices.Sorted(maps.Keys(t.links))
}

// Len returns the number of neighbors
func (t *Table) Len() int {
	return len(t.links)
}

// Send delivers p to neighbor id
func (t *Table) Send(id packet.NodeID, p *packet.Packet) error {
	link, ok := t.links[id]
	if !ok {
		return fmt.Errorf("%w: node %d is not a neighbor", peerlink.ErrUnreachable, id)
	}
	return link.Send(p)
}

// Clear closes and removes every link
func (t *Table) Clear() []packet.NodeID {
	ids := t.IDs()
	for _, id := range ids {
		_ = t.links[id].Close()
	}
	clear(t.links)
	return ids
}

// Verify that Table implements the NeighborTable interface at compile time
var _ neighbortable.NeighborTable = (*Table)(nil)
