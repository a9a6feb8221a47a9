package discovery

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// ErrNoRoute is returned when no known path joins two nodes.
var ErrNoRoute = errors.New("no known route")

// Graph is the network as learned from path traces. Consecutive hops of a
// trace are linked.
type Graph struct {
	types map[packet.NodeID]packet.NodeType
	adj   map[packet.NodeID]map[packet.NodeID]struct{}
}

// BuildGraph merges traces into one graph.
func BuildGraph(traces []packet.PathTrace) *Graph {
	g := &Graph{
		types: make(map[packet.NodeID]packet.NodeType),
		adj:   make(map[packet.NodeID]map[packet.NodeID]struct{}),
	}
	for _, trace := range traces {
		for i, hop := range trace {
			g.add(hop)
			if i > 0 {
				g.link(trace[i-1].ID, hop.ID)
			}
		}
	}
	return g
}

func (g *Graph) add(hop packet.PathHop) {
	g.types[hop.ID] = hop.Type
	if g.adj[hop.ID] == nil {
		g.adj[hop.ID] = make(map[packet.NodeID]struct{})
	}
}

func (g *Graph) link(a, b packet.NodeID) {
	if a == b {
		return
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
}

// Nodes returns every known node id in ascending order.
func (g *Graph) Nodes() []packet.NodeID {
	return slices.Sorted(maps.Keys(g.types))
}

// Type returns the type recorded for id.
func (g *Graph) Type(id packet.NodeID) (packet.NodeType, bool) {
	t, ok := g.types[id]
	return t, ok
}

// Neighbors returns the known neighbors of id in ascending order.
func (g *Graph) Neighbors(id packet.NodeID) []packet.NodeID {
	return slices.Sorted(maps.Keys(g.adj[id]))
}

// Route returns a shortest path from from to to. Only drones relay, so every
// intermediate hop is a drone. Ties are broken by the lowest node id.
func (g *Graph) Route(from, to packet.NodeID) ([]packet.NodeID, error) {
	if _, ok := g.types[from]; !ok {
		return nil, fmt.Errorf("%w: %d is unknown", ErrNoRoute, from)
	}
	if _, ok := g.types[to]; !ok {
		return nil, fmt.Errorf("%w: %d is unknown", ErrNoRoute, to)
	}
	if from == to {
		return []packet.NodeID{from}, nil
	}

	prev := map[packet.NodeID]packet.NodeID{from: from}
	queue := []packet.NodeID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbors(cur) {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == to {
				return g.path(prev, from, to), nil
			}
			if g.types[n] == packet.Drone {
				queue = append(queue, n)
			}
		}
	}
	return nil, fmt.Errorf("%w: from %d to %d", ErrNoRoute, from, to)
}

func (g *Graph) path(prev map[packet.NodeID]packet.NodeID, from, to packet.NodeID) []packet.NodeID {
	path := []packet.NodeID{to}
	for cur := to; cur != from; {
		cur = prev[cur]
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path
}
