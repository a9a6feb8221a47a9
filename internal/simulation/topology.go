package simulation

import (
	"maps"
	"slices"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// topology is the controller's view of who is linked to whom.
// Not safe for concurrent use; guarded by the controller lock.
type topology struct {
	types map[packet.NodeID]packet.NodeType
	adj   map[packet.NodeID]map[packet.NodeID]struct{}
}

func newTopology() *topology {
	return &topology{
		types: make(map[packet.NodeID]packet.NodeType),
		adj:   make(map[packet.NodeID]map[packet.NodeID]struct{}),
	}
}

func (t *topology) addNode(id packet.NodeID, typ packet.NodeType) {
	t.types[id] = typ
	if t.adj[id] == nil {
		t.adj[id] = make(map[packet.NodeID]struct{})
	}
}

func (t *topology) removeNode(id packet.NodeID) {
	for n := range t.adj[id] {
		delete(t.adj[n], id)
	}
	delete(t.adj, id)
	delete(t.types, id)
}

func (t *topology) link(a, b packet.NodeID) {
	t.adj[a][b] = struct{}{}
	t.adj[b][a] = struct{}{}
}

func (t *topology) unlink(a, b packet.NodeID) {
	delete(t.adj[a], b)
	delete(t.adj[b], a)
}

func (t *topology) linked(a, b packet.NodeID) bool {
	_, ok := t.adj[a][b]
	return ok
}

func (t *topology) neighbors(id packet.NodeID) []packet.NodeID {
	return slices.Sorted(maps.Keys(t.adj[id]))
}

func (t *topology) edges() []config.Edge {
	var out []config.Edge
	for _, a := range slices.Sorted(maps.Keys(t.adj)) {
		for _, b := range t.neighbors(a) {
			if a < b {
				out = append(out, config.Edge{A: a, B: b})
			}
		}
	}
	return out
}

func (t *topology) clone() *topology {
	c := newTopology()
	for id, typ := range t.types {
		c.addNode(id, typ)
	}
	for a, ns := range t.adj {
		for b := range ns {
			c.adj[a][b] = struct{}{}
		}
	}
	return c
}

// connected reports whether every node can reach every other one.
// Clients and servers do not relay, so paths only pass through drones.
func (t *topology) connected() bool {
	if len(t.types) <= 1 {
		return true
	}

	var drones []packet.NodeID
	for id, typ := range t.types {
		if typ == packet.Drone {
			drones = append(drones, id)
		}
	}
	if len(drones) == 0 {
		return false
	}

	start := slices.Min(drones)
	visited := map[packet.NodeID]bool{start: true}
	queue := []packet.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if t.types[cur] != packet.Drone {
			continue
		}
		for n := range t.adj[cur] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(visited) == len(t.types)
}
