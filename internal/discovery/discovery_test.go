package discovery

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

func trace(hops ...packet.PathHop) packet.PathTrace { return hops }

func c(id packet.NodeID) packet.PathHop { return packet.PathHop{ID: id, Type: packet.Client} }
func d(id packet.NodeID) packet.PathHop { return packet.PathHop{ID: id, Type: packet.Drone} }
func s(id packet.NodeID) packet.PathHop { return packet.PathHop{ID: id, Type: packet.Server} }

type fakeFlooder struct {
	from   packet.NodeID
	wait   time.Duration
	traces []packet.PathTrace
}

func (f *fakeFlooder) Discover(ctx context.Context, from packet.NodeID, wait time.Duration) ([]packet.PathTrace, error) {
	f.from, f.wait = from, wait
	return f.traces, nil
}

// TestStaticDiscovery_FindPaths tests that static traces are returned as copies
func TestStaticDiscovery_FindPaths(t *testing.T) {
	discovery := NewStaticDiscovery(trace(c(1), d(2), s(3)), trace(c(1), d(4)))

	paths, err := discovery.FindPaths(context.Background())
	if err != nil {
		t.Fatalf("Expected no error from FindPaths, got %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Expected 2 paths, got %d", len(paths))
	}

	paths[0][0].ID = 99
	again, _ := discovery.FindPaths(context.Background())
	if again[0][0].ID != 1 {
		t.Errorf("Expected static traces to be unaffected by callers, got first hop %d", again[0][0].ID)
	}
}

// TestStaticDiscovery_Empty tests discovery without traces
func TestStaticDiscovery_Empty(t *testing.T) {
	paths, err := NewStaticDiscovery().FindPaths(context.Background())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("Expected 0 paths, got %d", len(paths))
	}
}

// TestFloodDiscovery_Delegates tests that the flood parameters reach the flooder
func TestFloodDiscovery_Delegates(t *testing.T) {
	f := &fakeFlooder{traces: []packet.PathTrace{trace(c(1), d(2))}}
	paths, err := NewFloodDiscovery(f, 1, time.Second).FindPaths(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.from != 1 || f.wait != time.Second {
		t.Errorf("Expected flood from 1 waiting 1s, got from %d waiting %s", f.from, f.wait)
	}
	if len(paths) != 1 {
		t.Errorf("Expected 1 path, got %d", len(paths))
	}
}

// TestGraph_Route tests shortest path selection
func TestGraph_Route(t *testing.T) {
	g := BuildGraph([]packet.PathTrace{
		trace(c(1), d(2), d(3), d(4), s(9)),
		trace(c(1), d(2), d(5), s(9)),
		trace(c(1), d(6)),
	})

	route, err := g.Route(1, 9)
	if err != nil {
		t.Fatalf("Expected a route, got %v", err)
	}
	if want := []packet.NodeID{1, 2, 5, 9}; !slices.Equal(route, want) {
		t.Errorf("Expected route %v, got %v", want, route)
	}

	if want := []packet.NodeID{1, 2, 3, 4, 5, 6, 9}; !slices.Equal(g.Nodes(), want) {
		t.Errorf("Expected nodes %v, got %v", want, g.Nodes())
	}
	if typ, _ := g.Type(9); typ != packet.Server {
		t.Errorf("Expected node 9 to be a server, got %s", typ)
	}
}

// TestGraph_RouteDoesNotRelayThroughEndpoints tests that clients and servers are never intermediate hops
func TestGraph_RouteDoesNotRelayThroughEndpoints(t *testing.T) {
	g := BuildGraph([]packet.PathTrace{
		trace(c(1), d(2), s(3)),
		trace(s(3), d(4), c(5)),
	})

	_, err := g.Route(1, 5)
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("Expected ErrNoRoute, got %v", err)
	}

	_, err = g.Route(1, 42)
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("Expected ErrNoRoute for unknown node, got %v", err)
	}
}

// TestDiscoveryInterface_InterfaceCompliance tests that both mechanisms implement Discovery
func TestDiscoveryInterface_InterfaceCompliance(t *testing.T) {
	var _ Discovery = (*StaticDiscovery)(nil)
	var _ Discovery = (*FloodDiscovery)(nil)
}
