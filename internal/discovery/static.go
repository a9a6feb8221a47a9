package discovery

import (
	"context"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// StaticDiscovery implements Discovery using a fixed list of traces
type StaticDiscovery struct {
	traces []packet.PathTrace
}

// NewStaticDiscovery creates a discovery that always returns copies of traces
func NewStaticDiscovery(traces ...packet.PathTrace) *StaticDiscovery {
	return &StaticDiscovery{traces: traces}
}

// FindPaths returns copies of the configured traces
func (s *StaticDiscovery) FindPaths(ctx context.Context) ([]packet.PathTrace, error) {
	out := make([]packet.PathTrace, len(s.traces))
	for i, t := range s.traces {
		out[i] = t.Clone()
	}
	return out, nil
}

// Flooder starts a flood from an endpoint and collects the answers
type Flooder interface {
	Discover(ctx context.Context, from packet.NodeID, wait time.Duration) ([]packet.PathTrace, error)
}

// FloodDiscovery implements Discovery by flooding the network from one endpoint
type FloodDiscovery struct {
	flooder Flooder
	from    packet.NodeID
	wait    time.Duration
}

// NewFloodDiscovery creates a discovery that floods from endpoint from and
// waits up to wait for responses
func NewFloodDiscovery(flooder Flooder, from packet.NodeID, wait time.Duration) *FloodDiscovery {
	return &FloodDiscovery{
		flooder: flooder,
		from:    from,
		wait:    wait,
	}
}

// FindPaths runs one flood
func (f *FloodDiscovery) FindPaths(ctx context.Context) ([]packet.PathTrace, error) {
	return f.flooder.Discover(ctx, f.from, f.wait)
}

var (
	_ Discovery = (*StaticDiscovery)(nil)
	_ Discovery = (*FloodDiscovery)(nil)
)
