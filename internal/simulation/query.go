package simulation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/drone"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/eventlog"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	eventlogpkg "github.com/rmacdonaldsmith/dronemesh-go/pkg/eventlog"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// NodeInfo describes one node as seen by the controller.
type NodeInfo struct {
	ID        packet.NodeID   `json:"id"`
	Type      string          `json:"type"`
	Neighbors []packet.NodeID `json:"neighbors"`
	PDR       *float64        `json:"pdr,omitempty"`
	State     string          `json:"state,omitempty"`
	Stats     *drone.Stats    `json:"stats,omitempty"`
}

// Health summarizes the simulation.
type Health struct {
	Started       bool   `json:"started"`
	Closed        bool   `json:"closed"`
	Drones        int    `json:"drones"`
	CrashedDrones int    `json:"crashed_drones"`
	Endpoints     int    `json:"endpoints"`
	Links         int    `json:"links"`
	Connected     bool   `json:"connected"`
	Shortcuts     uint64 `json:"shortcuts"`
	JournalEvents int64  `json:"journal_events"`
}

// JournalEntry is a decoded journal record.
type JournalEntry struct {
	Offset    int64
	Timestamp time.Time
	Event     controller.Event
}

// Nodes lists every node, crashed drones included, in ascending id order.
func (c *Controller) Nodes() []NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(c.drones))
	ids = append(ids, slices.Sorted(maps.Keys(c.endpoints))...)
	slices.Sort(ids)

	out := make([]NodeInfo, 0, len(ids))
	for _, id := range ids {
		info := NodeInfo{ID: id, Neighbors: c.topo.neighbors(id)}
		if h, ok := c.drones[id]; ok {
			pdr := h.pdr
			stats := h.node.Stats()
			info.Type = packet.Drone.String()
			info.PDR = &pdr
			info.State = h.node.State().String()
			info.Stats = &stats
		} else {
			info.Type = c.endpoints[id].Type().String()
		}
		out = append(out, info)
	}
	return out
}

// Health returns a summary of the simulation.
func (c *Controller) Health(ctx context.Context) (Health, error) {
	stats, err := c.journal.GetStatistics(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("journal: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h := Health{
		Started:       c.started,
		Closed:        c.closed,
		Drones:        len(c.drones),
		Endpoints:     len(c.endpoints),
		Links:         len(c.topo.edges()),
		Connected:     c.topo.connected(),
		Shortcuts:     c.shortcuts.Load(),
		JournalEvents: stats.TotalEvents,
	}
	for _, d := range c.drones {
		if d.crashed {
			h.CrashedDrones++
		}
	}
	return h, nil
}

// Edges returns the current undirected links.
func (c *Controller) Edges() []config.Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo.edges()
}

// NodeEvents returns up to max journaled events of node id starting at offset.
func (c *Controller) NodeEvents(ctx context.Context, id packet.NodeID, offset int64, max int) ([]JournalEntry, error) {
	c.mu.RLock()
	_, isDrone := c.drones[id]
	_, isEndpoint := c.endpoints[id]
	c.mu.RUnlock()
	if !isDrone && !isEndpoint {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	records, err := c.journal.ReadFromTopic(ctx, eventlog.NodeTopic(id), offset, max)
	if err != nil {
		return nil, err
	}

	out := make([]JournalEntry, 0, len(records))
	for _, r := range records {
		ev, err := eventlog.DecodeEventRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, JournalEntry{Offset: r.Offset(), Timestamp: r.Timestamp(), Event: ev})
	}
	return out, nil
}

// Journal exposes the raw event journal.
func (c *Controller) Journal() eventlogpkg.EventLog {
	return c.journal
}
