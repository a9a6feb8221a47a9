package simulation

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/discovery"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/drone"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// chainConfig is client 1 - drone 2 - drone 3 - server 4.
func chainConfig() *config.Config {
	cfg := config.Default()
	cfg.DrainTimeout = 50 * time.Millisecond
	cfg.Seed = 7
	cfg.Drones = []config.DroneConfig{
		{ID: 2, ConnectedNodeIDs: []packet.NodeID{1, 3}},
		{ID: 3, ConnectedNodeIDs: []packet.NodeID{2, 4}},
	}
	cfg.Clients = []config.EndpointConfig{{ID: 1, ConnectedDroneIDs: []packet.NodeID{2}}}
	cfg.Servers = []config.EndpointConfig{{ID: 4, ConnectedDroneIDs: []packet.NodeID{3}}}
	return cfg
}

// triangleConfig is client 1 - drone 2, drones 2, 3, 4 fully linked, server 5
// linked to drones 3 and 4.
func triangleConfig() *config.Config {
	cfg := config.Default()
	cfg.DrainTimeout = 50 * time.Millisecond
	cfg.Drones = []config.DroneConfig{
		{ID: 2, ConnectedNodeIDs: []packet.NodeID{1, 3, 4}},
		{ID: 3, ConnectedNodeIDs: []packet.NodeID{2, 4, 5}},
		{ID: 4, ConnectedNodeIDs: []packet.NodeID{2, 3, 5}},
	}
	cfg.Clients = []config.EndpointConfig{{ID: 1, ConnectedDroneIDs: []packet.NodeID{2}}}
	cfg.Servers = []config.EndpointConfig{{ID: 5, ConnectedDroneIDs: []packet.NodeID{3, 4}}}
	return cfg
}

func startController(t *testing.T, cfg *config.Config) *Controller {
	t.Helper()

	c, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, c.Close(ctx))
	})
	return c
}

func endpoint(t *testing.T, c *Controller, id packet.NodeID) *Endpoint {
	t.Helper()
	ep, err := c.Endpoint(id)
	require.NoError(t, err)
	return ep
}

func countType(ep *Endpoint, typ packet.Type) int {
	n := 0
	for _, p := range ep.Received() {
		if p.Type() == typ {
			n++
		}
	}
	return n
}

func nodeInfo(t *testing.T, c *Controller, id packet.NodeID) NodeInfo {
	t.Helper()
	for _, n := range c.Nodes() {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %d not listed", id)
	return NodeInfo{}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	cfg := chainConfig()
	cfg.Drones[0].PDR = 2
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, drone.ErrInvalidDropRate)
}

func TestController_MessageDeliveredAndAcked(t *testing.T) {
	c := startController(t, chainConfig())
	msg := bytes.Repeat([]byte("drone"), 60) // three fragments

	session, err := c.SendMessage([]packet.NodeID{1, 2, 3, 4}, msg)
	require.NoError(t, err)

	server := endpoint(t, c, 4)
	require.Eventually(t, func() bool {
		got, ok := server.Message(session)
		return ok && bytes.Equal(msg, got)
	}, waitFor, tick)

	client := endpoint(t, c, 1)
	require.Eventually(t, func() bool {
		return countType(client, packet.TypeAck) == 3
	}, waitFor, tick)

	for _, p := range client.Received() {
		assert.Equal(t, []packet.NodeID{4, 3, 2, 1}, p.RoutingHeader.Hops)
	}

	// Each drone forwarded three fragments and three acks
	require.Eventually(t, func() bool {
		return nodeInfo(t, c, 2).Stats.Forwarded == 6 && nodeInfo(t, c, 3).Stats.Forwarded == 6
	}, waitFor, tick)

	// Every forward was journaled
	require.Eventually(t, func() bool {
		entries, err := c.NodeEvents(context.Background(), 2, 0, 100)
		return err == nil && len(entries) == 6
	}, waitFor, tick)
	entries, err := c.NodeEvents(context.Background(), 2, 0, 100)
	require.NoError(t, err)
	for i, e := range entries {
		assert.Equal(t, int64(i), e.Offset)
		assert.Equal(t, controller.PacketSent, e.Event.Kind)
		assert.Equal(t, packet.NodeID(2), e.Event.NodeID)
	}
}

func TestController_SendMessageErrors(t *testing.T) {
	c, err := New(chainConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.SendMessage([]packet.NodeID{1, 2}, []byte("x"))
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	_, err = c.SendMessage([]packet.NodeID{1}, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, err = c.SendMessage([]packet.NodeID{2, 3}, []byte("x"))
	assert.ErrorIs(t, err, ErrNotEndpoint)

	_, err = c.SendMessage([]packet.NodeID{1, 3, 4}, []byte("x"))
	assert.Error(t, err, "drone 3 is not linked to client 1")
}

func TestController_ShortcutDeliversTopologyPacket(t *testing.T) {
	c := startController(t, chainConfig())

	// Drone 3 has no link to 9, so the ack cannot be routed
	ack := packet.NewAck(packet.NewHeader(1, 4, 3, 9, 1), 77, &packet.Ack{FragmentIndex: 2})
	require.NoError(t, c.SendPacket(4, ack))

	client := endpoint(t, c, 1)
	require.Eventually(t, func() bool {
		return countType(client, packet.TypeAck) == 1
	}, waitFor, tick)

	got := client.Received()[0]
	assert.Equal(t, uint64(77), got.SessionID)
	assert.Equal(t, 3, got.RoutingHeader.HopIndex)

	// The server gets the routing NACK from drone 3
	server := endpoint(t, c, 4)
	require.Eventually(t, func() bool {
		return countType(server, packet.TypeNack) == 1
	}, waitFor, tick)
	nack := server.Received()[0].Body.(*packet.Nack)
	assert.Equal(t, packet.ErrorInRouting(9), nack.Kind)

	require.Eventually(t, func() bool {
		h, err := c.Health(context.Background())
		return err == nil && h.Shortcuts == 1
	}, waitFor, tick)
}

func TestController_Discover(t *testing.T) {
	c := startController(t, chainConfig())

	traces, err := c.Discover(context.Background(), 1, 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, []packet.NodeID{1, 2, 3, 4}, traces[0].IDs())
	assert.Equal(t, packet.Server, traces[0][3].Type)

	_, err = c.Discover(context.Background(), 2, time.Millisecond)
	assert.ErrorIs(t, err, ErrNotEndpoint)
}

func TestController_Route(t *testing.T) {
	c := startController(t, chainConfig())

	route, err := c.Route(context.Background(), 1, 4, 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []packet.NodeID{1, 2, 3, 4}, route)

	_, err = c.Route(context.Background(), 1, 42, 50*time.Millisecond)
	assert.ErrorIs(t, err, discovery.ErrNoRoute)
}

func TestController_DiscoverTriangle(t *testing.T) {
	c := startController(t, triangleConfig())

	traces, err := c.Discover(context.Background(), 1, 300*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, traces)

	reached := map[packet.NodeID]bool{}
	for _, tr := range traces {
		require.GreaterOrEqual(t, len(tr), 2)
		assert.Equal(t, packet.NodeID(1), tr[0].ID)
		for _, hop := range tr {
			reached[hop.ID] = true
		}
	}
	for id := packet.NodeID(1); id <= 5; id++ {
		assert.True(t, reached[id], "node %d missing from discovered traces", id)
	}
}

func TestController_Crash(t *testing.T) {
	c := startController(t, triangleConfig())

	require.NoError(t, c.Crash(4))
	require.Eventually(t, func() bool {
		return nodeInfo(t, c, 4).State == drone.Crashed.String()
	}, waitFor, tick)

	assert.Equal(t, []packet.NodeID{1, 3}, nodeInfo(t, c, 2).Neighbors)
	assert.Equal(t, []packet.NodeID{3}, nodeInfo(t, c, 5).Neighbors)
	assert.Empty(t, nodeInfo(t, c, 4).Neighbors)

	ep5 := endpoint(t, c, 5)
	assert.Equal(t, []packet.NodeID{3}, ep5.Neighbors())

	// Crashing 3 would cut the server off
	assert.ErrorIs(t, c.Crash(3), ErrWouldPartition)
	assert.ErrorIs(t, c.Crash(4), ErrCrashed)
	assert.ErrorIs(t, c.Crash(1), ErrNotDrone)
	assert.ErrorIs(t, c.Crash(99), ErrUnknownNode)

	// A route through the crashed drone is NACKed by drone 2
	_, err := c.SendMessage([]packet.NodeID{1, 2, 4, 5}, []byte("hello"))
	require.NoError(t, err)

	client := endpoint(t, c, 1)
	require.Eventually(t, func() bool {
		return countType(client, packet.TypeNack) == 1
	}, waitFor, tick)
	assert.Equal(t, packet.ErrorInRouting(4), client.Received()[0].Body.(*packet.Nack).Kind)

	// The surviving route still works
	session, err := c.SendMessage([]packet.NodeID{1, 2, 3, 5}, []byte("hello"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := ep5.Message(session)
		return ok
	}, waitFor, tick)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, h.Drones)
	assert.Equal(t, 1, h.CrashedDrones)
	assert.True(t, h.Connected)
}

func TestController_Links(t *testing.T) {
	c := startController(t, chainConfig())

	assert.ErrorIs(t, c.RemoveLink(2, 3), ErrWouldPartition)
	assert.ErrorIs(t, c.RemoveLink(1, 3), ErrInvalidLink)
	assert.ErrorIs(t, c.AddLink(1, 4), ErrInvalidLink)
	assert.ErrorIs(t, c.AddLink(2, 2), ErrInvalidLink)
	assert.ErrorIs(t, c.AddLink(2, 42), ErrUnknownNode)

	// Move the client from drone 2 to drone 3
	require.NoError(t, c.AddLink(1, 3))
	assert.Equal(t, []packet.NodeID{2, 3}, endpoint(t, c, 1).Neighbors())
	require.NoError(t, c.RemoveLink(1, 2))
	assert.Equal(t, []packet.NodeID{3}, endpoint(t, c, 1).Neighbors())
	assert.Len(t, c.Edges(), 3)

	_, err := c.SendMessage([]packet.NodeID{1, 2, 3, 4}, []byte("old route"))
	assert.Error(t, err)

	// Drone 3 learned about the client
	session, err := c.SendMessage([]packet.NodeID{1, 3, 4}, []byte("direct"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msg, ok := endpoint(t, c, 4).Message(session)
		return ok && string(msg) == "direct"
	}, waitFor, tick)

	session, err = c.SendMessage([]packet.NodeID{4, 3, 1}, []byte("reply"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msg, ok := endpoint(t, c, 1).Message(session)
		return ok && string(msg) == "reply"
	}, waitFor, tick)

	// Drone 2 forgot it
	_, err = c.SendMessage([]packet.NodeID{4, 3, 2, 1}, []byte("stale"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return countType(endpoint(t, c, 4), packet.TypeNack) == 1
	}, waitFor, tick)
}

func TestController_SetPacketDropRate(t *testing.T) {
	c := startController(t, chainConfig())

	assert.ErrorIs(t, c.SetPacketDropRate(2, 1.5), drone.ErrInvalidDropRate)
	assert.ErrorIs(t, c.SetPacketDropRate(1, 0.5), ErrNotDrone)

	require.NoError(t, c.SetPacketDropRate(2, 1))
	assert.Equal(t, 1.0, *nodeInfo(t, c, 2).PDR)

	client := endpoint(t, c, 1)
	require.Eventually(t, func() bool {
		// The command and the packet race through different queues
		if _, err := c.SendMessage([]packet.NodeID{1, 2, 3, 4}, []byte("lost")); err != nil {
			return false
		}
		return countType(client, packet.TypeNack) > 0
	}, waitFor, 20*time.Millisecond)

	for _, p := range client.Received() {
		if nack, ok := p.Body.(*packet.Nack); ok {
			assert.Equal(t, packet.Dropped(), nack.Kind)
		}
	}

	require.Eventually(t, func() bool {
		entries, err := c.NodeEvents(context.Background(), 2, 0, 1000)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.Event.Kind == controller.PacketDropped {
				return true
			}
		}
		return false
	}, waitFor, tick)

	_, err := c.NodeEvents(context.Background(), 50, 0, 10)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestController_Close(t *testing.T) {
	c, err := New(chainConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	for _, n := range c.Nodes() {
		if n.Type == packet.Drone.String() {
			assert.Equal(t, drone.Crashed.String(), n.State)
		}
	}

	_, err = c.SendMessage([]packet.NodeID{1, 2, 3, 4}, []byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Crash(2), ErrClosed)
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
}

func TestController_CloseWithoutStart(t *testing.T) {
	c, err := New(chainConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, c.Close(context.Background()))
}

func TestController_CrashBeforeStart(t *testing.T) {
	c, err := New(chainConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Crash(2), ErrNotStarted)
	assert.ErrorIs(t, c.Crash(99), ErrUnknownNode)

	for _, n := range c.Nodes() {
		if n.ID == 2 {
			assert.Equal(t, []packet.NodeID{1, 3}, n.Neighbors, "refused crash leaves the drone linked")
		}
	}
	require.NoError(t, c.Close(context.Background()))
}
