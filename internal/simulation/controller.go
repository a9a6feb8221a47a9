// Package simulation runs a whole drone network in one process: it builds
// drones, clients and servers from a topology, owns their command queues and
// drains the shared event stream into a journal.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/discovery"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/drone"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/eventlog"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/peerlink"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	peerlinkpkg "github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
	"go.uber.org/zap"
)

var (
	// ErrUnknownNode is returned for ids that are not part of the network
	ErrUnknownNode = errors.New("unknown node")
	// ErrNotDrone is returned when a drone-only operation targets an endpoint
	ErrNotDrone = errors.New("node is not a drone")
	// ErrNotEndpoint is returned when an endpoint-only operation targets a drone
	ErrNotEndpoint = errors.New("node is not a client or server")
	// ErrCrashed is returned for operations on a crashed drone
	ErrCrashed = errors.New("drone has crashed")
	// ErrWouldPartition is returned when a change would disconnect the network
	ErrWouldPartition = errors.New("change would partition the network")
	// ErrInvalidLink is returned for links that cannot exist
	ErrInvalidLink = errors.New("invalid link")
	// ErrInvalidRoute is returned for unusable source routes
	ErrInvalidRoute = errors.New("invalid route")
	// ErrNotStarted is returned when traffic is injected before Start
	ErrNotStarted = errors.New("simulation not started")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("simulation closed")
)

type droneHandle struct {
	node     *drone.Node
	commands *peerlink.Queue[controller.Command]
	pdr      float64
	crashed  bool
}

// Controller supervises one simulated network. It is safe for concurrent use.
type Controller struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	topo      *topology
	inboxes   map[packet.NodeID]*peerlink.Queue[*packet.Packet]
	drones    map[packet.NodeID]*droneHandle
	endpoints map[packet.NodeID]*Endpoint
	events    *peerlink.Queue[controller.Event]
	journal   *eventlog.InMemoryEventLog

	started bool
	closed  bool
	cancel  context.CancelFunc
	nodesWG sync.WaitGroup
	pumpWG  sync.WaitGroup

	nextSession atomic.Uint64
	nextFlood   atomic.Uint64
	shortcuts   atomic.Uint64
}

// New builds the network described by cfg. Nothing runs until Start.
func New(cfg *config.Config, logger *zap.Logger) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	journal, err := eventlog.NewInMemoryEventLogWithConfig(eventlog.Config{
		MaxRecordsPerTopic: cfg.Journal.MaxRecordsPerTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	c := &Controller{
		logger:    logger,
		topo:      newTopology(),
		inboxes:   make(map[packet.NodeID]*peerlink.Queue[*packet.Packet]),
		drones:    make(map[packet.NodeID]*droneHandle),
		endpoints: make(map[packet.NodeID]*Endpoint),
		events:    peerlink.NewQueue[controller.Event](),
		journal:   journal,
	}

	for _, d := range cfg.Drones {
		c.topo.addNode(d.ID, packet.Drone)
	}
	for _, e := range cfg.Clients {
		c.topo.addNode(e.ID, packet.Client)
	}
	for _, e := range cfg.Servers {
		c.topo.addNode(e.ID, packet.Server)
	}
	for _, edge := range cfg.Edges() {
		c.topo.link(edge.A, edge.B)
	}
	for id := range c.topo.types {
		c.inboxes[id] = peerlink.NewQueue[*packet.Packet]()
	}

	for _, d := range cfg.Drones {
		neighbors := make(map[packet.NodeID]peerlinkpkg.Link)
		for _, n := range c.topo.neighbors(d.ID) {
			neighbors[n] = c.linkTo(n)
		}
		if err := c.addDrone(d, neighbors, cfg); err != nil {
			c.closeQueues()
			return nil, err
		}
	}
	for _, group := range []struct {
		typ packet.NodeType
		cfg []config.EndpointConfig
	}{{packet.Client, cfg.Clients}, {packet.Server, cfg.Servers}} {
		for _, e := range group.cfg {
			ep := newEndpoint(e.ID, group.typ, c.inboxes[e.ID], logger)
			for _, n := range c.topo.neighbors(e.ID) {
				ep.addLink(n, c.linkTo(n))
			}
			c.endpoints[e.ID] = ep
		}
	}

	logger.Info("network built",
		zap.Int("drones", len(c.drones)),
		zap.Int("endpoints", len(c.endpoints)),
		zap.Int("links", len(c.topo.edges())))
	return c, nil
}

func (c *Controller) addDrone(d config.DroneConfig, neighbors map[packet.NodeID]peerlinkpkg.Link, cfg *config.Config) error {
	commands := peerlink.NewQueue[controller.Command]()

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Seed, uint64(d.ID)))
	}

	node, err := drone.NewNode(&drone.Config{
		ID:           d.ID,
		PDR:          d.PDR,
		Neighbors:    neighbors,
		Commands:     commands.C(),
		Packets:      c.inboxes[d.ID].C(),
		Events:       c.events,
		DrainTimeout: cfg.DrainTimeout,
		Logger:       c.logger,
		Rand:         rng,
	})
	if err != nil {
		commands.Close()
		return fmt.Errorf("drone %d: %w", d.ID, err)
	}

	c.drones[d.ID] = &droneHandle{node: node, commands: commands, pdr: d.PDR}
	return nil
}

// linkTo returns a fresh link delivering into the inbox of id.
func (c *Controller) linkTo(id packet.NodeID) *peerlink.ChannelLink {
	return peerlink.NewChannelLink(id, c.inboxes[id])
}

// Start runs every node and the event pump. Cancelling ctx stops everything
// without draining; use Close for an orderly shutdown.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}

	ctx, c.cancel = context.WithCancel(ctx)

	c.pumpWG.Add(1)
	go func() {
		defer c.pumpWG.Done()
		c.pump()
	}()

	for id, h := range c.drones {
		c.nodesWG.Add(1)
		go func() {
			defer c.nodesWG.Done()
			if err := h.node.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("drone stopped with error", zap.Uint8("drone", uint8(id)), zap.Error(err))
			}
		}()
	}
	for _, ep := range c.endpoints {
		c.nodesWG.Add(1)
		go func() {
			defer c.nodesWG.Done()
			ep.run(ctx)
		}()
	}

	c.started = true
	c.logger.Info("simulation started")
	return nil
}

// compactEvery is the number of journaled events between two journal compactions.
const compactEvery = 1024

// pump journals every event and delivers controller shortcuts.
func (c *Controller) pump() {
	ctx := context.Background()
	var n int
	for ev := range c.events.C() {
		if n++; n%compactEvery == 0 {
			if err := c.journal.Compact(ctx); err != nil {
				c.logger.Warn("journal compaction failed", zap.Error(err))
			}
		}

		record, err := eventlog.NewEventRecord(ev)
		if err != nil {
			c.logger.Warn("event not journaled", zap.Error(err))
		} else if _, err := c.journal.AppendToTopic(ctx, record.Topic(), record); err != nil {
			c.logger.Warn("event not journaled", zap.Error(err))
		}

		if ev.Kind == controller.ControllerShortcut {
			c.deliverShortcut(ev)
		}
	}
}

// deliverShortcut hands a packet straight to its final destination.
func (c *Controller) deliverShortcut(ev controller.Event) {
	p := ev.Packet
	dest, ok := p.RoutingHeader.Destination()
	if !ok {
		c.logger.Warn("shortcut without destination", zap.Stringer("packet", p))
		return
	}

	c.mu.RLock()
	_, isEndpoint := c.endpoints[dest]
	inbox := c.inboxes[dest]
	c.mu.RUnlock()

	if !isEndpoint || inbox == nil {
		c.logger.Warn("shortcut destination is not an endpoint",
			zap.Uint8("destination", uint8(dest)),
			zap.Stringer("packet", p))
		return
	}

	p.RoutingHeader.HopIndex = len(p.RoutingHeader.Hops) - 1
	if err := inbox.Push(p); err != nil {
		c.logger.Warn("shortcut not delivered", zap.Error(err))
		return
	}
	c.shortcuts.Add(1)
	c.logger.Debug("shortcut delivered",
		zap.Uint8("from", uint8(ev.NodeID)),
		zap.Uint8("destination", uint8(dest)),
		zap.Stringer("type", p.Type()))
}

// Crash crashes drone id after detaching it from its neighbors.
// It is refused before Start and when the rest of the network would be
// partitioned.
func (c *Controller) Crash(id packet.NodeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.liveDroneLocked(id)
	if err != nil {
		return err
	}
	// The drain is only observed through a running node
	if !c.started {
		return ErrNotStarted
	}

	after := c.topo.clone()
	after.removeNode(id)
	if c.topo.connected() && !after.connected() {
		return fmt.Errorf("%w: crashing %d", ErrWouldPartition, id)
	}

	for _, n := range c.topo.neighbors(id) {
		c.detachLocked(n, id)
	}
	c.topo.removeNode(id)

	if err := h.commands.Push(controller.Crash{}); err != nil {
		return fmt.Errorf("crash %d: %w", id, err)
	}
	h.crashed = true

	inbox := c.inboxes[id]
	go func() {
		<-h.node.Done()
		h.commands.Close()
		inbox.Close()
	}()

	c.logger.Info("drone crash requested", zap.Uint8("drone", uint8(id)))
	return nil
}

// SetPacketDropRate changes the drop rate of drone id.
func (c *Controller) SetPacketDropRate(id packet.NodeID, pdr float64) error {
	if err := drone.ValidateDropRate(pdr); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.liveDroneLocked(id)
	if err != nil {
		return err
	}
	if err := h.commands.Push(controller.SetPacketDropRate{Rate: pdr}); err != nil {
		return err
	}
	h.pdr = pdr
	return nil
}

// AddLink connects a and b in both directions.
func (c *Controller) AddLink(a, b packet.NodeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLinkLocked(a, b); err != nil {
		return err
	}
	if c.topo.linked(a, b) {
		return nil
	}

	c.attachLocked(a, b)
	c.attachLocked(b, a)
	c.topo.link(a, b)
	c.logger.Info("link added", zap.Uint8("a", uint8(a)), zap.Uint8("b", uint8(b)))
	return nil
}

// RemoveLink disconnects a and b. It is refused when it would partition the network.
func (c *Controller) RemoveLink(a, b packet.NodeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLinkLocked(a, b); err != nil {
		return err
	}
	if !c.topo.linked(a, b) {
		return fmt.Errorf("%w: %d and %d are not linked", ErrInvalidLink, a, b)
	}

	after := c.topo.clone()
	after.unlink(a, b)
	if c.topo.connected() && !after.connected() {
		return fmt.Errorf("%w: removing %d-%d", ErrWouldPartition, a, b)
	}

	c.detachLocked(a, b)
	c.detachLocked(b, a)
	c.topo.unlink(a, b)
	c.logger.Info("link removed", zap.Uint8("a", uint8(a)), zap.Uint8("b", uint8(b)))
	return nil
}

func (c *Controller) checkLinkLocked(a, b packet.NodeID) error {
	if c.closed {
		return ErrClosed
	}
	if a == b {
		return fmt.Errorf("%w: %d to itself", ErrInvalidLink, a)
	}
	for _, id := range []packet.NodeID{a, b} {
		if _, ok := c.topo.types[id]; !ok {
			if h, isDrone := c.drones[id]; isDrone && h.crashed {
				return fmt.Errorf("%w: %d", ErrCrashed, id)
			}
			return fmt.Errorf("%w: %d", ErrUnknownNode, id)
		}
	}
	if c.topo.types[a] != packet.Drone && c.topo.types[b] != packet.Drone {
		return fmt.Errorf("%w: %d and %d are both endpoints", ErrInvalidLink, a, b)
	}
	return nil
}

// attachLocked gives node a link toward peer.
func (c *Controller) attachLocked(node, peer packet.NodeID) {
	link := c.linkTo(peer)
	if h, ok := c.drones[node]; ok {
		if err := h.commands.Push(controller.AddSender{ID: peer, Link: link}); err != nil {
			c.logger.Warn("add_sender not delivered", zap.Uint8("drone", uint8(node)), zap.Error(err))
		}
		return
	}
	c.endpoints[node].addLink(peer, link)
}

// detachLocked removes the link node holds toward peer.
func (c *Controller) detachLocked(node, peer packet.NodeID) {
	if h, ok := c.drones[node]; ok {
		if err := h.commands.Push(controller.RemoveSender{ID: peer}); err != nil {
			c.logger.Warn("remove_sender not delivered", zap.Uint8("drone", uint8(node)), zap.Error(err))
		}
		return
	}
	if ep, ok := c.endpoints[node]; ok {
		ep.removeLink(peer)
	}
}

func (c *Controller) liveDroneLocked(id packet.NodeID) (*droneHandle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	h, ok := c.drones[id]
	if !ok {
		if _, isEndpoint := c.endpoints[id]; isEndpoint {
			return nil, fmt.Errorf("%w: %d", ErrNotDrone, id)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if h.crashed {
		return nil, fmt.Errorf("%w: %d", ErrCrashed, id)
	}
	return h, nil
}

// Endpoint returns the client or server with id.
func (c *Controller) Endpoint(id packet.NodeID) (*Endpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ep, ok := c.endpoints[id]
	if !ok {
		if _, isDrone := c.drones[id]; isDrone {
			return nil, fmt.Errorf("%w: %d", ErrNotEndpoint, id)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return ep, nil
}

func (c *Controller) runningEndpoint(id packet.NodeID) (*Endpoint, error) {
	c.mu.RLock()
	started, closed := c.started, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !started {
		return nil, ErrNotStarted
	}
	return c.Endpoint(id)
}

// SendPacket injects p at endpoint from. p's current hop must be a drone
// linked to from.
func (c *Controller) SendPacket(from packet.NodeID, p *packet.Packet) error {
	ep, err := c.runningEndpoint(from)
	if err != nil {
		return err
	}
	return ep.Send(p)
}

// SendMessage splits msg into fragments and sends them from route[0] along
// route. It returns the session id of the message.
func (c *Controller) SendMessage(route []packet.NodeID, msg []byte) (uint64, error) {
	if len(route) < 2 {
		return 0, fmt.Errorf("%w: need at least two hops, got %v", ErrInvalidRoute, route)
	}
	ep, err := c.runningEndpoint(route[0])
	if err != nil {
		return 0, err
	}

	session := c.nextSession.Add(1)
	for _, f := range packet.Split(msg) {
		p := packet.NewFragment(packet.NewHeader(1, route...), session, f)
		if err := ep.Send(p); err != nil {
			return session, fmt.Errorf("fragment %d: %w", f.FragmentIndex, err)
		}
	}
	return session, nil
}

// Discover floods the network from endpoint from and collects the path
// traces answered within wait.
func (c *Controller) Discover(ctx context.Context, from packet.NodeID, wait time.Duration) ([]packet.PathTrace, error) {
	ep, err := c.runningEndpoint(from)
	if err != nil {
		return nil, err
	}

	floodID := c.nextFlood.Add(1)
	responses, cancel := ep.Subscribe()
	defer cancel()

	session := c.nextSession.Add(1)
	trace := packet.PathTrace{{ID: ep.ID(), Type: ep.Type()}}
	sent := 0
	for _, n := range ep.Neighbors() {
		req := packet.NewFloodRequest(packet.NewHeader(1, ep.ID(), n), session, &packet.FloodRequest{
			FloodID:     floodID,
			InitiatorID: ep.ID(),
			PathTrace:   trace.Clone(),
		})
		if err := ep.sendTo(n, req); err != nil {
			c.logger.Warn("flood request not sent", zap.Uint8("drone", uint8(n)), zap.Error(err))
			continue
		}
		sent++
	}
	if sent == 0 {
		return nil, fmt.Errorf("%w: endpoint %d has no reachable drone", ErrInvalidRoute, from)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var traces []packet.PathTrace
	for {
		select {
		case <-ctx.Done():
			return traces, ctx.Err()
		case <-timer.C:
			return traces, nil
		case p := <-responses:
			if resp, ok := p.Body.(*packet.FloodResponse); ok && resp.FloodID == floodID {
				traces = append(traces, resp.PathTrace)
			}
		}
	}
}

// Route floods from endpoint from and returns the shortest discovered route to to.
func (c *Controller) Route(ctx context.Context, from, to packet.NodeID, wait time.Duration) ([]packet.NodeID, error) {
	traces, err := discovery.NewFloodDiscovery(c, from, wait).FindPaths(ctx)
	if err != nil {
		return nil, err
	}
	return discovery.BuildGraph(traces).Route(from, to)
}

// Close crashes every live drone, waits for the drains to finish or ctx to
// expire, then stops endpoints and the event pump.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	for id, h := range c.drones {
		if h.crashed {
			continue
		}
		if err := h.commands.Push(controller.Crash{}); err != nil {
			c.logger.Warn("crash not delivered", zap.Uint8("drone", uint8(id)), zap.Error(err))
		}
		h.crashed = true
	}
	c.mu.Unlock()

	var err error
	if started {
		done := make(chan struct{})
		go func() {
			for _, h := range c.drones {
				<-h.node.Done()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		c.cancel()
		c.nodesWG.Wait()
	}

	c.closeQueues()
	c.pumpWG.Wait()
	c.logger.Info("simulation closed")

	if cerr := c.journal.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (c *Controller) closeQueues() {
	for _, h := range c.drones {
		h.commands.Close()
	}
	for _, q := range c.inboxes {
		q.Close()
	}
	c.events.Close()
}
