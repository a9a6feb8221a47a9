// Package drone implements a mesh drone: a node that forwards source-routed
// packets between its neighbors, simulates packet loss, expands discovery
// floods and obeys controller commands until it is crashed.
package drone

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/flood"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/neighbortable"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("drone is already running")

// State is the lifecycle state of a drone.
type State int32

const (
	// Running drones process commands and packets
	Running State = iota
	// Draining drones have lost their links and only consume packets
	Draining
	// Crashed drones are stopped for good
	Crashed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Crashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a snapshot of the drone counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Forwarded  uint64 `json:"forwarded"`
	Dropped    uint64 `json:"dropped"`
	NacksSent  uint64 `json:"nacks_sent"`
	Shortcuts  uint64 `json:"shortcuts"`
	Floods     uint64 `json:"floods"`
	SendErrors uint64 `json:"send_errors"`
}

type counters struct {
	received   atomic.Uint64
	forwarded  atomic.Uint64
	dropped    atomic.Uint64
	nacksSent  atomic.Uint64
	shortcuts  atomic.Uint64
	floods     atomic.Uint64
	sendErrors atomic.Uint64
}

// Node is a single drone. All packet and command handling happens on the
// goroutine calling Run; only State, Stats and Done are safe to call from
// other goroutines.
type Node struct {
	id           packet.NodeID
	pdr          float64
	drainTimeout time.Duration

	neighbors *neighbortable.Table
	flood     *flood.Engine

	commands <-chan controller.Command
	packets  <-chan *packet.Packet
	events   controller.EventSink

	logger *zap.Logger
	rand   *rand.Rand

	state    atomic.Int32
	started  atomic.Bool
	done     chan struct{}
	counters counters
}

// NewNode creates a drone from config. The drone does nothing until Run is called.
func NewNode(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	n := &Node{
		id:           config.ID,
		pdr:          config.PDR,
		drainTimeout: config.DrainTimeout,
		neighbors:    neighbortable.New(config.Neighbors),
		flood:        flood.NewEngine(config.ID),
		commands:     config.Commands,
		packets:      config.Packets,
		events:       config.Events,
		logger:       config.Logger.With(zap.Uint8("drone", uint8(config.ID))),
		rand:         config.Rand,
		done:         make(chan struct{}),
	}
	n.state.Store(int32(Running))
	return n, nil
}

// ID returns the drone id.
func (n *Node) ID() packet.NodeID {
	return n.id
}

// State returns the current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Done is closed once Run has returned.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Stats returns a snapshot of the drone counters.
func (n *Node) Stats() Stats {
	return Stats{
		Received:   n.counters.received.Load(),
		Forwarded:  n.counters.forwarded.Load(),
		Dropped:    n.counters.dropped.Load(),
		NacksSent:  n.counters.nacksSent.Load(),
		Shortcuts:  n.counters.shortcuts.Load(),
		Floods:     n.counters.floods.Load(),
		SendErrors: n.counters.sendErrors.Load(),
	}
}

// Run processes commands and packets until the drone is crashed, both input
// channels are closed, or ctx is cancelled. A Crash command drains in-flight
// packets before returning nil; cancellation stops immediately and returns
// ctx.Err().
func (n *Node) Run(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(n.done)

	n.logger.Info("drone started",
		zap.Float64("pdr", n.pdr),
		zap.Int("neighbors", n.neighbors.Len()))

	commands, packets := n.commands, n.packets
	for {
		// A pending command always wins over a pending packet.
		select {
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if n.handleCommand(cmd) {
				return n.drain(ctx, packets)
			}
			continue
		default:
		}

		if commands == nil && packets == nil {
			n.logger.Info("input channels closed, stopping")
			n.stop()
			return nil
		}

		// Priority is best-effort here: a command and a packet that become ready
		// during the same wait are picked at random. A command that loses is
		// taken by the non-blocking check on the next iteration.
		select {
		case <-ctx.Done():
			n.stop()
			return ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if n.handleCommand(cmd) {
				return n.drain(ctx, packets)
			}
		case p, ok := <-packets:
			if !ok {
				packets = nil
				continue
			}
			n.handlePacket(p)
		}
	}
}

func (n *Node) stop() {
	n.neighbors.Clear()
	n.state.Store(int32(Crashed))
}
