package drone

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/peerlink"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	peerlinkpkg "github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitTimeout = time.Second

// eventSink records events on a buffered channel.
type eventSink chan controller.Event

func (s eventSink) Push(ev controller.Event) error {
	s <- ev
	return nil
}

// harness wires one drone to buffered input channels and one inbox per neighbor.
// Inputs can be queued before start, which makes command priority observable.
type harness struct {
	t        *testing.T
	node     *Node
	commands chan controller.Command
	packets  chan *packet.Packet
	events   eventSink
	inboxes  map[packet.NodeID]*peerlink.Queue[*packet.Packet]
	result   chan error
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, id packet.NodeID, pdr float64, drain time.Duration, neighbors ...packet.NodeID) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		commands: make(chan controller.Command, 16),
		packets:  make(chan *packet.Packet, 16),
		events:   make(eventSink, 64),
		inboxes:  make(map[packet.NodeID]*peerlink.Queue[*packet.Packet]),
		result:   make(chan error, 1),
	}

	links := make(map[packet.NodeID]peerlinkpkg.Link)
	for _, nb := range neighbors {
		links[nb] = h.link(nb)
	}

	node, err := NewNode(&Config{
		ID:           id,
		PDR:          pdr,
		Neighbors:    links,
		Commands:     h.commands,
		Packets:      h.packets,
		Events:       h.events,
		DrainTimeout: drain,
		Logger:       zaptest.NewLogger(t),
		Rand:         rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)
	h.node = node
	return h
}

// link creates an inbox for nb and returns a link delivering into it.
func (h *harness) link(nb packet.NodeID) *peerlink.ChannelLink {
	inbox := peerlink.NewQueue[*packet.Packet]()
	h.t.Cleanup(inbox.Close)
	h.inboxes[nb] = inbox
	return peerlink.NewChannelLink(nb, inbox)
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.result <- h.node.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		<-h.node.Done()
	})
}

// wait returns the Run result, failing if the drone does not stop in time.
func (h *harness) wait(timeout time.Duration) error {
	h.t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(timeout):
		h.t.Fatalf("drone %d did not stop within %v", h.node.ID(), timeout)
		return nil
	}
}

func (h *harness) receive(nb packet.NodeID) *packet.Packet {
	h.t.Helper()
	select {
	case p := <-h.inboxes[nb].C():
		return p
	case <-time.After(waitTimeout):
		h.t.Fatalf("nothing delivered to %d", nb)
		return nil
	}
}

func (h *harness) assertNothingDelivered(nb packet.NodeID) {
	h.t.Helper()
	select {
	case p := <-h.inboxes[nb].C():
		h.t.Fatalf("unexpected delivery to %d: %s", nb, p)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) event() controller.Event {
	h.t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(waitTimeout):
		h.t.Fatalf("no event from drone %d", h.node.ID())
		return controller.Event{}
	}
}

func fragment(t *testing.T, session uint64, hopIndex int, msg string, hops ...packet.NodeID) *packet.Packet {
	t.Helper()
	f, err := packet.NewFragmentFromString(0, 1, msg)
	require.NoError(t, err)
	return packet.NewFragment(packet.NewHeader(hopIndex, hops...), session, f)
}
