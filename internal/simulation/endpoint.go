package simulation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/peerlink"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	peerlinkpkg "github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
	"go.uber.org/zap"
)

// subscriberBuffer is the capacity of each subscription channel.
// A subscriber that falls this far behind misses packets.
const subscriberBuffer = 256

// Endpoint is a client or server. It originates traffic, answers flood
// requests, acknowledges fragments addressed to it and reassembles messages.
type Endpoint struct {
	id     packet.NodeID
	typ    packet.NodeType
	inbox  *peerlink.Queue[*packet.Packet]
	logger *zap.Logger

	mu       sync.Mutex
	links    map[packet.NodeID]peerlinkpkg.Link
	received []*packet.Packet
	partial  map[uint64]*assembly
	messages map[uint64][]byte
	subs     map[int]chan *packet.Packet
	nextSub  int
}

var errInvalidFragment = errors.New("invalid fragment")

type assembly struct {
	total     uint64
	fragments map[uint64][]byte
}

func newEndpoint(id packet.NodeID, typ packet.NodeType, inbox *peerlink.Queue[*packet.Packet], logger *zap.Logger) *Endpoint {
	return &Endpoint{
		id:       id,
		typ:      typ,
		inbox:    inbox,
		logger:   logger.With(zap.Uint8("endpoint", uint8(id)), zap.Stringer("type", typ)),
		links:    make(map[packet.NodeID]peerlinkpkg.Link),
		partial:  make(map[uint64]*assembly),
		messages: make(map[uint64][]byte),
		subs:     make(map[int]chan *packet.Packet),
	}
}

// ID returns the endpoint id.
func (e *Endpoint) ID() packet.NodeID { return e.id }

// Type returns Client or Server.
func (e *Endpoint) Type() packet.NodeType { return e.typ }

// Neighbors returns the drones this endpoint is linked to, in ascending order.
func (e *Endpoint) Neighbors() []packet.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.links))
}

// Received returns copies of every packet delivered to the endpoint so far.
func (e *Endpoint) Received() []*packet.Packet {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*packet.Packet, len(e.received))
	for i, p := range e.received {
		out[i] = p.Clone()
	}
	return out
}

// Message returns the reassembled message of session once every fragment arrived.
func (e *Endpoint) Message(session uint64) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, ok := e.messages[session]
	return msg, ok
}

// Subscribe returns a channel receiving a copy of every packet delivered from
// now on, and a function to cancel the subscription.
func (e *Endpoint) Subscribe() (<-chan *packet.Packet, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan *packet.Packet, subscriberBuffer)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
		})
	}
}

// Send hands p to the drone at p's current hop.
func (e *Endpoint) Send(p *packet.Packet) error {
	next, ok := p.RoutingHeader.CurrentHop()
	if !ok {
		return fmt.Errorf("%w: header %s has no current hop", ErrInvalidRoute, p.RoutingHeader)
	}
	return e.sendTo(next, p)
}

func (e *Endpoint) sendTo(to packet.NodeID, p *packet.Packet) error {
	e.mu.Lock()
	link, ok := e.links[to]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d is not linked to %d", peerlinkpkg.ErrUnreachable, e.id, to)
	}
	return link.Send(p)
}

func (e *Endpoint) addLink(id packet.NodeID, link peerlinkpkg.Link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.links[id]; ok {
		_ = old.Close()
	}
	e.links[id] = link
}

func (e *Endpoint) removeLink(id packet.NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if link, ok := e.links[id]; ok {
		_ = link.Close()
		delete(e.links, id)
	}
}

// run consumes the inbox until it is closed or ctx is cancelled.
func (e *Endpoint) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-e.inbox.C():
			if !ok {
				return
			}
			e.handle(p)
		}
	}
}

func (e *Endpoint) handle(p *packet.Packet) {
	if p == nil || p.Body == nil {
		return
	}
	e.record(p)

	switch body := p.Body.(type) {
	case *packet.FloodRequest:
		e.answerFlood(p, body)
	case *packet.Fragment:
		e.acceptFragment(p, body)
	case *packet.Nack:
		e.logger.Debug("nack received",
			zap.Uint64("session", p.SessionID),
			zap.Stringer("kind", body.Kind))
	}
}

func (e *Endpoint) record(p *packet.Packet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.received = append(e.received, p)
	for id, ch := range e.subs {
		select {
		case ch <- p.Clone():
		default:
			e.logger.Warn("subscriber too slow, packet skipped", zap.Int("subscriber", id))
		}
	}
}

func (e *Endpoint) answerFlood(p *packet.Packet, req *packet.FloodRequest) {
	if req.InitiatorID == e.id {
		return
	}

	trace := append(req.PathTrace.Clone(), packet.PathHop{ID: e.id, Type: e.typ})
	ids := trace.IDs()
	slices.Reverse(ids)

	resp := packet.NewFloodResponse(packet.NewHeader(1, ids...), p.SessionID, &packet.FloodResponse{
		FloodID:   req.FloodID,
		PathTrace: trace,
	})
	if err := e.Send(resp); err != nil {
		e.logger.Warn("flood response not sent", zap.Error(err))
	}
}

func (e *Endpoint) acceptFragment(p *packet.Packet, f *packet.Fragment) {
	h := p.RoutingHeader
	if dest, ok := h.Destination(); !ok || dest != e.id || h.HopIndex != len(h.Hops)-1 {
		e.logger.Warn("fragment not addressed to this endpoint", zap.Stringer("packet", p))
		return
	}

	if err := e.assemble(p.SessionID, f); err != nil {
		e.logger.Warn("fragment rejected", zap.Uint64("session", p.SessionID), zap.Error(err))
		return
	}

	ack := packet.NewAck(packet.NewReversedHeader(h.Hops), p.SessionID, &packet.Ack{FragmentIndex: f.FragmentIndex})
	if err := e.Send(ack); err != nil {
		e.logger.Warn("ack not sent", zap.Error(err))
	}
}

// assemble stores f and completes the message of session once every index
// below the fragment count is present. The first fragment of a session fixes
// that count.
func (e *Endpoint) assemble(session uint64, f *packet.Fragment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, done := e.messages[session]; done {
		return nil
	}
	if f.TotalFragments == 0 {
		return fmt.Errorf("%w: fragment %d has a total of zero", errInvalidFragment, f.FragmentIndex)
	}
	a, ok := e.partial[session]
	if ok && f.TotalFragments != a.total {
		return fmt.Errorf("%w: total %d, session started with %d", errInvalidFragment, f.TotalFragments, a.total)
	}
	if f.FragmentIndex >= f.TotalFragments {
		return fmt.Errorf("%w: index %d out of %d", errInvalidFragment, f.FragmentIndex, f.TotalFragments)
	}
	if !ok {
		a = &assembly{total: f.TotalFragments, fragments: make(map[uint64][]byte)}
		e.partial[session] = a
	}
	a.fragments[f.FragmentIndex] = f.Payload()
	if uint64(len(a.fragments)) < a.total {
		return nil
	}

	var msg []byte
	for i := uint64(0); i < a.total; i++ {
		msg = append(msg, a.fragments[i]...)
	}
	e.messages[session] = msg
	delete(e.partial, session)
	e.logger.Debug("message reassembled", zap.Uint64("session", session), zap.Int("bytes", len(msg)))
	return nil
}
