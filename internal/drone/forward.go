package drone

import (
	"errors"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/routing"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"go.uber.org/zap"
)

// handlePacket runs one inbound packet through validation, loss simulation
// and forwarding. Every failure is resolved here; nothing is returned.
func (n *Node) handlePacket(p *packet.Packet) {
	n.counters.received.Add(1)
	if p == nil || p.Body == nil {
		n.logger.Warn("discarding packet without body")
		return
	}

	next, err := routing.Validate(p, n.id, n.neighbors)
	if err != nil {
		var rerr *routing.Error
		if errors.As(err, &rerr) {
			n.handleRoutingError(p, rerr)
		}
		return
	}

	if next.Broadcast {
		n.handleFlood(p)
		return
	}

	// Loss only applies to data traffic
	if p.Type() == packet.TypeFragment && n.rand.Float64() < n.pdr {
		n.dropFragment(p)
		return
	}

	p.RoutingHeader.Advance()
	if err := n.send(next.ID, p); err != nil {
		n.logger.Warn("forward failed", zap.Stringer("packet", p), zap.Error(err))
		return
	}
	n.counters.forwarded.Add(1)
}

func (n *Node) handleRoutingError(p *packet.Packet, rerr *routing.Error) {
	n.logger.Debug("routing error",
		zap.Stringer("packet", p),
		zap.Stringer("nack", rerr.Kind))

	n.sendNack(p, rerr.HopIndex, rerr.Kind)

	// Topology packets cannot be NACKed back to their originator
	if p.IsTopology() {
		n.counters.shortcuts.Add(1)
		n.emit(controller.ControllerShortcut, p)
	}
}

func (n *Node) dropFragment(p *packet.Packet) {
	n.counters.dropped.Add(1)
	n.logger.Debug("fragment dropped",
		zap.Uint64("session", p.SessionID),
		zap.Uint64("fragment", p.FragmentIndex()))

	n.sendNack(p, p.RoutingHeader.HopIndex, packet.Dropped())
	n.emit(controller.PacketDropped, p)
}

func (n *Node) handleFlood(p *packet.Packet) {
	res, err := n.flood.Handle(p, n.neighbors.IDs())
	if err != nil {
		n.logger.Warn("flood request rejected", zap.Stringer("packet", p), zap.Error(err))
		return
	}
	n.counters.floods.Add(1)
	n.logger.Debug("flood handled",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("sends", len(res.Sends)))

	for _, out := range res.Sends {
		if err := n.send(out.To, out.Packet); err != nil {
			n.logger.Warn("flood send failed",
				zap.Uint8("neighbor", uint8(out.To)),
				zap.Error(err))
		}
	}
}

// sendNack builds the NACK for orig failing at faultHopIndex and sends it one
// hop back. The NACK is returned even when it could not be sent.
func (n *Node) sendNack(orig *packet.Packet, faultHopIndex int, kind packet.NackKind) (*packet.Packet, error) {
	nack, err := routing.BuildNack(orig, faultHopIndex, kind)
	if err != nil {
		n.logger.Warn("cannot build nack", zap.Stringer("packet", orig), zap.Error(err))
		return nil, err
	}

	prev, _ := nack.RoutingHeader.CurrentHop()
	if err := n.send(prev, nack); err != nil {
		n.logger.Warn("nack send failed",
			zap.Uint8("neighbor", uint8(prev)),
			zap.Stringer("nack", kind),
			zap.Error(err))
		return nack, err
	}
	n.counters.nacksSent.Add(1)
	return nack, nil
}

// send hands p to neighbor to and reports PacketSent on success.
// The event carries a copy taken before the send: p belongs to the
// receiver as soon as it is in the neighbor's queue.
func (n *Node) send(to packet.NodeID, p *packet.Packet) error {
	sent := p.Clone()
	if err := n.neighbors.Send(to, p); err != nil {
		n.counters.sendErrors.Add(1)
		return err
	}
	n.emit(controller.PacketSent, sent)
	return nil
}

func (n *Node) emit(kind controller.EventKind, p *packet.Packet) {
	ev := controller.Event{Kind: kind, NodeID: n.id, Packet: p}
	if err := n.events.Push(ev); err != nil {
		n.logger.Warn("event dropped", zap.Stringer("kind", kind), zap.Error(err))
	}
}
