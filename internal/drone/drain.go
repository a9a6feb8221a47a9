package drone

import (
	"context"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"go.uber.org/zap"
)

// drain moves the drone to Draining, cuts every link and consumes packets
// until none arrives for drainTimeout or the packet channel is closed.
func (n *Node) drain(ctx context.Context, packets <-chan *packet.Packet) error {
	n.state.Store(int32(Draining))
	removed := n.neighbors.Clear()
	n.logger.Info("drone crashing, draining packets",
		zap.Int("links_closed", len(removed)),
		zap.Duration("drain_timeout", n.drainTimeout))

	defer func() {
		n.state.Store(int32(Crashed))
		n.logger.Info("drone crashed")
	}()

	if packets == nil {
		return nil
	}

	timer := time.NewTimer(n.drainTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-packets:
			if !ok {
				return nil
			}
			n.drainPacket(p)
			timer.Reset(n.drainTimeout)
		case <-timer.C:
			return nil
		}
	}
}

func (n *Node) drainPacket(p *packet.Packet) {
	n.counters.received.Add(1)

	switch p.Type() {
	case packet.TypeFloodRequest:
		n.logger.Debug("discarding flood request while crashing")

	case packet.TypeAck, packet.TypeNack, packet.TypeFloodResponse:
		next, ok := p.RoutingHeader.NextHop()
		if !ok {
			n.logger.Debug("no next hop while crashing", zap.Stringer("packet", p))
			return
		}
		p.RoutingHeader.Advance()
		if err := n.send(next, p); err != nil {
			n.logger.Debug("dropping packet while crashing", zap.Stringer("packet", p), zap.Error(err))
			return
		}
		n.counters.forwarded.Add(1)

	case packet.TypeFragment:
		nack, err := n.sendNack(p, p.RoutingHeader.HopIndex, packet.ErrorInRouting(n.id))
		if err != nil && nack != nil {
			// Links are gone; the controller delivers it instead
			n.counters.shortcuts.Add(1)
			n.emit(controller.ControllerShortcut, nack)
		}

	default:
		n.logger.Debug("discarding packet without body while crashing")
	}
}
