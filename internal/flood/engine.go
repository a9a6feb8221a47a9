// Package flood implements the discovery broadcast: duplicate suppression,
// path trace extension and the choice between fan-out and answering back.
package flood

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

var (
	// ErrNotFloodRequest is returned when Handle is given another packet type
	ErrNotFloodRequest = errors.New("not a flood request")
	// ErrEmptyTrace is returned for requests whose trace has no return path
	ErrEmptyTrace = errors.New("flood request has an empty path trace")
)

// Key identifies a flood. Flood ids are only unique per initiator.
type Key struct {
	FloodID     uint64
	InitiatorID packet.NodeID
}

// Outcome tells which branch Handle took.
type Outcome int

const (
	// Duplicate means the flood was already seen; a response goes back.
	Duplicate Outcome = iota
	// DeadEnd means no neighbor is left to expand to; a response goes back.
	DeadEnd
	// FanOut means the request was copied to every eligible neighbor.
	FanOut
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case DeadEnd:
		return "dead_end"
	case FanOut:
		return "fan_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Outbound is a packet to hand to neighbor To.
type Outbound struct {
	To     packet.NodeID
	Packet *packet.Packet
}

// Result is what the caller has to send after handling one request.
type Result struct {
	Outcome Outcome
	Sends   []Outbound
}

// Engine holds the flood state of one drone. Not safe for concurrent use.
//
// The seen set only grows. Memory is proportional to the number of distinct
// floods observed over the node's lifetime.
type Engine struct {
	self packet.NodeID
	seen map[Key]struct{}
}

// NewEngine creates an engine for the drone self.
func NewEngine(self packet.NodeID) *Engine {
	return &Engine{
		self: self,
		seen: make(map[Key]struct{}),
	}
}

// Seen reports whether the flood identified by k has been handled before.
func (e *Engine) Seen(k Key) bool {
	_, ok := e.seen[k]
	return ok
}

// Len returns the number of floods recorded.
func (e *Engine) Len() int {
	return len(e.seen)
}

// Handle processes flood request p given the current neighbor ids.
// p is not modified; every outbound packet is a fresh copy.
func (e *Engine) Handle(p *packet.Packet, neighbors []packet.NodeID) (Result, error) {
	req, ok := p.Body.(*packet.FloodRequest)
	if !ok {
		return Result{}, fmt.Errorf("%w: got %s", ErrNotFloodRequest, p.Type())
	}
	if len(req.PathTrace) == 0 {
		return Result{}, fmt.Errorf("%w: flood %d from %d", ErrEmptyTrace, req.FloodID, req.InitiatorID)
	}

	key := Key{FloodID: req.FloodID, InitiatorID: req.InitiatorID}
	if e.Seen(key) {
		// Answer with the trace as received. The header still starts at self
		// so the response walks back along the trace.
		hops := append([]packet.NodeID{e.self}, reversed(req.PathTrace.IDs())...)
		return e.respond(Duplicate, p.SessionID, req.FloodID, req.PathTrace.Clone(), hops), nil
	}
	e.seen[key] = struct{}{}

	sender := req.PathTrace[len(req.PathTrace)-1].ID
	trace := append(req.PathTrace.Clone(), packet.PathHop{ID: e.self, Type: packet.Drone})

	var eligible []packet.NodeID
	for _, n := range neighbors {
		if n != sender && n != e.self {
			eligible = append(eligible, n)
		}
	}

	if len(eligible) == 0 {
		return e.respond(DeadEnd, p.SessionID, req.FloodID, trace, reversed(trace.IDs())), nil
	}

	res := Result{Outcome: FanOut, Sends: make([]Outbound, 0, len(eligible))}
	for _, n := range eligible {
		fwd := packet.NewFloodRequest(packet.NewHeader(1, e.self, n), p.SessionID, &packet.FloodRequest{
			FloodID:     req.FloodID,
			InitiatorID: req.InitiatorID,
			PathTrace:   trace.Clone(),
		})
		res.Sends = append(res.Sends, Outbound{To: n, Packet: fwd})
	}
	return res, nil
}

func (e *Engine) respond(outcome Outcome, session, floodID uint64, trace packet.PathTrace, hops []packet.NodeID) Result {
	header := packet.NewHeader(1, hops...)
	resp := packet.NewFloodResponse(header, session, &packet.FloodResponse{
		FloodID:   floodID,
		PathTrace: trace,
	})
	return Result{
		Outcome: outcome,
		Sends:   []Outbound{{To: hops[1], Packet: resp}},
	}
}

func reversed(ids []packet.NodeID) []packet.NodeID {
	out := make([]packet.NodeID, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
