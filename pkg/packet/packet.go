package packet

import (
	"fmt"
	"strings"
)

// NodeID identifies a node in the mesh.
type NodeID uint8

// NodeType is the role a node plays in a path trace.
type NodeType int

const (
	// Client originates messages and flood requests
	Client NodeType = iota

	// Drone forwards source-routed traffic
	Drone

	// Server terminates messages
	Server
)

func (t NodeType) String() string {
	switch t {
	case Client:
		return "client"
	case Drone:
		return "drone"
	case Server:
		return "server"
	default:
		return "unknown"
	}
}

// ParseNodeType converts the lowercase name returned by String back into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToLower(s) {
	case "client":
		return Client, nil
	case "drone":
		return Drone, nil
	case "server":
		return Server, nil
	default:
		return 0, fmt.Errorf("unknown node type %q", s)
	}
}

// Type identifies the variant carried in a Packet body.
type Type int

const (
	TypeFragment Type = iota
	TypeAck
	TypeNack
	TypeFloodRequest
	TypeFloodResponse
)

func (t Type) String() string {
	switch t {
	case TypeFragment:
		return "fragment"
	case TypeAck:
		return "ack"
	case TypeNack:
		return "nack"
	case TypeFloodRequest:
		return "flood_request"
	case TypeFloodResponse:
		return "flood_response"
	default:
		return "unknown"
	}
}

// Body is implemented by the five packet variants. The set is closed.
type Body interface {
	Type() Type
	clone() Body
}

// Packet is the unit of traffic exchanged between neighbors.
type Packet struct {
	Body          Body
	RoutingHeader SourceRoutingHeader
	SessionID     uint64
}

// New creates a packet carrying body along header.
func New(header SourceRoutingHeader, sessionID uint64, body Body) *Packet {
	return &Packet{
		Body:          body,
		RoutingHeader: header,
		SessionID:     sessionID,
	}
}

// NewFragment wraps a Fragment in a routed packet.
func NewFragment(header SourceRoutingHeader, sessionID uint64, fragment *Fragment) *Packet {
	return New(header, sessionID, fragment)
}

// NewAck wraps an Ack in a routed packet.
func NewAck(header SourceRoutingHeader, sessionID uint64, ack *Ack) *Packet {
	return New(header, sessionID, ack)
}

// NewNack wraps a Nack in a routed packet.
func NewNack(header SourceRoutingHeader, sessionID uint64, nack *Nack) *Packet {
	return New(header, sessionID, nack)
}

// NewFloodRequest wraps a FloodRequest in a packet.
func NewFloodRequest(header SourceRoutingHeader, sessionID uint64, req *FloodRequest) *Packet {
	return New(header, sessionID, req)
}

// NewFloodResponse wraps a FloodResponse in a routed packet.
func NewFloodResponse(header SourceRoutingHeader, sessionID uint64, resp *FloodResponse) *Packet {
	return New(header, sessionID, resp)
}

// Type returns the variant of the packet body, or -1 for a packet without one.
func (p *Packet) Type() Type {
	if p == nil || p.Body == nil {
		return Type(-1)
	}
	return p.Body.Type()
}

// IsTopology reports whether the packet is an Ack, Nack or FloodResponse.
// These cannot be NACKed themselves and are escalated to the controller when misrouted.
func (p *Packet) IsTopology() bool {
	switch p.Type() {
	case TypeAck, TypeNack, TypeFloodResponse:
		return true
	default:
		return false
	}
}

// FragmentIndex returns the fragment index for Fragment packets and 0 otherwise.
func (p *Packet) FragmentIndex() uint64 {
	if f, ok := p.Body.(*Fragment); ok {
		return f.FragmentIndex
	}
	return 0
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	c := &Packet{
		RoutingHeader: p.RoutingHeader.Clone(),
		SessionID:     p.SessionID,
	}
	if p.Body != nil {
		c.Body = p.Body.clone()
	}
	return c
}

func (p *Packet) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s{session=%d %s}", p.Type(), p.SessionID, p.RoutingHeader)
}

// Ack acknowledges delivery of one fragment.
type Ack struct {
	FragmentIndex uint64
}

func (a *Ack) Type() Type { return TypeAck }

func (a *Ack) clone() Body {
	c := *a
	return &c
}

// Nack reports why a fragment could not make progress.
type Nack struct {
	FragmentIndex uint64
	Kind          NackKind
}

func (n *Nack) Type() Type { return TypeNack }

func (n *Nack) clone() Body {
	c := *n
	return &c
}

// PathHop is one entry of a discovery path trace.
type PathHop struct {
	ID   NodeID
	Type NodeType
}

// PathTrace records the walk of a flood request.
type PathTrace []PathHop

// IDs returns the node ids of the trace in walk order.
func (t PathTrace) IDs() []NodeID {
	ids := make([]NodeID, len(t))
	for i, hop := range t {
		ids[i] = hop.ID
	}
	return ids
}

// Clone returns a copy of the trace that shares no memory with t.
func (t PathTrace) Clone() PathTrace {
	if t == nil {
		return nil
	}
	c := make(PathTrace, len(t))
	copy(c, t)
	return c
}

func (t PathTrace) String() string {
	parts := make([]string, len(t))
	for i, hop := range t {
		parts[i] = fmt.Sprintf("%d(%s)", hop.ID, hop.Type)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// FloodRequest is a discovery broadcast.
type FloodRequest struct {
	FloodID     uint64
	InitiatorID NodeID
	PathTrace   PathTrace
}

func (r *FloodRequest) Type() Type { return TypeFloodRequest }

func (r *FloodRequest) clone() Body {
	return &FloodRequest{
		FloodID:     r.FloodID,
		InitiatorID: r.InitiatorID,
		PathTrace:   r.PathTrace.Clone(),
	}
}

// FloodResponse carries a completed path trace back to the initiator.
type FloodResponse struct {
	FloodID   uint64
	PathTrace PathTrace
}

func (r *FloodResponse) Type() Type { return TypeFloodResponse }

func (r *FloodResponse) clone() Body {
	return &FloodResponse{
		FloodID:   r.FloodID,
		PathTrace: r.PathTrace.Clone(),
	}
}
