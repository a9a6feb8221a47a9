// Package wire encodes packets in the protobuf wire format.
//
// The schema is fixed and small, so it is written against protowire directly
// instead of generated code:
//
//	message Packet {
//	  uint64 session_id = 1;
//	  uint64 hop_index  = 2;
//	  bytes  hops       = 3;  // one byte per node id
//	  oneof body {
//	    Fragment      fragment       = 4;
//	    Ack           ack            = 5;
//	    Nack          nack           = 6;
//	    FloodRequest  flood_request  = 7;
//	    FloodResponse flood_response = 8;
//	  }
//	}
//	message Fragment      { uint64 index = 1; uint64 total = 2; bytes data = 3; }
//	message Ack           { uint64 index = 1; }
//	message Nack          { uint64 index = 1; uint32 type = 2; uint32 node = 3; }
//	message FloodRequest  { uint64 flood_id = 1; uint32 initiator = 2; repeated PathHop trace = 3; }
//	message FloodResponse { uint64 flood_id = 1; repeated PathHop trace = 2; }
//	message PathHop       { uint32 id = 1; uint32 type = 2; }
package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformed is returned for input that is not a valid packet encoding
	ErrMalformed = errors.New("malformed packet encoding")
	// ErrNoBody is returned when encoding or decoding a packet without a body
	ErrNoBody = errors.New("packet has no body")
)

const (
	fieldSession       protowire.Number = 1
	fieldHopIndex      protowire.Number = 2
	fieldHops          protowire.Number = 3
	fieldFragment      protowire.Number = 4
	fieldAck           protowire.Number = 5
	fieldNack          protowire.Number = 6
	fieldFloodRequest  protowire.Number = 7
	fieldFloodResponse protowire.Number = 8
)

// Marshal encodes p.
func Marshal(p *packet.Packet) ([]byte, error) {
	if p == nil || p.Body == nil {
		return nil, ErrNoBody
	}
	if p.RoutingHeader.HopIndex < 0 {
		return nil, fmt.Errorf("negative hop index %d", p.RoutingHeader.HopIndex)
	}

	var b []byte
	b = appendVarint(b, fieldSession, p.SessionID)
	b = appendVarint(b, fieldHopIndex, uint64(p.RoutingHeader.HopIndex))
	b = appendBytes(b, fieldHops, hopsToBytes(p.RoutingHeader.Hops))

	switch body := p.Body.(type) {
	case *packet.Fragment:
		var m []byte
		m = appendVarint(m, 1, body.FragmentIndex)
		m = appendVarint(m, 2, body.TotalFragments)
		m = appendBytes(m, 3, body.Payload())
		b = appendBytes(b, fieldFragment, m)
	case *packet.Ack:
		b = appendBytes(b, fieldAck, appendVarint(nil, 1, body.FragmentIndex))
	case *packet.Nack:
		var m []byte
		m = appendVarint(m, 1, body.FragmentIndex)
		m = appendVarint(m, 2, uint64(body.Kind.Type))
		m = appendVarint(m, 3, uint64(body.Kind.Node))
		b = appendBytes(b, fieldNack, m)
	case *packet.FloodRequest:
		var m []byte
		m = appendVarint(m, 1, body.FloodID)
		m = appendVarint(m, 2, uint64(body.InitiatorID))
		m = appendTrace(m, 3, body.PathTrace)
		b = appendBytes(b, fieldFloodRequest, m)
	case *packet.FloodResponse:
		var m []byte
		m = appendVarint(m, 1, body.FloodID)
		m = appendTrace(m, 2, body.PathTrace)
		b = appendBytes(b, fieldFloodResponse, m)
	default:
		return nil, fmt.Errorf("unsupported body %T", p.Body)
	}
	return b, nil
}

// Unmarshal decodes a packet produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*packet.Packet, error) {
	p := &packet.Packet{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch num {
		case fieldSession:
			p.SessionID = x
		case fieldHopIndex:
			if x > math.MaxInt32 {
				return fmt.Errorf("%w: hop index %d", ErrMalformed, x)
			}
			p.RoutingHeader.HopIndex = int(x)
		case fieldHops:
			p.RoutingHeader.Hops = bytesToHops(v)
		case fieldFragment:
			p.Body, err = decodeFragment(v)
		case fieldAck:
			p.Body, err = decodeAck(v)
		case fieldNack:
			p.Body, err = decodeNack(v)
		case fieldFloodRequest:
			p.Body, err = decodeFloodRequest(v)
		case fieldFloodResponse:
			p.Body, err = decodeFloodResponse(v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.Body == nil {
		return nil, ErrNoBody
	}
	return p, nil
}

func decodeFragment(b []byte) (*packet.Fragment, error) {
	var index, total uint64
	var data []byte
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			index = x
		case 2:
			total = x
		case 3:
			data = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	f, err := packet.NewFragmentData(index, total, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return f, nil
}

func decodeAck(b []byte) (*packet.Ack, error) {
	ack := &packet.Ack{}
	err := walk(b, func(num protowire.Number, _ protowire.Type, _ []byte, x uint64) error {
		if num == 1 {
			ack.FragmentIndex = x
		}
		return nil
	})
	return ack, err
}

func decodeNack(b []byte) (*packet.Nack, error) {
	nack := &packet.Nack{}
	err := walk(b, func(num protowire.Number, _ protowire.Type, _ []byte, x uint64) error {
		switch num {
		case 1:
			nack.FragmentIndex = x
		case 2:
			nack.Kind.Type = packet.NackType(x)
		case 3:
			id, err := nodeID(x)
			if err != nil {
				return err
			}
			nack.Kind.Node = id
		}
		return nil
	})
	return nack, err
}

func decodeFloodRequest(b []byte) (*packet.FloodRequest, error) {
	req := &packet.FloodRequest{}
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			req.FloodID = x
		case 2:
			id, err := nodeID(x)
			if err != nil {
				return err
			}
			req.InitiatorID = id
		case 3:
			hop, err := decodePathHop(v)
			if err != nil {
				return err
			}
			req.PathTrace = append(req.PathTrace, hop)
		}
		return nil
	})
	return req, err
}

func decodeFloodResponse(b []byte) (*packet.FloodResponse, error) {
	resp := &packet.FloodResponse{}
	err := walk(b, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			resp.FloodID = x
		case 2:
			hop, err := decodePathHop(v)
			if err != nil {
				return err
			}
			resp.PathTrace = append(resp.PathTrace, hop)
		}
		return nil
	})
	return resp, err
}

func decodePathHop(b []byte) (packet.PathHop, error) {
	var hop packet.PathHop
	err := walk(b, func(num protowire.Number, _ protowire.Type, _ []byte, x uint64) error {
		switch num {
		case 1:
			id, err := nodeID(x)
			if err != nil {
				return err
			}
			hop.ID = id
		case 2:
			hop.Type = packet.NodeType(x)
		}
		return nil
	})
	return hop, err
}

// walk calls fn for each field of b. Varint fields set x, length-delimited
// fields set v; other wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				b = b[n:]
				continue
			}
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendTrace(b []byte, num protowire.Number, trace packet.PathTrace) []byte {
	for _, hop := range trace {
		var m []byte
		m = appendVarint(m, 1, uint64(hop.ID))
		m = appendVarint(m, 2, uint64(hop.Type))
		b = appendBytes(b, num, m)
	}
	return b
}

func hopsToBytes(hops []packet.NodeID) []byte {
	out := make([]byte, len(hops))
	for i, h := range hops {
		out[i] = byte(h)
	}
	return out
}

func bytesToHops(b []byte) []packet.NodeID {
	hops := make([]packet.NodeID, len(b))
	for i, v := range b {
		hops[i] = packet.NodeID(v)
	}
	return hops
}

func nodeID(x uint64) (packet.NodeID, error) {
	if x > math.MaxUint8 {
		return 0, fmt.Errorf("%w: node id %d out of range", ErrMalformed, x)
	}
	return packet.NodeID(x), nil
}
