package packet

import "fmt"

// NackType enumerates the reasons a packet can be negatively acknowledged.
type NackType int

const (
	NackErrorInRouting NackType = iota
	NackDestinationIsDrone
	NackDropped
	NackUnexpectedRecipient
)

func (t NackType) String() string {
	switch t {
	case NackErrorInRouting:
		return "error_in_routing"
	case NackDestinationIsDrone:
		return "destination_is_drone"
	case NackDropped:
		return "dropped"
	case NackUnexpectedRecipient:
		return "unexpected_recipient"
	default:
		return "unknown"
	}
}

// NackKind is a NackType plus the node it refers to. Node is only meaningful
// for ErrorInRouting and UnexpectedRecipient.
type NackKind struct {
	Type NackType
	Node NodeID
}

// ErrorInRouting reports that next is not a neighbor of the reporting node.
func ErrorInRouting(next NodeID) NackKind {
	return NackKind{Type: NackErrorInRouting, Node: next}
}

// DestinationIsDrone reports a path that ends on a drone.
func DestinationIsDrone() NackKind {
	return NackKind{Type: NackDestinationIsDrone}
}

// Dropped reports a simulated loss.
func Dropped() NackKind {
	return NackKind{Type: NackDropped}
}

// UnexpectedRecipient reports that self received a packet addressed to another node.
func UnexpectedRecipient(self NodeID) NackKind {
	return NackKind{Type: NackUnexpectedRecipient, Node: self}
}

func (k NackKind) String() string {
	switch k.Type {
	case NackErrorInRouting, NackUnexpectedRecipient:
		return fmt.Sprintf("%s(%d)", k.Type, k.Node)
	default:
		return k.Type.String()
	}
}
