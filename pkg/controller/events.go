package controller

import (
	"fmt"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
)

// EventKind identifies what a drone reports.
type EventKind int

const (
	// PacketSent reports a packet handed to a neighbor link.
	PacketSent EventKind = iota
	// PacketDropped reports a Fragment lost to the simulated drop rate.
	PacketDropped
	// ControllerShortcut hands an unroutable Ack, Nack or FloodResponse to the controller.
	ControllerShortcut
)

var eventKindNames = map[EventKind]string{
	PacketSent:         "packet_sent",
	PacketDropped:      "packet_dropped",
	ControllerShortcut: "controller_shortcut",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event_kind(%d)", int(k))
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for k, name := range eventKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is a single observation emitted by a drone.
type Event struct {
	Kind EventKind

	// NodeID is the drone that emitted the event
	NodeID packet.NodeID

	// Packet is owned by the event; the drone never touches it again.
	Packet *packet.Packet
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%d %s", e.Kind, e.NodeID, e.Packet)
}

// EventSink accepts events from drones. Push must not block on the consumer.
type EventSink interface {
	Push(Event) error
}
