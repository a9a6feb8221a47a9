package controller

import (
	"fmt"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
)

// Command is a control message sent to a single drone.
// The set of commands is closed.
type Command interface {
	fmt.Stringer
	isCommand()
}

// AddSender connects the drone to neighbor ID through Link.
// Adding an existing neighbor replaces its link.
type AddSender struct {
	ID   packet.NodeID
	Link peerlink.Link
}

// RemoveSender disconnects the drone from neighbor ID.
type RemoveSender struct {
	ID packet.NodeID
}

// SetPacketDropRate replaces the probability of dropping a Fragment.
type SetPacketDropRate struct {
	Rate float64
}

// Crash makes the drone drain its in-flight packets and stop.
type Crash struct{}

func (AddSender) isCommand()         {}
func (RemoveSender) isCommand()      {}
func (SetPacketDropRate) isCommand() {}
func (Crash) isCommand()             {}

func (c AddSender) String() string         { return fmt.Sprintf("add_sender(%d)", c.ID) }
func (c RemoveSender) String() string      { return fmt.Sprintf("remove_sender(%d)", c.ID) }
func (c SetPacketDropRate) String() string { return fmt.Sprintf("set_packet_drop_rate(%g)", c.Rate) }
func (Crash) String() string               { return "crash" }
