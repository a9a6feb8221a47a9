package drone

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
	"go.uber.org/zap"
)

// DefaultDrainTimeout is how long a crashing drone waits for a packet before
// it considers its inbound queue drained.
const DefaultDrainTimeout = 5 * time.Second

var (
	// ErrInvalidDropRate is returned for drop rates outside [0, 1]
	ErrInvalidDropRate = errors.New("packet drop rate must be within [0, 1]")
	// ErrMissingCommands is returned when no command channel is configured
	ErrMissingCommands = errors.New("command channel cannot be nil")
	// ErrMissingPackets is returned when no packet channel is configured
	ErrMissingPackets = errors.New("packet channel cannot be nil")
	// ErrMissingEvents is returned when no event sink is configured
	ErrMissingEvents = errors.New("event sink cannot be nil")
	// ErrSelfNeighbor is returned when a drone lists itself as a neighbor
	ErrSelfNeighbor = errors.New("drone cannot be its own neighbor")
)

// Config is consumed once by NewNode.
type Config struct {
	// ID identifies this drone in the network
	ID packet.NodeID

	// PDR is the initial probability of dropping a Fragment, in [0, 1]
	PDR float64

	// Neighbors is the initial neighbor table. The map is copied.
	Neighbors map[packet.NodeID]peerlink.Link

	// Commands delivers controller commands. Commands have strict priority over packets.
	Commands <-chan controller.Command

	// Packets delivers inbound packets from any neighbor
	Packets <-chan *packet.Packet

	// Events receives everything the drone reports. Usually shared by all drones.
	Events controller.EventSink

	// DrainTimeout bounds the wait for the next packet while crashing
	DrainTimeout time.Duration

	// Logger defaults to a no-op logger
	Logger *zap.Logger

	// Rand drives the drop simulation. Inject a seeded source for reproducible runs.
	Rand *rand.Rand
}

// SetDefaults fills in optional fields.
func (c *Config) SetDefaults() {
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if err := ValidateDropRate(c.PDR); err != nil {
		return err
	}
	if c.Commands == nil {
		return ErrMissingCommands
	}
	if c.Packets == nil {
		return ErrMissingPackets
	}
	if c.Events == nil {
		return ErrMissingEvents
	}
	if _, ok := c.Neighbors[c.ID]; ok {
		return fmt.Errorf("%w: %d", ErrSelfNeighbor, c.ID)
	}
	return nil
}

// ValidateDropRate rejects NaN and values outside [0, 1].
func ValidateDropRate(pdr float64) error {
	if math.IsNaN(pdr) || pdr < 0 || pdr > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidDropRate, pdr)
	}
	return nil
}
