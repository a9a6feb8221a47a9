package drone

import (
	"math"
	"testing"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/peerlink"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/controller"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	peerlinkpkg "github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ID:       1,
		PDR:      0.5,
		Commands: make(chan controller.Command),
		Packets:  make(chan *packet.Packet),
		Events:   make(eventSink),
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	c := validConfig()
	c.SetDefaults()

	assert.Equal(t, DefaultDrainTimeout, c.DrainTimeout)
	assert.NotNil(t, c.Logger)
	assert.NotNil(t, c.Rand)
	require.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"negative pdr", func(c *Config) { c.PDR = -0.1 }, ErrInvalidDropRate},
		{"pdr above one", func(c *Config) { c.PDR = 1.01 }, ErrInvalidDropRate},
		{"nan pdr", func(c *Config) { c.PDR = math.NaN() }, ErrInvalidDropRate},
		{"no commands", func(c *Config) { c.Commands = nil }, ErrMissingCommands},
		{"no packets", func(c *Config) { c.Packets = nil }, ErrMissingPackets},
		{"no events", func(c *Config) { c.Events = nil }, ErrMissingEvents},
		{"self neighbor", func(c *Config) {
			inbox := peerlink.NewQueue[*packet.Packet]()
			t.Cleanup(inbox.Close)
			c.Neighbors = map[packet.NodeID]peerlinkpkg.Link{1: peerlink.NewChannelLink(1, inbox)}
		}, ErrSelfNeighbor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestNewNode_InvalidConfig(t *testing.T) {
	_, err := NewNode(nil)
	assert.Error(t, err)

	c := validConfig()
	c.PDR = 3
	_, err = NewNode(c)
	assert.ErrorIs(t, err, ErrInvalidDropRate)
}

func TestValidateDropRate_Bounds(t *testing.T) {
	assert.NoError(t, ValidateDropRate(0))
	assert.NoError(t, ValidateDropRate(1))
	assert.Error(t, ValidateDropRate(math.Inf(1)))
}
