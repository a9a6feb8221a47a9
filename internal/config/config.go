// Package config loads the network topology and runtime settings of a
// simulation from a YAML, TOML or JSON file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/drone"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DRONEMESH_LOG_LEVEL=debug.
const EnvPrefix = "DRONEMESH"

var (
	// ErrEmptyTopology is returned when no node is configured
	ErrEmptyTopology = errors.New("topology has no nodes")
	// ErrDuplicateNodeID is returned when two nodes share an id
	ErrDuplicateNodeID = errors.New("duplicate node id")
	// ErrUnknownNode is returned when a connection references an unknown node
	ErrUnknownNode = errors.New("connection to unknown node")
	// ErrSelfLoop is returned when a node lists itself as a neighbor
	ErrSelfLoop = errors.New("node connected to itself")
	// ErrEndpointLink is returned when a client or server connects to a non-drone
	ErrEndpointLink = errors.New("clients and servers may only connect to drones")
	// ErrIsolatedEndpoint is returned for clients or servers without a drone
	ErrIsolatedEndpoint = errors.New("client or server has no drone")
	// ErrInvalidLogLevel is returned for unknown log levels
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidListenAddress is returned when the HTTP API is enabled without an address
	ErrInvalidListenAddress = errors.New("listen address cannot be empty")
)

// Config is the root configuration of a simulation.
type Config struct {
	// Drones, clients and servers use the network initializer layout:
	// [[drone]] id, pdr, connected_node_ids; [[client]] and [[server]] id, connected_drone_ids.
	Drones  []DroneConfig    `mapstructure:"drone"`
	Clients []EndpointConfig `mapstructure:"client"`
	Servers []EndpointConfig `mapstructure:"server"`

	// DrainTimeout is the crash drain window of every drone
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`

	// Seed makes drop simulation reproducible. Zero seeds randomly.
	Seed uint64 `mapstructure:"seed"`

	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Journal JournalConfig `mapstructure:"journal"`
}

// DroneConfig describes one drone.
type DroneConfig struct {
	ID               packet.NodeID   `mapstructure:"id"`
	PDR              float64         `mapstructure:"pdr"`
	ConnectedNodeIDs []packet.NodeID `mapstructure:"connected_node_ids"`
}

// EndpointConfig describes a client or a server.
type EndpointConfig struct {
	ID                packet.NodeID   `mapstructure:"id"`
	ConnectedDroneIDs []packet.NodeID `mapstructure:"connected_drone_ids"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// HTTPConfig controls the controller API.
type HTTPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	SecretKey string `mapstructure:"secret_key"`
	// NoAuth disables JWT checks. Development only.
	NoAuth bool `mapstructure:"no_auth"`
}

// JournalConfig controls the controller event journal.
type JournalConfig struct {
	// MaxRecordsPerTopic bounds the events kept per node. Zero keeps everything.
	MaxRecordsPerTopic int `mapstructure:"max_records_per_topic"`
}

// Default returns a Config with no topology and sensible runtime defaults.
func Default() *Config {
	return &Config{
		DrainTimeout: drone.DefaultDrainTimeout,
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
		Journal: JournalConfig{
			MaxRecordsPerTopic: 10000,
		},
	}
}

// Load reads the configuration at path. With an empty path it honours
// DRONEMESH_CONFIG and then searches ./dronemesh.* and ./configs/dronemesh.*.
// The file format follows the extension.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Seed defaults so env-only overrides work
	v.SetDefault("drain_timeout", cfg.DrainTimeout)
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("http.enabled", cfg.HTTP.Enabled)
	v.SetDefault("http.listen", cfg.HTTP.Listen)
	v.SetDefault("http.secret_key", cfg.HTTP.SecretKey)
	v.SetDefault("http.no_auth", cfg.HTTP.NoAuth)
	v.SetDefault("journal.max_records_per_topic", cfg.Journal.MaxRecordsPerTopic)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dronemesh")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dronemesh"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults normalizes optional fields.
func (c *Config) SetDefaults() {
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = drone.DefaultDrainTimeout
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
}

// Validate checks the topology and runtime settings.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Listen) == "" {
		return ErrInvalidListenAddress
	}
	if c.Journal.MaxRecordsPerTopic < 0 {
		return fmt.Errorf("journal.max_records_per_topic cannot be negative: %d", c.Journal.MaxRecordsPerTopic)
	}
	return c.validateTopology()
}

func (c *Config) validateTopology() error {
	types := make(map[packet.NodeID]packet.NodeType)
	register := func(id packet.NodeID, t packet.NodeType) error {
		if prev, ok := types[id]; ok {
			return fmt.Errorf("%w: %d (%s and %s)", ErrDuplicateNodeID, id, prev, t)
		}
		types[id] = t
		return nil
	}

	for _, d := range c.Drones {
		if err := register(d.ID, packet.Drone); err != nil {
			return err
		}
	}
	for _, e := range c.Clients {
		if err := register(e.ID, packet.Client); err != nil {
			return err
		}
	}
	for _, e := range c.Servers {
		if err := register(e.ID, packet.Server); err != nil {
			return err
		}
	}
	if len(types) == 0 {
		return ErrEmptyTopology
	}

	for _, d := range c.Drones {
		if err := drone.ValidateDropRate(d.PDR); err != nil {
			return fmt.Errorf("drone %d: %w", d.ID, err)
		}
		for _, n := range d.ConnectedNodeIDs {
			if n == d.ID {
				return fmt.Errorf("%w: drone %d", ErrSelfLoop, d.ID)
			}
			if _, ok := types[n]; !ok {
				return fmt.Errorf("%w: drone %d lists %d", ErrUnknownNode, d.ID, n)
			}
		}
	}

	endpoints := slices.Concat(c.Clients, c.Servers)
	for _, e := range endpoints {
		if len(e.ConnectedDroneIDs) == 0 {
			return fmt.Errorf("%w: %d", ErrIsolatedEndpoint, e.ID)
		}
		for _, n := range e.ConnectedDroneIDs {
			t, ok := types[n]
			if !ok {
				return fmt.Errorf("%w: %s %d lists %d", ErrUnknownNode, types[e.ID], e.ID, n)
			}
			if t != packet.Drone {
				return fmt.Errorf("%w: %s %d lists %s %d", ErrEndpointLink, types[e.ID], e.ID, t, n)
			}
		}
	}

	return nil
}

// NodeType reports the type of node id.
func (c *Config) NodeType(id packet.NodeID) (packet.NodeType, bool) {
	for _, d := range c.Drones {
		if d.ID == id {
			return packet.Drone, true
		}
	}
	for _, e := range c.Clients {
		if e.ID == id {
			return packet.Client, true
		}
	}
	for _, e := range c.Servers {
		if e.ID == id {
			return packet.Server, true
		}
	}
	return 0, false
}

// Edge is an undirected link between two nodes, with A < B.
type Edge struct {
	A, B packet.NodeID
}

func newEdge(x, y packet.NodeID) Edge {
	if x > y {
		x, y = y, x
	}
	return Edge{A: x, B: y}
}

// Edges returns every link of the topology exactly once, sorted.
// A connection listed on either side is a link.
func (c *Config) Edges() []Edge {
	set := make(map[Edge]struct{})
	for _, d := range c.Drones {
		for _, n := range d.ConnectedNodeIDs {
			set[newEdge(d.ID, n)] = struct{}{}
		}
	}
	for _, e := range slices.Concat(c.Clients, c.Servers) {
		for _, n := range e.ConnectedDroneIDs {
			set[newEdge(e.ID, n)] = struct{}{}
		}
	}

	edges := make([]Edge, 0, len(set))
	for e := range set {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(x, y Edge) int {
		if x.A != y.A {
			return int(x.A) - int(y.A)
		}
		return int(x.B) - int(y.B)
	})
	return edges
}
