package httpclient

import "time"

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the controller API (e.g., "http://localhost:8080")
	ServerURL string

	// OperatorID identifies the operator logging in
	OperatorID string

	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxRetries for requests that fail before reaching the server
	MaxRetries int
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token      string    `json:"token"`
	OperatorID string    `json:"operatorId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// NodeStats holds the counters of a drone
type NodeStats struct {
	Received   uint64 `json:"received"`
	Forwarded  uint64 `json:"forwarded"`
	Dropped    uint64 `json:"dropped"`
	NacksSent  uint64 `json:"nacksSent"`
	Shortcuts  uint64 `json:"shortcuts"`
	Floods     uint64 `json:"floods"`
	SendErrors uint64 `json:"sendErrors"`
}

// Node describes one node of the network
type Node struct {
	ID        uint8      `json:"id"`
	Type      string     `json:"type"`
	Neighbors []int      `json:"neighbors"`
	PDR       *float64   `json:"pdr,omitempty"`
	State     string     `json:"state,omitempty"`
	Stats     *NodeStats `json:"stats,omitempty"`
}

// NodesResponse lists every node
type NodesResponse struct {
	Nodes []Node `json:"nodes"`
}

// Link is an undirected link between two nodes
type Link struct {
	A uint8 `json:"a"`
	B uint8 `json:"b"`
}

// LinksResponse lists every link
type LinksResponse struct {
	Links []Link `json:"links"`
}

// EventMessage is one journaled drone event
type EventMessage struct {
	Offset     int64     `json:"offset"`
	Kind       string    `json:"kind"`
	NodeID     uint8     `json:"nodeId"`
	PacketType string    `json:"packetType"`
	SessionID  uint64    `json:"sessionId"`
	Hops       []int     `json:"hops"`
	HopIndex   int       `json:"hopIndex"`
	Packet     string    `json:"packet"`
	Timestamp  time.Time `json:"timestamp"`
}

// NodeEventsResponse is a page of journaled events of one node
type NodeEventsResponse struct {
	NodeID      uint8          `json:"nodeId"`
	Events      []EventMessage `json:"events"`
	StartOffset int64          `json:"startOffset"`
	Count       int            `json:"count"`
}

// MessageRequest asks for a message to be fragmented and sent
type MessageRequest struct {
	Route   []int   `json:"route,omitempty"`
	From    uint8   `json:"from,omitempty"`
	To      uint8   `json:"to,omitempty"`
	Message string  `json:"message"`
	WaitMs  int     `json:"waitMs,omitempty"`
}

// MessageResponse reports the session a message was sent under
type MessageResponse struct {
	SessionID uint64  `json:"sessionId"`
	Route     []int   `json:"route"`
	Fragments int     `json:"fragments"`
}

// PacketRequest injects a wire encoded packet at an endpoint
type PacketRequest struct {
	From   uint8  `json:"from"`
	Packet string `json:"packet"`
}

// PacketResponse acknowledges an injected packet
type PacketResponse struct {
	Accepted   bool   `json:"accepted"`
	PacketType string `json:"packetType"`
}

// DiscoverRequest starts a flood
type DiscoverRequest struct {
	From   uint8 `json:"from"`
	WaitMs int   `json:"waitMs,omitempty"`
}

// PathHop is one entry of a discovered path
type PathHop struct {
	ID   uint8  `json:"id"`
	Type string `json:"type"`
}

// DiscoverResponse lists the discovered paths
type DiscoverResponse struct {
	From  uint8       `json:"from"`
	Paths [][]PathHop `json:"paths"`
}

// AdminStatsResponse represents journal statistics
type AdminStatsResponse struct {
	TotalEvents int64            `json:"totalEvents"`
	TopicCounts map[string]int64 `json:"topicCounts"`
	TopicCount  int              `json:"topicCount"`
	Shortcuts   uint64           `json:"shortcuts"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy       bool   `json:"healthy"`
	Started       bool   `json:"started"`
	Connected     bool   `json:"connected"`
	Drones        int    `json:"drones"`
	CrashedDrones int    `json:"crashedDrones"`
	Endpoints     int    `json:"endpoints"`
	Links         int    `json:"links"`
	JournalEvents int64  `json:"journalEvents"`
	Message       string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
