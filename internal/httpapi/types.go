package httpapi

import "time"

// Request/Response types for the HTTP API

// AuthRequest represents a login request
type AuthRequest struct {
	OperatorID string `json:"operatorId"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token      string    `json:"token"`
	OperatorID string    `json:"operatorId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// NodeStats mirrors the counters of a drone
type NodeStats struct {
	Received   uint64 `json:"received"`
	Forwarded  uint64 `json:"forwarded"`
	Dropped    uint64 `json:"dropped"`
	NacksSent  uint64 `json:"nacksSent"`
	Shortcuts  uint64 `json:"shortcuts"`
	Floods     uint64 `json:"floods"`
	SendErrors uint64 `json:"sendErrors"`
}

// NodeResponse describes one node of the network
type NodeResponse struct {
	ID        uint8      `json:"id"`
	Type      string     `json:"type"`
	Neighbors []int      `json:"neighbors"`
	PDR       *float64   `json:"pdr,omitempty"`
	State     string     `json:"state,omitempty"`
	Stats     *NodeStats `json:"stats,omitempty"`
}

// NodesResponse lists every node
type NodesResponse struct {
	Nodes []NodeResponse `json:"nodes"`
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
	Packet     string    `json:"packet"` // base64 wire encoding
	Timestamp  time.Time `json:"timestamp"`
}

// NodeEventsResponse represents a page of journaled events of one node
type NodeEventsResponse struct {
	NodeID      uint8          `json:"nodeId"`
	Events      []EventMessage `json:"events"`
	StartOffset int64          `json:"startOffset"`
	Count       int            `json:"count"`
}

// MessageRequest asks for a message to be fragmented and sent.
// Either Route is given, or From and To and the route is discovered.
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
	Packet string `json:"packet"` // base64 wire encoding
}

// PacketResponse acknowledges an injected packet
type PacketResponse struct {
	Accepted   bool   `json:"accepted"`
	PacketType string `json:"packetType"`
}

// DiscoverRequest starts a flood from a client or server
type DiscoverRequest struct {
	From   uint8 `json:"from"`
	WaitMs int   `json:"waitMs,omitempty"`
}

// PathHopResponse is one entry of a discovered path
type PathHopResponse struct {
	ID   uint8  `json:"id"`
	Type string `json:"type"`
}

// DiscoverResponse lists the discovered paths
type DiscoverResponse struct {
	From  uint8               `json:"from"`
	Paths [][]PathHopResponse `json:"paths"`
}

// DropRateRequest changes the drop rate of a drone
type DropRateRequest struct {
	PDR *float64 `json:"pdr"`
}

// LinkRequest names the two ends of a link
type LinkRequest struct {
	A uint8 `json:"a"`
	B uint8 `json:"b"`
}

// LinkResponse describes a link
type LinkResponse struct {
	A uint8 `json:"a"`
	B uint8 `json:"b"`
}

// LinksResponse lists every link
type LinksResponse struct {
	Links []LinkResponse `json:"links"`
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
