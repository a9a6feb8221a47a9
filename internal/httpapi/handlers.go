package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/discovery"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/drone"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/simulation"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/wire"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/peerlink"
	"go.uber.org/zap"
)

const (
	defaultEventLimit   = 100
	maxEventLimit       = 1000
	defaultDiscoverWait = 500 * time.Millisecond
	maxDiscoverWait     = 10 * time.Second
	maxMessageBytes     = 64 << 10
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	sim          Simulation
	jwtAuth      *JWTAuth
	logger       *zap.Logger
	pollInterval time.Duration
	keepAlive    time.Duration
}

// NewHandlers creates a new handlers instance. config must have its defaults set.
func NewHandlers(sim Simulation, jwtAuth *JWTAuth, config Config) *Handlers {
	return &Handlers{
		sim:          sim,
		jwtAuth:      jwtAuth,
		logger:       config.Logger,
		pollInterval: config.PollInterval,
		keepAlive:    config.KeepAlive,
	}
}

// Auth endpoints

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validateAuthRequest(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// No credential store: the operator named "admin" gets admin rights
	isAdmin := req.OperatorID == "admin"

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.OperatorID, isAdmin)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AuthResponse{
		Token:      token,
		OperatorID: req.OperatorID,
		ExpiresAt:  expiresAt,
	}, http.StatusOK)
}

// Network endpoints

// ListNodes handles GET /api/v1/nodes
func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.sim.Nodes()
	resp := NodesResponse{Nodes: make([]NodeResponse, 0, len(nodes))}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, toNodeResponse(n))
	}
	writeJSON(w, resp, http.StatusOK)
}

// ListLinks handles GET /api/v1/links
func (h *Handlers) ListLinks(w http.ResponseWriter, r *http.Request) {
	edges := h.sim.Edges()
	resp := LinksResponse{Links: make([]LinkResponse, 0, len(edges))}
	for _, e := range edges {
		resp.Links = append(resp.Links, LinkResponse{A: uint8(e.A), B: uint8(e.B)})
	}
	writeJSON(w, resp, http.StatusOK)
}

// ReadNodeEvents handles GET /api/v1/nodes/{id}/events
func (h *Handlers) ReadNodeEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r.PathValue("id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	offset, limit, err := h.parsePage(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.sim.NodeEvents(r.Context(), id, offset, limit)
	if err != nil {
		h.writeSimError(w, err)
		return
	}

	resp := NodeEventsResponse{
		NodeID:      uint8(id),
		Events:      make([]EventMessage, 0, len(entries)),
		StartOffset: offset,
	}
	for _, e := range entries {
		msg, err := toEventMessage(e)
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Events = append(resp.Events, msg)
	}
	resp.Count = len(resp.Events)

	writeJSON(w, resp, http.StatusOK)
}

// SendMessage handles POST /api/v1/messages
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Message) > maxMessageBytes {
		writeError(w, fmt.Sprintf("message exceeds %d bytes", maxMessageBytes), http.StatusRequestEntityTooLarge)
		return
	}

	route := make([]packet.NodeID, len(req.Route))
	for i, id := range req.Route {
		if id < 0 || id > math.MaxUint8 {
			writeError(w, fmt.Sprintf("node id %d out of range", id), http.StatusBadRequest)
			return
		}
		route[i] = packet.NodeID(id)
	}

	if len(route) == 0 {
		if req.From == req.To {
			writeError(w, "either route or distinct from and to are required", http.StatusBadRequest)
			return
		}
		found, err := h.sim.Route(r.Context(), packet.NodeID(req.From), packet.NodeID(req.To), discoverWait(req.WaitMs))
		if err != nil {
			h.writeSimError(w, err)
			return
		}
		route = found
	}

	session, err := h.sim.SendMessage(route, []byte(req.Message))
	if err != nil {
		h.writeSimError(w, err)
		return
	}

	resp := MessageResponse{
		SessionID: session,
		Route:     make([]int, len(route)),
		Fragments: len(packet.Split([]byte(req.Message))),
	}
	for i, id := range route {
		resp.Route[i] = int(id)
	}
	writeJSON(w, resp, http.StatusAccepted)
}

// SendPacket handles POST /api/v1/packets
func (h *Handlers) SendPacket(w http.ResponseWriter, r *http.Request) {
	var req PacketRequest
	if !h.decode(w, r, &req) {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Packet)
	if err != nil {
		writeError(w, "packet must be base64 encoded", http.StatusBadRequest)
		return
	}
	p, err := wire.Unmarshal(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sim.SendPacket(packet.NodeID(req.From), p); err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, PacketResponse{Accepted: true, PacketType: p.Type().String()}, http.StatusAccepted)
}

// Discover handles POST /api/v1/discover
func (h *Handlers) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if !h.decode(w, r, &req) {
		return
	}

	traces, err := h.sim.Discover(r.Context(), packet.NodeID(req.From), discoverWait(req.WaitMs))
	if err != nil && !errors.Is(err, context.Canceled) {
		h.writeSimError(w, err)
		return
	}

	resp := DiscoverResponse{From: req.From, Paths: make([][]PathHopResponse, 0, len(traces))}
	for _, t := range traces {
		path := make([]PathHopResponse, len(t))
		for i, hop := range t {
			path[i] = PathHopResponse{ID: uint8(hop.ID), Type: hop.Type.String()}
		}
		resp.Paths = append(resp.Paths, path)
	}
	writeJSON(w, resp, http.StatusOK)
}

// Admin endpoints

// CrashDrone handles POST /api/v1/admin/drones/{id}/crash
func (h *Handlers) CrashDrone(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r.PathValue("id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sim.Crash(id); err != nil {
		h.writeSimError(w, err)
		return
	}
	h.logger.Info("drone crashed over api",
		zap.Uint8("drone", uint8(id)),
		zap.String("operator", GetOperatorID(r)))
	w.WriteHeader(http.StatusAccepted)
}

// SetDropRate handles PUT /api/v1/admin/drones/{id}/pdr
func (h *Handlers) SetDropRate(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r.PathValue("id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req DropRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PDR == nil {
		writeError(w, "pdr is required", http.StatusBadRequest)
		return
	}

	if err := h.sim.SetPacketDropRate(id, *req.PDR); err != nil {
		h.writeSimError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddLink handles POST /api/v1/admin/links
func (h *Handlers) AddLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.sim.AddLink(packet.NodeID(req.A), packet.NodeID(req.B)); err != nil {
		h.writeSimError(w, err)
		return
	}
	writeJSON(w, LinkResponse(req), http.StatusCreated)
}

// RemoveLink handles DELETE /api/v1/admin/links/{a}/{b}
func (h *Handlers) RemoveLink(w http.ResponseWriter, r *http.Request) {
	a, err := parseNodeID(r.PathValue("a"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := parseNodeID(r.PathValue("b"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sim.RemoveLink(a, b); err != nil {
		h.writeSimError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sim.Journal().GetStatistics(r.Context())
	if err != nil {
		h.writeSimError(w, err)
		return
	}
	health, err := h.sim.Health(r.Context())
	if err != nil {
		h.writeSimError(w, err)
		return
	}

	writeJSON(w, AdminStatsResponse{
		TotalEvents: stats.TotalEvents,
		TopicCounts: stats.TopicCounts,
		TopicCount:  stats.TopicCount,
		Shortcuts:   health.Shortcuts,
	}, http.StatusOK)
}

// Health endpoint

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.sim.Health(r.Context())
	if err != nil {
		writeJSON(w, HealthResponse{Message: err.Error()}, http.StatusServiceUnavailable)
		return
	}

	resp := HealthResponse{
		Healthy:       health.Started && !health.Closed && health.Connected,
		Started:       health.Started,
		Connected:     health.Connected,
		Drones:        health.Drones,
		CrashedDrones: health.CrashedDrones,
		Endpoints:     health.Endpoints,
		Links:         health.Links,
		JournalEvents: health.JournalEvents,
	}

	statusCode := http.StatusOK
	switch {
	case !health.Started:
		resp.Message = "simulation not started"
	case health.Closed:
		resp.Message = "simulation closed"
	case !health.Connected:
		resp.Message = "network is partitioned"
	default:
		resp.Message = "ok"
	}
	if !resp.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// Helper methods

// decode validates the content type and decodes the JSON body into v.
// It writes the error response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := h.validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// validateJSON validates that the request has a JSON content type
func (h *Handlers) validateJSON(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errors.New("Content-Type must be application/json")
	}
	return nil
}

// validateAuthRequest validates authentication request fields
func (h *Handlers) validateAuthRequest(req *AuthRequest) error {
	if req.OperatorID == "" {
		return errors.New("operatorId is required")
	}
	if len(req.OperatorID) < 2 {
		return errors.New("operatorId must be at least 2 characters")
	}
	return nil
}

// parsePage reads the offset and limit query parameters
func (h *Handlers) parsePage(r *http.Request) (int64, int, error) {
	q := r.URL.Query()

	var offset int64
	if s := q.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", s)
		}
		offset = v
	}

	limit := defaultEventLimit
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", s)
		}
		limit = min(v, maxEventLimit)
	}
	return offset, limit, nil
}

// writeSimError maps controller errors to status codes
func (h *Handlers) writeSimError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, simulation.ErrUnknownNode):
		status = http.StatusNotFound
	case errors.Is(err, simulation.ErrNotDrone),
		errors.Is(err, simulation.ErrNotEndpoint),
		errors.Is(err, simulation.ErrInvalidLink),
		errors.Is(err, simulation.ErrInvalidRoute),
		errors.Is(err, drone.ErrInvalidDropRate),
		errors.Is(err, peerlink.ErrUnreachable):
		status = http.StatusBadRequest
	case errors.Is(err, discovery.ErrNoRoute):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, simulation.ErrCrashed),
		errors.Is(err, simulation.ErrWouldPartition):
		status = http.StatusConflict
	case errors.Is(err, simulation.ErrClosed),
		errors.Is(err, simulation.ErrNotStarted):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, err.Error(), status)
}

func parseNodeID(s string) (packet.NodeID, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", s)
	}
	return packet.NodeID(v), nil
}

func discoverWait(ms int) time.Duration {
	if ms <= 0 {
		return defaultDiscoverWait
	}
	return min(time.Duration(ms)*time.Millisecond, maxDiscoverWait)
}

func toNodeResponse(n simulation.NodeInfo) NodeResponse {
	resp := NodeResponse{
		ID:        uint8(n.ID),
		Type:      n.Type,
		Neighbors: make([]int, len(n.Neighbors)),
		PDR:       n.PDR,
		State:     n.State,
	}
	for i, id := range n.Neighbors {
		resp.Neighbors[i] = int(id)
	}
	if n.Stats != nil {
		resp.Stats = &NodeStats{
			Received:   n.Stats.Received,
			Forwarded:  n.Stats.Forwarded,
			Dropped:    n.Stats.Dropped,
			NacksSent:  n.Stats.NacksSent,
			Shortcuts:  n.Stats.Shortcuts,
			Floods:     n.Stats.Floods,
			SendErrors: n.Stats.SendErrors,
		}
	}
	return resp
}

func toEventMessage(e simulation.JournalEntry) (EventMessage, error) {
	p := e.Event.Packet
	raw, err := wire.Marshal(p)
	if err != nil {
		return EventMessage{}, err
	}

	hops := make([]int, len(p.RoutingHeader.Hops))
	for i, id := range p.RoutingHeader.Hops {
		hops[i] = int(id)
	}
	return EventMessage{
		Offset:     e.Offset,
		Kind:       e.Event.Kind.String(),
		NodeID:     uint8(e.Event.NodeID),
		PacketType: p.Type().String(),
		SessionID:  p.SessionID,
		Hops:       hops,
		HopIndex:   p.RoutingHeader.HopIndex,
		Packet:     base64.StdEncoding.EncodeToString(raw),
		Timestamp:  e.Timestamp,
	}, nil
}
