package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/wire"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestLogin(t *testing.T) {
	s := newTestSetup(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", AuthRequest{OperatorID: "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[AuthResponse](t, w)
	assert.Equal(t, "admin", resp.OperatorID)

	claims, err := s.Auth.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", AuthRequest{OperatorID: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"operatorId":"op"}`))
	rec := httptest.NewRecorder()
	s.Server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "content type is required")
}

func TestHealth(t *testing.T) {
	s := newTestSetup(t, false)

	w := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.True(t, resp.Healthy)
	assert.Equal(t, 2, resp.Drones)
	assert.Equal(t, 2, resp.Endpoints)
	assert.Equal(t, 3, resp.Links)

	require.NoError(t, s.Sim.Close(context.Background()))
	w = s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestSetup(t, false)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/nodes", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/nodes", "garbage", nil).Code)

	w := s.do(t, http.MethodGet, "/api/v1/nodes", s.token(t, "op", false), nil)
	require.Equal(t, http.StatusOK, w.Code)
	nodes := decodeBody[NodesResponse](t, w).Nodes
	require.Len(t, nodes, 4)
	assert.Equal(t, "client", strings.ToLower(nodes[0].Type))
	assert.Equal(t, []int{1, 3}, nodes[1].Neighbors)
	require.NotNil(t, nodes[1].PDR)
	assert.Equal(t, "running", nodes[1].State)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats", s.token(t, "op", false), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/admin/stats", s.token(t, "admin", true), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoAuthMode(t *testing.T) {
	s := newTestSetup(t, true)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/nodes", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/admin/stats", "", nil).Code,
		"admin endpoints always need a token")
}

func TestSendMessage(t *testing.T) {
	s := newTestSetup(t, true)

	w := s.do(t, http.MethodPost, "/api/v1/messages", "", MessageRequest{
		Route:   []int{1, 2, 3, 4},
		Message: "Hello, this is a test message!",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decodeBody[MessageResponse](t, w)
	assert.Equal(t, 1, resp.Fragments)

	server, err := s.Sim.Endpoint(4)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msg, ok := server.Message(resp.SessionID)
		return ok && string(msg) == "Hello, this is a test message!"
	}, waitFor, tick)

	// Route discovered by flooding
	w = s.do(t, http.MethodPost, "/api/v1/messages", "", MessageRequest{From: 1, To: 4, Message: "found", WaitMs: 200})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, []int{1, 2, 3, 4}, decodeBody[MessageResponse](t, w).Route)

	w = s.do(t, http.MethodPost, "/api/v1/messages", "", MessageRequest{Route: []int{2, 3}, Message: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/messages", "", MessageRequest{Message: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendPacket(t *testing.T) {
	s := newTestSetup(t, true)

	// Drone 3 cannot reach 9, so the controller delivers the ack
	ack := packet.NewAck(packet.NewHeader(1, 4, 3, 9, 1), 5, &packet.Ack{})
	raw, err := wire.Marshal(ack)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/packets", "", PacketRequest{From: 4, Packet: base64.StdEncoding.EncodeToString(raw)})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "ack", strings.ToLower(decodeBody[PacketResponse](t, w).PacketType))

	client, err := s.Sim.Endpoint(1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(client.Received()) == 1 }, waitFor, tick)

	w = s.do(t, http.MethodPost, "/api/v1/packets", "", PacketRequest{From: 4, Packet: "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscover(t *testing.T) {
	s := newTestSetup(t, true)

	w := s.do(t, http.MethodPost, "/api/v1/discover", "", DiscoverRequest{From: 1, WaitMs: 200})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[DiscoverResponse](t, w)
	require.Len(t, resp.Paths, 1)
	require.Len(t, resp.Paths[0], 4)
	assert.Equal(t, uint8(4), resp.Paths[0][3].ID)

	w = s.do(t, http.MethodPost, "/api/v1/discover", "", DiscoverRequest{From: 42})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCommands(t *testing.T) {
	s := newTestSetup(t, false)
	admin := s.token(t, "admin", true)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"crash would partition", http.MethodPost, "/api/v1/admin/drones/2/crash", nil, http.StatusConflict},
		{"crash unknown", http.MethodPost, "/api/v1/admin/drones/99/crash", nil, http.StatusNotFound},
		{"crash endpoint", http.MethodPost, "/api/v1/admin/drones/1/crash", nil, http.StatusBadRequest},
		{"crash bad id", http.MethodPost, "/api/v1/admin/drones/drone/crash", nil, http.StatusBadRequest},
		{"set pdr", http.MethodPut, "/api/v1/admin/drones/2/pdr", DropRateRequest{PDR: ptr(0.5)}, http.StatusNoContent},
		{"pdr out of range", http.MethodPut, "/api/v1/admin/drones/2/pdr", DropRateRequest{PDR: ptr(1.5)}, http.StatusBadRequest},
		{"pdr missing", http.MethodPut, "/api/v1/admin/drones/2/pdr", DropRateRequest{}, http.StatusBadRequest},
		{"add link", http.MethodPost, "/api/v1/admin/links", LinkRequest{A: 1, B: 3}, http.StatusCreated},
		{"add endpoint link", http.MethodPost, "/api/v1/admin/links", LinkRequest{A: 1, B: 4}, http.StatusBadRequest},
		{"remove link", http.MethodDelete, "/api/v1/admin/links/1/2", nil, http.StatusNoContent},
		{"remove would partition", http.MethodDelete, "/api/v1/admin/links/2/3", nil, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, admin, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := s.do(t, http.MethodGet, "/api/v1/links", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []LinkResponse{{A: 1, B: 3}, {A: 2, B: 3}, {A: 3, B: 4}}, decodeBody[LinksResponse](t, w).Links)
}

func TestReadNodeEvents(t *testing.T) {
	s := newTestSetup(t, true)

	_, err := s.Sim.SendMessage([]packet.NodeID{1, 2, 3, 4}, []byte("journal me"))
	require.NoError(t, err)

	// Drone 2 forwards the fragment and the ack
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/v1/nodes/2/events", "", nil)
		return w.Code == http.StatusOK && decodeBody[NodeEventsResponse](t, w).Count == 2
	}, waitFor, tick)

	w := s.do(t, http.MethodGet, "/api/v1/nodes/2/events?offset=1&limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[NodeEventsResponse](t, w)
	require.Len(t, resp.Events, 1)
	ev := resp.Events[0]
	assert.Equal(t, int64(1), ev.Offset)
	assert.Equal(t, "packet_sent", ev.Kind)
	assert.Equal(t, []int{4, 3, 2, 1}, ev.Hops)
	assert.Equal(t, 3, ev.HopIndex)

	raw, err := base64.StdEncoding.DecodeString(ev.Packet)
	require.NoError(t, err)
	p, err := wire.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, packet.TypeAck, p.Type())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/nodes/2/events?offset=-1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/nodes/77/events", "", nil).Code)
}

func TestStreamEvents(t *testing.T) {
	s := newTestSetup(t, true)

	_, err := s.Sim.SendMessage([]packet.NodeID{1, 2, 3, 4}, []byte("stream me"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream?node=3", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	s.Server.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, ": streaming events of node 3")
	assert.Contains(t, body, "id: 3-0\nevent: packet_sent\n")
	assert.Contains(t, body, "id: 3-1\nevent: packet_sent\n")

	w = s.do(t, http.MethodGet, "/api/v1/events/stream?node=50", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoot(t *testing.T) {
	s := newTestSetup(t, false)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/nowhere", "", nil).Code)

	w := s.do(t, http.MethodOptions, "/api/v1/nodes", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func ptr[T any](v T) *T { return &v }
