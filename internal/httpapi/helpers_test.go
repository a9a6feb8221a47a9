package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/simulation"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testSetup is an API server in front of client 1 - drone 2 - drone 3 - server 4
type testSetup struct {
	Sim    *simulation.Controller
	Server *Server
	Auth   *JWTAuth
}

func newTestSetup(t *testing.T, noAuth bool) *testSetup {
	t.Helper()

	cfg := config.Default()
	cfg.DrainTimeout = 50 * time.Millisecond
	cfg.Drones = []config.DroneConfig{
		{ID: 2, ConnectedNodeIDs: []packet.NodeID{1, 3}},
		{ID: 3, ConnectedNodeIDs: []packet.NodeID{2, 4}},
	}
	cfg.Clients = []config.EndpointConfig{{ID: 1, ConnectedDroneIDs: []packet.NodeID{2}}}
	cfg.Servers = []config.EndpointConfig{{ID: 4, ConnectedDroneIDs: []packet.NodeID{3}}}

	logger := zaptest.NewLogger(t)
	sim, err := simulation.New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sim.Close(ctx)
	})

	server := NewServer(sim, Config{
		SecretKey:    "test-secret-key",
		NoAuth:       noAuth,
		PollInterval: 10 * time.Millisecond,
		Logger:       logger,
	})
	return &testSetup{Sim: sim, Server: server, Auth: server.jwtAuth}
}

func (s *testSetup) token(t *testing.T, operator string, isAdmin bool) string {
	t.Helper()
	token, _, err := s.Auth.GenerateToken(operator, isAdmin)
	require.NoError(t, err)
	return token
}

// do runs one request through the full middleware chain
func (s *testSetup) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}
