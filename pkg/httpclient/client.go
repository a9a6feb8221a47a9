package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotAuthenticated is returned by calls that need a token before Authenticate
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Client provides HTTP client for the controller API
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	baseURL    *url.URL
}

// NewClient creates a new controller API client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.OperatorID == "" {
		return nil, fmt.Errorf("OperatorID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Authenticate logs in and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{
		"operatorId": c.config.OperatorID,
	}

	var authResp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", authReq, &authResp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = authResp.Token
	return nil
}

// GetHealth returns the health of the simulation. An unhealthy simulation
// is reported through the response, not as an error.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false)
	if err == nil {
		return &resp, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if jsonErr := json.Unmarshal(apiErr.Body, &resp); jsonErr == nil {
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("failed to get health status: %w", err)
}

// ListNodes returns every node of the network
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	var resp NodesResponse
	if err := c.authed(ctx, http.MethodGet, "/api/v1/nodes", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return resp.Nodes, nil
}

// ListLinks returns every link of the network
func (c *Client) ListLinks(ctx context.Context) ([]Link, error) {
	var resp LinksResponse
	if err := c.authed(ctx, http.MethodGet, "/api/v1/links", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return resp.Links, nil
}

// ReadNodeEvents reads journaled events of a node starting at offset
func (c *Client) ReadNodeEvents(ctx context.Context, node uint8, offset int64, limit int) (*NodeEventsResponse, error) {
	query := url.Values{}
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp NodeEventsResponse
	path := fmt.Sprintf("/api/v1/nodes/%d/events", node)
	if err := c.authed(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return &resp, nil
}

// SendMessage sends a message along an explicit route
func (c *Client) SendMessage(ctx context.Context, route []uint8, message string) (*MessageResponse, error) {
	ids := make([]int, len(route))
	for i, id := range route {
		ids[i] = int(id)
	}
	return c.sendMessage(ctx, MessageRequest{Route: ids, Message: message})
}

// SendMessageTo sends a message along a route the server discovers by flooding
func (c *Client) SendMessageTo(ctx context.Context, from, to uint8, message string, wait time.Duration) (*MessageResponse, error) {
	return c.sendMessage(ctx, MessageRequest{From: from, To: to, Message: message, WaitMs: int(wait.Milliseconds())})
}

func (c *Client) sendMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.authed(ctx, http.MethodPost, "/api/v1/messages", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &resp, nil
}

// SendPacket injects a base64 wire encoded packet at endpoint from
func (c *Client) SendPacket(ctx context.Context, from uint8, encoded string) (*PacketResponse, error) {
	var resp PacketResponse
	req := PacketRequest{From: from, Packet: encoded}
	if err := c.authed(ctx, http.MethodPost, "/api/v1/packets", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to send packet: %w", err)
	}
	return &resp, nil
}

// Discover floods from endpoint from and returns the discovered paths
func (c *Client) Discover(ctx context.Context, from uint8, wait time.Duration) (*DiscoverResponse, error) {
	var resp DiscoverResponse
	req := DiscoverRequest{From: from, WaitMs: int(wait.Milliseconds())}
	if err := c.authed(ctx, http.MethodPost, "/api/v1/discover", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to discover: %w", err)
	}
	return &resp, nil
}

// Admin Methods (require admin token)

// Crash crashes a drone
func (c *Client) Crash(ctx context.Context, drone uint8) error {
	path := fmt.Sprintf("/api/v1/admin/drones/%d/crash", drone)
	if err := c.authed(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to crash drone %d: %w", drone, err)
	}
	return nil
}

// SetPacketDropRate changes the drop rate of a drone
func (c *Client) SetPacketDropRate(ctx context.Context, drone uint8, pdr float64) error {
	path := fmt.Sprintf("/api/v1/admin/drones/%d/pdr", drone)
	if err := c.authed(ctx, http.MethodPut, path, nil, map[string]float64{"pdr": pdr}, nil); err != nil {
		return fmt.Errorf("failed to set drop rate of drone %d: %w", drone, err)
	}
	return nil
}

// AddLink links two nodes
func (c *Client) AddLink(ctx context.Context, a, b uint8) error {
	if err := c.authed(ctx, http.MethodPost, "/api/v1/admin/links", nil, Link{A: a, B: b}, nil); err != nil {
		return fmt.Errorf("failed to add link %d-%d: %w", a, b, err)
	}
	return nil
}

// RemoveLink unlinks two nodes
func (c *Client) RemoveLink(ctx context.Context, a, b uint8) error {
	path := fmt.Sprintf("/api/v1/admin/links/%d/%d", a, b)
	if err := c.authed(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to remove link %d-%d: %w", a, b, err)
	}
	return nil
}

// AdminGetStats returns journal statistics
func (c *Client) AdminGetStats(ctx context.Context) (*AdminStatsResponse, error) {
	var resp AdminStatsResponse
	if err := c.authed(ctx, http.MethodGet, "/api/v1/admin/stats", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// authed performs a request that needs a token
func (c *Client) authed(ctx context.Context, method, path string, query url.Values, reqBody, respBody interface{}) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}
	return c.doRequestWithQuery(ctx, method, path, query, reqBody, respBody, true)
}

// doRequestWithQuery performs an HTTP request with query parameters and optional authentication.
// Transport failures are retried up to MaxRetries times; answers from the server never are.
func (c *Client) doRequestWithQuery(ctx context.Context, method, path string, queryParams url.Values, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	u := &url.URL{Path: path}
	if len(queryParams) > 0 {
		u.RawQuery = queryParams.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var jsonBody []byte
	if reqBody != nil {
		var err error
		if jsonBody, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if requireAuth && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}
		if attempt >= c.config.MaxRetries || ctx.Err() != nil {
			return fmt.Errorf("request failed: %w", err)
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes)), Body: bodyBytes}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message, Body: bodyBytes}
	}

	if respBody != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// doRequest performs an HTTP request with optional authentication
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	return c.doRequestWithQuery(ctx, method, path, nil, reqBody, respBody, requireAuth)
}

// IsAuthenticated returns whether the client has a token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
