// Package backend is an HTTP client for the attendance backend's student
// endpoints: check-in, RSSI streaming and session discovery.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/attendsim/internal/logging"
	"github.com/nvandessel/attendsim/internal/models"
)

// Endpoint names, used as metric labels.
const (
	EndpointCheckIn  = "check-in"
	EndpointStream   = "stream-rssi"
	EndpointDiscover = "discover"
)

// RequestIDHeader carries a fresh UUID on every request.
const RequestIDHeader = "X-Request-Id"

// ErrUnexpectedBody is returned when a response body is not valid JSON.
var ErrUnexpectedBody = errors.New("unexpected response body")

// Observer receives one call per completed HTTP exchange.
// code is 0 when no response was received.
type Observer interface {
	ObserveRequest(endpoint string, code int, d time.Duration)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:5000/api.
	BaseURL string

	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client

	Observer Observer
	Logger   *slog.Logger
}

// Client talks to one backend.
type Client struct {
	baseURL  string
	client   *http.Client
	observer Observer
	logger   *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		baseURL:  base,
		client:   httpClient,
		observer: cfg.Observer,
		logger:   logger,
	}, nil
}

// Result is the outcome of one backend call that produced a response.
type Result struct {
	StatusCode int
	Body       models.APIResponse
	Duration   time.Duration
}

// OK reports whether the backend accepted the request (200 or 201).
func (r *Result) OK() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusCreated
}

// CheckIn posts a provisional check-in.
func (c *Client) CheckIn(ctx context.Context, req models.CheckInRequest) (*Result, error) {
	return c.post(ctx, EndpointCheckIn, "/attendance/check-in", req)
}

// StreamRSSI uploads a burst of RSSI samples.
func (c *Client) StreamRSSI(ctx context.Context, req models.StreamRequest) (*Result, error) {
	return c.post(ctx, EndpointStream, "/attendance/stream-rssi", req)
}

// Discover looks up the active session advertising the given beacon minor.
func (c *Client) Discover(ctx context.Context, minor int) (*models.DiscoverResponse, error) {
	path := "/sessions/discover?minor=" + strconv.Itoa(minor)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	status, body, _, err := c.do(httpReq, EndpointDiscover)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		var apiResp models.APIResponse
		_ = json.Unmarshal(body, &apiResp)
		return nil, fmt.Errorf("discover minor %d: status %d: %s", minor, status, apiResp.Summary())
	}

	var disc models.DiscoverResponse
	if err := json.Unmarshal(body, &disc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedBody, err)
	}
	if disc.SessionID == "" {
		return nil, fmt.Errorf("discover minor %d: response has no sessionId", minor)
	}
	return &disc, nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, payload any) (*Result, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, body, elapsed, err := c.do(httpReq, endpoint)
	if err != nil {
		return nil, err
	}

	result := &Result{StatusCode: status, Duration: elapsed}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &result.Body); err != nil {
			return nil, fmt.Errorf("%s: status %d: %w: %v", endpoint, status, ErrUnexpectedBody, err)
		}
	}
	return result, nil
}

// do sends req and reads the whole body. It reports every exchange to the
// observer, including failed ones.
func (c *Client) do(req *http.Request, endpoint string) (int, []byte, time.Duration, error) {
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(endpoint, 0, time.Since(start))
		return 0, nil, 0, fmt.Errorf("sending %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.observe(endpoint, resp.StatusCode, elapsed)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("reading %s response body: %w", endpoint, err)
	}

	c.logger.Debug("backend request",
		"endpoint", endpoint,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", elapsed)
	c.logger.Log(req.Context(), logging.LevelTrace, "backend response body",
		"request_id", requestID, "body", string(body))

	return resp.StatusCode, body, elapsed, nil
}

func (c *Client) observe(endpoint string, code int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, code, d)
	}
}
