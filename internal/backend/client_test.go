package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/attendsim/internal/models"
)

type recordedRequest struct {
	endpoint string
	code     int
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []recordedRequest
}

func (o *fakeObserver) ObserveRequest(endpoint string, code int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedRequest{endpoint, code})
}

func newTestClient(t *testing.T, h http.Handler, obs Observer) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/api/", Observer: obs})
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"localhost:5000", "ftp://example.com", "::"} {
		_, err := NewClient(Config{BaseURL: raw})
		assert.Error(t, err, "base url %q", raw)
	}
}

func TestCheckIn_SendsPayload(t *testing.T) {
	var got models.CheckInRequest
	var header http.Header
	obs := &fakeObserver{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/attendance/check-in", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"status":"provisional","attendance":{"id":1}}`))
	})
	c := newTestClient(t, mux, obs)

	req := models.CheckInRequest{
		StudentID:       "STU_1000",
		ClassID:         "CS101",
		SessionID:       "s-1",
		DeviceID:        "DEV_UUID_0",
		DeviceSignature: "abc",
		ReportedMinor:   101,
		RSSI:            -70,
	}
	res, err := c.CheckIn(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, req, got)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	_, err = uuid.Parse(header.Get(RequestIDHeader))
	assert.NoError(t, err, "request id should be a uuid")

	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.True(t, res.OK())
	assert.True(t, res.Body.Success)
	assert.Equal(t, "provisional", res.Body.Status)

	assert.Equal(t, []recordedRequest{{EndpointCheckIn, 201}}, obs.calls)
}

func TestResult_OK(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{200, true},
		{201, true},
		{202, false},
		{204, false},
		{400, false},
		{401, false},
		{403, false},
		{500, false},
	}
	for _, tt := range tests {
		r := &Result{StatusCode: tt.code}
		assert.Equal(t, tt.want, r.OK(), "status %d", tt.code)
	}
}

func TestCheckIn_ErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Invalid Beacon ID","message":"Minor mismatch"}`))
	}), nil)

	res, err := c.CheckIn(context.Background(), models.CheckInRequest{})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "Minor mismatch", res.Body.Summary())
}

func TestCheckIn_EmptyBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), nil)

	res, err := c.CheckIn(context.Background(), models.CheckInRequest{})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "", res.Body.Summary())
}

func TestCheckIn_MalformedBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}), nil)

	_, err := c.CheckIn(context.Background(), models.CheckInRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedBody), "got %v", err)
}

func TestCheckIn_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	obs := &fakeObserver{}
	c, err := NewClient(Config{BaseURL: url, Observer: obs})
	require.NoError(t, err)

	_, err = c.CheckIn(context.Background(), models.CheckInRequest{})
	require.Error(t, err)
	assert.Equal(t, []recordedRequest{{EndpointCheckIn, 0}}, obs.calls)
}

func TestCheckIn_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.CheckIn(context.Background(), models.CheckInRequest{})
	assert.Error(t, err)
}

func TestStreamRSSI_SendsSamples(t *testing.T) {
	var got models.StreamRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/attendance/stream-rssi", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	}), nil)

	req := models.StreamRequest{
		StudentID: "STU_1001",
		ClassID:   "CS101",
		RSSIData:  []models.RSSISample{{RSSI: -60, TS: 1.5}, {RSSI: -70, TS: 2.5}},
	}
	res, err := c.StreamRSSI(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, req, got)
}

func TestDiscover(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/discover", r.URL.Path)
		if r.URL.Query().Get("minor") != "101" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"No active session found for this beacon"}`))
			return
		}
		w.Write([]byte(`{"sessionId":"4f1c","classId":"CS101","className":"Systems"}`))
	}), nil)

	disc, err := c.Discover(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, "4f1c", disc.SessionID)
	assert.Equal(t, "CS101", disc.ClassID)

	_, err = c.Discover(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No active session found")
}
