// Package mockbackend is an in-memory stand-in for the attendance backend's
// student endpoints. It applies the same acceptance rules as the real
// service (device signature, device binding, active session, beacon minor,
// minor rotation expiry, duplicate check-in) so the simulator can be run
// without a database.
package mockbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nvandessel/attendsim/internal/logging"
	"github.com/nvandessel/attendsim/internal/models"
	"github.com/nvandessel/attendsim/internal/signature"
)

// Session is one class session known to the mock.
type Session struct {
	ID        string `json:"sessionId"`
	ClassID   string `json:"classId"`
	ClassName string `json:"className,omitempty"`
	Minor     int    `json:"minor"`
	Active    bool   `json:"active"`

	// LastRotation and RotationInterval expire the current minor once the
	// interval has passed since the last rotation. Zero values disable expiry.
	LastRotation     time.Time     `json:"lastRotation,omitempty"`
	RotationInterval time.Duration `json:"rotationInterval,omitempty"`
}

// expired reports whether the session's minor has outlived its rotation interval.
func (s *Session) expired(now time.Time) bool {
	if s.LastRotation.IsZero() || s.RotationInterval <= 0 {
		return false
	}
	return now.Sub(s.LastRotation) > s.RotationInterval
}

// Attendance is a provisional check-in record.
type Attendance struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	ClassID     string    `json:"class_id"`
	SessionID   string    `json:"session_id"`
	DeviceID    string    `json:"device_id"`
	Status      string    `json:"status"`
	RSSI        int       `json:"rssi"`
	BeaconMinor int       `json:"beacon_minor"`
	CreatedAt   time.Time `json:"created_at"`
}

// Options configures a Server.
type Options struct {
	// Secret verifies device signatures.
	Secret string

	// ForceStatus, when non-zero, makes every check-in answer with this
	// status without touching state.
	ForceStatus int

	Logger *slog.Logger
}

// Stats counts what the server has seen.
type Stats struct {
	CheckIns     int `json:"checkins"`
	Accepted     int `json:"accepted"`
	Streams      int `json:"streams"`
	Samples      int `json:"samples"`
	Records      int `json:"records"`
	BoundDevices int `json:"bound_devices"`
}

// Server is the mock backend.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *mux.Router

	mu         sync.Mutex
	sessions   map[string]*Session
	bindings   map[string]string      // student id -> device id
	attendance map[string]*Attendance // session id + student id
	streams    map[string][]models.RSSISample
	stats      Stats

	httpServer *http.Server
	addr       string

	nowFunc func() time.Time // injectable clock for testing
}

// NewServer creates a mock backend serving the given sessions.
func NewServer(opts Options, sessions ...Session) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		opts:       opts,
		logger:     logger,
		sessions:   make(map[string]*Session),
		bindings:   make(map[string]string),
		attendance: make(map[string]*Attendance),
		streams:    make(map[string][]models.RSSISample),
		nowFunc:    time.Now,
	}
	for i := range sessions {
		sess := sessions[i]
		s.sessions[sess.ID] = &sess
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/attendance/check-in", s.handleCheckIn).Methods(http.MethodPost)
	r.HandleFunc("/api/attendance/stream-rssi", s.handleStreamRSSI).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/discover", s.handleDiscover).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server is listening on.
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves on addr and blocks until ctx is cancelled.
// Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("mock backend shutdown", "error", err)
		}
	}()

	err = srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stats returns a copy of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Records = len(s.attendance)
	st.BoundDevices = len(s.bindings)
	return st
}

// Samples returns the RSSI samples stored for a student in a class today.
func (s *Server) Samples(studentID, classID string) []models.RSSISample {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.streams[streamKey(studentID, classID, time.Now())]
	return append([]models.RSSISample(nil), stored...)
}

// Attendance returns the record for a student in a session, if any.
func (s *Server) Attendance(sessionID, studentID string) (Attendance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[sessionID+"|"+studentID]
	if !ok {
		return Attendance{}, false
	}
	return *a, true
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CheckIns++

	if s.opts.ForceStatus != 0 {
		writeJSON(w, s.opts.ForceStatus, map[string]any{"message": http.StatusText(s.opts.ForceStatus)})
		if s.opts.ForceStatus == http.StatusOK || s.opts.ForceStatus == http.StatusCreated {
			s.stats.Accepted++
		}
		return
	}

	if !signature.Verify(s.opts.Secret, req.DeviceID, req.DeviceSignature) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid device signature"})
		return
	}

	if bound, ok := s.bindings[req.StudentID]; ok && bound != req.DeviceID {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":   "Device mismatch",
			"message": "This account is bound to a different device. Contact your teacher to reset.",
		})
		return
	}
	if _, ok := s.bindings[req.StudentID]; !ok {
		s.bindings[req.StudentID] = req.DeviceID
		s.logger.Debug("device bound", "student", req.StudentID, "device", req.DeviceID)
	}

	sess, ok := s.sessions[req.SessionID]
	if !ok || !sess.Active {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "No active session found for this class"})
		return
	}

	if req.ReportedMinor != sess.Minor {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "Invalid Beacon ID", "message": "Minor mismatch"})
		return
	}

	if sess.expired(s.nowFunc()) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "Beacon Expired", "message": "Wait for next rotation"})
		return
	}

	key := req.SessionID + "|" + req.StudentID
	if _, dup := s.attendance[key]; dup {
		s.stats.Accepted++
		writeJSON(w, http.StatusOK, map[string]any{"message": "Already checked in"})
		return
	}

	rssi := req.RSSI
	if rssi == 0 {
		rssi = -70
	}
	record := &Attendance{
		ID:          uuid.NewString(),
		StudentID:   req.StudentID,
		ClassID:     req.ClassID,
		SessionID:   req.SessionID,
		DeviceID:    req.DeviceID,
		Status:      "provisional",
		RSSI:        rssi,
		BeaconMinor: req.ReportedMinor,
		CreatedAt:   s.nowFunc().UTC(),
	}
	s.attendance[key] = record
	s.stats.Accepted++

	s.logger.Info("check-in", "student", req.StudentID, "minor", req.ReportedMinor)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "status": "provisional", "attendance": record})
}

func (s *Server) handleStreamRSSI(w http.ResponseWriter, r *http.Request) {
	var req models.StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey(req.StudentID, req.ClassID, time.Now())
	s.streams[key] = append(s.streams[key], req.RSSIData...)
	s.stats.Streams++
	s.stats.Samples += len(req.RSSIData)

	s.logger.Debug("rssi stream", "student", req.StudentID, "samples", len(req.RSSIData), "total", len(s.streams[key]))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	minor, err := strconv.Atoi(r.URL.Query().Get("minor"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing or invalid minor parameter"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.Active && sess.Minor == minor {
			writeJSON(w, http.StatusOK, models.DiscoverResponse{
				SessionID: sess.ID,
				ClassID:   sess.ClassID,
				ClassName: sess.ClassName,
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "No active session found for this beacon"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "message": "attendsim mock backend"})
}

func streamKey(studentID, classID string, t time.Time) string {
	return studentID + "|" + classID + "|" + t.UTC().Format("2006-01-02")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
