// Package models defines the JSON payloads exchanged with the attendance backend.
package models

// CheckInRequest is the body of POST /attendance/check-in.
type CheckInRequest struct {
	StudentID       string `json:"studentId"`
	ClassID         string `json:"classId"`
	SessionID       string `json:"sessionId"`
	DeviceID        string `json:"deviceId"`
	DeviceSignature string `json:"deviceSignature"`
	ReportedMinor   int    `json:"reportedMinor"`
	RSSI            int    `json:"rssi"`
}

// RSSISample is one signal strength reading. TS is Unix time in seconds.
type RSSISample struct {
	RSSI int     `json:"rssi"`
	TS   float64 `json:"ts"`
}

// StreamRequest is the body of POST /attendance/stream-rssi.
type StreamRequest struct {
	StudentID string       `json:"studentId"`
	ClassID   string       `json:"classId"`
	RSSIData  []RSSISample `json:"rssiData"`
}

// APIResponse holds the fields of a backend response body that the
// simulator reads. Unknown fields are ignored.
type APIResponse struct {
	Success bool   `json:"success,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary returns the message, falling back to the error text and then
// to the record status.
func (r APIResponse) Summary() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	default:
		return r.Status
	}
}

// DiscoverResponse is the body of GET /sessions/discover.
type DiscoverResponse struct {
	SessionID string `json:"sessionId"`
	ClassID   string `json:"classId"`
	ClassName string `json:"className,omitempty"`
}
