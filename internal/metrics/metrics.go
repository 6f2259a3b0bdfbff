// Package metrics records per-run request counters in a private Prometheus
// registry. Nothing is served over HTTP; the run command prints a snapshot.
package metrics

import (
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Check-in outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder collects request metrics for a single run.
// A nil *Recorder is safe to use; all methods are no-ops.
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	checkIns *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendsim_requests_total",
			Help: "HTTP requests sent to the backend, by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendsim_request_duration_seconds",
			Help:    "Round-trip time of backend requests.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendsim_checkins_total",
			Help: "Check-in attempts by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.requests, r.duration, r.checkIns)
	return r
}

// ObserveRequest records one completed HTTP exchange. code 0 means the
// request failed before a response arrived.
func (r *Recorder) ObserveRequest(endpoint string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	r.duration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveCheckIn records the outcome of one check-in attempt.
func (r *Recorder) ObserveCheckIn(outcome string) {
	if r == nil {
		return
	}
	r.checkIns.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// EndpointStats summarizes the traffic to one endpoint.
type EndpointStats struct {
	Endpoint    string         `json:"endpoint"`
	Requests    int            `json:"requests"`
	ByCode      map[string]int `json:"by_code"`
	MeanLatency time.Duration  `json:"mean_latency_ns"`
}

// Snapshot is a point-in-time view of the recorder.
type Snapshot struct {
	Endpoints []EndpointStats `json:"endpoints"`
	CheckIns  map[string]int  `json:"checkins"`
}

// Snapshot gathers the registry into plain values.
func (r *Recorder) Snapshot() (Snapshot, error) {
	snap := Snapshot{CheckIns: map[string]int{}}
	if r == nil {
		return snap, nil
	}

	families, err := r.registry.Gather()
	if err != nil {
		return snap, err
	}

	byEndpoint := map[string]*EndpointStats{}
	endpoint := func(name string) *EndpointStats {
		es, ok := byEndpoint[name]
		if !ok {
			es = &EndpointStats{Endpoint: name, ByCode: map[string]int{}}
			byEndpoint[name] = es
		}
		return es
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "attendsim_requests_total":
			for _, m := range mf.GetMetric() {
				es := endpoint(label(m, "endpoint"))
				n := int(m.GetCounter().GetValue())
				es.Requests += n
				es.ByCode[label(m, "code")] += n
			}
		case "attendsim_request_duration_seconds":
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				if h.GetSampleCount() == 0 {
					continue
				}
				mean := h.GetSampleSum() / float64(h.GetSampleCount())
				endpoint(label(m, "endpoint")).MeanLatency = time.Duration(mean * float64(time.Second))
			}
		case "attendsim_checkins_total":
			for _, m := range mf.GetMetric() {
				snap.CheckIns[label(m, "outcome")] = int(m.GetCounter().GetValue())
			}
		}
	}

	for _, es := range byEndpoint {
		snap.Endpoints = append(snap.Endpoints, *es)
	}
	sort.Slice(snap.Endpoints, func(i, j int) bool {
		return snap.Endpoints[i].Endpoint < snap.Endpoints[j].Endpoint
	})
	return snap, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
