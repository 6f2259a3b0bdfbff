// Package rssi generates synthetic received signal strength readings.
package rssi

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nvandessel/attendsim/internal/models"
)

// Default ranges and burst size, in dBm.
var (
	DefaultCheckInRange = Range{Min: -80, Max: -60}
	DefaultStreamRange  = Range{Min: -85, Max: -55}
)

// DefaultSamples is the number of readings in one stream burst.
const DefaultSamples = 5

// Range is an inclusive dBm interval.
type Range struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Validate checks that the range is ordered and non-positive.
func (r Range) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("rssi range min %d is greater than max %d", r.Min, r.Max)
	}
	if r.Max > 0 {
		return fmt.Errorf("rssi range max must be <= 0 dBm, got %d", r.Max)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// Sampler draws readings from configured ranges.
// It is not safe for concurrent use when constructed with a seeded source.
type Sampler struct {
	checkIn Range
	stream  Range
	samples int
	rng     *rand.Rand
	nowFunc func() time.Time // injectable clock for testing
}

// SamplerConfig configures a Sampler. Zero values take the defaults.
type SamplerConfig struct {
	CheckIn Range
	Stream  Range
	Samples int
	// Seed makes the sequence reproducible when non-zero.
	Seed uint64
}

// NewSampler creates a sampler from cfg.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.CheckIn == (Range{}) {
		cfg.CheckIn = DefaultCheckInRange
	}
	if cfg.Stream == (Range{}) {
		cfg.Stream = DefaultStreamRange
	}
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultSamples
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}

	return &Sampler{
		checkIn: cfg.CheckIn,
		stream:  cfg.Stream,
		samples: cfg.Samples,
		rng:     rng,
		nowFunc: time.Now,
	}
}

// Reading returns a single check-in RSSI value.
func (s *Sampler) Reading() int {
	return s.draw(s.checkIn)
}

// Burst returns the stream samples for one upload, each stamped with the
// wall clock at the moment it is drawn.
func (s *Sampler) Burst() []models.RSSISample {
	out := make([]models.RSSISample, s.samples)
	for i := range out {
		out[i] = models.RSSISample{
			RSSI: s.draw(s.stream),
			TS:   unixSeconds(s.nowFunc()),
		}
	}
	return out
}

func (s *Sampler) draw(r Range) int {
	span := r.Max - r.Min + 1
	if s.rng != nil {
		return r.Min + s.rng.IntN(span)
	}
	return r.Min + rand.IntN(span)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
