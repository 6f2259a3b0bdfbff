package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nvandessel/attendsim/internal/backend"
	"github.com/nvandessel/attendsim/internal/identity"
	"github.com/nvandessel/attendsim/internal/logging"
	"github.com/nvandessel/attendsim/internal/metrics"
	"github.com/nvandessel/attendsim/internal/models"
	"github.com/nvandessel/attendsim/internal/signature"
)

// Backend is the subset of backend.Client the driver calls.
type Backend interface {
	CheckIn(ctx context.Context, req models.CheckInRequest) (*backend.Result, error)
	StreamRSSI(ctx context.Context, req models.StreamRequest) (*backend.Result, error)
}

// Sampler supplies synthetic RSSI readings.
type Sampler interface {
	Reading() int
	Burst() []models.RSSISample
}

// Pacer blocks between students.
type Pacer interface {
	Wait(ctx context.Context) error
}

// CheckInObserver is told the outcome of every check-in attempt.
type CheckInObserver interface {
	ObserveCheckIn(outcome string)
}

// Session identifies what the simulated students check into.
type Session struct {
	ID      string
	ClassID string
	Minor   int
}

// Driver runs students through check-in and RSSI streaming one at a time.
type Driver struct {
	backend  Backend
	sampler  Sampler
	pacer    Pacer
	session  Session
	secret   string
	students int
	out      io.Writer
	logger   *slog.Logger
	observer CheckInObserver
	nowFunc  func() time.Time
}

// DriverConfig wires a Driver. Backend, Sampler and Pacer are required.
type DriverConfig struct {
	Backend  Backend
	Sampler  Sampler
	Pacer    Pacer
	Session  Session
	Secret   string
	Students int

	// Out receives the console progress lines. Defaults to io.Discard.
	Out      io.Writer
	Logger   *slog.Logger
	Observer CheckInObserver
}

// NewDriver validates cfg and returns a Driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Backend == nil || cfg.Sampler == nil || cfg.Pacer == nil {
		return nil, errors.New("driver needs a backend, sampler and pacer")
	}
	if cfg.Students < 0 {
		return nil, fmt.Errorf("students must be non-negative, got %d", cfg.Students)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Driver{
		backend:  cfg.Backend,
		sampler:  cfg.Sampler,
		pacer:    cfg.Pacer,
		session:  cfg.Session,
		secret:   cfg.Secret,
		students: cfg.Students,
		out:      cfg.Out,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		nowFunc:  time.Now,
	}, nil
}

// Report totals a run. It is returned even when the run aborts.
type Report struct {
	Students int           `json:"students"`
	CheckIns int           `json:"checkins"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Streams  int           `json:"streams"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Run simulates every student in order. Only one request is in flight at a
// time. A rejected check-in skips that student's stream; any transport or
// decoding error stops the run and is returned along with the partial report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{Students: d.students}
	start := d.nowFunc()
	defer func() { report.Elapsed = d.nowFunc().Sub(start) }()

	fmt.Fprintf(d.out, "Starting stress test for session %s (%d students)\n", d.session.ID, d.students)

	for i := 0; i < d.students; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := d.simulateStudent(ctx, i, report); err != nil {
			return report, err
		}

		if i < d.students-1 {
			if err := d.pacer.Wait(ctx); err != nil {
				return report, err
			}
		}
	}

	fmt.Fprintf(d.out, "\nSimulation complete: %d/%d check-ins accepted, %d streams uploaded\n",
		report.Accepted, report.CheckIns, report.Streams)
	return report, nil
}

func (d *Driver) simulateStudent(ctx context.Context, i int, report *Report) error {
	student := identity.ForIndex(i)

	checkIn := models.CheckInRequest{
		StudentID:       student.ID,
		ClassID:         d.session.ClassID,
		SessionID:       d.session.ID,
		DeviceID:        student.DeviceID,
		DeviceSignature: signature.Sign(d.secret, student.DeviceID),
		ReportedMinor:   d.session.Minor,
		RSSI:            d.sampler.Reading(),
	}

	fmt.Fprintf(d.out, "Student %s attempting check-in...\n", student.ID)
	res, err := d.backend.CheckIn(ctx, checkIn)
	report.CheckIns++
	if err != nil {
		d.observe(metrics.OutcomeError)
		return fmt.Errorf("check-in for %s: %w", student.ID, err)
	}
	if summary := res.Body.Summary(); summary != "" {
		fmt.Fprintf(d.out, "   Response: %d - %s\n", res.StatusCode, summary)
	} else {
		fmt.Fprintf(d.out, "   Response: %d\n", res.StatusCode)
	}

	if !res.OK() {
		report.Rejected++
		d.observe(metrics.OutcomeRejected)
		d.logger.Debug("check-in rejected", "student", student.ID, "status", res.StatusCode)
		return nil
	}
	report.Accepted++
	d.observe(metrics.OutcomeAccepted)

	stream := models.StreamRequest{
		StudentID: student.ID,
		ClassID:   d.session.ClassID,
		RSSIData:  d.sampler.Burst(),
	}
	streamRes, err := d.backend.StreamRSSI(ctx, stream)
	if err != nil {
		return fmt.Errorf("rssi stream for %s: %w", student.ID, err)
	}
	report.Streams++
	if !streamRes.OK() {
		d.logger.Warn("rssi stream not accepted", "student", student.ID, "status", streamRes.StatusCode, "message", streamRes.Body.Summary())
	}
	fmt.Fprintf(d.out, "   RSSI stream uploaded for %s (%d samples, status %d)\n", student.ID, len(stream.RSSIData), streamRes.StatusCode)
	return nil
}

func (d *Driver) observe(outcome string) {
	if d.observer != nil {
		d.observer.ObserveCheckIn(outcome)
	}
}
