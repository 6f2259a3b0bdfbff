package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/attendsim/internal/backend"
	"github.com/nvandessel/attendsim/internal/config"
	"github.com/nvandessel/attendsim/internal/metrics"
	"github.com/nvandessel/attendsim/internal/pacing"
	"github.com/nvandessel/attendsim/internal/rssi"
	"github.com/nvandessel/attendsim/internal/simulation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate students checking into a session",
		Long: `Run a check-in simulation against the attendance backend.

Each student checks in once; accepted students upload a burst of RSSI
samples. Students run sequentially with a fixed delay in between. The
device secret comes from DEVICE_SALT_SECRET or target.secret in the config.

Examples:
  attendsim run --session 0b8e6f3c-6a3c-4c38-9c59-0d6f1f2a9d11
  attendsim run --students 200 --delay 50ms --base-url http://10.0.0.5:5000/api
  attendsim run --discover --minor 101`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)

			ctx, stop := withSignalCancel(cmd.Context())
			defer stop()

			return runSimulation(ctx, cmd, cfg)
		},
	}

	cmd.Flags().String("base-url", "", "Backend API root (overrides target.base_url)")
	cmd.Flags().String("session", "", "Session id (overrides session.id)")
	cmd.Flags().String("class", "", "Class id (overrides session.class_id)")
	cmd.Flags().Int("minor", 0, "Beacon minor to report (overrides session.minor)")
	cmd.Flags().Bool("discover", false, "Look up the active session by beacon minor")
	cmd.Flags().Int("students", 0, "Number of simulated students (overrides load.students)")
	cmd.Flags().Duration("delay", 0, "Pause between students (overrides load.delay)")
	cmd.Flags().Float64("rate", 0, "Maximum students per second, 0 for no cap (overrides load.max_rate)")
	cmd.Flags().Duration("timeout", 0, "Per-request timeout, 0 for none (overrides target.timeout)")
	cmd.Flags().Uint64("seed", 0, "Seed for reproducible RSSI values (overrides load.seed)")

	return cmd
}

// applyRunFlags copies explicitly set flags onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Target.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("session") {
		cfg.Session.ID, _ = flags.GetString("session")
	}
	if flags.Changed("class") {
		cfg.Session.ClassID, _ = flags.GetString("class")
	}
	if flags.Changed("minor") {
		cfg.Session.Minor, _ = flags.GetInt("minor")
	}
	if flags.Changed("discover") {
		cfg.Session.Discover, _ = flags.GetBool("discover")
	}
	if flags.Changed("students") {
		cfg.Load.Students, _ = flags.GetInt("students")
	}
	if flags.Changed("delay") {
		cfg.Load.Delay, _ = flags.GetDuration("delay")
	}
	if flags.Changed("rate") {
		cfg.Load.MaxRate, _ = flags.GetFloat64("rate")
	}
	if flags.Changed("timeout") {
		cfg.Target.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("seed") {
		cfg.Load.Seed, _ = flags.GetUint64("seed")
	}
}

func runSimulation(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cmd, cfg)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	recorder := metrics.NewRecorder()
	client, err := backend.NewClient(backend.Config{
		BaseURL:  cfg.Target.BaseURL,
		Timeout:  cfg.Target.Timeout,
		Observer: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if cfg.Session.ID == "" && cfg.Session.Discover {
		disc, err := client.Discover(ctx, cfg.Session.Minor)
		if err != nil {
			return fmt.Errorf("discovering session: %w", err)
		}
		cfg.Session.ID = disc.SessionID
		if cfg.Session.ClassID == "" {
			cfg.Session.ClassID = disc.ClassID
		}
		logger.Info("session discovered", "session", disc.SessionID, "class", disc.ClassID, "name", disc.ClassName)
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	var progress io.Writer = cmd.OutOrStdout()
	if jsonOut {
		progress = io.Discard
	}

	driver, err := simulation.NewDriver(simulation.DriverConfig{
		Backend: client,
		Sampler: rssi.NewSampler(rssi.SamplerConfig{
			CheckIn: cfg.Load.CheckInRSSI,
			Stream:  cfg.Load.StreamRSSI,
			Samples: cfg.Load.Samples,
			Seed:    cfg.Load.Seed,
		}),
		Pacer: pacing.NewPacer(cfg.Load.Delay, cfg.Load.MaxRate),
		Session: simulation.Session{
			ID:      cfg.Session.ID,
			ClassID: cfg.Session.ClassID,
			Minor:   cfg.Session.Minor,
		},
		Secret:   cfg.Target.Secret,
		Students: cfg.Load.Students,
		Out:      progress,
		Logger:   logger,
		Observer: recorder,
	})
	if err != nil {
		return err
	}

	report, runErr := driver.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("run interrupted", "completed", report.CheckIns, "of", report.Students)
	}

	snap, err := recorder.Snapshot()
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("gathering metrics: %w", err))
	}

	if jsonOut {
		out := map[string]any{
			"session": cfg.Session.ID,
			"report":  report,
			"metrics": snap,
		}
		if runErr != nil {
			out["error"] = runErr.Error()
		}
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(out); err != nil {
			return errors.Join(runErr, fmt.Errorf("writing report: %w", err))
		}
	} else {
		printMetrics(cmd.OutOrStdout(), report, snap)
	}

	return runErr
}

func printMetrics(w io.Writer, report *simulation.Report, snap metrics.Snapshot) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Elapsed: %v\n", report.Elapsed.Round(time.Millisecond))
	for _, es := range snap.Endpoints {
		fmt.Fprintf(w, "  %-12s %4d requests, mean %v", es.Endpoint, es.Requests, es.MeanLatency.Round(time.Microsecond))
		for _, code := range sortedKeys(es.ByCode) {
			fmt.Fprintf(w, ", %s=%d", codeLabel(code), es.ByCode[code])
		}
		fmt.Fprintln(w)
	}
}

func codeLabel(code string) string {
	if code == "0" {
		return "failed"
	}
	return code
}
