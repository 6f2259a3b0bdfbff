package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/attendsim/internal/mockbackend"
)

func newMockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve an in-memory attendance backend",
		Long: `Start a local stand-in for the attendance backend.

The mock verifies device signatures with the configured secret, binds
devices to students, checks the session and beacon minor, and stores RSSI
streams in memory. Point "attendsim run" at the printed URL.

Examples:
  DEVICE_SALT_SECRET=dev attendsim mock --addr localhost:5000
  attendsim mock --force-status 400`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			addr, _ := cmd.Flags().GetString("addr")
			forceStatus, _ := cmd.Flags().GetInt("force-status")
			rotation, _ := cmd.Flags().GetDuration("rotation-interval")

			sessionID := cfg.Session.ID
			if cmd.Flags().Changed("session") {
				sessionID, _ = cmd.Flags().GetString("session")
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			classID := cfg.Session.ClassID
			if cmd.Flags().Changed("class") {
				classID, _ = cmd.Flags().GetString("class")
			}
			minor := cfg.Session.Minor
			if cmd.Flags().Changed("minor") {
				minor, _ = cmd.Flags().GetInt("minor")
			}

			if cfg.Target.Secret == "" && forceStatus == 0 {
				logger.Warn("no device secret configured; every signed check-in will be rejected")
			}

			srv := mockbackend.NewServer(mockbackend.Options{
				Secret:      cfg.Target.Secret,
				ForceStatus: forceStatus,
				Logger:      logger,
			}, mockbackend.Session{
				ID:               sessionID,
				ClassID:          classID,
				Minor:            minor,
				Active:           true,
				LastRotation:     time.Now(),
				RotationInterval: rotation,
			})

			ctx, stop := withSignalCancel(cmd.Context())
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

			// Wait for server to start
			deadline := time.Now().Add(3 * time.Second)
			for srv.Addr() == "" && time.Now().Before(deadline) {
				select {
				case err := <-errCh:
					return fmt.Errorf("server error: %w", err)
				case <-time.After(10 * time.Millisecond):
				}
			}
			if srv.Addr() == "" {
				return fmt.Errorf("server failed to start")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mock backend running at http://%s/api\n", srv.Addr())
			fmt.Fprintf(out, "  session: %s\n", sessionID)
			fmt.Fprintf(out, "  class:   %s\n", classID)
			fmt.Fprintf(out, "  minor:   %d\n", minor)
			fmt.Fprintf(out, "Press Ctrl-C to stop.\n")

			if err := <-errCh; err != nil {
				return fmt.Errorf("server error: %w", err)
			}

			st := srv.Stats()
			fmt.Fprintf(out, "Served %d check-ins (%d accepted), %d streams with %d samples\n",
				st.CheckIns, st.Accepted, st.Streams, st.Samples)
			return nil
		},
	}

	cmd.Flags().String("addr", "localhost:5000", "Listen address")
	cmd.Flags().String("session", "", "Session id to serve (default: session.id or a new UUID)")
	cmd.Flags().String("class", "", "Class id of the session (default: session.class_id)")
	cmd.Flags().Int("minor", 0, "Beacon minor the session expects (default: session.minor)")
	cmd.Flags().Int("force-status", 0, "Answer every check-in with this status")
	cmd.Flags().Duration("rotation-interval", 0, "Reject check-ins with Beacon Expired once this long has passed since startup, 0 to disable")

	return cmd
}
