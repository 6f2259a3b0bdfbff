package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/attendsim/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration a run would use, after the config file and
environment overrides. The device secret is redacted.

Configuration is read from ~/.attendsim/config.yaml unless --config is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				// Redact secret before JSON serialization to prevent leakage
				redacted := *cfg
				redacted.Target.Secret = cfg.Target.RedactedSecret()
				return json.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
			}

			out := cmd.OutOrStdout()
			path, _ := cmd.Flags().GetString("config")
			fmt.Fprintf(out, "Configuration (%s):\n", valueOrDefault(path, config.DefaultPath()))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Target:")
			fmt.Fprintf(out, "  target.base_url:     %s\n", cfg.Target.BaseURL)
			fmt.Fprintf(out, "  target.secret:       %s\n", valueOrDefault(cfg.Target.RedactedSecret(), "(not set)"))
			fmt.Fprintf(out, "  target.timeout:      %v\n", cfg.Target.Timeout)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Session:")
			fmt.Fprintf(out, "  session.id:          %s\n", valueOrDefault(cfg.Session.ID, "(not set)"))
			fmt.Fprintf(out, "  session.class_id:    %s\n", cfg.Session.ClassID)
			fmt.Fprintf(out, "  session.minor:       %d\n", cfg.Session.Minor)
			fmt.Fprintf(out, "  session.discover:    %v\n", cfg.Session.Discover)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Load:")
			fmt.Fprintf(out, "  load.students:       %d\n", cfg.Load.Students)
			fmt.Fprintf(out, "  load.delay:          %v\n", cfg.Load.Delay)
			fmt.Fprintf(out, "  load.max_rate:       %v\n", cfg.Load.MaxRate)
			fmt.Fprintf(out, "  load.checkin_rssi:   %s\n", cfg.Load.CheckInRSSI)
			fmt.Fprintf(out, "  load.stream_rssi:    %s\n", cfg.Load.StreamRSSI)
			fmt.Fprintf(out, "  load.samples:        %d\n", cfg.Load.Samples)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  logging.level:       %s\n", cfg.Logging.Level)

			for _, w := range cfg.Warnings() {
				fmt.Fprintf(out, "\nwarning: %s\n", w)
			}
			return nil
		},
	}
}
