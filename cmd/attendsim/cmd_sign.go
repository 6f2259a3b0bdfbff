package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/attendsim/internal/config"
	"github.com/nvandessel/attendsim/internal/signature"
)

func newSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <deviceId> [secret]",
		Short: "Print the device signature for manual requests",
		Long: `Compute the HMAC-SHA256 device signature the backend expects.

The secret defaults to DEVICE_SALT_SECRET or target.secret in the config.

Examples:
  attendsim sign DEV_UUID_0
  attendsim sign TEST_DEVICE my_secret_salt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			deviceID := args[0]

			var secret string
			if len(args) == 2 {
				secret = args[1]
			} else {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				secret = cfg.Target.Secret
			}
			if secret == "" {
				return fmt.Errorf("no secret given and %s is not set", config.SecretEnvVar)
			}

			sig := signature.Sign(secret, deviceID)
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"deviceId":        deviceID,
					"deviceSignature": sig,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Device ID: %s\n", deviceID)
			fmt.Fprintf(cmd.OutOrStdout(), "Signature: %s\n", sig)
			return nil
		},
	}
}
