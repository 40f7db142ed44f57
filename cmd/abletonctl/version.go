package main

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/morezero/ableton-bridge/pkg/protocol"
)

// version is set at build time via -ldflags "-X main.abletonctlVersion=x.y.z"
var abletonctlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show abletonctl and protocol versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := masterminds.NewVersion(abletonctlVersion)
		if err != nil {
			return fmt.Errorf("invalid build version %q: %w", abletonctlVersion, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "abletonctl version %s\n", v)
		fmt.Fprintf(cmd.OutOrStdout(), "protocol: %s (accepts %s)\n", protocol.Version, protocol.SupportedRange)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
