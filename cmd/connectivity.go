package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/message"
	"github.com/coullessi/arcdefender/pkg/azure/connectivity"
)

var (
	connectivityEndpoints []string
	probeTimeout          time.Duration
)

var connectivityCmd = &cobra.Command{
	Use:   "connectivity",
	Short: "Probe the network endpoints the Arc agent needs to reach",
	Long: `Probe the Azure endpoints the Connected Machine agent depends on. A server
that cannot reach all of them will fail onboarding or report unhealthy
afterwards, so run this from the network the servers live in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoints := connectivityEndpoints
		if len(endpoints) == 0 {
			endpoints = connectivity.DefaultEndpoints
		}

		message.Info("Probing %d endpoints", len(endpoints))
		checker := connectivity.NewChecker(&connectivity.CheckerOptions{Timeout: probeTimeout})
		results := checker.Check(cmd.Context(), endpoints)

		for _, r := range results {
			if r.Reachable {
				message.Success("%-50s %s", r.Endpoint, r.Latency.Round(time.Millisecond))
			} else {
				message.Error("%-50s %s", r.Endpoint, r.Error)
			}
		}

		if unreachable := connectivity.Unreachable(results); len(unreachable) > 0 {
			return fmt.Errorf("%d of %d endpoints unreachable", len(unreachable), len(results))
		}
		message.Success("All %d endpoints reachable", len(results))
		return nil
	},
}

func init() {
	connectivityCmd.Flags().StringSliceVar(&connectivityEndpoints, "endpoints", nil, "endpoints to probe instead of the default Arc set")
	connectivityCmd.Flags().DurationVar(&probeTimeout, "probe-timeout", connectivity.DefaultProbeTimeout, "timeout for each endpoint probe")
	rootCmd.AddCommand(connectivityCmd)
}
