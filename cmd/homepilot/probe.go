package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
)

// defaultProbeTimeout bounds a probe when --timeout is not given.
const defaultProbeTimeout = 10 * time.Second

// errProbeFailed is returned when the bridge answers as ProbeError.
var errProbeFailed = errors.New("bridge probe failed")

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe [host]",
		Short: "Check a bridge is reachable and whether it needs a password",
		Long: `Probe a HomePilot bridge without logging in. Prints "ok" when the bridge
has authentication disabled, "auth_required" when it expects a password
and "error" when it cannot be reached or is not a HomePilot.

The host defaults to bridge.host from the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := ""
			if len(args) == 1 {
				host = args[0]
			} else {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				host = cfg.Bridge.Host
			}

			result := probe(cmd.Context(), host, timeout)
			fmt.Fprintln(cmd.OutOrStdout(), result)
			if result == homepilot.ProbeError {
				return errProbeFailed
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultProbeTimeout, "Probe timeout")
	return cmd
}

// probe runs homepilot.Probe with a bounded context.
func probe(ctx context.Context, host string, timeout time.Duration) homepilot.ProbeResult {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return homepilot.Probe(ctx, &http.Client{Timeout: timeout}, host)
}
