package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homepilot-core/internal/api"
	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/config"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/logging"
)

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Discover devices, reconcile once and print them as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return listDevices(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

// listDevices builds the registry, runs one reconcile and writes every
// device to w, sorted by ID. Logs go to stderr so w stays valid JSON.
func listDevices(ctx context.Context, cfg *config.Config, w io.Writer) error {
	log := logging.Default()

	client, err := homepilot.NewClient(homepilot.ClientOptions{
		Host:     cfg.Bridge.Host,
		Password: cfg.Bridge.Password,
		Timeout:  cfg.GetRequestTimeout(),
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	manager, err := homepilot.Build(ctx, client, homepilot.ManagerOptions{
		Exclude:          cfg.Bridge.Exclude,
		FetchConcurrency: cfg.Bridge.FetchConcurrency,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("discovering devices: %w", err)
	}

	devices, err := manager.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}

	views := make([]api.DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, api.NewDeviceView(d))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}
