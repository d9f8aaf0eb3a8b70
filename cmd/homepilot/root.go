package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homepilot-core/internal/infrastructure/config"
)

// configEnv names the environment variable holding the config path.
const configEnv = config.EnvPrefix + "CONFIG"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals, which the tests rely on.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "homepilot",
		Short: "Rademacher HomePilot bridge sync engine",
		Long: `homepilot keeps a registry of the devices behind a Rademacher HomePilot
bridge in sync and publishes their state over MQTT, a REST API and a
WebSocket stream.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("homepilot %s (commit %s, built %s)\n", version, commit, date))

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file path (env: "+configEnv+"; environment only when unset)")

	root.AddCommand(
		newServeCmd(opts),
		newProbeCmd(opts),
		newDevicesCmd(opts),
	)
	return root
}

// resolveConfigPath returns the config path from the flag or environment.
// An empty path means configuration comes from defaults and environment
// overrides only.
func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return os.Getenv(configEnv)
}

// loadConfig loads the configuration for a subcommand.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if path == "" {
			return nil, fmt.Errorf("loading config from environment: %w", err)
		}
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}
