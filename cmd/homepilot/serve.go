package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homepilot-core/internal/api"
	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
	"github.com/nerrad567/homepilot-core/internal/history"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/config"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/database"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/logging"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/mqtt"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon",
		Long: `Discover the bridge's devices, then poll them and publish state changes
until interrupted. MQTT, the audit trail, InfluxDB and the API are each
enabled in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// run is the daemon, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Loaded configuration
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting HomePilot Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Bridge client and registry
	client, err := homepilot.NewClient(homepilot.ClientOptions{
		Host:     cfg.Bridge.Host,
		Password: cfg.Bridge.Password,
		Timeout:  cfg.GetRequestTimeout(),
		Logger:   log.Component("client"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	manager, err := homepilot.Build(ctx, client, homepilot.ManagerOptions{
		Exclude:          cfg.Bridge.Exclude,
		FetchConcurrency: cfg.Bridge.FetchConcurrency,
		Logger:           log.Component("registry"),
	})
	if err != nil {
		return fmt.Errorf("discovering devices on %s: %w", client.BaseURL(), err)
	}
	log.Info("device registry built", "bridge", client.BaseURL(), "devices", manager.Count())

	checks := make(map[string]api.HealthChecker)

	bridgeOpts := homepilot.BridgeOptions{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		Manager:        manager,
		Authenticator:  client,
		PollInterval:   cfg.GetPollInterval(),
		PollTimeout:    cfg.GetPollTimeout(),
		SettleDelay:    cfg.GetSettleDelay(),
		HealthInterval: cfg.GetHealthInterval(),
		Logger:         log.Component("bridge"),
	}

	// Audit trail (optional)
	var historyRepo *history.SQLiteRepository
	if cfg.Database.Enabled {
		db, dbErr := openHistory(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		checks["database"] = db

		historyRepo = history.NewSQLiteRepository(db.DB)
		bridgeOpts.History = historyRepo

		if retention := cfg.GetRetention(); retention > 0 {
			go history.RunRetention(ctx, historyRepo, retention, 0, log.Component("history"))
		}
	} else {
		log.Info("history disabled")
	}

	// MQTT (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		bridgeOpts.MQTTClient = &mqttBridgeAdapter{client: mqttClient}
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection",
				"points_queued", stats.PointsQueued,
				"write_errors", stats.WriteErrors,
			)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		checks["influxdb"] = influxClient
		bridgeOpts.Metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// The hub exists before the bridge so the first publish reaches it.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		bridgeOpts.Broadcaster = hub
	}

	bridge, err := homepilot.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// REST API and WebSocket (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Bridge:  bridge,
			Hub:     hub,
			Checks:  checks,
			Version: version,
		}
		if historyRepo != nil {
			deps.History = historyRepo
		}

		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Bridge (publishes a final health status)
	// 3. InfluxDB, MQTT, database

	log.Info("HomePilot Core stopped")
	return nil
}

// openHistory opens the database and applies pending migrations.
func openHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// connectMQTT connects to the broker with the bridge's offline health
// message registered as the Last Will.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	lwt, err := json.Marshal(homepilot.NewLWTMessage(cfg.Bridge.ID))
	if err != nil {
		return nil, fmt.Errorf("encoding LWT: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
		Topic:    homepilot.HealthTopic(),
		Payload:  lwt,
		QoS:      1,
		Retained: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	watchMQTTConnection(client, log)

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectionEvents is the part of the MQTT client that reports link changes.
type connectionEvents interface {
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// watchMQTTConnection logs link changes. The callbacks are registered
// after the first connect, so a connect event is always a reconnect.
func watchMQTTConnection(client connectionEvents, log *logging.Logger) {
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements homepilot.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements homepilot.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements homepilot.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements homepilot.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
