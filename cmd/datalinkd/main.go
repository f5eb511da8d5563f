// datalinkd - MQTT messaging daemon
//
// This is the main entry point for the datalink daemon. It runs a
// topic-addressed messaging client with a request/response correlation
// layer, answers JSON-RPC requests over MQTT, and optionally relays
// messages between brokers and exports counters to InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datalinkmq/datalink/internal/infrastructure/config"
	"github.com/datalinkmq/datalink/internal/infrastructure/database"
	"github.com/datalinkmq/datalink/internal/infrastructure/influxdb"
	"github.com/datalinkmq/datalink/internal/infrastructure/logging"
	"github.com/datalinkmq/datalink/pkg/relay"
	"github.com/datalinkmq/datalink/pkg/rpc"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval controls how often expired activity rows are removed.
const pruneInterval = 6 * time.Hour

// connectWait bounds how long startup waits for the asynchronous MQTT
// connection before giving up; connectPoll is the check cadence.
const (
	connectWait = 10 * time.Second
	connectPoll = 100 * time.Millisecond
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting datalinkd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	activity := database.NewActivityStore(db)

	// Create the messaging client
	client, err := rpc.New(cfg.ClientConfig(), cfg.TopicConfig())
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	client.SetLogger(log.With("component", "rpc"))
	client.SetConnectionCallback(func(status rpc.Status) {
		log.Info("connection status changed", "status", status.String())
		if recordErr := activity.Record(ctx, database.KindConnection,
			cfg.MQTT.Broker.ClientID, "", status.String()); recordErr != nil {
			log.Warn("recording connection event failed", "error", recordErr)
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := client.Disconnect(); closeErr != nil {
			log.Error("error disconnecting", "error", closeErr)
		}
	}()

	// Connect is asynchronous; wait for the broker before subscribing.
	connectDeadline := time.Now().Add(connectWait)
	for !client.IsConnected() {
		if time.Now().After(connectDeadline) {
			return fmt.Errorf("connecting to MQTT: %w", rpc.ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectPoll):
		}
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Start the relay engine (if enabled)
	var engine *relay.Engine
	if cfg.Relay.Enabled {
		engine, err = relay.NewEngine(cfg.Relay.Config)
		if err != nil {
			return fmt.Errorf("creating relay engine: %w", err)
		}
		engine.SetLogger(log.With("component", "relay"))
		if startErr := engine.Start(); startErr != nil {
			return fmt.Errorf("starting relay engine: %w", startErr)
		}
		defer func() {
			log.Info("stopping relay engine")
			engine.Close()
		}()
		log.Info("relay engine started",
			"brokers", len(cfg.Relay.Brokers),
			"rules", len(cfg.Relay.Rules),
			"conditional", cfg.Relay.ConditionalRelay,
		)
	} else {
		log.Info("relay engine disabled")
	}

	// Answer requests and, when armed, watch for the readiness signal on
	// the same connection. The handler also mirrors daemon traffic into
	// the activity log.
	responder := rpc.NewResponder(client, cfg.RPC.Workers)
	registerHandlers(ctx, responder, client, engine, activity)

	client.SetMessageHandler(newMessageHandler(ctx, cfg, log, client, responder, engine, activity))
	if err := client.Subscribe(cfg.RPC.RequestTopic); err != nil {
		return fmt.Errorf("subscribing to request topic: %w", err)
	}
	if topic := readinessTopic(cfg, engine); topic != "" {
		if err := client.Subscribe(topic); err != nil {
			return fmt.Errorf("subscribing to readiness topic: %w", err)
		}
	}
	if cfg.MQTT.Heartbeat.Enabled {
		if err := client.Subscribe(cfg.MQTT.Heartbeat.Topic); err != nil {
			return fmt.Errorf("subscribing to heartbeat topic: %w", err)
		}
	}
	defer responder.Close()
	log.Info("responder serving",
		"request_topic", cfg.RPC.RequestTopic,
		"response_topic", cfg.RPC.ResponseTopic,
	)

	// Start dispatch, sweeping and heartbeat
	if err := client.Start(); err != nil {
		return fmt.Errorf("starting client: %w", err)
	}
	defer func() {
		log.Info("stopping client")
		if stopErr := client.Stop(); stopErr != nil {
			log.Error("error stopping client", "error", stopErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
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

		exporter := influxdb.NewExporter(influxClient,
			cfg.MQTT.Broker.ClientID,
			time.Duration(cfg.InfluxDB.ExportInterval)*time.Second)
		exporter.SetClientSource(client.GetStatistics)
		if engine != nil {
			exporter.SetRelaySource(engine.Statistics)
		}
		exporter.Start()
		defer exporter.Stop()
		log.Info("statistics exporter started",
			"interval_seconds", cfg.InfluxDB.ExportInterval)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Prune old activity rows periodically (if retention is configured)
	if cfg.Database.RetentionDays > 0 {
		go pruneLoop(ctx, activity, cfg.Database.RetentionDays, log)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, client, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Exporter / InfluxDB (if enabled)
	// 2. Client dispatch, responder
	// 3. Relay engine (if enabled)
	// 4. MQTT, database

	log.Info("datalinkd stopped")
	return nil
}

// readinessTopic returns the topic that arms deferred secondaries, or ""
// when nothing is waiting on one.
func readinessTopic(cfg *config.Config, engine *relay.Engine) string {
	if engine != nil && cfg.Relay.ConditionalRelay {
		return cfg.Relay.ReadinessTopic
	}
	return ""
}

// newMessageHandler builds the client-wide inbound handler. RPC requests
// are recorded and dispatched to the responder, heartbeat echoes and the
// relay readiness signal are recorded in the activity log.
func newMessageHandler(ctx context.Context, cfg *config.Config, log *logging.Logger, client *rpc.Client, responder *rpc.Responder, engine *relay.Engine, activity *database.ActivityStore) func(topic string, payload []byte) {
	heartbeatTopic := ""
	if cfg.MQTT.Heartbeat.Enabled {
		heartbeatTopic = cfg.MQTT.Heartbeat.Topic
	}
	armTopic := readinessTopic(cfg, engine)
	clientID := cfg.MQTT.Broker.ClientID

	record := func(kind, topic, detail string) {
		if err := activity.Record(ctx, kind, clientID, topic, detail); err != nil {
			log.Warn("recording activity failed", "kind", kind, "error", err)
		}
	}

	return func(topic string, payload []byte) {
		switch topic {
		case cfg.RPC.RequestTopic:
			var req struct {
				Method string `json:"method"`
			}
			_ = json.Unmarshal(payload, &req)
			record(database.KindRequest, topic, req.Method)
			responder.Dispatch(payload, func(out []byte) {
				if err := client.Publish(cfg.RPC.ResponseTopic, out); err != nil {
					log.Error("response publish failed", "error", err)
				}
			})
		case heartbeatTopic:
			record(database.KindHeartbeat, topic, "sent")
		case armTopic:
			log.Info("readiness signal received, activating secondary brokers")
			engine.SetSecondaryReady(true)
			record(database.KindRelay, topic, "secondary activated")
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses DATALINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DATALINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerHandlers wires the daemon's built-in request methods.
//
// Parameters:
//   - ctx: Context passed to store queries
//   - responder: Responder to register methods on
//   - client: Messaging client for counter snapshots
//   - engine: Relay engine, nil when relaying is disabled
//   - activity: Activity store for history queries
func registerHandlers(ctx context.Context, responder *rpc.Responder, client *rpc.Client, engine *relay.Engine, activity *database.ActivityStore) {
	responder.Handle("ping", func(_ json.RawMessage) (string, error) {
		return "pong", nil
	})

	responder.Handle("getStatus", func(_ json.RawMessage) (string, error) {
		stats := client.GetStatistics()
		status := map[string]interface{}{
			"connected":          client.IsConnected(),
			"uptime_seconds":     stats.UptimeSeconds,
			"messages_sent":      stats.MessagesSent,
			"messages_received":  stats.MessagesReceived,
			"requests_sent":      stats.RequestsSent,
			"responses_received": stats.ResponsesReceived,
			"errors":             stats.ErrorsCount,
		}
		if engine != nil {
			relayStats := engine.Statistics()
			status["relay"] = map[string]interface{}{
				"state":            engine.State().String(),
				"messages_relayed": relayStats.MessagesRelayed,
				"messages_dropped": relayStats.MessagesDropped,
			}
		}
		out, err := json.Marshal(status)
		if err != nil {
			return "", fmt.Errorf("encoding status: %w", err)
		}
		return string(out), nil
	})

	responder.Handle("getActivity", func(params json.RawMessage) (string, error) {
		var query struct {
			Kind  string `json:"kind"`
			Limit int    `json:"limit"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &query); err != nil {
				return "", fmt.Errorf("parsing query: %w", err)
			}
		}
		events, err := activity.Recent(ctx, query.Kind, query.Limit)
		if err != nil {
			return "", fmt.Errorf("querying activity: %w", err)
		}
		out, err := json.Marshal(events)
		if err != nil {
			return "", fmt.Errorf("encoding activity: %w", err)
		}
		return string(out), nil
	})
}

// pruneLoop removes expired activity rows until the context is cancelled.
func pruneLoop(ctx context.Context, activity *database.ActivityStore, retentionDays int, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		pruned, err := activity.Prune(ctx, retentionDays)
		if err != nil {
			log.Warn("activity prune failed", "error", err)
		} else if pruned > 0 {
			log.Info("activity rows pruned", "rows", pruned, "retention_days", retentionDays)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - client: Messaging client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, client *rpc.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if !client.IsConnected() {
		return fmt.Errorf("mqtt: %w", rpc.ErrNotConnected)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
