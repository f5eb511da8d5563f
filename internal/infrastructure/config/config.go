package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/datalinkmq/datalink/pkg/relay"
	"github.com/datalinkmq/datalink/pkg/rpc"
)

// Config is the root configuration structure for the datalink daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	RPC      RPCConfig      `yaml:"rpc"`
	Relay    RelayConfig    `yaml:"relay"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig identifies this daemon instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite activity store settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds how long activity rows are kept. Zero disables
	// pruning.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains primary broker connection settings.
type MQTTConfig struct {
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
	SubscribeTopics []string            `yaml:"subscribe_topics"`
	Heartbeat       HeartbeatConfig     `yaml:"heartbeat"`
}

// MQTTBrokerConfig contains broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	CAFile   string `yaml:"ca_file"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains broker authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection backoff settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// HeartbeatConfig contains liveness publishing settings.
type HeartbeatConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Topic    string `yaml:"topic"`
	Interval int    `yaml:"interval_seconds"`
	Payload  string `yaml:"payload"`
}

// RPCConfig contains the topic convention and the request-serving surface.
type RPCConfig struct {
	BasePrefix           string `yaml:"base_prefix"`
	ServicePrefix        string `yaml:"service_prefix"`
	IncludeTransactionID bool   `yaml:"include_transaction_id"`

	// Workers sizes the request worker pool.
	Workers int `yaml:"workers"`

	// RequestTopic and ResponseTopic wire the daemon's serving surface.
	RequestTopic  string `yaml:"request_topic"`
	ResponseTopic string `yaml:"response_topic"`
}

// RelayConfig embeds the relay engine table and adds daemon-side wiring.
type RelayConfig struct {
	relay.Config `yaml:",inline"`

	// ReadinessTopic, when set, arms conditional relaying: a message on
	// this topic of the primary connection activates the secondary
	// brokers.
	ReadinessTopic string `yaml:"readiness_topic"`
}

// InfluxDBConfig contains statistics export settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// ExportInterval is the statistics sampling period in seconds.
	ExportInterval int `yaml:"export_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DATALINK_SECTION_KEY
// For example: DATALINK_DATABASE_PATH, DATALINK_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "datalink-001",
			Name: "datalink",
		},
		Database: DatabaseConfig{
			Path:          "./data/datalink.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "datalink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Heartbeat: HeartbeatConfig{
				Topic:    "datalink/heartbeat",
				Interval: 30,
			},
		},
		RPC: RPCConfig{
			BasePrefix:           rpc.DefaultBasePrefix,
			IncludeTransactionID: true,
			Workers:              4,
			RequestTopic:         "datalink/rpc/request",
			ResponseTopic:        "datalink/rpc/response",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:      100,
			FlushInterval:  10,
			ExportInterval: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DATALINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DATALINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DATALINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DATALINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DATALINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DATALINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DATALINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("DATALINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Heartbeat.Enabled && c.MQTT.Heartbeat.Topic == "" {
		errs = append(errs, "mqtt.heartbeat.topic is required when the heartbeat is enabled")
	}

	if c.Relay.Enabled {
		if err := c.Relay.Config.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Relay.ConditionalRelay && c.Relay.ReadinessTopic == "" {
			errs = append(errs, "relay.readiness_topic is required with conditional relaying")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required (set DATALINK_INFLUXDB_TOKEN environment variable)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ClientConfig maps the MQTT section onto a transport client configuration.
func (c *Config) ClientConfig() rpc.Config {
	out := rpc.DefaultConfig()
	out.Host = c.MQTT.Broker.Host
	out.Port = c.MQTT.Broker.Port
	out.UseTLS = c.MQTT.Broker.TLS
	out.CAFile = c.MQTT.Broker.CAFile
	out.ClientID = c.MQTT.Broker.ClientID
	out.Username = c.MQTT.Auth.Username
	out.Password = c.MQTT.Auth.Password
	out.QoS = c.MQTT.QoS
	out.ReconnectMin = c.MQTT.Reconnect.InitialDelay
	out.ReconnectMax = c.MQTT.Reconnect.MaxDelay
	out.SubscribeTopics = append([]string(nil), c.MQTT.SubscribeTopics...)
	out.Heartbeat = rpc.HeartbeatConfig{
		Enabled:  c.MQTT.Heartbeat.Enabled,
		Topic:    c.MQTT.Heartbeat.Topic,
		Interval: c.MQTT.Heartbeat.Interval,
		Payload:  c.MQTT.Heartbeat.Payload,
	}
	return out
}

// TopicConfig maps the RPC section onto the topic convention.
func (c *Config) TopicConfig() rpc.TopicConfig {
	out := rpc.DefaultTopicConfig()
	if c.RPC.BasePrefix != "" {
		out.BasePrefix = c.RPC.BasePrefix
	}
	out.ServicePrefix = c.RPC.ServicePrefix
	out.IncludeTransactionID = c.RPC.IncludeTransactionID
	return out
}
