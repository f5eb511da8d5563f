package rpc

import "fmt"

// Default configuration values, matching common broker expectations.
const (
	// DefaultPort is the plain-TCP MQTT port.
	DefaultPort = 1883

	// DefaultKeepalive is the MQTT keepalive interval in seconds.
	DefaultKeepalive = 60

	// DefaultQoS is the delivery guarantee used when none is configured.
	DefaultQoS = 1

	// DefaultConnectTimeout is the connection timeout in seconds.
	DefaultConnectTimeout = 10

	// DefaultMessageTimeout is the request timeout in seconds.
	DefaultMessageTimeout = 30

	// DefaultReconnectMin and DefaultReconnectMax bound the reconnect backoff
	// in seconds.
	DefaultReconnectMin = 1
	DefaultReconnectMax = 60
)

// Config describes one broker endpoint and the behaviour of the Client bound
// to it. A Client adopts a deep copy at construction, so mutating a Config
// after New() has no effect on the running client.
type Config struct {
	// Host and Port address the broker. Host is required.
	Host string
	Port int

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// ClientID identifies this client to the broker.
	ClientID string

	// Keepalive is the MQTT keepalive interval in seconds.
	Keepalive int

	// CleanSession starts a fresh session on each connect.
	CleanSession bool

	// QoS is the default delivery guarantee for publishes and subscriptions.
	QoS int

	// TLS settings. UseTLS switches the broker URL to ssl://. When CAFile is
	// empty and TLSInsecure is set, the system trust store is used best-effort.
	UseTLS      bool
	CAFile      string
	CertFile    string
	KeyFile     string
	TLSVersion  string // "tlsv1.2" or "tlsv1.3"
	TLSInsecure bool

	// ConnectTimeout and MessageTimeout are in seconds.
	ConnectTimeout int
	MessageTimeout int

	// Reconnect policy handed to the transport. The client itself does not
	// implement backoff; it only surfaces the resulting status transitions.
	AutoReconnect bool
	ReconnectMin  int
	ReconnectMax  int

	// SubscribeTopics are subscribed automatically on every (re)connect.
	SubscribeTopics []string

	// Heartbeat drives the liveness publisher.
	Heartbeat HeartbeatConfig
}

// HeartbeatConfig controls the periodic liveness publish.
type HeartbeatConfig struct {
	// Enabled turns the heartbeat loop on.
	Enabled bool

	// Topic is where heartbeats are published.
	Topic string

	// Interval is the whole-second period between heartbeats.
	Interval int

	// Payload optionally replaces the generated heartbeat envelope.
	Payload string
}

// DefaultConfig returns a Config with sensible defaults. Host and ClientID
// must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		Keepalive:      DefaultKeepalive,
		CleanSession:   true,
		QoS:            DefaultQoS,
		ConnectTimeout: DefaultConnectTimeout,
		MessageTimeout: DefaultMessageTimeout,
		AutoReconnect:  true,
		ReconnectMin:   DefaultReconnectMin,
		ReconnectMax:   DefaultReconnectMax,
	}
}

// Clone returns a deep copy. Slice fields are copied so the clone shares no
// mutable state with the original.
func (c Config) Clone() Config {
	out := c
	if c.SubscribeTopics != nil {
		out.SubscribeTopics = make([]string, len(c.SubscribeTopics))
		copy(out.SubscribeTopics, c.SubscribeTopics)
	}
	return out
}

// Validate checks the configuration for values the client cannot work with.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: broker host is required", ErrConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: broker port %d out of range", ErrConfig, c.Port)
	}
	if c.QoS < 0 || c.QoS > 2 {
		return fmt.Errorf("%w: QoS %d (must be 0, 1 or 2)", ErrConfig, c.QoS)
	}
	if c.Heartbeat.Enabled {
		if c.Heartbeat.Topic == "" {
			return fmt.Errorf("%w: heartbeat enabled without a topic", ErrConfig)
		}
		if c.Heartbeat.Interval <= 0 {
			return fmt.Errorf("%w: heartbeat interval %d (must be positive)", ErrConfig, c.Heartbeat.Interval)
		}
	}
	return nil
}
