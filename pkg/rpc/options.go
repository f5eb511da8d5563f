package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transport constants.
const (
	// defaultTokenTimeout bounds publish/subscribe acknowledgment waits.
	defaultTokenTimeout = 5 * time.Second

	// disconnectQuiesce is the time allowed for in-flight work on disconnect,
	// in milliseconds (paho API).
	disconnectQuiesce = 250

	// maxQoS is the highest QoS level MQTT defines.
	maxQoS = 2
)

// buildClientOptions creates paho options from a client Config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on the TLS setting)
//   - Client ID and optional credentials
//   - Clean session and keepalive
//   - Auto-reconnect with bounded backoff, per the configured policy
//   - TLS (CA-only, CA plus client certificate, or system trust)
func buildClientOptions(cfg Config) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(cfg.CleanSession)
	opts.SetKeepAlive(time.Duration(cfg.Keepalive) * time.Second)
	opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)

	opts.SetAutoReconnect(cfg.AutoReconnect)
	if cfg.AutoReconnect {
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(time.Duration(cfg.ReconnectMin) * time.Second)
		opts.SetMaxReconnectInterval(time.Duration(cfg.ReconnectMax) * time.Second)
	}

	if cfg.UseTLS {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// newTLSConfig builds the TLS configuration for a broker connection.
//
// Three shapes are supported: a configured CA bundle (optionally with a
// client certificate for mutual TLS), and, when no CA is supplied and
// insecure mode is requested, a best-effort fall through to the system
// trust store with verification disabled.
func newTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.TLSInsecure, //nolint:gosec // Explicit opt-in for test brokers
	}

	switch cfg.TLSVersion {
	case "", "tlsv1.2":
		tlsConfig.MinVersion = tls.VersionTLS12
	case "tlsv1.3":
		tlsConfig.MinVersion = tls.VersionTLS13
	default:
		return nil, fmt.Errorf("%w: unsupported TLS version %q", ErrConfig, cfg.TLSVersion)
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in CA file %s", ErrConfig, cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	// With no CAFile the system trust store applies, which is the intended
	// fallback for insecure mode.

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %w", ErrConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
