package relay

import (
	"fmt"

	"github.com/datalinkmq/datalink/pkg/rpc"
)

// Table limits.
const (
	// MaxBrokers caps the broker table, primary included.
	MaxBrokers = 16

	// MaxRules caps the rule table.
	MaxRules = 32
)

// BrokerConfig describes one broker slot in the relay table. Broker 0 is
// the primary; every other slot is a secondary.
type BrokerConfig struct {
	// Name labels the broker in logs and statistics.
	Name string `yaml:"name"`

	// Host and Port address the broker.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Username and Password are optional credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ClientID identifies the relay connection on this broker. When empty
	// one is derived from the broker name.
	ClientID string `yaml:"client_id"`

	// UseTLS switches the connection to TLS. CAFile optionally pins the
	// broker's CA.
	UseTLS bool   `yaml:"use_tls"`
	CAFile string `yaml:"ca_file"`

	// SubscribeTopics are the subscriptions installed on this broker. Rules
	// only see messages one of these subscriptions delivers.
	SubscribeTopics []string `yaml:"subscribe_topics"`
}

// Rule forwards messages from one broker to another. A rule matches a
// message when Pattern occurs anywhere in its topic.
type Rule struct {
	// SourceBroker and DestBroker index the broker table.
	SourceBroker int `yaml:"source_broker"`
	DestBroker   int `yaml:"dest_broker"`

	// Pattern is the substring a topic must contain. It is also installed
	// as a subscription filter on the source broker, so a rule alone is
	// enough to receive the traffic it forwards; patterns meant to match
	// several topics need a broker subscription covering them.
	Pattern string `yaml:"pattern"`

	// DestTopic is where matched messages are republished. The effective
	// destination is Prefix + DestTopic, falling back to the engine prefix
	// when Prefix is empty.
	DestTopic string `yaml:"dest_topic"`
	Prefix    string `yaml:"prefix"`

	// Bidirectional also forwards DestTopic traffic on the destination
	// broker back to SourceTopic on the source broker. It requires
	// SourceTopic to be a concrete topic, not a pattern.
	Bidirectional bool   `yaml:"bidirectional"`
	SourceTopic   string `yaml:"source_topic"`
}

// Config is the relay engine configuration.
type Config struct {
	// Enabled gates the whole engine; a disabled engine refuses to start.
	Enabled bool `yaml:"enabled"`

	// ConditionalRelay defers secondary broker connections until
	// SetSecondaryReady(true).
	ConditionalRelay bool `yaml:"conditional_relay"`

	// Prefix is prepended to destination topics of rules without their own.
	Prefix string `yaml:"prefix"`

	Brokers []BrokerConfig `yaml:"brokers"`
	Rules   []Rule         `yaml:"rules"`
}

// AddBroker appends a broker slot and returns its index.
func (c *Config) AddBroker(b BrokerConfig) (int, error) {
	if len(c.Brokers) >= MaxBrokers {
		return 0, fmt.Errorf("%w: %d brokers", ErrLimitExceeded, MaxBrokers)
	}
	if b.Host == "" {
		return 0, fmt.Errorf("%w: broker host is required", ErrConfig)
	}
	if b.Port <= 0 || b.Port > 65535 {
		return 0, fmt.Errorf("%w: broker port %d out of range", ErrConfig, b.Port)
	}
	c.Brokers = append(c.Brokers, b)
	return len(c.Brokers) - 1, nil
}

// AddRule appends a forwarding rule. Broker indices are validated against
// the current broker table, so brokers must be added first.
func (c *Config) AddRule(r Rule) error {
	if len(c.Rules) >= MaxRules {
		return fmt.Errorf("%w: %d rules", ErrLimitExceeded, MaxRules)
	}
	if err := c.validateRule(r); err != nil {
		return err
	}
	c.Rules = append(c.Rules, r)
	return nil
}

// SetPrefix sets the engine-wide destination prefix.
func (c *Config) SetPrefix(prefix string) {
	c.Prefix = prefix
}

func (c *Config) validateRule(r Rule) error {
	if r.SourceBroker < 0 || r.SourceBroker >= len(c.Brokers) {
		return fmt.Errorf("%w: source %d of %d brokers", ErrBrokerIndex, r.SourceBroker, len(c.Brokers))
	}
	if r.DestBroker < 0 || r.DestBroker >= len(c.Brokers) {
		return fmt.Errorf("%w: dest %d of %d brokers", ErrBrokerIndex, r.DestBroker, len(c.Brokers))
	}
	if r.SourceBroker == r.DestBroker {
		return fmt.Errorf("%w: rule relays a broker onto itself", ErrConfig)
	}
	if r.Pattern == "" {
		return fmt.Errorf("%w: rule pattern is required", ErrConfig)
	}
	if r.DestTopic == "" {
		return fmt.Errorf("%w: rule destination topic is required", ErrConfig)
	}
	if r.Bidirectional && r.SourceTopic == "" {
		return fmt.Errorf("%w: bidirectional rule needs a concrete source topic", ErrConfig)
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	if c.Brokers != nil {
		out.Brokers = make([]BrokerConfig, len(c.Brokers))
		copy(out.Brokers, c.Brokers)
		for i := range out.Brokers {
			if topics := c.Brokers[i].SubscribeTopics; topics != nil {
				out.Brokers[i].SubscribeTopics = make([]string, len(topics))
				copy(out.Brokers[i].SubscribeTopics, topics)
			}
		}
	}
	if c.Rules != nil {
		out.Rules = make([]Rule, len(c.Rules))
		copy(out.Rules, c.Rules)
	}
	return out
}

// Validate checks the whole table. It re-validates rules so configurations
// built outside AddBroker/AddRule (for example unmarshalled from YAML) get
// the same checks.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: at least one broker is required", ErrConfig)
	}
	if len(c.Brokers) > MaxBrokers {
		return fmt.Errorf("%w: %d brokers (max %d)", ErrLimitExceeded, len(c.Brokers), MaxBrokers)
	}
	if len(c.Rules) > MaxRules {
		return fmt.Errorf("%w: %d rules (max %d)", ErrLimitExceeded, len(c.Rules), MaxRules)
	}
	for i, b := range c.Brokers {
		if b.Host == "" {
			return fmt.Errorf("%w: broker %d has no host", ErrConfig, i)
		}
		if b.Port <= 0 || b.Port > 65535 {
			return fmt.Errorf("%w: broker %d port %d out of range", ErrConfig, i, b.Port)
		}
	}
	for i, r := range c.Rules {
		if err := c.validateRule(r); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// clientConfig maps one broker slot onto a transport client configuration.
// Besides the broker's own subscriptions it installs the source topic of
// every rule fed by this broker and the reverse subscriptions bidirectional
// rules need on it, so a rule table alone produces a working relay.
func (c Config) clientConfig(index int) rpc.Config {
	b := c.Brokers[index]

	cfg := rpc.DefaultConfig()
	cfg.Host = b.Host
	cfg.Port = b.Port
	cfg.Username = b.Username
	cfg.Password = b.Password
	cfg.UseTLS = b.UseTLS
	cfg.CAFile = b.CAFile
	cfg.ClientID = b.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("relay-%s-%d", b.Name, index)
	}

	seen := make(map[string]bool)
	add := func(topic string) {
		if topic == "" || seen[topic] {
			return
		}
		seen[topic] = true
		cfg.SubscribeTopics = append(cfg.SubscribeTopics, topic)
	}
	for _, topic := range b.SubscribeTopics {
		add(topic)
	}
	for _, r := range c.Rules {
		if r.SourceBroker == index {
			add(r.Pattern)
		}
		if r.Bidirectional && r.DestBroker == index {
			add(c.destTopic(r))
		}
	}
	return cfg
}

// destTopic resolves a rule's effective destination topic.
func (c Config) destTopic(r Rule) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = c.Prefix
	}
	return prefix + r.DestTopic
}
