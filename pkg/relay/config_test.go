package relay

import (
	"errors"
	"fmt"
	"testing"
)

func twoBrokerConfig() Config {
	cfg := Config{Enabled: true}
	cfg.Brokers = []BrokerConfig{
		{Name: "primary", Host: "127.0.0.1", Port: 1883},
		{Name: "upstream", Host: "127.0.0.1", Port: 1884},
	}
	return cfg
}

func TestAddBroker(t *testing.T) {
	var cfg Config

	idx, err := cfg.AddBroker(BrokerConfig{Host: "a.local", Port: 1883})
	if err != nil {
		t.Fatalf("AddBroker() error = %v", err)
	}
	if idx != 0 {
		t.Errorf("first broker index = %d, want 0", idx)
	}

	idx, err = cfg.AddBroker(BrokerConfig{Host: "b.local", Port: 1883})
	if err != nil {
		t.Fatalf("AddBroker() error = %v", err)
	}
	if idx != 1 {
		t.Errorf("second broker index = %d, want 1", idx)
	}
}

func TestAddBrokerValidation(t *testing.T) {
	var cfg Config

	if _, err := cfg.AddBroker(BrokerConfig{Port: 1883}); !errors.Is(err, ErrConfig) {
		t.Errorf("missing host: error = %v, want ErrConfig", err)
	}
	if _, err := cfg.AddBroker(BrokerConfig{Host: "a.local", Port: 0}); !errors.Is(err, ErrConfig) {
		t.Errorf("bad port: error = %v, want ErrConfig", err)
	}
}

func TestAddBrokerLimit(t *testing.T) {
	var cfg Config
	for i := 0; i < MaxBrokers; i++ {
		if _, err := cfg.AddBroker(BrokerConfig{Host: fmt.Sprintf("b%d.local", i), Port: 1883}); err != nil {
			t.Fatalf("AddBroker(%d) error = %v", i, err)
		}
	}

	if _, err := cfg.AddBroker(BrokerConfig{Host: "extra.local", Port: 1883}); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("broker %d: error = %v, want ErrLimitExceeded", MaxBrokers, err)
	}
}

func TestAddRuleValidation(t *testing.T) {
	cfg := twoBrokerConfig()

	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{
			"valid",
			Rule{SourceBroker: 0, DestBroker: 1, Pattern: "sensors", DestTopic: "up/sensors"},
			nil,
		},
		{
			"source out of range",
			Rule{SourceBroker: 2, DestBroker: 1, Pattern: "x", DestTopic: "y"},
			ErrBrokerIndex,
		},
		{
			"negative dest",
			Rule{SourceBroker: 0, DestBroker: -1, Pattern: "x", DestTopic: "y"},
			ErrBrokerIndex,
		},
		{
			"self relay",
			Rule{SourceBroker: 0, DestBroker: 0, Pattern: "x", DestTopic: "y"},
			ErrConfig,
		},
		{
			"missing pattern",
			Rule{SourceBroker: 0, DestBroker: 1, DestTopic: "y"},
			ErrConfig,
		},
		{
			"missing dest topic",
			Rule{SourceBroker: 0, DestBroker: 1, Pattern: "x"},
			ErrConfig,
		},
		{
			"bidirectional without source topic",
			Rule{SourceBroker: 0, DestBroker: 1, Pattern: "x", DestTopic: "y", Bidirectional: true},
			ErrConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg.Clone()
			err := c.AddRule(tt.rule)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("AddRule() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddRule() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddRuleLimit(t *testing.T) {
	cfg := twoBrokerConfig()
	for i := 0; i < MaxRules; i++ {
		rule := Rule{SourceBroker: 0, DestBroker: 1, Pattern: fmt.Sprintf("p%d", i), DestTopic: "d"}
		if err := cfg.AddRule(rule); err != nil {
			t.Fatalf("AddRule(%d) error = %v", i, err)
		}
	}

	err := cfg.AddRule(Rule{SourceBroker: 0, DestBroker: 1, Pattern: "extra", DestTopic: "d"})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("rule %d: error = %v, want ErrLimitExceeded", MaxRules, err)
	}
}

func TestDestTopicPrefixPrecedence(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.SetPrefix("site-a/")

	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{
			"rule prefix wins",
			Rule{Prefix: "rack-1/", DestTopic: "sensors"},
			"rack-1/sensors",
		},
		{
			"engine prefix fallback",
			Rule{DestTopic: "sensors"},
			"site-a/sensors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.destTopic(tt.rule); got != tt.want {
				t.Errorf("destTopic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDestTopicNoPrefix(t *testing.T) {
	cfg := twoBrokerConfig()
	if got := cfg.destTopic(Rule{DestTopic: "sensors"}); got != "sensors" {
		t.Errorf("destTopic() = %q, want sensors", got)
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.Brokers[0].SubscribeTopics = []string{"a/#"}
	if err := cfg.AddRule(Rule{SourceBroker: 0, DestBroker: 1, Pattern: "a", DestTopic: "b"}); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	clone := cfg.Clone()
	cfg.Brokers[0].SubscribeTopics[0] = "mutated"
	cfg.Rules[0].Pattern = "mutated"

	if clone.Brokers[0].SubscribeTopics[0] != "a/#" {
		t.Errorf("clone subscription mutated: %q", clone.Brokers[0].SubscribeTopics[0])
	}
	if clone.Rules[0].Pattern != "a" {
		t.Errorf("clone rule mutated: %q", clone.Rules[0].Pattern)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("no brokers", func(t *testing.T) {
		cfg := Config{Enabled: true}
		if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("Validate() error = %v, want ErrConfig", err)
		}
	})

	t.Run("unmarshalled rules get checked", func(t *testing.T) {
		cfg := twoBrokerConfig()
		cfg.Rules = []Rule{{SourceBroker: 0, DestBroker: 5, Pattern: "x", DestTopic: "y"}}
		if err := cfg.Validate(); !errors.Is(err, ErrBrokerIndex) {
			t.Errorf("Validate() error = %v, want ErrBrokerIndex", err)
		}
	})
}

func TestClientConfigRuleSourceSubscriptions(t *testing.T) {
	cfg := twoBrokerConfig()
	if err := cfg.AddRule(Rule{SourceBroker: 0, DestBroker: 1, Pattern: "sensors/temp", DestTopic: "up/sensors"}); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	// A rule alone must install its source topic on the source broker.
	primary := cfg.clientConfig(0)
	found := false
	for _, topic := range primary.SubscribeTopics {
		if topic == "sensors/temp" {
			found = true
		}
	}
	if !found {
		t.Errorf("source broker subscriptions %v lack the rule source topic", primary.SubscribeTopics)
	}

	up := cfg.clientConfig(1)
	for _, topic := range up.SubscribeTopics {
		if topic == "sensors/temp" {
			t.Errorf("destination broker unexpectedly subscribes %q", topic)
		}
	}
}

func TestClientConfigDeduplicatesSubscriptions(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.Brokers[0].SubscribeTopics = []string{"sensors/temp"}
	if err := cfg.AddRule(Rule{SourceBroker: 0, DestBroker: 1, Pattern: "sensors/temp", DestTopic: "up/sensors"}); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	primary := cfg.clientConfig(0)
	count := 0
	for _, topic := range primary.SubscribeTopics {
		if topic == "sensors/temp" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("subscription installed %d times, want 1: %v", count, primary.SubscribeTopics)
	}
}

func TestClientConfigReverseSubscriptions(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.Brokers[1].SubscribeTopics = []string{"up/#"}
	if err := cfg.AddRule(Rule{
		SourceBroker:  0,
		DestBroker:    1,
		Pattern:       "commands",
		DestTopic:     "up/commands",
		Bidirectional: true,
		SourceTopic:   "commands",
	}); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	up := cfg.clientConfig(1)
	found := false
	for _, topic := range up.SubscribeTopics {
		if topic == "up/commands" {
			found = true
		}
	}
	if !found {
		t.Errorf("destination broker subscriptions %v lack the reverse topic", up.SubscribeTopics)
	}

	// The source broker gets no reverse subscription from this rule.
	primary := cfg.clientConfig(0)
	for _, topic := range primary.SubscribeTopics {
		if topic == "up/commands" {
			t.Errorf("source broker unexpectedly subscribes %q", topic)
		}
	}
}
