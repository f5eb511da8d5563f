package relay

import (
	"errors"
	"testing"

	"github.com/datalinkmq/datalink/pkg/rpc"
)

func TestNewEngineValidatesConfig(t *testing.T) {
	if _, err := NewEngine(Config{Enabled: true}); !errors.Is(err, ErrConfig) {
		t.Errorf("NewEngine() error = %v, want ErrConfig", err)
	}
}

func TestStartDisabled(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.Enabled = false

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrConfig) {
		t.Errorf("Start() error = %v, want ErrConfig", err)
	}
	if got := e.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
}

func TestStopIdleIsNoop(t *testing.T) {
	e, err := NewEngine(twoBrokerConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() on idle engine: %v", err)
	}
}

func TestConnectSecondaryRequiresReadiness(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.ConditionalRelay = true

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.state = StateRunning

	if err := e.ConnectSecondary(); !errors.Is(err, rpc.ErrNotConnected) {
		t.Errorf("ConnectSecondary() without readiness: error = %v, want ErrNotConnected", err)
	}

	// With readiness granted and no deferred slots the call is a no-op.
	e.secondaryReady = true
	if err := e.ConnectSecondary(); err != nil {
		t.Errorf("ConnectSecondary() with no deferred brokers: %v", err)
	}
}

func TestConnectSecondaryNotRunning(t *testing.T) {
	cfg := twoBrokerConfig()
	cfg.ConditionalRelay = true

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.secondaryReady = true

	if err := e.ConnectSecondary(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ConnectSecondary() on idle engine: error = %v, want ErrInvalidState", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestHandleMessageRuleScan(t *testing.T) {
	cfg := twoBrokerConfig()
	mustAddRule(t, &cfg, Rule{SourceBroker: 0, DestBroker: 1, Pattern: "sensors", DestTopic: "up/sensors"})
	mustAddRule(t, &cfg, Rule{SourceBroker: 0, DestBroker: 1, Pattern: "temp", DestTopic: "up/temperature"})
	mustAddRule(t, &cfg, Rule{SourceBroker: 1, DestBroker: 0, Pattern: "never", DestTopic: "x"})

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	// Exercise matching without live connections: matched forwards are
	// counted as drops because no destination is connected.
	e.state = StateRunning

	e.handleMessage(0, "sensors/temp", []byte("21.5"))

	stats := e.Statistics()
	// The topic contains both "sensors" and "temp"; the whole table is
	// scanned, so both rules fire. The third rule's source does not match.
	if stats.RuleMatches != 2 {
		t.Errorf("RuleMatches = %d, want 2", stats.RuleMatches)
	}
	if stats.MessagesDropped != 2 {
		t.Errorf("MessagesDropped = %d, want 2", stats.MessagesDropped)
	}
	if stats.MessagesRelayed != 0 {
		t.Errorf("MessagesRelayed = %d, want 0", stats.MessagesRelayed)
	}
}

func TestHandleMessageIgnoredWhenNotRunning(t *testing.T) {
	cfg := twoBrokerConfig()
	mustAddRule(t, &cfg, Rule{SourceBroker: 0, DestBroker: 1, Pattern: "sensors", DestTopic: "up/sensors"})

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	e.handleMessage(0, "sensors/temp", []byte("21.5"))
	if stats := e.Statistics(); stats.RuleMatches != 0 {
		t.Errorf("idle engine matched rules: %+v", stats)
	}
}

func TestMarkerConsumeOnce(t *testing.T) {
	cfg := twoBrokerConfig()
	mustAddRule(t, &cfg, Rule{
		SourceBroker:  0,
		DestBroker:    1,
		Pattern:       "commands",
		DestTopic:     "up/commands",
		Bidirectional: true,
		SourceTopic:   "commands",
	})

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	e.addMarker(1, "up/commands")
	if !e.consumeMarker(1, "up/commands") {
		t.Error("first consume missed the marker")
	}
	if e.consumeMarker(1, "up/commands") {
		t.Error("second consume found a marker again")
	}
}

func TestMarkerOnlyForEchoProneTopics(t *testing.T) {
	cfg := twoBrokerConfig()
	mustAddRule(t, &cfg, Rule{SourceBroker: 0, DestBroker: 1, Pattern: "sensors", DestTopic: "up/sensors"})

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// One-way destinations are never echoed back, so they must not grow
	// the marker table.
	e.addMarker(1, "up/sensors")
	if e.consumeMarker(1, "up/sensors") {
		t.Error("one-way destination was marked")
	}
}

func mustAddRule(t *testing.T, cfg *Config, r Rule) {
	t.Helper()
	if err := cfg.AddRule(r); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
}
