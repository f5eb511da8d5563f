package relay

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/datalinkmq/datalink/pkg/rpc"
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Statistics is a snapshot of the engine's forwarding counters.
type Statistics struct {
	// MessagesRelayed counts successful forwards.
	MessagesRelayed uint64

	// MessagesDropped counts forwards that could not be delivered, usually
	// because the destination broker was not connected.
	MessagesDropped uint64

	// RuleMatches counts rule hits; one message can score several.
	RuleMatches uint64

	// LoopsSuppressed counts self-published echoes the engine swallowed.
	LoopsSuppressed uint64
}

const (
	// brokerConnectWait bounds how long the engine polls each broker for a
	// live connection after initiating it.
	brokerConnectWait = 5 * time.Second

	connectPollInterval = 100 * time.Millisecond
)

// Engine relays messages between brokers according to its rule table.
// All methods are safe for concurrent use.
type Engine struct {
	cfg Config

	mu             sync.Mutex
	state          State
	secondaryReady bool
	clients        []*rpc.Client
	stats          Statistics
	logger         rpc.Logger

	// markerMu guards the self-publish markers used for loop suppression.
	// Only topics a bidirectional rule can echo back are ever marked, so
	// the marker table stays bounded.
	markerMu sync.Mutex
	markers  map[string]int
	markable map[string]bool
}

// NewEngine validates the configuration and builds an idle engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg.Clone(),
		state:    StateIdle,
		markers:  make(map[string]int),
		markable: make(map[string]bool),
		logger:   nopLogger{},
	}
	for _, r := range e.cfg.Rules {
		if r.Bidirectional {
			e.markable[markerKey(r.DestBroker, e.cfg.destTopic(r))] = true
			e.markable[markerKey(r.SourceBroker, r.SourceTopic)] = true
		}
	}
	return e, nil
}

// SetLogger sets a logger for relay events. Without one the engine is
// silent.
func (e *Engine) SetLogger(logger rpc.Logger) {
	e.mu.Lock()
	if logger == nil {
		logger = nopLogger{}
	}
	e.logger = logger
	e.mu.Unlock()
}

func (e *Engine) log() rpc.Logger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logger
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SecondaryReady reports whether secondary activation has been granted.
func (e *Engine) SecondaryReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secondaryReady
}

// Statistics returns a snapshot of the forwarding counters.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Start connects and starts the broker table and begins relaying. The
// primary broker must come up within a bounded wait; secondaries connect
// best-effort, and with conditional relaying they are deferred entirely
// until SetSecondaryReady(true).
func (e *Engine) Start() error {
	e.mu.Lock()
	if !e.cfg.Enabled {
		e.mu.Unlock()
		return fmt.Errorf("%w: relay is disabled", ErrConfig)
	}
	if e.state != StateIdle {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, state)
	}
	e.state = StateStarting
	e.clients = make([]*rpc.Client, len(e.cfg.Brokers))
	e.mu.Unlock()

	if err := e.connectBroker(0); err != nil {
		e.teardown()
		return fmt.Errorf("primary broker: %w", err)
	}

	if !e.cfg.ConditionalRelay {
		for i := 1; i < len(e.cfg.Brokers); i++ {
			if err := e.connectBroker(i); err != nil {
				e.log().Warn("secondary broker connect failed",
					"broker", e.brokerName(i), "error", err)
			}
		}
	}

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	e.log().Info("relay running",
		"brokers", len(e.cfg.Brokers),
		"rules", len(e.cfg.Rules),
		"conditional", e.cfg.ConditionalRelay)
	return nil
}

// SetSecondaryReady grants or revokes secondary activation. Granting it
// while running connects any secondary brokers still deferred by
// conditional relaying. Revoking only clears the flag; established
// connections are left alone.
func (e *Engine) SetSecondaryReady(ready bool) {
	e.mu.Lock()
	e.secondaryReady = ready
	running := e.state == StateRunning
	conditional := e.cfg.ConditionalRelay
	e.mu.Unlock()

	if ready && running && conditional {
		if err := e.ConnectSecondary(); err != nil {
			e.log().Warn("secondary activation failed", "error", err)
		}
	}
}

// ConnectSecondary connects every secondary broker still deferred by
// conditional relaying. It fails until readiness has been granted via
// SetSecondaryReady, and is a no-op once all secondaries are connected.
func (e *Engine) ConnectSecondary() error {
	e.mu.Lock()
	if !e.secondaryReady {
		e.mu.Unlock()
		return fmt.Errorf("%w: secondary activation not granted", rpc.ErrNotConnected)
	}
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot connect secondaries from %s", ErrInvalidState, state)
	}
	var deferred []int
	for i := 1; i < len(e.clients); i++ {
		if e.clients[i] == nil {
			deferred = append(deferred, i)
		}
	}
	e.mu.Unlock()

	for _, i := range deferred {
		if err := e.connectBroker(i); err != nil {
			e.log().Warn("secondary broker connect failed",
				"broker", e.brokerName(i), "error", err)
		}
	}
	if len(deferred) > 0 {
		e.log().Info("secondary brokers activated", "count", len(deferred))
	}
	return nil
}

// Stop disconnects every broker and returns the engine to idle. Stopping an
// idle engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateStopping {
		e.mu.Unlock()
		return fmt.Errorf("%w: already stopping", ErrInvalidState)
	}
	e.state = StateStopping
	e.mu.Unlock()

	e.teardown()
	e.log().Info("relay stopped")
	return nil
}

// Close is Stop for defer sites; it never fails.
func (e *Engine) Close() {
	_ = e.Stop()
}

func (e *Engine) teardown() {
	e.mu.Lock()
	clients := e.clients
	e.clients = nil
	e.state = StateIdle
	e.mu.Unlock()

	for _, c := range clients {
		if c != nil {
			_ = c.Close()
		}
	}

	e.markerMu.Lock()
	e.markers = make(map[string]int)
	e.markerMu.Unlock()
}

// connectBroker builds the transport client for one broker slot, connects
// and starts it, then polls for a live connection. On timeout the client
// stays in the table; the transport's auto-reconnect keeps trying.
func (e *Engine) connectBroker(index int) error {
	cfg := e.cfg.clientConfig(index)
	client, err := rpc.New(cfg, rpc.DefaultTopicConfig())
	if err != nil {
		return err
	}
	client.SetLogger(e.log())
	client.SetMessageHandler(func(topic string, payload []byte) {
		e.handleMessage(index, topic, payload)
	})

	e.mu.Lock()
	if e.clients == nil || index >= len(e.clients) {
		e.mu.Unlock()
		return fmt.Errorf("%w: engine is not starting", ErrInvalidState)
	}
	e.clients[index] = client
	e.mu.Unlock()

	if err := client.Connect(); err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		return err
	}

	deadline := time.Now().Add(brokerConnectWait)
	for !client.IsConnected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: broker %s did not connect", rpc.ErrTimeout, e.brokerName(index))
		}
		time.Sleep(connectPollInterval)
	}
	return nil
}

func (e *Engine) client(index int) *rpc.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clients == nil || index >= len(e.clients) {
		return nil
	}
	return e.clients[index]
}

func (e *Engine) brokerName(index int) string {
	b := e.cfg.Brokers[index]
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// handleMessage runs for every message a broker connection delivers. Own
// relay echoes are swallowed first; everything else is scanned against the
// full rule table.
func (e *Engine) handleMessage(source int, topic string, payload []byte) {
	if e.State() != StateRunning {
		return
	}
	if e.consumeMarker(source, topic) {
		e.mu.Lock()
		e.stats.LoopsSuppressed++
		e.mu.Unlock()
		return
	}

	for i := range e.cfg.Rules {
		r := &e.cfg.Rules[i]

		if r.SourceBroker == source && strings.Contains(topic, r.Pattern) {
			e.mu.Lock()
			e.stats.RuleMatches++
			e.mu.Unlock()
			e.forward(r.DestBroker, e.cfg.destTopic(*r), payload)
		}

		if r.Bidirectional && r.DestBroker == source && topic == e.cfg.destTopic(*r) {
			e.mu.Lock()
			e.stats.RuleMatches++
			e.mu.Unlock()
			e.forward(r.SourceBroker, r.SourceTopic, payload)
		}
	}
}

// forward publishes one relayed copy, marking it so the echo is not
// relayed again.
func (e *Engine) forward(dest int, topic string, payload []byte) {
	client := e.client(dest)
	if client == nil || !client.IsConnected() {
		e.mu.Lock()
		e.stats.MessagesDropped++
		e.mu.Unlock()
		e.log().Debug("relay drop, destination not connected",
			"broker", e.brokerName(dest), "topic", topic)
		return
	}

	e.addMarker(dest, topic)
	if err := client.Publish(topic, payload); err != nil {
		e.consumeMarker(dest, topic)
		e.mu.Lock()
		e.stats.MessagesDropped++
		e.mu.Unlock()
		e.log().Warn("relay publish failed",
			"broker", e.brokerName(dest), "topic", topic, "error", err)
		return
	}

	e.mu.Lock()
	e.stats.MessagesRelayed++
	e.mu.Unlock()
}

func markerKey(broker int, topic string) string {
	return fmt.Sprintf("%d|%s", broker, topic)
}

func (e *Engine) addMarker(broker int, topic string) {
	key := markerKey(broker, topic)
	e.markerMu.Lock()
	if e.markable[key] {
		e.markers[key]++
	}
	e.markerMu.Unlock()
}

// consumeMarker reports whether an outstanding self-publish marker existed
// for the broker and topic, removing one if so.
func (e *Engine) consumeMarker(broker int, topic string) bool {
	key := markerKey(broker, topic)
	e.markerMu.Lock()
	defer e.markerMu.Unlock()
	n, ok := e.markers[key]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(e.markers, key)
	} else {
		e.markers[key] = n - 1
	}
	return true
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
