package rpc

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Stability guard and dispatch constants.
const (
	// stabilityPollInterval is the granularity of the Start() connection poll.
	stabilityPollInterval = 100 * time.Millisecond

	// stabilityPollLimit bounds the poll at ~10 seconds.
	stabilityPollLimit = 100

	// stabilityRequired is how many consecutive connected polls count as a
	// stable connection.
	stabilityRequired = 5

	// inboundQueueSize buffers inbound messages between the network callback
	// and the dispatch goroutine. When the queue is full the message is
	// handled inline instead of being dropped.
	inboundQueueSize = 256

	// sweepInterval is the period of the pending-request timeout sweep.
	sweepInterval = time.Second
)

// MessageHandler receives messages that are not correlated responses.
// The payload is the handler's own copy.
type MessageHandler func(topic string, payload []byte)

// ConnectionCallback is invoked on every connection status transition.
type ConnectionCallback func(status Status)

// ResponseHandler receives the outcome of an asynchronous call. It is
// invoked exactly once per call: with the correlated response, or with a
// locally built failure on timeout or shutdown.
type ResponseHandler func(resp *Response)

// Logger is the minimal logging surface the client needs.
// Compatible with slog.Logger and the infrastructure logging wrapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// inboundMessage carries one received message to the dispatch goroutine.
type inboundMessage struct {
	topic   string
	payload []byte
}

// Client owns one broker connection and layers the RPC convention on top of
// it.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Status and statistics are guarded by one mutex, so a snapshot is
//     always mutually consistent.
type Client struct {
	cfg    Config
	topics TopicConfig

	paho pahomqtt.Client

	// mu guards status, flags, counters and the dispatch plumbing handles.
	mu        sync.Mutex
	status    Status
	connected bool
	running   bool
	startTime time.Time
	stats     Statistics
	inbound   chan inboundMessage
	done      chan struct{}

	wg sync.WaitGroup

	// handlerMu guards the user-settable callbacks.
	handlerMu      sync.RWMutex
	messageHandler MessageHandler
	connCallback   ConnectionCallback
	logger         Logger

	// pendingMu guards the in-flight call table.
	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	// hbMu guards the heartbeat loop handles.
	hbMu   sync.Mutex
	hbStop chan struct{}
	hbDone chan struct{}
}

// New creates a client for the given endpoint and topic convention.
// Both configs are deep-copied; the caller may mutate or discard the
// originals afterwards without affecting the client.
func New(cfg Config, topics TopicConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg.Clone(),
		topics:  topics.Clone(),
		status:  StatusDisconnected,
		pending: make(map[string]*pendingRequest),
	}, nil
}

// Connect initiates the broker connection and returns immediately. The
// authoritative Connected or Error transition arrives via the connection
// callback once the transport handshake completes. Calling Connect on an
// already connected client is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.cfg.Host == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: no broker endpoint configured", ErrNotConnected)
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting

	if c.paho == nil {
		opts, err := buildClientOptions(c.cfg)
		if err != nil {
			c.status = StatusError
			c.mu.Unlock()
			return err
		}
		opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.handleConnect()
		})
		opts.SetConnectionLostHandler(func(_ pahomqtt.Client, lostErr error) {
			c.handleConnectionLost(lostErr)
		})
		opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
			c.handleReconnecting()
		})
		opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
			c.handleInbound(msg.Topic(), msg.Payload())
		})
		c.paho = pahomqtt.NewClient(opts)
	}
	paho := c.paho
	c.mu.Unlock()

	token := paho.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.handleConnectionLost(fmt.Errorf("%w: connect: %w", ErrTransport, err))
		}
	}()

	return nil
}

// handleConnect runs on every successful (re)connect: it records the
// transition, restores the configured subscriptions and notifies the
// connection callback.
func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	c.status = StatusConnected
	c.stats.ConnectionCount++
	c.stats.LastActivity = time.Now()
	paho := c.paho
	c.mu.Unlock()

	for _, topic := range c.cfg.SubscribeTopics {
		token := paho.Subscribe(topic, byte(c.cfg.QoS), nil)
		if !token.WaitTimeout(defaultTokenTimeout) || token.Error() != nil {
			c.logf().Warn("configured subscription failed", "topic", topic, "error", token.Error())
			c.incrementErrors()
			continue
		}
		c.logf().Debug("subscribed", "topic", topic, "qos", c.cfg.QoS)
	}

	c.notifyConnection(StatusConnected)
}

// handleConnectionLost runs on unexpected connection loss. The heartbeat is
// halted immediately so it does not publish into an outage.
func (c *Client) handleConnectionLost(err error) {
	c.mu.Lock()
	c.connected = false
	c.status = StatusError
	c.stats.ErrorsCount++
	c.mu.Unlock()

	c.signalHeartbeatStop()
	c.logf().Warn("connection lost", "error", err)
	c.notifyConnection(StatusError)
}

func (c *Client) handleReconnecting() {
	c.mu.Lock()
	c.connected = false
	c.status = StatusReconnecting
	c.mu.Unlock()

	c.notifyConnection(StatusReconnecting)
}

// Disconnect gracefully closes the broker connection. Idempotent; a
// graceful disconnect leaves the client Disconnected, not Error.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.paho == nil || !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.status = StatusDisconnected
	paho := c.paho
	c.mu.Unlock()

	c.signalHeartbeatStop()
	paho.Disconnect(disconnectQuiesce)
	c.notifyConnection(StatusDisconnected)
	return nil
}

// Start begins background processing: the inbound dispatch goroutine and the
// pending-request sweeper. It then polls up to ~10s for the connection to
// hold Connected for several consecutive polls, and starts the heartbeat
// only once that stability guard has passed.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.startTime = time.Now()
	c.done = make(chan struct{})
	c.inbound = make(chan inboundMessage, inboundQueueSize)
	done, inbound := c.done, c.inbound
	c.mu.Unlock()

	c.wg.Add(2)
	go c.dispatchLoop(done, inbound)
	go c.sweepLoop(done)

	if c.waitForStableConnection(done) {
		if c.cfg.Heartbeat.Enabled {
			c.startHeartbeat()
		}
	} else if c.cfg.Heartbeat.Enabled {
		c.logf().Warn("connection not stable, heartbeat not started")
	}

	return nil
}

// waitForStableConnection reports whether the connection held Connected for
// stabilityRequired consecutive polls within the poll limit.
func (c *Client) waitForStableConnection(done <-chan struct{}) bool {
	consecutive := 0
	for i := 0; i < stabilityPollLimit; i++ {
		if c.IsConnected() {
			consecutive++
			if consecutive >= stabilityRequired {
				return true
			}
		} else {
			consecutive = 0
		}
		select {
		case <-done:
			return false
		case <-time.After(stabilityPollInterval):
		}
	}
	return false
}

// Stop halts background processing. It joins the heartbeat, dispatcher and
// sweeper before returning, and fails any still-pending calls, so the client
// may be discarded immediately afterwards. Idempotent.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	done := c.done
	c.mu.Unlock()

	c.stopHeartbeat()
	close(done)
	c.wg.Wait()
	c.failAllPending("client stopped")
	return nil
}

// Close stops background processing and disconnects.
func (c *Client) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}
	return c.Disconnect()
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsRunning reports whether the processing loop has been started and not
// yet stopped.
func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// GetStatus returns the current lifecycle status.
func (c *Client) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ClientID returns the configured client identifier.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// TopicConfig returns a copy of the client's topic convention.
func (c *Client) TopicConfig() TopicConfig {
	return c.topics.Clone()
}

// SetMessageHandler registers the handler for inbound messages that are not
// correlated RPC responses.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.handlerMu.Lock()
	c.messageHandler = handler
	c.handlerMu.Unlock()
}

// SetConnectionCallback registers the callback invoked on status transitions.
func (c *Client) SetConnectionCallback(callback ConnectionCallback) {
	c.handlerMu.Lock()
	c.connCallback = callback
	c.handlerMu.Unlock()
}

// SetLogger sets a logger for connection and dispatch events.
// Without one the client is silent.
func (c *Client) SetLogger(logger Logger) {
	c.handlerMu.Lock()
	c.logger = logger
	c.handlerMu.Unlock()
}

// logf returns the current logger, or a no-op one.
func (c *Client) logf() Logger {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	if c.logger == nil {
		return nopLogger{}
	}
	return c.logger
}

func (c *Client) notifyConnection(status Status) {
	c.handlerMu.RLock()
	callback := c.connCallback
	c.handlerMu.RUnlock()
	if callback != nil {
		callback(status)
	}
}

func (c *Client) incrementErrors() {
	c.mu.Lock()
	c.stats.ErrorsCount++
	c.mu.Unlock()
}

// handleInbound is the single ingress for received messages. It runs on the
// transport's goroutine, so it only copies the payload and hands the event
// to the dispatch goroutine; when the queue is full or the client is not
// running, the message is handled inline rather than dropped.
func (c *Client) handleInbound(topic string, payload []byte) {
	c.mu.Lock()
	c.stats.MessagesReceived++
	c.stats.LastActivity = time.Now()
	running := c.running
	inbound := c.inbound
	c.mu.Unlock()

	data := make([]byte, len(payload))
	copy(data, payload)
	msg := inboundMessage{topic: topic, payload: data}

	if running && inbound != nil {
		select {
		case inbound <- msg:
			return
		default:
		}
	}
	c.dispatch(msg)
}

func (c *Client) dispatchLoop(done <-chan struct{}, inbound <-chan inboundMessage) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case msg := <-inbound:
			c.dispatch(msg)
		}
	}
}

// dispatch correlates responses against the pending table first; everything
// else goes to the message handler.
func (c *Client) dispatch(msg inboundMessage) {
	if c.correlate(msg.topic, msg.payload) {
		return
	}

	c.handlerMu.RLock()
	handler := c.messageHandler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(msg.topic, msg.payload)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
