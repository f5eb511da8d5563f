package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Local error codes and messages for responses the client builds itself.
const (
	errorCodeTimeout  = -1
	errorCodeShutdown = -1

	timeoutMessage = "request timed out"
)

// pendingRequest is one in-flight call awaiting its response.
type pendingRequest struct {
	transactionID string
	responseTopic string
	deadline      time.Time
	callback      ResponseHandler
}

// CallAsync issues a request and returns immediately. The handler fires
// exactly once: with the correlated response, or with a synthesised failure
// when the deadline passes or the client is stopped. The returned string is
// the call's transaction ID.
func (c *Client) CallAsync(req *Request, handler ResponseHandler) (string, error) {
	if req == nil || handler == nil {
		return "", fmt.Errorf("%w: request and handler are required", ErrInvalidParam)
	}
	if req.Method == "" || req.Service == "" {
		return "", fmt.Errorf("%w: method and service are required", ErrInvalidParam)
	}
	if !c.IsConnected() {
		return "", fmt.Errorf("%w: client is not connected", ErrInvalidParam)
	}

	if req.TransactionID == "" {
		req.TransactionID = NewTransactionID()
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultRequestTimeout
	}
	req.ResponseTopic = c.topics.ResponseTopic(req.Service, req.Method, req.TransactionID)

	payload, err := req.Encode()
	if err != nil {
		return "", err
	}

	// Register before subscribing or publishing so a fast responder cannot
	// beat the pending table.
	pending := &pendingRequest{
		transactionID: req.TransactionID,
		responseTopic: req.ResponseTopic,
		deadline:      time.Now().Add(req.Timeout),
		callback:      handler,
	}
	c.pendingMu.Lock()
	c.pending[req.TransactionID] = pending
	c.pendingMu.Unlock()

	if err := c.Subscribe(req.ResponseTopic); err != nil {
		c.takePending(req.TransactionID)
		return "", err
	}

	requestTopic := c.topics.RequestTopic(req.Service, req.Method, req.TransactionID)
	if err := c.Publish(requestTopic, payload); err != nil {
		c.takePending(req.TransactionID)
		c.unsubscribeQuiet(req.ResponseTopic)
		return "", err
	}

	c.mu.Lock()
	c.stats.RequestsSent++
	c.mu.Unlock()

	c.logf().Debug("request sent",
		"service", req.Service,
		"method", req.Method,
		"transaction_id", req.TransactionID)
	return req.TransactionID, nil
}

// Call issues a request and blocks until the response arrives, the request
// timeout elapses, or ctx is cancelled. It is CallAsync plus the wait.
func (c *Client) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrInvalidParam)
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultRequestTimeout
	}

	ch := make(chan *Response, 1)
	txid, err := c.CallAsync(req, func(resp *Response) {
		ch <- resp
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return finishCall(req, resp)
	case <-timer.C:
		// Claim the pending entry ourselves. Losing the race means a real
		// completion is already in flight on ch.
		if p := c.takePending(txid); p != nil {
			c.unsubscribeQuiet(p.responseTopic)
			return nil, fmt.Errorf("%w: %s.%s", ErrTimeout, req.Service, req.Method)
		}
		return finishCall(req, <-ch)
	case <-ctx.Done():
		if p := c.takePending(txid); p != nil {
			c.unsubscribeQuiet(p.responseTopic)
			return nil, ctx.Err()
		}
		return finishCall(req, <-ch)
	}
}

// finishCall maps a sweeper-synthesised timeout back onto ErrTimeout so
// blocking callers see a sentinel error, not just a failed response.
func finishCall(req *Request, resp *Response) (*Response, error) {
	if !resp.Success && resp.ErrorMessage == timeoutMessage {
		return resp, fmt.Errorf("%w: %s.%s", ErrTimeout, req.Service, req.Method)
	}
	return resp, nil
}

// notificationEnvelope is the wire form of a fire-and-forget event. Unlike
// a request it carries no transaction ID, the authority travels as its
// lowercase name, and the timestamp is numeric.
type notificationEnvelope struct {
	Type      string          `json:"type"`
	Method    string          `json:"method"`
	Service   string          `json:"service"`
	Authority string          `json:"authority"`
	Timestamp int64           `json:"timestamp"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// SendNotification publishes a fire-and-forget event for service.method.
// No response is expected and nothing is registered in the pending table.
func (c *Client) SendNotification(service, method string, authority Authority, params json.RawMessage) error {
	if service == "" || method == "" {
		return fmt.Errorf("%w: service and method are required", ErrInvalidParam)
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: notification %s.%s", ErrNotConnected, service, method)
	}

	env := notificationEnvelope{
		Type:      "notification",
		Method:    method,
		Service:   service,
		Authority: authority.String(),
		Timestamp: timestampMS(),
		Params:    params,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding notification: %w", ErrSerialization, err)
	}

	if err := c.Publish(c.topics.NotificationTopic(service, method), payload); err != nil {
		return err
	}

	c.mu.Lock()
	c.stats.NotificationsSent++
	c.mu.Unlock()
	return nil
}

// takePending removes and returns the pending entry for a transaction ID.
// Whoever takes the entry owns its single completion.
func (c *Client) takePending(transactionID string) *pendingRequest {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	p, ok := c.pending[transactionID]
	if !ok {
		return nil
	}
	delete(c.pending, transactionID)
	return p
}

func (c *Client) pendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// correlate matches an inbound payload against the pending table. It
// reports whether the message was consumed as a response.
func (c *Client) correlate(topic string, payload []byte) bool {
	if c.pendingCount() == 0 {
		return false
	}

	resp, err := DecodeResponse(payload)
	if err != nil {
		return false
	}
	if resp.TransactionID == "" {
		resp.TransactionID = topicTransactionID(topic)
	}
	if resp.TransactionID == "" {
		return false
	}

	p := c.takePending(resp.TransactionID)
	if p == nil {
		return false
	}

	c.unsubscribeQuiet(p.responseTopic)
	c.mu.Lock()
	c.stats.ResponsesReceived++
	c.mu.Unlock()

	c.logf().Debug("response correlated",
		"transaction_id", resp.TransactionID,
		"success", resp.Success)
	p.callback(resp)
	return true
}

// sweepLoop completes expired pending calls with a timeout failure.
func (c *Client) sweepLoop(done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.sweepExpired(time.Now())
		}
	}
}

func (c *Client) sweepExpired(now time.Time) {
	var expired []*pendingRequest
	c.pendingMu.Lock()
	for id, p := range c.pending {
		if now.After(p.deadline) {
			delete(c.pending, id)
			expired = append(expired, p)
		}
	}
	c.pendingMu.Unlock()

	for _, p := range expired {
		c.unsubscribeQuiet(p.responseTopic)
		c.incrementErrors()
		c.logf().Warn("request timed out", "transaction_id", p.transactionID)
		p.callback(errorResponse(p.transactionID, errorCodeTimeout, timeoutMessage))
	}
}

// failAllPending completes every pending call with a failure response.
// Called from Stop after the dispatcher has exited, so no new completions
// can race these.
func (c *Client) failAllPending(reason string) {
	c.pendingMu.Lock()
	remaining := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		delete(c.pending, id)
		remaining = append(remaining, p)
	}
	c.pendingMu.Unlock()

	for _, p := range remaining {
		p.callback(errorResponse(p.transactionID, errorCodeShutdown, reason))
	}
}
