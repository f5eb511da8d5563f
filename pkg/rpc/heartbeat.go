package rpc

import (
	"errors"
	"fmt"
	"time"
)

// heartbeatPayload builds the JSON heartbeat body. A configured payload
// override is published verbatim; otherwise the stock shape is generated
// with a fresh millisecond timestamp per beat. The timestamp is a decimal
// string, not a number.
func (c *Client) heartbeatPayload() []byte {
	if c.cfg.Heartbeat.Payload != "" {
		return []byte(c.cfg.Heartbeat.Payload)
	}
	body := fmt.Sprintf(
		`{"type":"heartbeat","client":"%s","status":"alive","ssl":%t,"timestamp":"%d"}`,
		c.cfg.ClientID, c.cfg.UseTLS, timestampMS(),
	)
	return []byte(body)
}

// startHeartbeat launches the heartbeat loop if one is not already running.
// A loop that was signalled to stop but not yet joined is joined first, so
// at most one heartbeat publisher exists per client.
func (c *Client) startHeartbeat() {
	c.hbMu.Lock()
	if c.hbStop != nil {
		c.hbMu.Unlock()
		return
	}
	prev := c.hbDone
	c.hbMu.Unlock()
	if prev != nil {
		<-prev
	}

	c.hbMu.Lock()
	if c.hbStop != nil {
		c.hbMu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.hbStop, c.hbDone = stop, done
	c.hbMu.Unlock()

	go c.heartbeatLoop(stop, done)
	c.logf().Info("heartbeat started",
		"topic", c.cfg.Heartbeat.Topic,
		"interval_seconds", c.cfg.Heartbeat.Interval)
}

// signalHeartbeatStop asks the loop to exit without waiting for it. Used
// from connection-loss paths where blocking is not acceptable.
func (c *Client) signalHeartbeatStop() {
	c.hbMu.Lock()
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	c.hbMu.Unlock()
}

// stopHeartbeat signals the loop and joins it.
func (c *Client) stopHeartbeat() {
	c.hbMu.Lock()
	stop, done := c.hbStop, c.hbDone
	c.hbStop, c.hbDone = nil, nil
	c.hbMu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// heartbeatLoop publishes one beat per interval. A publish that fails
// because the connection is gone ends the loop; any other failure is logged
// and the loop retries on the next tick.
func (c *Client) heartbeatLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := time.Duration(c.cfg.Heartbeat.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		err := c.Publish(c.cfg.Heartbeat.Topic, c.heartbeatPayload())
		if err == nil {
			c.logf().Debug("heartbeat published", "topic", c.cfg.Heartbeat.Topic)
			continue
		}
		if errors.Is(err, ErrNotConnected) {
			c.logf().Warn("connection lost, heartbeat stopping")
			// Exiting on our own: clear the stop handle so a reconnect can
			// start a fresh loop. Joins still work through done.
			c.hbMu.Lock()
			c.hbStop = nil
			c.hbMu.Unlock()
			return
		}
		c.logf().Error("heartbeat publish failed", "error", err)
	}
}
