package rpc

import (
	"fmt"
	"time"
)

// Publish sends a raw payload to a topic at the configured QoS. It blocks
// until the broker acknowledges delivery or the token timeout elapses.
func (c *Client) Publish(topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidParam)
	}

	c.mu.Lock()
	connected := c.connected
	paho := c.paho
	c.mu.Unlock()
	if !connected || paho == nil {
		return fmt.Errorf("%w: publish to %s", ErrNotConnected, topic)
	}

	token := paho.Publish(topic, byte(c.cfg.QoS), false, payload)
	if !token.WaitTimeout(defaultTokenTimeout) {
		c.incrementErrors()
		return fmt.Errorf("%w: publish to %s timed out", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		c.incrementErrors()
		return fmt.Errorf("%w: publish to %s: %w", ErrTransport, topic, err)
	}

	c.mu.Lock()
	c.stats.MessagesSent++
	c.stats.LastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// Subscribe adds a broker subscription. Messages arriving on the topic are
// delivered through the client-wide message handler (after response
// correlation); there are no per-topic handlers.
func (c *Client) Subscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidParam)
	}

	c.mu.Lock()
	connected := c.connected
	paho := c.paho
	c.mu.Unlock()
	if !connected || paho == nil {
		return fmt.Errorf("%w: subscribe to %s", ErrNotConnected, topic)
	}

	token := paho.Subscribe(topic, byte(c.cfg.QoS), nil)
	if !token.WaitTimeout(defaultTokenTimeout) {
		return fmt.Errorf("%w: subscribe to %s timed out", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: subscribe to %s: %w", ErrTransport, topic, err)
	}

	c.logf().Debug("subscribed", "topic", topic)
	return nil
}

// Unsubscribe removes a broker subscription.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidParam)
	}

	c.mu.Lock()
	connected := c.connected
	paho := c.paho
	c.mu.Unlock()
	if !connected || paho == nil {
		return fmt.Errorf("%w: unsubscribe from %s", ErrNotConnected, topic)
	}

	token := paho.Unsubscribe(topic)
	if !token.WaitTimeout(defaultTokenTimeout) {
		return fmt.Errorf("%w: unsubscribe from %s timed out", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: unsubscribe from %s: %w", ErrTransport, topic, err)
	}
	return nil
}

// unsubscribeQuiet drops a per-call response subscription, logging rather
// than propagating failures; the call outcome is already decided by the time
// this runs.
func (c *Client) unsubscribeQuiet(topic string) {
	if topic == "" {
		return
	}
	if err := c.Unsubscribe(topic); err != nil {
		c.logf().Debug("response topic unsubscribe failed", "topic", topic, "error", err)
	}
}
