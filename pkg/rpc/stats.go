package rpc

import "time"

// Statistics is a mutually consistent snapshot of a client's counters,
// taken under the client mutex.
type Statistics struct {
	MessagesSent      uint64
	MessagesReceived  uint64
	RequestsSent      uint64
	ResponsesReceived uint64
	NotificationsSent uint64
	ErrorsCount       uint64
	ConnectionCount   uint64
	UptimeSeconds     uint64
	LastActivity      time.Time
}

// GetStatistics returns a snapshot of the client's counters.
func (c *Client) GetStatistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	if !c.startTime.IsZero() {
		stats.UptimeSeconds = uint64(time.Since(c.startTime).Seconds())
	}
	return stats
}

// ResetStatistics zeroes all counters. The uptime origin and connection
// state are unaffected.
func (c *Client) ResetStatistics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = Statistics{LastActivity: time.Now()}
}
