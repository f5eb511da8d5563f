package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/datalinkmq/datalink/pkg/relay"
	"github.com/datalinkmq/datalink/pkg/rpc"
)

// WriteClientStats records a snapshot of a messaging client's counters.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - clientID: The MQTT client identifier the snapshot belongs to
//   - stats: Counter snapshot from Client.GetStatistics
func (c *Client) WriteClientStats(clientID string, stats rpc.Statistics) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"client_stats",
		map[string]string{
			"client_id": clientID,
		},
		map[string]interface{}{
			"messages_sent":      stats.MessagesSent,
			"messages_received":  stats.MessagesReceived,
			"requests_sent":      stats.RequestsSent,
			"responses_received": stats.ResponsesReceived,
			"notifications_sent": stats.NotificationsSent,
			"errors":             stats.ErrorsCount,
			"connections":        stats.ConnectionCount,
			"uptime_seconds":     stats.UptimeSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRelayStats records a snapshot of the relay engine's counters.
//
// Parameters:
//   - stats: Counter snapshot from Engine.Statistics
func (c *Client) WriteRelayStats(stats relay.Statistics) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"relay_stats",
		map[string]string{},
		map[string]interface{}{
			"messages_relayed": stats.MessagesRelayed,
			"messages_dropped": stats.MessagesDropped,
			"rule_matches":     stats.RuleMatches,
			"loops_suppressed": stats.LoopsSuppressed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "datalink-01"},
//	    map[string]interface{}{"goroutines": 42, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
