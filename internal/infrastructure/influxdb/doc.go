// Package influxdb provides InfluxDB connectivity for the datalink daemon.
//
// It wraps the official influxdb-client-go v2 library with datalink-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Messaging client counters (messages, requests, responses, errors)
//   - Relay engine counters (forwards, drops, rule matches)
//   - Custom operational measurements
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "datalink",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	exporter := influxdb.NewExporter(client, cfg.ClientID, time.Minute)
//	exporter.SetClientSource(rpcClient.GetStatistics)
//	exporter.Start()
//	defer exporter.Stop()
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency counter sampling.
package influxdb
