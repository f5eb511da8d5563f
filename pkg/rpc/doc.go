// Package rpc provides a request/response and notification layer on top of
// plain MQTT publish/subscribe.
//
// This package manages:
//   - Connection lifecycle with auto-reconnect and status reporting
//   - Topic-addressed RPC: correlated request/response plus fire-and-forget
//     notifications
//   - Transaction ID generation and validation
//   - Heartbeat liveness publishing while connected
//   - Per-client statistics
//
// # Architecture
//
// A Client wraps one broker connection. Requests are published to
// deterministic topics derived from a TopicConfig and answered on matching
// response topics, correlated by transaction ID:
//
//	{base}/{service}/{method}/request/{transaction_id}
//	{base}/{service}/{method}/response/{transaction_id}
//	{base}/{service}/{method}/notification
//
// Asynchronous calls register a pending entry that is completed exactly once,
// either by a correlated response or by timeout expiry. Synchronous calls are
// built on the asynchronous path and block until the response arrives or the
// request times out.
//
// The server side of an exchange is handled by a Responder, which validates
// inbound requests, dispatches them to registered handlers on a bounded
// worker pool and publishes the response envelope.
//
// # Usage
//
//	cfg := rpc.DefaultConfig()
//	cfg.Host = "127.0.0.1"
//	cfg.ClientID = "gateway-01"
//
//	client, err := rpc.New(cfg, rpc.DefaultTopicConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	req := rpc.NewRequest("get_status", "system")
//	resp, err := client.Call(context.Background(), req)
package rpc
