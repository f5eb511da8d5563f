// Package relay forwards messages between MQTT brokers according to a rule
// table.
//
// An Engine owns one connection per configured broker (at most
// MaxBrokers). Every inbound message is matched against every rule whose
// source is the receiving broker; a rule matches when its pattern occurs
// anywhere in the topic, and each matching rule forwards a copy to its
// destination broker. Matching deliberately scans the whole table, so one
// message can fan out through several rules.
//
// The first broker is the primary. The remaining brokers are secondaries,
// and when conditional relaying is enabled they stay unconnected until the
// engine is told the secondary side is ready:
//
//	engine, err := relay.NewEngine(cfg)
//	if err != nil { ... }
//	if err := engine.Start(); err != nil { ... }
//	defer engine.Close()
//
//	// later, once the upstream link is usable
//	engine.SetSecondaryReady(true)
//
// Bidirectional rules install a reverse subscription on the destination
// broker and forward traffic back to the rule's source topic. The engine
// marks every message it publishes and skips its own markers on the way
// back in, so a bidirectional pair cannot ping-pong a message forever.
package relay
