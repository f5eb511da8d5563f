package influxdb

import (
	"sync"
	"time"

	"github.com/datalinkmq/datalink/pkg/relay"
	"github.com/datalinkmq/datalink/pkg/rpc"
)

// defaultExportInterval is used when the configured interval is missing
// or invalid.
const defaultExportInterval = 60 * time.Second

// StatsWriter receives periodic counter snapshots from the Exporter.
//
// *Client satisfies this interface; tests can substitute a recorder.
type StatsWriter interface {
	WriteClientStats(clientID string, stats rpc.Statistics)
	WriteRelayStats(stats relay.Statistics)
}

// Exporter periodically samples counter snapshots and writes them to
// InfluxDB.
//
// Sources are optional: an exporter with only a client source skips the
// relay measurement entirely. Start and Stop are safe to call once each;
// Stop blocks until the export loop has exited.
type Exporter struct {
	writer   StatsWriter
	interval time.Duration
	clientID string

	clientStats func() rpc.Statistics
	relayStats  func() relay.Statistics

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// NewExporter creates an exporter that writes through w every interval.
//
// Parameters:
//   - w: Destination for snapshots (usually a connected *Client)
//   - clientID: Tag value for client_stats points
//   - interval: Sampling period; values <= 0 fall back to 60s
func NewExporter(w StatsWriter, clientID string, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = defaultExportInterval
	}
	return &Exporter{
		writer:   w,
		interval: interval,
		clientID: clientID,
	}
}

// SetClientSource registers the client counter snapshot source.
// Must be called before Start.
func (e *Exporter) SetClientSource(fn func() rpc.Statistics) {
	e.clientStats = fn
}

// SetRelaySource registers the relay counter snapshot source.
// Must be called before Start.
func (e *Exporter) SetRelaySource(fn func() relay.Statistics) {
	e.relayStats = fn
}

// Start launches the export loop. Calling Start on a running exporter
// is a no-op.
func (e *Exporter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.started = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	go e.run(e.stop, e.done)
}

// Stop terminates the export loop and waits for it to exit. A final
// snapshot is written on the way out so counters accumulated since the
// last tick are not lost.
func (e *Exporter) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	stop, done := e.stop, e.done
	e.mu.Unlock()

	close(stop)
	<-done
}

func (e *Exporter) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.export()
		case <-stop:
			e.export()
			return
		}
	}
}

func (e *Exporter) export() {
	if e.clientStats != nil {
		e.writer.WriteClientStats(e.clientID, e.clientStats())
	}
	if e.relayStats != nil {
		e.writer.WriteRelayStats(e.relayStats())
	}
}
