package influxdb_test

import (
	"sync"
	"testing"
	"time"

	"github.com/datalinkmq/datalink/internal/infrastructure/influxdb"
	"github.com/datalinkmq/datalink/pkg/relay"
	"github.com/datalinkmq/datalink/pkg/rpc"
)

// recordingWriter captures snapshots for assertions.
type recordingWriter struct {
	mu          sync.Mutex
	clientCalls int
	relayCalls  int
	lastID      string
	lastClient  rpc.Statistics
	lastRelay   relay.Statistics
}

func (w *recordingWriter) WriteClientStats(clientID string, stats rpc.Statistics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clientCalls++
	w.lastID = clientID
	w.lastClient = stats
}

func (w *recordingWriter) WriteRelayStats(stats relay.Statistics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.relayCalls++
	w.lastRelay = stats
}

func (w *recordingWriter) snapshot() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clientCalls, w.relayCalls
}

func TestExporterSamplesBothSources(t *testing.T) {
	writer := &recordingWriter{}

	exporter := influxdb.NewExporter(writer, "datalink-001", 50*time.Millisecond)
	exporter.SetClientSource(func() rpc.Statistics {
		return rpc.Statistics{MessagesSent: 7}
	})
	exporter.SetRelaySource(func() relay.Statistics {
		return relay.Statistics{MessagesRelayed: 3}
	})

	exporter.Start()
	time.Sleep(175 * time.Millisecond)
	exporter.Stop()

	clientCalls, relayCalls := writer.snapshot()
	if clientCalls < 2 {
		t.Errorf("client snapshots = %d, want at least 2", clientCalls)
	}
	if relayCalls < 2 {
		t.Errorf("relay snapshots = %d, want at least 2", relayCalls)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if writer.lastID != "datalink-001" {
		t.Errorf("client_id = %q, want datalink-001", writer.lastID)
	}
	if writer.lastClient.MessagesSent != 7 {
		t.Errorf("MessagesSent = %d, want 7", writer.lastClient.MessagesSent)
	}
	if writer.lastRelay.MessagesRelayed != 3 {
		t.Errorf("MessagesRelayed = %d, want 3", writer.lastRelay.MessagesRelayed)
	}
}

func TestExporterClientSourceOnly(t *testing.T) {
	writer := &recordingWriter{}

	exporter := influxdb.NewExporter(writer, "datalink-001", 50*time.Millisecond)
	exporter.SetClientSource(func() rpc.Statistics { return rpc.Statistics{} })

	exporter.Start()
	time.Sleep(120 * time.Millisecond)
	exporter.Stop()

	clientCalls, relayCalls := writer.snapshot()
	if clientCalls == 0 {
		t.Error("no client snapshots written")
	}
	if relayCalls != 0 {
		t.Errorf("relay snapshots = %d, want 0 without a relay source", relayCalls)
	}
}

func TestExporterStopWritesFinalSnapshot(t *testing.T) {
	writer := &recordingWriter{}

	// Long interval: the only write comes from Stop.
	exporter := influxdb.NewExporter(writer, "datalink-001", time.Hour)
	exporter.SetClientSource(func() rpc.Statistics { return rpc.Statistics{} })

	exporter.Start()
	exporter.Stop()

	clientCalls, _ := writer.snapshot()
	if clientCalls != 1 {
		t.Errorf("client snapshots = %d, want exactly 1 from Stop", clientCalls)
	}
}

func TestExporterStartStopIdempotent(t *testing.T) {
	writer := &recordingWriter{}

	exporter := influxdb.NewExporter(writer, "datalink-001", time.Hour)
	exporter.SetClientSource(func() rpc.Statistics { return rpc.Statistics{} })

	exporter.Start()
	exporter.Start() // no-op
	exporter.Stop()
	exporter.Stop() // no-op
}
