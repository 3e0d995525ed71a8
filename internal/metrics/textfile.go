package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/events"
)

// flushTimeout bounds how long Close waits for the terminal state event.
const flushTimeout = 500 * time.Millisecond

// TextfileExporter mirrors bus events into Metrics and rewrites a
// node_exporter textfile after each one.
type TextfileExporter struct {
	metrics *Metrics
	path    string
	logger  *slog.Logger

	subMu   sync.Mutex
	unsubs  []func()
	writeMu sync.Mutex
	stopped chan struct{}
	once    sync.Once
}

// NewTextfileExporter creates an exporter writing to path.
func NewTextfileExporter(m *Metrics, path string, logger *slog.Logger) *TextfileExporter {
	return &TextfileExporter{
		metrics: m,
		path:    path,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Subscribe starts following the bus.
func (e *TextfileExporter) Subscribe(bus *events.Bus) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.unsubs = append(e.unsubs,
		bus.Subscribe(func(ev events.StateChangedEvent) {
			e.metrics.SetState(ev.Service, ev.To, ev.Timestamp)
			e.write()
			if ev.To == control.Stopped {
				e.once.Do(func() { close(e.stopped) })
			}
		}),
		bus.Subscribe(func(ev events.ChildStartedEvent) {
			e.metrics.SetChildStarted(ev.Service, ev.PID)
			e.write()
		}),
		bus.Subscribe(func(ev events.ChildExitedEvent) {
			e.metrics.SetChildExited(ev.Service, ev.ExitCode, ev.Requested)
			e.write()
		}),
	)
}

// Close waits briefly for the Stopped transition to be written, then
// unsubscribes and writes the file a final time.
func (e *TextfileExporter) Close() error {
	select {
	case <-e.stopped:
	case <-time.After(flushTimeout):
	}

	e.subMu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.subMu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	return e.flush()
}

func (e *TextfileExporter) write() {
	if err := e.flush(); err != nil {
		e.logger.Warn("Failed to write metrics textfile", "path", e.path, "error", err)
	}
}

// flush serializes writers; WriteToTextfile renames into place so readers
// never see a partial file.
func (e *TextfileExporter) flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return prometheus.WriteToTextfile(e.path, e.metrics.Gatherer())
}
