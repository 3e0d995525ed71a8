// Package metrics tracks the service lifecycle as Prometheus metrics and
// writes them to a node_exporter textfile.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/version"
)

const namespace = "svcwrap"

// Metrics holds one registry per wrapper process so the textfile only
// carries this service's series.
type Metrics struct {
	registry *prometheus.Registry

	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	lastChange  *prometheus.GaugeVec
	childPID    *prometheus.GaugeVec
	exitCode    *prometheus.GaugeVec
	unexpected  *prometheus.CounterVec

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot is the last observed lifecycle of the service.
type Snapshot struct {
	State      control.State
	PID        int
	ExitCode   int
	Exited     bool
	Unexpected bool
}

// New creates and registers the service metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_state",
			Help:      "1 for the current lifecycle state of the service, 0 otherwise",
		}, []string{"service", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_transitions_total",
			Help:      "Lifecycle states reported to the service manager",
		}, []string{"service", "state"}),
		lastChange: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_last_transition_timestamp_seconds",
			Help:      "Unix time of the last lifecycle transition",
		}, []string{"service"}),
		childPID: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "pid",
			Help:      "Process id of the supervised program, 0 when not running",
		}, []string{"service"}),
		exitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "exit_code",
			Help:      "Exit code of the supervised program's last run",
		}, []string{"service"}),
		unexpected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "unexpected_exits_total",
			Help:      "Exits of the supervised program that were not requested",
		}, []string{"service"}),
	}

	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Wrapper build information",
	}, []string{"version", "commit", "go_version"})
	info := version.Get()
	build.WithLabelValues(info.Version, info.GitCommit, info.GoVersion).Set(1)

	m.registry.MustRegister(m.state, m.transitions, m.lastChange, m.childPID, m.exitCode, m.unexpected, build)
	return m
}

var allStates = []control.State{control.StartPending, control.Running, control.StopPending, control.Stopped}

// SetState records a lifecycle transition.
func (m *Metrics) SetState(service string, state control.State, at time.Time) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(service, s.String()).Set(v)
	}
	m.transitions.WithLabelValues(service, state.String()).Inc()
	m.lastChange.WithLabelValues(service).Set(float64(at.Unix()))
	m.update(func(s *Snapshot) { s.State = state })
}

// SetChildStarted records the running program's pid.
func (m *Metrics) SetChildStarted(service string, pid int) {
	m.childPID.WithLabelValues(service).Set(float64(pid))
	m.update(func(s *Snapshot) {
		s.PID = pid
		s.Exited = false
	})
}

// SetChildExited records the program's exit.
func (m *Metrics) SetChildExited(service string, code int, requested bool) {
	m.childPID.WithLabelValues(service).Set(0)
	m.exitCode.WithLabelValues(service).Set(float64(code))
	if !requested {
		m.unexpected.WithLabelValues(service).Inc()
	}
	m.update(func(s *Snapshot) {
		s.PID = 0
		s.ExitCode = code
		s.Exited = true
		s.Unexpected = !requested
	})
}

// Snapshot returns the last observed lifecycle.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) update(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.snapshot)
}
