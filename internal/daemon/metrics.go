package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the daemon's prometheus instruments.
// A nil *Metrics records nothing.
type Metrics struct {
	ticks        prometheus.Counter
	playerCalls  *prometheus.CounterVec
	commands     *prometheus.CounterVec
	reloads      *prometheus.CounterVec
	state        prometheus.Gauge
	backendUp    prometheus.Gauge
	failureCount prometheus.Gauge
}

// NewMetrics registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "radiosched_ticks_total",
			Help: "Reconciliation ticks run.",
		}),
		playerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosched_player_commands_total",
			Help: "Commands issued to the player backend.",
		}, []string{"command", "result"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosched_control_commands_total",
			Help: "Control commands handled by the loop.",
		}, []string{"command", "result"}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosched_config_reloads_total",
			Help: "Configuration reloads.",
		}, []string{"result"}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Name: "radiosched_state",
			Help: "Daemon state: 0 initializing, 1 steady, 2 degraded, 3 shutting down.",
		}),
		backendUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "radiosched_backend_reachable",
			Help: "1 when the player backend answered the last status query.",
		}),
		failureCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "radiosched_consecutive_failures",
			Help: "Consecutive failed player commands.",
		}),
	}
}

func (m *Metrics) RecordTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) RecordPlayerCall(command string, err error) {
	if m == nil {
		return
	}
	m.playerCalls.WithLabelValues(command, outcome(err)).Inc()
}

func (m *Metrics) RecordCommand(kind CommandKind, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(kind), outcome(err)).Inc()
}

func (m *Metrics) RecordReload(err error) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) RecordState(s State, reachable bool, failures int) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
	if reachable {
		m.backendUp.Set(1)
	} else {
		m.backendUp.Set(0)
	}
	m.failureCount.Set(float64(failures))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
