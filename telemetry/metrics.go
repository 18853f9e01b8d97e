package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

// Metrics holds the workbench collectors on a private registry. A nil
// *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	commands     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	systemStates *prometheus.CounterVec
	sessions     prometheus.Gauge
	failures     *prometheus.GaugeVec
	analysisWait prometheus.Histogram
}

// New creates and registers the workbench collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_commands_total",
				Help: "Commands executed, by command and status level",
			},
			[]string{"command", "level"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_component_transitions_total",
				Help: "Component state transitions, by kind and new state",
			},
			[]string{"kind", "state"},
		),
		systemStates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_system_transitions_total",
				Help: "System state transitions, by new state",
			},
			[]string{"state"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workbench_sessions",
			Help: "Active sessions",
		}),
		failures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "workbench_failure_entries",
				Help: "Entries in the latest failure report, by severity",
			},
			[]string{"severity"},
		),
		analysisWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workbench_analysis_seconds",
			Help:    "Time from analysis request to result, including the display delay",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.transitions,
		m.systemStates,
		m.sessions,
		m.failures,
		m.analysisWait,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns engine hooks that count transitions
func (m *Metrics) Hooks() engine.Hooks {
	if m == nil {
		return engine.Hooks{}
	}
	return engine.Hooks{
		OnTransition: func(c engine.Component, from engine.State) {
			m.transitions.WithLabelValues(string(c.Kind), string(c.State)).Inc()
		},
		OnSystemState: func(from, to engine.State) {
			m.systemStates.WithLabelValues(string(to)).Inc()
		},
	}
}

// ObserveCommand counts a command by the level of its resulting status
func (m *Metrics) ObserveCommand(command string, st engine.Status) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, string(st.Level)).Inc()
}

// SetSessions records the number of live sessions
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// ObserveAnalysis records an analysis run and its report
func (m *Metrics) ObserveAnalysis(seconds float64, failures []engine.FailureReport) {
	if m == nil {
		return
	}
	m.analysisWait.Observe(seconds)

	counts := map[engine.Severity]int{}
	for _, f := range failures {
		counts[f.Severity]++
	}
	for _, sev := range []engine.Severity{engine.SeverityLow, engine.SeverityMedium, engine.SeverityHigh, engine.SeverityCritical} {
		m.failures.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
}
