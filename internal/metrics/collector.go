// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns all Prometheus instruments for the orchestration engine.
type Collector struct {
	// Workflow metrics
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	workflowsActive  prometheus.Gauge

	// Step metrics
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepRetries  *prometheus.CounterVec

	// Agent metrics
	agentMessagesTotal    *prometheus.CounterVec
	agentStateTransitions *prometheus.CounterVec
	registeredAgents      prometheus.Gauge

	// Recovery metrics
	recoveryInvocations *prometheus.CounterVec
	circuitState        *prometheus.GaugeVec

	// Semantic store metrics
	factsTotal         *prometheus.CounterVec
	mirrorDroppedTotal prometheus.Counter
	monitorAlertsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the instruments on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return newCollector(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry registers the instruments on a caller-supplied
// registry. Tests use this to avoid duplicate registration on the default
// registry.
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	return newCollector(namespace, reg, logger)
}

func newCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Workflow metrics
	c.workflowsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Total number of finished workflows",
		},
		[]string{"status"},
	)

	c.workflowDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	c.workflowsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Number of workflows currently running",
		},
	)

	// Step metrics
	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of finished workflow steps",
		},
		[]string{"capability", "status"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"capability"},
	)

	c.stepRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retry attempts",
		},
		[]string{"capability"},
	)

	// Agent metrics
	c.agentMessagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_messages_total",
			Help:      "Total number of messages processed by agents",
		},
		[]string{"agent_id", "status"},
	)

	c.agentStateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total number of agent state transitions",
		},
		[]string{"agent_id", "from_state", "to_state"},
	)

	c.registeredAgents = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_agents",
			Help:      "Number of agents currently registered",
		},
	)

	// Recovery metrics
	c.recoveryInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_invocations_total",
			Help:      "Total number of recovery strategy invocations",
		},
		[]string{"strategy", "outcome"},
	)

	c.circuitState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per agent (0 closed, 1 open, 2 half-open)",
		},
		[]string{"agent_id"},
	)

	// Semantic store metrics
	c.factsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semstore_facts_total",
			Help:      "Total number of facts written to the semantic store",
		},
		[]string{"backend", "status"},
	)

	c.mirrorDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semstore_mirror_dropped_total",
			Help:      "Total number of facts dropped by the mirror under backpressure",
		},
	)

	c.monitorAlertsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_alerts_total",
			Help:      "Total number of advisory alerts raised by the workflow monitor",
		},
		[]string{"kind"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordWorkflow records one finished workflow.
func (c *Collector) RecordWorkflow(status string, duration time.Duration) {
	c.workflowsTotal.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// WorkflowStarted increments the active workflow gauge.
func (c *Collector) WorkflowStarted() { c.workflowsActive.Inc() }

// WorkflowFinished decrements the active workflow gauge.
func (c *Collector) WorkflowFinished() { c.workflowsActive.Dec() }

// RecordStep records one finished step.
func (c *Collector) RecordStep(capability, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(capability, status).Inc()
	c.stepDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordStepRetry records one retry attempt of a step.
func (c *Collector) RecordStepRetry(capability string) {
	c.stepRetries.WithLabelValues(capability).Inc()
}

// RecordAgentMessage records one processed message.
func (c *Collector) RecordAgentMessage(agentID, status string) {
	c.agentMessagesTotal.WithLabelValues(agentID, status).Inc()
}

// RecordAgentStateTransition records one agent status transition.
func (c *Collector) RecordAgentStateTransition(agentID, fromState, toState string) {
	c.agentStateTransitions.WithLabelValues(agentID, fromState, toState).Inc()
}

// SetRegisteredAgents sets the registered agent gauge.
func (c *Collector) SetRegisteredAgents(n int) {
	c.registeredAgents.Set(float64(n))
}

// RecordRecovery records one recovery strategy invocation.
func (c *Collector) RecordRecovery(strategy, outcome string) {
	c.recoveryInvocations.WithLabelValues(strategy, outcome).Inc()
}

// SetCircuitState records the breaker state for an agent.
func (c *Collector) SetCircuitState(agentID string, state int) {
	c.circuitState.WithLabelValues(agentID).Set(float64(state))
}

// RecordFact records one semantic store write.
func (c *Collector) RecordFact(backend, status string) {
	c.factsTotal.WithLabelValues(backend, status).Inc()
}

// RecordMirrorDrop records one fact dropped under backpressure.
func (c *Collector) RecordMirrorDrop() {
	c.mirrorDroppedTotal.Inc()
}

// RecordAlert records one advisory monitor alert.
func (c *Collector) RecordAlert(kind string) {
	c.monitorAlertsTotal.WithLabelValues(kind).Inc()
}
