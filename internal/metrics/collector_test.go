package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("agenthub", reg, zap.NewNop()), reg
}

func TestRecordWorkflow(t *testing.T) {
	t.Parallel()

	c, reg := newTestCollector(t)

	c.RecordWorkflow("success", 250*time.Millisecond)
	c.RecordWorkflow("success", time.Second)
	c.RecordWorkflow("failure", 50*time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.workflowsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.workflowsTotal.WithLabelValues("failure")))

	// Histograms register alongside counters under the same namespace.
	n, err := testutil.GatherAndCount(reg,
		"agenthub_workflow_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorkflowActiveGauge(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t)

	c.WorkflowStarted()
	c.WorkflowStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.workflowsActive))

	c.WorkflowFinished()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.workflowsActive))
}

func TestRecordStepAndRetry(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t)

	c.RecordStep("summarization", "success", 120*time.Millisecond)
	c.RecordStep("summarization", "failure", 80*time.Millisecond)
	c.RecordStepRetry("summarization")
	c.RecordStepRetry("summarization")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stepsTotal.WithLabelValues("summarization", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stepsTotal.WithLabelValues("summarization", "failure")))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.stepRetries.WithLabelValues("summarization")))
}

func TestAgentMetrics(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t)

	c.RecordAgentMessage("a1", "success")
	c.RecordAgentStateTransition("a1", "idle", "busy")
	c.RecordAgentStateTransition("a1", "busy", "idle")
	c.SetRegisteredAgents(3)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.agentMessagesTotal.WithLabelValues("a1", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.agentStateTransitions.WithLabelValues("a1", "idle", "busy")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.registeredAgents))
}

func TestRecoveryAndCircuitMetrics(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t)

	c.RecordRecovery("retry", "recovered")
	c.RecordRecovery("retry", "exhausted")
	c.SetCircuitState("a1", 1)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.recoveryInvocations.WithLabelValues("retry", "recovered")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.recoveryInvocations.WithLabelValues("retry", "exhausted")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.circuitState.WithLabelValues("a1")))
}

func TestStoreMetrics(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t)

	c.RecordFact("memory", "ok")
	c.RecordMirrorDrop()
	c.RecordMirrorDrop()
	c.RecordAlert("workflow_failed")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.factsTotal.WithLabelValues("memory", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.mirrorDroppedTotal))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.monitorAlertsTotal.WithLabelValues("workflow_failed")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()

	// promauto panics on duplicate registration; two collectors must be
	// able to coexist on independent registries.
	a, _ := newTestCollector(t)
	b, _ := newTestCollector(t)

	a.WorkflowStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.workflowsActive))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.workflowsActive))
}
