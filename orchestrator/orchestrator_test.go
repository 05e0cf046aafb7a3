package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/agent"
	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/config"
	"github.com/BaSui01/agenthub/internal/metrics"
	"github.com/BaSui01/agenthub/semstore"
	"github.com/BaSui01/agenthub/types"
	"github.com/BaSui01/agenthub/workflow"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.StepTimeout = 2 * time.Second
	cfg.Engine.WorkflowTimeout = 5 * time.Second
	cfg.Engine.PollInterval = 10 * time.Millisecond
	cfg.Recovery.InitialBackoff = time.Millisecond
	cfg.Recovery.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *semstore.MemoryStore) {
	t.Helper()
	store := semstore.NewMemoryStore()
	o, err := New(testConfig(), zap.NewNop(), WithStore(store))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, store
}

func echoTemplate(name string, caps ...capability.Capability) agent.Template {
	if len(caps) == 0 {
		caps = []capability.Capability{capability.MustDeclare(capability.TypeSummarization, "1.0.0")}
	}
	return agent.Template{
		Name: name,
		Constructor: func(agentID string, set *capability.Set) (agent.Agent, error) {
			handler := func(_ context.Context, msg types.Message) (types.Message, error) {
				reply := msg.Reply(types.MessageTypeResponse, "ok")
				reply.Payload = map[string]any{"result": "done:" + msg.Content}
				return reply, nil
			}
			return agent.NewBaseAgent(agentID, name, set, handler), nil
		},
		DefaultCapabilities: caps,
	}
}

func TestOrchestratorEndToEnd(t *testing.T) {
	t.Parallel()

	o, store := newTestOrchestrator(t)

	require.NoError(t, o.RegisterTemplate(echoTemplate("summarizer")))
	assert.Contains(t, o.Factory().Templates(), "summarizer")

	a, err := o.CreateAgent(context.Background(), "summarizer", "sum-1")
	require.NoError(t, err)
	assert.Equal(t, 1, o.Registry().Len())

	id, err := o.SubmitWorkflow("demo",
		[]capability.Capability{capability.MustDeclare(capability.TypeSummarization, "1.0.0")},
		nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitWorkflow(ctx, id))

	view, err := o.WorkflowStatus(id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, view.WorkflowStatus)
	assert.Equal(t, "done:summarization", view.Results["result"])
	require.Len(t, view.Steps, 1)
	assert.Equal(t, a.ID(), view.Steps[0].AssignedAgent)

	// State changes were mirrored into the semantic store.
	require.Eventually(t, func() bool {
		facts, ferr := store.QueryFacts(context.Background(),
			semstore.Pattern{Subject: "workflow/" + id, Predicate: semstore.PredStatus})
		return ferr == nil && len(facts) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	facts, err := store.QueryFacts(context.Background(),
		semstore.Pattern{Subject: "workflow/" + id})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StatusRunning), facts[0].Object)
	assert.Equal(t, string(workflow.StatusCompleted), facts[len(facts)-1].Object)
}

func TestOrchestratorFeedsCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("agenthub", reg, zap.NewNop())

	cfg := testConfig()
	cfg.Recovery.FailureThreshold = 2
	store := semstore.NewMemoryStore()
	o, err := New(cfg, zap.NewNop(), WithStore(store), WithCollector(collector))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})

	// Templates built with AgentOptions report transitions and mirror their
	// status facts.
	tpl := echoTemplate("summarizer")
	opts := o.AgentOptions()
	tpl.Constructor = func(agentID string, set *capability.Set) (agent.Agent, error) {
		handler := func(_ context.Context, msg types.Message) (types.Message, error) {
			reply := msg.Reply(types.MessageTypeResponse, "ok")
			reply.Payload = map[string]any{"result": "done:" + msg.Content}
			return reply, nil
		}
		return agent.NewBaseAgent(agentID, "summarizer", set, handler, opts...), nil
	}
	require.NoError(t, o.RegisterTemplate(tpl))

	_, err = o.CreateAgent(context.Background(), "summarizer", "sum-1")
	require.NoError(t, err)

	id, err := o.SubmitWorkflow("demo",
		[]capability.Capability{capability.MustDeclare(capability.TypeSummarization, "1.0.0")},
		nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitWorkflow(ctx, id))

	count := func(name string, labels prometheus.Labels) float64 {
		t.Helper()
		families, gerr := reg.Gather()
		require.NoError(t, gerr)
		var total float64
		for _, mf := range families {
			if mf.GetName() != name {
				continue
			}
			for _, m := range mf.GetMetric() {
				match := true
				for _, lp := range m.GetLabel() {
					if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
						match = false
						break
					}
				}
				if match {
					total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
				}
			}
		}
		return total
	}

	// initializing -> idle on creation, idle -> busy -> idle per message.
	assert.GreaterOrEqual(t,
		count("agenthub_agent_state_transitions_total", prometheus.Labels{"agent_id": "sum-1"}),
		3.0)
	assert.Equal(t, 1.0,
		count("agenthub_agent_messages_total", prometheus.Labels{"agent_id": "sum-1", "status": "success"}))

	// Mirror writes land asynchronously.
	require.Eventually(t, func() bool {
		return count("agenthub_semstore_facts_total", prometheus.Labels{"backend": "memory", "status": "success"}) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// A persistently failing agent trips the breaker (threshold 2) and the
	// retry strategy reports exhaustion.
	bad := agent.Template{
		Name:                "broken",
		DefaultCapabilities: []capability.Capability{capability.MustDeclare(capability.TypeTranslation, "1.0.0")},
		Constructor: func(agentID string, set *capability.Set) (agent.Agent, error) {
			handler := func(_ context.Context, msg types.Message) (types.Message, error) {
				return types.Message{}, assert.AnError
			}
			return agent.NewBaseAgent(agentID, "broken", set, handler, opts...), nil
		},
	}
	require.NoError(t, o.RegisterTemplate(bad))
	_, err = o.CreateAgent(context.Background(), "broken", "bad-1")
	require.NoError(t, err)

	id, err = o.SubmitWorkflow("doomed",
		[]capability.Capability{capability.MustDeclare(capability.TypeTranslation, "1.0.0")},
		nil)
	require.NoError(t, err)
	require.NoError(t, o.WaitWorkflow(ctx, id))

	view, err := o.WorkflowStatus(id)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, view.WorkflowStatus)

	assert.Equal(t, 1.0,
		count("agenthub_circuit_breaker_state", prometheus.Labels{"agent_id": "bad-1"}))
	assert.GreaterOrEqual(t,
		count("agenthub_recovery_invocations_total", prometheus.Labels{"outcome": "exhausted"}),
		1.0)
}

func TestOrchestratorCancelWorkflow(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)

	// No agent ever satisfies the requirement; the workflow sits pending
	// until cancelled.
	id, err := o.SubmitWorkflow("stuck",
		[]capability.Capability{capability.MustDeclare(capability.TypeOCR, "1.0.0")},
		nil)
	require.NoError(t, err)

	require.NoError(t, o.CancelWorkflow(id))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitWorkflow(ctx, id))

	view, err := o.WorkflowStatus(id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, view.WorkflowStatus)
	assert.Equal(t, "cancelled", view.Reason)
}

func TestOrchestratorRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Semstore.Backend = "etcd"
	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestOrchestratorDatabaseBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Semstore.Backend = "database"
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"

	o, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, o.RegisterTemplate(echoTemplate("worker")))
	_, err = o.CreateAgent(context.Background(), "worker", "w1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	// The store is closed with everything else; a second shutdown is not
	// part of the contract, so only the single pass is exercised here.
}

func TestOrchestratorShutdownStopsAgents(t *testing.T) {
	t.Parallel()

	store := semstore.NewMemoryStore()
	o, err := New(testConfig(), zap.NewNop(), WithStore(store))
	require.NoError(t, err)

	require.NoError(t, o.RegisterTemplate(echoTemplate("worker")))
	a, err := o.CreateAgent(context.Background(), "worker", "w1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	assert.Equal(t, agent.StatusStopped, a.Status())
	assert.Zero(t, o.Registry().Len())
}
