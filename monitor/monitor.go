// Package monitor observes workflow execution events and raises advisory
// alerts. It never mutates workflow or agent state; consumers decide what
// to do with an alert.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthub/internal/metrics"
	"github.com/BaSui01/agenthub/workflow"
)

// Alert kinds.
const (
	AlertStuckStep     = "stuck_step"
	AlertFailureRate   = "failure_rate"
	AlertWorkflowEnded = "workflow_failed"
)

// Alert is an advisory observation. Raising one has no effect on execution.
type Alert struct {
	Kind       string    `json:"kind"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Detail     string    `json:"detail"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats is a point-in-time snapshot of execution counters.
type Stats struct {
	WorkflowsStarted    int64 `json:"workflows_started"`
	WorkflowsCompleted  int64 `json:"workflows_completed"`
	WorkflowsFailed     int64 `json:"workflows_failed"`
	WorkflowsRolledBack int64 `json:"workflows_rolled_back"`
	StepsCompleted      int64 `json:"steps_completed"`
	StepsFailed         int64 `json:"steps_failed"`
	StepsRetried        int64 `json:"steps_retried"`
	ResultsDiscarded    int64 `json:"results_discarded"`
}

// Config tunes detection thresholds.
type Config struct {
	// StuckThreshold marks a step stuck when it runs longer than this.
	StuckThreshold time.Duration `yaml:"stuck_threshold" json:"stuck_threshold"`
	// ScanInterval is how often running steps and the failure window are
	// inspected.
	ScanInterval time.Duration `yaml:"scan_interval" json:"scan_interval"`
	// FailureWindow is the rolling window for the failure-rate alert.
	FailureWindow time.Duration `yaml:"failure_window" json:"failure_window"`
	// FailureRateThreshold raises an alert when the fraction of failed
	// step outcomes inside the window reaches it.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" json:"failure_rate_threshold"`
	// MinSamples suppresses the failure-rate alert below this many
	// outcomes in the window.
	MinSamples int `yaml:"min_samples" json:"min_samples"`
	// AlertBuffer is the alert channel size; alerts beyond it are dropped.
	AlertBuffer int `yaml:"alert_buffer" json:"alert_buffer"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		StuckThreshold:       time.Minute,
		ScanInterval:         5 * time.Second,
		FailureWindow:        time.Minute,
		FailureRateThreshold: 0.5,
		MinSamples:           5,
		AlertBuffer:          64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = def.StuckThreshold
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = def.ScanInterval
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = def.FailureWindow
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = def.FailureRateThreshold
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.AlertBuffer <= 0 {
		c.AlertBuffer = def.AlertBuffer
	}
	return c
}

type runningStep struct {
	workflowID string
	stepID     string
	agentID    string
	startedAt  time.Time
	alerted    bool
}

type outcome struct {
	at     time.Time
	failed bool
}

// Monitor consumes the engine's event stream.
type Monitor struct {
	cfg       Config
	logger    *zap.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	running  map[string]*runningStep // workflowID + "/" + stepID
	outcomes []outcome
	rateHot  bool // suppresses repeated failure-rate alerts while elevated

	started atomic.Int64
	wfDone  [3]atomic.Int64 // completed, failed, rolled back
	stepsOK atomic.Int64
	stepsKO atomic.Int64
	retried atomic.Int64
	dropped atomic.Int64

	alerts chan Alert
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCollector attaches the Prometheus collector.
func WithCollector(c *metrics.Collector) Option {
	return func(m *Monitor) { m.collector = c }
}

// New creates a monitor over the given event stream and starts consuming.
func New(stream *workflow.Stream, cfg Config, logger *zap.Logger, opts ...Option) *Monitor {
	cfg = cfg.withDefaults()
	m := &Monitor{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "workflow_monitor")),
		running: make(map[string]*runningStep),
		alerts:  make(chan Alert, cfg.AlertBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	events, cancel := stream.Subscribe()
	go m.run(events, cancel)
	return m
}

// Alerts returns the advisory alert channel. Alerts are dropped, not
// blocked on, when the consumer falls behind.
func (m *Monitor) Alerts() <-chan Alert { return m.alerts }

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		WorkflowsStarted:    m.started.Load(),
		WorkflowsCompleted:  m.wfDone[0].Load(),
		WorkflowsFailed:     m.wfDone[1].Load(),
		WorkflowsRolledBack: m.wfDone[2].Load(),
		StepsCompleted:      m.stepsOK.Load(),
		StepsFailed:         m.stepsKO.Load(),
		StepsRetried:        m.retried.Load(),
		ResultsDiscarded:    m.dropped.Load(),
	}
}

// Close stops the monitor and waits for its loop to exit.
func (m *Monitor) Close() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) run(events <-chan workflow.Event, cancel func()) {
	defer close(m.done)
	defer cancel()

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.observe(ev)
		case <-ticker.C:
			m.scan(time.Now())
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) observe(ev workflow.Event) {
	switch ev.Type {
	case workflow.EventWorkflowStarted:
		m.started.Add(1)
		if m.collector != nil {
			m.collector.WorkflowStarted()
		}

	case workflow.EventWorkflowCompleted:
		m.wfDone[0].Add(1)
		m.workflowFinished("completed", ev)

	case workflow.EventWorkflowFailed:
		m.wfDone[1].Add(1)
		m.workflowFinished("failed", ev)
		m.raise(Alert{
			Kind:       AlertWorkflowEnded,
			WorkflowID: ev.WorkflowID,
			Detail:     ev.Reason,
			Timestamp:  time.Now(),
		})

	case workflow.EventWorkflowRolledBack:
		m.wfDone[2].Add(1)
		m.workflowFinished("rolled_back", ev)
		m.raise(Alert{
			Kind:       AlertWorkflowEnded,
			WorkflowID: ev.WorkflowID,
			Detail:     ev.Reason,
			Timestamp:  time.Now(),
		})

	case workflow.EventStepStarted, workflow.EventStepRetried:
		if ev.Type == workflow.EventStepRetried {
			m.retried.Add(1)
			if m.collector != nil {
				m.collector.RecordStepRetry(ev.StepID)
			}
		}
		m.mu.Lock()
		m.running[ev.WorkflowID+"/"+ev.StepID] = &runningStep{
			workflowID: ev.WorkflowID,
			stepID:     ev.StepID,
			agentID:    ev.AgentID,
			startedAt:  time.Now(),
		}
		m.mu.Unlock()

	case workflow.EventStepCompleted:
		m.stepsOK.Add(1)
		m.stepFinished(ev, false)
		if m.collector != nil {
			m.collector.RecordStep(ev.StepID, "completed", ev.Duration)
		}

	case workflow.EventStepFailed:
		m.stepsKO.Add(1)
		m.stepFinished(ev, true)
		if m.collector != nil {
			m.collector.RecordStep(ev.StepID, "failed", ev.Duration)
		}

	case workflow.EventStepDiscarded:
		m.dropped.Add(1)
		m.stepFinished(ev, false)
	}
}

func (m *Monitor) workflowFinished(status string, ev workflow.Event) {
	if m.collector != nil {
		m.collector.WorkflowFinished()
		m.collector.RecordWorkflow(status, ev.Duration)
	}
	// Forget any steps of the finished workflow still tracked as running.
	m.mu.Lock()
	for key, rs := range m.running {
		if rs.workflowID == ev.WorkflowID {
			delete(m.running, key)
		}
	}
	m.mu.Unlock()
}

func (m *Monitor) stepFinished(ev workflow.Event, failed bool) {
	m.mu.Lock()
	delete(m.running, ev.WorkflowID+"/"+ev.StepID)
	m.outcomes = append(m.outcomes, outcome{at: time.Now(), failed: failed})
	m.mu.Unlock()
}

// scan checks for stuck steps and an elevated failure rate. Runs on the
// scan interval, off the event path.
func (m *Monitor) scan(now time.Time) {
	var stuck []Alert

	m.mu.Lock()
	for _, rs := range m.running {
		if rs.alerted || now.Sub(rs.startedAt) < m.cfg.StuckThreshold {
			continue
		}
		rs.alerted = true
		stuck = append(stuck, Alert{
			Kind:       AlertStuckStep,
			WorkflowID: rs.workflowID,
			StepID:     rs.stepID,
			AgentID:    rs.agentID,
			Detail:     "step running longer than " + m.cfg.StuckThreshold.String(),
			Timestamp:  now,
		})
	}

	// Trim outcomes to the rolling window, then compute the rate.
	cutoff := now.Add(-m.cfg.FailureWindow)
	keep := m.outcomes[:0]
	failures := 0
	for _, o := range m.outcomes {
		if o.at.Before(cutoff) {
			continue
		}
		keep = append(keep, o)
		if o.failed {
			failures++
		}
	}
	m.outcomes = keep

	var rateAlert *Alert
	total := len(m.outcomes)
	if total >= m.cfg.MinSamples {
		rate := float64(failures) / float64(total)
		if rate >= m.cfg.FailureRateThreshold {
			if !m.rateHot {
				m.rateHot = true
				rateAlert = &Alert{
					Kind:      AlertFailureRate,
					Detail:    "elevated step failure rate in window",
					Timestamp: now,
				}
			}
		} else {
			m.rateHot = false
		}
	}
	m.mu.Unlock()

	for _, a := range stuck {
		m.raise(a)
	}
	if rateAlert != nil {
		m.raise(*rateAlert)
	}
}

// raise logs and publishes one alert; it never blocks.
func (m *Monitor) raise(a Alert) {
	m.logger.Warn("monitor alert",
		zap.String("kind", a.Kind),
		zap.String("workflow_id", a.WorkflowID),
		zap.String("step_id", a.StepID),
		zap.String("detail", a.Detail),
	)
	if m.collector != nil {
		m.collector.RecordAlert(a.Kind)
	}
	select {
	case m.alerts <- a:
	default:
	}
}
