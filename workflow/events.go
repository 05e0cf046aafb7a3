package workflow

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventType classifies an execution event.
type EventType string

const (
	EventWorkflowStarted    EventType = "workflow_started"
	EventWorkflowCompleted  EventType = "workflow_completed"
	EventWorkflowFailed     EventType = "workflow_failed"
	EventWorkflowRolledBack EventType = "workflow_rolled_back"
	EventStepScheduled      EventType = "step_scheduled"
	EventStepStarted        EventType = "step_started"
	EventStepCompleted      EventType = "step_completed"
	EventStepFailed         EventType = "step_failed"
	EventStepRetried        EventType = "step_retried"
	EventStepDiscarded      EventType = "step_discarded"
)

// Event is one execution state transition published by the engine.
type Event struct {
	Type       EventType     `json:"type"`
	WorkflowID string        `json:"workflow_id"`
	StepID     string        `json:"step_id,omitempty"`
	AgentID    string        `json:"agent_id,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// subCounter generates unique subscription ids.
var subCounter int64

// Stream is the execution event channel the engine publishes to and the
// monitor (and any external caller) subscribes to. Publishing never blocks:
// a subscriber whose buffer is full misses events rather than stalling the
// engine.
type Stream struct {
	mu   sync.RWMutex
	subs map[string]chan Event
	size int
}

// NewStream creates an event stream with the given per-subscriber buffer.
func NewStream(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Stream{
		subs: make(map[string]chan Event),
		size: bufferSize,
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release the subscription; the channel is closed by it.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("sub-%d", atomic.AddInt64(&subCounter, 1))
	ch := make(chan Event, s.size)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish fans the event out to all subscribers without blocking.
func (s *Stream) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; events are advisory.
		}
	}
}

// Close releases all subscriptions.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
