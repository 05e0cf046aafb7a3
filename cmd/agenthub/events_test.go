package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agenthub/capability"
	"github.com/BaSui01/agenthub/workflow"
)

func TestEventRelayStreamsWorkflowEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	_, err := s.orc.CreateAgent(context.Background(), "echo", "echo-1")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(s.handleEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The handler subscribes just after the handshake; give it a moment
	// so the first events are not published before the subscription.
	time.Sleep(100 * time.Millisecond)

	id, err := s.orc.SubmitWorkflow("demo",
		[]capability.Capability{capability.MustDeclare(capability.TypeSummarization, "1.0.0")},
		nil)
	require.NoError(t, err)

	// Frames arrive in publish order; collect until the terminal event.
	var types []workflow.EventType
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var ev workflow.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.WorkflowID != id {
			continue
		}
		types = append(types, ev.Type)
		if ev.Type == workflow.EventWorkflowCompleted {
			break
		}
	}

	assert.Contains(t, types, workflow.EventWorkflowStarted)
	assert.Contains(t, types, workflow.EventStepStarted)
	assert.Contains(t, types, workflow.EventStepCompleted)
	assert.Equal(t, workflow.EventWorkflowCompleted, types[len(types)-1])
}
