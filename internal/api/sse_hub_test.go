package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hypocycle/adapters/execution/simulated"
	"hypocycle/adapters/llm/heuristic"
	"hypocycle/app"
	"hypocycle/domain/core"
	"hypocycle/internal/testkit"
	"hypocycle/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan ports.CycleEvent) ports.CycleEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ports.CycleEvent{}
	}
}

func TestSSEHub_FiltersByCycle(t *testing.T) {
	hub := NewSSEHub(nil)
	defer hub.Close()

	one, unsubOne := hub.Subscribe("c1")
	defer unsubOne()
	all, unsubAll := hub.Subscribe("")
	defer unsubAll()

	hub.Publish(ports.CycleEvent{CycleID: "c2", Type: ports.EventCycleStarted})
	hub.Publish(ports.CycleEvent{CycleID: "c1", Type: ports.EventCycleStarted})

	assert.Equal(t, core.CycleID("c2"), receive(t, all).CycleID)
	assert.Equal(t, core.CycleID("c1"), receive(t, all).CycleID)
	assert.Equal(t, core.CycleID("c1"), receive(t, one).CycleID)

	select {
	case ev := <-one:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := NewSSEHub(nil)
	defer hub.Close()

	ch, unsubscribe := hub.Subscribe("c1")
	assert.Equal(t, 1, hub.ClientCount("c1"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.ClientCount("c1"))
	_, open := <-ch
	assert.False(t, open)
}

func TestSSEHub_OrchestratorEvents(t *testing.T) {
	hub := NewSSEHub(nil)
	defer hub.Close()

	interpreter := app.NewInterpreter(heuristic.NewReasoner(nil), nil, nil)
	executor := simulated.NewExecutor(testkit.Rand(3), simulated.Config{NoiseFraction: 0.1}, nil)
	orchestrator := app.NewOrchestrator(interpreter, executor, nil, app.OrchestratorConfig{}, nil, nil).WithEvents(hub)

	events, unsubscribe := hub.Subscribe("cycle-1")
	defer unsubscribe()

	_, err := orchestrator.RunCycle(context.Background(), app.CycleRequest{
		Hypothesis: testkit.DensityHypothesis,
		CycleID:    "cycle-1",
	})
	require.NoError(t, err)

	var types []string
	for len(types) < 5 {
		types = append(types, receive(t, events).Type)
	}
	assert.Equal(t, []string{
		ports.EventCycleStarted,
		ports.EventInterpreted,
		ports.EventExecuted,
		ports.EventAnalyzed,
		ports.EventCycleCompleted,
	}, types)
}

func TestSSEHub_FailedCycleEvent(t *testing.T) {
	hub := NewSSEHub(nil)
	defer hub.Close()

	interpreter := app.NewInterpreter(heuristic.NewReasoner(nil), nil, nil)
	orchestrator := app.NewOrchestrator(interpreter, &testkit.StaticExecutor{}, nil, app.OrchestratorConfig{}, nil, nil).WithEvents(hub)

	events, unsubscribe := hub.Subscribe("")
	defer unsubscribe()

	_, err := orchestrator.RunCycle(context.Background(), app.CycleRequest{Hypothesis: "unicorns prefer jazz"})
	require.Error(t, err)

	assert.Equal(t, ports.EventCycleStarted, receive(t, events).Type)
	failed := receive(t, events)
	assert.Equal(t, ports.EventCycleFailed, failed.Type)
	assert.Equal(t, "UNSUPPORTED_HYPOTHESIS", failed.Data["code"])
}

func TestHandleSSE_StreamsEvents(t *testing.T) {
	hub := NewSSEHub(nil)
	defer hub.Close()
	hub.keepAlive = 50 * time.Millisecond

	interpreter := app.NewInterpreter(heuristic.NewReasoner(nil), nil, nil)
	orchestrator := app.NewOrchestrator(interpreter, &testkit.StaticExecutor{}, nil, app.OrchestratorConfig{}, nil, nil)
	handler := NewCycleHandler(orchestrator, interpreter, nil, nil, nil).WithEvents(hub)

	srv := httptest.NewServer(NewRouter(handler, nil, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/events?cycle_id=c9")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.ClientCount("c9") == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(ports.CycleEvent{CycleID: "c9", Type: ports.EventCycleCompleted})

	found := make(chan bool, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") && strings.Contains(line, ports.EventCycleCompleted) {
				found <- true
				return
			}
		}
		found <- false
	}()

	select {
	case ok := <-found:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event not streamed")
	}
}
