package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/fieldbot/internal/bridge"
	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/retry"
	"github.com/slok/fieldbot/internal/throttle"
)

// engineCall records one dispatched command so tests can wait on it.
type engineCall struct {
	op     string
	task   model.Task
	taskID string
}

type stubEngine struct {
	calls    chan engineCall
	startErr error
	stopErr  error
}

func newStubEngine() *stubEngine {
	return &stubEngine{calls: make(chan engineCall, 10)}
}

func (e *stubEngine) Start(ctx context.Context, task model.Task) error {
	e.calls <- engineCall{op: "start", task: task}
	return e.startErr
}

func (e *stubEngine) Stop(ctx context.Context, taskID string) error {
	e.calls <- engineCall{op: "stop", taskID: taskID}
	return e.stopErr
}

func (e *stubEngine) Acknowledge() error {
	e.calls <- engineCall{op: "ack"}
	return nil
}

func (e *stubEngine) waitCall(t *testing.T) engineCall {
	t.Helper()
	select {
	case c := <-e.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for engine call")
		return engineCall{}
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) bridge.EnvelopeRaw {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env bridge.EnvelopeRaw
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := bridge.MarshalEnvelope(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestServerStartCommand(t *testing.T) {
	engine := newStubEngine()
	throttler, err := throttle.NewThrottler(throttle.DefaultConfig())
	require.NoError(t, err)

	var gotPolicy retry.Policy
	server, err := bridge.NewServer(bridge.ServerConfig{
		Engine:    engine,
		Throttler: throttler,
		SetRetryPolicy: func(p retry.Policy) error {
			gotPolicy = p
			return nil
		},
	})
	require.NoError(t, err)
	defer server.Close()

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)

	sendEnvelope(t, conn, bridge.TypeStart, bridge.StartMessage{
		Task: bridge.TaskPayload{
			ID:   "task-1",
			Type: "due_date_update",
			Name: "release-prep",
			Config: &bridge.DueDateTaskConfig{
				FieldID:              "duedate",
				DaysBeforeTargetDate: 10,
				BusinessDaysOnly:     true,
				Holidays:             []string{"2025-01-01"},
			},
		},
		RunConfig: bridge.RunConfigPayload{
			Throttling: &bridge.ThrottlingPayload{
				InitialDelayMs:     100,
				MinDelayMs:         10,
				MaxDelayMs:         50,
				AfterInteractionMs: 5,
				AfterNavigationMs:  20,
			},
			RetryPolicy: &bridge.RetryPolicyPayload{
				MaxAttempts:       5,
				InitialDelayMs:    100,
				BackoffMultiplier: 2,
				MaxDelayMs:        1000,
			},
		},
	})

	call := engine.waitCall(t)
	assert.Equal(t, "start", call.op)
	assert.Equal(t, "task-1", call.task.ID)
	assert.Equal(t, model.TaskTypeDueDateUpdate, call.task.Type)
	require.NotNil(t, call.task.DueDate)
	assert.Equal(t, 10, call.task.DueDate.DaysBeforeTarget)
	assert.Equal(t, []string{"2025-01-01"}, call.task.DueDate.Holidays)

	// The run configuration must have been applied before the start.
	assert.Equal(t, 100*time.Millisecond, throttler.Config().InitialDelay)
	assert.Equal(t, 5, gotPolicy.MaxAttempts)
}

func TestServerStartCommandInvalidTask(t *testing.T) {
	engine := newStubEngine()
	server, err := bridge.NewServer(bridge.ServerConfig{Engine: engine})
	require.NoError(t, err)
	defer server.Close()

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)

	// Due-date task without its config is invalid, it must be rejected
	// before reaching the engine and reported as an error event.
	sendEnvelope(t, conn, bridge.TypeStart, bridge.StartMessage{
		Task: bridge.TaskPayload{ID: "task-1", Type: "due_date_update", Name: "broken"},
	})

	env := readEnvelope(t, conn)
	require.Equal(t, bridge.TypeError, env.Type)

	var errMsg bridge.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Payload, &errMsg))
	assert.Equal(t, "task-1", errMsg.TaskID)
	assert.NotEmpty(t, errMsg.Error)
	assert.Empty(t, engine.calls)
}

func TestServerStopAndAckCommands(t *testing.T) {
	engine := newStubEngine()
	server, err := bridge.NewServer(bridge.ServerConfig{Engine: engine})
	require.NoError(t, err)
	defer server.Close()

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)

	sendEnvelope(t, conn, bridge.TypeStop, bridge.StopMessage{TaskID: "task-1"})
	call := engine.waitCall(t)
	assert.Equal(t, "stop", call.op)
	assert.Equal(t, "task-1", call.taskID)

	sendEnvelope(t, conn, bridge.TypeAck, bridge.AckMessage{TaskID: "task-1"})
	call = engine.waitCall(t)
	assert.Equal(t, "ack", call.op)
}

func TestServerStopRejectionBroadcastsError(t *testing.T) {
	engine := newStubEngine()
	engine.stopErr = errors.New("no active run")
	server, err := bridge.NewServer(bridge.ServerConfig{Engine: engine})
	require.NoError(t, err)
	defer server.Close()

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)

	sendEnvelope(t, conn, bridge.TypeStop, bridge.StopMessage{TaskID: "task-1"})
	engine.waitCall(t)

	env := readEnvelope(t, conn)
	require.Equal(t, bridge.TypeError, env.Type)

	var errMsg bridge.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Payload, &errMsg))
	assert.Equal(t, "no active run", errMsg.Error)
}

func TestServerBroadcastsRunEvents(t *testing.T) {
	engine := newStubEngine()
	server, err := bridge.NewServer(bridge.ServerConfig{Engine: engine})
	require.NoError(t, err)
	defer server.Close()

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn1 := dial(t, srv.URL)
	conn2 := dial(t, srv.URL)

	ctx := context.Background()
	current := model.ItemProgress{Key: "ISSUE-2", Title: "Second", Status: model.ItemStatusInProgress}
	server.NotifyProgress(ctx, model.RunProgress{
		TaskID:         "task-1",
		TotalItems:     3,
		ProcessedItems: 1,
		CurrentItem:    &current,
		History: []model.ItemProgress{
			{Key: "ISSUE-1", Title: "First", Status: model.ItemStatusSuccess},
		},
	})
	server.NotifyCompleted(ctx, "task-1", model.RunCounts{Total: 3, Success: 2, Failed: 1})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		env := readEnvelope(t, conn)
		require.Equal(t, bridge.TypeProgress, env.Type)

		var progress bridge.ProgressMessage
		require.NoError(t, json.Unmarshal(env.Payload, &progress))
		assert.Equal(t, "task-1", progress.TaskID)
		assert.Equal(t, 3, progress.TotalItems)
		assert.Equal(t, 1, progress.ProcessedItems)
		require.NotNil(t, progress.CurrentItem)
		assert.Equal(t, "in_progress", progress.CurrentItem.Status)
		require.Len(t, progress.History, 1)
		assert.Equal(t, "success", progress.History[0].Status)

		env = readEnvelope(t, conn)
		require.Equal(t, bridge.TypeCompleted, env.Type)

		var completed bridge.CompletedMessage
		require.NoError(t, json.Unmarshal(env.Payload, &completed))
		assert.Equal(t, bridge.RunSummary{Total: 3, Success: 2, Failed: 1}, completed.Summary)
	}
}
