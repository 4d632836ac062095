package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/agent"
	"stepwise/llm"
	"stepwise/plan"
	"stepwise/prompts"
	"stepwise/tools"
)

// scriptedLLM replays canned responses for handler tests.
type scriptedLLM struct {
	responses []*llm.Response
	calls     int
}

func (f *scriptedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp, nil
}

func (f *scriptedLLM) Stream(ctx context.Context, req llm.Request, ch chan<- llm.StreamChunk) error {
	defer close(ch)
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return err
	}
	if resp.Content != "" {
		ch <- llm.StreamChunk{Delta: resp.Content}
	}
	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		ch <- llm.StreamChunk{ToolCall: &tc}
	}
	ch <- llm.StreamChunk{Done: true}
	return nil
}

func newTestServer(t *testing.T, script []*llm.Response) (*Server, *agent.Agent) {
	t.Helper()
	a := agent.New("test", &agent.AgentConfig{Name: "test"}, &scriptedLLM{responses: script},
		"fake-model", tools.NewRegistry(), prompts.Default())
	t.Cleanup(a.Sessions.Close)
	return New(a, nil), a
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, []*llm.Response{{Content: "hi"}})
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "fake-model", body["model"])
}

func TestMessage_StreamsEvents(t *testing.T) {
	s, _ := newTestServer(t, []*llm.Response{{Content: "direct answer"}})
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message",
		strings.NewReader(`{"session_id":"s1","message":"hello"}`))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: response_start")
	assert.Contains(t, body, `"mode":"direct"`)
	assert.Contains(t, body, "event: on_chat_model_stream")
	assert.Contains(t, body, "event: response_end")
	assert.Contains(t, body, "event: done")
}

func TestMessage_RejectsEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t, []*llm.Response{{Content: "x"}})
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"message":"  "}`))
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessage_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, []*llm.Response{{Content: "x"}})
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/message", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionPlan_UnknownSession(t *testing.T) {
	s, _ := newTestServer(t, []*llm.Response{{Content: "x"}})
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nope/plan", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionPlan_NoPlan(t *testing.T) {
	s, a := newTestServer(t, []*llm.Response{{Content: "x"}})
	a.Sessions.LoadOrCreate("s1")
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1/plan", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionPlan_ReturnsProgress(t *testing.T) {
	s, a := newTestServer(t, []*llm.Response{{Content: "x"}})
	sess := a.Sessions.LoadOrCreate("s1")
	p := plan.New("the task", []*plan.Step{
		{Description: "one"},
		{Description: "two"},
	})
	sess.Tracker.SetPlan(p)
	require.NoError(t, sess.Tracker.StartStep(1))

	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1/plan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SessionID   string `json:"session_id"`
		Progress    plan.Progress
		CurrentStep *plan.StepInfo `json:"current_step"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "s1", body.SessionID)
	assert.Equal(t, 2, body.Progress.Total)
	assert.Equal(t, 1, body.Progress.InProgress)
	require.NotNil(t, body.CurrentStep)
	assert.Equal(t, 1, body.CurrentStep.ID)
	assert.Equal(t, "in_progress", body.CurrentStep.Status)
}

func TestTerminal_RequiresLocalSandbox(t *testing.T) {
	s, _ := newTestServer(t, []*llm.Response{{Content: "x"}})
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/terminal", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
