package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/engine/internal/assert/helpers"
	"github.com/convoflow/engine/internal/server"
	"github.com/convoflow/engine/pkg/api"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func newTestServer(env *helpers.TestEngineEnv) *httptest.Server {
	srv := server.NewServer(env.Engine, env.Hub)
	return httptest.NewServer(srv.SetupRoutes())
}

func postJSON(
	t *testing.T, url string, payload any,
) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealthEndpoint(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		ts := newTestServer(env)
		defer ts.Close()

		resp, body := getJSON(t, ts.URL+"/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var health api.HealthResponse
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "convoflow", health.Service)
		assert.NotEmpty(t, health.Version)
	})
}

func TestMessageCompletesFlow(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockModel.SetResponse("classify", &api.CallResponse{
			Fields: api.State{"intent": "faq"},
		})

		ts := newTestServer(env)
		defer ts.Close()

		resp, body := postJSON(t, ts.URL+"/messaging/s-http",
			api.MessageRequest{Text: "where is my order?"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var msg api.MessageResponse
		require.NoError(t, json.Unmarshal(body, &msg))
		assert.Equal(t, api.ResultCompleted, msg.Status)
		assert.Equal(t, api.NodeID("respond"), msg.Node)
		assert.Equal(t, "here is your answer", msg.Reply)
		assert.Equal(t, api.SessionID("s-http"), msg.SessionID)
	})
}

func TestMessageInvalidJSON(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		ts := newTestServer(env)
		defer ts.Close()

		resp, err := http.Post(
			ts.URL+"/messaging/s-bad", "application/json",
			bytes.NewReader([]byte("{not json")),
		)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMessageSessionBusy(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		ts := newTestServer(env)
		defer ts.Close()

		_, err := env.Arbiter.Acquire(
			t.Context(), "s-busy", "other-executor", env.Config.LeaseTTL,
		)
		require.NoError(t, err)

		resp, body := postJSON(t, ts.URL+"/messaging/s-busy",
			api.MessageRequest{Text: "hello"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		var errResp api.ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, http.StatusConflict, errResp.Status)
		assert.Contains(t, errResp.Error, "s-busy")
	})
}

func TestMessageSanitizesSessionID(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockModel.SetResponse("classify", &api.CallResponse{
			Fields: api.State{"intent": "faq"},
		})

		ts := newTestServer(env)
		defer ts.Close()

		resp, body := postJSON(t, ts.URL+"/messaging/My%20Session",
			api.MessageRequest{Text: "hi"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var msg api.MessageResponse
		require.NoError(t, json.Unmarshal(body, &msg))
		assert.Equal(t, api.SessionID("my-session"), msg.SessionID)
	})
}

func TestMessageFlowFailureReturnsResult(t *testing.T) {
	g, err := helpers.NewLoopGraph()
	require.NoError(t, err)

	env := helpers.NewTestEngine(t, g)
	env.Config.StepLimit = 3

	ts := newTestServer(env)
	defer ts.Close()

	resp, body := postJSON(t, ts.URL+"/messaging/s-fail",
		api.MessageRequest{Text: "hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var msg api.MessageResponse
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, api.ResultFailed, msg.Status)
	assert.NotEmpty(t, msg.Error)
}

func TestMessageExternalFailureIsBadGateway(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockModel.SetError("classify", assert.AnError)

		ts := newTestServer(env)
		defer ts.Close()

		resp, body := postJSON(t, ts.URL+"/messaging/s-down",
			api.MessageRequest{Text: "hi"})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		var errResp api.ErrorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, http.StatusBadGateway, errResp.Status)
	})
}

func TestResumeEndpoint(t *testing.T) {
	helpers.WithInterruptEnv(t, func(env *helpers.TestEngineEnv) {
		ts := newTestServer(env)
		defer ts.Close()

		resp, body := postJSON(t, ts.URL+"/messaging/s-resume",
			api.MessageRequest{})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var msg api.MessageResponse
		require.NoError(t, json.Unmarshal(body, &msg))
		assert.Equal(t, api.ResultInterrupted, msg.Status)
		assert.Equal(t, "what is your account number?", msg.Reply)

		resp, body = postJSON(t, ts.URL+"/messaging/s-resume",
			api.MessageRequest{Input: api.State{"answer": "99"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, json.Unmarshal(body, &msg))
		assert.Equal(t, api.ResultCompleted, msg.Status)
		assert.Equal(t, "recorded: 99", msg.Reply)
	})
}

func TestResumeNothingToResume(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		ts := newTestServer(env)
		defer ts.Close()

		resp, _ := postJSON(
			t, ts.URL+"/messaging/never-ran/resume", struct{}{},
		)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetSession(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockModel.SetResponse("classify", &api.CallResponse{
			Fields: api.State{"intent": "faq"},
		})

		ts := newTestServer(env)
		defer ts.Close()

		resp, _ := getJSON(t, ts.URL+"/session/s-view")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		_, err := env.Engine.Run(
			t.Context(), "s-view", api.UserMessage("hi"),
		)
		require.NoError(t, err)

		resp, body := getJSON(t, ts.URL+"/session/s-view")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var sess api.SessionResponse
		require.NoError(t, json.Unmarshal(body, &sess))
		assert.Equal(t, api.SessionID("s-view"), sess.SessionID)
		assert.Equal(t, api.CheckpointCompleted, sess.Status)
		assert.Equal(t, int64(2), sess.Seq)
	})
}

func TestGetRecord(t *testing.T) {
	helpers.WithTriageEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockModel.SetResponse("classify", &api.CallResponse{
			Fields: api.State{"intent": "faq"},
		})

		ts := newTestServer(env)
		defer ts.Close()

		resp, _ := getJSON(t, ts.URL+"/session/s-record/record")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		_, err := env.Engine.Run(
			t.Context(), "s-record", api.UserMessage("hi"),
		)
		require.NoError(t, err)

		resp, body := getJSON(t, ts.URL+"/session/s-record/record")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(body, &rec))
		assert.Equal(t, "s-record", rec["session_id"])
	})
}
