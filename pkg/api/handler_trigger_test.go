package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/services"
	"github.com/codeready-toolchain/scout/pkg/trigger"
)

type triggerTestEnv struct {
	server *Server
	echo   *echo.Echo
	fired  []map[string]any
}

func newTriggerTestEnv(t *testing.T) *triggerTestEnv {
	t.Helper()
	env := &triggerTestEnv{}

	launch := func(ctx context.Context, tr *trigger.Trigger, params map[string]any) (any, error) {
		env.fired = append(env.fired, params)
		return map[string]any{"run_id": "fake-run"}, nil
	}
	manager := trigger.NewManager(context.Background(), launch, nil)
	t.Cleanup(manager.Stop)

	env.server = &Server{triggerService: services.NewTriggerService(manager)}
	env.echo = echo.New()
	env.server.registerRoutes(env.echo)
	return env
}

func (env *triggerTestEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func TestCreateTriggerHandler(t *testing.T) {
	env := newTriggerTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/triggers", `{
		"id": "wh-1",
		"kind": "webhook",
		"name": "deploy hook",
		"task": "summarize the deployment",
		"webhook": {"endpoint_path": "/deploy", "require_auth": true, "auth_token": "secret-token"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, trigger.StatusActive, created.Status)
	assert.Equal(t, "***", created.Webhook.AuthToken, "auth token must not leak in responses")
}

func TestCreateTriggerHandlerInvalid(t *testing.T) {
	env := newTriggerTestEnv(t)

	// Webhook trigger without an endpoint path.
	rec := env.do(http.MethodPost, "/api/v1/triggers", `{
		"id": "wh-bad",
		"kind": "webhook",
		"name": "broken",
		"task": "anything"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerLifecycleHandlers(t *testing.T) {
	env := newTriggerTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/triggers", `{
		"id": "ev-1",
		"kind": "event",
		"name": "on deploy",
		"task": "investigate",
		"event": {"event_type": "deploy.finished"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/triggers/ev-1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tr trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, trigger.StatusPaused, tr.Status)

	rec = env.do(http.MethodPost, "/api/v1/triggers/ev-1/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/triggers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*trigger.Trigger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = env.do(http.MethodGet, "/api/v1/triggers/ev-1/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/triggers/ev-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/triggers/ev-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandler(t *testing.T) {
	env := newTriggerTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/triggers", `{
		"id": "wh-2",
		"kind": "webhook",
		"name": "alerts",
		"task": "triage the alert",
		"webhook": {"endpoint_path": "/alerts", "extract_body": true}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/webhooks/alerts", `{"severity": "high"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp trigger.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "wh-2", resp.TriggerID)

	require.Len(t, env.fired, 1)
	assert.Equal(t, "high", env.fired[0]["severity"])
}

func TestWebhookHandlerUnknownPath(t *testing.T) {
	env := newTriggerTestEnv(t)

	rec := env.do(http.MethodPost, "/webhooks/nothing-here", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandlerAuth(t *testing.T) {
	env := newTriggerTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/triggers", `{
		"id": "wh-3",
		"kind": "webhook",
		"name": "guarded",
		"task": "do the thing",
		"webhook": {"endpoint_path": "/guarded", "require_auth": true, "auth_token": "s3cret"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/webhooks/guarded", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/guarded", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer s3cret")
	out := httptest.NewRecorder()
	env.echo.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)
}
