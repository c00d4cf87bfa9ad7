package trigger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// WebhookResponse is the JSON body returned to the webhook caller.
type WebhookResponse struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code"`
	Message        string `json:"message,omitempty"`
	TriggerID      string `json:"trigger_id,omitempty"`
	TriggerName    string `json:"trigger_name,omitempty"`
	ExecutionCount int    `json:"execution_count"`
	Result         any    `json:"result,omitempty"`
	Error          string `json:"error,omitempty"`
}

// webhookEntry is one registered webhook trigger plus its request window.
type webhookEntry struct {
	trigger *Trigger
	mu      sync.Mutex
	// window holds request timestamps inside the sliding rate window.
	window     []time.Time
	executions int
}

// WebhookExecutor routes inbound HTTP requests to webhook triggers. It is
// transport-agnostic: the HTTP layer hands it the already-read request
// pieces and writes back the returned response.
type WebhookExecutor struct {
	mu     sync.RWMutex
	routes map[string]*webhookEntry // endpoint path → entry
	fire   FireFunc
	logger *slog.Logger
	now    func() time.Time
}

// NewWebhookExecutor creates the executor; fire is invoked per accepted
// request.
func NewWebhookExecutor(fire FireFunc) *WebhookExecutor {
	return &WebhookExecutor{
		routes: make(map[string]*webhookEntry),
		fire:   fire,
		logger: slog.Default().With("component", "trigger.webhook"),
		now:    time.Now,
	}
}

// Register maps the trigger's endpoint path.
func (e *WebhookExecutor) Register(tr *Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[normalizePath(tr.Webhook.EndpointPath)] = &webhookEntry{trigger: tr}
}

// Unregister removes the trigger's route.
func (e *WebhookExecutor) Unregister(tr *Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.routes, normalizePath(tr.Webhook.EndpointPath))
}

func normalizePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}

// Request carries the relevant pieces of one inbound webhook call.
type Request struct {
	Path    string
	Method  string
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// Handle validates and dispatches one request. The returned response always
// carries the status code the HTTP layer should write.
func (e *WebhookExecutor) Handle(ctx context.Context, req Request) *WebhookResponse {
	e.mu.RLock()
	entry, ok := e.routes[normalizePath(req.Path)]
	e.mu.RUnlock()
	if !ok {
		return &WebhookResponse{StatusCode: http.StatusNotFound, Message: "no trigger registered for path"}
	}

	tr := entry.trigger
	resp := &WebhookResponse{TriggerID: tr.ID, TriggerName: tr.Name}

	if tr.Status != StatusActive {
		resp.StatusCode = http.StatusServiceUnavailable
		resp.Message = "trigger is " + string(tr.Status)
		return resp
	}
	if !methodAllowed(req.Method, tr.Webhook.AllowedMethods) {
		resp.StatusCode = http.StatusMethodNotAllowed
		resp.Message = "method not allowed"
		return resp
	}
	if tr.Webhook.RequireAuth && !bearerMatches(req.Headers.Get("Authorization"), tr.Webhook.AuthToken) {
		resp.StatusCode = http.StatusUnauthorized
		resp.Message = "invalid or missing bearer token"
		return resp
	}
	if !entry.allow(e.now(), tr.Webhook.RateLimit, tr.Webhook.RateWindow) {
		resp.StatusCode = http.StatusTooManyRequests
		resp.Message = "rate limit exceeded"
		return resp
	}

	params := e.extract(tr, req)
	result, err := e.fire(ctx, tr, params)

	entry.mu.Lock()
	entry.executions++
	resp.ExecutionCount = entry.executions
	entry.mu.Unlock()

	if err != nil {
		e.logger.Error("webhook fire failed", "trigger_id", tr.ID, "error", err)
		resp.StatusCode = http.StatusInternalServerError
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.StatusCode = http.StatusOK
	resp.Result = result
	return resp
}

func methodAllowed(method string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// bearerMatches compares in constant time so token probing leaks nothing.
func bearerMatches(header, token string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// allow applies the sliding-window rate limit: prune timestamps older than
// the window, admit if the survivors are under the limit.
func (w *webhookEntry) allow(now time.Time, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	if window <= 0 {
		window = time.Minute
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-window)
	kept := w.window[:0]
	for _, ts := range w.window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.window = kept
	if len(w.window) >= limit {
		return false
	}
	w.window = append(w.window, now)
	return true
}

// extract merges the trigger's base params with the request pieces the
// webhook configuration selects: JSON body, query values, named headers.
func (e *WebhookExecutor) extract(tr *Trigger, req Request) map[string]any {
	params := make(map[string]any, len(tr.TaskParams)+4)
	for k, v := range tr.TaskParams {
		params[k] = v
	}
	cfg := tr.Webhook

	if cfg.ExtractBody && len(req.Body) > 0 {
		var body map[string]any
		if err := json.Unmarshal(req.Body, &body); err == nil {
			for k, v := range body {
				params[k] = v
			}
		} else {
			params["body"] = string(req.Body)
		}
	}
	if cfg.ExtractQuery {
		for k, vals := range req.Query {
			if len(vals) == 1 {
				params[k] = vals[0]
			} else {
				params[k] = vals
			}
		}
	}
	for _, h := range cfg.ExtractHeaders {
		if v := req.Headers.Get(h); v != "" {
			params["header_"+strings.ToLower(strings.ReplaceAll(h, "-", "_"))] = v
		}
	}
	return params
}
