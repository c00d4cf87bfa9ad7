package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeready-toolchain/scout/pkg/models"
)

// WebSearchToolName is the registry name of the built-in search tool.
const WebSearchToolName = "web_search"

// DefaultMaxResults caps a single search when the caller does not specify one.
const DefaultMaxResults = 5

// SearchProvider is the external web-search contract consumed by the
// searcher node. Transient failures are retried by the registry.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchHit, error)
}

// SearchArgs are the parameters of the web_search tool.
type SearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return"`
}

// WebSearchTool wraps a SearchProvider as a registry tool. The structured
// hits ride in Metadata under "hits" so the searcher node can consume them
// without reparsing the text output.
type WebSearchTool struct {
	provider SearchProvider
	timeout  time.Duration
}

// NewWebSearchTool creates the built-in search tool. timeout <= 0 disables
// the per-call deadline.
func NewWebSearchTool(provider SearchProvider, timeout time.Duration) *WebSearchTool {
	return &WebSearchTool{provider: provider, timeout: timeout}
}

func (t *WebSearchTool) Name() string { return WebSearchToolName }

func (t *WebSearchTool) Description() string {
	return "Search the web and return ranked results with title, URL, and snippet."
}

func (t *WebSearchTool) Schema() string { return reflectSchema[SearchArgs]() }

func (t *WebSearchTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return Fail(fmt.Errorf("web_search requires a non-empty query")), nil
	}
	maxResults := intArg(args, "max_results", DefaultMaxResults)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	start := time.Now()
	hits, err := t.provider.Search(ctx, query, maxResults)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Tool: WebSearchToolName, Elapsed: time.Since(start)}
		}
		return nil, err
	}

	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, h.Title, h.URL, h.Snippet)
	}
	if len(hits) == 0 {
		sb.WriteString("No results found.")
	}
	return Ok(sb.String()).WithMeta("hits", hits).WithMeta("query", query), nil
}

// HitsFromResult recovers the structured hits a WebSearchTool stored in the
// result metadata. The JSON round-trip covers results that crossed a
// serialization boundary (checkpoint resume, MCP transport).
func HitsFromResult(res *Result) []models.SearchHit {
	if res == nil || res.Metadata == nil {
		return nil
	}
	switch v := res.Metadata["hits"].(type) {
	case []models.SearchHit:
		return v
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var hits []models.SearchHit
		if err := json.Unmarshal(raw, &hits); err != nil {
			return nil
		}
		return hits
	default:
		return nil
	}
}

// StaticSearchProvider serves seeded results, used by tests and offline
// development. Queries without a seeded entry fall back to Default.
type StaticSearchProvider struct {
	Seeded  map[string][]models.SearchHit
	Default []models.SearchHit
}

func (p *StaticSearchProvider) Search(_ context.Context, query string, maxResults int) ([]models.SearchHit, error) {
	hits, ok := p.Seeded[strings.ToLower(strings.TrimSpace(query))]
	if !ok {
		hits = p.Default
	}
	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	out := make([]models.SearchHit, len(hits))
	copy(out, hits)
	return out, nil
}

// HTTPSearchProvider calls a JSON search endpoint:
// POST {query, max_results} → {results: [SearchHit]}. Rate limits and 5xx
// responses are surfaced as transient errors so the registry retries them.
type HTTPSearchProvider struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func (p *HTTPSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]models.SearchHit, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(map[string]any{"query": query, "max_results": maxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, Transientf("search provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned %d", resp.StatusCode)
	}
	var payload struct {
		Results []models.SearchHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return payload.Results, nil
}

// intArg reads an integer argument that may arrive as float64 (JSON), int,
// or a numeric string.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
